package dns

import (
	"encoding/binary"
	"fmt"
)

// SOARecord represents a DNS SOA (start of authority) record (RFC 1035
// Section 3.3.13). The MINIMUM field doubles as the negative-caching TTL
// per RFC 2308, which is why it gets its own named field rather than
// living inside an opaque byte blob callers have to pick apart.
type SOARecord struct {
	H       RRHeader
	MName   string
	RName   string
	Serial  uint32
	Refresh uint32
	Retry   uint32
	Expire  uint32
	Minimum uint32
}

// Type always returns TypeSOA.
func (r *SOARecord) Type() RecordType { return TypeSOA }

// Header returns the record header.
func (r *SOARecord) Header() RRHeader { return r.H }

// SetHeader sets the record header.
func (r *SOARecord) SetHeader(h RRHeader) { r.H = h }

// MarshalRData marshals the SOA fields to wire format.
func (r *SOARecord) MarshalRData() ([]byte, error) {
	mname, err := EncodeName(r.MName)
	if err != nil {
		return nil, err
	}
	rname, err := EncodeName(r.RName)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(mname)+len(rname)+20)
	out = append(out, mname...)
	out = append(out, rname...)
	fixed := make([]byte, 20)
	binary.BigEndian.PutUint32(fixed[0:4], r.Serial)
	binary.BigEndian.PutUint32(fixed[4:8], r.Refresh)
	binary.BigEndian.PutUint32(fixed[8:12], r.Retry)
	binary.BigEndian.PutUint32(fixed[12:16], r.Expire)
	binary.BigEndian.PutUint32(fixed[16:20], r.Minimum)
	return append(out, fixed...), nil
}

// ParseSOARData parses SOA record RDATA from wire format (RFC 1035 §3.3.13).
func ParseSOARData(msg []byte, off *int, start, rdlen int) (*SOARecord, error) {
	mname, err := DecodeName(msg, off)
	if err != nil {
		return nil, err
	}
	rname, err := DecodeName(msg, off)
	if err != nil {
		return nil, err
	}
	if *off+20 > len(msg) {
		return nil, fmt.Errorf("%w: unexpected EOF while reading SOA fixed fields", ErrDNSError)
	}
	r := &SOARecord{
		MName:   mname,
		RName:   rname,
		Serial:  binary.BigEndian.Uint32(msg[*off : *off+4]),
		Refresh: binary.BigEndian.Uint32(msg[*off+4 : *off+8]),
		Retry:   binary.BigEndian.Uint32(msg[*off+8 : *off+12]),
		Expire:  binary.BigEndian.Uint32(msg[*off+12 : *off+16]),
		Minimum: binary.BigEndian.Uint32(msg[*off+16 : *off+20]),
	}
	*off += 20
	if *off-start != rdlen {
		return nil, fmt.Errorf("%w: invalid DNS record rdata length for SOA", ErrDNSError)
	}
	return r, nil
}
