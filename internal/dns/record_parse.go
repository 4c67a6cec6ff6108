package dns

import (
	"encoding/binary"
	"fmt"
)

// ParseRecord parses a single resource record (name, type, class, ttl,
// rdlength, rdata) from msg starting at *off, dispatching to the
// type-specific RDATA parser and advancing *off past the record.
func ParseRecord(msg []byte, off *int) (Record, error) {
	name, err := DecodeName(msg, off)
	if err != nil {
		return nil, err
	}
	if *off+10 > len(msg) {
		return nil, fmt.Errorf("%w: unexpected EOF while reading DNS record header", ErrDNSError)
	}
	rtype := RecordType(binary.BigEndian.Uint16(msg[*off : *off+2]))
	class := binary.BigEndian.Uint16(msg[*off+2 : *off+4])
	ttl := binary.BigEndian.Uint32(msg[*off+4 : *off+8])
	rdlen := int(binary.BigEndian.Uint16(msg[*off+8 : *off+10]))
	*off += 10
	start := *off
	if start+rdlen > len(msg) {
		return nil, fmt.Errorf("%w: DNS record rdata length exceeds message bounds", ErrDNSError)
	}

	h := RRHeader{Name: NormalizeName(name), Class: class, TTL: ttl}

	var rr Record
	switch rtype {
	case TypeA, TypeAAAA:
		rr, err = ParseIPRData(msg, off, rdlen)
	case TypeCNAME, TypeNS, TypePTR:
		rr, err = ParseNameRData(msg, off, start, rdlen, rtype)
	case TypeMX:
		rr, err = ParseMXRData(msg, off, start, rdlen)
	case TypeSOA:
		rr, err = ParseSOARData(msg, off, start, rdlen)
	case TypeNSEC:
		rr, err = ParseNSECRData(msg, off, start, rdlen)
	case TypeRRSIG:
		rr, err = ParseRRSIGRData(msg, off, start, rdlen)
	default:
		rr, err = ParseOpaqueRData(msg, off, rdlen, rtype)
	}
	if err != nil {
		return nil, err
	}
	rr.SetHeader(h)
	return rr, nil
}

// MarshalRR serializes a single resource record (name, type, class, ttl,
// rdlength, rdata) to DNS wire format. Names are never compressed here,
// and Packet.Marshal concatenates this output without adding compression.
func MarshalRR(rr Record) ([]byte, error) {
	h := rr.Header()
	name, err := EncodeName(h.Name)
	if err != nil {
		return nil, err
	}
	rdata, err := rr.MarshalRData()
	if err != nil {
		return nil, err
	}
	if len(rdata) > 0xFFFF {
		return nil, fmt.Errorf("%w: rdata too long (%d > 65535)", ErrDNSError, len(rdata))
	}

	out := make([]byte, 0, len(name)+10+len(rdata))
	out = append(out, name...)
	fixed := make([]byte, 10)
	binary.BigEndian.PutUint16(fixed[0:2], uint16(rr.Type()))
	binary.BigEndian.PutUint16(fixed[2:4], h.Class)
	binary.BigEndian.PutUint32(fixed[4:8], h.TTL)
	binary.BigEndian.PutUint16(fixed[8:10], uint16(len(rdata)))
	out = append(out, fixed...)
	out = append(out, rdata...)
	return out, nil
}
