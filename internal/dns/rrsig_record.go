package dns

import (
	"encoding/binary"
	"fmt"
)

// RRSIGRecord represents a DNS RRSIG record (RFC 4034 Section 3). The cache
// stores and round-trips RRSIGs alongside the RRset they cover; it never
// validates them (signature validation is out of scope for this repo).
type RRSIGRecord struct {
	H           RRHeader
	TypeCovered RecordType
	Algorithm   uint8
	Labels      uint8
	OriginalTTL uint32
	Expiration  uint32
	Inception   uint32
	KeyTag      uint16
	SignerName  string
	Signature   []byte
}

// Type always returns TypeRRSIG.
func (r *RRSIGRecord) Type() RecordType { return TypeRRSIG }

// Header returns the record header.
func (r *RRSIGRecord) Header() RRHeader { return r.H }

// SetHeader sets the record header.
func (r *RRSIGRecord) SetHeader(h RRHeader) { r.H = h }

// MarshalRData marshals the RRSIG fields to wire format (RFC 4034 §3.1).
// The signer name is never compressed (RFC 4034 §6.2).
func (r *RRSIGRecord) MarshalRData() ([]byte, error) {
	signer, err := EncodeName(r.SignerName)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 18, 18+len(signer)+len(r.Signature))
	binary.BigEndian.PutUint16(out[0:2], uint16(r.TypeCovered))
	out[2] = r.Algorithm
	out[3] = r.Labels
	binary.BigEndian.PutUint32(out[4:8], r.OriginalTTL)
	binary.BigEndian.PutUint32(out[8:12], r.Expiration)
	binary.BigEndian.PutUint32(out[12:16], r.Inception)
	binary.BigEndian.PutUint16(out[16:18], r.KeyTag)
	out = append(out, signer...)
	out = append(out, r.Signature...)
	return out, nil
}

// ParseRRSIGRData parses RRSIG record RDATA from wire format.
func ParseRRSIGRData(msg []byte, off *int, start, rdlen int) (*RRSIGRecord, error) {
	if *off+18 > len(msg) {
		return nil, fmt.Errorf("%w: unexpected EOF while reading RRSIG fixed fields", ErrDNSError)
	}
	r := &RRSIGRecord{
		TypeCovered: RecordType(binary.BigEndian.Uint16(msg[*off : *off+2])),
		Algorithm:   msg[*off+2],
		Labels:      msg[*off+3],
		OriginalTTL: binary.BigEndian.Uint32(msg[*off+4 : *off+8]),
		Expiration:  binary.BigEndian.Uint32(msg[*off+8 : *off+12]),
		Inception:   binary.BigEndian.Uint32(msg[*off+12 : *off+16]),
		KeyTag:      binary.BigEndian.Uint16(msg[*off+16 : *off+18]),
	}
	*off += 18
	signer, err := DecodeName(msg, off)
	if err != nil {
		return nil, err
	}
	r.SignerName = signer
	end := start + rdlen
	if end > len(msg) || *off > end {
		return nil, fmt.Errorf("%w: invalid DNS record rdata length for RRSIG", ErrDNSError)
	}
	sig := make([]byte, end-*off)
	copy(sig, msg[*off:end])
	r.Signature = sig
	*off = end
	return r, nil
}
