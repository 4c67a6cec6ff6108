package dns

// RRHeader holds the fixed fields shared by every resource record
// (RFC 1035 Section 4.1.3): owner name, class and TTL. TYPE is not part of
// the header because it is exposed by each record's Type() method instead
// (one record type -> one RecordType, never stored twice).
type RRHeader struct {
	Name  string
	Class uint16
	TTL   uint32
}

// NewRRHeader builds an RRHeader for a record in the given class with the
// given TTL. The class is always taken from the argument; there is no
// default.
func NewRRHeader(name string, class RecordClass, ttl uint32) RRHeader {
	return RRHeader{Name: name, Class: uint16(class), TTL: ttl}
}

// Record is the common interface implemented by every typed resource
// record (IPRecord, NameRecord, MXRecord, SOARecord, NSECRecord, RRSIGRecord,
// OpaqueRecord). Each RR type gets its own Go type rather than a single
// generic struct with an `any` payload, so record-specific invariants (an
// A record's address must be 4 bytes, an SOA's MINIMUM is a named field)
// are enforced by the type system instead of by type assertions scattered
// through call sites.
type Record interface {
	Type() RecordType
	Header() RRHeader
	SetHeader(RRHeader)
	MarshalRData() ([]byte, error)
}
