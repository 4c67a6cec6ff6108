package cache

import "github.com/jroosing/hydradns/internal/dns"

// TypePair is the (type, covers) key under which a name node indexes its
// header chain (§3). covers is zero for ordinary RRsets and names the
// covered type for an RRSIG or a negative entry.
type TypePair struct {
	Type   dns.RecordType
	Covers dns.RecordType
}

// NCACHEAny is a synthetic type pair denoting an NXDOMAIN-style entry that
// shadows every type at a name (§3).
var NCACHEAny = TypePair{Type: 0, Covers: 0}

func rrsetTypePair(t dns.RecordType) TypePair {
	return TypePair{Type: t}
}

func negativeTypePair(queried dns.RecordType) TypePair {
	return TypePair{Type: dns.TypeANY, Covers: queried}
}

func rrsigTypePair(covers dns.RecordType) TypePair {
	return TypePair{Type: dns.TypeRRSIG, Covers: covers}
}
