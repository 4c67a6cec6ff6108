package cache

import (
	"sync"
	"sync/atomic"

	"github.com/jroosing/hydradns/internal/dns"
)

// NegKind distinguishes ordinary RRsets from the two negative-cache shapes,
// per the cache statistics counters named in §6.
type NegKind uint8

const (
	KindNormal NegKind = iota
	KindNXDomain
	KindNXRRSet
)

// Bucket is the liveness bucket a header currently occupies.
type Bucket uint8

const (
	BucketActive Bucket = iota
	BucketStale
	BucketAncient
)

func statBucket(a Attr) Bucket {
	switch {
	case a&AttrAncient != 0:
		return BucketAncient
	case a&AttrStale != 0:
		return BucketStale
	default:
		return BucketActive
	}
}

func statKind(tp TypePair, a Attr) NegKind {
	if a&AttrNegative == 0 {
		return KindNormal
	}
	if a&AttrNXDomain != 0 {
		return KindNXDomain
	}
	return KindNXRRSet
}

type statKey struct {
	Type   dns.RecordType
	Kind   NegKind
	Bucket Bucket
}

// Stats holds the cache's emitted-only statistics counters (§6): global
// hit/miss/eviction counters plus per-RRtype counts segmented by
// (NORMAL | NXDOMAIN-negative | NXRRSET-negative) x (active | stale | ancient),
// matching qpcache.c's dns_rdatasetstats categories (SPEC_FULL §5).
type Stats struct {
	Hits         atomic.Uint64
	Misses       atomic.Uint64
	CoveringNSEC atomic.Uint64
	DeleteTTL    atomic.Uint64
	DeleteLRU    atomic.Uint64

	mu     sync.Mutex
	counts map[statKey]*atomic.Int64
}

// NewStats constructs an empty statistics block.
func NewStats() *Stats {
	return &Stats{counts: make(map[statKey]*atomic.Int64)}
}

func (s *Stats) counter(k statKey) *atomic.Int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.counts[k]
	if !ok {
		c = &atomic.Int64{}
		s.counts[k] = c
	}
	return c
}

// incr bumps the counter for a header newly entering attr.
func (s *Stats) incr(tp TypePair, attr Attr) {
	s.counter(statKey{tp.Type, statKind(tp, attr), statBucket(attr)}).Add(1)
}

// decr removes a header's contribution on destruction (§4.1 Destruction).
func (s *Stats) decr(tp TypePair, attr Attr) {
	s.counter(statKey{tp.Type, statKind(tp, attr), statBucket(attr)}).Add(-1)
}

// move relocates a header's count from its old attribute bucket to its new
// one, used by Header.Mark/Unmark (§4.1 Atomic state changes).
func (s *Stats) move(tp TypePair, old, next Attr) {
	oldKey := statKey{tp.Type, statKind(tp, old), statBucket(old)}
	newKey := statKey{tp.Type, statKind(tp, next), statBucket(next)}
	if oldKey == newKey {
		return
	}
	s.counter(oldKey).Add(-1)
	s.counter(newKey).Add(1)
}

// Snapshot returns a point-in-time copy of the per-type counters, keyed by
// (type, kind, bucket), for the dump() text form and operator inspection.
func (s *Stats) Snapshot() map[statKey]int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[statKey]int64, len(s.counts))
	for k, v := range s.counts {
		out[k] = v.Load()
	}
	return out
}
