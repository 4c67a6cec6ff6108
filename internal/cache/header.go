package cache

import (
	"bytes"
	"sort"
	"sync/atomic"

	"github.com/jroosing/hydradns/internal/dns"
)

// NegativeProof is an owner name plus the negative RRset and RRSIG slab
// headers proving it, attached to a header as a noqname or closest proof
// (§3, C1).
type NegativeProof struct {
	Owner string
	RRset *Header
	Sig   *Header
}

// Header is the slab header (C1): a packed, reference-counted
// representation of one RRset plus its negative-proof attachments, TTL,
// trust and status flags.
//
// The header chain at a node is a singly-linked list modified only under
// the owning Node's spinlock (§4.2); down and next are therefore plain
// pointers rather than atomics.
type Header struct {
	TypePair TypePair
	Trust    Trust

	ttl        atomic.Int64 // absolute expiry, unix seconds
	attr       atomicAttr
	count      atomic.Uint32
	lastFailTS atomic.Int64

	// heapIndex is this header's position in the owning cache's TTL heap,
	// 0 when not indexed. Only touched while heaplock is held.
	heapIndex int

	Noqname *NegativeProof
	Closest *NegativeProof

	// down is the version chain of older headers of the same type still
	// referenced by in-flight iterators; down[0] would be the next-oldest.
	down *Header
	// next chains to the next type at the same name.
	next *Header

	// rdata is the packed, sorted, deduplicated rdata slab (§4.1).
	rdata [][]byte
	// sigRData is the attached RRSIG rdata, if any (covers == Type).
	sigRData []byte

	stats *Stats

	// memCache and memSize track this header's contribution to its
	// cache's memUsed watermark counter (§4.6 overmem eviction); both are
	// zero until the header is actually linked into a node by Cache.Add,
	// so a header built and then discarded by the replacement policy
	// (ErrUnchanged) never gets counted in the first place.
	memCache *Cache
	memSize  int64
}

// headerOverheadBytes approximates the Header struct and its pointer/slice
// scaffolding, so a header with tiny or no rdata (NXDOMAIN tombstones,
// NSEC bitmaps) still books a non-zero cost against the watermark.
const headerOverheadBytes = 96

// memSizeOf estimates h's contribution to tracked cache memory: its rdata
// slab plus any attached RRSIG, plus fixed per-header overhead.
func memSizeOf(h *Header) int64 {
	size := int64(headerOverheadBytes) + int64(len(h.sigRData))
	for _, r := range h.rdata {
		size += int64(len(r))
	}
	return size
}

// accountMemory records h as now resident in c's tracked memory usage;
// called once, when Cache.Add actually links h into a node.
func (h *Header) accountMemory(c *Cache) {
	h.memCache = c
	h.memSize = memSizeOf(h)
	c.AddMemUsed(h.memSize)
}

// NewHeader builds a slab header from a decoded rdataset: rdata is sorted
// into wire-form canonical order and deduplicated (§4.1 Construction).
func NewHeader(tp TypePair, trust Trust, ttl int64, rdata [][]byte) *Header {
	h := &Header{TypePair: tp, Trust: trust, rdata: packRData(rdata)}
	h.ttl.Store(ttl)
	return h
}

// NewNegativeHeader builds a tombstone/negative-cache slab: its type_pair
// covers the queried type and it carries NEGATIVE (plus NXDOMAIN if the
// whole name, not just the type, does not exist).
func NewNegativeHeader(queried dns.RecordType, trust Trust, ttl int64, nxdomain bool) *Header {
	tp := negativeTypePair(queried)
	if nxdomain {
		tp = NCACHEAny
	}
	h := &Header{TypePair: tp, Trust: trust}
	h.ttl.Store(ttl)
	h.attr.store(AttrNegative)
	if nxdomain {
		h.attr.mark(AttrNXDomain)
	}
	return h
}

func packRData(rdata [][]byte) [][]byte {
	if len(rdata) == 0 {
		return nil
	}
	out := make([][]byte, len(rdata))
	copy(out, rdata)
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i], out[j]) < 0 })
	dedup := out[:0]
	for i, r := range out {
		if i == 0 || !bytes.Equal(r, out[i-1]) {
			dedup = append(dedup, r)
		}
	}
	return dedup
}

// EnableStats attaches the cache's statistics block to this header and
// counts it for the first time; a header is stat-counted for its whole
// lifetime once added to a cache (§4.1).
func (h *Header) EnableStats(s *Stats) {
	h.stats = s
	h.attr.mark(AttrStatCount)
	s.incr(h.TypePair, h.attr.load())
}

// Destroy releases the header: its rdata slab, any noqname/closest proofs,
// and — atomically — its RRset-statistics contribution (§4.1 Destruction).
func (h *Header) Destroy() {
	if h.stats != nil && h.attr.load()&AttrStatCount != 0 {
		h.stats.decr(h.TypePair, h.attr.load())
	}
	if h.memCache != nil {
		h.memCache.AddMemUsed(-h.memSize)
		h.memCache = nil
		h.memSize = 0
	}
	h.rdata = nil
	h.sigRData = nil
	h.Noqname = nil
	h.Closest = nil
	h.down = nil
}

// RData returns the packed rdata slab.
func (h *Header) RData() [][]byte { return h.rdata }

// EqualRData reports whether two headers carry byte-identical rdata slabs,
// ignoring TTL — used by the replacement policy's equality check (§4.5).
func (h *Header) EqualRData(o *Header) bool {
	if len(h.rdata) != len(o.rdata) {
		return false
	}
	for i := range h.rdata {
		if !bytes.Equal(h.rdata[i], o.rdata[i]) {
			return false
		}
	}
	return true
}

// TTL returns the absolute expiry time (unix seconds).
func (h *Header) TTL() int64 { return h.ttl.Load() }

// Attr returns the current attribute bit-set.
func (h *Header) Attr() Attr { return h.attr.load() }

// Mark sets flag, adjusting RRset statistics if the header is stat-counted
// (§4.1 Atomic state changes).
func (h *Header) Mark(flag Attr) {
	old := h.attr.mark(flag)
	h.restat(old)
}

// Unmark clears flag, adjusting RRset statistics if stat-counted.
func (h *Header) Unmark(flag Attr) {
	old := h.attr.unmark(flag)
	h.restat(old)
}

func (h *Header) restat(old Attr) {
	if h.stats == nil || old&AttrStatCount == 0 {
		return
	}
	newAttr := h.attr.load()
	if old == newAttr {
		return
	}
	h.stats.move(h.TypePair, old, newAttr)
}

// SetTTL updates the header's expiry and, when indexed in a TTL heap,
// sifts it to the correct position; a TTL of 0 removes it from the heap
// (§4.1 Atomic state changes).
func (h *Header) SetTTL(newTTL int64, heap *ttlHeap) {
	h.ttl.Store(newTTL)
	if heap == nil {
		return
	}
	if newTTL <= 0 {
		heap.remove(h)
		return
	}
	heap.fix(h)
}

// IsActive reports whether the header can currently serve a positive
// lookup: not ANCIENT, not NONEXISTENT, not IGNORE (§3 invariants, §4.3).
func (h *Header) IsActive(now int64) bool {
	a := h.attr.load()
	if a&(AttrAncient|AttrNonexistent|AttrIgnore) != 0 {
		return false
	}
	return h.ttl.Load() > now
}

// IsStale reports whether the header has expired but may still be eligible
// to serve under stale-serve policy (§4.3, §4.6).
func (h *Header) IsStale(now int64) bool {
	return h.ttl.Load() <= now
}

// priorityRank implements the "priority-type ordering" used when inserting
// a header with no previous entry at its node (§4.5 step 6): SOA, A, AAAA,
// NS, NSEC, NSEC3, DS, CNAME and their RRSIGs sort to the front.
func priorityRank(tp TypePair) int {
	base := tp.Type
	if base == dns.TypeRRSIG {
		base = tp.Covers
	}
	switch base {
	case dns.TypeSOA:
		return 0
	case dns.TypeA:
		return 1
	case dns.TypeAAAA:
		return 2
	case dns.TypeNS:
		return 3
	case dns.TypeNSEC:
		return 4
	case dns.TypeNSEC3:
		return 5
	case dns.TypeDS:
		return 6
	case dns.TypeCNAME:
		return 7
	default:
		return 8
	}
}
