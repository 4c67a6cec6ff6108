package cache

import (
	"fmt"
	"log/slog"
	"math/rand"
	"sync/atomic"

	"github.com/jroosing/hydradns/internal/dns"
)

// Default batch size for the TTL-driven expiry tick (§4.6).
const defaultExpireBatch = 10

// overmemForceFraction is the per-pass fraction of still-live names
// force-expired while over the high-water mark (§4.6: "a random 10% per
// pass").
const overmemForceFraction = 0.10

// Cache is the answer cache (C3): a concurrent trie of name nodes with an
// auxiliary NSEC trie for covering-NSEC lookup, a TTL heap for expiry,
// RRset statistics, and dead-node reclamation.
type Cache struct {
	trie  *Trie
	nsec  *nsecIndex
	heap  *ttlHeap
	stats *Stats
	dead  deadQueue
	log   *slog.Logger

	serveStaleTTL     atomic.Int64
	serveStaleRefresh atomic.Int64
	highWater         atomic.Uint64
	lowWater          atomic.Uint64
	memUsed           atomic.Int64

	overmemCleaning atomic.Bool
	shuttingDown    atomic.Bool
}

// New constructs an empty answer cache. logger defaults to slog.Default()
// when nil, matching the teacher's construction-time logger convention.
func New(logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		trie:  NewTrie(),
		nsec:  newNSECIndex(),
		heap:  newTTLHeap(),
		stats: NewStats(),
		log:   logger,
	}
}

// Stats exposes the cache's emitted statistics counters (§6).
func (c *Cache) Stats() *Stats { return c.stats }

// SetCacheSize implements setadbsize's cache-side counterpart: high-water
// is bytes-bytes/8 and low-water is bytes-bytes/4; zero disables the
// watermark (§6).
func (c *Cache) SetCacheSize(bytes uint64) {
	if bytes == 0 {
		c.highWater.Store(0)
		c.lowWater.Store(0)
		return
	}
	c.highWater.Store(bytes - bytes/8)
	c.lowWater.Store(bytes - bytes/4)
}

// SetWaterMarks sets the overmem high/low watermarks directly in bytes,
// for callers (internal/config) that surface them as independent
// tunables rather than deriving both from a single cache-size value.
func (c *Cache) SetWaterMarks(high, low uint64) {
	c.highWater.Store(high)
	c.lowWater.Store(low)
}

// SetServeStaleTTL sets the serve-stale window (§6 setservestalettl).
func (c *Cache) SetServeStaleTTL(seconds int64) { c.serveStaleTTL.Store(seconds) }

// SetServeStaleRefresh sets the stale-refresh bypass interval
// (§6 setservestalerefresh).
func (c *Cache) SetServeStaleRefresh(seconds int64) { c.serveStaleRefresh.Store(seconds) }

// AddMemUsed adjusts the tracked memory usage, e.g. after importing a
// slab; callers add on construction and subtract on Header.Destroy.
func (c *Cache) AddMemUsed(delta int64) { c.memUsed.Add(delta) }

func (c *Cache) overHighWater() bool {
	hw := c.highWater.Load()
	return hw != 0 && uint64(c.memUsed.Load()) > hw
}

func (c *Cache) underLowWater() bool {
	lw := c.lowWater.Load()
	return lw == 0 || uint64(c.memUsed.Load()) <= lw
}

// Shutdown marks the cache as shutting down; subsequent Find/Add calls
// return ErrShuttingDown (§7).
func (c *Cache) Shutdown() { c.shuttingDown.Store(true) }

// Find implements the §4.3 lookup algorithm in a single (here: lock-free
// read over the published trie root, no RCU epoch needed because Go's GC
// already keeps superseded roots alive for any reader holding them)
// read section.
func (c *Cache) Find(name string, qtype dns.RecordType, now int64, opts FindOptions) (FindResult, error) {
	if c.shuttingDown.Load() {
		return FindResult{}, ErrShuttingDown
	}

	node, ancestors, exact := c.trie.Lookup(name)

	// Step 2: walk ancestors for an active DNAME.
	for _, anc := range ancestors {
		if fr, ok := c.activeDNAME(anc, now, opts); ok {
			return fr, nil
		}
	}

	if !exact {
		return c.partialMatch(name, ancestors, now, opts)
	}

	fr, empty := c.lookupExact(node, qtype, now, opts)
	if empty {
		return c.partialMatch(name, ancestors, now, opts)
	}
	if fr.Result == NotFound {
		c.stats.Misses.Add(1)
		return c.partialMatch(name, ancestors, now, opts)
	}
	c.stats.Hits.Add(1)
	return fr, nil
}

// activeDNAME looks for an active DNAME header at an ancestor (§4.3
// step 2). Every ancestor is checked, with no delegation flag involved;
// only headers of type DNAME match, so an RRSIG(DNAME) alone is not
// considered.
func (c *Cache) activeDNAME(n *Node, now int64, opts FindOptions) (FindResult, bool) {
	n.lock()
	defer n.unlock()
	var found *Header
	n.chainWalk(func(h *Header) bool {
		if h.TypePair.Type == dns.TypeDNAME && h.IsActive(now) {
			found = h
			return false
		}
		return true
	})
	if found == nil {
		return FindResult{}, false
	}
	if !opts.has(PendingOK) && found.attr.has(AttrPrefetch) {
		return FindResult{}, false
	}
	n.Newref()
	return FindResult{Result: DNAME, FoundName: n.Name, Rdataset: found, node: n}, true
}

// partialMatch implements §4.3 steps 3 and 5-6's fallback: optionally a
// covering NSEC, else the deepest zone cut (first ancestor, walking from
// the leaf back up, with an active NS RRset).
func (c *Cache) partialMatch(name string, ancestors []*Node, now int64, opts FindOptions) (FindResult, error) {
	if opts.has(CoveringNSEC) {
		if fr, ok := c.coveringNSEC(name, now); ok {
			c.stats.CoveringNSEC.Add(1)
			return fr, nil
		}
	}
	for i := len(ancestors) - 1; i >= 0; i-- {
		anc := ancestors[i]
		anc.lock()
		var ns *Header
		anc.chainWalk(func(h *Header) bool {
			if h.TypePair.Type == dns.TypeNS && h.IsActive(now) {
				ns = h
				return false
			}
			return true
		})
		anc.unlock()
		if ns != nil {
			anc.Newref()
			return FindResult{Result: Delegation, FoundName: anc.Name, Rdataset: ns, node: anc}, nil
		}
	}
	if len(ancestors) > 0 {
		last := ancestors[len(ancestors)-1]
		last.Newref()
		return FindResult{Result: PartialMatch, FoundName: last.Name, node: last}, nil
	}
	return FindResult{Result: NotFound}, ErrNotFound
}

// coveringNSEC implements §4.4: find the NSEC predecessor of name, fetch
// its node in the main trie, and read its NSEC + RRSIG(NSEC) headers.
func (c *Cache) coveringNSEC(name string, now int64) (FindResult, bool) {
	pred, ok := c.nsec.predecessor(name)
	if !ok {
		return FindResult{}, false
	}
	node, _, exact := c.trie.Lookup(pred)
	if !exact {
		return FindResult{}, false
	}
	node.lock()
	defer node.unlock()
	var nsecHdr, sigHdr *Header
	node.chainWalk(func(h *Header) bool {
		if h.TypePair.Type == dns.TypeNSEC && h.IsActive(now) {
			nsecHdr = h
		}
		if h.TypePair == rrsigTypePair(dns.TypeNSEC) && h.IsActive(now) {
			sigHdr = h
		}
		return nsecHdr == nil || sigHdr == nil
	})
	// §4.4 requires the covering NSEC and its RRSIG(NSEC) to both be
	// present and active; a bare NSEC with no signature can't back an
	// aggressive-negative-caching answer.
	if nsecHdr == nil || sigHdr == nil {
		return FindResult{}, false
	}
	node.Newref()
	return FindResult{
		Result:      CoveringNSECResult,
		FoundName:   pred,
		Rdataset:    nsecHdr,
		SigRdataset: sigHdr,
		node:        node,
	}, true
}

// lookupExact implements §4.3 step 4 and 6-7: categorize the header chain
// in one pass, apply trust/option filters, and map to a Result. The
// second return value reports "empty_node" (step 5): no active header at
// all, meaning the caller should fall back to partialMatch.
func (c *Cache) lookupExact(n *Node, qtype dns.RecordType, now int64, opts FindOptions) (FindResult, bool) {
	n.lock()
	defer n.unlock()

	staleOK := opts.has(StaleOK) || opts.has(StaleEnabled) || opts.has(StaleTimeout)
	var found, foundSig, nsHeader *Header
	var cnameHeader *Header
	sawAny := false

	n.chainWalk(func(h *Header) bool {
		if checkStaleHeader(h, now, c.serveStaleTTL.Load(), staleOK) {
			return true // ANCIENT now; keep scanning the rest of the chain
		}
		active := h.IsActive(now) || (staleOK && h.IsStale(now))
		if !active {
			return true
		}
		sawAny = true

		switch {
		case h.TypePair == NCACHEAny:
			found = h
		case h.TypePair.Type == qtype && h.TypePair.Covers == 0:
			found = h
		case h.TypePair.Type == dns.TypeANY && h.TypePair.Covers == qtype:
			found = h // negative covering the queried type
		case h.TypePair == rrsigTypePair(qtype):
			foundSig = h
		case h.TypePair.Type == dns.TypeNS:
			nsHeader = h
		case h.TypePair.Type == dns.TypeCNAME && qtype != dns.TypeCNAME:
			cnameHeader = h
		}
		return true
	})

	if !sawAny {
		return FindResult{}, true
	}

	if found == nil && cnameHeader != nil {
		if !passesTrustFilter(cnameHeader, opts) {
			return FindResult{}, false
		}
		n.Newref()
		return FindResult{Result: CNAME, FoundName: n.Name, Rdataset: cnameHeader, node: n}, false
	}
	if found == nil && nsHeader != nil {
		n.Newref()
		return FindResult{Result: Delegation, FoundName: n.Name, Rdataset: nsHeader, node: n}, false
	}
	if found == nil {
		return FindResult{Result: NotFound}, false
	}

	if !passesTrustFilter(found, opts) {
		return FindResult{}, false
	}

	if found.attr.has(AttrNegative) {
		n.Newref()
		if found.attr.has(AttrNXDomain) {
			return FindResult{Result: NCacheNXDomain, FoundName: n.Name, Rdataset: found, SigRdataset: foundSig, node: n}, false
		}
		return FindResult{Result: NCacheNXRRSet, FoundName: n.Name, Rdataset: found, SigRdataset: foundSig, node: n}, false
	}

	found.count.Add(1) // round-robin rotation marker (§3 C1 count)
	n.Newref()
	return FindResult{Result: Success, FoundName: n.Name, Rdataset: found, SigRdataset: foundSig, node: n}, false
}

// passesTrustFilter applies GLUEOK/ADDITIONALOK (§4.3 step 6): anything
// above glue trust always passes.
func passesTrustFilter(h *Header, opts FindOptions) bool {
	switch h.Trust {
	case TrustAdditional:
		return opts.has(AdditionalOK)
	case TrustGlue:
		return opts.has(GlueOK) || opts.has(AdditionalOK)
	default:
		return true
	}
}

// Add implements the §4.5 replacement policy under the node's spinlock.
func (c *Cache) Add(name string, newHeader *Header, opts FindOptions, now int64) error {
	if c.shuttingDown.Load() {
		return ErrShuttingDown
	}

	node, _, exact := c.trie.Lookup(name)
	if !exact {
		node = NewNode(name)
		c.trie.Insert(name, node)
	}

	node.lock()
	defer node.unlock()

	if newHeader.TypePair == NCACHEAny {
		node.chainWalk(func(h *Header) bool {
			h.Mark(AttrAncient)
			return true
		})
	}

	var predecessor *Header
	var prevLink **Header
	link := &node.head
	for *link != nil {
		h := *link
		if !h.attr.has(AttrIgnore) && (h.TypePair == newHeader.TypePair ||
			h.TypePair == negativeTypePair(newHeader.TypePair.Type)) {
			predecessor = h
			prevLink = link
			break
		}
		link = &h.next
	}

	if predecessor != nil {
		if predecessor.attr.has(AttrNonexistent) && newHeader.attr.has(AttrNonexistent) {
			newHeader.Destroy()
			return ErrUnchanged
		}
		activeOrNonexistent := predecessor.IsActive(now) || predecessor.attr.has(AttrNonexistent)
		if newHeader.Trust < predecessor.Trust && activeOrNonexistent {
			newHeader.Destroy()
			return ErrUnchanged
		}
		if isCriticalType(predecessor.TypePair.Type) && predecessor.IsActive(now) &&
			newHeader.Trust >= predecessor.Trust && predecessor.EqualRData(newHeader) {
			smaller := predecessor.TTL()
			if newHeader.TTL() < smaller {
				smaller = newHeader.TTL()
			}
			predecessor.SetTTL(smaller, c.heap)
			predecessor.Noqname = mergeProof(predecessor.Noqname, newHeader.Noqname)
			predecessor.Closest = mergeProof(predecessor.Closest, newHeader.Closest)
			newHeader.Destroy()
			return ErrUnchanged
		}
		if predecessor.TypePair.Type == dns.TypeNS && newHeader.Trust <= predecessor.Trust {
			if newHeader.TTL() > predecessor.TTL() {
				newHeader.ttl.Store(predecessor.TTL())
			}
		}

		newHeader.next = predecessor.next
		newHeader.down = predecessor
		predecessor.Mark(AttrAncient)
		if sig := findMatchingSig(node, predecessor.TypePair); sig != nil {
			sig.Mark(AttrAncient)
		}
		*prevLink = newHeader
		node.dirty = true
	} else {
		insertByPriority(node, newHeader)
	}

	newHeader.EnableStats(c.stats)
	newHeader.accountMemory(c)
	c.heap.push(newHeader)
	if newHeader.TypePair.Type == dns.TypeNSEC {
		c.nsec.insert(name)
		node.NSEC = NSECHasNSEC
	}
	return nil
}

func isCriticalType(t dns.RecordType) bool {
	switch t {
	case dns.TypeNS, dns.TypeA, dns.TypeAAAA, dns.TypeDS, dns.TypeRRSIG:
		return true
	default:
		return false
	}
}

func findMatchingSig(n *Node, covers TypePair) *Header {
	var sig *Header
	n.chainWalk(func(h *Header) bool {
		if h.TypePair == rrsigTypePair(covers.Type) {
			sig = h
			return false
		}
		return true
	})
	return sig
}

func mergeProof(old, next *NegativeProof) *NegativeProof {
	if next != nil {
		return next
	}
	return old
}

func insertByPriority(n *Node, h *Header) {
	rank := priorityRank(h.TypePair)
	if n.head == nil || priorityRank(n.head.TypePair) > rank {
		h.next = n.head
		n.head = h
		return
	}
	cur := n.head
	for cur.next != nil && priorityRank(cur.next.TypePair) <= rank {
		cur = cur.next
	}
	h.next = cur.next
	cur.next = h
}

// ExpireTick implements the TTL-driven half of §4.6: pop up to a small
// batch of headers whose TTL has passed and mark them ANCIENT. It does not
// touch or reclaim the headers' nodes; that is left to Node.clean and
// Reclaim.
func (c *Cache) ExpireTick(now int64) int {
	expired := c.heap.popExpired(now, defaultExpireBatch)
	for _, h := range expired {
		h.SetTTL(0, nil)
		h.Mark(AttrAncient)
		c.stats.DeleteTTL.Add(1)
	}
	return len(expired)
}

// OvermemClean implements the overmem half of §4.6: a single-flight pass
// (guarded by overmemCleaning) that expires naturally, then, if still
// over the high-water mark, force-expires a random ~10% of live names
// per pass until under the low-water mark.
func (c *Cache) OvermemClean(now int64) {
	if !c.overmemCleaning.CompareAndSwap(false, true) {
		return
	}
	defer c.overmemCleaning.Store(false)

	if !c.overHighWater() {
		return
	}
	c.log.Info("cache overmem cleaning started")

	for c.overHighWater() || !c.underLowWater() {
		progressed := false
		c.trie.Walk(func(n *Node) {
			n.lock()
			removed := n.clean(now, c.serveStaleTTL.Load() > 0)
			n.unlock()
			if removed > 0 {
				progressed = true
			}
		})
		if c.underLowWater() {
			break
		}
		if !progressed {
			c.forceEvictRandom(now, overmemForceFraction)
		}
	}
	c.log.Info("cache overmem cleaning finished")
}

func (c *Cache) forceEvictRandom(now int64, fraction float64) {
	var names []string
	c.trie.Walk(func(n *Node) { names = append(names, n.Name) })
	for _, name := range names {
		if rand.Float64() > fraction {
			continue
		}
		node, _, exact := c.trie.Lookup(name)
		if !exact {
			continue
		}
		node.lock()
		node.chainWalk(func(h *Header) bool {
			h.Mark(AttrAncient)
			c.stats.DeleteLRU.Add(1)
			return true
		})
		node.unlock()
		if c.underLowWater() {
			return
		}
	}
}

// Reclaim drains the dead-node queue and physically deletes each node
// from the trie and NSEC index, mirroring the RCU callback described in
// §4.6: "splices off the list and physically deletes each node".
func (c *Cache) Reclaim() int {
	dead := c.dead.drain()
	for _, n := range dead {
		c.trie.Delete(n.Name)
		if n.NSEC != NSECNone {
			c.nsec.remove(n.Name)
		}
	}
	return len(dead)
}

// enqueueDead pushes n onto the dead-node queue if Decref reported it as a
// reclaim candidate.
func (c *Cache) enqueueDead(n *Node) {
	c.dead.push(n)
}

// Release drops the external reference a FindResult holds on its
// answering node (§4.6), queuing the node for the next Reclaim pass if
// this was the last reference and it carries no data. Safe to call on a
// zero-value FindResult (e.g. from a NotFound lookup).
func (c *Cache) Release(fr FindResult) {
	if fr.node == nil {
		return
	}
	if fr.node.Decref() {
		c.enqueueDead(fr.node)
	}
}

// String implements a compact operator-facing identity for log lines.
func (c *Cache) String() string {
	return fmt.Sprintf("cache(mem=%d hw=%d lw=%d)", c.memUsed.Load(), c.highWater.Load(), c.lowWater.Load())
}
