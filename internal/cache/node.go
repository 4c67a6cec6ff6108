package cache

import "sync"

// NSECTag records whether a node participates in the NSEC index (§3, C2).
type NSECTag uint8

const (
	NSECNone NSECTag = iota
	NSECHasNSEC
	NSECIsNSEC
)

// Node is the name node (C2): a per-owner-name container holding a
// singly-linked chain of slab headers (one per type/covers pair, newest
// versions at head) plus dead-node book-keeping.
//
// The header chain is modified only under mu, the per-node spinlock
// (§4.2, §5). extRef/intRef separate caller-held handles from internal
// liveness; a node with extRef == 0, no data and not the cache origin is
// queued for deletion (§3 Lifecycle, invariant 1).
type Node struct {
	Name string // normalized owner name

	mu     sync.Mutex
	head   *Header
	NSEC   NSECTag
	dirty  bool
	origin bool

	extRef int32
	intRef int32

	// deadNext links this node on the cache's lock-free dead-node queue.
	deadNext *Node
}

// NewNode creates a name node for owner, not yet linked into any trie.
func NewNode(owner string) *Node {
	return &Node{Name: owner}
}

// Newref increments the external reference count (§5 Ordering guarantees:
// release/acquire; the first external ref publishes a reference to the
// enclosing database — modeled here by the trie itself holding one ref
// for as long as the node is reachable).
func (n *Node) Newref() {
	n.mu.Lock()
	n.extRef++
	n.mu.Unlock()
}

// Decref releases one external reference, reporting whether the node is
// now a deletion candidate: extRef == 0, no header data, and not origin.
func (n *Node) Decref() (candidate bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.extRef--
	return n.extRef <= 0 && n.head == nil && !n.origin
}

// Empty reports whether the node currently carries no header data.
func (n *Node) Empty() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.head == nil
}

// lock/unlock expose the spinlock to the cache package's find/add paths,
// which must hold it across a full chain walk or mutation (§4.2).
func (n *Node) lock()   { n.mu.Lock() }
func (n *Node) unlock() { n.mu.Unlock() }

// chainWalk walks the header chain looking at every non-IGNORE header,
// invoking visit for each; visit returns false to stop early. Must be
// called with the node locked.
func (n *Node) chainWalk(visit func(h *Header) bool) {
	for h := n.head; h != nil; h = h.next {
		if h.attr.has(AttrIgnore) {
			continue
		}
		if !visit(h) {
			return
		}
	}
}

// clean walks the header chain and drops any NONEXISTENT, ANCIENT, or
// (STALE if serve-stale is disabled) header; the down version chain is
// always freed regardless (§4.2). Must be called with the node locked.
// Returns the number of headers removed.
func (n *Node) clean(now int64, serveStaleEnabled bool) int {
	removed := 0
	var prev *Header
	cur := n.head
	for cur != nil {
		next := cur.next
		// The down chain is never referenced outside an in-flight
		// iterator snapshot taken under this same lock, so it is always
		// safe to drop here.
		for d := cur.down; d != nil; {
			dn := d.down
			d.Destroy()
			d = dn
		}
		cur.down = nil

		drop := cur.attr.has(AttrNonexistent) || cur.attr.has(AttrAncient)
		if !drop && cur.attr.has(AttrStale) && !serveStaleEnabled {
			drop = true
		}
		if drop {
			if prev == nil {
				n.head = next
			} else {
				prev.next = next
			}
			cur.Destroy()
			removed++
			cur = next
			continue
		}
		prev = cur
		cur = next
	}
	if removed > 0 {
		n.dirty = true
	}
	return removed
}

// checkStaleHeader identifies whether hdr is stale-and-not-serve-stale-
// eligible; on a true result it may promote a just-expired header to
// ANCIENT (§4.3 step 4). Must be called with the node locked.
func checkStaleHeader(hdr *Header, now, serveStaleTTL int64, staleOK bool) (stale bool) {
	if hdr.TTL() > now {
		return false
	}
	if staleOK && hdr.TTL()+serveStaleTTL > now {
		hdr.attr.mark(AttrStale)
		return false
	}
	hdr.Mark(AttrAncient)
	return true
}
