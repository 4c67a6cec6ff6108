package cache

import "sync/atomic"

// deadQueue is the wait-free multi-producer/single-consumer queue of dead
// nodes (§4.6 Dead-node reclamation): nodes decremented to zero with no
// data enqueue themselves via CAS; the reclaim pass (the single consumer,
// run inside a trie write transaction) splices off the whole list at once.
type deadQueue struct {
	head atomic.Pointer[Node]
}

// push enqueues n via a Treiber-stack CAS loop. Returns true if this push
// transitioned the queue from empty to non-empty, so the caller can decide
// whether to schedule a reclaim pass (mirroring "the first enqueue
// schedules an RCU callback").
func (q *deadQueue) push(n *Node) (firstEnqueue bool) {
	for {
		old := q.head.Load()
		n.deadNext = old
		if q.head.CompareAndSwap(old, n) {
			return old == nil
		}
	}
}

// drain atomically takes the whole list, for the single-consumer reclaim
// pass, and returns it as a slice in LIFO order (most recently pushed first) —
// reclamation order is irrelevant since every node is independently dead.
func (q *deadQueue) drain() []*Node {
	head := q.head.Swap(nil)
	var out []*Node
	for n := head; n != nil; {
		next := n.deadNext
		n.deadNext = nil
		out = append(out, n)
		n = next
	}
	return out
}
