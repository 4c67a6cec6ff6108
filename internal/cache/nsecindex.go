package cache

import (
	"sort"
	"sync"
	"sync/atomic"
)

// canonicalKey produces a comparable key under DNSSEC canonical name
// ordering (RFC 4034 §6.1): compare label-by-label from the rightmost
// (most significant) label down, case-insensitively. Reversed labels
// joined with a separator that never appears in a label sort correctly
// with ordinary byte comparison.
func canonicalKey(name string) string {
	labels := reversedLabels(name)
	if len(labels) == 0 {
		return ""
	}
	out := labels[0]
	for _, l := range labels[1:] {
		out += "\x00" + l
	}
	return out
}

type nsecEntry struct {
	key  string
	name string
}

// nsecIndexSnapshot is an immutable sorted-by-canonical-order slice of
// NSEC-owning names, published behind an atomic pointer.
//
// The spec models this as a second trie supporting predecessor lookup
// (§3, §4.4). A sorted slice with binary search gives the same predecessor
// semantics with far less code; NSEC density in a resolver cache is low
// enough that whole-slice copy-on-write is cheap (documented trade-off,
// see DESIGN.md).
type nsecIndex struct {
	snap atomic.Pointer[[]nsecEntry]
	mu   sync.Mutex
}

func newNSECIndex() *nsecIndex {
	idx := &nsecIndex{}
	empty := []nsecEntry{}
	idx.snap.Store(&empty)
	return idx
}

func (idx *nsecIndex) insert(name string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	old := *idx.snap.Load()
	key := canonicalKey(name)
	i := sort.Search(len(old), func(i int) bool { return old[i].key >= key })
	if i < len(old) && old[i].key == key {
		return
	}
	next := make([]nsecEntry, len(old)+1)
	copy(next, old[:i])
	next[i] = nsecEntry{key: key, name: name}
	copy(next[i+1:], old[i:])
	idx.snap.Store(&next)
}

func (idx *nsecIndex) remove(name string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	old := *idx.snap.Load()
	key := canonicalKey(name)
	i := sort.Search(len(old), func(i int) bool { return old[i].key >= key })
	if i >= len(old) || old[i].key != key {
		return
	}
	next := make([]nsecEntry, 0, len(old)-1)
	next = append(next, old[:i]...)
	next = append(next, old[i+1:]...)
	idx.snap.Store(&next)
}

// predecessor returns the owner name of the greatest NSEC-owning name that
// sorts strictly before name under canonical ordering (§4.4), wrapping
// around to the last entry if name sorts before everything (the "zone
// apex" case of NSEC ring ordering).
func (idx *nsecIndex) predecessor(name string) (string, bool) {
	snap := *idx.snap.Load()
	if len(snap) == 0 {
		return "", false
	}
	key := canonicalKey(name)
	i := sort.Search(len(snap), func(i int) bool { return snap[i].key >= key })
	if i == 0 {
		return snap[len(snap)-1].name, true
	}
	return snap[i-1].name, true
}
