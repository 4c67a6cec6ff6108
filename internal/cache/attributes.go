package cache

import "sync/atomic"

// Attr is the atomic bit-set carried by every slab header (§3, C1).
type Attr uint32

const (
	AttrNonexistent Attr = 1 << iota
	AttrIgnore
	AttrNXDomain
	AttrNegative
	AttrOptOut
	AttrPrefetch
	AttrZeroTTL
	AttrStale
	AttrAncient
	AttrStaleWindow
	AttrStatCount
)

// atomicAttr wraps atomic.Uint32 with the header's mark/unmark CAS loops.
type atomicAttr struct {
	bits atomic.Uint32
}

func (a *atomicAttr) load() Attr {
	return Attr(a.bits.Load())
}

func (a *atomicAttr) has(flag Attr) bool {
	return a.load()&flag != 0
}

// mark CAS-loops to set flag, returning the previous attribute set.
func (a *atomicAttr) mark(flag Attr) Attr {
	for {
		old := a.bits.Load()
		if Attr(old)&flag != 0 {
			return Attr(old)
		}
		next := old | uint32(flag)
		if a.bits.CompareAndSwap(old, next) {
			return Attr(old)
		}
	}
}

// unmark CAS-loops to clear flag, returning the previous attribute set.
func (a *atomicAttr) unmark(flag Attr) Attr {
	for {
		old := a.bits.Load()
		if Attr(old)&flag == 0 {
			return Attr(old)
		}
		next := old &^ uint32(flag)
		if a.bits.CompareAndSwap(old, next) {
			return Attr(old)
		}
	}
}

func (a *atomicAttr) store(flag Attr) {
	a.bits.Store(uint32(flag))
}
