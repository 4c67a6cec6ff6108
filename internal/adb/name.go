package adb

import (
	"sync"
)

// fetchState tracks a single in-flight upstream A or AAAA fetch for one
// ADB name. CreateFind calls that land while a fetch is already in
// progress skip starting a second one and instead join the name's
// generic wait-list (n.waiting), which FetchCallback drains on
// completion -- this is the fetch-coalescing half of scenario S5.
type fetchState struct {
	inProgress bool
}

// Name is the ADB name (C5): the owner-name side of the address
// database, holding the v4/v6 namehook lists (or an in-flight fetch, the
// two are mutually exclusive per family), alias-target info, and the
// finds currently waiting on this name.
type Name struct {
	mu sync.Mutex

	Target     string
	StartAtZone bool // part of the hash key alongside Target

	v4Expire int64
	v6Expire int64

	v4Hooks namehookList
	v6Hooks namehookList

	fetchV4 fetchState
	fetchV6 fetchState

	aliasTarget string
	aliasExpire int64

	v4Status FamilyStatus
	v6Status FamilyStatus

	waiting []*Find

	lastUsed int64
	dead     bool
}

// NewName constructs an ADB name entry. startAtZone records whether this
// lookup began at the zone cut (part of the hash key per §3).
func NewName(target string, startAtZone bool) *Name {
	return &Name{Target: target, StartAtZone: startAtZone}
}

func (n *Name) lock()   { n.mu.Lock() }
func (n *Name) unlock() { n.mu.Unlock() }

// Expired reports whether both address families (and any alias) have
// passed their expiry as of now.
func (n *Name) Expired(now int64) bool {
	if n.aliasTarget != "" && n.aliasExpire > now {
		return false
	}
	if n.v4Expire > now || n.v6Expire > now {
		return false
	}
	return true
}

// HasFetchInProgress reports whether family has a fetch outstanding.
// Invariant: a family never has both a populated namehook list and an
// in-flight fetch at the same time.
func (n *Name) HasFetchInProgress(v6 bool) bool {
	if v6 {
		return n.fetchV6.inProgress
	}
	return n.fetchV4.inProgress
}

// BeginFetch marks family as having an outstanding fetch and clears any
// stale namehooks for that family (they're being refreshed).
func (n *Name) BeginFetch(v6 bool) {
	if v6 {
		n.fetchV6.inProgress = true
		n.v6Hooks.clear()
		return
	}
	n.fetchV4.inProgress = true
	n.v4Hooks.clear()
}

// CompleteFetch clears the in-flight marker for family.
func (n *Name) CompleteFetch(v6 bool) {
	if v6 {
		n.fetchV6 = fetchState{}
		return
	}
	n.fetchV4 = fetchState{}
}

// AddAddress records a resolved address for family by hanging a fresh
// namehook off entry, and advances the family's expiry.
func (n *Name) AddAddress(v6 bool, e *Entry, expire int64) {
	if v6 {
		n.v6Hooks.push(e)
		n.v6Expire = expire
		n.v6Status = StatusOK
		return
	}
	n.v4Hooks.push(e)
	n.v4Expire = expire
	n.v4Status = StatusOK
}

// SetStatus records a non-OK outcome (NXDOMAIN, NXRRSET, FAILURE, ...)
// for family, to be copied into any find awaiting this name.
func (n *Name) SetStatus(v6 bool, status FamilyStatus, expire int64) {
	if v6 {
		n.v6Status = status
		n.v6Expire = expire
		return
	}
	n.v4Status = status
	n.v4Expire = expire
}

// SetAlias records that Target is a CNAME/DNAME pointing at target,
// valid until expire.
func (n *Name) SetAlias(target string, expire int64) {
	n.aliasTarget = target
	n.aliasExpire = expire
}

// Alias returns the current alias target and whether it is still valid.
func (n *Name) Alias(now int64) (string, bool) {
	if n.aliasTarget == "" || n.aliasExpire <= now {
		return "", false
	}
	return n.aliasTarget, true
}

// Touch updates the last-used timestamp. Nothing in the package reads it;
// the name table has no eviction.
func (n *Name) Touch(now int64) { n.lastUsed = now }

// MarkDead flags the name as scheduled for removal.
func (n *Name) MarkDead() { n.dead = true }

// Dead reports whether the name has been marked for removal.
func (n *Name) Dead() bool { return n.dead }
