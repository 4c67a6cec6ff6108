package adb

import (
	"sync/atomic"

	"github.com/google/uuid"
)

// FindOptions is the §4.7 createfind options bitmask.
type FindOptions uint32

const (
	WantINET FindOptions = 1 << iota
	WantINET6
	// WantEvent requests that CreateFind link an unsatisfied, still-
	// pending find onto the name's wait-list so a later fetch completion
	// fires its callback, rather than marking the event already sent
	// (§4.7 step 9).
	WantEvent
	StartAtZone
	AvoidFetches
	NoFetch
)

func (o FindOptions) has(f FindOptions) bool { return o&f != 0 }

// Callback is invoked at most once per Find. It fires only for a find
// that CreateFind linked onto the name's wait-list (WantEvent set and a
// fetch still pending), when that fetch completes or on cancellation or
// shutdown. A find answered at once by CreateFind never has its callback
// invoked.
type Callback func(*Find)

// Find is a single outstanding address lookup against the ADB. It is
// read-only to callers once its result has been delivered; the
// eventSent bit guards against the callback firing twice (§4.7).
type Find struct {
	// ID is a random identifier assigned by NewFind; it has no bearing on
	// lookup semantics.
	ID      uuid.UUID
	Name    string
	Options FindOptions
	cbarg   any
	cb      Callback

	eventSent atomic.Bool

	V4Status FamilyStatus
	V6Status FamilyStatus

	Result []*AddrInfo

	Alias string
}

// NewFind constructs a find handle for name under options.
func NewFind(name string, options FindOptions, cb Callback, cbarg any) *Find {
	return &Find{ID: uuid.New(), Name: name, Options: options, cb: cb, cbarg: cbarg}
}

// CBArg returns the opaque argument supplied to CreateFind, for the
// callback to recover its caller-side context.
func (f *Find) CBArg() any { return f.cbarg }

// fire delivers the completion callback exactly once.
func (f *Find) fire() {
	if f.eventSent.CompareAndSwap(false, true) {
		if f.cb != nil {
			f.cb(f)
		}
	}
}

// done reports whether the find's callback has already fired.
func (f *Find) done() bool { return f.eventSent.Load() }
