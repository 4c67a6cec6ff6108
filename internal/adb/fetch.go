package adb

import (
	"github.com/jroosing/hydradns/internal/cache"
	"github.com/jroosing/hydradns/internal/dns"
)

// FetchOptions mirrors the resolver_createfetch options bitmask (§6).
type FetchOptions uint32

const (
	NoValidate FetchOptions = 1 << iota
	Unshared                // start-at-zone ("bailiwick") fetch
	QMinimize
	QMinSkipIP6A
	QMinStrict
)

// FetchResponse is the outcome the resolver hands back to FetchCallback
// (§4.8): exactly one of Rdataset (success), Negative (NXDOMAIN/NXRRSET),
// Alias (CNAME/DNAME target), or a non-nil Err is populated.
type FetchResponse struct {
	Fetch Fetch

	Rdataset *cache.Header
	Negative *cache.Header
	// NegativeKind distinguishes NXDOMAIN from NXRRSET when Negative is
	// set; it mirrors the result the resolver's own cache lookup produced.
	NegativeKind cache.Result
	Alias        string
	AliasTTL     int64

	// RTTMicros is the wall-clock round trip of the query that produced
	// this response (or the time spent waiting before cancellation/
	// timeout), in microseconds -- fed into the queried entries' SRTT
	// (§4.9, §5: "ADB ... observes [timeouts] ... and updat[es] SRTT/ATR
	// accordingly").
	RTTMicros int64
	// TimedOut reports whether the fetch was canceled or hit its deadline
	// rather than receiving an answer.
	TimedOut bool

	Depth int
	Err   error
}

// Fetch is an opaque handle to one outstanding upstream query, returned
// by Resolver.CreateFetch and passed back to CancelFetch/DestroyFetch.
// The adb package never inspects it.
type Fetch any

// FetchCallback is invoked exactly once when a Fetch completes or is
// canceled.
type FetchCallback func(FetchResponse)

// Resolver is the §6 resolver-fetch contract: the boundary between the
// ADB (which only needs "go get me the addresses for this name") and
// whatever iterative/forwarding logic actually walks the DNS tree. The
// out-of-scope resolver iterator implements this interface; adb only
// depends on it, never on a concrete resolver.
type Resolver interface {
	// CreateFetch starts an asynchronous fetch for qtype at owner and
	// invokes cb when it completes. depth bounds recursion for alias
	// chains.
	//
	// The ADB releases the owning name's lock around this call, so an
	// implementation that invokes cb synchronously from within CreateFetch
	// does not deadlock; cb then runs before startFetch has reacquired the
	// lock.
	CreateFetch(owner string, qtype dns.RecordType, options FetchOptions, depth int, cb FetchCallback) (Fetch, error)

	// CancelFetch requests early termination of an in-flight fetch; the
	// fetch's callback still fires, with Err set to a cancellation error.
	CancelFetch(f Fetch)

	// DestroyFetch releases a fetch handle after its callback has run.
	DestroyFetch(f Fetch)
}
