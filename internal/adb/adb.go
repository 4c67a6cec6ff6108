package adb

import (
	"log/slog"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jroosing/hydradns/internal/cache"
	"github.com/jroosing/hydradns/internal/dns"
	"github.com/jroosing/hydradns/internal/loop"
)

// ADB_CACHE_MINIMUM / ADB_CACHE_MAXIMUM bound every TTL the address
// database stores, per spec §8 boundary #10 and adb.c.
const (
	CacheMinimum int64 = 10
	CacheMaximum int64 = 86400

	// DefaultPort is the port recorded on addrinfo views when the
	// caller has no port preference (plain recursive/authoritative
	// lookups always use 53).
	DefaultPort uint16 = 53

	// noPoundTTL is the short re-expiry applied to a shallow (depth<=1)
	// fetch failure, so the ADB doesn't immediately retry a server that
	// just failed ("don't pound the server", §4.8 step 5).
	noPoundTTL int64 = 10
)

func clampTTL(ttl int64) int64 {
	if ttl < CacheMinimum {
		return CacheMinimum
	}
	if ttl > CacheMaximum {
		return CacheMaximum
	}
	return ttl
}

type nameKey struct {
	name        string
	startAtZone bool
}

// ADB is the address database (C5): a name table and an entry table,
// coordinating in-flight A/AAAA fetches and serving addrinfo views with
// live health metrics to resolver callers.
//
// The spec models both tables as RCU-published hash tables. This repo
// uses a plain map guarded by a single RWMutex instead: the ADB's read
// path (CreateFind) already takes the per-name lock to mutate the name,
// so a shared map lock adds one short critical section per call without
// changing the lock-ordering discipline (tree < name < find < entry) --
// "tree" here is this map lock. A sharded or sync.Map-based table would
// reduce that contention further; left as a scaling follow-up.
type ADB struct {
	log      *slog.Logger
	cache    *cache.Cache
	resolver Resolver
	loop     *loop.Loop
	cfg      QuotaConfig

	mu      sync.RWMutex
	names   map[nameKey]*Name
	entries map[netip.AddrPort]*Entry

	shuttingDown atomic.Bool
}

// New constructs an ADB. resolver and l may be nil in tests that only
// exercise cache-backed lookups (no fetches will ever be started).
func New(c *cache.Cache, resolver Resolver, l *loop.Loop, cfg QuotaConfig, logger *slog.Logger) *ADB {
	if logger == nil {
		logger = slog.Default()
	}
	return &ADB{
		log:      logger,
		cache:    c,
		resolver: resolver,
		loop:     l,
		cfg:      cfg,
		names:    make(map[nameKey]*Name),
		entries:  make(map[netip.AddrPort]*Entry),
	}
}

// Stats is a point-in-time snapshot of the ADB's table sizes, for
// operator introspection (spec §9).
type Stats struct {
	Names   int
	Entries int
}

// Stats returns the current name/entry table sizes.
func (a *ADB) Stats() Stats {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return Stats{Names: len(a.names), Entries: len(a.entries)}
}

// Shutdown marks the ADB as shutting down; subsequent CreateFind calls
// return ErrShuttingDown and every outstanding find is canceled.
func (a *ADB) Shutdown() {
	if !a.shuttingDown.CompareAndSwap(false, true) {
		return
	}
	a.mu.Lock()
	names := make([]*Name, 0, len(a.names))
	for _, n := range a.names {
		names = append(names, n)
	}
	a.mu.Unlock()

	for _, n := range names {
		n.lock()
		waiting := n.waiting
		n.waiting = nil
		n.MarkDead()
		n.unlock()
		for _, f := range waiting {
			f.V4Status, f.V6Status = StatusCanceled, StatusCanceled
			a.dispatch(f)
		}
	}
}

func (a *ADB) getOrCreateName(key nameKey) *Name {
	a.mu.RLock()
	n, ok := a.names[key]
	a.mu.RUnlock()
	if ok {
		return n
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if n, ok = a.names[key]; ok {
		return n
	}
	n = NewName(key.name, key.startAtZone)
	a.names[key] = n
	return n
}

func (a *ADB) getOrCreateEntry(addr netip.AddrPort) *Entry {
	a.mu.RLock()
	e, ok := a.entries[addr]
	a.mu.RUnlock()
	if ok {
		return e
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if e, ok = a.entries[addr]; ok {
		return e
	}
	e = NewEntry(addr, a.cfg)
	a.entries[addr] = e
	return e
}

// CreateFind implements spec §4.7 steps 1-10.
func (a *ADB) CreateFind(name string, qtypeHint dns.RecordType, options FindOptions, now int64, cb Callback, cbarg any) (*Find, error) {
	if a.shuttingDown.Load() {
		return nil, ErrShuttingDown
	}

	f := NewFind(name, options, cb, cbarg)

	key := nameKey{name: name, startAtZone: options.has(StartAtZone)}
	n := a.getOrCreateName(key)

	n.lock()
	defer n.unlock()

	// step 4: expire families past their deadline with no active fetch.
	// staleV4/staleV6 snapshot the addresses being invalidated here -- the
	// last point they're reachable before a refresh fetch (if one starts
	// below) clears the field for good -- so the fetch's outcome can still
	// update their SRTT/ATR once it completes (§4.9, §5).
	var staleV4, staleV6 []*Entry
	if n.v4Expire <= now && !n.fetchV4.inProgress {
		staleV4 = n.v4Hooks.entriesSnapshot()
		n.v4Hooks.clear()
	}
	if n.v6Expire <= now && !n.fetchV6.inProgress {
		staleV6 = n.v6Hooks.entriesSnapshot()
		n.v6Hooks.clear()
	}
	if n.aliasTarget != "" && n.aliasExpire <= now {
		n.aliasTarget = ""
	}

	// step 5: unexpired alias short-circuits everything else.
	if target, ok := n.Alias(now); ok {
		f.Alias = target
		f.eventSent.Store(true)
		return f, ErrAlias
	}

	wantV4 := options.has(WantINET)
	wantV6 := options.has(WantINET6)

	needFetchV4 := wantV4 && len(n.v4Hooks.entriesSnapshot()) == 0 && !n.fetchV4.inProgress
	needFetchV6 := wantV6 && len(n.v6Hooks.entriesSnapshot()) == 0 && !n.fetchV6.inProgress

	// step 6: consult the answer cache for any family we don't already
	// have namehooks or a fetch for.
	if needFetchV4 {
		if res, err := a.dbFindName(name, dns.TypeA, now); err == nil {
			switch res.Result {
			case cache.NCacheNXDomain:
				n.SetStatus(false, StatusNXDomain, res.Rdataset.TTL())
				needFetchV4 = false
			case cache.NCacheNXRRSet:
				n.SetStatus(false, StatusNXRRSet, res.Rdataset.TTL())
				needFetchV4 = false
			case cache.Success:
				a.importRdataset(n, false, res.Rdataset, now)
				needFetchV4 = false
			case cache.CNAME:
				n.SetAlias(string(res.Rdataset.RData()[0]), res.Rdataset.TTL())
				needFetchV4 = false
			}
			a.cache.Release(res)
		}
	}
	if needFetchV6 {
		if res, err := a.dbFindName(name, dns.TypeAAAA, now); err == nil {
			switch res.Result {
			case cache.NCacheNXDomain:
				n.SetStatus(true, StatusNXDomain, res.Rdataset.TTL())
				needFetchV6 = false
			case cache.NCacheNXRRSet:
				n.SetStatus(true, StatusNXRRSet, res.Rdataset.TTL())
				needFetchV6 = false
			case cache.Success:
				a.importRdataset(n, true, res.Rdataset, now)
				needFetchV6 = false
			case cache.CNAME:
				n.SetAlias(string(res.Rdataset.RData()[0]), res.Rdataset.TTL())
				needFetchV6 = false
			}
			a.cache.Release(res)
		}
	}

	if target, ok := n.Alias(now); ok {
		f.Alias = target
		f.eventSent.Store(true)
		return f, ErrAlias
	}

	haveSomeAddress := len(n.v4Hooks.entriesSnapshot()) > 0 || len(n.v6Hooks.entriesSnapshot()) > 0

	// step 7: start fetches unless avoided.
	avoid := options.has(AvoidFetches) && haveSomeAddress
	noFetch := options.has(NoFetch)
	pending := false

	if needFetchV4 && !avoid && !noFetch && a.resolver != nil {
		a.startFetch(n, false, name, key.startAtZone, now, staleV4)
		pending = true
	}
	if needFetchV6 && !avoid && !noFetch && a.resolver != nil {
		a.startFetch(n, true, name, key.startAtZone, now, staleV6)
		pending = true
	}
	if n.fetchV4.inProgress && wantV4 {
		pending = true
	}
	if n.fetchV6.inProgress && wantV6 {
		pending = true
	}

	// step 8: copy available namehooks into addrinfo views.
	overQuota := false
	if wantV4 {
		for _, e := range n.v4Hooks.entriesSnapshot() {
			if e.OverQuota() {
				overQuota = true
				continue
			}
			f.Result = append(f.Result, NewAddrInfo(e, DefaultPort))
		}
	}
	if wantV6 {
		for _, e := range n.v6Hooks.entriesSnapshot() {
			if e.OverQuota() {
				overQuota = true
				continue
			}
			f.Result = append(f.Result, NewAddrInfo(e, DefaultPort))
		}
	}
	_ = overQuota // surfaced to caller only via empty Result + pending=false today

	// step 9: decide whether an event will be delivered later.
	satisfied := len(f.Result) > 0 && !pending
	if options.has(WantEvent) && pending && !satisfied {
		n.waiting = append(n.waiting, f)
	} else {
		f.eventSent.Store(true)
	}

	// step 10: copy per-family error codes.
	f.V4Status = n.v4Status
	f.V6Status = n.v6Status

	return f, nil
}

func (l *namehookList) entriesSnapshot() []*Entry {
	var out []*Entry
	l.walk(func(e *Entry) { out = append(out, e) })
	return out
}

func (a *ADB) dbFindName(name string, qtype dns.RecordType, now int64) (cache.FindResult, error) {
	if a.cache == nil {
		return cache.FindResult{}, cache.ErrNotFound
	}
	return a.cache.Find(name, qtype, now, 0)
}

// importRdataset materializes namehooks from a cache hit or fetch
// success, creating ADB entries as needed (§4.7 step 6, §4.8 step 6).
// Glue/additional-trust addresses are clamped to ADB_CACHE_MINIMUM
// regardless of wire TTL (adb.c import_rdataset); other trust levels use
// the clamped header TTL.
func (a *ADB) importRdataset(n *Name, v6 bool, h *cache.Header, now int64) {
	ttl := h.TTL()
	if h.Trust <= cache.TrustGlue {
		ttl = now + CacheMinimum
	} else {
		ttl = now + clampTTL(ttl-now)
	}

	for _, raw := range h.RData() {
		addr, ok := decodeAddr(raw)
		if !ok {
			continue
		}
		ap := netip.AddrPortFrom(addr, DefaultPort)
		e := a.getOrCreateEntry(ap)
		n.AddAddress(v6, e, ttl)
	}
}

func decodeAddr(raw []byte) (netip.Addr, bool) {
	switch len(raw) {
	case 4:
		var b [4]byte
		copy(b[:], raw)
		return netip.AddrFrom4(b), true
	case 16:
		var b [16]byte
		copy(b[:], raw)
		return netip.AddrFrom16(b), true
	default:
		return netip.Addr{}, false
	}
}

// startFetch is called with n already locked (CreateFind holds it for
// the whole call). It releases the lock only around the resolver call --
// which may (against the Resolver contract) invoke cb synchronously, or
// may simply take a while to enqueue the request -- and reacquires it
// before returning, so the caller's lock/defer-unlock discipline holds.
func (a *ADB) startFetch(n *Name, v6 bool, name string, startAtZone bool, now int64, staleEntries []*Entry) {
	// staleEntries are the addresses this family held right up until
	// CreateFind's step 4 invalidated them for this refresh -- the fetch
	// about to run is what brings fresh reachability data for them, so
	// they're the ones whose SRTT/ATR/active-fetch count its outcome
	// updates, however it resolves (§4.9, §5).
	for _, e := range staleEntries {
		e.BeginUDPFetch()
	}

	n.BeginFetch(v6)

	qtype := dns.TypeA
	if v6 {
		qtype = dns.TypeAAAA
	}
	var opts FetchOptions
	if startAtZone {
		opts |= Unshared
	}

	n.unlock()
	_, err := a.resolver.CreateFetch(name, qtype, opts, 1, func(resp FetchResponse) {
		a.fetchCallback(n, v6, staleEntries, resp)
	})
	n.lock()

	if err != nil {
		for _, e := range staleEntries {
			e.EndUDPFetch()
		}
		a.log.Warn("adb: createfetch failed", "name", name, "v6", v6, "err", err)
		n.SetStatus(v6, StatusFailure, now+noPoundTTL)
		n.CompleteFetch(v6)
	}
}

// fetchCallback implements spec §4.8 steps 1-7. v6 identifies which slot
// (fetch_a/fetch_aaaa) the response belongs to, since this Go port keeps
// that association in the closure captured by startFetch rather than by
// matching response.fetch back to the name. now is read fresh here
// (rather than reusing the value captured when the fetch started) so a
// slow fetch doesn't stamp its TTLs against a stale clock.
func (a *ADB) fetchCallback(n *Name, v6 bool, staleEntries []*Entry, resp FetchResponse) {
	now := time.Now().Unix()

	for _, e := range staleEntries {
		e.EndUDPFetch()
		factor := srttFactorImproving
		if resp.RTTMicros > e.SRTT() {
			factor = srttFactorWorsening
		}
		e.UpdateSRTT(resp.RTTMicros, factor)
		e.RecordResponse(false, resp.TimedOut)
		e.RecordCompletion(resp.TimedOut)
	}

	n.lock()

	if n.Dead() || a.shuttingDown.Load() {
		n.CompleteFetch(v6)
		waiting := n.waiting
		n.waiting = nil
		n.unlock()
		for _, f := range waiting {
			f.V4Status, f.V6Status = StatusCanceled, StatusCanceled
			a.dispatch(f)
		}
		return
	}

	switch {
	case resp.Negative != nil:
		ttl := clampTTL(resp.Negative.TTL() - now)
		status := StatusNXDomain
		if resp.NegativeKind == cache.NCacheNXRRSet {
			status = StatusNXRRSet
		}
		n.SetStatus(v6, status, now+ttl)

	case resp.Alias != "":
		n.SetAlias(resp.Alias, now+clampTTL(resp.AliasTTL-now))

	case resp.Err != nil:
		if resp.Depth <= 1 {
			n.SetStatus(v6, StatusFailure, now+noPoundTTL)
		}

	case resp.Rdataset != nil:
		a.importRdataset(n, v6, resp.Rdataset, now)
		n.SetStatus(v6, StatusOK, n.expiryFor(v6))
	}

	n.CompleteFetch(v6)
	var fire []*Find
	remaining := n.waiting[:0]
	for _, f := range n.waiting {
		wantV4 := f.Options.has(WantINET)
		wantV6 := f.Options.has(WantINET6)
		intersects := (v6 && wantV6) || (!v6 && wantV4)
		stillPending := (wantV4 && n.fetchV4.inProgress) || (wantV6 && n.fetchV6.inProgress)
		if intersects && !stillPending {
			f.V4Status, f.V6Status = n.v4Status, n.v6Status
			f.Result = nil
			var hooks []*Entry
			if wantV4 {
				hooks = append(hooks, n.v4Hooks.entriesSnapshot()...)
			}
			if wantV6 {
				hooks = append(hooks, n.v6Hooks.entriesSnapshot()...)
			}
			for _, e := range hooks {
				if !e.OverQuota() {
					f.Result = append(f.Result, NewAddrInfo(e, DefaultPort))
				}
			}
			fire = append(fire, f)
			continue
		}
		remaining = append(remaining, f)
	}
	n.waiting = remaining
	n.unlock()

	for _, f := range fire {
		a.dispatch(f)
	}
}

func (n *Name) expiryFor(v6 bool) int64 {
	if v6 {
		return n.v6Expire
	}
	return n.v4Expire
}

// CancelFind implements §4.7's cancelfind: idempotent, dispatches
// CANCELED on the caller's loop if the find hadn't already fired.
func (a *ADB) CancelFind(f *Find) {
	if f.done() {
		return
	}

	key := nameKey{name: f.Name, startAtZone: f.Options.has(StartAtZone)}
	a.mu.RLock()
	n, ok := a.names[key]
	a.mu.RUnlock()
	if !ok {
		f.V4Status, f.V6Status = StatusCanceled, StatusCanceled
		a.dispatch(f)
		return
	}

	n.lock()
	if f.done() {
		n.unlock()
		return
	}
	for i, w := range n.waiting {
		if w == f {
			n.waiting = append(n.waiting[:i], n.waiting[i+1:]...)
			break
		}
	}
	n.unlock()

	f.V4Status, f.V6Status = StatusCanceled, StatusCanceled
	a.dispatch(f)
}

func (a *ADB) dispatch(f *Find) {
	if a.loop != nil {
		a.loop.Post(func() { f.fire() })
		return
	}
	f.fire()
}
