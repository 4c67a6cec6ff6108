// Package fetch implements the §6 resolver-fetch contract consumed by
// internal/adb: UpstreamFetcher sends a query upstream, parses the
// response into a cache.Header, and invokes the caller's callback from
// its own goroutine. It is the network-facing half of fetching;
// the out-of-scope iterative-resolution logic (following delegations,
// picking the next nameserver) sits above this, not inside it.
package fetch

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/sys/unix"

	"github.com/jroosing/hydradns/internal/adb"
	"github.com/jroosing/hydradns/internal/cache"
	"github.com/jroosing/hydradns/internal/dns"
	"github.com/jroosing/hydradns/internal/helpers"
	"github.com/jroosing/hydradns/internal/pool"
)

const (
	upstreamRecoveryDuration = time.Hour
	defaultUDPPoolSize       = 64
	defaultUDPTimeout        = 3 * time.Second
	defaultTCPTimeout        = 5 * time.Second
	defaultRecvSize          = 4096
	defaultMaxRetries        = 2

	// udpSocketBufferBytes sizes each pooled upstream socket's send/recv
	// buffers, so a burst of concurrent queries to one upstream doesn't
	// drop replies while a worker is busy decoding the previous one
	// (same rationale as the teacher's listener buffer sizing, scaled
	// down since these are per-upstream client sockets, not one shared
	// listener).
	udpSocketBufferBytes = 256 * 1024
)

// Config configures an UpstreamFetcher.
type Config struct {
	Upstreams   []string
	UDPTimeout  time.Duration
	TCPTimeout  time.Duration
	PoolSize    int
	RecvSize    int
	MaxRetries  int
	TCPFallback bool
}

func (c *Config) setDefaults() {
	if c.UDPTimeout <= 0 {
		c.UDPTimeout = defaultUDPTimeout
	}
	if c.TCPTimeout <= 0 {
		c.TCPTimeout = defaultTCPTimeout
	}
	if c.PoolSize <= 0 {
		c.PoolSize = defaultUDPPoolSize
	}
	if c.RecvSize <= 0 {
		c.RecvSize = defaultRecvSize
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = defaultMaxRetries
	}
}

// upstreamHealth tracks a single upstream's failure state, the same
// mark-failed/recover-after-an-hour policy the teacher's forwarding
// resolver uses.
type upstreamHealth struct {
	mu       sync.Mutex
	failedAt map[string]time.Time
}

func (h *upstreamHealth) canTry(up string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if t, failed := h.failedAt[up]; failed {
		return time.Since(t) > upstreamRecoveryDuration
	}
	return true
}

func (h *upstreamHealth) markFailed(up string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.failedAt == nil {
		h.failedAt = make(map[string]time.Time)
	}
	h.failedAt[up] = time.Now()
}

func (h *upstreamHealth) markHealthy(up string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.failedAt, up)
}

// UpstreamFetcher implements adb.Resolver by forwarding queries to a
// fixed set of upstream recursive/authoritative servers over UDP, with
// TCP fallback on truncation and connection pooling per upstream.
type UpstreamFetcher struct {
	cfg    Config
	log    *slog.Logger
	health upstreamHealth

	poolMu sync.Mutex
	pools  map[string]chan net.Conn

	// bufs reduces per-query receive-buffer allocations the same way the
	// teacher's udp_server.go bufferPool does for incoming packets; a
	// *[]byte (not []byte) keeps Put from boxing the slice header onto
	// the heap on every call.
	bufs *pool.Pool[*[]byte]

	// group coalesces identical in-flight wire queries (same name, qtype,
	// and selected upstream) into one socket round-trip, the
	// same role the teacher's hand-rolled inflight map played -- this
	// repo uses the ecosystem's singleflight instead.
	group singleflight.Group
}

// NewUpstreamFetcher constructs a fetcher against cfg's upstream list.
func NewUpstreamFetcher(cfg Config, logger *slog.Logger) *UpstreamFetcher {
	cfg.setDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	f := &UpstreamFetcher{cfg: cfg, log: logger, pools: make(map[string]chan net.Conn)}
	f.bufs = pool.New(func() *[]byte {
		buf := make([]byte, f.cfg.RecvSize)
		return &buf
	})
	return f
}

type fetchHandle struct {
	cancel func()
}

// CreateFetch implements adb.Resolver. It runs the query asynchronously
// in its own goroutine and invokes cb exactly once when it settles.
func (f *UpstreamFetcher) CreateFetch(owner string, qtype dns.RecordType, options adb.FetchOptions, depth int, cb adb.FetchCallback) (adb.Fetch, error) {
	canceled := make(chan struct{})
	handle := &fetchHandle{cancel: func() { close(canceled) }}

	go func() {
		resp := f.run(owner, qtype, depth, canceled)
		cb(resp)
	}()

	return handle, nil
}

// CancelFetch signals the in-flight goroutine to stop waiting; the
// network call itself may still complete, but its result is discarded
// because the goroutine has already returned a CANCELED response.
func (f *UpstreamFetcher) CancelFetch(handle adb.Fetch) {
	if h, ok := handle.(*fetchHandle); ok {
		defer func() { recover() }() // double-cancel is a no-op, not a crash
		h.cancel()
	}
}

// DestroyFetch is a no-op: UpstreamFetcher holds no per-fetch resources
// beyond the handle itself, which the garbage collector reclaims once
// the ADB drops its reference.
func (f *UpstreamFetcher) DestroyFetch(adb.Fetch) {}

func (f *UpstreamFetcher) run(owner string, qtype dns.RecordType, depth int, canceled <-chan struct{}) adb.FetchResponse {
	start := time.Now()

	up := f.selectUpstream()
	if up == "" {
		return adb.FetchResponse{Err: errors.New("fetch: no healthy upstream"), Depth: depth}
	}

	query, err := buildQuery(owner, qtype)
	if err != nil {
		return adb.FetchResponse{Err: fmt.Errorf("fetch: build query: %w", err), Depth: depth}
	}

	type result struct {
		resp []byte
		err  error
	}
	resCh := make(chan result, 1)
	go func() {
		key := fmt.Sprintf("%s/%d/%s", owner, qtype, up)
		v, err, _ := f.group.Do(key, func() (any, error) {
			return f.queryOne(up, query)
		})
		if err != nil {
			resCh <- result{err: err}
			return
		}
		resCh <- result{resp: v.([]byte)}
	}()

	select {
	case <-canceled:
		return adb.FetchResponse{Err: adb.ErrCanceled, TimedOut: true, RTTMicros: time.Since(start).Microseconds(), Depth: depth}
	case r := <-resCh:
		rtt := time.Since(start).Microseconds()
		if r.err != nil {
			f.health.markFailed(up)
			var netErr net.Error
			timedOut := errors.As(r.err, &netErr) && netErr.Timeout()
			return adb.FetchResponse{Err: r.err, TimedOut: timedOut, RTTMicros: rtt, Depth: depth}
		}
		f.health.markHealthy(up)
		resp := parseResponse(r.resp, depth)
		resp.RTTMicros = rtt
		return resp
	}
}

func (f *UpstreamFetcher) selectUpstream() string {
	candidates := make([]string, 0, len(f.cfg.Upstreams))
	for _, up := range f.cfg.Upstreams {
		if f.health.canTry(up) {
			candidates = append(candidates, up)
		}
	}
	if len(candidates) == 0 {
		return ""
	}
	return candidates[rand.IntN(len(candidates))]
}

func buildQuery(name string, qtype dns.RecordType) ([]byte, error) {
	pkt := dns.Packet{
		Header: dns.Header{
			ID:      uint16(rand.IntN(1 << 16)),
			Flags:   dns.RDFlag,
			QDCount: 1,
		},
		Questions: []dns.Question{{Name: name, Type: uint16(qtype), Class: uint16(dns.ClassIN)}},
	}
	return pkt.Marshal()
}

// parseResponse classifies an upstream response into the FetchResponse
// shape FetchCallback expects (§4.8 steps 3-6): success rdataset,
// negative (with SOA-derived TTL per RFC 2308), alias, or a typed error.
// cache.Header stores absolute expiry, so every TTL here is converted
// against the wall-clock time the response was received.
func parseResponse(raw []byte, depth int) adb.FetchResponse {
	now := time.Now().Unix()

	pkt, err := dns.ParsePacket(raw)
	if err != nil {
		return adb.FetchResponse{Err: fmt.Errorf("fetch: parse response: %w", err), Depth: depth}
	}

	rcode := dns.RCodeFromFlags(pkt.Header.Flags)
	if rcode == dns.RCodeNXDomain || rcode == dns.RCodeServFail {
		ttl := negativeTTL(pkt)
		kind := cache.NCacheNXDomain
		if rcode == dns.RCodeServFail {
			kind = cache.NCacheNXRRSet
		}
		neg := cache.NewNegativeHeader(dns.TypeA, cache.TrustAnswer, now+ttl, rcode == dns.RCodeNXDomain)
		return adb.FetchResponse{Negative: neg, NegativeKind: kind, Depth: depth}
	}

	var rdata [][]byte
	var ttl int64
	alias := ""
	var aliasTTL int64

	for _, rr := range pkt.Answers {
		switch v := rr.(type) {
		case *dns.IPRecord:
			b, err := v.MarshalRData()
			if err != nil {
				continue
			}
			rdata = append(rdata, b)
			ttl = int64(v.Header().TTL)
		case *dns.NameRecord:
			if v.Type() == dns.TypeCNAME {
				alias = v.Target
				aliasTTL = int64(v.Header().TTL)
			}
		}
	}

	if alias != "" && len(rdata) == 0 {
		return adb.FetchResponse{Alias: alias, AliasTTL: now + aliasTTL, Depth: depth}
	}
	if len(rdata) == 0 {
		ttl := negativeTTL(pkt)
		neg := cache.NewNegativeHeader(dns.TypeA, cache.TrustAnswer, now+ttl, false)
		return adb.FetchResponse{Negative: neg, NegativeKind: cache.NCacheNXRRSet, Depth: depth}
	}

	h := cache.NewHeader(cache.TypePair{Type: dns.TypeA}, cache.TrustAnswer, now+ttl, rdata)
	return adb.FetchResponse{Rdataset: h, Depth: depth}
}

// negativeTTL extracts the negative-caching TTL per RFC 2308 §5: the
// minimum of the SOA record's own TTL and its MINIMUM field, found in
// the authority section of a negative response.
func negativeTTL(pkt dns.Packet) int64 {
	for _, rr := range pkt.Authorities {
		soa, ok := rr.(*dns.SOARecord)
		if !ok {
			continue
		}
		ttl := int64(soa.Header().TTL)
		if int64(soa.Minimum) < ttl {
			ttl = int64(soa.Minimum)
		}
		return ttl
	}
	return 30 // no SOA present; fall back to a short negative TTL
}

func (f *UpstreamFetcher) ensurePool(up string) chan net.Conn {
	f.poolMu.Lock()
	defer f.poolMu.Unlock()
	if ch, ok := f.pools[up]; ok {
		return ch
	}
	ch := make(chan net.Conn, f.cfg.PoolSize)
	f.pools[up] = ch
	return ch
}

func (f *UpstreamFetcher) queryOne(up string, query []byte) ([]byte, error) {
	pool := f.ensurePool(up)

	var lastErr error
	for range f.cfg.MaxRetries {
		resp, err := f.queryOneAttempt(pool, up, query)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		var netErr net.Error
		if !errors.As(err, &netErr) {
			return nil, err
		}
	}
	return nil, lastErr
}

func (f *UpstreamFetcher) queryOneAttempt(pool chan net.Conn, up string, query []byte) ([]byte, error) {
	conn, fromPool, err := f.acquireConn(pool, up)
	if err != nil {
		return nil, err
	}
	ok := true
	defer func() { f.releaseConn(conn, pool, fromPool, ok) }()

	_ = conn.SetDeadline(time.Now().Add(f.cfg.UDPTimeout))
	if _, err := conn.Write(query); err != nil {
		ok = false
		return nil, err
	}

	bufp := f.bufs.Get()
	defer f.bufs.Put(bufp)
	n, err := conn.Read(*bufp)
	if err != nil {
		ok = false
		return nil, err
	}
	resp := make([]byte, n)
	copy(resp, (*bufp)[:n])

	if f.cfg.TCPFallback && dns.IsTruncated(resp) {
		return queryTCP(query, up, f.cfg.TCPTimeout)
	}
	return resp, nil
}

func (f *UpstreamFetcher) acquireConn(pool chan net.Conn, up string) (net.Conn, bool, error) {
	select {
	case c := <-pool:
		return c, true, nil
	default:
		dialer := net.Dialer{
			Timeout: f.cfg.UDPTimeout,
			Control: func(_, _ string, c syscall.RawConn) error {
				return c.Control(func(fd uintptr) {
					_ = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF, udpSocketBufferBytes)
					_ = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_SNDBUF, udpSocketBufferBytes)
				})
			},
		}
		c, err := dialer.DialContext(context.Background(), "udp", net.JoinHostPort(up, "53"))
		return c, false, err
	}
}

func (f *UpstreamFetcher) releaseConn(c net.Conn, pool chan net.Conn, fromPool, ok bool) {
	if !ok || !fromPool {
		_ = c.Close()
		return
	}
	select {
	case pool <- c:
	default:
		_ = c.Close()
	}
}

func queryTCP(query []byte, host string, timeout time.Duration) ([]byte, error) {
	conn, err := net.DialTimeout("tcp", net.JoinHostPort(host, "53"), timeout)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(timeout))

	var prefix [2]byte
	binary.BigEndian.PutUint16(prefix[:], helpers.ClampIntToUint16(len(query)))
	if _, err := conn.Write(prefix[:]); err != nil {
		return nil, err
	}
	if _, err := conn.Write(query); err != nil {
		return nil, err
	}

	if _, err := io.ReadFull(conn, prefix[:]); err != nil {
		return nil, err
	}
	respLen := int(binary.BigEndian.Uint16(prefix[:]))
	if respLen <= 0 || respLen > 65535 {
		return nil, fmt.Errorf("fetch: invalid TCP response length %d", respLen)
	}
	resp := make([]byte, respLen)
	if _, err := io.ReadFull(conn, resp); err != nil {
		return nil, err
	}
	return resp, nil
}
