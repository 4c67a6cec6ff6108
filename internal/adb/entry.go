package adb

import (
	"net/netip"
	"sync/atomic"
)

// Entry is the ADB entry (C4): a per-socket-address record tracking
// smoothed RTT, EDNS/UDP-size negotiation state, server cookie, adaptive
// quota, and the active-fetch counter.
type Entry struct {
	Addr netip.AddrPort

	srtt atomic.Int64 // smoothed round-trip time, microseconds

	edns    atomic.Uint32 // packed {edns,ednsto,plain,plainto} saturating byte counters
	udpSize atomic.Uint32
	cookie  atomic.Pointer[[]byte]

	quota  atomic.Uint32
	active atomic.Int32
	expires atomic.Int64
	dead    atomic.Bool

	atrMode   atomic.Int32
	atrValue  atomic.Uint64 // fixed-point, x1e6
	completed atomic.Uint32
	timeouts  atomic.Uint32
	cfg       QuotaConfig
	baseQuota uint32
}

// NewEntry constructs an ADB entry for addr, applying the given base quota
// configuration (§6 setquota).
func NewEntry(addr netip.AddrPort, cfg QuotaConfig) *Entry {
	e := &Entry{Addr: addr, cfg: cfg, baseQuota: cfg.Quota}
	e.quota.Store(cfg.Quota)
	size := cfg.UDPSizeDefault
	if size < 512 {
		size = 512
	}
	e.udpSize.Store(size)
	return e
}

// rttAdjAgeFactor multiplies SRTT by 0.98, called once per wall-clock second
// (§4.9 SRTT update).
const rttAdjAgeFactor = 98 // out of 100

// SRTT blend factors: a sample faster than the running average pulls the
// average down quickly (low factor, more weight on the new sample); a
// slower sample is smoothed in gently so one bad round trip doesn't spike
// the estimate (high factor, more weight on the old value).
const (
	srttFactorImproving int64 = 4
	srttFactorWorsening int64 = 8
)

// UpdateSRTT blends a fresh RTT sample into the smoothed value:
// new = (old/10)*factor + (rtt/10)*(10-factor) (§4.9).
func (e *Entry) UpdateSRTT(rttMicros int64, factor int64) {
	for {
		old := e.srtt.Load()
		next := (old/10)*factor + (rttMicros/10)*(10-factor)
		if e.srtt.CompareAndSwap(old, next) {
			return
		}
	}
}

// AgeSRTT applies the once-per-second 0.98 decay.
func (e *Entry) AgeSRTT() {
	for {
		old := e.srtt.Load()
		next := old * rttAdjAgeFactor / 100
		if e.srtt.CompareAndSwap(old, next) {
			return
		}
	}
}

// SRTT returns the current smoothed RTT in microseconds.
func (e *Entry) SRTT() int64 { return e.srtt.Load() }

// ednsCounters packs {edns, ednsto, plain, plainto} into one uint32 as
// four saturating bytes, so all four can be aged out with a single CAS
// (§4.9, §8 boundary #12).
type ednsCounters struct {
	edns, ednsto, plain, plainto uint8
}

func packCounters(c ednsCounters) uint32 {
	return uint32(c.edns)<<24 | uint32(c.ednsto)<<16 | uint32(c.plain)<<8 | uint32(c.plainto)
}

func unpackCounters(v uint32) ednsCounters {
	return ednsCounters{
		edns:    uint8(v >> 24),
		ednsto:  uint8(v >> 16),
		plain:   uint8(v >> 8),
		plainto: uint8(v),
	}
}

// RecordResponse bumps the edns/plain (and their timeout siblings)
// counters for one completed query, saturating and right-shifting all
// four by one bit when any would overflow 0xFF (§4.9, §8 boundary #12).
func (e *Entry) RecordResponse(usedEDNS, timedOut bool) {
	for {
		old := e.edns.Load()
		c := unpackCounters(old)
		switch {
		case usedEDNS && timedOut:
			c.ednsto = satInc(c.ednsto)
		case usedEDNS:
			c.edns = satInc(c.edns)
		case timedOut:
			c.plainto = satInc(c.plainto)
		default:
			c.plain = satInc(c.plain)
		}
		if c.edns == 0xFF || c.ednsto == 0xFF || c.plain == 0xFF || c.plainto == 0xFF {
			c.edns >>= 1
			c.ednsto >>= 1
			c.plain >>= 1
			c.plainto >>= 1
		}
		next := packCounters(c)
		if e.edns.CompareAndSwap(old, next) {
			return
		}
	}
}

func satInc(v uint8) uint8 {
	if v == 0xFF {
		return v
	}
	return v + 1
}

// Counters returns the current edns/plain counter snapshot.
func (e *Entry) Counters() (edns, ednsto, plain, plainto uint8) {
	c := unpackCounters(e.edns.Load())
	return c.edns, c.ednsto, c.plain, c.plainto
}

// SetUDPSize applies the §8 boundary #11 rule: values below 512 clamp up
// to 512, and the setter is monotonic — it never lowers the stored size.
func (e *Entry) SetUDPSize(size uint32) {
	if size < 512 {
		size = 512
	}
	for {
		old := e.udpSize.Load()
		if size <= old {
			return
		}
		if e.udpSize.CompareAndSwap(old, size) {
			return
		}
	}
}

// UDPSize returns the negotiated UDP payload size.
func (e *Entry) UDPSize() uint32 { return e.udpSize.Load() }

// SetCookie replaces the server cookie buffer; per §5 "reallocated under
// the entry lock only", the atomic.Pointer swap here is that lock.
func (e *Entry) SetCookie(cookie []byte) { e.cookie.Store(&cookie) }

// Cookie returns the current server cookie, or nil if none negotiated.
func (e *Entry) Cookie() []byte {
	p := e.cookie.Load()
	if p == nil {
		return nil
	}
	return *p
}

// Quota returns the current adaptive quota.
func (e *Entry) Quota() uint32 { return e.quota.Load() }

// BeginUDPFetch increments the active-fetch counter (§4.9).
func (e *Entry) BeginUDPFetch() { e.active.Add(1) }

// EndUDPFetch decrements the active-fetch counter (§4.9).
func (e *Entry) EndUDPFetch() { e.active.Add(-1) }

// Active returns the current in-flight fetch count.
func (e *Entry) Active() int32 { return e.active.Load() }

// OverQuota reports whether the entry is at or above its quota, per
// §4.9: overquota(entry) <=> quota != 0 && active >= quota.
func (e *Entry) OverQuota() bool {
	q := e.quota.Load()
	return q != 0 && e.active.Load() >= int32(q)
}

// RecordCompletion feeds one fetch outcome into the ATR computation.
// Every atr_freq completions it recomputes the timeout ratio, blends it
// into the ATR with the configured discount, and adjusts the quota mode
// up or down by one step against atr_low/atr_high (§4.9).
func (e *Entry) RecordCompletion(timedOut bool) {
	if timedOut {
		e.timeouts.Add(1)
	}
	completed := e.completed.Add(1)
	if completed%e.cfg.ATRFreq != 0 {
		return
	}
	timeouts := e.timeouts.Swap(0)
	e.completed.Store(0)
	ratio := float64(timeouts) / float64(e.cfg.ATRFreq)

	for {
		oldFixed := e.atrValue.Load()
		old := float64(oldFixed) / 1e6
		next := old*e.cfg.ATRDiscount + ratio*(1-e.cfg.ATRDiscount)
		nextFixed := uint64(next * 1e6)
		if e.atrValue.CompareAndSwap(oldFixed, nextFixed) {
			e.adjustMode(next)
			return
		}
	}
}

func (e *Entry) adjustMode(atr float64) {
	if e.baseQuota == 0 {
		return // quota 0 means unlimited; there is nothing to scale
	}
	for {
		mode := e.atrMode.Load()
		var next int32
		switch {
		case atr < e.cfg.ATRLow && mode > 0:
			next = mode - 1
		case atr > e.cfg.ATRHigh && int(mode) < quotaAdjModes-1:
			next = mode + 1
		default:
			return
		}
		if e.atrMode.CompareAndSwap(mode, next) {
			e.quota.Store(quotaForMode(e.baseQuota, int(next)))
			return
		}
	}
}

// ATR returns the current adaptive timeout ratio.
func (e *Entry) ATR() float64 { return float64(e.atrValue.Load()) / 1e6 }

// SetExpires sets the entry's atomic expiry timestamp.
func (e *Entry) SetExpires(ts int64) { e.expires.Store(ts) }

// Expires returns the entry's expiry timestamp.
func (e *Entry) Expires() int64 { return e.expires.Load() }

// MarkDead flags the entry as dead (no longer referenced by any namehook).
func (e *Entry) MarkDead() { e.dead.Store(true) }

// Dead reports whether the entry has been marked dead.
func (e *Entry) Dead() bool { return e.dead.Load() }
