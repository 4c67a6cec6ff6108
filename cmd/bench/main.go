// Command bench load-generates concurrent operations directly against
// the in-process answer cache and address database (no network I/O),
// reporting throughput and latency percentiles the way the teacher's
// original wire-level load tool did for a running DNS server.
package main

import (
	"flag"
	"fmt"
	"net/netip"
	"sort"
	"sync"
	"time"

	"github.com/jroosing/hydradns/internal/adb"
	"github.com/jroosing/hydradns/internal/cache"
	"github.com/jroosing/hydradns/internal/dns"
)

// noopResolver answers every CreateFetch with NXDOMAIN on a goroutine,
// so a cache-miss find still exercises the ADB's fetch bookkeeping
// without needing an upstream server.
type noopResolver struct{}

func (noopResolver) CreateFetch(_ string, _ dns.RecordType, _ adb.FetchOptions, _ int, cb adb.FetchCallback) (adb.Fetch, error) {
	go cb(adb.FetchResponse{
		Negative:     cache.NewNegativeHeader(dns.TypeA, cache.TrustAnswer, time.Now().Unix()+30, true),
		NegativeKind: cache.NCacheNXDomain,
		Depth:        1,
	})
	return nil, nil
}
func (noopResolver) CancelFetch(adb.Fetch)  {}
func (noopResolver) DestroyFetch(adb.Fetch) {}

func main() {
	var (
		names       = flag.Int("names", 2000, "Distinct nameserver names to pre-populate")
		concurrency = flag.Int("concurrency", 200, "Number of concurrent workers")
		requests    = flag.Int("requests", 100000, "Total number of CreateFind calls")
		hitRatio    = flag.Float64("hit-ratio", 0.9, "Fraction of requests targeting pre-populated (cache-hit) names")
	)
	flag.Parse()

	c := cache.New(nil)
	a := adb.New(c, noopResolver{}, nil, adb.DefaultQuotaConfig(), nil)

	now := time.Now().Unix()
	for i := 0; i < *names; i++ {
		owner := fmt.Sprintf("ns%d.bench.example.", i)
		ip := netip.AddrFrom4([4]byte{10, byte(i >> 16), byte(i >> 8), byte(i)})
		h := cache.NewHeader(cache.TypePair{Type: dns.TypeA}, cache.TrustAnswer, now+3600, [][]byte{ip.AsSlice()})
		if err := c.Add(owner, h, 0, now); err != nil {
			panic(err)
		}
	}

	conc := *concurrency
	if conc < 1 {
		conc = 1
	}
	total := *requests
	if total < 1 {
		total = 1
	}
	per := total / conc
	rem := total % conc

	lat := make([]float64, 0, total)
	var latMu sync.Mutex

	t0 := time.Now()
	var wg sync.WaitGroup
	for w := 0; w < conc; w++ {
		n := per
		if w < rem {
			n++
		}
		if n <= 0 {
			continue
		}
		wg.Add(1)
		go func(n, seed int) {
			defer wg.Done()
			for j := 0; j < n; j++ {
				idx := (seed*31 + j) % *names
				owner := fmt.Sprintf("ns%d.bench.example.", idx)
				if float64(idx%100) >= *hitRatio*100 {
					owner = fmt.Sprintf("miss%d.bench.example.", idx)
				}

				start := time.Now()
				done := make(chan struct{})
				f, err := a.CreateFind(owner, dns.TypeA, adb.WantINET|adb.WantEvent, now,
					func(*adb.Find) { close(done) }, nil)
				if err != nil {
					continue
				}
				// A cache hit resolves inside CreateFind itself and never
				// invokes the callback; only an in-flight fetch (status
				// still unset on return) needs to be awaited.
				if f.V4Status == adb.StatusUnset {
					<-done
				}
				ms := float64(time.Since(start).Microseconds()) / 1000.0

				latMu.Lock()
				lat = append(lat, ms)
				latMu.Unlock()
			}
		}(n, w)
	}
	wg.Wait()
	elapsed := time.Since(t0).Seconds()

	if len(lat) == 0 {
		fmt.Println("no completed requests")
		return
	}
	sort.Float64s(lat)
	qps := float64(len(lat)) / elapsed

	fmt.Printf("names=%d concurrency=%d requests=%d hit_ratio=%.2f\n", *names, conc, len(lat), *hitRatio)
	fmt.Printf("elapsed_s=%.3f qps=%.1f\n", elapsed, qps)
	fmt.Printf("latency_ms p50=%.3f p95=%.3f p99=%.3f min=%.3f max=%.3f\n",
		percentile(lat, 50), percentile(lat, 95), percentile(lat, 99), lat[0], lat[len(lat)-1])
}

func percentile(sorted []float64, p int) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[len(sorted)-1]
	}
	idx := int(float64(len(sorted))*float64(p)/100.0) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
