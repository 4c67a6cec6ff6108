package cache_test

import (
	"testing"

	"github.com/jroosing/hydradns/internal/cache"
	"github.com/jroosing/hydradns/internal/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFind_S1Positive(t *testing.T) {
	c := cache.New(nil)
	now := int64(1000)
	h := cache.NewHeader(cache.TypePair{Type: dns.TypeA}, cache.TrustAnswer, now+3600, [][]byte{{10, 0, 0, 1}})
	require.NoError(t, c.Add("example.org.", h, 0, now))

	fr, err := c.Find("example.org.", dns.TypeA, now+2, 0)
	require.NoError(t, err)
	assert.Equal(t, cache.Success, fr.Result)
	require.NotNil(t, fr.Rdataset)
	assert.Equal(t, [][]byte{{10, 0, 0, 1}}, fr.Rdataset.RData())
	ttl := fr.Rdataset.TTL() - (now + 2)
	assert.True(t, ttl > 3590 && ttl <= 3600, "ttl=%d", ttl)
}

func TestFind_S2NXDomain(t *testing.T) {
	c := cache.New(nil)
	now := int64(1000)
	h := cache.NewNegativeHeader(dns.TypeA, cache.TrustAnswer, now+3600, true)
	require.NoError(t, c.Add("nxdomain.example.org.", h, 0, now))

	fr, err := c.Find("nxdomain.example.org.", dns.TypeA, now+2, 0)
	require.NoError(t, err)
	assert.Equal(t, cache.NCacheNXDomain, fr.Result)
	ttl := fr.Rdataset.TTL() - (now + 2)
	assert.True(t, ttl > 3590 && ttl <= 3600)
}

func TestAdd_S3NSReplacementFloor(t *testing.T) {
	c := cache.New(nil)
	now := int64(1000)
	oldNS := cache.NewHeader(cache.TypePair{Type: dns.TypeNS}, cache.TrustAnswer, now+100, [][]byte{[]byte("ns1")})
	require.NoError(t, c.Add("example.org.", oldNS, 0, now))

	newNS := cache.NewHeader(cache.TypePair{Type: dns.TypeNS}, cache.TrustAnswer, now+1000, [][]byte{[]byte("ns2")})
	require.NoError(t, c.Add("example.org.", newNS, 0, now))

	fr, err := c.Find("example.org.", dns.TypeNS, now, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(100), fr.Rdataset.TTL()-now)
}

func TestFind_S4CNAMEChain(t *testing.T) {
	c := cache.New(nil)
	now := int64(1000)
	cn := cache.NewHeader(cache.TypePair{Type: dns.TypeCNAME}, cache.TrustAnswer, now+300, [][]byte{[]byte("b.example.")})
	require.NoError(t, c.Add("a.example.", cn, 0, now))

	fr, err := c.Find("a.example.", dns.TypeA, now, 0)
	require.NoError(t, err)
	assert.Equal(t, cache.CNAME, fr.Result)
}

func TestFind_S6CoveringNSEC(t *testing.T) {
	c := cache.New(nil)
	now := int64(1000)
	nsec := cache.NewHeader(cache.TypePair{Type: dns.TypeNSEC}, cache.TrustSecure, now+3600, nil)
	require.NoError(t, c.Add("a.example.", nsec, 0, now))
	sig := cache.NewHeader(cache.TypePair{Type: dns.TypeRRSIG, Covers: dns.TypeNSEC}, cache.TrustSecure, now+3600, nil)
	require.NoError(t, c.Add("a.example.", sig, 0, now))

	fr, err := c.Find("b.example.", dns.TypeA, now, cache.CoveringNSEC)
	require.NoError(t, err)
	assert.Equal(t, cache.CoveringNSECResult, fr.Result)
	assert.Equal(t, "a.example.", fr.FoundName)
	assert.NotNil(t, fr.SigRdataset)
}

func TestFind_S6CoveringNSEC_RequiresSignature(t *testing.T) {
	c := cache.New(nil)
	now := int64(1000)
	nsec := cache.NewHeader(cache.TypePair{Type: dns.TypeNSEC}, cache.TrustSecure, now+3600, nil)
	require.NoError(t, c.Add("a.example.", nsec, 0, now))

	_, err := c.Find("b.example.", dns.TypeA, now, cache.CoveringNSEC)
	assert.ErrorIs(t, err, cache.ErrNotFound)
}

func TestAdd_Invariant6_TrustNeverDecreasesOverActive(t *testing.T) {
	c := cache.New(nil)
	now := int64(1000)
	secure := cache.NewHeader(cache.TypePair{Type: dns.TypeA}, cache.TrustSecure, now+300, [][]byte{{1, 1, 1, 1}})
	require.NoError(t, c.Add("example.org.", secure, 0, now))

	additional := cache.NewHeader(cache.TypePair{Type: dns.TypeA}, cache.TrustAdditional, now+300, [][]byte{{2, 2, 2, 2}})
	err := c.Add("example.org.", additional, 0, now)
	assert.ErrorIs(t, err, cache.ErrUnchanged)

	fr, err := c.Find("example.org.", dns.TypeA, now, 0)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{{1, 1, 1, 1}}, fr.Rdataset.RData())
}

func TestAdd_RoundTrip_SecondAddIsUnchanged(t *testing.T) {
	c := cache.New(nil)
	now := int64(1000)
	h1 := cache.NewHeader(cache.TypePair{Type: dns.TypeA}, cache.TrustAnswer, now+300, [][]byte{{1, 1, 1, 1}})
	require.NoError(t, c.Add("example.org.", h1, 0, now))

	h2 := cache.NewHeader(cache.TypePair{Type: dns.TypeA}, cache.TrustAnswer, now+300, [][]byte{{1, 1, 1, 1}})
	err := c.Add("example.org.", h2, 0, now)
	assert.ErrorIs(t, err, cache.ErrUnchanged)
}

func TestFind_NotFoundOnEmptyCache(t *testing.T) {
	c := cache.New(nil)
	_, err := c.Find("nowhere.example.", dns.TypeA, 1000, 0)
	assert.ErrorIs(t, err, cache.ErrNotFound)
}

func TestExpireTick_RemovesPastTTL(t *testing.T) {
	c := cache.New(nil)
	now := int64(1000)
	h := cache.NewHeader(cache.TypePair{Type: dns.TypeA}, cache.TrustAnswer, now-1, [][]byte{{1, 2, 3, 4}})
	require.NoError(t, c.Add("expired.example.", h, 0, now-10))

	n := c.ExpireTick(now)
	assert.Equal(t, 1, n)

	_, err := c.Find("expired.example.", dns.TypeA, now, 0)
	assert.Error(t, err)
}

func TestOvermemClean_NoopWhenUnderWater(t *testing.T) {
	c := cache.New(nil)
	c.SetCacheSize(0)
	c.OvermemClean(1000) // must not panic / block with watermark disabled
}

func TestFind_ShuttingDown(t *testing.T) {
	c := cache.New(nil)
	c.Shutdown()
	_, err := c.Find("example.org.", dns.TypeA, 1000, 0)
	assert.ErrorIs(t, err, cache.ErrShuttingDown)

	h := cache.NewHeader(cache.TypePair{Type: dns.TypeA}, cache.TrustAnswer, 2000, nil)
	err = c.Add("example.org.", h, 0, 1000)
	assert.ErrorIs(t, err, cache.ErrShuttingDown)
}
