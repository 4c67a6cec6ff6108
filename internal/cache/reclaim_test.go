package cache

import (
	"testing"

	"github.com/jroosing/hydradns/internal/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNode_NewrefDecref(t *testing.T) {
	n := NewNode("ref.example.")
	n.Newref()
	assert.True(t, n.Decref()) // sole ref released, empty, not origin

	n.Newref()
	n.Newref()
	assert.False(t, n.Decref()) // one ref still outstanding
	assert.True(t, n.Decref())  // last ref, empty, not origin -> reclaim candidate
}

func TestCache_ReleaseEnqueuesEmptyNodeForReclaim(t *testing.T) {
	c := New(nil)
	n := NewNode("gone.example.")
	c.trie.Insert("gone.example.", n)
	n.Newref()

	c.Release(FindResult{node: n})

	assert.Equal(t, 1, c.Reclaim())
	_, _, exact := c.trie.Lookup("gone.example.")
	assert.False(t, exact)
}

func TestCache_ReleaseKeepsNodeWithRemainingRefs(t *testing.T) {
	c := New(nil)
	n := NewNode("busy.example.")
	c.trie.Insert("busy.example.", n)
	n.Newref()
	n.Newref()

	c.Release(FindResult{node: n})
	assert.Equal(t, 0, c.Reclaim())

	_, _, exact := c.trie.Lookup("busy.example.")
	assert.True(t, exact)
}

func TestCache_ReleaseNoopOnZeroValueResult(t *testing.T) {
	c := New(nil)
	assert.NotPanics(t, func() { c.Release(FindResult{}) })
}

func TestFind_TakesAndReleasesNodeReference(t *testing.T) {
	c := New(nil)
	now := int64(1000)
	h := NewHeader(TypePair{Type: dns.TypeA}, TrustAnswer, now+300, [][]byte{{1, 2, 3, 4}})
	require.NoError(t, c.Add("ref-find.example.", h, 0, now))

	fr, err := c.Find("ref-find.example.", dns.TypeA, now, 0)
	require.NoError(t, err)

	node, _, exact := c.trie.Lookup("ref-find.example.")
	require.True(t, exact)
	assert.Equal(t, int32(1), node.extRef)

	c.Release(fr)
	assert.Equal(t, int32(0), node.extRef)
}

func TestHeader_MemoryAccountingTracksAndReleasesOnDestroy(t *testing.T) {
	c := New(nil)
	now := int64(1000)
	h := NewHeader(TypePair{Type: dns.TypeA}, TrustAnswer, now+300, [][]byte{{1, 2, 3, 4}})
	require.NoError(t, c.Add("mem.example.", h, 0, now))

	before := c.memUsed.Load()
	assert.Greater(t, before, int64(0))

	h.Destroy()
	assert.Equal(t, int64(0), c.memUsed.Load())
}
