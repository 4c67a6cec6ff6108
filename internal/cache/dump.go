package cache

import (
	"fmt"
	"io"
)

// Dump emits a human-readable, comment-prefixed, line-oriented text form
// listing every cached name with its header chain, TTL countdowns, and
// attribute flags — for operators, never parsed back (§6 Persistent
// state).
func (c *Cache) Dump(w io.Writer, now int64) error {
	if _, err := fmt.Fprintf(w, "; answer cache dump at %d\n", now); err != nil {
		return err
	}
	var walkErr error
	c.trie.Walk(func(n *Node) {
		if walkErr != nil {
			return
		}
		n.lock()
		defer n.unlock()
		if _, err := fmt.Fprintf(w, "%s\n", n.Name); err != nil {
			walkErr = err
			return
		}
		n.chainWalk(func(h *Header) bool {
			ttl := h.TTL() - now
			if _, err := fmt.Fprintf(w, "\t%d/%d\ttrust=%s\tttl=%d\tattr=0x%x\n",
				h.TypePair.Type, h.TypePair.Covers, h.Trust, ttl, h.Attr()); err != nil {
				walkErr = err
				return false
			}
			return true
		})
	})
	if walkErr != nil {
		return walkErr
	}
	st := c.stats.Snapshot()
	if _, err := fmt.Fprintf(w, "; hits=%d misses=%d coveringnsec=%d deletettl=%d deletelru=%d\n",
		c.stats.Hits.Load(), c.stats.Misses.Load(), c.stats.CoveringNSEC.Load(),
		c.stats.DeleteTTL.Load(), c.stats.DeleteLRU.Load()); err != nil {
		return err
	}
	for k, v := range st {
		if _, err := fmt.Fprintf(w, "; type=%d kind=%d bucket=%d count=%d\n", k.Type, k.Kind, k.Bucket, v); err != nil {
			return err
		}
	}
	return nil
}
