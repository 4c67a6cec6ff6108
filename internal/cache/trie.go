package cache

import (
	"strings"
	"sync"
	"sync/atomic"
)

// trieNode is one label position in the name trie. Each node holds exactly
// one label; chains of single-child nodes are not merged.
// value is nil for a pass-through node that exists only because a
// descendant is stored (e.g. "com" with no record of its own cached).
type trieNode struct {
	label    string
	value    *Node
	children map[string]*trieNode
}

func (n *trieNode) clone() *trieNode {
	children := make(map[string]*trieNode, len(n.children))
	for k, v := range n.children {
		children[k] = v
	}
	return &trieNode{label: n.label, value: n.value, children: children}
}

// Trie is the answer cache's concurrent, one-label-per-node name trie (C3).
// Readers traverse a published root inside an RCU-style read section with
// no locking; writers clone the path from the root to the mutated node and
// atomically publish the new root, so in-flight readers keep seeing a
// consistent snapshot (§2 Control flow, §5).
//
// Names are stored by reversed label (TLD first), the same ordering the
// teacher's domain-filtering trie used for suffix matching — here it
// gives ancestor-first traversal order, which is what delegation and
// DNAME walking need (§4.3 step 2).
type Trie struct {
	root atomic.Pointer[trieNode]
	mu   sync.Mutex // serializes writers; readers never take this lock
}

// NewTrie constructs an empty trie with a single pass-through root.
func NewTrie() *Trie {
	t := &Trie{}
	t.root.Store(&trieNode{children: map[string]*trieNode{}})
	return t
}

func reversedLabels(name string) []string {
	name = strings.TrimSuffix(strings.ToLower(name), ".")
	if name == "" {
		return nil
	}
	parts := strings.Split(name, ".")
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return parts
}

// Lookup performs the trie portion of §4.3 step 1-2: it returns the exact
// node for name if present, the chain of ancestor nodes visited (root-to-
// leaf order, values only), and whether the match was exact.
func (t *Trie) Lookup(name string) (exact *Node, ancestors []*Node, exactMatch bool) {
	labels := reversedLabels(name)
	cur := t.root.Load()
	for _, label := range labels {
		if cur.value != nil {
			ancestors = append(ancestors, cur.value)
		}
		next, ok := cur.children[label]
		if !ok {
			return nil, ancestors, false
		}
		cur = next
	}
	if cur.value != nil {
		return cur.value, ancestors, true
	}
	return nil, ancestors, false
}

// Insert publishes node at name, creating any missing intermediate labels.
// It is a writer operation: the path from the root to the target label is
// cloned, mutated, and the new root published with a release store.
func (t *Trie) Insert(name string, node *Node) {
	labels := reversedLabels(name)
	t.mu.Lock()
	defer t.mu.Unlock()

	oldRoot := t.root.Load()
	newRoot := oldRoot.clone()
	cur := newRoot
	for _, label := range labels {
		child, ok := cur.children[label]
		if ok {
			child = child.clone()
		} else {
			child = &trieNode{label: label, children: map[string]*trieNode{}}
		}
		cur.children[label] = child
		cur = child
	}
	cur.value = node
	t.root.Store(newRoot)
}

// Delete removes the value at name (physical node deletion, used by the
// dead-node reclamation write transaction, §4.6). Pass-through ancestors
// that become childless and valueless are pruned.
func (t *Trie) Delete(name string) {
	labels := reversedLabels(name)
	t.mu.Lock()
	defer t.mu.Unlock()

	oldRoot := t.root.Load()
	newRoot := oldRoot.clone()
	path := []*trieNode{newRoot}
	cur := newRoot
	for _, label := range labels {
		child, ok := cur.children[label]
		if !ok {
			t.root.Store(newRoot)
			return
		}
		child = child.clone()
		cur.children[label] = child
		cur = child
		path = append(path, cur)
	}
	cur.value = nil

	for i := len(path) - 1; i > 0; i-- {
		node := path[i]
		if node.value == nil && len(node.children) == 0 {
			delete(path[i-1].children, labels[i-1])
		} else {
			break
		}
	}
	t.root.Store(newRoot)
}

// Walk invokes fn for every stored node value, for the overmem sweep and
// dump() (§4.6, §6). fn is called against a single consistent snapshot.
func (t *Trie) Walk(fn func(*Node)) {
	var rec func(n *trieNode)
	rec = func(n *trieNode) {
		if n.value != nil {
			fn(n.value)
		}
		for _, c := range n.children {
			rec(c)
		}
	}
	rec(t.root.Load())
}
