// Package cache implements the answer cache: a concurrent trie of per-name
// RRset chains with TTL expiry, trust-ranked replacement, negative caching,
// stale-serve semantics and a covering-NSEC index.
package cache

import "errors"

// ErrCache is a package-level sentinel for cache errors. The errors below
// are independent sentinels and do not wrap it; callers match them
// individually with errors.Is.
var ErrCache = errors.New("cache error")

var (
	// ErrNotFound is returned when a lookup has no partial match at all —
	// not even an ancestor node exists in the trie.
	ErrNotFound = errors.New("cache: not found")

	// ErrUnchanged is returned by Add when the new header was refused:
	// both it and its predecessor are NONEXISTENT, it has lower trust than
	// an active or NONEXISTENT predecessor, or it duplicates the rdata of
	// an active NS/A/AAAA/DS/RRSIG predecessor. Add does not refuse a
	// header because an NXDOMAIN entry exists at the node.
	ErrUnchanged = errors.New("cache: unchanged")

	// ErrShuttingDown is returned by any call made after Shutdown.
	ErrShuttingDown = errors.New("cache: shutting down")
)
