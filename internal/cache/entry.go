// Package cache implements the token-threshold-gated content cache: a
// concurrent map keyed by query fingerprint with TTL expiry, combined
// LRU+frequency eviction, memory-pressure cleanup, and concurrent-safe
// metrics (spec §3, §4.1).
//
// The eviction policy generalizes the teacher's internal/cache/sized_cache.go
// SizedLRU (byte-budget container/list eviction) from a single LRU signal
// to the three-stage, score-weighted policy spec §4.1 requires.
package cache

import (
	"time"

	"github.com/cortexlabs/cortexcache/internal/fingerprint"
)

// Entry is a single cached artifact, keyed by its query fingerprint.
// Content is immutable after Store; only LastAccessed/AccessCount mutate,
// and only through Get.
type Entry struct {
	Fingerprint  fingerprint.FP
	Content      []byte
	TokenCount   int
	CreatedAt    time.Time
	LastAccessed time.Time
	AccessCount  int64
	SizeBytes    int64
	Version      string
}

// clone returns a copy of e safe to hand to a caller without them being
// able to mutate the store's internal state through the returned pointer.
func (e *Entry) clone() *Entry {
	cp := *e
	cp.Content = make([]byte, len(e.Content))
	copy(cp.Content, e.Content)
	return &cp
}
