// Package resilientcache wraps internal/cache.Store behind internal/breaker
// so a misbehaving store degrades gracefully instead of cascading failures
// into every caller, per §4.3. Grounded on the teacher's layering of
// internal/cache.SizedLRU behind its gateway's resilience middleware.
package resilientcache

import (
	"go.uber.org/zap"

	"github.com/cortexlabs/cortexcache/internal/breaker"
	"github.com/cortexlabs/cortexcache/internal/cache"
	"github.com/cortexlabs/cortexcache/internal/cortexerr"
	"github.com/cortexlabs/cortexcache/internal/fingerprint"
)

// Cache is the minimal surface resilientcache wraps, satisfied by
// *cache.Store (and by fakes in tests that want to simulate failures).
type Cache interface {
	Store(fp fingerprint.FP, content []byte, version string) (*cache.Entry, error)
	Get(fp fingerprint.FP) (*cache.Entry, bool)
	Invalidate(prefix string) int
	Metrics() cache.Snapshot
}

// Wrapper gates store/get/invalidate calls through a Breaker and applies
// the §4.3 fallback table when the breaker denies a call.
type Wrapper struct {
	cache Cache
	brk   *breaker.Breaker
	log   *zap.Logger
}

// New constructs a Wrapper around cache, gated by brk.
func New(c Cache, brk *breaker.Breaker, log *zap.Logger) *Wrapper {
	if log == nil {
		log = zap.NewNop()
	}
	return &Wrapper{cache: c, brk: brk, log: log.Named("resilientcache")}
}

// Store writes through to the cache, returning success (a no-op) when the
// breaker denies the call, per the §4.3 fallback table.
func (w *Wrapper) Store(fp fingerprint.FP, content []byte, version string) (*cache.Entry, error) {
	allowed, _ := w.brk.Allow()
	if !allowed {
		return nil, nil
	}

	entry, err := w.cache.Store(fp, content, version)
	w.recordOutcome(err)
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// Get reads through to the cache, returning a miss when the breaker denies
// the call.
func (w *Wrapper) Get(fp fingerprint.FP) (*cache.Entry, bool) {
	allowed, _ := w.brk.Allow()
	if !allowed {
		return nil, false
	}

	entry, hit := w.cache.Get(fp)
	w.brk.Success() // Get has no error return; misses are still successes (§4.3)
	return entry, hit
}

// Invalidate clears matching entries, returning 0 when the breaker denies
// the call.
func (w *Wrapper) Invalidate(prefix string) int {
	allowed, _ := w.brk.Allow()
	if !allowed {
		return 0
	}

	count := w.cache.Invalidate(prefix)
	w.brk.Success()
	return count
}

// Metrics passes through to the underlying cache; metrics reads are not
// gated by the breaker.
func (w *Wrapper) Metrics() cache.Snapshot {
	return w.cache.Metrics()
}

// BreakerMetrics exposes the wrapped breaker's observability snapshot.
func (w *Wrapper) BreakerMetrics() breaker.Metrics {
	return w.brk.Metrics()
}

func (w *Wrapper) recordOutcome(err error) {
	if err == nil {
		w.brk.Success()
		return
	}
	if isCallerError(err) {
		return
	}
	w.brk.Failure()
}

// isCallerError reports whether err reflects rejected caller input (not a
// store malfunction), per §4.3's "every underlying store exception counts
// as a breaker failure" — input validation rejects are not exceptions.
func isCallerError(err error) bool {
	switch cortexerr.KindOf(err) {
	case cortexerr.KindContentTooSmall, cortexerr.KindVersionMismatch, cortexerr.KindFull:
		return true
	default:
		return false
	}
}
