// Package warmer implements the cache warmer of §4.8: it replays seed
// queries through the normal generate-then-cache path to populate the
// cache ahead of live traffic, bounded by a channel-based semaphore sized
// by concurrency. Grounded on the teacher's internal/drivers.StreamManager
// acquire/release semaphore, adapted from stream slots to warming
// work-items and extended with §4.8's adaptive rule, which sizes the number
// of queries issued per run (concurrency stays at cfg.Concurrency).
package warmer

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cortexlabs/cortexcache/internal/config"
	"github.com/cortexlabs/cortexcache/internal/fingerprint"
)

// Generator produces cacheable content for a seed query, per §6's
// UpstreamGenerator collaborator interface.
type Generator func(ctx context.Context, query string) (content []byte, tokenCount int, err error)

// StoreFunc persists generated content under the cache version passed to
// New. A closure lets callers adapt either *cache.Store or
// *resilientcache.Wrapper without this package importing either.
type StoreFunc func(fp fingerprint.FP, content []byte, version string) error

// Report summarizes one warming run, per §4.8.
type Report struct {
	Attempted   int
	Succeeded   int
	Failed      int
	EntriesAdded int
	TokensAdded int
	Elapsed     time.Duration
}

// Warmer replays seed queries through Generator and Store.
type Warmer struct {
	cfg       config.WarmerConfig
	version   string
	generate  Generator
	store     StoreFunc
	log       *zap.Logger
}

// New constructs a Warmer. generate produces content for a query; store
// persists it under the cache version version.
func New(cfg config.WarmerConfig, version string, generate Generator, store StoreFunc, log *zap.Logger) *Warmer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Warmer{cfg: cfg, version: version, generate: generate, store: store, log: log.Named("warmer")}
}

// TrafficSnapshot summarizes recent cache behavior, used by the adaptive
// rule to size the per-run query budget.
type TrafficSnapshot struct {
	HitRate           float64
	CacheUtilization  float64
}

// effectiveMaxQueries applies §4.8's adaptive rule: if the hit rate is
// below target and utilization is low, allow up to 2x maxQueries; if
// utilization is high, cap tightly regardless of hit rate.
func effectiveMaxQueries(cfg config.WarmerConfig, targetHitRate float64, traffic TrafficSnapshot) int {
	if !cfg.Adaptive {
		return cfg.MaxQueries
	}
	if traffic.CacheUtilization > 0.8 {
		if cfg.MaxQueries < 10 {
			return cfg.MaxQueries
		}
		return 10
	}
	if traffic.HitRate < targetHitRate {
		return 2 * cfg.MaxQueries
	}
	return cfg.MaxQueries
}

// Warm issues up to the (adaptively sized) query budget concurrently,
// bounded by cfg.Concurrency in-flight at once.
func (w *Warmer) Warm(ctx context.Context, seeds []string, targetHitRate float64, traffic TrafficSnapshot) Report {
	start := time.Now()
	limit := effectiveMaxQueries(w.cfg, targetHitRate, traffic)
	if limit < len(seeds) {
		w.log.Info("warmer truncating seed set to query budget",
			zap.Int("seeds", len(seeds)), zap.Int("limit", limit))
		seeds = seeds[:limit]
	}

	sem := make(chan struct{}, w.cfg.Concurrency)
	var mu sync.Mutex
	var wg sync.WaitGroup
	report := Report{}

	for _, query := range seeds {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			mu.Lock()
			report.Failed += len(seeds) - report.Attempted
			mu.Unlock()
			wg.Wait()
			report.Elapsed = time.Since(start)
			return report
		}

		wg.Add(1)
		go func(query string) {
			defer wg.Done()
			defer func() { <-sem }()

			mu.Lock()
			report.Attempted++
			mu.Unlock()

			content, tokens, err := w.generate(ctx, query)
			if err != nil {
				mu.Lock()
				report.Failed++
				mu.Unlock()
				return
			}

			fp := fingerprint.Compute(query)
			if err := w.store(fp, content, w.version); err != nil {
				mu.Lock()
				report.Failed++
				mu.Unlock()
				return
			}

			mu.Lock()
			report.Succeeded++
			report.EntriesAdded++
			report.TokensAdded += tokens
			mu.Unlock()
		}(query)
	}

	wg.Wait()
	report.Elapsed = time.Since(start)
	return report
}
