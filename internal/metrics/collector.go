// Package metrics exports the cache, breaker, and executor's internal
// counters as Prometheus metrics, grounded on the teacher's
// internal/gateway/metrics.Collector (package-level promauto registration,
// a thin Collector wrapper exposing Record* methods).
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/cortexlabs/cortexcache/internal/breaker"
	"github.com/cortexlabs/cortexcache/internal/cache"
)

var (
	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cortexcache_cache_hits_total",
		Help: "Total number of cache hits.",
	})
	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cortexcache_cache_misses_total",
		Help: "Total number of cache misses.",
	})
	cacheEvictionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cortexcache_cache_evictions_total",
		Help: "Total number of cache evictions, by stage.",
	}, []string{"stage"})
	cacheEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cortexcache_cache_entries",
		Help: "Current number of cached entries.",
	})
	cachePressure = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cortexcache_cache_memory_pressure_ratio",
		Help: "Current fraction of maxSizeBytes in use.",
	})
	cacheCostSavings = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cortexcache_cache_estimated_cost_savings",
		Help: "Estimated token-cost savings from caching.",
	})
	cacheHitLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cortexcache_cache_hit_latency_seconds",
		Help:    "Observed cache hit latency.",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12),
	})
	cacheMissLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cortexcache_cache_miss_latency_seconds",
		Help:    "Observed cache miss latency.",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12),
	})

	breakerState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cortexcache_breaker_state",
		Help: "Current breaker state (0=CLOSED, 1=HALF_OPEN, 2=OPEN).",
	})
	breakerFailureRate = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cortexcache_breaker_failure_rate",
		Help: "Rolling failure rate observed by the breaker.",
	})
	breakerStateChangesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cortexcache_breaker_state_changes_total",
		Help: "Total number of breaker state transitions.",
	})

	toolCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cortexcache_tool_calls_total",
		Help: "Total tool calls, by outcome.",
	}, []string{"outcome"})
)

// Collector publishes Snapshot-style metrics as Prometheus gauges/counters
// each time one of its Collect methods is called; it runs no sampling loop
// of its own. Counter-like Snapshot fields (Hits, Misses, ...) are monotonic
// within a process, so each Collect call publishes the delta since the last
// observation.
type Collector struct {
	startTime time.Time

	lastHits      int64
	lastMisses    int64
	lastEvictions map[cache.EvictionStage]int64
	lastStateChanges int64
}

// NewCollector constructs a Collector.
func NewCollector() *Collector {
	return &Collector{
		startTime:     time.Now(),
		lastEvictions: make(map[cache.EvictionStage]int64),
	}
}

// CollectCache publishes a cache.Snapshot's counters and gauges.
func (c *Collector) CollectCache(snap cache.Snapshot) {
	if d := snap.Hits - c.lastHits; d > 0 {
		cacheHitsTotal.Add(float64(d))
	}
	c.lastHits = snap.Hits

	if d := snap.Misses - c.lastMisses; d > 0 {
		cacheMissesTotal.Add(float64(d))
	}
	c.lastMisses = snap.Misses

	c.addEvictionDelta(cache.StageExpiry, snap.EvictionsExpiry)
	c.addEvictionDelta(cache.StageIntelligent, snap.EvictionsIntelligent)
	c.addEvictionDelta(cache.StageEmergency, snap.EvictionsEmergency)

	cacheEntries.Set(float64(snap.CurrentEntries))
	cachePressure.Set(snap.MemoryPressure)
	cacheCostSavings.Set(snap.EstimatedCostSavings)
	cacheHitLatency.Observe(snap.AvgHitLatency.Seconds())
	cacheMissLatency.Observe(snap.AvgMissLatency.Seconds())
}

func (c *Collector) addEvictionDelta(stage cache.EvictionStage, total int64) {
	if d := total - c.lastEvictions[stage]; d > 0 {
		cacheEvictionsTotal.WithLabelValues(string(stage)).Add(float64(d))
	}
	c.lastEvictions[stage] = total
}

// CollectBreaker publishes a breaker.Metrics snapshot.
func (c *Collector) CollectBreaker(m breaker.Metrics) {
	breakerState.Set(breakerStateValue(m.State))
	breakerFailureRate.Set(m.FailureRate)
	if d := m.StateChanges - c.lastStateChanges; d > 0 {
		breakerStateChangesTotal.Add(float64(d))
	}
	c.lastStateChanges = m.StateChanges
}

func breakerStateValue(s breaker.State) float64 {
	switch s {
	case breaker.Closed:
		return 0
	case breaker.HalfOpen:
		return 1
	case breaker.Open:
		return 2
	default:
		return -1
	}
}

// RecordToolCall increments the tool-call counter for the given outcome
// ("success" or "failure").
func (c *Collector) RecordToolCall(outcome string) {
	toolCallsTotal.WithLabelValues(outcome).Inc()
}

// Uptime returns how long this collector has been running.
func (c *Collector) Uptime() time.Duration {
	return time.Since(c.startTime)
}
