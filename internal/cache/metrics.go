package cache

import (
	"sync"
	"sync/atomic"
	"time"
)

// EvictionStage identifies which eviction phase (§4.1) removed an entry.
type EvictionStage string

const (
	StageExpiry      EvictionStage = "expiry"
	StageIntelligent EvictionStage = "intelligent"
	StageEmergency   EvictionStage = "emergency"
)

// Metrics holds monotonic atomic counters, matching the teacher's
// internal/metrics/collector.go Counter/Gauge style (atomic.Int64 values,
// never a mutex-guarded plain int for hot-path increments).
type Metrics struct {
	hits        atomic.Int64
	misses      atomic.Int64
	stores      atomic.Int64
	expirations atomic.Int64

	evictionsExpiry      atomic.Int64
	evictionsIntelligent atomic.Int64
	evictionsEmergency   atomic.Int64

	// latency accumulators, ns, plus sample counts for averaging
	hitLatencyNs  atomic.Int64
	hitSamples    atomic.Int64
	missLatencyNs atomic.Int64
	missSamples   atomic.Int64

	mu              sync.RWMutex
	currentEntries  int
	totalSizeBytes  int64
	maxSizeBytes    int64
	baselineTokens  int
	tokenCost       float64
	avgTokensOnMiss float64
	missTokenSamples int64
}

func newMetrics(maxSizeBytes int64, baselineTokens int, tokenCost float64) *Metrics {
	return &Metrics{
		maxSizeBytes:   maxSizeBytes,
		baselineTokens: baselineTokens,
		tokenCost:      tokenCost,
	}
}

func (m *Metrics) recordHit(latency time.Duration) {
	m.hits.Add(1)
	m.hitLatencyNs.Add(latency.Nanoseconds())
	m.hitSamples.Add(1)
}

func (m *Metrics) recordMiss(latency time.Duration) {
	m.misses.Add(1)
	m.missLatencyNs.Add(latency.Nanoseconds())
	m.missSamples.Add(1)
}

func (m *Metrics) recordMissTokens(tokens int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.missTokenSamples++
	m.avgTokensOnMiss += (float64(tokens) - m.avgTokensOnMiss) / float64(m.missTokenSamples)
}

func (m *Metrics) recordStore() {
	m.stores.Add(1)
}

func (m *Metrics) recordExpiration() {
	m.expirations.Add(1)
}

func (m *Metrics) recordEviction(stage EvictionStage) {
	switch stage {
	case StageExpiry:
		m.evictionsExpiry.Add(1)
	case StageIntelligent:
		m.evictionsIntelligent.Add(1)
	case StageEmergency:
		m.evictionsEmergency.Add(1)
	}
}

func (m *Metrics) setSize(entries int, totalBytes int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.currentEntries = entries
	m.totalSizeBytes = totalBytes
}

// Snapshot is the point-in-time metrics view returned by Store.Metrics().
// Per §5, snapshots are atomic per-counter, not across counters: two
// fields here may reflect slightly different instants under concurrent
// load, which is the documented eventual-consistency guarantee.
type Snapshot struct {
	Hits                 int64
	Misses               int64
	Stores               int64
	Expirations          int64
	EvictionsExpiry      int64
	EvictionsIntelligent int64
	EvictionsEmergency   int64
	CurrentEntries       int
	TotalSizeBytes       int64
	HitRate              float64
	MissRate             float64
	EvictionRate         float64
	MemoryPressure       float64
	AvgHitLatency        time.Duration
	AvgMissLatency       time.Duration
	EstimatedCostSavings float64
}

// Snapshot computes the derived metrics view.
func (m *Metrics) Snapshot() Snapshot {
	hits := m.hits.Load()
	misses := m.misses.Load()
	stores := m.stores.Load()
	total := hits + misses

	evExpiry := m.evictionsExpiry.Load()
	evIntel := m.evictionsIntelligent.Load()
	evEmerg := m.evictionsEmergency.Load()
	totalEvictions := evExpiry + evIntel + evEmerg

	m.mu.RLock()
	entries := m.currentEntries
	totalBytes := m.totalSizeBytes
	maxBytes := m.maxSizeBytes
	baselineTokens := m.baselineTokens
	tokenCost := m.tokenCost
	avgTokensOnMiss := m.avgTokensOnMiss
	m.mu.RUnlock()

	var hitRate, missRate, evictionRate, pressure float64
	if total > 0 {
		hitRate = float64(hits) / float64(total)
		missRate = float64(misses) / float64(total)
	}
	if stores > 0 {
		evictionRate = float64(totalEvictions) / float64(stores)
	}
	if maxBytes > 0 {
		pressure = float64(totalBytes) / float64(maxBytes)
	}

	var avgHitLatency, avgMissLatency time.Duration
	if n := m.hitSamples.Load(); n > 0 {
		avgHitLatency = time.Duration(m.hitLatencyNs.Load() / n)
	}
	if n := m.missSamples.Load(); n > 0 {
		avgMissLatency = time.Duration(m.missLatencyNs.Load() / n)
	}

	if avgTokensOnMiss == 0 {
		avgTokensOnMiss = float64(baselineTokens)
	}

	// Cost-savings model (§4.1): baseline cost per miss vs. a cheap hit,
	// informational only, never gates caching decisions (§9).
	costSavings := float64(hits)*0.95*float64(baselineTokens)*tokenCost +
		float64(misses)*0.30*avgTokensOnMiss*tokenCost

	return Snapshot{
		Hits:                 hits,
		Misses:               misses,
		Stores:               stores,
		Expirations:          m.expirations.Load(),
		EvictionsExpiry:      evExpiry,
		EvictionsIntelligent: evIntel,
		EvictionsEmergency:   evEmerg,
		CurrentEntries:       entries,
		TotalSizeBytes:       totalBytes,
		HitRate:              hitRate,
		MissRate:             missRate,
		EvictionRate:         evictionRate,
		MemoryPressure:       pressure,
		AvgHitLatency:        avgHitLatency,
		AvgMissLatency:       avgMissLatency,
		EstimatedCostSavings: costSavings,
	}
}
