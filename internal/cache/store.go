package cache

import (
	"container/list"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cortexlabs/cortexcache/internal/clock"
	"github.com/cortexlabs/cortexcache/internal/config"
	"github.com/cortexlabs/cortexcache/internal/cortexerr"
	"github.com/cortexlabs/cortexcache/internal/fingerprint"
)

// Store is the concurrent content cache. Reads and writes of a single FP
// are linearizable; Store serializes all store/eviction traffic behind a
// single mutex, the same discipline the teacher's SizedLRU uses, with Get
// taking the same lock since a hit must move the entry to the front of
// the LRU list (§5: "read-mostly design" describes the absence of
// per-FP locks, not lock-free reads).
type Store struct {
	mu    sync.Mutex
	cfg   config.CacheConfig
	clock clock.Clock
	log   *zap.Logger

	items     map[fingerprint.FP]*list.Element
	order     *list.List // front = most recently used
	totalSize int64

	metrics *Metrics
}

// NewStore constructs a Store from cfg, using clk as the time source and
// logging through log (either may be a no-op/fake for tests).
func NewStore(cfg config.CacheConfig, clk clock.Clock, log *zap.Logger) *Store {
	if clk == nil {
		clk = clock.Real{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		cfg:     cfg,
		clock:   clk,
		log:     log.Named("cache"),
		items:   make(map[fingerprint.FP]*list.Element),
		order:   list.New(),
		metrics: newMetrics(cfg.MaxSizeBytes, cfg.BaselineTokens, cfg.TokenCost),
	}
}

// Store inserts content for fp, gated by the minTokens threshold and
// current cache version (§4.1 store contract).
func (s *Store) Store(fp fingerprint.FP, content []byte, version string) (*Entry, error) {
	const op = "cache.store"

	tokenCount := fingerprint.EstimateTokens(content)
	if tokenCount < s.cfg.MinTokens {
		return nil, cortexerr.New(op, cortexerr.KindContentTooSmall, nil)
	}
	if version != s.cfg.Version {
		return nil, cortexerr.New(op, cortexerr.KindVersionMismatch, nil)
	}

	size := int64(len(content))
	if size > s.cfg.MaxSizeBytes {
		return nil, cortexerr.New(op, cortexerr.KindFull, nil)
	}

	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if elem, exists := s.items[fp]; exists {
		old := elem.Value.(*Entry)
		s.totalSize -= old.SizeBytes
		s.order.Remove(elem)
		delete(s.items, fp)
	}

	if s.totalSize+size > s.cfg.MaxSizeBytes {
		s.evictLocked(size)
		if s.totalSize+size > s.cfg.MaxSizeBytes {
			return nil, cortexerr.New(op, cortexerr.KindFull, nil)
		}
	}

	buf := make([]byte, len(content))
	copy(buf, content)

	entry := &Entry{
		Fingerprint:  fp,
		Content:      buf,
		TokenCount:   tokenCount,
		CreatedAt:    now,
		LastAccessed: now,
		AccessCount:  0,
		SizeBytes:    size,
		Version:      version,
	}

	elem := s.order.PushFront(entry)
	s.items[fp] = elem
	s.totalSize += size

	s.metrics.recordStore()
	s.metrics.setSize(s.order.Len(), s.totalSize)

	// Preemptive cleanup: proactively relieve pressure even though this
	// store already succeeded, per §4.1's "executed when memory pressure
	// exceeds pressureThreshold" trigger.
	if s.pressureLocked() > s.cfg.PressureThreshold {
		s.evictLocked(0)
		s.metrics.setSize(s.order.Len(), s.totalSize)
	}

	return entry.clone(), nil
}

func (s *Store) pressureLocked() float64 {
	if s.cfg.MaxSizeBytes == 0 {
		return 0
	}
	return float64(s.totalSize) / float64(s.cfg.MaxSizeBytes)
}

// Get looks up fp, lazily expiring it if its TTL has elapsed.
func (s *Store) Get(fp fingerprint.FP) (*Entry, bool) {
	start := s.clock.Now()

	s.mu.Lock()
	elem, ok := s.items[fp]
	if !ok {
		s.mu.Unlock()
		s.metrics.recordMiss(s.clock.Now().Sub(start))
		return nil, false
	}

	entry := elem.Value.(*Entry)
	ttl := time.Duration(s.cfg.TTLSeconds) * time.Second
	if ttl > 0 && start.Sub(entry.CreatedAt) > ttl {
		s.removeLocked(elem)
		s.metrics.setSize(s.order.Len(), s.totalSize)
		s.mu.Unlock()
		s.metrics.recordExpiration()
		s.metrics.recordMiss(s.clock.Now().Sub(start))
		return nil, false
	}

	s.order.MoveToFront(elem)
	entry.LastAccessed = start
	entry.AccessCount++
	result := entry.clone()
	s.mu.Unlock()

	s.metrics.recordHit(s.clock.Now().Sub(start))
	return result, true
}

// Invalidate removes every entry whose fingerprint has the given prefix.
// An empty prefix invalidates the entire cache. Returns the number of
// entries removed.
func (s *Store) Invalidate(prefix string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for elem := s.order.Front(); elem != nil; {
		next := elem.Next()
		entry := elem.Value.(*Entry)
		if prefix == "" || strings.HasPrefix(string(entry.Fingerprint), prefix) {
			s.removeLocked(elem)
			count++
		}
		elem = next
	}
	s.metrics.setSize(s.order.Len(), s.totalSize)
	return count
}

// Metrics returns the current metrics snapshot (§4.1).
func (s *Store) Metrics() Snapshot {
	return s.metrics.Snapshot()
}

// removeLocked removes elem from both the list and the index; caller must
// hold s.mu.
func (s *Store) removeLocked(elem *list.Element) {
	entry := elem.Value.(*Entry)
	s.order.Remove(elem)
	delete(s.items, entry.Fingerprint)
	s.totalSize -= entry.SizeBytes
}
