package cache

import (
	"container/list"
	"math"
	"sort"
	"time"
)

// evictLocked runs the three-stage eviction policy of §4.1, stopping as
// soon as enough space is freed to satisfy minFree additional bytes (or,
// when minFree is 0, as soon as memory pressure no longer needs relief).
// Caller must hold s.mu.
func (s *Store) evictLocked(minFree int64) {
	if s.satisfiedLocked(minFree) {
		return
	}

	s.expirySweepLocked()
	if s.satisfiedLocked(minFree) {
		return
	}

	s.intelligentEvictionLocked(minFree)
	if s.satisfiedLocked(minFree) {
		return
	}

	s.emergencyEvictionLocked()
}

func (s *Store) satisfiedLocked(minFree int64) bool {
	if minFree > 0 {
		return s.totalSize+minFree <= s.cfg.MaxSizeBytes
	}
	return s.pressureLocked() <= s.cfg.PressureThreshold
}

// expirySweepLocked removes every entry whose TTL has elapsed.
func (s *Store) expirySweepLocked() {
	ttl := time.Duration(s.cfg.TTLSeconds) * time.Second
	if ttl <= 0 {
		return
	}
	now := s.clock.Now()

	for elem := s.order.Front(); elem != nil; {
		next := elem.Next()
		entry := elem.Value.(*Entry)
		if now.Sub(entry.CreatedAt) > ttl {
			s.removeLocked(elem)
			s.metrics.recordEviction(StageExpiry)
			s.metrics.recordExpiration()
		}
		elem = next
	}
}

// scoredEntry pairs a list element with its eviction score for stage 2.
type scoredEntry struct {
	elem  *list.Element
	score float64
}

// intelligentEvictionLocked scores every remaining entry by
// score = α·(now−last_accessed)/ttl − β·log(1+access_count)
// and removes the highest-scoring entries until minFree is met, per §4.1.
// Ties break by larger size_bytes first, then older created_at.
func (s *Store) intelligentEvictionLocked(minFree int64) {
	if s.order.Len() == 0 {
		return
	}
	ttl := time.Duration(s.cfg.TTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = time.Second
	}
	now := s.clock.Now()
	alpha, beta := s.cfg.EvictionAlpha, s.cfg.EvictionBeta

	scored := make([]scoredEntry, 0, s.order.Len())
	for elem := s.order.Front(); elem != nil; elem = elem.Next() {
		entry := elem.Value.(*Entry)
		age := now.Sub(entry.LastAccessed).Seconds() / ttl.Seconds()
		score := alpha*age - beta*math.Log(1+float64(entry.AccessCount))
		scored = append(scored, scoredEntry{elem: elem, score: score})
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score > scored[j].score
		}
		ei := scored[i].elem.Value.(*Entry)
		ej := scored[j].elem.Value.(*Entry)
		if ei.SizeBytes != ej.SizeBytes {
			return ei.SizeBytes > ej.SizeBytes
		}
		return ei.CreatedAt.Before(ej.CreatedAt)
	})

	for _, se := range scored {
		if s.satisfiedLocked(minFree) {
			return
		}
		s.removeLocked(se.elem)
		s.metrics.recordEviction(StageIntelligent)
	}
}

// emergencyEvictionLocked falls back to pure LRU (oldest LastAccessed
// first, i.e. the back of the list) until size_bytes drops to
// emergencyTarget · maxSizeBytes, per §4.1 stage 3.
func (s *Store) emergencyEvictionLocked() {
	target := int64(s.cfg.EmergencyTarget * float64(s.cfg.MaxSizeBytes))
	for s.totalSize > target {
		elem := s.order.Back()
		if elem == nil {
			return
		}
		s.removeLocked(elem)
		s.metrics.recordEviction(StageEmergency)
	}
}
