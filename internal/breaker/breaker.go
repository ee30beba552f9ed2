// Package breaker implements the three-state circuit breaker of §4.2: a
// CLOSED/HALF_OPEN/OPEN gate that gives a failing dependency (the cache
// store, a tool backend) time to recover instead of hammering it, grounded
// on the teacher's doc-level design in resilience's CircuitBreaker and
// generalized from its Closed/Open/HalfOpen sketch into a concrete,
// deterministic (no randomness) state machine.
package breaker

import (
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cortexlabs/cortexcache/internal/clock"
	"github.com/cortexlabs/cortexcache/internal/config"
	"github.com/cortexlabs/cortexcache/internal/cortexerr"
)

// State is one of the three breaker states.
type State string

const (
	Closed   State = "CLOSED"
	HalfOpen State = "HALF_OPEN"
	Open     State = "OPEN"
)

const maxRecentFailures = 50

type outcome struct {
	at      time.Time
	failure bool
}

// Breaker is a concurrency-safe circuit breaker. It does not invoke the
// protected call itself — callers ask Allow before calling and report the
// outcome with Success/Failure, the same separation the teacher's
// RateLimiter.Allow/AllowN split uses for composability with Executor.
type Breaker struct {
	mu  sync.Mutex
	cfg config.BreakerConfig
	clk clock.Clock
	log *zap.Logger

	state       State
	enteredAt   time.Time
	openedAt    time.Time
	stateChanges int64

	consecutiveFailures  int
	consecutiveSuccesses int
	halfOpenProbesInFlight int
	halfOpenAdmitted     int64 // monotonic counter gating recoveryFactor admission

	window []outcome // rolling window of outcomes within RollingWindowSeconds

	forced      bool
	forcedState State
}

// New constructs a Breaker starting in CLOSED state.
func New(cfg config.BreakerConfig, clk clock.Clock, log *zap.Logger) *Breaker {
	if clk == nil {
		clk = clock.Real{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	now := clk.Now()
	return &Breaker{
		cfg:       cfg,
		clk:       clk,
		log:       log.Named("breaker"),
		state:     Closed,
		enteredAt: now,
	}
}

// Allow reports whether a call may proceed, per §4.2's admission policy.
// It performs the OPEN→HALF_OPEN time-tick transition inline when due.
func (b *Breaker) Allow() (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.forced {
		if b.forcedState == Open {
			return false, cortexerr.New("breaker.allow", cortexerr.KindCircuitOpen, nil)
		}
		return true, nil
	}

	now := b.clk.Now()

	if b.state == Open {
		if now.Sub(b.openedAt) >= b.timeout() {
			b.transitionLocked(HalfOpen, now)
		} else {
			return false, cortexerr.New("breaker.allow", cortexerr.KindCircuitOpen, nil)
		}
	}

	switch b.state {
	case Closed:
		return true, nil
	case HalfOpen:
		if b.halfOpenProbesInFlight >= b.cfg.SuccessThreshold {
			return false, cortexerr.New("breaker.allow", cortexerr.KindCircuitThrottling, nil)
		}
		if !b.admitHalfOpenLocked() {
			return false, cortexerr.New("breaker.allow", cortexerr.KindCircuitThrottling, nil)
		}
		b.halfOpenProbesInFlight++
		return true, nil
	default: // Open, already handled above, kept for exhaustiveness
		return false, cortexerr.New("breaker.allow", cortexerr.KindCircuitOpen, nil)
	}
}

// admitHalfOpenLocked implements deterministic fractional admission:
// permit call k (1-indexed) iff ceil(k*recoveryFactor) > ceil((k-1)*recoveryFactor),
// so the first call after entering HALF_OPEN is always admitted.
// This is a sliding counter, not randomness, per §4.2.
func (b *Breaker) admitHalfOpenLocked() bool {
	factor := b.cfg.RecoveryFactor
	if factor <= 0 {
		factor = 1
	}
	if factor >= 1 {
		b.halfOpenAdmitted++
		return true
	}
	b.halfOpenAdmitted++
	k := b.halfOpenAdmitted
	prev := int64(math.Ceil(float64(k-1) * factor))
	cur := int64(math.Ceil(float64(k) * factor))
	return cur > prev
}

// Success records a successful call outcome.
func (b *Breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.clk.Now()

	b.recordOutcomeLocked(now, false)
	b.consecutiveFailures = 0
	b.consecutiveSuccesses++

	if b.state == HalfOpen {
		if b.halfOpenProbesInFlight > 0 {
			b.halfOpenProbesInFlight--
		}
		if b.consecutiveSuccesses >= b.cfg.SuccessThreshold {
			b.transitionLocked(Closed, now)
		}
	}
}

// Failure records a failed call outcome.
func (b *Breaker) Failure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.clk.Now()

	b.recordOutcomeLocked(now, true)
	b.consecutiveSuccesses = 0
	b.consecutiveFailures++

	if b.state == HalfOpen {
		if b.halfOpenProbesInFlight > 0 {
			b.halfOpenProbesInFlight--
		}
		b.transitionLocked(Open, now)
		return
	}

	if b.state == Closed {
		if b.consecutiveFailures >= b.cfg.FailureThreshold || b.failureRateLocked(now) >= b.cfg.RateThreshold {
			b.transitionLocked(Open, now)
		}
	}
}

func (b *Breaker) recordOutcomeLocked(now time.Time, failure bool) {
	b.window = append(b.window, outcome{at: now, failure: failure})
	b.pruneWindowLocked(now)
	if len(b.window) > maxRecentFailures*4 {
		// bound unbounded growth even under a long rolling window with
		// high call volume; recent_failures itself is capped separately.
		b.window = b.window[len(b.window)-maxRecentFailures*4:]
	}
}

func (b *Breaker) pruneWindowLocked(now time.Time) {
	cutoff := now.Add(-time.Duration(b.cfg.RollingWindowSeconds * float64(time.Second)))
	i := 0
	for i < len(b.window) && b.window[i].at.Before(cutoff) {
		i++
	}
	if i > 0 {
		b.window = b.window[i:]
	}
}

func (b *Breaker) failureRateLocked(now time.Time) float64 {
	b.pruneWindowLocked(now)
	if len(b.window) == 0 {
		return 0
	}
	failures := 0
	for _, o := range b.window {
		if o.failure {
			failures++
		}
	}
	return float64(failures) / float64(len(b.window))
}

func (b *Breaker) timeout() time.Duration {
	return time.Duration(b.cfg.TimeoutSeconds * float64(time.Second))
}

// transitionLocked moves the breaker to newState, resetting the per-state
// counters per §4.2 ("On any transition, reset relevant counters").
func (b *Breaker) transitionLocked(newState State, now time.Time) {
	if b.state == newState {
		return
	}
	b.state = newState
	b.enteredAt = now
	b.stateChanges++
	b.consecutiveFailures = 0
	b.consecutiveSuccesses = 0
	b.halfOpenProbesInFlight = 0
	b.halfOpenAdmitted = 0

	if newState == Open {
		b.openedAt = now
	}

	b.log.Info("breaker state transition", zap.String("state", string(newState)))
}

// ForceOpen manually forces the breaker open, bypassing the state machine.
// Per §4.2, manual overrides must only be invoked from admin surfaces.
func (b *Breaker) ForceOpen() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.forced = true
	b.forcedState = Open
}

// ForceClosed manually forces the breaker closed.
func (b *Breaker) ForceClosed() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.forced = true
	b.forcedState = Closed
}

// Reset clears any manual override and returns the breaker to CLOSED with
// all counters cleared.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.clk.Now()
	b.forced = false
	b.window = nil
	b.state = Closed
	b.enteredAt = now
	b.consecutiveFailures = 0
	b.consecutiveSuccesses = 0
	b.halfOpenProbesInFlight = 0
	b.halfOpenAdmitted = 0
	b.stateChanges++
}

// Metrics is the observability snapshot required by §4.2.
type Metrics struct {
	State             State
	FailureRate       float64
	TimeInCurrentState time.Duration
	StateChanges      int64
	RecentFailures    int
}

// Metrics returns the current breaker observability snapshot.
func (b *Breaker) Metrics() Metrics {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.clk.Now()
	b.pruneWindowLocked(now)

	recent := 0
	for i := len(b.window) - 1; i >= 0 && recent < maxRecentFailures; i-- {
		if b.window[i].failure {
			recent++
		}
	}

	return Metrics{
		State:              b.state,
		FailureRate:        b.failureRateLocked(now),
		TimeInCurrentState: now.Sub(b.enteredAt),
		StateChanges:       b.stateChanges,
		RecentFailures:     recent,
	}
}

// CurrentState returns the breaker's current state, honoring a force
// override if one is active.
func (b *Breaker) CurrentState() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.forced {
		return b.forcedState
	}
	return b.state
}
