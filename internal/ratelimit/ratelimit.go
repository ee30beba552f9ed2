// Package ratelimit implements the per-user token bucket of §4.5, plus an
// optional global limiter applied before it. Grounded on the teacher's
// internal/ratelimit.TenantLimiter lazy per-key *rate.Limiter map, adapted
// from tenant/operation keys to per-user keys and from a plain Allow()
// bool to the retry_after-carrying RateLimited error §4.5 specifies.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/cortexlabs/cortexcache/internal/config"
	"github.com/cortexlabs/cortexcache/internal/cortexerr"
)

// Limiter is the per-user token bucket rate limiter, with an optional
// global limiter checked first.
type Limiter struct {
	mu       sync.Mutex
	cfg      config.RateLimitConfig
	perUser  map[string]*rate.Limiter
	global   *rate.Limiter
}

// New constructs a Limiter. If cfg.Enabled is false, TryAcquire always
// succeeds.
func New(cfg config.RateLimitConfig) *Limiter {
	l := &Limiter{
		cfg:     cfg,
		perUser: make(map[string]*rate.Limiter),
	}
	return l
}

// WithGlobalLimit installs a global limiter of the given calls-per-minute
// capacity, applied before the per-user limiter on every TryAcquire call.
func (l *Limiter) WithGlobalLimit(maxCallsPerMinute int) *Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.global = rate.NewLimiter(perSecondRate(maxCallsPerMinute), maxCallsPerMinute)
	return l
}

func perSecondRate(maxCallsPerMinute int) rate.Limit {
	return rate.Limit(float64(maxCallsPerMinute) / 60.0)
}

// TryAcquire attempts to consume cost tokens for userID. On denial it
// returns a RateLimited error carrying RetryAfter, per §4.5's
// retry_after = (cost - tokens) / refillRate formula.
func (l *Limiter) TryAcquire(userID string, cost int) error {
	const op = "ratelimit.tryAcquire"
	if !l.cfg.Enabled {
		return nil
	}
	if cost <= 0 {
		cost = 1
	}

	l.mu.Lock()
	global := l.global
	limiter, ok := l.perUser[userID]
	if !ok {
		limiter = rate.NewLimiter(perSecondRate(l.cfg.MaxCallsPerMinute), l.cfg.MaxCallsPerMinute)
		l.perUser[userID] = limiter
	}
	l.mu.Unlock()

	if global != nil {
		if !global.AllowN(time.Now(), cost) {
			retryAfter := reservationDelay(global, cost)
			return newRateLimited(op, retryAfter)
		}
	}

	if !limiter.AllowN(time.Now(), cost) {
		retryAfter := reservationDelay(limiter, cost)
		return newRateLimited(op, retryAfter)
	}
	return nil
}

// reservationDelay computes how long the caller must wait before cost
// tokens are available, using a reservation that is cancelled immediately
// so it never actually consumes budget — AllowN already told us to deny.
func reservationDelay(limiter *rate.Limiter, cost int) time.Duration {
	now := time.Now()
	res := limiter.ReserveN(now, cost)
	defer res.CancelAt(now)
	if !res.OK() {
		return 0
	}
	delay := res.DelayFrom(now)
	if delay < 0 {
		return 0
	}
	return delay
}

func newRateLimited(op string, retryAfter time.Duration) error {
	return &RateLimitedError{Error: cortexerr.New(op, cortexerr.KindRateLimited, nil), RetryAfter: retryAfter}
}

// RateLimitedError extends cortexerr.Error with the retry_after duration
// §4.5 requires callers be able to read off a denial.
type RateLimitedError struct {
	*cortexerr.Error
	RetryAfter time.Duration
}

// Unwrap exposes the embedded *cortexerr.Error itself (not its cause) so
// errors.As(err, &cortexErr) and cortexerr.KindOf still work through this
// wrapper; the promoted Unwrap would otherwise return the nil cause.
func (e *RateLimitedError) Unwrap() error { return e.Error }
