// Package universe owns the tiered symbol scheduler (§4.2): tier
// assignment, warmth tracking, promotion/demotion callbacks, the REST
// poller that fills T2/T3 data, and the backfill worker that warms newly
// promoted symbols.
package universe

import (
	"context"
	"sync"
	"time"
)

// RateLimiter is a simple token bucket shared across the REST poller and
// backfill worker, generalizing the degraded-mode threshold logic in the
// teacher's circuit breaker (internal/store/redis/circuitbreaker.go) from a
// closed/open/half-open state machine to a token-bucket-plus-degraded-flag
// shape suited to rate-limited polling rather than failure-triggered
// tripping.
type RateLimiter struct {
	mu       sync.Mutex
	tokens   float64
	capacity float64
	refillPS float64 // tokens added per second
	last     time.Time

	consecutive429 int
	degradedUntil  time.Time

	// OnDegrade is called when the limiter enters degraded mode.
	OnDegrade func(backoff time.Duration)
	// OnRecover is called when degraded mode clears.
	OnRecover func()
}

// NewRateLimiter creates a limiter with the given capacity and refill rate
// in requests per second (§4.2: ~8 req/s across the shared REST client).
func NewRateLimiter(capacity, refillPerSecond float64) *RateLimiter {
	return &RateLimiter{
		tokens:   capacity,
		capacity: capacity,
		refillPS: refillPerSecond,
		last:     time.Now(),
	}
}

// Allow reports whether a request may proceed now, consuming a token if so.
// Always false while degraded.
func (rl *RateLimiter) Allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if rl.degraded(time.Now()) {
		return false
	}

	rl.refill()
	if rl.tokens < 1 {
		return false
	}
	rl.tokens--
	return true
}

// Wait blocks until a token is available (or ctx is done), polling at a
// short fixed interval. Shared by the REST poller/backfill worker and the
// exchange package's stop-order placement, which always acquires a token
// before a stop request (§4.7: "shared token bucket (~8 req/s)").
func (rl *RateLimiter) Wait(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		if rl.Allow() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Degraded reports whether the limiter is currently in degraded mode
// (§4.2: triggered by ≥2 consecutive 429s). It ends when the backoff window
// elapses, whether or not a request has succeeded since.
func (rl *RateLimiter) Degraded() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.degraded(time.Now())
}

func (rl *RateLimiter) degraded(now time.Time) bool {
	return now.Before(rl.degradedUntil)
}

func (rl *RateLimiter) refill() {
	now := time.Now()
	elapsed := now.Sub(rl.last).Seconds()
	rl.last = now
	rl.tokens += elapsed * rl.refillPS
	if rl.tokens > rl.capacity {
		rl.tokens = rl.capacity
	}
}

// RecordSuccess clears the consecutive-429 counter and, if currently
// degraded and the backoff window has elapsed, exits degraded mode.
func (rl *RateLimiter) RecordSuccess() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.consecutive429 = 0
	if rl.degraded(time.Now()) {
		return // still inside the backoff window — stays degraded
	}
	if !rl.degradedUntil.IsZero() {
		rl.degradedUntil = time.Time{}
		cb := rl.OnRecover
		rl.mu.Unlock()
		if cb != nil {
			cb()
		}
		rl.mu.Lock()
	}
}

// RecordRateLimited registers a 429 response. After 2 consecutive 429s,
// enters degraded mode with backoff min(60s, 2^consecutive).
func (rl *RateLimiter) RecordRateLimited() {
	rl.mu.Lock()
	rl.consecutive429++
	n := rl.consecutive429
	var backoff time.Duration
	if n >= 2 {
		exp := n
		if exp > 6 {
			exp = 6
		}
		secs := 1 << uint(exp) // cap the exponent so 2^n doesn't overflow meaningfully
		if secs > 60 {
			secs = 60
		}
		backoff = time.Duration(secs) * time.Second
		rl.degradedUntil = time.Now().Add(backoff)
	}
	cb := rl.OnDegrade
	rl.mu.Unlock()
	if n >= 2 && cb != nil {
		cb(backoff)
	}
}
