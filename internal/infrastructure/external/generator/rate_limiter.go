package generator

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// RATE LIMITER - Token Bucket implementation
// ══════════════════════════════════════════════════════════════════════════════

// RateLimiter caps the request rate towards the generator.
type RateLimiter struct {
	mu sync.Mutex

	maxTokens   float64
	refillRate  float64 // tokens per second
	tokens      float64
	lastRefill  time.Time
	waitTimeout time.Duration
	now         func() time.Time
}

// RateLimiterConfig contains configuration for the rate limiter.
type RateLimiterConfig struct {
	// RequestsPerSecond is the maximum sustained request rate.
	RequestsPerSecond float64

	// BurstSize is the maximum number of requests that can be made in a burst.
	BurstSize int

	// WaitTimeout is the maximum time to wait for a token.
	WaitTimeout time.Duration
}

// DefaultRateLimiterConfig allows short bursts of session starts.
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		RequestsPerSecond: 20,
		BurstSize:         40,
		WaitTimeout:       5 * time.Second,
	}
}

// RateLimitError is returned when the limiter or the generator refuses a request.
type RateLimitError struct {
	RetryAfter time.Duration
	Message    string
}

func (e *RateLimitError) Error() string { return e.Message }

// NewRateLimiter creates a full bucket.
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	if config.BurstSize <= 0 {
		config.BurstSize = 1
	}
	if config.RequestsPerSecond <= 0 {
		config.RequestsPerSecond = 1
	}
	return &RateLimiter{
		maxTokens:   float64(config.BurstSize),
		refillRate:  config.RequestsPerSecond,
		tokens:      float64(config.BurstSize),
		lastRefill:  time.Now(),
		waitTimeout: config.WaitTimeout,
		now:         time.Now,
	}
}

// Allow blocks until a token is available, ctx is done or the wait would
// exceed WaitTimeout.
func (rl *RateLimiter) Allow(ctx context.Context) error {
	deadline := rl.now().Add(rl.waitTimeout)

	for {
		wait, ok := rl.tryAcquire()
		if ok {
			return nil
		}
		if rl.now().Add(wait).After(deadline) {
			return &RateLimitError{
				RetryAfter: wait,
				Message:    fmt.Sprintf("rate limit exceeded, retry after %s", wait),
			}
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// TryAllow takes a token without blocking.
func (rl *RateLimiter) TryAllow() bool {
	_, ok := rl.tryAcquire()
	return ok
}

// Drain empties the bucket after the generator answered 429.
func (rl *RateLimiter) Drain() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.tokens = 0
	rl.lastRefill = rl.now()
}

func (rl *RateLimiter) tryAcquire() (time.Duration, bool) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if elapsed := now.Sub(rl.lastRefill).Seconds(); elapsed > 0 {
		rl.tokens = min(rl.maxTokens, rl.tokens+elapsed*rl.refillRate)
		rl.lastRefill = now
	}

	if rl.tokens < 1 {
		needed := 1 - rl.tokens
		return time.Duration(needed / rl.refillRate * float64(time.Second)), false
	}
	rl.tokens--
	return 0, true
}
