package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/amishk599/jobagent/internal/model"
)

// Limiter enforces a minimum delay between requests to the same target
// (an API host). It only ever delays; it never rejects a call.
type Limiter struct {
	mu       sync.Mutex
	lastCall map[string]time.Time // key: target host
	minDelay time.Duration        // default delay between requests to same target
}

// NewLimiter creates a rate limiter that enforces minDelay between
// consecutive requests to the same target.
func NewLimiter(minDelay time.Duration) *Limiter {
	return &Limiter{
		lastCall: make(map[string]time.Time),
		minDelay: minDelay,
	}
}

// Wait blocks until the default delay has passed since the last request to target.
// Returns an error if the context is cancelled while waiting.
func (r *Limiter) Wait(ctx context.Context, target string) error {
	return r.wait(ctx, target, r.minDelay)
}

// Pacer returns a view of the limiter that enforces interval instead of the
// default. Views share the last-call bookkeeping, so two sources on the same
// host stay spaced even when they run with different intervals.
func (r *Limiter) Pacer(interval time.Duration) model.Pacer {
	return pacer{limiter: r, interval: interval}
}

func (r *Limiter) wait(ctx context.Context, target string, delay time.Duration) error {
	r.mu.Lock()
	last, ok := r.lastCall[target]
	now := time.Now()

	if !ok || delay <= 0 {
		// First request for this target, no wait needed.
		r.lastCall[target] = now
		r.mu.Unlock()
		return nil
	}

	elapsed := now.Sub(last)
	if elapsed >= delay {
		r.lastCall[target] = now
		r.mu.Unlock()
		return nil
	}

	remaining := delay - elapsed
	r.mu.Unlock()

	timer := time.NewTimer(remaining)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("rate limiter wait for %s: %w", target, ctx.Err())
	case <-timer.C:
	}

	// Record the actual time after waiting.
	r.mu.Lock()
	r.lastCall[target] = time.Now()
	r.mu.Unlock()

	return nil
}

type pacer struct {
	limiter  *Limiter
	interval time.Duration
}

func (p pacer) Wait(ctx context.Context, target string) error {
	return p.limiter.wait(ctx, target, p.interval)
}
