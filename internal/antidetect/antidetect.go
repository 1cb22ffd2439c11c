package antidetect

import (
	"context"
	"math/rand"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter paces requests to the target site so page fetches look less
// like a burst from a bot. A zero-value configuration never blocks.
type RateLimiter struct {
	limiter  *rate.Limiter
	minDelay time.Duration
	maxDelay time.Duration
}

// NewRateLimiter creates a new rate limiter.
// maxPerMinute <= 0 disables the per-minute cap.
func NewRateLimiter(maxPerMinute int, minDelay, maxDelay time.Duration) *RateLimiter {
	rl := &RateLimiter{
		minDelay: minDelay,
		maxDelay: maxDelay,
	}
	if maxPerMinute > 0 {
		rl.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(maxPerMinute)), 1)
	}
	return rl
}

// Wait blocks until a request can be made within rate limits
func (rl *RateLimiter) Wait(ctx context.Context) error {
	if rl == nil {
		return nil
	}
	if rl.limiter != nil {
		if err := rl.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	delay := rl.randomDelay()
	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// randomDelay returns a random duration between minDelay and maxDelay
func (rl *RateLimiter) randomDelay() time.Duration {
	if rl.maxDelay <= rl.minDelay {
		return rl.minDelay
	}
	diff := rl.maxDelay - rl.minDelay
	return rl.minDelay + time.Duration(rand.Int63n(int64(diff)))
}
