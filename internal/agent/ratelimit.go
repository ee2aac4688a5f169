package agent

import (
	"context"
	"sync"
	"time"
)

// RateLimiter is a token bucket that paces generation calls. A nil
// *RateLimiter never blocks.
type RateLimiter struct {
	mu     sync.Mutex
	tokens float64
	burst  float64
	rate   float64 // tokens per second
	last   time.Time
	now    func() time.Time
}

// NewRateLimiter allows burst calls at once and perMinute calls per minute
// after that. perMinute <= 0 disables limiting and returns nil.
func NewRateLimiter(burst int, perMinute float64) *RateLimiter {
	if perMinute <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		tokens: float64(burst),
		burst:  float64(burst),
		rate:   perMinute / 60.0,
		last:   time.Now(),
		now:    time.Now,
	}
}

// reserve takes a token if one is available, else returns how long until
// the next one.
func (rl *RateLimiter) reserve() time.Duration {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.tokens += now.Sub(rl.last).Seconds() * rl.rate
	if rl.tokens > rl.burst {
		rl.tokens = rl.burst
	}
	rl.last = now

	if rl.tokens >= 1.0 {
		rl.tokens--
		return 0
	}
	return time.Duration((1.0 - rl.tokens) / rl.rate * float64(time.Second))
}

// Wait blocks until a token is available or ctx is done.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	if rl == nil {
		return ctx.Err()
	}
	for {
		wait := rl.reserve()
		if wait == 0 {
			return nil
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
