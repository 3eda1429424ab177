package analyzer

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// rateLimiter is a token bucket sized in requests per minute.
type rateLimiter struct {
	stopCh     chan struct{}
	tokens     int
	capacity   int
	refillRate int
	mu         sync.Mutex
}

// newRateLimiter creates a rate limiter with the specified requests per minute.
func newRateLimiter(requestsPerMinute int) *rateLimiter {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 60 // Default to 60 requests per minute
	}

	rl := &rateLimiter{
		tokens:     requestsPerMinute,
		capacity:   requestsPerMinute,
		refillRate: requestsPerMinute,
		stopCh:     make(chan struct{}),
	}

	go rl.refill()

	return rl
}

// wait blocks until a token is available or the context is canceled.
func (rl *rateLimiter) wait(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		if rl.tryAcquire() {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("rate limiter canceled: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

// tryAcquire attempts to acquire a token without blocking.
func (rl *rateLimiter) tryAcquire() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if rl.tokens > 0 {
		rl.tokens--
		return true
	}
	return false
}

// refill adds one token per interval up to capacity.
func (rl *rateLimiter) refill() {
	ticker := time.NewTicker(time.Minute / time.Duration(rl.refillRate))
	defer ticker.Stop()

	for {
		select {
		case <-rl.stopCh:
			return
		case <-ticker.C:
			rl.mu.Lock()
			if rl.tokens < rl.capacity {
				rl.tokens++
			}
			rl.mu.Unlock()
		}
	}
}

// reset restores the bucket to full capacity.
func (rl *rateLimiter) reset() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.tokens = rl.capacity
}

// Close stops the refill goroutine.
func (rl *rateLimiter) Close() {
	close(rl.stopCh)
}
