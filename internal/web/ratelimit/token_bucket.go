package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"
)

// TokenBucket is an in-memory limiter. Each key holds up to capacity tokens
// and regains capacity tokens per window, continuously.
type TokenBucket struct {
	mu       sync.Mutex
	buckets  map[string]*bucket
	capacity float64
	window   time.Duration
	now      func() time.Time
}

type bucket struct {
	tokens float64
	last   time.Time
}

// NewTokenBucket creates an in-memory limiter of limit requests per window
func NewTokenBucket(limit int, window time.Duration) *TokenBucket {
	return &TokenBucket{
		buckets:  make(map[string]*bucket),
		capacity: float64(limit),
		window:   window,
		now:      time.Now,
	}
}

// Allow takes a token from key's bucket if one is available
func (tb *TokenBucket) Allow(_ context.Context, key string) (*Decision, error) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := tb.now()
	b, ok := tb.buckets[key]
	if !ok {
		b = &bucket{tokens: tb.capacity, last: now}
		tb.buckets[key] = b
	}

	if elapsed := now.Sub(b.last); elapsed > 0 {
		regained := elapsed.Seconds() / tb.window.Seconds() * tb.capacity
		b.tokens = math.Min(tb.capacity, b.tokens+regained)
		b.last = now
	}

	d := &Decision{Limit: int(tb.capacity)}
	if b.tokens >= 1 {
		b.tokens--
		d.Allowed = true
	}
	d.Remaining = int(math.Floor(b.tokens))

	missing := (tb.capacity - b.tokens) / tb.capacity
	d.ResetAt = now.Add(time.Duration(missing * float64(tb.window)))
	return d, nil
}

// Prune drops buckets idle for longer than a window; a full bucket carries
// no state worth keeping
func (tb *TokenBucket) Prune() int {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := tb.now()
	removed := 0
	for key, b := range tb.buckets {
		if now.Sub(b.last) > tb.window {
			delete(tb.buckets, key)
			removed++
		}
	}
	return removed
}
