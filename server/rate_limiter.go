package server

import (
	"context"
	"sync"
	"time"
)

// Auth failure limits.
const (
	DefaultMaxAttempts     = 5
	DefaultRateLimitWindow = 15 * time.Minute
	DefaultBlockDuration   = 30 * time.Minute
)

// attemptRecord counts failed attempts from one client within a window.
type attemptRecord struct {
	count   int
	resetAt time.Time
}

// RateLimiter blocks clients that keep sending bad tokens. A client is
// blocked once it reaches maxAttempts failures inside the window; the block
// lasts blockFor from the last counted failure.
type RateLimiter struct {
	mu          sync.Mutex
	attempts    map[string]attemptRecord
	maxAttempts int
	window      time.Duration
	blockFor    time.Duration
	now         func() time.Time
}

// NewRateLimiter returns a limiter. Non-positive values select the defaults.
func NewRateLimiter(maxAttempts int, window, blockFor time.Duration) *RateLimiter {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if window <= 0 {
		window = DefaultRateLimitWindow
	}
	if blockFor <= 0 {
		blockFor = DefaultBlockDuration
	}
	return &RateLimiter{
		attempts:    make(map[string]attemptRecord),
		maxAttempts: maxAttempts,
		window:      window,
		blockFor:    blockFor,
		now:         time.Now,
	}
}

// Allow reports whether client may try to authenticate, and if not, how
// long until it may.
func (r *RateLimiter) Allow(client string) (bool, time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.attempts[client]
	now := r.now()
	if !ok || now.After(rec.resetAt) {
		return true, 0
	}
	if rec.count >= r.maxAttempts {
		return false, rec.resetAt.Sub(now)
	}
	return true, 0
}

// RecordFailure counts a failed attempt.
func (r *RateLimiter) RecordFailure(client string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	rec, ok := r.attempts[client]
	if !ok || now.After(rec.resetAt) {
		r.attempts[client] = attemptRecord{count: 1, resetAt: now.Add(r.window)}
		return
	}
	rec.count++
	if rec.count >= r.maxAttempts {
		rec.resetAt = now.Add(r.blockFor)
	}
	r.attempts[client] = rec
}

// Reset forgets client after a successful attempt.
func (r *RateLimiter) Reset(client string) {
	r.mu.Lock()
	delete(r.attempts, client)
	r.mu.Unlock()
}

// Cleanup drops expired records and returns how many were removed.
func (r *RateLimiter) Cleanup() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	removed := 0
	for client, rec := range r.attempts {
		if now.After(rec.resetAt) {
			delete(r.attempts, client)
			removed++
		}
	}
	return removed
}

// StartCleanupTicker runs Cleanup every interval until ctx is done.
func (r *RateLimiter) StartCleanupTicker(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.Cleanup()
			}
		}
	}()
}

// Count returns the number of tracked clients.
func (r *RateLimiter) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.attempts)
}
