package ratelimit

import (
	"sync"
	"time"
)

// Limiter is a sliding window limiter keyed by client.
type Limiter struct {
	mu      sync.Mutex
	limits  map[string][]time.Time
	window  time.Duration
	maxHits int
	now     func() time.Time
}

func NewLimiter(window time.Duration, maxHits int) *Limiter {
	return &Limiter{
		limits:  make(map[string][]time.Time),
		window:  window,
		maxHits: maxHits,
		now:     time.Now,
	}
}

// WithClock replaces the time source, for tests.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
	return l
}

func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	hits := l.pruneLocked(key, now)

	if len(hits) >= l.maxHits {
		return false
	}

	l.limits[key] = append(hits, now)
	return true
}

// RetryAfter is how long key has to wait for its oldest hit to leave the
// window. Zero when a request would be allowed now.
func (l *Limiter) RetryAfter(key string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	hits := l.pruneLocked(key, now)
	if len(hits) < l.maxHits || len(hits) == 0 {
		return 0
	}
	return hits[0].Add(l.window).Sub(now)
}

func (l *Limiter) pruneLocked(key string, now time.Time) []time.Time {
	windowStart := now.Add(-l.window)

	hits, exists := l.limits[key]
	if !exists {
		return nil
	}

	valid := hits[:0]
	for _, hit := range hits {
		if hit.After(windowStart) {
			valid = append(valid, hit)
		}
	}
	if len(valid) == 0 {
		delete(l.limits, key)
		return nil
	}
	l.limits[key] = valid
	return valid
}
