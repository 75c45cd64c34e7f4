package api

import (
	"sync"
	"time"
)

// RateLimiter bounds how often a keyed action may happen. The interface
// exists so the in-process implementation can be swapped for an external
// store in a multi-process deployment.
type RateLimiter interface {
	Allow(key string) bool
}

// slidingWindowLimiter counts hits per key inside a rolling time window.
// Stale keys are swept on use so the map stays bounded by the set of keys
// active within one window.
type slidingWindowLimiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	hits   map[string][]time.Time
	now    func() time.Time

	lastSweep time.Time
}

// NewSlidingWindowLimiter allows at most limit hits per key per window
func NewSlidingWindowLimiter(limit int, window time.Duration) RateLimiter {
	return &slidingWindowLimiter{
		limit:  limit,
		window: window,
		hits:   map[string][]time.Time{},
		now:    time.Now,
	}
}

func (l *slidingWindowLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)

	recent := prune(l.hits[key], cutoff)
	if len(recent) >= l.limit {
		l.hits[key] = recent
		return false
	}
	l.hits[key] = append(recent, now)

	if now.Sub(l.lastSweep) > l.window {
		l.sweep(cutoff)
		l.lastSweep = now
	}
	return true
}

func prune(stamps []time.Time, cutoff time.Time) []time.Time {
	kept := stamps[:0]
	for _, t := range stamps {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	return kept
}

func (l *slidingWindowLimiter) sweep(cutoff time.Time) {
	for key, stamps := range l.hits {
		kept := prune(stamps, cutoff)
		if len(kept) == 0 {
			delete(l.hits, key)
			continue
		}
		l.hits[key] = kept
	}
}
