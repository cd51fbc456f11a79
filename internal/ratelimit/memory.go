package ratelimit

import (
	"errors"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// MemoryLimiter is a per-key token bucket for single-instance deployments:
// limit attempts per window, refilled evenly.
type MemoryLimiter struct {
	mu       sync.Mutex
	limiters map[string]*entry
	every    rate.Limit
	burst    int
	idle     time.Duration
	now      func() time.Time
}

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewMemoryLimiter allows limit attempts per window for each key.
func NewMemoryLimiter(limit int, window time.Duration) (*MemoryLimiter, error) {
	if limit <= 0 || window <= 0 {
		return nil, errors.New("rate limiter requires positive limit and window")
	}
	return &MemoryLimiter{
		limiters: make(map[string]*entry),
		every:    rate.Every(window / time.Duration(limit)),
		burst:    limit,
		idle:     2 * window,
		now:      time.Now,
	}, nil
}

func (l *MemoryLimiter) Allow(key string) bool {
	key = strings.TrimSpace(key)
	if key == "" {
		key = "unknown"
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.limiters[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(l.every, l.burst)}
		l.limiters[key] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

// Sweep drops keys idle for longer than two windows; their buckets are
// full again by then.
func (l *MemoryLimiter) Sweep() int {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for key, e := range l.limiters {
		if now.Sub(e.lastSeen) > l.idle {
			delete(l.limiters, key)
			removed++
		}
	}
	return removed
}
