package ratelimit

import (
	"context"
	"sync"
	"time"
)

type counter struct {
	start time.Time
	count int
}

// MemoryLimiter keeps fixed-window counters in process. The number of
// tracked clients is bounded by maxKeys; windows older than retention are
// dropped.
type MemoryLimiter struct {
	mu        sync.Mutex
	counters  map[string]*counter
	limit     int
	window    time.Duration
	retention time.Duration
	maxKeys   int
	lastSweep time.Time
	now       func() time.Time
}

func NewMemoryLimiter(limit int, window, retention time.Duration, maxKeys int) *MemoryLimiter {
	if window <= 0 {
		window = time.Minute
	}
	if retention < window {
		retention = window
	}
	if maxKeys <= 0 {
		maxKeys = 10000
	}
	return &MemoryLimiter{
		counters:  make(map[string]*counter),
		limit:     limit,
		window:    window,
		retention: retention,
		maxKeys:   maxKeys,
		now:       time.Now,
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	start := now.Truncate(l.window)

	if now.Sub(l.lastSweep) >= l.window {
		l.sweep(now)
		l.lastSweep = now
	}

	c, ok := l.counters[key]
	if !ok {
		if len(l.counters) >= l.maxKeys {
			l.evictOldest()
		}
		c = &counter{start: start}
		l.counters[key] = c
	}
	if !c.start.Equal(start) {
		c.start = start
		c.count = 0
	}

	c.count++
	return c.count <= l.limit, nil
}

func (l *MemoryLimiter) sweep(now time.Time) {
	for key, c := range l.counters {
		if now.Sub(c.start) > l.retention {
			delete(l.counters, key)
		}
	}
}

func (l *MemoryLimiter) evictOldest() {
	var (
		oldestKey string
		oldest    time.Time
	)
	for key, c := range l.counters {
		if oldestKey == "" || c.start.Before(oldest) {
			oldestKey, oldest = key, c.start
		}
	}
	delete(l.counters, oldestKey)
}

// Len returns the number of tracked clients
func (l *MemoryLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.counters)
}
