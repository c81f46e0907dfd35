package ratelimit

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	window int64
	count  int
}

// MemoryLimiter implements a fixed-window in-memory rate limiter.
type MemoryLimiter struct {
	mu       sync.Mutex
	counters map[string]*memoryEntry
}

// NewMemoryLimiter constructs a MemoryLimiter.
func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{
		counters: make(map[string]*memoryEntry),
	}
}

// Allow checks whether the request fits in the window containing now.
func (l *MemoryLimiter) Allow(_ context.Context, key string, limit int, window time.Duration, now time.Time) (Result, error) {
	if limit <= 0 || key == "" {
		return Result{Allowed: true}, nil
	}
	idx, reset := windowIndex(now, window)

	l.mu.Lock()
	defer l.mu.Unlock()
	entry := l.counters[key]
	if entry == nil {
		entry = &memoryEntry{window: idx}
		l.counters[key] = entry
	}
	if entry.window != idx {
		entry.window = idx
		entry.count = 0
	}
	if entry.count >= limit {
		return Result{Allowed: false, Limit: limit, Remaining: 0, Reset: reset}, nil
	}
	entry.count++
	return Result{Allowed: true, Limit: limit, Remaining: limit - entry.count, Reset: reset}, nil
}

// Prune drops counters from windows that ended before now.
func (l *MemoryLimiter) Prune(window time.Duration, now time.Time) int {
	idx, _ := windowIndex(now, window)
	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for key, entry := range l.counters {
		if entry.window < idx {
			delete(l.counters, key)
			removed++
		}
	}
	return removed
}
