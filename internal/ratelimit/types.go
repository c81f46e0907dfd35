// Package ratelimit enforces fixed-window request limits per user.
package ratelimit

import (
	"context"
	"time"
)

// Result describes the outcome of a rate limit check.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	Reset     time.Time
}

// Limiter provides rate limit checks.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (Result, error)
}

// windowIndex returns the fixed window containing now and the time it ends.
func windowIndex(now time.Time, window time.Duration) (int64, time.Time) {
	if window <= 0 {
		window = time.Second
	}
	idx := now.UnixNano() / int64(window)
	reset := time.Unix(0, (idx+1)*int64(window)).UTC()
	return idx, reset
}

// KeyForUser builds the limiter key for a user on a named route.
func KeyForUser(route, userID string) string {
	if userID == "" {
		return ""
	}
	if route == "" {
		return "u:" + userID
	}
	return route + ":u:" + userID
}
