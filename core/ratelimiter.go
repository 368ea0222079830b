package core

import (
	"sync/atomic"
	"time"
)

// RateLimiter lets one caller through per interval. The series registry
// consults it on every overflow redirect and the extractor on every failed
// record, so Allow is a single CAS and never blocks.
type RateLimiter struct {
	interval int64        // nanoseconds
	last     atomic.Int64 // unix nanos of the last allowed call, 0 before the first
	now      func() time.Time
}

// NewRateLimiter returns a limiter allowing one call per interval. The first
// call is always allowed.
func NewRateLimiter(interval time.Duration) *RateLimiter {
	return &RateLimiter{interval: int64(interval), now: time.Now}
}

// Allow reports whether the caller may proceed. Concurrent callers racing
// on an expired window see exactly one true.
func (r *RateLimiter) Allow() bool {
	now := r.now().UnixNano()
	last := r.last.Load()
	if last != 0 && now-last < r.interval {
		return false
	}
	return r.last.CompareAndSwap(last, now)
}
