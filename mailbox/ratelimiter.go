package mailbox

import (
	"sync"
	"time"
)

// OverLimitPolicy governs what a RateLimiter does with a message once its
// window is exhausted (spec §4.6).
type OverLimitPolicy int

const (
	// RateLimitDrop silently discards the message.
	RateLimitDrop OverLimitPolicy = iota
	// RateLimitReject returns a RateLimited error to the caller.
	RateLimitReject
	// RateLimitQueue enqueues anyway, deferring to the mailbox's own
	// full-mode policy instead of the rate limiter.
	RateLimitQueue
)

// RateLimiterConfig configures a sliding-window RateLimiter.
type RateLimiterConfig struct {
	Limit  int
	Window time.Duration
	Policy OverLimitPolicy
	// Enabled gates the limiter; when false, Allow always returns true.
	Enabled bool
}

// RateLimiter admits at most Limit events per sliding Window, tracked by
// timestamp rather than a fixed bucket boundary so bursts at a bucket edge
// can't double the effective rate.
type RateLimiter struct {
	cfg RateLimiterConfig

	mu        sync.Mutex
	timestamps []time.Time
	now        func() time.Time
}

// NewRateLimiter returns a RateLimiter enforcing cfg.
func NewRateLimiter(cfg RateLimiterConfig) *RateLimiter {
	return &RateLimiter{cfg: cfg, now: time.Now}
}

// Allow reports whether one more event may be admitted right now, evicting
// timestamps that have aged out of the window as a side effect.
func (r *RateLimiter) Allow() bool {
	if !r.cfg.Enabled || r.cfg.Limit <= 0 {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	cutoff := now.Add(-r.cfg.Window)
	kept := r.timestamps[:0]
	for _, ts := range r.timestamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	r.timestamps = kept

	if len(r.timestamps) >= r.cfg.Limit {
		return false
	}
	r.timestamps = append(r.timestamps, now)
	return true
}

// Policy returns the configured over-limit behavior.
func (r *RateLimiter) Policy() OverLimitPolicy {
	return r.cfg.Policy
}
