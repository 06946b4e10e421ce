package main

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// Decision is the outcome of one admission check.
type Decision struct {
	Allowed           bool
	Remaining         int
	RetryAfterSeconds int
}

// RateLimiter tracks per-key request timestamps within a sliding
// window. The (limit+1)-th request inside the window is rejected with
// the time until the oldest in-window request expires.
type RateLimiter struct {
	mu      sync.Mutex
	entries map[string][]time.Time

	// Longest window seen so far; the sweep prunes against it so it
	// never drops stamps a stricter route still counts.
	maxWindow time.Duration

	disabled bool
	now      func() time.Time

	done      chan struct{}
	closeOnce sync.Once
}

// NewRateLimiter constructs a limiter. When sweepInterval is positive
// a background sweep re-prunes every key on that interval and drops
// empty keys, bounding memory. Disabled limiters admit everything and
// record nothing.
func NewRateLimiter(disabled bool, sweepInterval time.Duration) *RateLimiter {
	rl := &RateLimiter{
		entries:  make(map[string][]time.Time),
		disabled: disabled,
		now:      time.Now,
		done:     make(chan struct{}),
	}
	if sweepInterval > 0 {
		go rl.sweepLoop(sweepInterval)
	}
	return rl
}

// Check decides whether the caller identified by key may proceed under
// the provided limit and window.
func (rl *RateLimiter) Check(key string, limit int, window time.Duration) Decision {
	// The disabled fast path must not touch the map at all.
	if rl.disabled || limit <= 0 {
		return Decision{Allowed: true, Remaining: limit}
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if window > rl.maxWindow {
		rl.maxWindow = window
	}

	now := rl.now()
	cutoff := now.Add(-window)

	kept := pruneBefore(rl.entries[key], cutoff)
	if len(kept) >= limit {
		rl.entries[key] = kept
		wait := kept[0].Add(window).Sub(now)
		return Decision{
			Allowed:           false,
			Remaining:         0,
			RetryAfterSeconds: ceilSeconds(wait),
		}
	}

	kept = append(kept, now)
	rl.entries[key] = kept
	return Decision{Allowed: true, Remaining: limit - len(kept)}
}

func pruneBefore(stamps []time.Time, cutoff time.Time) []time.Time {
	kept := stamps[:0]
	for _, ts := range stamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	return kept
}

func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}

func (rl *RateLimiter) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-rl.done:
			return
		case <-ticker.C:
			rl.sweep()
		}
	}
}

// sweep re-prunes every key against the longest window any route uses
// and deletes keys left empty.
func (rl *RateLimiter) sweep() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if rl.maxWindow <= 0 {
		return
	}
	cutoff := rl.now().Add(-rl.maxWindow)
	for key, stamps := range rl.entries {
		kept := pruneBefore(stamps, cutoff)
		if len(kept) == 0 {
			delete(rl.entries, key)
			continue
		}
		rl.entries[key] = kept
	}
}

type RateLimiterStats struct {
	Keys int `json:"keys"`
}

func (rl *RateLimiter) Stats() RateLimiterStats {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return RateLimiterStats{Keys: len(rl.entries)}
}

// Close stops the background sweep.
func (rl *RateLimiter) Close() {
	rl.closeOnce.Do(func() { close(rl.done) })
}

// rateLimit is the gin admission middleware for one named route.
func rateLimit(rl *RateLimiter, route string, limit int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := route + ":" + clientIdentity(c.Request)
		decision := rl.Check(key, limit, window)
		if !decision.Allowed {
			c.Header("Retry-After", strconv.Itoa(decision.RetryAfterSeconds))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests"})
			return
		}
		c.Next()
	}
}
