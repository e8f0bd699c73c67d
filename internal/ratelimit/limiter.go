// Package ratelimit throttles repeated requests per client key, used by the
// reference application to slow down login and registration attempts.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Config sets the budget of every key.
type Config struct {
	RPS             float64       // sustained requests per second
	Burst           int           // requests allowed back to back
	CleanupInterval time.Duration // keys idle this long are forgotten
}

// DefaultConfig allows a short burst of attempts, then one every two seconds.
var DefaultConfig = Config{
	RPS:             0.5,
	Burst:           10,
	CleanupInterval: time.Hour,
}

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// RateLimiter keeps one token bucket per key. A background janitor drops
// idle buckets until Stop is called.
type RateLimiter struct {
	cfg Config
	now func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewRateLimiter starts a limiter. A non-positive CleanupInterval uses the
// default.
func NewRateLimiter(cfg Config) *RateLimiter {
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = DefaultConfig.CleanupInterval
	}
	rl := &RateLimiter{
		cfg:     cfg,
		now:     time.Now,
		buckets: make(map[string]*bucket),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go rl.janitor()
	return rl
}

// SetClock replaces the time source. Tests only.
func (rl *RateLimiter) SetClock(now func() time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.now = now
}

// Allow spends one token for key and reports whether one was available.
func (rl *RateLimiter) Allow(key string) bool {
	ok, _ := rl.Take(key)
	return ok
}

// Take spends one token for key. When the bucket is empty nothing is spent
// and wait is how long until the next token.
func (rl *RateLimiter) Take(key string) (ok bool, wait time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	lim := rl.bucketLocked(key, now).lim
	r := lim.ReserveN(now, 1)
	if !r.OK() {
		return false, 0
	}
	if d := r.DelayFrom(now); d > 0 {
		r.CancelAt(now)
		return false, d
	}
	return true, 0
}

// Remaining returns the whole tokens left for key.
func (rl *RateLimiter) Remaining(key string) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := rl.now()
	if n := int(rl.bucketLocked(key, now).lim.TokensAt(now)); n > 0 {
		return n
	}
	return 0
}

func (rl *RateLimiter) bucketLocked(key string, now time.Time) *bucket {
	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(rate.Limit(rl.cfg.RPS), rl.cfg.Burst)}
		rl.buckets[key] = b
	}
	b.seen = now
	return b
}

// Reset forgets every key.
func (rl *RateLimiter) Reset() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	clear(rl.buckets)
}

// Cleanup forgets keys idle for longer than the cleanup interval.
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	cutoff := rl.now().Add(-rl.cfg.CleanupInterval)
	for key, b := range rl.buckets {
		if b.seen.Before(cutoff) {
			delete(rl.buckets, key)
		}
	}
}

// Len returns the number of tracked keys.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.buckets)
}

// Stop ends the janitor. It is safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
	<-rl.done
}

func (rl *RateLimiter) janitor() {
	defer close(rl.done)
	tick := time.NewTicker(rl.cfg.CleanupInterval)
	defer tick.Stop()
	for {
		select {
		case <-tick.C:
			rl.Cleanup()
		case <-rl.stop:
			return
		}
	}
}
