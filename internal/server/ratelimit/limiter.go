// Package ratelimit implements per-client token bucket rate limiting for the
// HTTP server.
package ratelimit

import (
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/time/rate"
)

// Result contains the outcome of a rate limit check.
type Result struct {
	Allowed    bool
	Limit      int           // requests per window
	Remaining  int           // requests left in current window
	ResetAt    time.Time     // when the bucket will be full again
	RetryAfter time.Duration // how long to wait before retrying (0 if allowed)
}

// Limiter holds one token bucket per key.
type Limiter struct {
	buckets *xsync.MapOf[string, *bucket]
	rate    rate.Limit
	burst   int
	window  time.Duration
	idle    time.Duration
	stop    chan struct{}
	done    chan struct{}
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64 // unix nanoseconds
}

// NewLimiter creates a limiter allowing requests per window with burst
// capacity. Close must be called to stop the bucket sweeper.
func NewLimiter(requests int, window time.Duration, burst int) *Limiter {
	l := &Limiter{
		buckets: xsync.NewMapOf[string, *bucket](),
		rate:    rate.Limit(float64(requests) / window.Seconds()),
		burst:   max(burst, 1),
		window:  window,
		idle:    10 * time.Minute,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go l.sweepLoop()
	return l
}

// Allow consumes a token from the bucket of key if one is available.
func (l *Limiter) Allow(key string) Result {
	now := time.Now()
	b, _ := l.buckets.LoadOrCompute(key, func() *bucket {
		return &bucket{limiter: rate.NewLimiter(l.rate, l.burst)}
	})
	b.lastSeen.Store(now.UnixNano())

	r := b.limiter.ReserveN(now, 1)
	allowed := r.OK() && r.DelayFrom(now) == 0
	if !allowed && r.OK() {
		r.CancelAt(now)
	}

	tokens := b.limiter.TokensAt(now)
	res := Result{
		Allowed:   allowed,
		Limit:     int(float64(l.rate) * l.window.Seconds()),
		Remaining: max(int(tokens), 0),
		ResetAt:   now.Add(time.Duration((float64(l.burst) - tokens) / float64(l.rate) * float64(time.Second))),
	}
	if !allowed {
		res.RetryAfter = max(time.Duration(float64(time.Second)/float64(l.rate)), time.Second)
	}
	return res
}

// Len returns the number of live buckets.
func (l *Limiter) Len() int {
	return l.buckets.Size()
}

func (l *Limiter) sweepLoop() {
	defer close(l.done)
	ticker := time.NewTicker(l.idle)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			l.sweep(now)
		case <-l.stop:
			return
		}
	}
}

// sweep drops buckets that are full and unused for the idle period.
func (l *Limiter) sweep(now time.Time) {
	threshold := now.Add(-l.idle).UnixNano()
	l.buckets.Range(func(key string, b *bucket) bool {
		if b.lastSeen.Load() < threshold && b.limiter.TokensAt(now) >= float64(l.burst) {
			l.buckets.Delete(key)
		}
		return true
	})
}

// Close stops the sweeper and waits for it to exit.
func (l *Limiter) Close() {
	close(l.stop)
	<-l.done
}
