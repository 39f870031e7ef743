// Package ratelimit throttles the auth endpoints per client IP.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// Defaults applied to /auth: 100 requests per 15 minutes per client.
const (
	DefaultMax    = 100
	DefaultWindow = 15 * time.Minute
)

type Result struct {
	Allowed    bool
	Limit      int64
	Remaining  int64
	RetryAfter time.Duration
}

type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
}

// MemoryLimiter is a per-key token bucket holding Max tokens that refill
// evenly over Window. Idle buckets are dropped after two windows.
type MemoryLimiter struct {
	Max    int
	Window time.Duration

	// Now can be overridden in tests.
	Now func() time.Time

	mu      sync.Mutex
	buckets *cache.Cache
}

func NewMemoryLimiter(max int, window time.Duration) *MemoryLimiter {
	if max <= 0 {
		max = DefaultMax
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &MemoryLimiter{
		Max:     max,
		Window:  window,
		buckets: cache.New(2*window, window),
	}
}

func (l *MemoryLimiter) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now()
}

func (l *MemoryLimiter) bucket(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if v, ok := l.buckets.Get(key); ok {
		// Touch so active clients are not evicted mid-window.
		l.buckets.SetDefault(key, v)
		return v.(*rate.Limiter)
	}
	lim := rate.NewLimiter(rate.Every(l.Window/time.Duration(l.Max)), l.Max)
	l.buckets.SetDefault(key, lim)
	return lim
}

func (l *MemoryLimiter) Allow(ctx context.Context, key string) (Result, error) {
	now := l.now()
	lim := l.bucket(key)
	res := Result{Limit: int64(l.Max)}

	if lim.AllowN(now, 1) {
		res.Allowed = true
		res.Remaining = int64(lim.TokensAt(now))
		return res, nil
	}
	r := lim.ReserveN(now, 1)
	res.RetryAfter = r.DelayFrom(now)
	r.CancelAt(now)
	return res, nil
}
