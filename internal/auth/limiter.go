package auth

import (
	"strings"
	"sync"

	"golang.org/x/time/rate"
)

// maxIdleKeys bounds how many buckets are kept before refilled ones are dropped.
const maxIdleKeys = 10_000

// Limiter keeps one token bucket per key, so one noisy account cannot lock out the rest.
type Limiter struct {
	limit rate.Limit
	burst int

	mu      sync.Mutex
	buckets map[string]*rate.Limiter
}

// NewLimiter returns a Limiter that gives every key its own bucket of burst tokens refilled at limit.
func NewLimiter(limit rate.Limit, burst int) *Limiter {
	return &Limiter{
		limit:   limit,
		burst:   burst,
		buckets: make(map[string]*rate.Limiter),
	}
}

// Allow reports whether one more attempt for key may proceed now. Keys are case-insensitive.
func (l *Limiter) Allow(key string) bool {
	key = strings.ToLower(key)

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		if len(l.buckets) >= maxIdleKeys {
			l.sweep()
		}
		b = rate.NewLimiter(l.limit, l.burst)
		l.buckets[key] = b
	}
	return b.Allow()
}

// sweep drops buckets that have refilled completely; recreating them changes nothing.
func (l *Limiter) sweep() {
	for key, b := range l.buckets {
		if b.Tokens() >= float64(l.burst) {
			delete(l.buckets, key)
		}
	}
}
