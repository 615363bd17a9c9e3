package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
)

type bucket struct {
	tokens float64
	last   time.Time
}

// RateLimiter is a per-client token bucket shared by the routes it guards.
type RateLimiter struct {
	capacity     float64
	refillPerSec float64
	now          func() time.Time

	mu sync.Mutex
	m  map[string]*bucket
}

func NewRateLimiter(capacity, refillPerSec float64) *RateLimiter {
	return &RateLimiter{
		capacity:     capacity,
		refillPerSec: refillPerSec,
		now:          time.Now,
		m:            make(map[string]*bucket),
	}
}

// Allow consumes one token for key if one is available.
func (l *RateLimiter) Allow(key string) bool {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.m[key]
	if !ok {
		b = &bucket{tokens: l.capacity, last: now}
		l.m[key] = b
	}
	if elapsed := now.Sub(b.last).Seconds(); elapsed > 0 {
		b.tokens += elapsed * l.refillPerSec
		if b.tokens > l.capacity {
			b.tokens = l.capacity
		}
		b.last = now
	}
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// Middleware rejects requests over the limit with 429, keyed by client IP and scope.
func (l *RateLimiter) Middleware(scope string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !l.Allow(c.RealIP() + ":" + scope) {
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limited")
			}
			return next(c)
		}
	}
}
