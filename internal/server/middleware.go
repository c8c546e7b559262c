package server

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
)

// observe logs and measures every request. Routes are reported by their
// pattern, not their path.
func (s *Server) observe(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		if err := next(c); err != nil {
			c.Error(err)
		}

		req, res := c.Request(), c.Response()
		route := c.Path()
		if route == "" {
			route = "unmatched"
		}
		took := time.Since(start)
		s.Metrics.ObserveRequest(req.Method, route, res.Status, took)
		s.Logger.Debug("request",
			"method", req.Method,
			"route", route,
			"status", res.Status,
			"bytes", res.Size,
			"ip", c.RealIP(),
			"took", took.Round(time.Millisecond),
		)
		return nil
	}
}

// rateLimit applies the per-client token bucket.
func (s *Server) rateLimit(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if s.limiter == nil {
			return next(c)
		}
		h := c.Response().Header()
		h.Set("X-RateLimit-Limit", strconv.Itoa(s.cfg.RateLimit))

		ok, remaining := s.limiter.allow(c.RealIP())
		h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		if !ok {
			h.Set("Retry-After", strconv.Itoa(s.limiter.retryAfter()))
			return echo.NewHTTPError(http.StatusTooManyRequests, "Rate limit exceeded, please retry later.")
		}
		return next(c)
	}
}

const limiterIdle = 10 * time.Minute

type bucket struct {
	limiter *rate.Limiter
	seen    time.Time
}

// limiter keeps one token bucket per client key. Buckets idle for
// limiterIdle are dropped.
type limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rate    rate.Limit
	burst   int
	swept   time.Time
	now     func() time.Time
}

// newLimiter allows perMinute requests a minute with bursts of burst.
func newLimiter(perMinute, burst int) *limiter {
	if burst <= 0 {
		burst = 1
	}
	return &limiter{
		buckets: map[string]*bucket{},
		rate:    rate.Limit(float64(perMinute) / 60),
		burst:   burst,
		now:     time.Now,
	}
}

func (l *limiter) allow(key string) (bool, int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweep(now)
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.buckets[key] = b
	}
	b.seen = now
	allowed := b.limiter.AllowN(now, 1)
	return allowed, max(0, int(b.limiter.TokensAt(now)))
}

// retryAfter is the number of seconds until one token is available.
func (l *limiter) retryAfter() int {
	if l.rate <= 0 {
		return 60
	}
	return int(math.Ceil(1 / float64(l.rate)))
}

func (l *limiter) sweep(now time.Time) {
	if now.Sub(l.swept) < time.Minute {
		return
	}
	l.swept = now
	for key, b := range l.buckets {
		if now.Sub(b.seen) > limiterIdle {
			delete(l.buckets, key)
		}
	}
}
