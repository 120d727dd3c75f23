package httpx

import (
	"context"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Decision is the outcome of one rate limit check.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAfter time.Duration
}

// Limiter decides whether the caller identified by key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// RateLimitOptions configures the RateLimit middleware.
type RateLimitOptions struct {
	Prefix   string
	Message  string
	Logger   *slog.Logger
	FailOpen bool
}

// RateLimit rejects requests over the limiter's budget with 429 and sets the
// RateLimit-* response headers.
func RateLimit(l Limiter, opts RateLimitOptions) Middleware {
	msg := opts.Message
	if msg == "" {
		msg = "Too many requests from this IP, please try again later."
	}
	prefix := strings.TrimSpace(opts.Prefix)
	if prefix == "" {
		prefix = "rl"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d, err := l.Allow(r.Context(), prefix+":"+ClientIP(r))
			if err != nil {
				if opts.Logger != nil {
					opts.Logger.Warn("rate limiter error", "err", err, "request_id", RequestIDFromContext(r.Context()))
				}
				if opts.FailOpen {
					next.ServeHTTP(w, r)
					return
				}
				Fail(w, http.StatusServiceUnavailable, "rate limiter unavailable")
				return
			}

			h := w.Header()
			h.Set("RateLimit-Limit", strconv.Itoa(d.Limit))
			h.Set("RateLimit-Remaining", strconv.Itoa(max(d.Remaining, 0)))
			h.Set("RateLimit-Reset", strconv.Itoa(int(math.Ceil(d.ResetAfter.Seconds()))))
			if !d.Allowed {
				h.Set("Retry-After", strconv.Itoa(int(math.Ceil(d.ResetAfter.Seconds()))))
				Fail(w, http.StatusTooManyRequests, msg)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// MemoryLimiter is a per-key token bucket for single-instance deployments
// and tests. Each key may spend limit tokens, refilled evenly over window.
type MemoryLimiter struct {
	limit  int
	window time.Duration
	every  rate.Limit

	mu       sync.Mutex
	visitors map[string]*visitor
	sweepAt  time.Time
}

type visitor struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

func NewMemoryLimiter(limit int, window time.Duration) *MemoryLimiter {
	if limit <= 0 {
		limit = 60
	}
	if window <= 0 {
		window = time.Minute
	}
	return &MemoryLimiter{
		limit:    limit,
		window:   window,
		every:    rate.Every(window / time.Duration(limit)),
		visitors: map[string]*visitor{},
	}
}

func (m *MemoryLimiter) Allow(_ context.Context, key string) (Decision, error) {
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.sweep(now)
	v := m.visitors[key]
	if v == nil {
		v = &visitor{lim: rate.NewLimiter(m.every, m.limit)}
		m.visitors[key] = v
	}
	v.lastSeen = now

	r := v.lim.ReserveN(now, 1)
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return Decision{Allowed: false, Limit: m.limit, Remaining: 0, ResetAfter: delay}, nil
	}
	remaining := int(v.lim.TokensAt(now))
	return Decision{
		Allowed:    true,
		Limit:      m.limit,
		Remaining:  remaining,
		ResetAfter: time.Duration(m.limit-remaining) * (m.window / time.Duration(m.limit)),
	}, nil
}

// sweep drops visitors idle for a full window; a refilled bucket is the same
// as a fresh one.
func (m *MemoryLimiter) sweep(now time.Time) {
	if now.Before(m.sweepAt) {
		return
	}
	for k, v := range m.visitors {
		if now.Sub(v.lastSeen) > m.window {
			delete(m.visitors, k)
		}
	}
	m.sweepAt = now.Add(m.window)
}

// ClientIP prefers the first X-Forwarded-For hop, then the socket peer.
func ClientIP(r *http.Request) string {
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		parts := strings.Split(ip, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	return r.RemoteAddr
}
