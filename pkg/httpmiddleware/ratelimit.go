package httpmiddleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-faster/jx"
)

// RateLimitConfig configures the per-client request budget.
type RateLimitConfig struct {
	// Max requests per Window.
	Max    int
	Window time.Duration
	// KeyFunc identifies the client. Defaults to ClientIP.
	KeyFunc func(*http.Request) string
	// Exempt requests bypass the limiter entirely, e.g. payment gateway
	// notifications that are retried by the sender anyway.
	Exempt func(*http.Request) bool
}

// counter approximates a sliding window from two fixed buckets: the
// previous bucket is weighted by how much of it still overlaps the window.
type counter struct {
	start time.Time
	prev  float64
	curr  float64
}

func (c *counter) advance(now time.Time, window time.Duration) {
	elapsed := now.Sub(c.start)
	switch {
	case elapsed < window:
		return
	case elapsed < 2*window:
		c.prev = c.curr
	default:
		c.prev = 0
	}
	c.curr = 0
	c.start = now.Truncate(window)
}

func (c *counter) load(now time.Time, window time.Duration) float64 {
	weight := 1 - now.Sub(c.start).Seconds()/window.Seconds()
	return c.prev*math.Max(weight, 0) + c.curr
}

// Limiter tracks request counters per client key.
type Limiter struct {
	cfg RateLimitConfig

	mu       sync.Mutex
	counters map[string]*counter
}

// NewLimiter creates a Limiter. Stale counters are only evicted by Sweep.
func NewLimiter(cfg RateLimitConfig) *Limiter {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = ClientIP
	}
	return &Limiter{cfg: cfg, counters: make(map[string]*counter)}
}

// Decision is the outcome of a single Take.
type Decision struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// Take consumes one request from the budget of key if any is left.
func (l *Limiter) Take(key string, now time.Time) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.counters[key]
	if !ok {
		c = &counter{start: now}
		l.counters[key] = c
	}
	c.advance(now, l.cfg.Window)

	d := Decision{ResetAt: c.start.Add(l.cfg.Window)}
	used := c.load(now, l.cfg.Window)
	if used >= float64(l.cfg.Max) {
		return d
	}
	c.curr++
	d.Allowed = true
	d.Remaining = max(int(float64(l.cfg.Max)-used-1), 0)
	return d
}

// Sweep drops counters that have been idle for two full windows.
func (l *Limiter) Sweep(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	var n int
	for key, c := range l.counters {
		if now.Sub(c.start) >= 2*l.cfg.Window {
			delete(l.counters, key)
			n++
		}
	}
	return n
}

// Middleware enforces the limit, answering 429 with the standard error
// body once a client's budget is spent.
func (l *Limiter) Middleware() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if l.cfg.Exempt != nil && l.cfg.Exempt(r) {
				next.ServeHTTP(w, r)
				return
			}

			d := l.Take(l.cfg.KeyFunc(r), time.Now())
			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(l.cfg.Max))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
			if d.Allowed {
				next.ServeHTTP(w, r)
				return
			}

			wait := max(time.Until(d.ResetAt), 0)
			h.Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			h.Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)

			var e jx.Encoder
			e.ObjStart()
			e.FieldStart("code")
			e.Int(http.StatusTooManyRequests)
			e.FieldStart("message")
			e.Str("rate limit exceeded")
			e.ObjEnd()
			_, _ = w.Write(e.Bytes())
		})
	}
}

// RateLimit returns the limiter middleware without background eviction.
func RateLimit(cfg RateLimitConfig) Middleware {
	return NewLimiter(cfg).Middleware()
}

// RateLimitWithCleanup also sweeps stale counters every two windows until
// ctx is done.
func RateLimitWithCleanup(ctx context.Context, cfg RateLimitConfig) Middleware {
	l := NewLimiter(cfg)
	go func() {
		t := time.NewTicker(2 * l.cfg.Window)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-t.C:
				l.Sweep(now)
			}
		}
	}()
	return l.Middleware()
}

// ExemptPaths matches requests whose path is one of paths.
func ExemptPaths(paths ...string) func(*http.Request) bool {
	set := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		set[p] = struct{}{}
	}
	return func(r *http.Request) bool {
		_, ok := set[r.URL.Path]
		return ok
	}
}

// APIKeyOrIP gives every API key its own budget so customers behind one
// proxy do not starve each other. Anonymous callers fall back to ClientIP.
func APIKeyOrIP(r *http.Request) string {
	key := r.Header.Get("api_key")
	if key == "" {
		return ClientIP(r)
	}
	sum := sha256.Sum256([]byte(key))
	return "key:" + hex.EncodeToString(sum[:8])
}

// ClientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then the
// peer address.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
