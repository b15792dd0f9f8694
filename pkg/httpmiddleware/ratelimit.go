package httpmiddleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Decision is the outcome of a rate limit check.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Limiter decides whether a request identified by key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string, now time.Time) (Decision, error)
}

// MemoryLimiter is a process-local sliding window limiter. It approximates
// the window by weighting the previous fixed window by its overlap.
type MemoryLimiter struct {
	max    int
	window time.Duration

	mu      sync.Mutex
	windows map[string]*windowPair
}

type windowPair struct {
	prevCount float64
	currCount float64
	currStart time.Time
}

var _ Limiter = (*MemoryLimiter)(nil)

// NewMemoryLimiter allows limit requests per window and key.
func NewMemoryLimiter(limit int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{max: limit, window: window, windows: make(map[string]*windowPair)}
}

// Allow implements Limiter. It never fails.
func (l *MemoryLimiter) Allow(_ context.Context, key string, now time.Time) (Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	start := now.Truncate(l.window)
	p, ok := l.windows[key]
	switch {
	case !ok:
		p = &windowPair{currStart: start}
		l.windows[key] = p
	case start.Sub(p.currStart) >= 2*l.window:
		*p = windowPair{currStart: start}
	case start.After(p.currStart):
		*p = windowPair{prevCount: p.currCount, currStart: start}
	}

	overlap := 1 - now.Sub(p.currStart).Seconds()/l.window.Seconds()
	effective := p.prevCount*max(overlap, 0) + p.currCount
	d := Decision{Limit: l.max, ResetAt: p.currStart.Add(l.window)}
	if effective >= float64(l.max) {
		return d, nil
	}
	p.currCount++
	d.Allowed = true
	d.Remaining = max(int(float64(l.max)-effective-1), 0)
	return d, nil
}

// Sweep drops keys idle for two windows.
func (l *MemoryLimiter) Sweep(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, p := range l.windows {
		if now.Sub(p.currStart) >= 2*l.window {
			delete(l.windows, key)
		}
	}
}

// slidingWindowScript keeps one sorted-set member per accepted request,
// scored by its time in milliseconds. Returns {allowed, count, oldest}.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
if count >= limit then
	local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
	return {0, count, tonumber(oldest[2])}
end
redis.call('ZADD', key, now, ARGV[4])
redis.call('PEXPIRE', key, window)
return {1, count + 1, now}
`)

// RedisLimiter is a sliding window limiter shared by every API instance.
type RedisLimiter struct {
	rdb    redis.Scripter
	prefix string
	max    int
	window time.Duration
}

var _ Limiter = (*RedisLimiter)(nil)

// NewRedisLimiter allows limit requests per window and key, storing state
// under prefix.
func NewRedisLimiter(rdb redis.Scripter, prefix string, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{rdb: rdb, prefix: prefix, max: limit, window: window}
}

// Allow implements Limiter.
func (l *RedisLimiter) Allow(ctx context.Context, key string, now time.Time) (Decision, error) {
	windowMs := l.window.Milliseconds()
	res, err := slidingWindowScript.Run(ctx, l.rdb,
		[]string{l.prefix + key},
		now.UnixMilli(), windowMs, l.max, uuid.NewString(),
	).Int64Slice()
	if err != nil {
		return Decision{}, errors.Wrap(err, "run rate limit script")
	}
	if len(res) != 3 {
		return Decision{}, errors.Errorf("unexpected rate limit reply %v", res)
	}
	return Decision{
		Allowed:   res[0] == 1,
		Limit:     l.max,
		Remaining: max(l.max-int(res[1]), 0),
		ResetAt:   time.UnixMilli(res[2] + windowMs).UTC(),
	}, nil
}

// RateLimit rejects requests over the limiter's quota with 429. Every
// response carries X-RateLimit-* headers. Limiter faults are logged and the
// request is let through. A nil keyFunc keys by client IP.
func RateLimit(l Limiter, keyFunc func(*http.Request) string) Middleware {
	if keyFunc == nil {
		keyFunc = ClientIP
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			now := time.Now()
			d, err := l.Allow(r.Context(), keyFunc(r), now)
			if err != nil {
				zctx.From(r.Context()).Warn("Rate limiter unavailable", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
			if !d.Allowed {
				wait := max(d.ResetAt.Sub(now), 0)
				h.Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP returns the first X-Forwarded-For entry, then X-Real-IP, then
// the host of RemoteAddr.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
