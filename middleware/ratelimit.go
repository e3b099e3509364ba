package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"l3v3l_server/errs"
	"l3v3l_server/utils"

	"github.com/redis/go-redis/v9"
)

// Counter increments a windowed counter and returns the new count.
type Counter interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}

// RedisCounter is a fixed-window counter: INCR, and EXPIRE on the first hit.
type RedisCounter struct {
	Client *redis.Client
}

func (c RedisCounter) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	count, err := c.Client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("could not increment rate limit key: %w", err)
	}
	if count == 1 {
		if err := c.Client.Expire(ctx, key, window).Err(); err != nil {
			return 0, fmt.Errorf("could not set rate limit window: %w", err)
		}
	}
	return count, nil
}

// RateLimiter allows Limit requests per Window per caller.
type RateLimiter struct {
	Counter Counter
	Limit   int
	Window  time.Duration
	Prefix  string
}

func NewRateLimiter(counter Counter, perMinute int, prefix string) *RateLimiter {
	return &RateLimiter{Counter: counter, Limit: perMinute, Window: time.Minute, Prefix: prefix}
}

// callerKey prefers the authenticated username and falls back to the client IP.
func callerKey(r *http.Request) string {
	if p, ok := PrincipalFrom(r.Context()); ok {
		return "user:" + p.Username
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}

func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		count, err := l.Counter.Incr(r.Context(), l.Prefix+":"+callerKey(r), l.Window)
		if err != nil {
			utils.WriteError(w, r, err)
			return
		}
		if count > int64(l.Limit) {
			w.Header().Set("Retry-After", fmt.Sprintf("%d", int(l.Window.Seconds())))
			utils.WriteError(w, r, errs.New(errs.RateLimited, "too many requests"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
