package middleware

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
)

// AttemptLimiter guards the credential endpoints against brute force.
type AttemptLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// RedisAttemptLimiter is a sliding-window counter over a Redis sorted set.
// The window check and the insert run in one Lua script so concurrent
// attempts cannot slip past the limit between a read and a write.
type RedisAttemptLimiter struct {
	client *redis.Client
	max    int
	window time.Duration
	prefix string
}

func NewRedisAttemptLimiter(client *redis.Client, max int, window time.Duration) *RedisAttemptLimiter {
	return &RedisAttemptLimiter{
		client: client,
		max:    max,
		window: window,
		prefix: "authlimit:",
	}
}

var slidingWindowScript = redis.NewScript(`
	local key = KEYS[1]
	local now = tonumber(ARGV[1])
	local window_start = tonumber(ARGV[2])
	local limit = tonumber(ARGV[3])
	local window_ms = tonumber(ARGV[4])

	redis.call('ZREMRANGEBYSCORE', key, '-inf', window_start)
	local count = redis.call('ZCARD', key)
	if count < limit then
		redis.call('ZADD', key, now, now .. ':' .. count)
		redis.call('PEXPIRE', key, window_ms)
		return 1
	end
	return 0
`)

func (l *RedisAttemptLimiter) Allow(ctx context.Context, key string) (bool, error) {
	now := time.Now()
	res, err := slidingWindowScript.Run(ctx, l.client, []string{l.prefix + key},
		now.UnixMilli(),
		now.Add(-l.window).UnixMilli(),
		l.max,
		l.window.Milliseconds(),
	).Int64()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}

// AuthLimit rate-limits a handler per client IP. Redis outages fail open with
// a logged warning rather than locking every user out.
func AuthLimit(limiter AttemptLimiter, logger *slog.Logger, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		allowed, err := limiter.Allow(r.Context(), ip)
		if err != nil {
			logger.Warn("auth limiter unavailable", "error", err)
			next(w, r)
			return
		}
		if !allowed {
			http.Error(w, "too many attempts, slow down", http.StatusTooManyRequests)
			return
		}
		next(w, r)
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
