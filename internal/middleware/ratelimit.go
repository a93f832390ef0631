package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/AnshRaj112/driveshare-backend/internal/auth"
)

const (
	// WriteRateLimitWindow is the fixed counting window
	WriteRateLimitWindow = 60 * time.Second
	// WriteRateLimitMaxRequests is the maximum number of writes per caller in the window
	WriteRateLimitMaxRequests = 60
	// RateLimitKeyPrefix is the Redis key prefix for rate limiting
	RateLimitKeyPrefix = "ratelimit:"
)

// WindowLimiter counts requests per key in Redis so the limit is shared by
// every instance. A nil client or a Redis failure lets requests through.
type WindowLimiter struct {
	rdb    *redis.Client
	max    int
	window time.Duration
	log    zerolog.Logger
}

func NewWindowLimiter(rdb *redis.Client, max int, window time.Duration, log zerolog.Logger) *WindowLimiter {
	return &WindowLimiter{rdb: rdb, max: max, window: window, log: log}
}

// Allow counts one request for key and returns how many remain.
func (l *WindowLimiter) Allow(ctx context.Context, key string) (bool, int) {
	if l.rdb == nil {
		return true, l.max
	}
	rateLimitKey := RateLimitKeyPrefix + key

	count, err := l.rdb.Incr(ctx, rateLimitKey).Result()
	if err == nil && count == 1 {
		// First request in this window
		err = l.rdb.Expire(ctx, rateLimitKey, l.window).Err()
	}
	if err != nil {
		// If Redis fails, allow the request (fail open)
		l.log.Warn().Err(err).Str("key", key).Msg("rate limit check failed")
		return true, l.max
	}

	if int(count) > l.max {
		return false, 0
	}
	return true, l.max - int(count)
}

// WriteRateLimit limits non-GET requests per caller (uid, or IP when
// anonymous). Run it after Authenticate.
func WriteRateLimit(l *WindowLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet || r.Method == http.MethodOptions || r.Method == http.MethodHead {
				next.ServeHTTP(w, r)
				return
			}

			key := "ip:" + clientIP(r)
			if uid := auth.UID(r.Context()); uid != "" {
				key = "uid:" + uid
			}

			ok, remaining := l.Allow(r.Context(), key)
			if !ok {
				w.Header().Set("Retry-After", strconv.Itoa(int(l.window.Seconds())))
				writeTooManyRequests(w, "Rate limit exceeded. Please try again later.")
				return
			}

			// Add rate limit headers
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(l.max))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			next.ServeHTTP(w, r)
		})
	}
}
