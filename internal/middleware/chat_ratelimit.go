package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/time/rate"

	"github.com/AnshRaj112/driveshare-backend/internal/auth"
)

// Read rate limit for history and search endpoints, different limits for
// signed-in callers (keyed by uid) and anonymous ones (keyed by IP).
// Auth: 60 req/min, burst 20. Anonymous: 10 req/min, burst 5.
const (
	readAuthRPS   = 1.0
	readAuthBurst = 20
	readAnonRPS   = 0.17 // ~10/min
	readAnonBurst = 5
)

// ReadLimiter holds the buckets for ReadRateLimit.
type ReadLimiter struct {
	authed *KeyedLimiter
	anon   *KeyedLimiter
}

func NewReadLimiter() *ReadLimiter {
	return &ReadLimiter{
		authed: NewKeyedLimiter(rate.Limit(readAuthRPS), readAuthBurst),
		anon:   NewKeyedLimiter(rate.Limit(readAnonRPS), readAnonBurst),
	}
}

// Limiters exposes the buckets so the caller can run their cleanup.
func (l *ReadLimiter) Limiters() []*KeyedLimiter {
	return []*KeyedLimiter{l.authed, l.anon}
}

// ReadRateLimit applies to GET requests. Run it after Authenticate so
// signed-in callers are recognised.
func ReadRateLimit(l *ReadLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet || strings.HasPrefix(r.URL.Path, "/ws/") {
				next.ServeHTTP(w, r)
				return
			}

			limiter, key, limit := l.anon, clientIP(r), readAnonBurst
			if uid := auth.UID(r.Context()); uid != "" {
				limiter, key, limit = l.authed, uid, readAuthBurst
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
			if !limiter.Allow(key) {
				w.Header().Set("X-RateLimit-Remaining", "0")
				writeTooManyRequests(w, "Too many requests. Please slow down.")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
