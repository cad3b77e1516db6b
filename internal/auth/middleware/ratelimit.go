package middleware

import (
	"net/http"
	"strconv"
)

// Limiter decides whether key may make another request.
type Limiter interface {
	Allow(key string, limit int) bool
}

// RateLimit applies the per-key limit stored with each API key. Requests
// that Auth let through without a key are not limited.
func RateLimit(limiter Limiter, retryAfterSeconds int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			info := GetKeyInfo(r.Context())
			if info == nil || exempt(r) {
				next.ServeHTTP(w, r)
				return
			}
			if !limiter.Allow(info.ID, info.RateLimit) {
				w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
