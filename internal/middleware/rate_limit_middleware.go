package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"lang_gateway/internal/utils"
)

// RequestLimiter decides whether a key may make another request
type RequestLimiter interface {
	Limit() int
	AllowWithDetails(ctx context.Context, key string) (bool, int, time.Time, error)
}

// RateLimitMiddleware rejects requests of keys that exceed their request rate with 429.
// It must run after APIKeyMiddleware. When the limiter's store is unreachable the request
// is let through; character quotas still apply downstream.
func RateLimitMiddleware(limiter RequestLimiter) func(http.Handler) http.Handler {
	logger := utils.NewLogger("rate-limit")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apiKey, ok := GetAPIKey(r.Context())
			if !ok || limiter.Limit() <= 0 {
				next.ServeHTTP(w, r)
				return
			}

			allowed, remaining, resetAt, err := limiter.AllowWithDetails(r.Context(), apiKey)
			if err != nil {
				logger.Warn("Rate limit check failed", "error", err)
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limiter.Limit()))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

			if !allowed {
				retryAfter := int(time.Until(resetAt).Seconds())
				if retryAfter < 1 {
					retryAfter = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				utils.RespondWithError(w, http.StatusTooManyRequests, "Rate limit exceeded")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
