package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"lang_gateway/internal/auth"
	"lang_gateway/internal/utils"
)

// ContextKey defines the type for context keys to avoid conflicts
type ContextKey string

const (
	// APIKeyContextKey is the context key for storing the authenticated API key
	APIKeyContextKey ContextKey = "apiKey"
)

// KeyValidator checks that an API key exists and has not expired
type KeyValidator interface {
	Validate(ctx context.Context, key string) error
}

// APIKeyMiddleware validates API keys for protected routes and adds the key to the request context
func APIKeyMiddleware(validator KeyValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apiKey := ExtractAPIKey(r)
			if apiKey == "" {
				utils.RespondWithError(w, http.StatusUnauthorized, "Missing API key")
				return
			}

			if err := validator.Validate(r.Context(), apiKey); err != nil {
				switch {
				case errors.Is(err, auth.ErrKeyNotFound):
					utils.RespondWithError(w, http.StatusUnauthorized, "Invalid API key")
				case errors.Is(err, auth.ErrKeyExpired):
					utils.RespondWithError(w, http.StatusUnauthorized, "API key has expired")
				default:
					// Fail closed: an unverifiable key is not let through.
					utils.RespondWithError(w, http.StatusServiceUnavailable, "Unable to validate API key")
				}
				return
			}

			ctx := context.WithValue(r.Context(), APIKeyContextKey, apiKey)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ExtractAPIKey reads the key from X-API-Key or a Bearer Authorization header
func ExtractAPIKey(r *http.Request) string {
	if apiKey := r.Header.Get("X-API-Key"); apiKey != "" {
		return apiKey
	}
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	}
	return ""
}

// GetAPIKey retrieves the validated API key from the request context
func GetAPIKey(ctx context.Context) (string, bool) {
	key, ok := ctx.Value(APIKeyContextKey).(string)
	return key, ok && key != ""
}
