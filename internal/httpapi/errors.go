package httpapi

import (
	"errors"
	"net/http"

	"lang_gateway/internal/auth"
	"lang_gateway/internal/billing"
	"lang_gateway/internal/quota"
	"lang_gateway/internal/storage"
)

// StatusForError maps metering errors to HTTP status codes
func StatusForError(err error) int {
	var overQuota *quota.OverQuotaError

	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, billing.ErrCharacterCountTooLarge):
		return http.StatusBadRequest
	case errors.Is(err, auth.ErrKeyNotFound), errors.Is(err, auth.ErrKeyExpired):
		return http.StatusUnauthorized
	case errors.As(err, &overQuota):
		return http.StatusTooManyRequests
	case errors.Is(err, storage.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, billing.ErrProviderUnavailable):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
