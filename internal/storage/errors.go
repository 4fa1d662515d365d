package storage

import (
	"errors"

	"lang_gateway/internal/auth"
)

var (
	// ErrAPIKeyNotFound is returned when an API key is not found
	ErrAPIKeyNotFound = auth.ErrKeyNotFound

	// ErrAPIKeyExists is returned when an owner already holds a key of the same type
	ErrAPIKeyExists = auth.ErrKeyExists

	// ErrStoreUnavailable is returned when Redis or Postgres cannot serve a request.
	// Callers on the metering path must fail closed on it.
	ErrStoreUnavailable = errors.New("backing store unavailable")
)
