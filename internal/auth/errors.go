package auth

import "errors"

var (
	// ErrKeyNotFound is returned when an API key does not exist (or was revoked)
	ErrKeyNotFound = errors.New("API key not found")

	// ErrKeyExpired is returned when an API key is past its expiration
	ErrKeyExpired = errors.New("API key expired")

	// ErrKeyExists is returned by a KeyStore when an owner already holds a key of that type
	ErrKeyExists = errors.New("API key already exists for owner")
)
