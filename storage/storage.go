// Package storage provides the key-value stores the session client persists
// to. It mirrors the two browser stores the portal front end relies on:
// a transient session scope and a persistent local scope.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when the key does not exist or has expired
var ErrNotFound = errors.New("storage: key not found")

// Well-known keys
const (
	// KeyIDTokenTemp holds the raw ID token between token exchange and backend login (session scope)
	KeyIDTokenTemp = "id_token_temp"
	// KeyDarkMode is a UI preference cleared on logout (local scope)
	KeyDarkMode = "darkMode"
	// KeyUser caches the last signed-in user for the UI (local scope)
	KeyUser = "ebsalem_user"
	// KeyTokens holds the identity provider token set (local scope)
	KeyTokens = "ebsalem_tokens"
)

// LocalAuthKeys are the local-scope keys removed on logout
var LocalAuthKeys = []string{KeyDarkMode, KeyUser, KeyTokens}

// SessionAuthKeys are the session-scope keys removed on logout
var SessionAuthKeys = []string{KeyIDTokenTemp}

// Storage is a flat key-value store
type Storage interface {
	// Get returns the value stored under key, or ErrNotFound
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key. A zero ttl means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes the given keys; missing keys are not an error
	Delete(ctx context.Context, keys ...string) error

	// Close releases backend resources
	Close() error
}
