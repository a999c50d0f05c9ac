package types

import (
	"context"
	"errors"
)

// Durable storage keys scoped to one installation.
const (
	KeyCartSnapshot = "cart_items"
	KeyGuestSession = "guest_session_id"
	KeyAuthToken    = "auth_token"
)

// KVStore is durable string key/value storage that survives process restarts.
// Callers attach to a backend, read and write keys, and detach when done.
type KVStore interface {
	// Attach opens the backend described by config.
	// Creates the DataDir if it does not exist. Returns ErrAlreadyAttached
	// if called while already attached.
	Attach(config Config) error

	// Detach releases backend resources. Idempotent: multiple calls succeed.
	// After Detach, Get, Set and Remove return ErrStoreDetached.
	Detach() error

	// Get returns the value stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error

	// Remove deletes key. Removing a missing key is not an error.
	Remove(ctx context.Context, key string) error
}

// Store lifecycle errors.
var (
	ErrStoreDetached   = errors.New("store is detached")
	ErrAlreadyAttached = errors.New("store is already attached")
	ErrNotFound        = errors.New("key not found")
	ErrInvalidKey      = errors.New("invalid key")
)
