// Package cache provides the two storage layers wheelhouse needs: a byte-level
// response cache with TTL semantics (behind the [Cache] interface, with file,
// redis, and null backends) and an on-disk artifact store that materializes
// downloaded distribution files as local paths (see [Artifacts]).
package cache

import (
	"context"
	"errors"
	"time"
)

// Cache is a byte-level key/value store with per-entry TTL.
//
// Implementations must treat a missing key as a miss, not an error. A TTL of
// zero means the entry never expires.
type Cache interface {
	// Get retrieves a value. The second return value reports whether the key
	// was present and fresh.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores a value with the given TTL.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	// Delete removes a value. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Close releases any resources held by the backend.
	Close() error
}

// Sentinel errors for caching operations.
var (
	// ErrNotFound is returned when a requested item does not exist.
	ErrNotFound = errors.New("not found")

	// ErrNetwork is returned for HTTP failures (timeouts, connection errors, 5xx responses).
	ErrNetwork = errors.New("network error")
)
