package kvstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when the key holds no value.
var ErrNotFound = errors.New("key not found")

// Store is a namespaced key-value store shared by the storefront's client-side components.
// Single-key operations are atomic; nothing is transactional across keys.
type Store interface {
	// Get returns the value stored under key or an error wrapping ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error

	// Remove deletes key. Removing a missing key is not an error.
	Remove(ctx context.Context, key string) error

	// Keys lists every key in the store's namespace.
	Keys(ctx context.Context) ([]string, error)

	// Close releases the underlying resources.
	Close() error
}
