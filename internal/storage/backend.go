// Package storage is the durable side of the session client. It provides
// pluggable key-value backends (file, memory, Redis, SQL), the versioned
// auth snapshot codec, optional sealing of persisted bytes and the token
// jar the identity client keeps its bearer token in.
//
// Nothing in this package decides what the session state is; it only
// stores and restores what the session store hands it.
package storage

import (
	"context"
	"errors"
)

// ErrClosed is returned when operations are attempted on a closed backend.
var ErrClosed = errors.New("storage backend is closed")

// Backend is a durable key-value store. Implementations must be safe for
// concurrent use.
type Backend interface {
	// Get returns the value stored under key.
	// Returns (nil, nil) if the key doesn't exist.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores data under key, overwriting any previous value.
	Set(ctx context.Context, key string, data []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases resources owned by the backend. Shared clients passed
	// in by the caller are left open.
	Close() error
}
