// Package kvstore provides the persistent string key-value store the
// entitlement engine persists its state through. The interface mirrors the
// async get/set/remove surface of a device key-value store; drivers exist
// for an in-memory map (tests, local mode), a SQLite file (single-user
// durable storage), Redis, and Postgres.
package kvstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when the key has never been written
// or has been removed. Callers treat it as "use the default", never as
// a failure.
var ErrNotFound = errors.New("kvstore: key not found")

// Store is an async string-keyed, string-valued store assumed durable
// across process restarts (except the memory driver).
type Store interface {
	// Get returns the value for key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)

	// Set writes the value for key, overwriting any previous value.
	Set(ctx context.Context, key, value string) error

	// Remove deletes the key. Removing an absent key is not an error.
	Remove(ctx context.Context, key string) error

	// Close releases any underlying resources.
	Close() error
}
