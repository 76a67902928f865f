// internal/adapter/kv/kv.go

// Package kv provides a small key-value store abstraction used for
// per-connection bookkeeping (approach-event suppression, rate limiting).
// The in-memory implementation serves single-instance deployments and
// tests; the redis implementation serves multi-instance deployments.
package kv

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a key does not exist or has expired
var ErrNotFound = errors.New("key not found")

// Store is an injectable key-value store with per-key TTLs
type Store interface {
	// Get returns the value for a key
	Get(ctx context.Context, key string) (string, error)

	// Set stores a value with a TTL; a zero TTL means no expiry
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Delete removes a key
	Delete(ctx context.Context, key string) error

	// Increment atomically increments a counter, applying the TTL when the
	// counter is first created
	Increment(ctx context.Context, key string, ttl time.Duration) (int64, error)

	// Close releases any resources held by the store
	Close() error
}
