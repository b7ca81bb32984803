// Package cache defines the expiring key-value store that holds client
// registrations and the short-lived authorization flow records.
package cache

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a key is absent or has expired.
	ErrNotFound = errors.New("cache: key not found")
	// ErrUnavailable is returned when the backing store cannot be reached.
	ErrUnavailable = errors.New("cache: backing store unavailable")
)

// Cache is an expiring string key-value store safe for concurrent use.
type Cache interface {
	// Get returns the value for key or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)
	// Set stores value under key. A ttl <= 0 means the entry never expires.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
	// Take atomically reads and removes key, so concurrent callers see the value at most once.
	Take(ctx context.Context, key string) (string, error)
	// Ping reports whether the backing store is reachable.
	Ping(ctx context.Context) error
}
