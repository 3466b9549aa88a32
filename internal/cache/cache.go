// Package cache provides the TTL key-value store consumed by the
// pricing and trading services. Values are stored as JSON so the
// in-memory and Redis backends share the same copy semantics: a Get
// never aliases the value that was Set.
package cache

import (
	"context"
	"time"
)

// Cache is a generic per-key TTL store. A value returned by Get is
// never older than its TTL from the most recent Set; once expired it
// behaves as absent. Single-key atomicity only; there is no ordering
// guarantee across keys.
type Cache interface {
	// Get unmarshals the value for key into dest and reports whether a
	// live entry was found. A missing or expired key returns (false, nil).
	Get(ctx context.Context, key string, dest interface{}) (bool, error)

	// Set stores value under key for ttl.
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	// Delete removes key. Deleting an absent key is a no-op.
	Delete(ctx context.Context, key string) error
}
