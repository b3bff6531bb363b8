// Package store defines the key-value persistence collaborator used to keep
// the subscription tier and the usage ledger across restarts.
package store

import "context"

// Default keys for the two persisted values.
const (
	DefaultTierKey  = "entitle:tier"
	DefaultUsageKey = "entitle:usage"
)

// Store is a string key-value store.
type Store interface {
	// Get returns the value for key and whether it exists.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error

	Ping(ctx context.Context) error
	Close() error
}

// Migrator is implemented by stores that need schema setup before use.
type Migrator interface {
	Migrate(ctx context.Context) error
}

// CompareAndSwapper is implemented by stores that can update a key only if
// it still holds an expected value. An empty old value matches a missing key.
// Engines use it to keep daily caps exact when several processes share one
// store.
type CompareAndSwapper interface {
	CompareAndSwap(ctx context.Context, key, old, value string) (bool, error)
}
