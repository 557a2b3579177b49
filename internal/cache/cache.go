// internal/cache/cache.go
//
// Per-agent TTL cache. Logical expiry precedes physical eviction: a
// get on an elapsed entry is a miss even when the record still exists
// on disk. Two backends implement the contract, a file store inside
// each agent's cache area and a redis store for deployments that
// already run one.

package cache

import (
	"context"
	"time"
)

// NoExpiry marks an entry that never logically expires. A TTL of zero
// means the entry is born expired: every later get is a miss.
const NoExpiry time.Duration = -1

// Store is the cache contract shared by both backends.
type Store interface {
	// Set upserts an entry. Last write wins for concurrent setters of
	// the same key.
	Set(ctx context.Context, agent, key string, value []byte, ttl time.Duration) error

	// Get returns the entry value and whether it was a hit. Expired
	// and missing entries are misses, not errors.
	Get(ctx context.Context, agent, key string) ([]byte, bool, error)

	// Delete removes an entry. Deleting a missing entry is a no-op.
	Delete(ctx context.Context, agent, key string) error

	// Sweep physically removes expired entries and reports how many
	// it purged. Backends with server-side eviction may report zero.
	Sweep(ctx context.Context, agent string) (int, error)
}
