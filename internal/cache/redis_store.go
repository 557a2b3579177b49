// internal/cache/redis_store.go
//
// Redis-backed cache entries for deployments that already run a
// server. Keys are namespaced relay:cache:<agent>:<key>; expiry rides
// on redis TTLs, so Sweep has nothing to purge.

package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kingrea/The-Relay/internal/layout"
	"github.com/kingrea/The-Relay/internal/logging"
)

// RedisStore implements Store over a redis server.
type RedisStore struct {
	client *redis.Client
	logger logging.Logger
}

// RedisStoreOption configures a RedisStore.
type RedisStoreOption func(*RedisStore)

// WithRedisLogger sets the structured sink.
func WithRedisLogger(l logging.Logger) RedisStoreOption {
	return func(s *RedisStore) {
		s.logger = logging.OrNop(l)
	}
}

// NewRedisStore wraps an existing redis client.
func NewRedisStore(client *redis.Client, opts ...RedisStoreOption) *RedisStore {
	s := &RedisStore{
		client: client,
		logger: logging.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Set upserts an entry. A zero TTL deletes any existing record: the
// entry is born expired and every later get must miss.
func (s *RedisStore) Set(ctx context.Context, agent, key string, value []byte, ttl time.Duration) error {
	if err := layout.ValidateName(agent); err != nil {
		return err
	}
	if key == "" {
		return fmt.Errorf("cache: key is empty")
	}

	k := s.redisKey(agent, key)
	if ttl == 0 {
		if err := s.client.Del(ctx, k).Err(); err != nil {
			return fmt.Errorf("cache: expire entry %s/%s: %w", agent, key, err)
		}
		return nil
	}

	expiration := ttl
	if ttl < 0 {
		expiration = 0 // redis: no expiry
	}
	if err := s.client.Set(ctx, k, value, expiration).Err(); err != nil {
		return fmt.Errorf("cache: write entry %s/%s: %w", agent, key, err)
	}
	s.logger.Debug("cache entry set", "agent", agent, "key", key, "ttl", ttl)
	return nil
}

// Get returns the value for key; redis misses map to (nil, false).
func (s *RedisStore) Get(ctx context.Context, agent, key string) ([]byte, bool, error) {
	if err := layout.ValidateName(agent); err != nil {
		return nil, false, err
	}
	value, err := s.client.Get(ctx, s.redisKey(agent, key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("cache: read entry %s/%s: %w", agent, key, err)
	}
	return value, true, nil
}

// Delete removes the entry for key if present.
func (s *RedisStore) Delete(ctx context.Context, agent, key string) error {
	if err := layout.ValidateName(agent); err != nil {
		return err
	}
	if err := s.client.Del(ctx, s.redisKey(agent, key)).Err(); err != nil {
		return fmt.Errorf("cache: delete entry %s/%s: %w", agent, key, err)
	}
	return nil
}

// Sweep is a no-op: the server evicts expired keys itself.
func (s *RedisStore) Sweep(ctx context.Context, agent string) (int, error) {
	if err := layout.ValidateName(agent); err != nil {
		return 0, err
	}
	return 0, nil
}

func (s *RedisStore) redisKey(agent, key string) string {
	return fmt.Sprintf("relay:cache:%s:%s", agent, key)
}
