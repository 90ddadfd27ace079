package configstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore is a Store backed by a single Redis key per stored value,
// sourced from the goadesign-goa-ai example repo's use of go-redis/v9 for
// distributed state; relevant here because the Circuit Breaker is
// explicitly shared/serialized state (spec §5) that benefits from a
// networked store in multi-process deployments.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore wraps client as a Store; every key is namespaced under
// prefix (e.g. "unified-agent-sdk:") to avoid colliding with unrelated
// keys in a shared Redis instance.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) namespaced(key string) string { return s.prefix + key }

// Load returns the value stored under key, or (nil, nil) if absent.
func (s *RedisStore) Load(ctx context.Context, key string) ([]byte, error) {
	value, err := s.client.Get(ctx, s.namespaced(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("configstore: redis load %s: %w", key, err)
	}
	return value, nil
}

// Save sets value under key with no expiry (the breaker snapshot is
// expected to live for the lifetime of the deployment).
func (s *RedisStore) Save(ctx context.Context, key string, value []byte) error {
	if err := s.client.Set(ctx, s.namespaced(key), value, 0).Err(); err != nil {
		return fmt.Errorf("configstore: redis save %s: %w", key, err)
	}
	return nil
}
