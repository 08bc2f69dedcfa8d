package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/zatekoja/propertysearch/backend/internal/domain/providers"
	redisclient "github.com/zatekoja/propertysearch/backend/internal/infrastructure/clients/redis"
)

// RedisAdapter implements the CacheProvider interface using Redis
type RedisAdapter struct {
	client *redisclient.Client
}

// NewRedisAdapter creates a new Redis cache adapter
func NewRedisAdapter(client *redisclient.Client) providers.CacheProvider {
	return &RedisAdapter{
		client: client,
	}
}

// Get retrieves a value from cache
func (a *RedisAdapter) Get(ctx context.Context, key string) ([]byte, error) {
	result, err := a.client.Client().Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, providers.ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get from cache: %w", err)
	}
	return result, nil
}

// Set stores a value in cache with expiration
func (a *RedisAdapter) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := a.client.Client().Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set in cache: %w", err)
	}
	return nil
}

// Delete removes values from cache
func (a *RedisAdapter) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := a.client.Client().Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete from cache: %w", err)
	}
	return nil
}

// Exists checks if a key exists in cache
func (a *RedisAdapter) Exists(ctx context.Context, key string) (bool, error) {
	result, err := a.client.Client().Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check existence in cache: %w", err)
	}
	return result > 0, nil
}

// Incr atomically increments a counter
func (a *RedisAdapter) Incr(ctx context.Context, key string) (int64, error) {
	n, err := a.client.Client().Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment %s: %w", key, err)
	}
	return n, nil
}

// Tag adds keys to the tag set and extends the set's expiry
func (a *RedisAdapter) Tag(ctx context.Context, tag string, keys []string, ttl time.Duration) error {
	if len(keys) == 0 {
		return nil
	}
	members := make([]interface{}, len(keys))
	for i, k := range keys {
		members[i] = k
	}

	pipe := a.client.Client().TxPipeline()
	pipe.SAdd(ctx, tag, members...)
	pipe.Expire(ctx, tag, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to tag cache keys: %w", err)
	}
	return nil
}

// TaggedKeys returns the members of a tag set
func (a *RedisAdapter) TaggedKeys(ctx context.Context, tag string) ([]string, error) {
	keys, err := a.client.Client().SMembers(ctx, tag).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read tag %s: %w", tag, err)
	}
	return keys, nil
}

// Ping verifies the connection to Redis
func (a *RedisAdapter) Ping(ctx context.Context) error {
	return a.client.Ping(ctx)
}
