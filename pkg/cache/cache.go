package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrMiss is returned by Get when the key is absent or expired.
var ErrMiss = errors.New("cache miss")

// Cache is a Redis-backed TTL cache for JSON-serializable values. Every
// entry expires; there is no unbounded in-process state. Stale reads are
// bounded by the TTL, so keep it short for anything entitlement-adjacent.
type Cache[T any] struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// New creates a Cache. Keys are namespaced with the prefix; ttl bounds how
// long a cached value may be served.
func New[T any](client *redis.Client, prefix string, ttl time.Duration) *Cache[T] {
	if client == nil {
		panic("cache: redis client is required")
	}
	if ttl <= 0 {
		panic("cache: ttl must be positive")
	}
	return &Cache[T]{client: client, prefix: prefix, ttl: ttl}
}

func (c *Cache[T]) key(k string) string {
	if c.prefix == "" {
		return k
	}
	return c.prefix + ":" + k
}

// Get returns the cached value for key, or ErrMiss.
func (c *Cache[T]) Get(ctx context.Context, key string) (T, error) {
	var value T
	raw, err := c.client.Get(ctx, c.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return value, ErrMiss
		}
		return value, err
	}
	if err := json.Unmarshal(raw, &value); err != nil {
		return value, err
	}
	return value, nil
}

// Set stores value under key with the cache's TTL.
func (c *Cache[T]) Set(ctx context.Context, key string, value T) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key(key), raw, c.ttl).Err()
}

// Delete removes key. Deleting an absent key is not an error.
func (c *Cache[T]) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, c.key(key)).Err()
}
