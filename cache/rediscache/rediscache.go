// Package rediscache is a cache.Cache backed by Redis.
package rediscache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jrsteele09/go-passthru-auth/cache"
	"github.com/redis/go-redis/v9"
)

// Default timeouts for Redis operations.
const (
	DefaultDialTimeout  = 5 * time.Second
	DefaultReadTimeout  = 3 * time.Second
	DefaultWriteTimeout = 3 * time.Second
)

// DefaultKeyPrefix namespaces every key written by the bridge.
const DefaultKeyPrefix = "passthru:"

// Cache implements cache.Cache on a Redis client.
type Cache struct {
	client    redis.UniversalClient
	keyPrefix string
}

var _ cache.Cache = (*Cache)(nil)

// New connects to the Redis server named by rawURL (redis:// or rediss://)
// and fails if it cannot be pinged.
func New(ctx context.Context, rawURL, keyPrefix string) (*Cache, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = DefaultDialTimeout
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = DefaultReadTimeout
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", errors.Join(cache.ErrUnavailable, err))
	}
	return NewWithClient(client, keyPrefix), nil
}

// NewWithClient wraps an existing client. Tests use it with miniredis.
func NewWithClient(client redis.UniversalClient, keyPrefix string) *Cache {
	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}
	return &Cache{client: client, keyPrefix: keyPrefix}
}

func (c *Cache) key(k string) string {
	return c.keyPrefix + k
}

func (c *Cache) Get(ctx context.Context, key string) (string, error) {
	v, err := c.client.Get(ctx, c.key(key)).Result()
	if err != nil {
		return "", mapError("get", err)
	}
	return v, nil
}

func (c *Cache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := c.client.Set(ctx, c.key(key), value, ttl).Err(); err != nil {
		return mapError("set", err)
	}
	return nil
}

func (c *Cache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.key(key)).Err(); err != nil {
		return mapError("delete", err)
	}
	return nil
}

// Take uses GETDEL so that two concurrent callers can never both observe the value.
func (c *Cache) Take(ctx context.Context, key string) (string, error) {
	v, err := c.client.GetDel(ctx, c.key(key)).Result()
	if err != nil {
		return "", mapError("take", err)
	}
	return v, nil
}

func (c *Cache) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return mapError("ping", err)
	}
	return nil
}

// Close releases the underlying client.
func (c *Cache) Close() error {
	return c.client.Close()
}

func mapError(op string, err error) error {
	switch {
	case errors.Is(err, redis.Nil):
		return cache.ErrNotFound
	case errors.Is(err, context.Canceled):
		return err
	default:
		return fmt.Errorf("redis %s: %w", op, errors.Join(cache.ErrUnavailable, err))
	}
}
