package artifacts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// DefaultTTL bounds how long a shared artifact outlives its last write.
	DefaultTTL = 24 * time.Hour

	defaultPrefix = "pathway:artifact:"
)

// RedisCache is a Cache shared between processes. Each graph hash owns one
// Redis hash whose fields are artifact kinds, so invalidation is a single DEL.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisCache connects to redisURL and verifies the connection.
func NewRedisCache(ctx context.Context, redisURL string, ttl time.Duration) (*RedisCache, error) {
	if redisURL == "" {
		return nil, fmt.Errorf("artifacts: redis url is required")
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("artifacts: parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("artifacts: connect to redis: %w", err)
	}
	return NewRedisCacheFromClient(client, ttl), nil
}

// NewRedisCacheFromClient wraps an existing client. A non-positive ttl uses
// DefaultTTL.
func NewRedisCacheFromClient(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisCache{client: client, prefix: defaultPrefix, ttl: ttl}
}

func (c *RedisCache) key(hash string) string {
	return c.prefix + hash
}

// Get reads one artifact.
func (c *RedisCache) Get(ctx context.Context, key Key) ([]byte, bool, error) {
	data, err := c.client.HGet(ctx, c.key(key.Hash), key.Kind).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("artifacts: get %s: %w", key, err)
	}
	return data, true, nil
}

// Put writes one artifact and refreshes the TTL of its graph hash.
func (c *RedisCache) Put(ctx context.Context, key Key, data []byte) error {
	k := c.key(key.Hash)
	pipe := c.client.TxPipeline()
	pipe.HSet(ctx, k, key.Kind, data)
	pipe.Expire(ctx, k, c.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("artifacts: put %s: %w", key, err)
	}
	return nil
}

// Invalidate deletes every artifact for hash.
func (c *RedisCache) Invalidate(ctx context.Context, hash string) error {
	if err := c.client.Del(ctx, c.key(hash)).Err(); err != nil {
		return fmt.Errorf("artifacts: invalidate %s: %w", hash, err)
	}
	return nil
}

// Keys scans every cached artifact key.
func (c *RedisCache) Keys(ctx context.Context) ([]Key, error) {
	var keys []Key
	iter := c.client.Scan(ctx, 0, c.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		redisKey := iter.Val()
		hash := redisKey[len(c.prefix):]
		kinds, err := c.client.HKeys(ctx, redisKey).Result()
		if err != nil {
			return nil, fmt.Errorf("artifacts: list %s: %w", hash, err)
		}
		for _, kind := range kinds {
			keys = append(keys, Key{Hash: hash, Kind: kind})
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("artifacts: scan: %w", err)
	}
	sortKeys(keys)
	return keys, nil
}

// Close closes the underlying client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
