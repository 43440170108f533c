package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache wraps the Redis client with common operations
type RedisCache struct {
	client *redis.Client
	ctx    context.Context
}

// NewRedisCache creates a new Redis cache client
func NewRedisCache(addr, password string, db int) *RedisCache {
	return &RedisCache{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
		ctx: context.Background(),
	}
}

// Get retrieves a value from Redis
func (c *RedisCache) Get(key string) ([]byte, error) {
	val, err := c.client.Get(c.ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil // Key doesn't exist
	}
	return val, err
}

// Set stores a value in Redis with TTL
func (c *RedisCache) Set(key string, value []byte, ttl time.Duration) error {
	return c.client.Set(c.ctx, key, value, ttl).Err()
}

// Delete removes keys from Redis
func (c *RedisCache) Delete(keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(c.ctx, keys...).Err()
}

// HashSetWithTTL sets one hash field and refreshes the key expiry in a
// single round trip.
func (c *RedisCache) HashSetWithTTL(key, field string, value interface{}, ttl time.Duration) error {
	pipe := c.client.TxPipeline()
	pipe.HSet(c.ctx, key, field, value)
	pipe.Expire(c.ctx, key, ttl)
	_, err := pipe.Exec(c.ctx)
	return err
}

// HashDelete removes fields from a hash
func (c *RedisCache) HashDelete(key string, fields ...string) error {
	return c.client.HDel(c.ctx, key, fields...).Err()
}

// HashGetAll returns every field of a hash; a missing key yields an empty map
func (c *RedisCache) HashGetAll(key string) (map[string]string, error) {
	return c.client.HGetAll(c.ctx, key).Result()
}

// Ping checks if Redis is alive
func (c *RedisCache) Ping() error {
	return c.client.Ping(c.ctx).Err()
}

// Close closes the Redis connection
func (c *RedisCache) Close() error {
	return c.client.Close()
}
