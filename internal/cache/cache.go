// Package cache provides a read-through cache on Redis. The cache is
// advisory: every failure is logged and the caller's compute function is
// used directly, so a Redis outage degrades latency but never correctness.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/parcellink/backend/internal/logging"
)

// Cache is a read-through JSON cache.
type Cache struct {
	client *redis.Client
	log    *logging.Logger
}

// New wraps a Redis client. A nil client disables caching entirely, which
// keeps tests and local runs free of a Redis dependency.
func New(client *redis.Client, log *logging.Logger) *Cache {
	return &Cache{client: client, log: log}
}

// GetOrCompute returns the cached value under key, or runs compute, caches
// the result for ttl and returns it. dest must be a pointer; on a cache hit
// the cached JSON is unmarshalled into it, on a miss the computed value is
// marshalled through it.
func (c *Cache) GetOrCompute(ctx context.Context, key string, ttl time.Duration, dest interface{}, compute func() (interface{}, error)) error {
	if c.client != nil {
		raw, err := c.client.Get(ctx, key).Bytes()
		if err == nil {
			if err := json.Unmarshal(raw, dest); err == nil {
				return nil
			}
			// Corrupt entry: fall through to recompute and overwrite.
			c.log.WithField("key", key).Warn("discarding unreadable cache entry")
		} else if err != redis.Nil {
			c.log.WithError(err).WithField("key", key).Warn("cache read failed")
		}
	}

	value, err := compute()
	if err != nil {
		return err
	}

	encoded, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(encoded, dest); err != nil {
		return err
	}

	if c.client != nil {
		if err := c.client.Set(ctx, key, encoded, ttl).Err(); err != nil {
			c.log.WithError(err).WithField("key", key).Warn("cache write failed")
		}
	}
	return nil
}

// Invalidate removes the given keys. Failures are logged and swallowed.
func (c *Cache) Invalidate(ctx context.Context, keys ...string) {
	if c.client == nil || len(keys) == 0 {
		return
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.log.WithError(err).WithField("keys", keys).Warn("cache invalidation failed")
	}
}

// InvalidatePrefix removes every key matching prefix*. Uses SCAN so it is
// safe against large keyspaces.
func (c *Cache) InvalidatePrefix(ctx context.Context, prefix string) {
	if c.client == nil {
		return
	}
	iter := c.client.Scan(ctx, 0, prefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		c.log.WithError(err).WithField("prefix", prefix).Warn("cache scan failed")
		return
	}
	c.Invalidate(ctx, keys...)
}
