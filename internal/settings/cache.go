package settings

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

const cacheKey = "settings:v1"

// Cache wraps Redis helpers for the cached settings payload.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache constructs a cache helper.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// Get unmarshals the cached settings. It reports whether the key existed.
func (c *Cache) Get(ctx context.Context) (Settings, bool, error) {
	if c == nil || c.client == nil {
		return Settings{}, false, nil
	}
	data, err := c.client.Get(ctx, cacheKey).Bytes()
	if err != nil {
		if err == redis.Nil {
			return Settings{}, false, nil
		}
		return Settings{}, false, err
	}
	var out Settings
	if err := json.Unmarshal(data, &out); err != nil {
		return Settings{}, false, err
	}
	return out, true, nil
}

// Set serialises the settings as JSON and stores them with the configured TTL.
func (c *Cache) Set(ctx context.Context, s Settings) error {
	if c == nil || c.client == nil {
		return nil
	}
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, cacheKey, data, c.ttl).Err()
}

// Invalidate drops the cached settings so the next read hits the database.
func (c *Cache) Invalidate(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Del(ctx, cacheKey).Err()
}
