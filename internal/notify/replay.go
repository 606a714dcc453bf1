package notify

import (
	"context"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// RedisReplayProtector claims delivery keys with SetNX so a given
// endpoint/event pair is sent at most once per TTL. A nil client disables
// the guard rather than blocking deliveries.
type RedisReplayProtector struct {
	Client *redis.Client
}

func (r RedisReplayProtector) enabled() bool { return r.Client != nil }

func (r RedisReplayProtector) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if !r.enabled() {
		return true, nil
	}
	return r.Client.SetNX(ctx, key, "claimed", ttl).Result()
}

func (r RedisReplayProtector) Release(ctx context.Context, key string) error {
	if !r.enabled() {
		return nil
	}
	return r.Client.Del(ctx, key).Err()
}
