package ratelimit

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Limiter is a sliding-window counter over a Redis sorted set: each request
// is a member scored by its nanosecond timestamp, members older than the
// window are pruned on every call.
type Limiter struct {
	Client *redis.Client
	Prefix string
}

// Allow records one hit for key and reports whether it stayed within
// maxHits. A nil client or non-positive limits disable enforcement.
func (l Limiter) Allow(ctx context.Context, key string, window time.Duration, maxHits int) (allowed bool, remaining int, reset time.Time, err error) {
	if l.Client == nil || maxHits <= 0 || window <= 0 {
		return true, maxHits, time.Now().Add(window), nil
	}

	now := time.Now()
	until := now.Add(window)
	cutoff := strconv.FormatInt(now.Add(-window).UnixNano(), 10)
	redisKey := l.Prefix + key

	pipe := l.Client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "-inf", cutoff)
	pipe.ZAdd(ctx, redisKey, redis.Z{
		Score:  float64(now.UnixNano()),
		Member: key + ":" + uuid.NewString(),
	})
	countCmd := pipe.ZCard(ctx, redisKey)
	pipe.Expire(ctx, redisKey, window)
	if _, err = pipe.Exec(ctx); err != nil {
		return false, 0, until, err
	}

	current := int(countCmd.Val())
	return current <= maxHits, max(maxHits-current, 0), until, nil
}
