package ratelimit

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLimiter(t *testing.T) (Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return Limiter{Client: client, Prefix: "rl:"}, mr
}

func TestLimiterSlidingWindow(t *testing.T) {
	limiter, mr := newTestLimiter(t)
	ctx := context.Background()
	window := 2 * time.Second
	limit := 2

	for i := 0; i < limit; i++ {
		allowed, remaining, _, err := limiter.Allow(ctx, "10.0.0.1", window, limit)
		if err != nil {
			t.Fatalf("allow: %v", err)
		}
		if !allowed {
			t.Fatalf("request %d should be within the limit", i+1)
		}
		if remaining != limit-(i+1) {
			t.Fatalf("remaining after request %d: got %d", i+1, remaining)
		}
	}

	allowed, remaining, _, err := limiter.Allow(ctx, "10.0.0.1", window, limit)
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if allowed || remaining != 0 {
		t.Fatalf("expected rejection with 0 remaining, got allowed=%v remaining=%d", allowed, remaining)
	}

	// Key expiry after the window clears the set.
	mr.FastForward(window)
	allowed, _, _, err = limiter.Allow(ctx, "10.0.0.1", window, limit)
	if err != nil {
		t.Fatalf("allow after window: %v", err)
	}
	if !allowed {
		t.Fatal("window elapsed, request should be allowed again")
	}
}

func TestLimiterDisabledWithoutClient(t *testing.T) {
	allowed, _, _, err := Limiter{}.Allow(context.Background(), "any", time.Second, 1)
	if err != nil || !allowed {
		t.Fatalf("nil client must fail open, got allowed=%v err=%v", allowed, err)
	}
}
