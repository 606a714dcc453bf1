package lock_test

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/envioex/backend-envioex/internal/lock"
)

func testLocker(t *testing.T) lock.Locker {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return lock.Locker{R: client, RetryBackoff: 5 * time.Millisecond}
}

func TestWithLockSerialisesHolders(t *testing.T) {
	locker := testLocker(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	const key = "lock:delivery:7f2b0c3a"
	order := make(chan string, 2)
	firstHolds := make(chan struct{})
	releaseFirst := make(chan struct{})

	hold := func(name string, gate <-chan struct{}) func(context.Context) error {
		return func(context.Context) error {
			order <- name
			if name == "first" {
				close(firstHolds)
			}
			if gate != nil {
				<-gate
			}
			return nil
		}
	}

	go func() {
		require.NoError(t, locker.WithLock(ctx, key, 100*time.Millisecond, hold("first", releaseFirst)))
	}()
	<-firstHolds

	done := make(chan error, 1)
	go func() {
		done <- locker.WithLock(ctx, key, 100*time.Millisecond, hold("second", nil))
	}()

	close(releaseFirst)
	require.NoError(t, <-done)
	require.Equal(t, "first", <-order)
	require.Equal(t, "second", <-order)
}

func TestWithLockReleasesAfterCallbackError(t *testing.T) {
	locker := testLocker(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	const key = "lock:delivery:9d4e1f20"
	failed := errors.New("delivery attempt failed")
	err := locker.WithLock(ctx, key, time.Minute, func(context.Context) error {
		return failed
	})
	require.ErrorIs(t, err, failed)

	// The lock must be free immediately, not held until the TTL runs out.
	acquired := false
	require.NoError(t, locker.WithLock(ctx, key, time.Minute, func(context.Context) error {
		acquired = true
		return nil
	}))
	require.True(t, acquired)
}
