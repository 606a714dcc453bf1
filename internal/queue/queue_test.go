package queue_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/envioex/backend-envioex/internal/queue"
)

func newQueueRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestWorkerDeliversEnqueuedJob(t *testing.T) {
	client := newQueueRedis(t)
	enq := queue.Enqueuer{R: client, Prefix: "envioex"}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deliveryID := "5f0a7c1e-9a14-4d5e-8c14-2f6d7a3b9c01"
	require.NoError(t, enq.Enqueue(ctx, queue.Job{
		Kind:     "webhook-delivery",
		Payload:  []byte(deliveryID),
		DedupKey: deliveryID,
	}))

	handled := make(chan queue.Job, 1)
	worker := queue.Worker{
		R:                 client,
		Prefix:            "envioex",
		Kind:              "webhook-delivery",
		Concurrency:       1,
		VisibilityTimeout: time.Second,
		RetryBase:         10 * time.Millisecond,
		Handler: func(_ context.Context, job queue.Job) error {
			handled <- job
			cancel()
			return nil
		},
	}
	go func() { _ = worker.Run(ctx) }()

	select {
	case job := <-handled:
		require.Equal(t, []byte(deliveryID), job.Payload)
		require.Equal(t, 1, job.Attempt)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for delivery job")
	}
}

func TestEnqueueDedupesWithinWindow(t *testing.T) {
	client := newQueueRedis(t)
	enq := queue.Enqueuer{R: client, Prefix: "envioex", DedupTTL: time.Minute}
	ctx := context.Background()

	job := queue.Job{Kind: "webhook-delivery", Payload: []byte("d1"), DedupKey: "d1"}
	require.NoError(t, enq.Enqueue(ctx, job))
	require.NoError(t, enq.Enqueue(ctx, job))

	depth, err := client.ZCard(ctx, "envioex:q:webhook-delivery:ready").Result()
	require.NoError(t, err)
	require.Equal(t, int64(1), depth)
}

func TestEnqueueRejectsBadKind(t *testing.T) {
	client := newQueueRedis(t)
	enq := queue.Enqueuer{R: client}

	err := enq.Enqueue(context.Background(), queue.Job{Kind: "Webhook Delivery!"})
	require.Error(t, err)
}

func TestWorkerRetriesFailedJob(t *testing.T) {
	client := newQueueRedis(t)
	enq := queue.Enqueuer{R: client, Prefix: "envioex"}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, enq.Enqueue(ctx, queue.Job{
		Kind:        "webhook-delivery",
		Payload:     []byte("d2"),
		DedupKey:    "d2",
		MaxAttempts: 3,
	}))

	var attempts atomic.Int32
	worker := queue.Worker{
		R:                 client,
		Prefix:            "envioex",
		Kind:              "webhook-delivery",
		Concurrency:       1,
		VisibilityTimeout: time.Second,
		RetryBase:         5 * time.Millisecond,
		RetryJitter:       0.1,
		Handler: func(_ context.Context, job queue.Job) error {
			if attempts.Add(1) == 1 {
				return errors.New("endpoint unreachable")
			}
			cancel()
			return nil
		},
	}
	go func() { _ = worker.Run(ctx) }()

	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not retry in time")
	}
	require.GreaterOrEqual(t, attempts.Load(), int32(2))
}
