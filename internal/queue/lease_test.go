package queue_test

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/envioex/backend-envioex/internal/queue"
)

func TestSoftDeadlineCancelsSlowHandler(t *testing.T) {
	client := newQueueRedis(t)
	enq := queue.Enqueuer{R: client, Prefix: "envioex", DedupTTL: time.Minute}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	attempts := make(chan int, 2)
	log := zerolog.New(io.Discard)
	worker := queue.Worker{
		R:                 client,
		Prefix:            "envioex",
		Kind:              "webhook-delivery",
		Concurrency:       1,
		VisibilityTimeout: 150 * time.Millisecond,
		SoftDeadline:      80 * time.Millisecond,
		RetryBase:         20 * time.Millisecond,
		Store:             newFakeDLQ(),
		Logger:            &log,
		Handler: func(jobCtx context.Context, job queue.Job) error {
			attempts <- job.Attempt
			if job.Attempt == 1 {
				// Simulate an endpoint that hangs past the deadline.
				<-jobCtx.Done()
				return jobCtx.Err()
			}
			cancel()
			return nil
		},
	}

	done := make(chan struct{})
	go func() {
		_ = worker.Run(ctx)
		close(done)
	}()

	require.NoError(t, enq.Enqueue(context.Background(), queue.Job{
		Kind:        "webhook-delivery",
		Payload:     []byte("d4"),
		DedupKey:    "d4",
		MaxAttempts: 3,
	}))

	require.Eventually(t, func() bool { return len(attempts) >= 2 }, 2*time.Second, 20*time.Millisecond)
	require.Equal(t, 1, <-attempts)
	require.Equal(t, 2, <-attempts)

	<-done

	depth, err := client.ZCard(context.Background(), "envioex:q:webhook-delivery:ready").Result()
	require.NoError(t, err)
	require.Equal(t, int64(0), depth)
}

func TestExpiredLeaseIsReclaimed(t *testing.T) {
	client := newQueueRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// A lease left behind by a crashed worker: its visibility deadline is
	// already in the past when this worker starts.
	stale, err := json.Marshal(map[string]any{
		"kind":         "webhook-delivery",
		"dedup":        "d5",
		"payload":      []byte("d5"),
		"attempt":      1,
		"max_attempts": 5,
		"ready_at":     time.Now().Add(-time.Minute).UnixNano(),
	})
	require.NoError(t, err)
	expired := float64(time.Now().Add(-time.Second).UnixNano())
	require.NoError(t, client.ZAdd(ctx, "envioex:q:webhook-delivery:leased",
		redis.Z{Score: expired, Member: stale}).Err())

	handled := make(chan queue.Job, 1)
	log := zerolog.New(io.Discard)
	worker := queue.Worker{
		R:                 client,
		Prefix:            "envioex",
		Kind:              "webhook-delivery",
		Concurrency:       1,
		VisibilityTimeout: time.Second,
		RetryBase:         10 * time.Millisecond,
		Logger:            &log,
		Handler: func(_ context.Context, job queue.Job) error {
			handled <- job
			cancel()
			return nil
		},
	}
	go func() { _ = worker.Run(ctx) }()

	// The sweep runs once per second, so the reclaimed job shows up shortly
	// after the first tick.
	select {
	case job := <-handled:
		require.Equal(t, []byte("d5"), job.Payload)
		require.Equal(t, 2, job.Attempt)
	case <-time.After(3 * time.Second):
		t.Fatal("expired lease was not reclaimed")
	}
}
