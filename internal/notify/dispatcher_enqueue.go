package notify

import (
	"context"
	"strings"
	"time"

	"github.com/envioex/backend-envioex/internal/queue"
)

// JobKindDelivery is the queue kind carrying webhook delivery row IDs.
const JobKindDelivery = "webhook-delivery"

// EnqueueDelivery hands a delivery row to the queue worker. The row ID doubles
// as the dedup key, so a delivery already in flight is not enqueued twice.
// Without a Redis-backed queue the call is a no-op and the polling loop picks
// the delivery up instead.
func (d Dispatcher) EnqueueDelivery(ctx context.Context, deliveryID string, delay time.Duration, maxAttempts int) error {
	deliveryID = strings.TrimSpace(deliveryID)
	if deliveryID == "" || d.Queue.R == nil {
		return nil
	}
	if maxAttempts <= 0 {
		maxAttempts = d.DefaultMaxAttempts
	}
	if maxAttempts <= 0 {
		maxAttempts = 6
	}
	return d.Queue.Enqueue(ctx, queue.Job{
		Kind:        JobKindDelivery,
		Payload:     []byte(deliveryID),
		DedupKey:    deliveryID,
		MaxAttempts: maxAttempts,
		Delay:       delay,
	})
}
