package notify

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/envioex/backend-envioex/internal/lock"
)

const defaultDeliveryLockTTL = 30 * time.Second

// DeliveryWorker is the queue handler side of webhook delivery. The queue
// payload is a delivery row ID; a per-delivery Redis lock keeps the queue
// worker and the polling loop from attempting the same row concurrently.
type DeliveryWorker struct {
	Dispatcher *Dispatcher
	Locker     lock.Locker
	LockTTL    time.Duration
}

func (w DeliveryWorker) lockTTL() time.Duration {
	if w.LockTTL > 0 {
		return w.LockTTL
	}
	return defaultDeliveryLockTTL
}

// Handle attempts the delivery named by the payload under its lock. Blank
// payloads are acknowledged without work so a malformed job cannot wedge the
// queue in a retry loop.
func (w DeliveryWorker) Handle(ctx context.Context, payload []byte) error {
	if w.Dispatcher == nil {
		return errors.New("notify: delivery worker has no dispatcher")
	}

	deliveryID := strings.TrimSpace(string(payload))
	if deliveryID == "" {
		return nil
	}
	deliver := func(ctx context.Context) error {
		return w.Dispatcher.DeliverByID(ctx, deliveryID)
	}
	return w.Locker.WithLock(ctx, "lock:delivery:"+deliveryID, w.lockTTL(), deliver)
}
