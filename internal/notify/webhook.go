package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/tls"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/envioex/backend-envioex/internal/events"
	"github.com/envioex/backend-envioex/internal/obs"
	"github.com/envioex/backend-envioex/internal/queue"
	"github.com/envioex/backend-envioex/internal/resilience"
)

const defaultMaxDeliveryAttempts = 6

// EventSource loads persisted domain events for delivery.
type EventSource interface {
	GetDomainEvent(ctx context.Context, id uuid.UUID) (events.Event, error)
}

// ReplayProtector guards against sending duplicate deliveries within a TTL.
type ReplayProtector interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// Dispatcher schedules and executes webhook deliveries. Pricing and invoice
// events fan out to every active endpoint subscribed to their topic.
type Dispatcher struct {
	Store              Store
	Events             EventSource
	Client             *http.Client
	Breaker            *resilience.Breaker
	Queue              queue.Enqueuer
	BackoffBaseSec     int
	DefaultMaxAttempts int
	Enabled            bool
	Replay             ReplayProtector
	ReplayTTL          time.Duration
}

func (d *Dispatcher) disabled() bool {
	return d == nil || !d.Enabled || d.Store == nil
}

func (d *Dispatcher) maxAttempts() int {
	if d.DefaultMaxAttempts > 0 {
		return d.DefaultMaxAttempts
	}
	return defaultMaxDeliveryAttempts
}

// Schedule fans an event out to every active endpoint subscribed to its
// topic, creating one delivery row per endpoint. A duplicate delivery for
// the same endpoint and event is skipped silently.
func (d *Dispatcher) Schedule(ctx context.Context, event events.Event) error {
	if d.disabled() || strings.TrimSpace(event.Topic) == "" {
		return nil
	}
	endpoints, err := d.Store.ListActiveEndpointsForTopic(ctx, event.Topic)
	if err != nil {
		return err
	}

	attempts := d.maxAttempts()
	var joined error
	for _, ep := range endpoints {
		delivery, err := d.Store.EnqueueDelivery(ctx, ep.ID, event.ID, attempts)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				continue
			}
			joined = errors.Join(joined, fmt.Errorf("enqueue delivery for %s: %w", ep.ID, err))
			continue
		}
		if err := d.EnqueueDelivery(ctx, delivery.ID.String(), 0, attempts); err != nil {
			joined = errors.Join(joined, fmt.Errorf("publish delivery job %s: %w", delivery.ID, err))
		}
	}
	return joined
}

// WorkOnce dequeues eligible deliveries and attempts them. It backs the
// polling worker; queue-triggered deliveries go through DeliverByID.
func (d *Dispatcher) WorkOnce(ctx context.Context, batch int) error {
	if d.disabled() {
		return nil
	}
	batch = max(batch, 1)
	ctx, span := otel.Tracer("notify.Dispatcher").Start(ctx, "Dispatcher.WorkOnce")
	defer span.End()
	span.SetAttributes(attribute.Int("webhook.batch", batch))

	deliveries, err := d.Store.DequeueDueDeliveries(ctx, batch)
	if err != nil {
		span.RecordError(err)
		return err
	}
	for _, del := range deliveries {
		if err := d.attempt(ctx, del); err != nil {
			return err
		}
	}
	return nil
}

// DeliverByID executes a single delivery attempt identified by its row ID.
// Deliveries that already reached a terminal status are a no-op.
func (d *Dispatcher) DeliverByID(ctx context.Context, deliveryID string) error {
	if d.disabled() {
		return nil
	}
	id, err := uuid.Parse(strings.TrimSpace(deliveryID))
	if err != nil {
		return fmt.Errorf("invalid delivery id: %w", err)
	}
	delivery, err := d.Store.GetDelivery(ctx, id)
	if err != nil {
		return err
	}
	switch delivery.Status {
	case DeliveryDelivered, DeliveryDLQ:
		return nil
	}
	return d.attempt(ctx, delivery)
}

// Deliver exposes the low-level delivery routine for manual replays and tests.
func (d *Dispatcher) Deliver(ctx context.Context, ep Endpoint, ev events.Event, del Delivery) (int, string, error) {
	return d.deliver(ctx, ep, ev, del)
}

func (d *Dispatcher) attempt(ctx context.Context, del Delivery) error {
	if obs.WebhookDispatchAttempts != nil {
		obs.WebhookDispatchAttempts.Inc()
	}
	started := time.Now()
	if err := d.Store.MarkDelivering(ctx, del.ID); err != nil {
		// Another worker claimed it first.
		return nil
	}
	del.Attempt++

	endpoint, err := d.Store.GetEndpoint(ctx, del.EndpointID)
	if err != nil {
		return d.fail(ctx, del, fmt.Errorf("load endpoint: %w", err))
	}
	if d.Events == nil {
		return d.fail(ctx, del, errors.New("event source not configured"))
	}
	event, err := d.Events.GetDomainEvent(ctx, del.EventID)
	if err != nil {
		return d.fail(ctx, del, fmt.Errorf("load event: %w", err))
	}

	status, respBody, deliverErr := d.deliver(ctx, endpoint, event, del)
	if deliverErr == nil && status >= 200 && status < 300 {
		d.observeAttempt("delivered", started)
		if obs.WebhookDeliveriesTotal != nil {
			obs.WebhookDeliveriesTotal.WithLabelValues("delivered").Inc()
		}
		return d.Store.MarkDelivered(ctx, del.ID, status, respBody)
	}

	outcome := "failed"
	if del.Attempt >= del.MaxAttempt {
		outcome = "dlq"
	}
	d.observeAttempt(outcome, started)
	return d.fail(ctx, del, fmt.Errorf("status=%d err=%v", status, deliverErr))
}

func (d *Dispatcher) observeAttempt(outcome string, started time.Time) {
	if obs.WebhookAttemptLatency != nil {
		obs.WebhookAttemptLatency.WithLabelValues(outcome).Observe(obs.DurationMillis(time.Since(started)))
	}
}

func (d *Dispatcher) fail(ctx context.Context, del Delivery, err error) error {
	reason := err.Error()
	if del.Attempt >= del.MaxAttempt {
		if obs.WebhookDeliveriesTotal != nil {
			obs.WebhookDeliveriesTotal.WithLabelValues("dlq").Inc()
		}
		if obs.WebhookDispatchDLQ != nil {
			obs.WebhookDispatchDLQ.Inc()
		}
		return d.Store.MoveToDLQ(ctx, del.ID, reason)
	}
	if obs.WebhookDeliveriesTotal != nil {
		obs.WebhookDeliveriesTotal.WithLabelValues("failed").Inc()
	}
	// The polling worker picks the retry up once next_attempt_at passes.
	return d.Store.MarkFailedWithBackoff(ctx, del.ID, d.nextDelay(del.Attempt), reason)
}

func (d *Dispatcher) nextDelay(attempt int) int {
	base := d.BackoffBaseSec
	if base <= 0 {
		base = 5
	}
	return base * max(1<<attempt, 1)
}

// webhookEnvelope is the JSON body delivered to subscriber endpoints.
type webhookEnvelope struct {
	EventID    string          `json:"eventId"`
	Topic      string          `json:"topic"`
	Data       json.RawMessage `json:"data"`
	OccurredAt time.Time       `json:"occurredAt"`
}

func (d *Dispatcher) deliver(ctx context.Context, ep Endpoint, ev events.Event, del Delivery) (int, string, error) {
	if d.Client == nil {
		d.Client = HttpClient(5000, false)
	}
	ctx, span := otel.Tracer("notify.Dispatcher").Start(ctx, "Dispatcher.deliver")
	defer span.End()
	span.SetAttributes(
		attribute.String("webhook.endpoint_id", ep.ID.String()),
		attribute.String("webhook.delivery_id", del.ID.String()),
		attribute.String("webhook.topic", ev.Topic),
	)

	if err := validateURL(ep.URL); err != nil {
		span.RecordError(err)
		return 0, "", err
	}
	occurred := ev.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now()
	}
	body, err := json.Marshal(webhookEnvelope{
		EventID:    ev.ID.String(),
		Topic:      ev.Topic,
		Data:       json.RawMessage(ev.Payload),
		OccurredAt: occurred,
	})
	if err != nil {
		span.RecordError(err)
		return 0, "", err
	}

	if d.Replay != nil && d.ReplayTTL > 0 {
		ok, err := d.Replay.Acquire(ctx, replayKey(ep.ID, ev.ID), d.ReplayTTL)
		if err != nil {
			span.RecordError(err)
			return 0, "", err
		}
		if !ok {
			span.AddEvent("delivery replay prevented")
			return http.StatusOK, "replay-suppressed", nil
		}
	}

	req, err := d.signedRequest(ctx, ep, ev, del, body)
	if err != nil {
		span.RecordError(err)
		return 0, "", err
	}
	// Retries across attempts are driven by next_attempt_at in the store; the
	// breaker only sheds load while the endpoint keeps failing hard.
	resp, err := resilience.HTTPClient{Client: d.Client, Breaker: d.Breaker}.Do(ctx, req)
	if err != nil {
		span.RecordError(err)
		return 0, "", err
	}
	defer func() { _ = resp.Body.Close() }()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, "", err
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	return resp.StatusCode, string(responseBody), nil
}

func (d *Dispatcher) signedRequest(ctx context.Context, ep Endpoint, ev events.Event, del Delivery, body []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.URL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	ts := time.Now().Unix()
	eventID := ev.ID.String()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "envioex-api-webhooks/1.0")
	req.Header.Set("X-Event-ID", eventID)
	req.Header.Set("X-Timestamp", strconv.FormatInt(ts, 10))
	req.Header.Set("X-Idempotency-Key", del.ID.String())
	req.Header.Set("X-Signature", ComputeSignature(ep.Secret, ts, eventID, body))
	return req, nil
}

func validateURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid endpoint url: %w", err)
	}
	switch {
	case parsed.Scheme != "https" && parsed.Scheme != "http":
		return errors.New("webhook url must be http or https")
	case parsed.Host == "":
		return errors.New("webhook url must include host")
	case parsed.Scheme == "http":
		if host := parsed.Hostname(); host != "localhost" && host != "127.0.0.1" {
			return errors.New("http webhook only allowed for localhost")
		}
	}
	return nil
}

// ComputeSignature calculates the webhook signature for the provided payload.
// The format is HMAC-SHA256 over "<ts>.<eventID>.<body>" using the endpoint
// secret.
func ComputeSignature(secret string, ts int64, eventID string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(strconv.FormatInt(ts, 10)))
	_, _ = mac.Write([]byte("."))
	_, _ = mac.Write([]byte(eventID))
	_, _ = mac.Write([]byte("."))
	_, _ = mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// HttpClient returns an HTTP client configured for webhook delivery.
func HttpClient(timeoutMs int, insecure bool) *http.Client {
	if timeoutMs <= 0 {
		timeoutMs = 5000
	}
	transport := &http.Transport{}
	if insecure {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}
	return &http.Client{
		Timeout:   time.Duration(timeoutMs) * time.Millisecond,
		Transport: otelhttp.NewTransport(transport),
	}
}

func replayKey(endpointID, eventID uuid.UUID) string {
	return fmt.Sprintf("wh:%s:%s", endpointID, eventID)
}
