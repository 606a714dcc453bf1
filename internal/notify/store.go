package notify

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrStoreUnavailable indicates the webhook store dependency is not configured.
var ErrStoreUnavailable = errors.New("notify: store unavailable")

// Delivery status values.
const (
	DeliveryPending    = "pending"
	DeliveryDelivering = "delivering"
	DeliveryDelivered  = "delivered"
	DeliveryFailed     = "failed"
	DeliveryDLQ        = "dlq"
)

// Endpoint is a registered webhook receiver.
type Endpoint struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	Secret    string    `json:"-"`
	Active    bool      `json:"active"`
	Topics    []string  `json:"topics"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Delivery tracks one attempt stream of an event towards an endpoint.
type Delivery struct {
	ID             uuid.UUID `json:"id"`
	EndpointID     uuid.UUID `json:"endpoint_id"`
	EventID        uuid.UUID `json:"event_id"`
	Status         string    `json:"status"`
	Attempt        int       `json:"attempt"`
	MaxAttempt     int       `json:"max_attempt"`
	NextAttemptAt  time.Time `json:"next_attempt_at"`
	LastError      string    `json:"last_error,omitempty"`
	ResponseStatus int       `json:"response_status,omitempty"`
	ResponseBody   string    `json:"response_body,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// DeliveryFilter narrows delivery listings.
type DeliveryFilter struct {
	EndpointID uuid.UUID
	EventID    uuid.UUID
	Status     string
	Limit      int
	Offset     int
}

// Store defines the persistence operations required for webhook management.
type Store interface {
	CreateEndpoint(ctx context.Context, e Endpoint) (Endpoint, error)
	UpdateEndpoint(ctx context.Context, e Endpoint) (Endpoint, error)
	GetEndpoint(ctx context.Context, id uuid.UUID) (Endpoint, error)
	ListEndpoints(ctx context.Context, limit, offset int) ([]Endpoint, error)
	DeleteEndpoint(ctx context.Context, id uuid.UUID) error
	ListActiveEndpointsForTopic(ctx context.Context, topic string) ([]Endpoint, error)

	EnqueueDelivery(ctx context.Context, endpointID, eventID uuid.UUID, maxAttempt int) (Delivery, error)
	DequeueDueDeliveries(ctx context.Context, limit int) ([]Delivery, error)
	GetDelivery(ctx context.Context, id uuid.UUID) (Delivery, error)
	MarkDelivering(ctx context.Context, id uuid.UUID) error
	MarkDelivered(ctx context.Context, id uuid.UUID, responseStatus int, responseBody string) error
	MarkFailedWithBackoff(ctx context.Context, id uuid.UUID, delaySec int, lastError string) error
	MoveToDLQ(ctx context.Context, id uuid.UUID, reason string) error
	ResetDeliveryForReplay(ctx context.Context, id uuid.UUID) (Delivery, error)
	ListDeliveries(ctx context.Context, filter DeliveryFilter) ([]Delivery, error)
	CountDeliveries(ctx context.Context, filter DeliveryFilter) (int64, error)
}

// NewStore constructs a Store backed by a pgx connection pool.
func NewStore(pool *pgxpool.Pool) Store {
	return &pgStore{pool: pool}
}

type pgStore struct {
	pool *pgxpool.Pool
}

const endpointColumns = `id, name, url, secret, active, topics, created_at, updated_at`
const deliveryColumns = `id, endpoint_id, event_id, status, attempt, max_attempt, next_attempt_at, last_error, response_status, response_body, created_at, updated_at`

func (s *pgStore) CreateEndpoint(ctx context.Context, in Endpoint) (Endpoint, error) {
	if s == nil || s.pool == nil {
		return Endpoint{}, ErrStoreUnavailable
	}
	row := s.pool.QueryRow(ctx, `INSERT INTO webhook_endpoints (name, url, secret, active, topics)
VALUES ($1, $2, $3, $4, $5) RETURNING `+endpointColumns,
		in.Name, in.URL, in.Secret, in.Active, in.Topics)
	return scanEndpoint(row)
}

func (s *pgStore) UpdateEndpoint(ctx context.Context, in Endpoint) (Endpoint, error) {
	if s == nil || s.pool == nil {
		return Endpoint{}, ErrStoreUnavailable
	}
	row := s.pool.QueryRow(ctx, `UPDATE webhook_endpoints
SET name = $2, url = $3, secret = $4, active = $5, topics = $6, updated_at = now()
WHERE id = $1 RETURNING `+endpointColumns,
		in.ID, in.Name, in.URL, in.Secret, in.Active, in.Topics)
	return scanEndpoint(row)
}

func (s *pgStore) GetEndpoint(ctx context.Context, id uuid.UUID) (Endpoint, error) {
	if s == nil || s.pool == nil {
		return Endpoint{}, ErrStoreUnavailable
	}
	row := s.pool.QueryRow(ctx, `SELECT `+endpointColumns+` FROM webhook_endpoints WHERE id = $1`, id)
	return scanEndpoint(row)
}

func (s *pgStore) ListEndpoints(ctx context.Context, limit, offset int) ([]Endpoint, error) {
	if s == nil || s.pool == nil {
		return nil, ErrStoreUnavailable
	}
	rows, err := s.pool.Query(ctx, `SELECT `+endpointColumns+`
FROM webhook_endpoints ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEndpoints(rows, limit)
}

func (s *pgStore) DeleteEndpoint(ctx context.Context, id uuid.UUID) error {
	if s == nil || s.pool == nil {
		return ErrStoreUnavailable
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM webhook_endpoints WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (s *pgStore) ListActiveEndpointsForTopic(ctx context.Context, topic string) ([]Endpoint, error) {
	if s == nil || s.pool == nil {
		return nil, ErrStoreUnavailable
	}
	rows, err := s.pool.Query(ctx, `SELECT `+endpointColumns+`
FROM webhook_endpoints WHERE active AND $1 = ANY(topics) ORDER BY created_at`, topic)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEndpoints(rows, 8)
}

func (s *pgStore) EnqueueDelivery(ctx context.Context, endpointID, eventID uuid.UUID, maxAttempt int) (Delivery, error) {
	if s == nil || s.pool == nil {
		return Delivery{}, ErrStoreUnavailable
	}
	row := s.pool.QueryRow(ctx, `INSERT INTO webhook_deliveries (endpoint_id, event_id, status, max_attempt, next_attempt_at)
VALUES ($1, $2, 'pending', $3, now()) RETURNING `+deliveryColumns,
		endpointID, eventID, maxAttempt)
	return scanDelivery(row)
}

func (s *pgStore) DequeueDueDeliveries(ctx context.Context, limit int) ([]Delivery, error) {
	if s == nil || s.pool == nil {
		return nil, ErrStoreUnavailable
	}
	rows, err := s.pool.Query(ctx, `SELECT `+deliveryColumns+`
FROM webhook_deliveries
WHERE status IN ('pending', 'failed') AND next_attempt_at <= now()
ORDER BY next_attempt_at LIMIT $1 FOR UPDATE SKIP LOCKED`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectDeliveries(rows, limit)
}

func (s *pgStore) GetDelivery(ctx context.Context, id uuid.UUID) (Delivery, error) {
	if s == nil || s.pool == nil {
		return Delivery{}, ErrStoreUnavailable
	}
	row := s.pool.QueryRow(ctx, `SELECT `+deliveryColumns+` FROM webhook_deliveries WHERE id = $1`, id)
	return scanDelivery(row)
}

func (s *pgStore) MarkDelivering(ctx context.Context, id uuid.UUID) error {
	if s == nil || s.pool == nil {
		return ErrStoreUnavailable
	}
	tag, err := s.pool.Exec(ctx, `UPDATE webhook_deliveries
SET status = 'delivering', attempt = attempt + 1, updated_at = now()
WHERE id = $1 AND status IN ('pending', 'failed')`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (s *pgStore) MarkDelivered(ctx context.Context, id uuid.UUID, responseStatus int, responseBody string) error {
	if s == nil || s.pool == nil {
		return ErrStoreUnavailable
	}
	_, err := s.pool.Exec(ctx, `UPDATE webhook_deliveries
SET status = 'delivered', response_status = NULLIF($2, 0), response_body = NULLIF($3, ''), last_error = NULL, updated_at = now()
WHERE id = $1`, id, responseStatus, responseBody)
	return err
}

func (s *pgStore) MarkFailedWithBackoff(ctx context.Context, id uuid.UUID, delaySec int, lastError string) error {
	if s == nil || s.pool == nil {
		return ErrStoreUnavailable
	}
	_, err := s.pool.Exec(ctx, `UPDATE webhook_deliveries
SET status = 'failed', last_error = $2, next_attempt_at = now() + make_interval(secs => $3), updated_at = now()
WHERE id = $1`, id, lastError, delaySec)
	return err
}

func (s *pgStore) MoveToDLQ(ctx context.Context, id uuid.UUID, reason string) error {
	if s == nil || s.pool == nil {
		return ErrStoreUnavailable
	}
	_, err := s.pool.Exec(ctx, `UPDATE webhook_deliveries
SET status = 'dlq', last_error = $2, updated_at = now() WHERE id = $1`, id, reason)
	return err
}

func (s *pgStore) ResetDeliveryForReplay(ctx context.Context, id uuid.UUID) (Delivery, error) {
	if s == nil || s.pool == nil {
		return Delivery{}, ErrStoreUnavailable
	}
	row := s.pool.QueryRow(ctx, `UPDATE webhook_deliveries
SET status = 'pending', attempt = 0, last_error = NULL, next_attempt_at = now(), updated_at = now()
WHERE id = $1 RETURNING `+deliveryColumns, id)
	return scanDelivery(row)
}

func (s *pgStore) ListDeliveries(ctx context.Context, filter DeliveryFilter) ([]Delivery, error) {
	if s == nil || s.pool == nil {
		return nil, ErrStoreUnavailable
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `SELECT `+deliveryColumns+`
FROM webhook_deliveries
WHERE ($1 = '00000000-0000-0000-0000-000000000000'::uuid OR endpoint_id = $1)
  AND ($2 = '00000000-0000-0000-0000-000000000000'::uuid OR event_id = $2)
  AND ($3 = '' OR status = $3)
ORDER BY created_at DESC LIMIT $4 OFFSET $5`,
		filter.EndpointID, filter.EventID, strings.TrimSpace(filter.Status), limit, filter.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectDeliveries(rows, limit)
}

func (s *pgStore) CountDeliveries(ctx context.Context, filter DeliveryFilter) (int64, error) {
	if s == nil || s.pool == nil {
		return 0, ErrStoreUnavailable
	}
	var total int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM webhook_deliveries
WHERE ($1 = '00000000-0000-0000-0000-000000000000'::uuid OR endpoint_id = $1)
  AND ($2 = '00000000-0000-0000-0000-000000000000'::uuid OR event_id = $2)
  AND ($3 = '' OR status = $3)`,
		filter.EndpointID, filter.EventID, strings.TrimSpace(filter.Status)).Scan(&total)
	return total, err
}

func scanEndpoint(row pgx.Row) (Endpoint, error) {
	var e Endpoint
	if err := row.Scan(&e.ID, &e.Name, &e.URL, &e.Secret, &e.Active, &e.Topics, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return Endpoint{}, err
	}
	return e, nil
}

func collectEndpoints(rows pgx.Rows, sizeHint int) ([]Endpoint, error) {
	endpoints := make([]Endpoint, 0, sizeHint)
	for rows.Next() {
		e, err := scanEndpoint(rows)
		if err != nil {
			return nil, err
		}
		endpoints = append(endpoints, e)
	}
	return endpoints, rows.Err()
}

func scanDelivery(row pgx.Row) (Delivery, error) {
	var (
		d         Delivery
		lastError *string
		status    *int
		body      *string
	)
	if err := row.Scan(&d.ID, &d.EndpointID, &d.EventID, &d.Status, &d.Attempt, &d.MaxAttempt,
		&d.NextAttemptAt, &lastError, &status, &body, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return Delivery{}, err
	}
	if lastError != nil {
		d.LastError = *lastError
	}
	if status != nil {
		d.ResponseStatus = *status
	}
	if body != nil {
		d.ResponseBody = *body
	}
	return d, nil
}

func collectDeliveries(rows pgx.Rows, sizeHint int) ([]Delivery, error) {
	deliveries := make([]Delivery, 0, sizeHint)
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		deliveries = append(deliveries, d)
	}
	return deliveries, rows.Err()
}
