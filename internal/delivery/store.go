package delivery

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrStoreUnavailable indicates the delivery store dependency is not configured.
var ErrStoreUnavailable = errors.New("delivery: store unavailable")

// ErrNotFound is returned when no delivery exists for the order.
var ErrNotFound = errors.New("delivery: not found")

// Delivery tracks the courier leg of an order.
type Delivery struct {
	ID             uuid.UUID  `json:"id"`
	OrderID        uuid.UUID  `json:"order_id"`
	Courier        string     `json:"courier,omitempty"`
	TrackingNumber string     `json:"tracking_number,omitempty"`
	Status         Status     `json:"status"`
	LastEventAt    *time.Time `json:"last_event_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Event is a single tracking entry recorded against a delivery.
type Event struct {
	ID          uuid.UUID `json:"id"`
	DeliveryID  uuid.UUID `json:"delivery_id"`
	Status      Status    `json:"status"`
	Description string    `json:"description,omitempty"`
	Location    string    `json:"location,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
	RawPayload  []byte    `json:"-"`
}

// Store provides database accessors for deliveries and their events.
type Store interface {
	Create(ctx context.Context, d Delivery) (Delivery, error)
	GetByOrder(ctx context.Context, orderID uuid.UUID) (Delivery, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status Status, lastEventAt time.Time) error
	InsertEvent(ctx context.Context, e Event) (Event, error)
	ListEvents(ctx context.Context, deliveryID uuid.UUID) ([]Event, error)
}

// NewStore constructs a Store backed by a pgx connection pool.
func NewStore(pool *pgxpool.Pool) Store {
	return &pgStore{pool: pool}
}

type pgStore struct {
	pool *pgxpool.Pool
}

func (s *pgStore) Create(ctx context.Context, in Delivery) (Delivery, error) {
	if s == nil || s.pool == nil {
		return Delivery{}, ErrStoreUnavailable
	}
	row := s.pool.QueryRow(ctx, `INSERT INTO deliveries (order_id, courier, tracking_number, status)
VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), $4)
RETURNING id, order_id, courier, tracking_number, status, last_event_at, created_at, updated_at`,
		in.OrderID, in.Courier, in.TrackingNumber, in.Status)
	return scanDelivery(row)
}

func (s *pgStore) GetByOrder(ctx context.Context, orderID uuid.UUID) (Delivery, error) {
	if s == nil || s.pool == nil {
		return Delivery{}, ErrStoreUnavailable
	}
	row := s.pool.QueryRow(ctx, `SELECT id, order_id, courier, tracking_number, status, last_event_at, created_at, updated_at
FROM deliveries WHERE order_id = $1`, orderID)
	out, err := scanDelivery(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Delivery{}, ErrNotFound
	}
	return out, err
}

func (s *pgStore) UpdateStatus(ctx context.Context, id uuid.UUID, status Status, lastEventAt time.Time) error {
	if s == nil || s.pool == nil {
		return ErrStoreUnavailable
	}
	tag, err := s.pool.Exec(ctx, `UPDATE deliveries SET status = $2, last_event_at = $3, updated_at = now()
WHERE id = $1`, id, status, lastEventAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *pgStore) InsertEvent(ctx context.Context, e Event) (Event, error) {
	if s == nil || s.pool == nil {
		return Event{}, ErrStoreUnavailable
	}
	occurred := e.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now()
	}
	row := s.pool.QueryRow(ctx, `INSERT INTO delivery_events (delivery_id, status, description, location, occurred_at, raw_payload)
VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5, $6)
RETURNING id, delivery_id, status, description, location, occurred_at`,
		e.DeliveryID, e.Status, e.Description, e.Location, occurred, e.RawPayload)
	return scanEvent(row)
}

func (s *pgStore) ListEvents(ctx context.Context, deliveryID uuid.UUID) ([]Event, error) {
	if s == nil || s.pool == nil {
		return nil, ErrStoreUnavailable
	}
	rows, err := s.pool.Query(ctx, `SELECT id, delivery_id, status, description, location, occurred_at
FROM delivery_events WHERE delivery_id = $1 ORDER BY occurred_at ASC`, deliveryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := make([]Event, 0)
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func scanDelivery(row pgx.Row) (Delivery, error) {
	var (
		out      Delivery
		courier  *string
		tracking *string
	)
	if err := row.Scan(&out.ID, &out.OrderID, &courier, &tracking, &out.Status,
		&out.LastEventAt, &out.CreatedAt, &out.UpdatedAt); err != nil {
		return Delivery{}, err
	}
	if courier != nil {
		out.Courier = *courier
	}
	if tracking != nil {
		out.TrackingNumber = *tracking
	}
	return out, nil
}

func scanEvent(row pgx.Row) (Event, error) {
	var (
		out         Event
		description *string
		location    *string
	)
	if err := row.Scan(&out.ID, &out.DeliveryID, &out.Status, &description, &location, &out.OccurredAt); err != nil {
		return Event{}, err
	}
	if description != nil {
		out.Description = *description
	}
	if location != nil {
		out.Location = *location
	}
	return out, nil
}
