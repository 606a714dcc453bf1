package order

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrStoreUnavailable indicates the order store dependency is not configured.
var ErrStoreUnavailable = errors.New("order: store unavailable")

// ErrNotFound is returned when the requested order does not exist.
var ErrNotFound = errors.New("order: not found")

// Order groups purchased products for one customer.
type Order struct {
	ID            uuid.UUID `json:"id"`
	CustomerName  string    `json:"customer_name"`
	CustomerEmail string    `json:"customer_email,omitempty"`
	Status        Status    `json:"status"`
	Notes         string    `json:"notes,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Store provides database accessors for orders.
type Store interface {
	Insert(ctx context.Context, o Order) (Order, error)
	Get(ctx context.Context, id uuid.UUID) (Order, error)
	List(ctx context.Context, limit, offset int) ([]Order, error)
	Count(ctx context.Context) (int64, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status Status) (Order, error)
	UpdateDetails(ctx context.Context, o Order) (Order, error)
}

// NewStore constructs a Store backed by a pgx connection pool.
func NewStore(pool *pgxpool.Pool) Store {
	return &pgStore{pool: pool}
}

type pgStore struct {
	pool *pgxpool.Pool
}

const orderColumns = `id, customer_name, customer_email, status, notes, created_at, updated_at`

func (s *pgStore) Insert(ctx context.Context, in Order) (Order, error) {
	if s == nil || s.pool == nil {
		return Order{}, ErrStoreUnavailable
	}
	row := s.pool.QueryRow(ctx, `INSERT INTO orders (customer_name, customer_email, status, notes)
VALUES ($1, $2, $3, $4) RETURNING `+orderColumns,
		in.CustomerName, in.CustomerEmail, in.Status, in.Notes)
	return scanOrder(row)
}

func (s *pgStore) Get(ctx context.Context, id uuid.UUID) (Order, error) {
	if s == nil || s.pool == nil {
		return Order{}, ErrStoreUnavailable
	}
	row := s.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	out, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrNotFound
	}
	return out, err
}

func (s *pgStore) List(ctx context.Context, limit, offset int) ([]Order, error) {
	if s == nil || s.pool == nil {
		return nil, ErrStoreUnavailable
	}
	rows, err := s.pool.Query(ctx, `SELECT `+orderColumns+`
FROM orders ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := make([]Order, 0, limit)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func (s *pgStore) Count(ctx context.Context) (int64, error) {
	if s == nil || s.pool == nil {
		return 0, ErrStoreUnavailable
	}
	var total int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM orders`).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

func (s *pgStore) UpdateStatus(ctx context.Context, id uuid.UUID, status Status) (Order, error) {
	if s == nil || s.pool == nil {
		return Order{}, ErrStoreUnavailable
	}
	row := s.pool.QueryRow(ctx, `UPDATE orders SET status = $2, updated_at = now()
WHERE id = $1 RETURNING `+orderColumns, id, status)
	out, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrNotFound
	}
	return out, err
}

func (s *pgStore) UpdateDetails(ctx context.Context, in Order) (Order, error) {
	if s == nil || s.pool == nil {
		return Order{}, ErrStoreUnavailable
	}
	row := s.pool.QueryRow(ctx, `UPDATE orders SET customer_name = $2, customer_email = $3, notes = $4, updated_at = now()
WHERE id = $1 RETURNING `+orderColumns,
		in.ID, in.CustomerName, in.CustomerEmail, in.Notes)
	out, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrNotFound
	}
	return out, err
}

func scanOrder(row pgx.Row) (Order, error) {
	var (
		out   Order
		email *string
		notes *string
	)
	if err := row.Scan(&out.ID, &out.CustomerName, &email, &out.Status, &notes, &out.CreatedAt, &out.UpdatedAt); err != nil {
		return Order{}, err
	}
	if email != nil {
		out.CustomerEmail = *email
	}
	if notes != nil {
		out.Notes = *notes
	}
	return out, nil
}
