package invoice

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// ErrStoreUnavailable indicates the invoice store dependency is not configured.
var ErrStoreUnavailable = errors.New("invoice: store unavailable")

// ErrNotFound is returned when the requested invoice does not exist.
var ErrNotFound = errors.New("invoice: not found")

// Invoice is the persisted aggregate: a dated, ordered list of tags with a
// derived total. The total column is never trusted as a source of truth; it is
// recomputed from the tags on every write.
type Invoice struct {
	ID        uuid.UUID       `json:"id"`
	Date      time.Time       `json:"date"`
	Tags      []Tag           `json:"tags"`
	Total     decimal.Decimal `json:"total"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Store provides database accessors for invoices.
type Store interface {
	Insert(ctx context.Context, inv Invoice) (Invoice, error)
	Update(ctx context.Context, inv Invoice) (Invoice, error)
	Get(ctx context.Context, id uuid.UUID) (Invoice, error)
	List(ctx context.Context, limit, offset int) ([]Invoice, error)
	Count(ctx context.Context) (int64, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// NewStore constructs a Store backed by a pgx connection pool.
func NewStore(pool *pgxpool.Pool) Store {
	return &pgStore{pool: pool}
}

type pgStore struct {
	pool *pgxpool.Pool
}

func (s *pgStore) Insert(ctx context.Context, inv Invoice) (Invoice, error) {
	if s == nil || s.pool == nil {
		return Invoice{}, ErrStoreUnavailable
	}
	tags, err := json.Marshal(inv.Tags)
	if err != nil {
		return Invoice{}, err
	}
	row := s.pool.QueryRow(ctx, `INSERT INTO invoices (invoice_date, tags, total)
VALUES ($1, $2, $3) RETURNING id, invoice_date, tags, total::text, created_at, updated_at`,
		inv.Date, tags, inv.Total.StringFixed(2))
	return scanInvoice(row)
}

func (s *pgStore) Update(ctx context.Context, inv Invoice) (Invoice, error) {
	if s == nil || s.pool == nil {
		return Invoice{}, ErrStoreUnavailable
	}
	tags, err := json.Marshal(inv.Tags)
	if err != nil {
		return Invoice{}, err
	}
	row := s.pool.QueryRow(ctx, `UPDATE invoices SET invoice_date = $2, tags = $3, total = $4, updated_at = now()
WHERE id = $1 RETURNING id, invoice_date, tags, total::text, created_at, updated_at`,
		inv.ID, inv.Date, tags, inv.Total.StringFixed(2))
	updated, err := scanInvoice(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Invoice{}, ErrNotFound
	}
	return updated, err
}

func (s *pgStore) Get(ctx context.Context, id uuid.UUID) (Invoice, error) {
	if s == nil || s.pool == nil {
		return Invoice{}, ErrStoreUnavailable
	}
	row := s.pool.QueryRow(ctx, `SELECT id, invoice_date, tags, total::text, created_at, updated_at
FROM invoices WHERE id = $1`, id)
	inv, err := scanInvoice(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Invoice{}, ErrNotFound
	}
	return inv, err
}

func (s *pgStore) List(ctx context.Context, limit, offset int) ([]Invoice, error) {
	if s == nil || s.pool == nil {
		return nil, ErrStoreUnavailable
	}
	rows, err := s.pool.Query(ctx, `SELECT id, invoice_date, tags, total::text, created_at, updated_at
FROM invoices ORDER BY invoice_date DESC, created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	invoices := make([]Invoice, 0, limit)
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
}

func (s *pgStore) Count(ctx context.Context) (int64, error) {
	if s == nil || s.pool == nil {
		return 0, ErrStoreUnavailable
	}
	var total int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM invoices`).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

func (s *pgStore) Delete(ctx context.Context, id uuid.UUID) error {
	if s == nil || s.pool == nil {
		return ErrStoreUnavailable
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM invoices WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanInvoice(row pgx.Row) (Invoice, error) {
	var (
		inv      Invoice
		rawTags  []byte
		rawTotal string
	)
	if err := row.Scan(&inv.ID, &inv.Date, &rawTags, &rawTotal, &inv.CreatedAt, &inv.UpdatedAt); err != nil {
		return Invoice{}, err
	}
	if len(rawTags) > 0 {
		if err := json.Unmarshal(rawTags, &inv.Tags); err != nil {
			return Invoice{}, err
		}
	}
	total, err := decimal.NewFromString(rawTotal)
	if err != nil {
		return Invoice{}, err
	}
	inv.Total = total
	return inv, nil
}
