package shop

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// ErrStoreUnavailable indicates the shop store dependency is not configured.
var ErrStoreUnavailable = errors.New("shop: store unavailable")

// ErrNotFound is returned when the requested shop does not exist.
var ErrNotFound = errors.New("shop: not found")

// Shop is a registered storefront. TaxRate is the optional explicit override;
// a zero rate means "not set" and defers to name-based resolution.
type Shop struct {
	ID        uuid.UUID       `json:"id"`
	Name      string          `json:"name"`
	TaxRate   decimal.Decimal `json:"tax_rate"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Store provides database accessors for shops.
type Store interface {
	Insert(ctx context.Context, s Shop) (Shop, error)
	Update(ctx context.Context, s Shop) (Shop, error)
	Get(ctx context.Context, id uuid.UUID) (Shop, error)
	List(ctx context.Context) ([]Shop, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// NewStore constructs a Store backed by a pgx connection pool.
func NewStore(pool *pgxpool.Pool) Store {
	return &pgStore{pool: pool}
}

type pgStore struct {
	pool *pgxpool.Pool
}

func (s *pgStore) Insert(ctx context.Context, in Shop) (Shop, error) {
	if s == nil || s.pool == nil {
		return Shop{}, ErrStoreUnavailable
	}
	row := s.pool.QueryRow(ctx, `INSERT INTO shops (name, tax_rate)
VALUES ($1, $2) RETURNING id, name, tax_rate::text, created_at, updated_at`,
		in.Name, in.TaxRate.String())
	return scanShop(row)
}

func (s *pgStore) Update(ctx context.Context, in Shop) (Shop, error) {
	if s == nil || s.pool == nil {
		return Shop{}, ErrStoreUnavailable
	}
	row := s.pool.QueryRow(ctx, `UPDATE shops SET name = $2, tax_rate = $3, updated_at = now()
WHERE id = $1 RETURNING id, name, tax_rate::text, created_at, updated_at`,
		in.ID, in.Name, in.TaxRate.String())
	updated, err := scanShop(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Shop{}, ErrNotFound
	}
	return updated, err
}

func (s *pgStore) Get(ctx context.Context, id uuid.UUID) (Shop, error) {
	if s == nil || s.pool == nil {
		return Shop{}, ErrStoreUnavailable
	}
	row := s.pool.QueryRow(ctx, `SELECT id, name, tax_rate::text, created_at, updated_at
FROM shops WHERE id = $1`, id)
	out, err := scanShop(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Shop{}, ErrNotFound
	}
	return out, err
}

func (s *pgStore) List(ctx context.Context) ([]Shop, error) {
	if s == nil || s.pool == nil {
		return nil, ErrStoreUnavailable
	}
	rows, err := s.pool.Query(ctx, `SELECT id, name, tax_rate::text, created_at, updated_at
FROM shops ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	shops := make([]Shop, 0)
	for rows.Next() {
		shop, err := scanShop(rows)
		if err != nil {
			return nil, err
		}
		shops = append(shops, shop)
	}
	return shops, rows.Err()
}

func (s *pgStore) Delete(ctx context.Context, id uuid.UUID) error {
	if s == nil || s.pool == nil {
		return ErrStoreUnavailable
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM shops WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanShop(row pgx.Row) (Shop, error) {
	var (
		out     Shop
		rawRate string
	)
	if err := row.Scan(&out.ID, &out.Name, &rawRate, &out.CreatedAt, &out.UpdatedAt); err != nil {
		return Shop{}, err
	}
	rate, err := decimal.NewFromString(rawRate)
	if err != nil {
		return Shop{}, err
	}
	out.TaxRate = rate
	return out, nil
}
