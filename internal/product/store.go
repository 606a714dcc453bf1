package product

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/envioex/backend-envioex/internal/pricing"
)

// ErrStoreUnavailable indicates the product store dependency is not configured.
var ErrStoreUnavailable = errors.New("product: store unavailable")

// ErrNotFound is returned when the requested product does not exist.
var ErrNotFound = errors.New("product: not found")

// Product is a single purchase line item. The breakdown is always computed
// server-side from the raw inputs; a client-supplied breakdown is ignored.
type Product struct {
	ID           uuid.UUID         `json:"id"`
	OrderID      uuid.UUID         `json:"order_id,omitempty"`
	Name         string            `json:"name"`
	Link         string            `json:"link,omitempty"`
	ShopName     string            `json:"shop_name"`
	UnitPrice    decimal.Decimal   `json:"unit_price"`
	ShippingCost decimal.Decimal   `json:"shipping_cost"`
	ShopTaxRate  decimal.Decimal   `json:"shop_tax_rate"`
	AddedTaxes   decimal.Decimal   `json:"added_taxes"`
	OwnTaxes     decimal.Decimal   `json:"own_taxes"`
	ApplyBaseTax bool              `json:"apply_base_tax"`
	Breakdown    pricing.Breakdown `json:"breakdown"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// Store provides database accessors for products.
type Store interface {
	Insert(ctx context.Context, p Product) (Product, error)
	Update(ctx context.Context, p Product) (Product, error)
	Get(ctx context.Context, id uuid.UUID) (Product, error)
	List(ctx context.Context, limit, offset int) ([]Product, error)
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]Product, error)
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

const productColumns = `id, order_id, name, link, shop_name, unit_price::text,
shipping_cost::text, shop_tax_rate::text, added_taxes::text, own_taxes::text,
apply_base_tax, breakdown, created_at, updated_at`

func (s *pgStore) Insert(ctx context.Context, in Product) (Product, error) {
	if s == nil || s.pool == nil {
		return Product{}, ErrStoreUnavailable
	}
	breakdown, err := json.Marshal(in.Breakdown)
	if err != nil {
		return Product{}, err
	}
	row := s.pool.QueryRow(ctx, `INSERT INTO products
(order_id, name, link, shop_name, unit_price, shipping_cost, shop_tax_rate, added_taxes, own_taxes, apply_base_tax, breakdown)
VALUES (NULLIF($1, '00000000-0000-0000-0000-000000000000'::uuid), $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
RETURNING `+productColumns,
		in.OrderID, in.Name, in.Link, in.ShopName,
		in.UnitPrice.String(), in.ShippingCost.String(), in.ShopTaxRate.String(),
		in.AddedTaxes.String(), in.OwnTaxes.String(), in.ApplyBaseTax, breakdown)
	return scanProduct(row)
}

func (s *pgStore) Update(ctx context.Context, in Product) (Product, error) {
	if s == nil || s.pool == nil {
		return Product{}, ErrStoreUnavailable
	}
	breakdown, err := json.Marshal(in.Breakdown)
	if err != nil {
		return Product{}, err
	}
	row := s.pool.QueryRow(ctx, `UPDATE products SET
order_id = NULLIF($2, '00000000-0000-0000-0000-000000000000'::uuid),
name = $3, link = $4, shop_name = $5, unit_price = $6, shipping_cost = $7,
shop_tax_rate = $8, added_taxes = $9, own_taxes = $10, apply_base_tax = $11,
breakdown = $12, updated_at = now()
WHERE id = $1 RETURNING `+productColumns,
		in.ID, in.OrderID, in.Name, in.Link, in.ShopName,
		in.UnitPrice.String(), in.ShippingCost.String(), in.ShopTaxRate.String(),
		in.AddedTaxes.String(), in.OwnTaxes.String(), in.ApplyBaseTax, breakdown)
	updated, err := scanProduct(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, ErrNotFound
	}
	return updated, err
}

func (s *pgStore) Get(ctx context.Context, id uuid.UUID) (Product, error) {
	if s == nil || s.pool == nil {
		return Product{}, ErrStoreUnavailable
	}
	row := s.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)
	out, err := scanProduct(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, ErrNotFound
	}
	return out, err
}

func (s *pgStore) List(ctx context.Context, limit, offset int) ([]Product, error) {
	if s == nil || s.pool == nil {
		return nil, ErrStoreUnavailable
	}
	rows, err := s.pool.Query(ctx, `SELECT `+productColumns+`
FROM products ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectProducts(rows, limit)
}

func (s *pgStore) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]Product, error) {
	if s == nil || s.pool == nil {
		return nil, ErrStoreUnavailable
	}
	rows, err := s.pool.Query(ctx, `SELECT `+productColumns+`
FROM products WHERE order_id = $1 ORDER BY created_at ASC`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectProducts(rows, 0)
}

func (s *pgStore) Count(ctx context.Context) (int64, error) {
	if s == nil || s.pool == nil {
		return 0, ErrStoreUnavailable
	}
	var total int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM products`).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

func (s *pgStore) Delete(ctx context.Context, id uuid.UUID) error {
	if s == nil || s.pool == nil {
		return ErrStoreUnavailable
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func collectProducts(rows pgx.Rows, capacity int) ([]Product, error) {
	products := make([]Product, 0, capacity)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func scanProduct(row pgx.Row) (Product, error) {
	var (
		out          Product
		orderID      *uuid.UUID
		link         *string
		rawUnit      string
		rawShipping  string
		rawRate      string
		rawAdded     string
		rawOwn       string
		rawBreakdown []byte
	)
	err := row.Scan(&out.ID, &orderID, &out.Name, &link, &out.ShopName,
		&rawUnit, &rawShipping, &rawRate, &rawAdded, &rawOwn,
		&out.ApplyBaseTax, &rawBreakdown, &out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		return Product{}, err
	}
	if orderID != nil {
		out.OrderID = *orderID
	}
	if link != nil {
		out.Link = *link
	}
	for _, field := range []struct {
		raw string
		dst *decimal.Decimal
	}{
		{rawUnit, &out.UnitPrice},
		{rawShipping, &out.ShippingCost},
		{rawRate, &out.ShopTaxRate},
		{rawAdded, &out.AddedTaxes},
		{rawOwn, &out.OwnTaxes},
	} {
		d, err := decimal.NewFromString(field.raw)
		if err != nil {
			return Product{}, err
		}
		*field.dst = d
	}
	if len(rawBreakdown) > 0 {
		if err := json.Unmarshal(rawBreakdown, &out.Breakdown); err != nil {
			return Product{}, err
		}
	}
	return out, nil
}
