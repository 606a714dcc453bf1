package analytics

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// ErrStoreUnavailable indicates the analytics store dependency is not configured.
var ErrStoreUnavailable = errors.New("analytics: store unavailable")

// DailyInvoiced is one day of invoiced totals.
type DailyInvoiced struct {
	Day      time.Time       `json:"day"`
	Invoices int64           `json:"invoices"`
	Total    decimal.Decimal `json:"total"`
}

// StatusCount is the number of orders currently in one status.
type StatusCount struct {
	Status string `json:"status"`
	Count  int64  `json:"count"`
}

// ShopTotal aggregates registered product cost per shop.
type ShopTotal struct {
	Shop     string          `json:"shop"`
	Products int64           `json:"products"`
	Total    decimal.Decimal `json:"total"`
}

// Overview bundles the dashboard headline numbers.
type Overview struct {
	Orders        int64           `json:"orders"`
	Products      int64           `json:"products"`
	Invoiced      decimal.Decimal `json:"invoiced"`
	MonthExpenses decimal.Decimal `json:"month_expenses"`
}

// Querier defines the database access required for analytics operations.
type Querier interface {
	InvoicedDailyRange(ctx context.Context, from, to time.Time) ([]DailyInvoiced, error)
	OrdersByStatus(ctx context.Context) ([]StatusCount, error)
	TopShops(ctx context.Context, limit, offset int) ([]ShopTotal, error)
	DashboardOverview(ctx context.Context, now time.Time) (Overview, error)
}

// NewQuerier constructs a Querier backed by a pgx connection pool.
func NewQuerier(pool *pgxpool.Pool) Querier {
	return &pgQuerier{pool: pool}
}

type pgQuerier struct {
	pool *pgxpool.Pool
}

func (q *pgQuerier) InvoicedDailyRange(ctx context.Context, from, to time.Time) ([]DailyInvoiced, error) {
	if q == nil || q.pool == nil {
		return nil, ErrStoreUnavailable
	}
	rows, err := q.pool.Query(ctx, `SELECT date_trunc('day', invoice_date)::date, COUNT(*), COALESCE(SUM(total), 0)::text
FROM invoices
WHERE invoice_date >= $1 AND invoice_date < $2
GROUP BY 1 ORDER BY 1`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []DailyInvoiced{}
	for rows.Next() {
		var (
			row      DailyInvoiced
			rawTotal string
		)
		if err := rows.Scan(&row.Day, &row.Invoices, &rawTotal); err != nil {
			return nil, err
		}
		total, err := decimal.NewFromString(rawTotal)
		if err != nil {
			return nil, err
		}
		row.Total = total
		out = append(out, row)
	}
	return out, rows.Err()
}

func (q *pgQuerier) OrdersByStatus(ctx context.Context) ([]StatusCount, error) {
	if q == nil || q.pool == nil {
		return nil, ErrStoreUnavailable
	}
	rows, err := q.pool.Query(ctx, `SELECT status, COUNT(*) FROM orders GROUP BY status ORDER BY 2 DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []StatusCount{}
	for rows.Next() {
		var row StatusCount
		if err := rows.Scan(&row.Status, &row.Count); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (q *pgQuerier) TopShops(ctx context.Context, limit, offset int) ([]ShopTotal, error) {
	if q == nil || q.pool == nil {
		return nil, ErrStoreUnavailable
	}
	rows, err := q.pool.Query(ctx, `SELECT shop_name, COUNT(*), COALESCE(SUM((breakdown->>'total')::numeric), 0)::text
FROM products
GROUP BY shop_name ORDER BY 3 DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []ShopTotal{}
	for rows.Next() {
		var (
			row      ShopTotal
			rawTotal string
		)
		if err := rows.Scan(&row.Shop, &row.Products, &rawTotal); err != nil {
			return nil, err
		}
		total, err := decimal.NewFromString(rawTotal)
		if err != nil {
			return nil, err
		}
		row.Total = total
		out = append(out, row)
	}
	return out, rows.Err()
}

func (q *pgQuerier) DashboardOverview(ctx context.Context, now time.Time) (Overview, error) {
	if q == nil || q.pool == nil {
		return Overview{}, ErrStoreUnavailable
	}
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	row := q.pool.QueryRow(ctx, `SELECT
(SELECT COUNT(*) FROM orders),
(SELECT COUNT(*) FROM products),
(SELECT COALESCE(SUM(total), 0)::text FROM invoices),
(SELECT COALESCE(SUM(amount), 0)::text FROM expenses WHERE expense_date >= $1 AND expense_date < $2)`,
		monthStart, monthStart.AddDate(0, 1, 0))

	var (
		out         Overview
		rawInvoiced string
		rawExpensed string
	)
	if err := row.Scan(&out.Orders, &out.Products, &rawInvoiced, &rawExpensed); err != nil {
		return Overview{}, err
	}
	invoiced, err := decimal.NewFromString(rawInvoiced)
	if err != nil {
		return Overview{}, err
	}
	expensed, err := decimal.NewFromString(rawExpensed)
	if err != nil {
		return Overview{}, err
	}
	out.Invoiced = invoiced
	out.MonthExpenses = expensed
	return out, nil
}
