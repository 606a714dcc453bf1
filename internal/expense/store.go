package expense

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// ErrStoreUnavailable indicates the expense store dependency is not configured.
var ErrStoreUnavailable = errors.New("expense: store unavailable")

// ErrNotFound is returned when the requested expense does not exist.
var ErrNotFound = errors.New("expense: not found")

// Expense is a single business cost entry.
type Expense struct {
	ID        uuid.UUID       `json:"id"`
	Concept   string          `json:"concept"`
	Category  string          `json:"category,omitempty"`
	Amount    decimal.Decimal `json:"amount"`
	Date      time.Time       `json:"date"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// CategoryTotal is one line of the monthly summary.
type CategoryTotal struct {
	Category string          `json:"category"`
	Total    decimal.Decimal `json:"total"`
}

// Summary aggregates one month of expenses.
type Summary struct {
	Year       int             `json:"year"`
	Month      time.Month      `json:"month"`
	Total      decimal.Decimal `json:"total"`
	Categories []CategoryTotal `json:"categories"`
}

// Store provides database accessors for expenses.
type Store interface {
	Insert(ctx context.Context, e Expense) (Expense, error)
	Update(ctx context.Context, e Expense) (Expense, error)
	Get(ctx context.Context, id uuid.UUID) (Expense, error)
	List(ctx context.Context, limit, offset int) ([]Expense, error)
	Count(ctx context.Context) (int64, error)
	Delete(ctx context.Context, id uuid.UUID) error
	MonthlySummary(ctx context.Context, year int, month time.Month) (Summary, error)
}

// NewStore constructs a Store backed by a pgx connection pool.
func NewStore(pool *pgxpool.Pool) Store {
	return &pgStore{pool: pool}
}

type pgStore struct {
	pool *pgxpool.Pool
}

const expenseColumns = `id, concept, category, amount::text, expense_date, created_at, updated_at`

func (s *pgStore) Insert(ctx context.Context, in Expense) (Expense, error) {
	if s == nil || s.pool == nil {
		return Expense{}, ErrStoreUnavailable
	}
	row := s.pool.QueryRow(ctx, `INSERT INTO expenses (concept, category, amount, expense_date)
VALUES ($1, NULLIF($2, ''), $3, $4) RETURNING `+expenseColumns,
		in.Concept, in.Category, in.Amount.StringFixed(2), in.Date)
	return scanExpense(row)
}

func (s *pgStore) Update(ctx context.Context, in Expense) (Expense, error) {
	if s == nil || s.pool == nil {
		return Expense{}, ErrStoreUnavailable
	}
	row := s.pool.QueryRow(ctx, `UPDATE expenses SET concept = $2, category = NULLIF($3, ''), amount = $4, expense_date = $5, updated_at = now()
WHERE id = $1 RETURNING `+expenseColumns,
		in.ID, in.Concept, in.Category, in.Amount.StringFixed(2), in.Date)
	updated, err := scanExpense(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Expense{}, ErrNotFound
	}
	return updated, err
}

func (s *pgStore) Get(ctx context.Context, id uuid.UUID) (Expense, error) {
	if s == nil || s.pool == nil {
		return Expense{}, ErrStoreUnavailable
	}
	row := s.pool.QueryRow(ctx, `SELECT `+expenseColumns+` FROM expenses WHERE id = $1`, id)
	out, err := scanExpense(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Expense{}, ErrNotFound
	}
	return out, err
}

func (s *pgStore) List(ctx context.Context, limit, offset int) ([]Expense, error) {
	if s == nil || s.pool == nil {
		return nil, ErrStoreUnavailable
	}
	rows, err := s.pool.Query(ctx, `SELECT `+expenseColumns+`
FROM expenses ORDER BY expense_date DESC, created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	expenses := make([]Expense, 0, limit)
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		expenses = append(expenses, e)
	}
	return expenses, rows.Err()
}

func (s *pgStore) Count(ctx context.Context) (int64, error) {
	if s == nil || s.pool == nil {
		return 0, ErrStoreUnavailable
	}
	var total int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM expenses`).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

func (s *pgStore) Delete(ctx context.Context, id uuid.UUID) error {
	if s == nil || s.pool == nil {
		return ErrStoreUnavailable
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM expenses WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *pgStore) MonthlySummary(ctx context.Context, year int, month time.Month) (Summary, error) {
	if s == nil || s.pool == nil {
		return Summary{}, ErrStoreUnavailable
	}
	rows, err := s.pool.Query(ctx, `SELECT COALESCE(category, 'uncategorized'), COALESCE(SUM(amount), 0)::text
FROM expenses
WHERE date_part('year', expense_date) = $1 AND date_part('month', expense_date) = $2
GROUP BY 1 ORDER BY 2 DESC`, year, int(month))
	if err != nil {
		return Summary{}, err
	}
	defer rows.Close()

	summary := Summary{Year: year, Month: month, Total: decimal.Zero}
	for rows.Next() {
		var (
			category string
			rawTotal string
		)
		if err := rows.Scan(&category, &rawTotal); err != nil {
			return Summary{}, err
		}
		total, err := decimal.NewFromString(rawTotal)
		if err != nil {
			return Summary{}, err
		}
		summary.Categories = append(summary.Categories, CategoryTotal{Category: category, Total: total})
		summary.Total = summary.Total.Add(total)
	}
	return summary, rows.Err()
}

func scanExpense(row pgx.Row) (Expense, error) {
	var (
		out       Expense
		category  *string
		rawAmount string
	)
	if err := row.Scan(&out.ID, &out.Concept, &category, &rawAmount, &out.Date, &out.CreatedAt, &out.UpdatedAt); err != nil {
		return Expense{}, err
	}
	if category != nil {
		out.Category = *category
	}
	amount, err := decimal.NewFromString(rawAmount)
	if err != nil {
		return Expense{}, err
	}
	out.Amount = amount
	return out, nil
}
