package settings

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// ErrStoreUnavailable indicates the settings store dependency is not configured.
var ErrStoreUnavailable = errors.New("settings: store unavailable")

// ErrNotFound is returned when the settings row has never been written.
var ErrNotFound = errors.New("settings: not found")

// Settings is the singleton system configuration consumed by the pricing
// endpoints: the USD→local exchange rate and the per-pound freight price.
type Settings struct {
	ExchangeRate decimal.Decimal `json:"exchange_rate"`
	CostPerPound decimal.Decimal `json:"cost_per_pound"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Store provides database accessors for the settings row.
type Store interface {
	Get(ctx context.Context) (Settings, error)
	Upsert(ctx context.Context, s Settings) (Settings, error)
}

// NewStore constructs a Store backed by a pgx connection pool.
func NewStore(pool *pgxpool.Pool) Store {
	return &pgStore{pool: pool}
}

type pgStore struct {
	pool *pgxpool.Pool
}

func (s *pgStore) Get(ctx context.Context) (Settings, error) {
	if s == nil || s.pool == nil {
		return Settings{}, ErrStoreUnavailable
	}
	row := s.pool.QueryRow(ctx, `SELECT exchange_rate::text, cost_per_pound::text, updated_at
FROM settings WHERE id = 1`)
	out, err := scanSettings(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Settings{}, ErrNotFound
	}
	return out, err
}

func (s *pgStore) Upsert(ctx context.Context, in Settings) (Settings, error) {
	if s == nil || s.pool == nil {
		return Settings{}, ErrStoreUnavailable
	}
	row := s.pool.QueryRow(ctx, `INSERT INTO settings (id, exchange_rate, cost_per_pound)
VALUES (1, $1, $2)
ON CONFLICT (id) DO UPDATE SET exchange_rate = EXCLUDED.exchange_rate,
	cost_per_pound = EXCLUDED.cost_per_pound, updated_at = now()
RETURNING exchange_rate::text, cost_per_pound::text, updated_at`,
		in.ExchangeRate.String(), in.CostPerPound.String())
	return scanSettings(row)
}

func scanSettings(row pgx.Row) (Settings, error) {
	var (
		out          Settings
		rawRate      string
		rawPerPound  string
	)
	if err := row.Scan(&rawRate, &rawPerPound, &out.UpdatedAt); err != nil {
		return Settings{}, err
	}
	rate, err := decimal.NewFromString(rawRate)
	if err != nil {
		return Settings{}, err
	}
	perPound, err := decimal.NewFromString(rawPerPound)
	if err != nil {
		return Settings{}, err
	}
	out.ExchangeRate = rate
	out.CostPerPound = perPound
	return out, nil
}
