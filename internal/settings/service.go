package settings

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/envioex/backend-envioex/internal/common"
	"github.com/envioex/backend-envioex/internal/events"
)

// settingsAggregateID identifies the singleton row in emitted domain events.
var settingsAggregateID = uuid.MustParse("00000000-0000-0000-0000-000000000001")

// Service reads and writes the singleton settings row, keeping the Redis
// cache in sync. Reads fall back to configured defaults until the row is
// first written.
type Service struct {
	Store    Store
	Cache    *Cache
	Events   *events.Bus
	Log      zerolog.Logger
	Defaults Settings
}

// Get returns the effective settings: cache first, then database, then the
// configured defaults when the row has never been written.
func (s *Service) Get(ctx context.Context) (Settings, error) {
	if cached, ok, err := s.Cache.Get(ctx); err == nil && ok {
		return cached, nil
	} else if err != nil {
		s.Log.Warn().Err(err).Msg("settings cache read failed")
	}
	current, err := s.Store.Get(ctx)
	if errors.Is(err, ErrNotFound) {
		return s.Defaults, nil
	}
	if err != nil {
		return Settings{}, fmt.Errorf("load settings: %w", err)
	}
	if err := s.Cache.Set(ctx, current); err != nil {
		s.Log.Warn().Err(err).Msg("settings cache write failed")
	}
	return current, nil
}

// Update validates and persists new settings, invalidates the cache, and
// emits a settings.changed event.
func (s *Service) Update(ctx context.Context, in Settings) (Settings, error) {
	if !in.ExchangeRate.IsPositive() {
		return Settings{}, common.NewAppError("VALIDATION_ERROR", "exchange_rate must be greater than zero", http.StatusBadRequest, nil)
	}
	if !in.CostPerPound.IsPositive() {
		return Settings{}, common.NewAppError("VALIDATION_ERROR", "cost_per_pound must be greater than zero", http.StatusBadRequest, nil)
	}
	updated, err := s.Store.Upsert(ctx, in)
	if err != nil {
		return Settings{}, fmt.Errorf("save settings: %w", err)
	}
	if err := s.Cache.Invalidate(ctx); err != nil {
		s.Log.Warn().Err(err).Msg("settings cache invalidation failed")
	}
	if s.Events != nil {
		_, _ = s.Events.Emit(ctx, events.TopicSettingsChanged, settingsAggregateID, map[string]any{
			"exchange_rate":  updated.ExchangeRate.String(),
			"cost_per_pound": updated.CostPerPound.String(),
		})
	}
	return updated, nil
}

// ExchangeRate returns the effective exchange rate, or the default when the
// settings cannot be loaded.
func (s *Service) ExchangeRate(ctx context.Context) decimal.Decimal {
	current, err := s.Get(ctx)
	if err != nil {
		s.Log.Warn().Err(err).Msg("settings load failed, using default exchange rate")
		return s.Defaults.ExchangeRate
	}
	return current.ExchangeRate
}
