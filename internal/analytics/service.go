package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var errNotConfigured = fmt.Errorf("analytics service not configured")

// Service provides cached access to dashboard aggregates.
type Service struct {
	Q            Querier
	R            *redis.Client
	TTL          time.Duration
	DefaultRange int
	Now          func() time.Time
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) ready() bool { return s != nil && s.Q != nil }

func cacheKey(parts ...any) string {
	formatted := make([]string, 0, len(parts))
	for _, part := range parts {
		formatted = append(formatted, fmt.Sprint(part))
	}
	return strings.Join(formatted, ":")
}

// cached serves key from Redis when present, otherwise loads, stores and
// returns the fresh value. Cache failures silently fall through to the loader.
func cached[T any](ctx context.Context, s *Service, key string, load func(context.Context) (T, error)) (T, error) {
	if hit, ok := cacheGet[T](ctx, s, key); ok {
		return hit, nil
	}
	value, err := load(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	s.store(ctx, key, value)
	return value, nil
}

// InvoicedRange returns daily invoiced totals between the bounds, inclusive of
// from and exclusive of to.
func (s *Service) InvoicedRange(ctx context.Context, from, to time.Time) ([]DailyInvoiced, error) {
	if !s.ready() {
		return nil, errNotConfigured
	}
	key := cacheKey("an", "invoiced", from.Format("2006-01-02"), to.Format("2006-01-02"))
	return cached(ctx, s, key, func(ctx context.Context) ([]DailyInvoiced, error) {
		return s.Q.InvoicedDailyRange(ctx, from, to)
	})
}

// OrdersByStatus returns how many orders sit in each status.
func (s *Service) OrdersByStatus(ctx context.Context) ([]StatusCount, error) {
	if !s.ready() {
		return nil, errNotConfigured
	}
	return cached(ctx, s, cacheKey("an", "orders", "status"), s.Q.OrdersByStatus)
}

// TopShops returns shops ranked by total registered product cost.
func (s *Service) TopShops(ctx context.Context, limit, offset int) ([]ShopTotal, error) {
	if !s.ready() {
		return nil, errNotConfigured
	}
	limit = clampLimit(limit)
	offset = max(offset, 0)
	return cached(ctx, s, cacheKey("an", "shops", limit, offset), func(ctx context.Context) ([]ShopTotal, error) {
		return s.Q.TopShops(ctx, limit, offset)
	})
}

// Overview returns the dashboard headline numbers.
func (s *Service) Overview(ctx context.Context) (Overview, error) {
	if !s.ready() {
		return Overview{}, errNotConfigured
	}
	key := cacheKey("an", "overview", s.now().Format("2006-01"))
	return cached(ctx, s, key, func(ctx context.Context) (Overview, error) {
		return s.Q.DashboardOverview(ctx, s.now())
	})
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 10
	}
	return limit
}

func cacheGet[T any](ctx context.Context, s *Service, key string) (T, bool) {
	var zero T
	if s.R == nil || s.TTL <= 0 {
		return zero, false
	}
	data, err := s.R.Get(ctx, key).Bytes()
	if err != nil {
		return zero, false
	}
	var value T
	if err := json.Unmarshal(data, &value); err != nil {
		return zero, false
	}
	return value, true
}

func (s *Service) store(ctx context.Context, key string, value any) {
	if s.R == nil || s.TTL <= 0 {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	_ = s.R.Set(ctx, key, data, s.TTL).Err()
}
