package settings

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	current *Settings
	gets    int
}

func (f *fakeStore) Get(_ context.Context) (Settings, error) {
	f.gets++
	if f.current == nil {
		return Settings{}, ErrNotFound
	}
	return *f.current, nil
}

func (f *fakeStore) Upsert(_ context.Context, s Settings) (Settings, error) {
	s.UpdatedAt = time.Now()
	f.current = &s
	return s, nil
}

func newTestService(t *testing.T) (*Service, *fakeStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := &fakeStore{}
	svc := &Service{
		Store: store,
		Cache: NewCache(client, time.Minute),
		Log:   zerolog.Nop(),
		Defaults: Settings{
			ExchangeRate: decimal.RequireFromString("36.5"),
			CostPerPound: decimal.RequireFromString("2.5"),
		},
	}
	return svc, store, mr
}

func TestGetFallsBackToDefaults(t *testing.T) {
	svc, _, _ := newTestService(t)
	current, err := svc.Get(context.Background())
	require.NoError(t, err)
	require.True(t, current.ExchangeRate.Equal(decimal.RequireFromString("36.5")))
	require.True(t, current.CostPerPound.Equal(decimal.RequireFromString("2.5")))
}

func TestGetCachesDatabaseRead(t *testing.T) {
	svc, store, _ := newTestService(t)
	_, err := svc.Update(context.Background(), Settings{
		ExchangeRate: decimal.RequireFromString("40"),
		CostPerPound: decimal.RequireFromString("3"),
	})
	require.NoError(t, err)

	first, err := svc.Get(context.Background())
	require.NoError(t, err)
	require.True(t, first.ExchangeRate.Equal(decimal.RequireFromString("40")))
	dbReads := store.gets

	second, err := svc.Get(context.Background())
	require.NoError(t, err)
	require.True(t, second.ExchangeRate.Equal(first.ExchangeRate))
	require.Equal(t, dbReads, store.gets, "second read should be served from cache")
}

func TestUpdateInvalidatesCache(t *testing.T) {
	svc, _, mr := newTestService(t)
	_, err := svc.Update(context.Background(), Settings{
		ExchangeRate: decimal.RequireFromString("40"),
		CostPerPound: decimal.RequireFromString("3"),
	})
	require.NoError(t, err)

	_, err = svc.Get(context.Background())
	require.NoError(t, err)
	require.True(t, mr.Exists(cacheKey))

	_, err = svc.Update(context.Background(), Settings{
		ExchangeRate: decimal.RequireFromString("41"),
		CostPerPound: decimal.RequireFromString("3"),
	})
	require.NoError(t, err)
	require.False(t, mr.Exists(cacheKey))

	current, err := svc.Get(context.Background())
	require.NoError(t, err)
	require.True(t, current.ExchangeRate.Equal(decimal.RequireFromString("41")))
}

func TestUpdateRejectsNonPositiveValues(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.Update(context.Background(), Settings{
		ExchangeRate: decimal.Zero,
		CostPerPound: decimal.RequireFromString("3"),
	})
	require.Error(t, err)

	_, err = svc.Update(context.Background(), Settings{
		ExchangeRate: decimal.RequireFromString("40"),
		CostPerPound: decimal.RequireFromString("-1"),
	})
	require.Error(t, err)
}
