package product

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	products map[uuid.UUID]Product
	order    []uuid.UUID
}

func newFakeStore() *fakeStore {
	return &fakeStore{products: map[uuid.UUID]Product{}}
}

func (f *fakeStore) Insert(_ context.Context, p Product) (Product, error) {
	p.ID = uuid.New()
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	f.products[p.ID] = p
	f.order = append(f.order, p.ID)
	return p, nil
}

func (f *fakeStore) Update(_ context.Context, p Product) (Product, error) {
	existing, ok := f.products[p.ID]
	if !ok {
		return Product{}, ErrNotFound
	}
	p.CreatedAt = existing.CreatedAt
	p.UpdatedAt = time.Now()
	f.products[p.ID] = p
	return p, nil
}

func (f *fakeStore) Get(_ context.Context, id uuid.UUID) (Product, error) {
	p, ok := f.products[id]
	if !ok {
		return Product{}, ErrNotFound
	}
	return p, nil
}

func (f *fakeStore) List(_ context.Context, limit, offset int) ([]Product, error) {
	out := make([]Product, 0, limit)
	for i := offset; i < len(f.order) && len(out) < limit; i++ {
		out = append(out, f.products[f.order[i]])
	}
	return out, nil
}

func (f *fakeStore) ListByOrder(_ context.Context, orderID uuid.UUID) ([]Product, error) {
	var out []Product
	for _, id := range f.order {
		if f.products[id].OrderID == orderID {
			out = append(out, f.products[id])
		}
	}
	return out, nil
}

func (f *fakeStore) Count(_ context.Context) (int64, error) {
	return int64(len(f.order)), nil
}

func (f *fakeStore) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := f.products[id]; !ok {
		return ErrNotFound
	}
	delete(f.products, id)
	return nil
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestCreateComputesBreakdownServerSide(t *testing.T) {
	svc := &Service{Store: newFakeStore(), BaseTaxDefault: true}
	created, err := svc.Create(context.Background(), Input{
		Name:         "Mechanical keyboard",
		ShopName:     "Amazon US",
		UnitPrice:    d("100"),
		ShippingCost: d("10"),
	})
	require.NoError(t, err)
	require.Equal(t, "110", created.Breakdown.Base.String())
	require.Equal(t, "7.7", created.Breakdown.BaseTaxAmount.String())
	require.Equal(t, "3", created.Breakdown.ShopTaxRate.String())
	require.Equal(t, "3.53", created.Breakdown.ShopTaxAmount.String())
	// 110 + 7.7 + 3.531, rounded
	require.Equal(t, "121.23", created.Breakdown.Total.String())
}

func TestCreateHonorsExplicitRateOverride(t *testing.T) {
	svc := &Service{Store: newFakeStore(), BaseTaxDefault: true}
	created, err := svc.Create(context.Background(), Input{
		Name:        "Phone case",
		ShopName:    "Amazon US",
		UnitPrice:   d("100"),
		ShopTaxRate: d("10"),
	})
	require.NoError(t, err)
	require.Equal(t, "10", created.Breakdown.ShopTaxRate.String())
	// 100 + 7 + 10.7
	require.Equal(t, "117.7", created.Breakdown.Total.String())
}

func TestCreateExplicitZeroRateFallsThroughToResolver(t *testing.T) {
	svc := &Service{Store: newFakeStore(), BaseTaxDefault: true}
	created, err := svc.Create(context.Background(), Input{
		Name:        "Cable",
		ShopName:    "Temu Official",
		UnitPrice:   d("100"),
		ShopTaxRate: decimal.Zero,
	})
	require.NoError(t, err)
	require.Equal(t, "3", created.Breakdown.ShopTaxRate.String())
}

func TestCreateBaseTaxToggle(t *testing.T) {
	off := false
	svc := &Service{Store: newFakeStore(), BaseTaxDefault: true}
	created, err := svc.Create(context.Background(), Input{
		Name:         "Socks",
		ShopName:     "Shein",
		UnitPrice:    d("100"),
		ApplyBaseTax: &off,
	})
	require.NoError(t, err)
	require.True(t, created.Breakdown.BaseTaxAmount.IsZero())
	require.Equal(t, "100", created.Breakdown.Total.String())
}

func TestCreateRejectsNegativeAmounts(t *testing.T) {
	svc := &Service{Store: newFakeStore(), BaseTaxDefault: true}
	_, err := svc.Create(context.Background(), Input{
		Name:      "Bad",
		UnitPrice: d("-5"),
	})
	require.Error(t, err)
}

func TestQuoteDoesNotPersist(t *testing.T) {
	store := newFakeStore()
	svc := &Service{Store: store, BaseTaxDefault: true}
	quote, err := svc.Quote(context.Background(), Input{
		ShopName:  "AliExpress Store",
		UnitPrice: d("50"),
	})
	require.NoError(t, err)
	require.Empty(t, store.products)
	require.Equal(t, "5", quote.Breakdown.ShopTaxRate.String())
	// no settings service configured: identity projection
	require.Equal(t, "1", quote.ExchangeRate.String())
	require.True(t, quote.LocalTotal.Equal(quote.Breakdown.Total))
}

func TestUpdateRecomputesBreakdown(t *testing.T) {
	svc := &Service{Store: newFakeStore(), BaseTaxDefault: true}
	created, err := svc.Create(context.Background(), Input{
		Name:      "Lamp",
		ShopName:  "Shein",
		UnitPrice: d("100"),
	})
	require.NoError(t, err)

	updated, err := svc.Update(context.Background(), created.ID, Input{
		Name:      "Lamp",
		ShopName:  "Temu",
		UnitPrice: d("200"),
	})
	require.NoError(t, err)
	require.Equal(t, "3", updated.Breakdown.ShopTaxRate.String())
	// 200 + 14 + 6.42
	require.Equal(t, "220.42", updated.Breakdown.Total.String())
}
