package invoice

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	invoices map[uuid.UUID]Invoice
	order    []uuid.UUID
}

func newFakeStore() *fakeStore {
	return &fakeStore{invoices: map[uuid.UUID]Invoice{}}
}

func (f *fakeStore) Insert(_ context.Context, inv Invoice) (Invoice, error) {
	inv.ID = uuid.New()
	inv.CreatedAt = time.Now()
	inv.UpdatedAt = inv.CreatedAt
	f.invoices[inv.ID] = inv
	f.order = append(f.order, inv.ID)
	return inv, nil
}

func (f *fakeStore) Update(_ context.Context, inv Invoice) (Invoice, error) {
	existing, ok := f.invoices[inv.ID]
	if !ok {
		return Invoice{}, ErrNotFound
	}
	inv.CreatedAt = existing.CreatedAt
	inv.UpdatedAt = time.Now()
	f.invoices[inv.ID] = inv
	return inv, nil
}

func (f *fakeStore) Get(_ context.Context, id uuid.UUID) (Invoice, error) {
	inv, ok := f.invoices[id]
	if !ok {
		return Invoice{}, ErrNotFound
	}
	return inv, nil
}

func (f *fakeStore) List(_ context.Context, limit, offset int) ([]Invoice, error) {
	out := make([]Invoice, 0, limit)
	for i := offset; i < len(f.order) && len(out) < limit; i++ {
		out = append(out, f.invoices[f.order[i]])
	}
	return out, nil
}

func (f *fakeStore) Count(_ context.Context) (int64, error) {
	return int64(len(f.order)), nil
}

func (f *fakeStore) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := f.invoices[id]; !ok {
		return ErrNotFound
	}
	delete(f.invoices, id)
	for i, existing := range f.order {
		if existing == id {
			f.order = append(f.order[:i], f.order[i+1:]...)
			break
		}
	}
	return nil
}

func pesajeTag(weight, costPerLb, fixed string) Tag {
	return Tag{
		Kind:      TagPesaje,
		Weight:    decimal.RequireFromString(weight),
		CostPerLb: decimal.RequireFromString(costPerLb),
		FixedCost: decimal.RequireFromString(fixed),
	}
}

func nominalTag(fixed string) Tag {
	return Tag{Kind: TagNominal, FixedCost: decimal.RequireFromString(fixed)}
}

func TestCreateDerivesTotalAndAssignsTagIDs(t *testing.T) {
	svc := &Service{Store: newFakeStore()}
	created, err := svc.Create(context.Background(), time.Now(), []Tag{
		pesajeTag("5", "2", "1"),
		nominalTag("7"),
	})
	require.NoError(t, err)
	require.True(t, created.Total.Equal(decimal.RequireFromString("18")), "got %s", created.Total)
	require.Len(t, created.Tags, 2)
	for _, tag := range created.Tags {
		require.NotEmpty(t, tag.ID)
	}
}

func TestCreateRequiresAtLeastOneTag(t *testing.T) {
	svc := &Service{Store: newFakeStore()}
	_, err := svc.Create(context.Background(), time.Now(), nil)
	require.Error(t, err)
}

func TestCreateRejectsInvalidTag(t *testing.T) {
	svc := &Service{Store: newFakeStore()}
	_, err := svc.Create(context.Background(), time.Now(), []Tag{
		{Kind: TagPesaje, Weight: decimal.NewFromInt(5)},
	})
	require.Error(t, err)
}

func TestUpdateAcceptsEmptyTagList(t *testing.T) {
	svc := &Service{Store: newFakeStore()}
	created, err := svc.Create(context.Background(), time.Now(), []Tag{nominalTag("7")})
	require.NoError(t, err)

	updated, err := svc.Update(context.Background(), created.ID, created.Date, nil)
	require.NoError(t, err)
	require.Empty(t, updated.Tags)
	require.True(t, updated.Total.IsZero())
}

func TestAddTagRecomputesTotal(t *testing.T) {
	svc := &Service{Store: newFakeStore()}
	created, err := svc.Create(context.Background(), time.Now(), []Tag{nominalTag("7")})
	require.NoError(t, err)

	updated, err := svc.AddTag(context.Background(), created.ID, pesajeTag("5", "2", "1"))
	require.NoError(t, err)
	require.Len(t, updated.Tags, 2)
	require.True(t, updated.Total.Equal(decimal.RequireFromString("18")), "got %s", updated.Total)
}

func TestUpdateTagReplacesAndRecomputes(t *testing.T) {
	svc := &Service{Store: newFakeStore()}
	created, err := svc.Create(context.Background(), time.Now(), []Tag{nominalTag("7")})
	require.NoError(t, err)
	tagID := created.Tags[0].ID

	updated, err := svc.UpdateTag(context.Background(), created.ID, tagID, nominalTag("9"))
	require.NoError(t, err)
	require.Len(t, updated.Tags, 1)
	require.Equal(t, tagID, updated.Tags[0].ID)
	require.True(t, updated.Total.Equal(decimal.RequireFromString("9")))
}

func TestUpdateTagUnknownID(t *testing.T) {
	svc := &Service{Store: newFakeStore()}
	created, err := svc.Create(context.Background(), time.Now(), []Tag{nominalTag("7")})
	require.NoError(t, err)

	_, err = svc.UpdateTag(context.Background(), created.ID, "missing", nominalTag("9"))
	require.Error(t, err)
}

func TestRemoveTagRecomputesTotal(t *testing.T) {
	svc := &Service{Store: newFakeStore()}
	created, err := svc.Create(context.Background(), time.Now(), []Tag{
		nominalTag("7"),
		pesajeTag("5", "2", "1"),
	})
	require.NoError(t, err)

	updated, err := svc.RemoveTag(context.Background(), created.ID, created.Tags[0].ID)
	require.NoError(t, err)
	require.Len(t, updated.Tags, 1)
	require.True(t, updated.Total.Equal(decimal.RequireFromString("11")), "got %s", updated.Total)
}

func TestNormalizationDropsIrrelevantFieldsOnWrite(t *testing.T) {
	svc := &Service{Store: newFakeStore()}
	tag := nominalTag("7")
	tag.Weight = decimal.NewFromInt(40)
	tag.CostPerLb = decimal.NewFromInt(3)

	created, err := svc.Create(context.Background(), time.Now(), []Tag{tag})
	require.NoError(t, err)
	require.True(t, created.Tags[0].Weight.IsZero())
	require.True(t, created.Tags[0].CostPerLb.IsZero())
	require.True(t, created.Total.Equal(decimal.RequireFromString("7")))
}
