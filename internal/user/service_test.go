package user

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/envioex/backend-envioex/internal/common"
)

type fakeAddressStore struct {
	addresses map[uuid.UUID]Address
	order     []uuid.UUID
}

func newFakeAddressStore() *fakeAddressStore {
	return &fakeAddressStore{addresses: map[uuid.UUID]Address{}}
}

func (f *fakeAddressStore) List(_ context.Context, userID uuid.UUID, limit, offset int) ([]Address, error) {
	out := []Address{}
	for _, id := range f.order {
		a := f.addresses[id]
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	if offset > len(out) {
		offset = len(out)
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeAddressStore) Count(_ context.Context, userID uuid.UUID) (int64, error) {
	var total int64
	for _, a := range f.addresses {
		if a.UserID == userID {
			total++
		}
	}
	return total, nil
}

func (f *fakeAddressStore) Get(_ context.Context, userID, addressID uuid.UUID) (Address, error) {
	a, ok := f.addresses[addressID]
	if !ok || a.UserID != userID {
		return Address{}, ErrAddressNotFound
	}
	return a, nil
}

func (f *fakeAddressStore) Create(_ context.Context, in Address) (Address, error) {
	if in.IsDefault {
		f.unsetDefaults(in.UserID, uuid.Nil)
	}
	in.ID = uuid.New()
	in.CreatedAt = time.Now()
	in.UpdatedAt = in.CreatedAt
	f.addresses[in.ID] = in
	f.order = append(f.order, in.ID)
	return in, nil
}

func (f *fakeAddressStore) Update(_ context.Context, in Address) (Address, error) {
	existing, ok := f.addresses[in.ID]
	if !ok || existing.UserID != in.UserID {
		return Address{}, ErrAddressNotFound
	}
	if in.IsDefault {
		f.unsetDefaults(in.UserID, in.ID)
	}
	in.CreatedAt = existing.CreatedAt
	in.UpdatedAt = time.Now()
	f.addresses[in.ID] = in
	return in, nil
}

func (f *fakeAddressStore) Delete(_ context.Context, userID, addressID uuid.UUID) error {
	a, ok := f.addresses[addressID]
	if !ok || a.UserID != userID {
		return ErrAddressNotFound
	}
	delete(f.addresses, addressID)
	return nil
}

func (f *fakeAddressStore) unsetDefaults(userID, except uuid.UUID) {
	for id, a := range f.addresses {
		if a.UserID == userID && id != except {
			a.IsDefault = false
			f.addresses[id] = a
		}
	}
}

func consigneeInput() AddressInput {
	return AddressInput{
		Recipient:   "Maria Perez",
		Phone:       "+507 6000-0000",
		TaxID:       "8-123-4567",
		CountryCode: "pa",
		Province:    "Panamá",
		City:        "Panama City",
		Line1:       "Calle 50, Edificio Global",
	}
}

func TestCreateAddressValidation(t *testing.T) {
	svc := NewService(newFakeAddressStore())
	userID := uuid.NewString()

	cases := []struct {
		name   string
		mutate func(*AddressInput)
	}{
		{"missing recipient", func(in *AddressInput) { in.Recipient = "" }},
		{"missing line1", func(in *AddressInput) { in.Line1 = "" }},
		{"missing country code", func(in *AddressInput) { in.CountryCode = "" }},
		{"bad country code", func(in *AddressInput) { in.CountryCode = "PAN" }},
		{"phone too short", func(in *AddressInput) { in.Phone = "+507 60" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			input := consigneeInput()
			tc.mutate(&input)
			_, err := svc.Create(context.Background(), userID, input)
			var appErr *common.AppError
			require.ErrorAs(t, err, &appErr)
			require.Equal(t, "VALIDATION_ERROR", appErr.Code)
		})
	}
}

func TestCreateNormalizesCountryCode(t *testing.T) {
	svc := NewService(newFakeAddressStore())

	created, err := svc.Create(context.Background(), uuid.NewString(), consigneeInput())
	require.NoError(t, err)
	require.Equal(t, "PA", created.CountryCode)
	require.Equal(t, "8-123-4567", created.TaxID)
}

func TestDefaultConsigneeIsExclusive(t *testing.T) {
	store := newFakeAddressStore()
	svc := NewService(store)
	userID := uuid.NewString()

	first := consigneeInput()
	first.IsDefault = true
	a1, err := svc.Create(context.Background(), userID, first)
	require.NoError(t, err)
	require.True(t, a1.IsDefault)

	second := consigneeInput()
	second.Label = "oficina"
	second.IsDefault = true
	a2, err := svc.Create(context.Background(), userID, second)
	require.NoError(t, err)
	require.True(t, a2.IsDefault)

	require.False(t, store.addresses[a1.ID].IsDefault)
}

func TestUpdateMissingAddressReturnsNotFound(t *testing.T) {
	svc := NewService(newFakeAddressStore())
	_, err := svc.Update(context.Background(), uuid.NewString(), uuid.NewString(), consigneeInput())
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "NOT_FOUND", appErr.Code)
}

func TestDeleteScopedToOwner(t *testing.T) {
	store := newFakeAddressStore()
	svc := NewService(store)
	owner := uuid.NewString()

	created, err := svc.Create(context.Background(), owner, consigneeInput())
	require.NoError(t, err)

	err = svc.Delete(context.Background(), uuid.NewString(), created.ID.String())
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "NOT_FOUND", appErr.Code)

	require.NoError(t, svc.Delete(context.Background(), owner, created.ID.String()))
}
