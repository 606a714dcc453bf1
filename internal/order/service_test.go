package order

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/envioex/backend-envioex/internal/common"
)

type fakeStore struct {
	orders map[uuid.UUID]Order
	seq    []uuid.UUID
}

func newFakeStore() *fakeStore {
	return &fakeStore{orders: map[uuid.UUID]Order{}}
}

func (f *fakeStore) Insert(_ context.Context, o Order) (Order, error) {
	o.ID = uuid.New()
	o.CreatedAt = time.Now()
	o.UpdatedAt = o.CreatedAt
	f.orders[o.ID] = o
	f.seq = append(f.seq, o.ID)
	return o, nil
}

func (f *fakeStore) Get(_ context.Context, id uuid.UUID) (Order, error) {
	o, ok := f.orders[id]
	if !ok {
		return Order{}, ErrNotFound
	}
	return o, nil
}

func (f *fakeStore) List(_ context.Context, limit, offset int) ([]Order, error) {
	out := make([]Order, 0, limit)
	for i := offset; i < len(f.seq) && len(out) < limit; i++ {
		out = append(out, f.orders[f.seq[i]])
	}
	return out, nil
}

func (f *fakeStore) Count(_ context.Context) (int64, error) {
	return int64(len(f.seq)), nil
}

func (f *fakeStore) UpdateStatus(_ context.Context, id uuid.UUID, status Status) (Order, error) {
	o, ok := f.orders[id]
	if !ok {
		return Order{}, ErrNotFound
	}
	o.Status = status
	o.UpdatedAt = time.Now()
	f.orders[id] = o
	return o, nil
}

func (f *fakeStore) UpdateDetails(_ context.Context, in Order) (Order, error) {
	o, ok := f.orders[in.ID]
	if !ok {
		return Order{}, ErrNotFound
	}
	o.CustomerName = in.CustomerName
	o.CustomerEmail = in.CustomerEmail
	o.Notes = in.Notes
	o.UpdatedAt = time.Now()
	f.orders[in.ID] = o
	return o, nil
}

func TestAllowedTransitionTable(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusRegistered, StatusPurchased, true},
		{StatusRegistered, StatusCanceled, true},
		{StatusRegistered, StatusInTransit, false},
		{StatusPurchased, StatusInTransit, true},
		{StatusPurchased, StatusCanceled, false},
		{StatusInTransit, StatusInWarehouse, true},
		{StatusInTransit, StatusDelivered, false},
		{StatusInWarehouse, StatusDelivered, true},
		{StatusDelivered, StatusRegistered, false},
		{StatusCanceled, StatusPurchased, false},
		{StatusDelivered, StatusDelivered, true},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, AllowedTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestRegisterStartsInRegisteredState(t *testing.T) {
	svc := &Service{Store: newFakeStore()}
	o, err := svc.Register(context.Background(), "Ana", "ana@example.com", "")
	require.NoError(t, err)
	require.Equal(t, StatusRegistered, o.Status)
}

func TestSetStatusFollowsStateMachine(t *testing.T) {
	svc := &Service{Store: newFakeStore()}
	o, err := svc.Register(context.Background(), "Ana", "", "")
	require.NoError(t, err)

	for _, next := range []Status{StatusPurchased, StatusInTransit, StatusInWarehouse, StatusDelivered} {
		o, err = svc.SetStatus(context.Background(), o.ID, next)
		require.NoError(t, err)
		require.Equal(t, next, o.Status)
	}
}

func TestSetStatusRejectsSkips(t *testing.T) {
	svc := &Service{Store: newFakeStore()}
	o, err := svc.Register(context.Background(), "Ana", "", "")
	require.NoError(t, err)

	_, err = svc.SetStatus(context.Background(), o.ID, StatusDelivered)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestCancelOnlyBeforePurchase(t *testing.T) {
	svc := &Service{Store: newFakeStore()}
	o, err := svc.Register(context.Background(), "Ana", "", "")
	require.NoError(t, err)

	canceled, err := svc.Cancel(context.Background(), o.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCanceled, canceled.Status)

	other, err := svc.Register(context.Background(), "Luis", "", "")
	require.NoError(t, err)
	_, err = svc.SetStatus(context.Background(), other.ID, StatusPurchased)
	require.NoError(t, err)
	_, err = svc.Cancel(context.Background(), other.ID)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestDeliveredNotificationSent(t *testing.T) {
	mail := &common.InMemoryEmail{}
	svc := &Service{Store: newFakeStore(), Mail: mail, NotifyOnDelivered: true}
	o, err := svc.Register(context.Background(), "Ana", "ana@example.com", "")
	require.NoError(t, err)

	for _, next := range []Status{StatusPurchased, StatusInTransit, StatusInWarehouse, StatusDelivered} {
		_, err = svc.SetStatus(context.Background(), o.ID, next)
		require.NoError(t, err)
	}
	require.Len(t, mail.Outbox, 1)
	require.Equal(t, "ana@example.com", mail.Outbox[0].To)
}
