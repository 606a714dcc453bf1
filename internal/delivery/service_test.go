package delivery_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/envioex/backend-envioex/internal/common"
	"github.com/envioex/backend-envioex/internal/delivery"
	"github.com/envioex/backend-envioex/internal/order"
)

type fakeDeliveryStore struct {
	deliveries map[uuid.UUID]delivery.Delivery
	events     []delivery.Event
}

func newFakeDeliveryStore() *fakeDeliveryStore {
	return &fakeDeliveryStore{deliveries: map[uuid.UUID]delivery.Delivery{}}
}

func (f *fakeDeliveryStore) Create(_ context.Context, d delivery.Delivery) (delivery.Delivery, error) {
	d.ID = uuid.New()
	d.CreatedAt = time.Now()
	d.UpdatedAt = d.CreatedAt
	f.deliveries[d.OrderID] = d
	return d, nil
}

func (f *fakeDeliveryStore) GetByOrder(_ context.Context, orderID uuid.UUID) (delivery.Delivery, error) {
	d, ok := f.deliveries[orderID]
	if !ok {
		return delivery.Delivery{}, delivery.ErrNotFound
	}
	return d, nil
}

func (f *fakeDeliveryStore) UpdateStatus(_ context.Context, id uuid.UUID, status delivery.Status, lastEventAt time.Time) error {
	for orderID, d := range f.deliveries {
		if d.ID == id {
			d.Status = status
			d.LastEventAt = &lastEventAt
			f.deliveries[orderID] = d
			return nil
		}
	}
	return delivery.ErrNotFound
}

func (f *fakeDeliveryStore) InsertEvent(_ context.Context, e delivery.Event) (delivery.Event, error) {
	e.ID = uuid.New()
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now()
	}
	f.events = append(f.events, e)
	return e, nil
}

func (f *fakeDeliveryStore) ListEvents(_ context.Context, deliveryID uuid.UUID) ([]delivery.Event, error) {
	var out []delivery.Event
	for _, e := range f.events {
		if e.DeliveryID == deliveryID {
			out = append(out, e)
		}
	}
	return out, nil
}

type fakeOrderStore struct {
	orders map[uuid.UUID]order.Order
}

func newFakeOrderStore() *fakeOrderStore {
	return &fakeOrderStore{orders: map[uuid.UUID]order.Order{}}
}

func (f *fakeOrderStore) add(status order.Status, email string) uuid.UUID {
	id := uuid.New()
	f.orders[id] = order.Order{ID: id, CustomerName: "Ana", CustomerEmail: email, Status: status}
	return id
}

func (f *fakeOrderStore) Insert(_ context.Context, o order.Order) (order.Order, error) {
	o.ID = uuid.New()
	f.orders[o.ID] = o
	return o, nil
}

func (f *fakeOrderStore) Get(_ context.Context, id uuid.UUID) (order.Order, error) {
	o, ok := f.orders[id]
	if !ok {
		return order.Order{}, order.ErrNotFound
	}
	return o, nil
}

func (f *fakeOrderStore) List(_ context.Context, _, _ int) ([]order.Order, error) { return nil, nil }

func (f *fakeOrderStore) Count(_ context.Context) (int64, error) { return 0, nil }

func (f *fakeOrderStore) UpdateStatus(_ context.Context, id uuid.UUID, status order.Status) (order.Order, error) {
	o, ok := f.orders[id]
	if !ok {
		return order.Order{}, order.ErrNotFound
	}
	o.Status = status
	f.orders[id] = o
	return o, nil
}

func (f *fakeOrderStore) UpdateDetails(_ context.Context, in order.Order) (order.Order, error) {
	return in, nil
}

func TestMapExternalToStatus(t *testing.T) {
	cases := map[string]delivery.Status{
		"picked":           delivery.StatusPicked,
		"Pickup":           delivery.StatusPicked,
		"shipped":          delivery.StatusShipped,
		"in-transit":       delivery.StatusShipped,
		"out_for_delivery": delivery.StatusOutForDelivery,
		"DELIVERED":        delivery.StatusDelivered,
		"mystery":          delivery.StatusPending,
		"":                 delivery.StatusPending,
	}
	for input, want := range cases {
		require.Equal(t, want, delivery.MapExternalToStatus(input), "input %q", input)
	}
}

func TestCreateRequiresPurchasedOrder(t *testing.T) {
	orders := newFakeOrderStore()
	svc := &delivery.Service{Store: newFakeDeliveryStore(), Orders: orders}

	registered := orders.add(order.StatusRegistered, "")
	_, err := svc.Create(context.Background(), registered, "dhl", "TRACK1")
	require.ErrorIs(t, err, delivery.ErrOrderNotEligible)

	purchased := orders.add(order.StatusPurchased, "")
	created, err := svc.Create(context.Background(), purchased, "dhl", "TRACK2")
	require.NoError(t, err)
	require.Equal(t, delivery.StatusPending, created.Status)

	// Creating a delivery moves the order to in_transit.
	o, err := orders.Get(context.Background(), purchased)
	require.NoError(t, err)
	require.Equal(t, order.StatusInTransit, o.Status)
}

func TestCreateRejectsDuplicate(t *testing.T) {
	orders := newFakeOrderStore()
	svc := &delivery.Service{Store: newFakeDeliveryStore(), Orders: orders}
	id := orders.add(order.StatusPurchased, "")

	_, err := svc.Create(context.Background(), id, "dhl", "T1")
	require.NoError(t, err)
	_, err = svc.Create(context.Background(), id, "dhl", "T2")
	require.ErrorIs(t, err, delivery.ErrDeliveryAlreadyExists)
}

func TestAppendEventAdvancesDeliveryAndOrder(t *testing.T) {
	orders := newFakeOrderStore()
	store := newFakeDeliveryStore()
	mail := &common.InMemoryEmail{}
	svc := &delivery.Service{Store: store, Orders: orders, Mail: mail, NotifyOnDelivered: true}

	id := orders.add(order.StatusPurchased, "ana@example.com")
	_, err := svc.Create(context.Background(), id, "dhl", "T1")
	require.NoError(t, err)

	_, d, err := svc.AppendEvent(context.Background(), id, delivery.StatusShipped, "left origin", "MIA", nil, nil)
	require.NoError(t, err)
	require.Equal(t, delivery.StatusShipped, d.Status)

	_, d, err = svc.AppendEvent(context.Background(), id, delivery.StatusDelivered, "", "", nil, nil)
	require.NoError(t, err)
	require.Equal(t, delivery.StatusDelivered, d.Status)

	// Courier jump shipped -> delivered still walks the order to delivered.
	o, err := orders.Get(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, order.StatusDelivered, o.Status)
	require.Len(t, mail.Outbox, 1)
}

func TestAppendEventRejectsBackwardTransition(t *testing.T) {
	orders := newFakeOrderStore()
	svc := &delivery.Service{Store: newFakeDeliveryStore(), Orders: orders}
	id := orders.add(order.StatusPurchased, "")

	_, err := svc.Create(context.Background(), id, "dhl", "T1")
	require.NoError(t, err)

	_, _, err = svc.AppendEvent(context.Background(), id, delivery.StatusShipped, "", "", nil, nil)
	require.NoError(t, err)
	_, _, err = svc.AppendEvent(context.Background(), id, delivery.StatusDelivered, "", "", nil, nil)
	require.NoError(t, err)
	_, _, err = svc.AppendEvent(context.Background(), id, delivery.StatusShipped, "", "", nil, nil)
	require.ErrorIs(t, err, delivery.ErrInvalidTransition)
}
