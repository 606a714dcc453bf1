package delivery_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/envioex/backend-envioex/internal/delivery"
	"github.com/envioex/backend-envioex/internal/order"
)

type fakeReplayStore struct {
	results []bool
	err     error
}

func (f *fakeReplayStore) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd {
	if len(f.results) == 0 {
		return redis.NewBoolResult(true, f.err)
	}
	res := f.results[0]
	f.results = f.results[1:]
	return redis.NewBoolResult(res, f.err)
}

func webhookRequest(t *testing.T, orderID uuid.UUID, externalStatus string) *http.Request {
	t.Helper()
	payload := map[string]any{"orderId": orderID.String(), "externalStatus": externalStatus}
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/delivery/mock", bytes.NewReader(body))
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("courier", "mock")
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestWebhookReplayProtection(t *testing.T) {
	t.Parallel()

	orders := newFakeOrderStore()
	store := newFakeDeliveryStore()
	svc := &delivery.Service{Store: store, Orders: orders}

	orderID := orders.add(order.StatusPurchased, "buyer@example.com")
	_, err := svc.Create(context.Background(), orderID, "mock", "TRACK123")
	require.NoError(t, err)

	replay := &fakeReplayStore{results: []bool{true, false}}
	wh := delivery.Webhook{Svc: svc, Replay: replay, ReplayTTL: time.Minute}

	rr := httptest.NewRecorder()
	wh.Handle(rr, webhookRequest(t, orderID, "shipped"))
	require.Equal(t, http.StatusNoContent, rr.Code)
	require.Len(t, store.events, 1)

	rr2 := httptest.NewRecorder()
	wh.Handle(rr2, webhookRequest(t, orderID, "shipped"))
	require.Equal(t, http.StatusConflict, rr2.Code)
	require.Len(t, store.events, 1)
}

func TestWebhookRejectsUnknownStatus(t *testing.T) {
	t.Parallel()

	orders := newFakeOrderStore()
	svc := &delivery.Service{Store: newFakeDeliveryStore(), Orders: orders}
	orderID := orders.add(order.StatusPurchased, "")
	_, err := svc.Create(context.Background(), orderID, "mock", "TRACK123")
	require.NoError(t, err)

	wh := delivery.Webhook{Svc: svc, Replay: &fakeReplayStore{}, ReplayTTL: time.Minute}
	rr := httptest.NewRecorder()
	wh.Handle(rr, webhookRequest(t, orderID, "levitating"))
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestWebhookUnknownOrder(t *testing.T) {
	t.Parallel()

	svc := &delivery.Service{Store: newFakeDeliveryStore(), Orders: newFakeOrderStore()}
	wh := delivery.Webhook{Svc: svc, Replay: &fakeReplayStore{}, ReplayTTL: time.Minute}

	rr := httptest.NewRecorder()
	wh.Handle(rr, webhookRequest(t, uuid.New(), "shipped"))
	require.Equal(t, http.StatusNotFound, rr.Code)
}
