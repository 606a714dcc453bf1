package audit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

type listStore struct {
	stubStore
	receivedLimit  int
	receivedOffset int
}

func (l *listStore) ListAuditLogs(_ context.Context, limit, offset int) ([]Entry, error) {
	l.receivedLimit = limit
	l.receivedOffset = offset
	return []Entry{{Action: "POST /api/v1/admin/tax-rules", Method: "POST"}}, nil
}

func TestListPassesPagination(t *testing.T) {
	store := &listStore{}
	h := Handler{Store: store}
	rr := httptest.NewRecorder()
	h.List(rr, httptest.NewRequest(http.MethodGet, "/api/v1/admin/audit?limit=25&offset=10", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if store.receivedLimit != 25 || store.receivedOffset != 10 {
		t.Fatalf("unexpected pagination params: %d/%d", store.receivedLimit, store.receivedOffset)
	}
	var payload []map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(payload) != 1 {
		t.Fatalf("expected one log entry, got %d", len(payload))
	}
}
