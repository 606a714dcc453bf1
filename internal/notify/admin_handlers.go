package notify

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/envioex/backend-envioex/internal/common"
)

// AdminHandler exposes management endpoints for webhook configuration and
// delivery monitoring.
type AdminHandler struct {
	Store Store
	Disp  *Dispatcher
}

type endpointRequest struct {
	Name   string   `json:"name"`
	URL    string   `json:"url"`
	Secret string   `json:"secret"`
	Active *bool    `json:"active"`
	Topics []string `json:"topics"`
}

func (req endpointRequest) toEndpoint(id uuid.UUID) Endpoint {
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	return Endpoint{
		ID:     id,
		Name:   req.Name,
		URL:    req.URL,
		Secret: req.Secret,
		Active: active,
		Topics: normaliseTopics(req.Topics),
	}
}

// storeReady guards handlers against a missing store dependency.
func (h *AdminHandler) storeReady(w http.ResponseWriter) bool {
	if h == nil || h.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "webhook store unavailable", nil)
		return false
	}
	return true
}

// writeStoreError maps pgx.ErrNoRows to 404 and everything else to 500.
func writeStoreError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, pgx.ErrNoRows) {
		status = http.StatusNotFound
	}
	common.JSONError(w, status, "INTERNAL", err.Error(), nil)
}

func endpointID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(strings.TrimSpace(chi.URLParam(r, "id")))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid id", nil)
		return uuid.Nil, false
	}
	return id, true
}

// CreateEndpoint registers a new webhook endpoint.
func (h *AdminHandler) CreateEndpoint(w http.ResponseWriter, r *http.Request) {
	if !h.storeReady(w) {
		return
	}
	req, ok := decodeEndpoint(w, r)
	if !ok {
		return
	}
	endpoint, err := h.Store.CreateEndpoint(r.Context(), req.toEndpoint(uuid.Nil))
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", err.Error(), nil)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": endpoint})
}

// UpdateEndpoint replaces an endpoint's configuration.
func (h *AdminHandler) UpdateEndpoint(w http.ResponseWriter, r *http.Request) {
	if !h.storeReady(w) {
		return
	}
	id, ok := endpointID(w, r)
	if !ok {
		return
	}
	req, ok := decodeEndpoint(w, r)
	if !ok {
		return
	}
	endpoint, err := h.Store.UpdateEndpoint(r.Context(), req.toEndpoint(id))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": endpoint})
}

// ListEndpoints returns configured webhook endpoints.
func (h *AdminHandler) ListEndpoints(w http.ResponseWriter, r *http.Request) {
	if !h.storeReady(w) {
		return
	}
	limit, offset := pagination(r)
	endpoints, err := h.Store.ListEndpoints(r.Context(), limit, offset)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", err.Error(), nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": endpoints})
}

// DeleteEndpoint removes an endpoint by ID.
func (h *AdminHandler) DeleteEndpoint(w http.ResponseWriter, r *http.Request) {
	if !h.storeReady(w) {
		return
	}
	id, ok := endpointID(w, r)
	if !ok {
		return
	}
	if err := h.Store.DeleteEndpoint(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListDeliveries returns delivery attempts, optionally filtered by status,
// endpoint or event.
func (h *AdminHandler) ListDeliveries(w http.ResponseWriter, r *http.Request) {
	if !h.storeReady(w) {
		return
	}
	filter := deliveryFilterFrom(r)
	rows, err := h.Store.ListDeliveries(r.Context(), filter)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", err.Error(), nil)
		return
	}
	total, err := h.Store.CountDeliveries(r.Context(), filter)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", err.Error(), nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": rows, "total": total})
}

// ReplayDelivery resets a delivery so the worker attempts it again. The
// replay guard for the endpoint/event pair is released so the resend is not
// suppressed as a duplicate.
func (h *AdminHandler) ReplayDelivery(w http.ResponseWriter, r *http.Request) {
	if !h.storeReady(w) {
		return
	}
	id, ok := endpointID(w, r)
	if !ok {
		return
	}
	delivery, err := h.Store.ResetDeliveryForReplay(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if h.Disp != nil && h.Disp.Replay != nil {
		_ = h.Disp.Replay.Release(r.Context(), replayKey(delivery.EndpointID, delivery.EventID))
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": delivery})
}

func deliveryFilterFrom(r *http.Request) DeliveryFilter {
	query := r.URL.Query()
	filter := DeliveryFilter{Status: strings.TrimSpace(query.Get("status"))}
	if id, err := uuid.Parse(strings.TrimSpace(query.Get("endpointId"))); err == nil {
		filter.EndpointID = id
	}
	if id, err := uuid.Parse(strings.TrimSpace(query.Get("eventId"))); err == nil {
		filter.EventID = id
	}
	filter.Limit, filter.Offset = pagination(r)
	return filter
}

func decodeEndpoint(w http.ResponseWriter, r *http.Request) (endpointRequest, bool) {
	var req endpointRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return endpointRequest{}, false
	}
	if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.URL) == "" || strings.TrimSpace(req.Secret) == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "name, url and secret are required", nil)
		return endpointRequest{}, false
	}
	if err := validateURL(req.URL); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return endpointRequest{}, false
	}
	return req, true
}

func normaliseTopics(topics []string) []string {
	seen := make(map[string]struct{}, len(topics))
	result := make([]string, 0, len(topics))
	for _, topic := range topics {
		trimmed := strings.TrimSpace(strings.ToLower(topic))
		if trimmed == "" {
			continue
		}
		if _, dup := seen[trimmed]; dup {
			continue
		}
		seen[trimmed] = struct{}{}
		result = append(result, trimmed)
	}
	if len(result) == 0 {
		return []string{}
	}
	return result
}

func pagination(r *http.Request) (limit, offset int) {
	limit, offset = 50, 0
	if parsed, err := strconv.Atoi(strings.TrimSpace(r.URL.Query().Get("limit"))); err == nil && parsed > 0 && parsed <= 200 {
		limit = parsed
	}
	if parsed, err := strconv.Atoi(strings.TrimSpace(r.URL.Query().Get("offset"))); err == nil && parsed >= 0 {
		offset = parsed
	}
	return limit, offset
}
