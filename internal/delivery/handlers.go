package delivery

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/envioex/backend-envioex/internal/common"
	"github.com/envioex/backend-envioex/internal/order"
)

// Handler exposes the delivery endpoints.
type Handler struct {
	Svc *Service
}

type createPayload struct {
	Courier        string `json:"courier"`
	TrackingNumber string `json:"tracking_number"`
}

// Create initialises a delivery for an order.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	orderID, ok := parseOrderID(w, r)
	if !ok {
		return
	}
	var payload createPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	created, err := h.Svc.Create(r.Context(), orderID,
		strings.TrimSpace(payload.Courier), strings.TrimSpace(payload.TrackingNumber))
	if err != nil {
		renderError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": created})
}

// Get returns the delivery for an order together with its tracking events.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	orderID, ok := parseOrderID(w, r)
	if !ok {
		return
	}
	d, err := h.Svc.Store.GetByOrder(r.Context(), orderID)
	if err != nil {
		renderError(w, err)
		return
	}
	events, err := h.Svc.Store.ListEvents(r.Context(), d.ID)
	if err != nil {
		renderError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{
			"delivery": d,
			"events":   events,
		},
	})
}

func parseOrderID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := strings.TrimSpace(chi.URLParam(r, "id"))
	id, err := uuid.Parse(raw)
	if err != nil {
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "order not found", nil)
		return uuid.Nil, false
	}
	return id, true
}

func renderError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, order.ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "delivery not found", nil)
	case errors.Is(err, ErrDeliveryAlreadyExists):
		common.JSONError(w, http.StatusConflict, "CONFLICT", err.Error(), nil)
	case errors.Is(err, ErrOrderNotEligible):
		common.JSONError(w, http.StatusConflict, "INVALID_STATE", err.Error(), nil)
	case errors.Is(err, ErrInvalidTransition):
		common.JSONError(w, http.StatusConflict, "INVALID_STATE", err.Error(), nil)
	default:
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "delivery store error", nil)
	}
}
