package order

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/envioex/backend-envioex/internal/common"
)

// Handler exposes the order endpoints.
type Handler struct {
	Svc *Service
}

type orderPayload struct {
	CustomerName  string `json:"customer_name"`
	CustomerEmail string `json:"customer_email"`
	Notes         string `json:"notes"`
}

type statusPayload struct {
	Status string `json:"status"`
}

// List returns paginated orders.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	page, perPage := common.ParsePagination(r, 20)
	orders, total, err := h.Svc.List(r.Context(), page, perPage)
	if err != nil {
		renderError(w, err, "failed to list orders")
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data":       orders,
		"pagination": common.Pagination{Page: page, PerPage: perPage, TotalItems: int(total)},
	})
}

// Get returns one order with its products.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	detail, err := h.Svc.Get(r.Context(), id)
	if err != nil {
		renderError(w, err, "failed to fetch order")
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": detail})
}

// Create registers a new order.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var payload orderPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	created, err := h.Svc.Register(r.Context(),
		strings.TrimSpace(payload.CustomerName),
		strings.TrimSpace(payload.CustomerEmail),
		strings.TrimSpace(payload.Notes))
	if err != nil {
		renderError(w, err, "failed to create order")
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": created})
}

// Update changes the customer fields.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	var payload orderPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	updated, err := h.Svc.UpdateDetails(r.Context(), Order{
		ID:            id,
		CustomerName:  strings.TrimSpace(payload.CustomerName),
		CustomerEmail: strings.TrimSpace(payload.CustomerEmail),
		Notes:         strings.TrimSpace(payload.Notes),
	})
	if err != nil {
		renderError(w, err, "failed to update order")
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": updated})
}

// SetStatus moves the order through the state machine.
func (h *Handler) SetStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	var payload statusPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	status, valid := ParseStatus(payload.Status)
	if !valid {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", "unknown status", nil)
		return
	}
	updated, err := h.Svc.SetStatus(r.Context(), id, status)
	if err != nil {
		renderError(w, err, "failed to update status")
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": updated})
}

// Cancel aborts a pre-purchase order.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	updated, err := h.Svc.Cancel(r.Context(), id)
	if err != nil {
		renderError(w, err, "failed to cancel order")
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": updated})
}

func parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := strings.TrimSpace(chi.URLParam(r, "id"))
	id, err := uuid.Parse(raw)
	if err != nil {
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "order not found", nil)
		return uuid.Nil, false
	}
	return id, true
}

func renderError(w http.ResponseWriter, err error, fallback string) {
	var appErr *common.AppError
	if errors.As(err, &appErr) {
		common.JSONError(w, appErr.HTTPStatus, appErr.Code, appErr.Message, appErr.Details)
		return
	}
	switch {
	case errors.Is(err, ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "order not found", nil)
	case errors.Is(err, ErrInvalidTransition):
		common.JSONError(w, http.StatusConflict, "INVALID_STATE", err.Error(), nil)
	default:
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", fallback, nil)
	}
}
