package invoice

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/envioex/backend-envioex/internal/common"
)

// Handler exposes the invoice CRUD endpoints used by the dashboard.
type Handler struct {
	Svc      *Service
	Validate *validator.Validate
}

type tagPayload struct {
	ID          string          `json:"id"`
	Kind        string          `json:"kind" validate:"required,oneof=pesaje nominal"`
	Description string          `json:"description"`
	Weight      json.RawMessage `json:"weight"`
	CostPerLb   json.RawMessage `json:"cost_per_lb"`
	FixedCost   json.RawMessage `json:"fixed_cost"`
}

type invoicePayload struct {
	Date string       `json:"date" validate:"required,datetime=2006-01-02"`
	Tags []tagPayload `json:"tags" validate:"dive"`
}

// List returns paginated invoices.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	page, perPage := common.ParsePagination(r, 20)
	invoices, total, err := h.Svc.List(r.Context(), page, perPage)
	if err != nil {
		renderError(w, err, "failed to list invoices")
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data":       invoices,
		"pagination": common.Pagination{Page: page, PerPage: perPage, TotalItems: int(total)},
	})
}

// Get returns a single invoice.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	inv, err := h.Svc.Get(r.Context(), id)
	if err != nil {
		renderError(w, err, "failed to fetch invoice")
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": inv})
}

// Create persists a new invoice with its initial tag list.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	payload, ok := h.decodePayload(w, r)
	if !ok {
		return
	}
	date, tags, ok := h.buildInput(w, payload)
	if !ok {
		return
	}
	created, err := h.Svc.Create(r.Context(), date, tags)
	if err != nil {
		renderError(w, err, "failed to create invoice")
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": created})
}

// Update replaces the date and tags of an existing invoice.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	payload, ok := h.decodePayload(w, r)
	if !ok {
		return
	}
	date, tags, ok := h.buildInput(w, payload)
	if !ok {
		return
	}
	updated, err := h.Svc.Update(r.Context(), id, date, tags)
	if err != nil {
		renderError(w, err, "failed to update invoice")
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": updated})
}

// Delete removes an invoice.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	if err := h.Svc.Delete(r.Context(), id); err != nil {
		renderError(w, err, "failed to delete invoice")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddTag appends a new tag to an invoice.
func (h *Handler) AddTag(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	var payload tagPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	tag, err := h.buildTag(payload)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
		return
	}
	updated, err := h.Svc.AddTag(r.Context(), id, tag)
	if err != nil {
		renderError(w, err, "failed to add tag")
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": updated})
}

// UpdateTag replaces one tag on an invoice.
func (h *Handler) UpdateTag(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	tagID := strings.TrimSpace(chi.URLParam(r, "tagID"))
	if tagID == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "tag id is required", nil)
		return
	}
	var payload tagPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	tag, err := h.buildTag(payload)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
		return
	}
	updated, err := h.Svc.UpdateTag(r.Context(), id, tagID, tag)
	if err != nil {
		renderError(w, err, "failed to update tag")
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": updated})
}

// RemoveTag drops one tag from an invoice.
func (h *Handler) RemoveTag(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	tagID := strings.TrimSpace(chi.URLParam(r, "tagID"))
	if tagID == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "tag id is required", nil)
		return
	}
	updated, err := h.Svc.RemoveTag(r.Context(), id, tagID)
	if err != nil {
		renderError(w, err, "failed to remove tag")
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": updated})
}

func (h *Handler) parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := strings.TrimSpace(chi.URLParam(r, "id"))
	id, err := uuid.Parse(raw)
	if err != nil {
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "invoice not found", nil)
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) decodePayload(w http.ResponseWriter, r *http.Request) (invoicePayload, bool) {
	var payload invoicePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return invoicePayload{}, false
	}
	if h.Validate != nil {
		if err := h.Validate.Struct(payload); err != nil {
			common.JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
			return invoicePayload{}, false
		}
	}
	return payload, true
}

func (h *Handler) buildInput(w http.ResponseWriter, payload invoicePayload) (time.Time, []Tag, bool) {
	date, err := time.Parse("2006-01-02", payload.Date)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", "date must be YYYY-MM-DD", nil)
		return time.Time{}, nil, false
	}
	tags := make([]Tag, 0, len(payload.Tags))
	for _, tp := range payload.Tags {
		tag, err := h.buildTag(tp)
		if err != nil {
			common.JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
			return time.Time{}, nil, false
		}
		tags = append(tags, tag)
	}
	return date, tags, true
}

func (h *Handler) buildTag(payload tagPayload) (Tag, error) {
	kind := TagKind(strings.TrimSpace(payload.Kind))
	if kind != TagPesaje && kind != TagNominal {
		return Tag{}, ErrInvalidTagKind
	}
	weight, err := common.DecimalField(payload.Weight, "weight")
	if err != nil {
		return Tag{}, err
	}
	costPerLb, err := common.DecimalField(payload.CostPerLb, "cost_per_lb")
	if err != nil {
		return Tag{}, err
	}
	fixedCost, err := common.DecimalField(payload.FixedCost, "fixed_cost")
	if err != nil {
		return Tag{}, err
	}
	return Tag{
		ID:          strings.TrimSpace(payload.ID),
		Kind:        kind,
		Description: strings.TrimSpace(payload.Description),
		Weight:      weight,
		CostPerLb:   costPerLb,
		FixedCost:   fixedCost,
	}, nil
}

func renderError(w http.ResponseWriter, err error, fallback string) {
	var appErr *common.AppError
	if errors.As(err, &appErr) {
		common.JSONError(w, appErr.HTTPStatus, appErr.Code, appErr.Message, appErr.Details)
		return
	}
	if errors.Is(err, ErrNotFound) {
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "invoice not found", nil)
		return
	}
	common.JSONError(w, http.StatusInternalServerError, "INTERNAL", fallback, nil)
}
