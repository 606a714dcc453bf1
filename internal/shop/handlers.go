package shop

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/envioex/backend-envioex/internal/common"
	"github.com/envioex/backend-envioex/internal/pricing"
)

// Handler exposes the shop registry endpoints.
type Handler struct {
	Store Store
}

type shopPayload struct {
	Name    string          `json:"name"`
	TaxRate json.RawMessage `json:"tax_rate"`
}

// List returns all registered shops.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	shops, err := h.Store.List(r.Context())
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to list shops", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": shops})
}

// Get returns a single shop.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	out, err := h.Store.Get(r.Context(), id)
	if err != nil {
		renderStoreError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": out})
}

// Create registers a new shop.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	in, ok := decodeShop(w, r)
	if !ok {
		return
	}
	created, err := h.Store.Insert(r.Context(), in)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to create shop", nil)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": created})
}

// Update replaces a shop's name and explicit tax rate.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	in, ok := decodeShop(w, r)
	if !ok {
		return
	}
	in.ID = id
	updated, err := h.Store.Update(r.Context(), in)
	if err != nil {
		renderStoreError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": updated})
}

// Delete removes a shop.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	if err := h.Store.Delete(r.Context(), id); err != nil {
		renderStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// TaxPreview reports the shop tax rate the resolver would apply to a name.
func (h *Handler) TaxPreview(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	rate := pricing.ResolveShopTaxRate(name)
	common.JSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{
			"name":     name,
			"tax_rate": rate,
		},
	})
}

// EffectiveTaxRate returns the rate applied to this shop's purchases: the
// explicit rate when set, otherwise the name-based resolution. An explicit
// zero counts as unset and falls through to the resolver.
func EffectiveTaxRate(s Shop) pricing.Decimal {
	if !s.TaxRate.IsZero() {
		return s.TaxRate
	}
	return pricing.ResolveShopTaxRate(s.Name)
}

func decodeShop(w http.ResponseWriter, r *http.Request) (Shop, bool) {
	var payload shopPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return Shop{}, false
	}
	name := strings.TrimSpace(payload.Name)
	if name == "" {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", "name is required", nil)
		return Shop{}, false
	}
	rate, err := common.DecimalField(payload.TaxRate, "tax_rate")
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
		return Shop{}, false
	}
	if rate.IsNegative() {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", "tax_rate must not be negative", nil)
		return Shop{}, false
	}
	return Shop{Name: name, TaxRate: rate}, true
}

func parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := strings.TrimSpace(chi.URLParam(r, "id"))
	id, err := uuid.Parse(raw)
	if err != nil {
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "shop not found", nil)
		return uuid.Nil, false
	}
	return id, true
}

func renderStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrNotFound) {
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "shop not found", nil)
		return
	}
	common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "shop store error", nil)
}
