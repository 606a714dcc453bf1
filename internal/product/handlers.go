package product

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/envioex/backend-envioex/internal/common"
)

// Handler exposes the product endpoints.
type Handler struct {
	Svc *Service
}

type productPayload struct {
	OrderID      string          `json:"order_id"`
	Name         string          `json:"name"`
	Link         string          `json:"link"`
	ShopName     string          `json:"shop_name"`
	UnitPrice    json.RawMessage `json:"unit_price"`
	ShippingCost json.RawMessage `json:"shipping_cost"`
	ShopTaxRate  json.RawMessage `json:"shop_tax_rate"`
	AddedTaxes   json.RawMessage `json:"added_taxes"`
	OwnTaxes     json.RawMessage `json:"own_taxes"`
	ApplyBaseTax *bool           `json:"apply_base_tax"`
}

// List returns paginated products.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	page, perPage := common.ParsePagination(r, 20)
	products, total, err := h.Svc.List(r.Context(), page, perPage)
	if err != nil {
		renderError(w, err, "failed to list products")
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data":       products,
		"pagination": common.Pagination{Page: page, PerPage: perPage, TotalItems: int(total)},
	})
}

// Get returns a single product.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	p, err := h.Svc.Get(r.Context(), id)
	if err != nil {
		renderError(w, err, "failed to fetch product")
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": p})
}

// Create registers a product and returns it with its computed breakdown.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	in, ok := decodeInput(w, r)
	if !ok {
		return
	}
	created, err := h.Svc.Create(r.Context(), in)
	if err != nil {
		renderError(w, err, "failed to create product")
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": created})
}

// Update replaces a product's inputs and recomputes the breakdown.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	in, ok := decodeInput(w, r)
	if !ok {
		return
	}
	updated, err := h.Svc.Update(r.Context(), id, in)
	if err != nil {
		renderError(w, err, "failed to update product")
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": updated})
}

// Delete removes a product.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	if err := h.Svc.Delete(r.Context(), id); err != nil {
		renderError(w, err, "failed to delete product")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Quote prices a prospective purchase without persisting anything.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	in, ok := decodeInput(w, r)
	if !ok {
		return
	}
	quote, err := h.Svc.Quote(r.Context(), in)
	if err != nil {
		renderError(w, err, "failed to compute quote")
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": quote})
}

func decodeInput(w http.ResponseWriter, r *http.Request) (Input, bool) {
	var payload productPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return Input{}, false
	}
	in := Input{
		Name:         strings.TrimSpace(payload.Name),
		Link:         strings.TrimSpace(payload.Link),
		ShopName:     strings.TrimSpace(payload.ShopName),
		ApplyBaseTax: payload.ApplyBaseTax,
	}
	if raw := strings.TrimSpace(payload.OrderID); raw != "" {
		orderID, err := uuid.Parse(raw)
		if err != nil {
			common.JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", "order_id must be a uuid", nil)
			return Input{}, false
		}
		in.OrderID = orderID
	}
	for _, field := range []struct {
		raw  json.RawMessage
		name string
		dst  *decimal.Decimal
	}{
		{payload.UnitPrice, "unit_price", &in.UnitPrice},
		{payload.ShippingCost, "shipping_cost", &in.ShippingCost},
		{payload.ShopTaxRate, "shop_tax_rate", &in.ShopTaxRate},
		{payload.AddedTaxes, "added_taxes", &in.AddedTaxes},
		{payload.OwnTaxes, "own_taxes", &in.OwnTaxes},
	} {
		d, err := common.DecimalField(field.raw, field.name)
		if err != nil {
			common.JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
			return Input{}, false
		}
		*field.dst = d
	}
	return in, true
}

func parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := strings.TrimSpace(chi.URLParam(r, "id"))
	id, err := uuid.Parse(raw)
	if err != nil {
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "product not found", nil)
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
	if errors.Is(err, ErrNotFound) {
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "product not found", nil)
		return
	}
	common.JSONError(w, http.StatusInternalServerError, "INTERNAL", fallback, nil)
}
