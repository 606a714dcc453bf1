package user

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/envioex/backend-envioex/internal/common"
)

// Handler exposes the /users/me/addresses endpoints. Every route operates on
// the authenticated user's own address book; there is no cross-user access.
type Handler struct {
	Service *Service
}

type addressRequest struct {
	Label       string `json:"label"`
	Recipient   string `json:"recipient"`
	Phone       string `json:"phone"`
	TaxID       string `json:"tax_id"`
	CountryCode string `json:"country_code"`
	Province    string `json:"province"`
	City        string `json:"city"`
	PostalCode  string `json:"postal_code"`
	Line1       string `json:"line1"`
	Line2       string `json:"line2"`
	IsDefault   bool   `json:"is_default"`
}

func (req addressRequest) toInput() AddressInput {
	return AddressInput(req)
}

// List handles GET /users/me/addresses.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authenticated(w, r)
	if !ok {
		return
	}
	page, perPage := common.ParsePagination(r, 20)
	addresses, total, err := h.Service.List(r.Context(), userID, page, perPage)
	if err != nil {
		renderError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data":       addresses,
		"pagination": common.Pagination{Page: page, PerPage: perPage, TotalItems: int(total)},
	})
}

// Create handles POST /users/me/addresses.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authenticated(w, r)
	if !ok {
		return
	}
	req, ok := decodeAddress(w, r)
	if !ok {
		return
	}
	address, err := h.Service.Create(r.Context(), userID, req.toInput())
	if err != nil {
		renderError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": address})
}

// Update handles PATCH /users/me/addresses/{addressID}.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authenticated(w, r)
	if !ok {
		return
	}
	addressID, ok := addressParam(w, r)
	if !ok {
		return
	}
	req, ok := decodeAddress(w, r)
	if !ok {
		return
	}
	address, err := h.Service.Update(r.Context(), userID, addressID, req.toInput())
	if err != nil {
		renderError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": address})
}

// Delete handles DELETE /users/me/addresses/{addressID}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authenticated(w, r)
	if !ok {
		return
	}
	addressID, ok := addressParam(w, r)
	if !ok {
		return
	}
	if err := h.Service.Delete(r.Context(), userID, addressID); err != nil {
		renderError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) authenticated(w http.ResponseWriter, r *http.Request) (string, bool) {
	if h.Service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "address service not configured", nil)
		return "", false
	}
	userID, ok := common.UserID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid token", nil)
		return "", false
	}
	return userID, true
}

func addressParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	addressID := strings.TrimSpace(chi.URLParam(r, "addressID"))
	if addressID == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "address id is required", nil)
		return "", false
	}
	return addressID, true
}

func decodeAddress(w http.ResponseWriter, r *http.Request) (addressRequest, bool) {
	var req addressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request payload", nil)
		return addressRequest{}, false
	}
	return req, true
}

func renderError(w http.ResponseWriter, err error) {
	var appErr *common.AppError
	if !errors.As(err, &appErr) {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
		return
	}
	status := appErr.HTTPStatus
	if status == 0 {
		status = http.StatusInternalServerError
	}
	code := appErr.Code
	if code == "" {
		code = "INTERNAL"
	}
	message := appErr.Message
	if message == "" {
		message = "internal error"
	}
	common.JSONError(w, status, code, message, appErr.Details)
}
