package settings

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/envioex/backend-envioex/internal/common"
)

// Handler exposes the settings endpoints.
type Handler struct {
	Svc *Service
}

type updatePayload struct {
	ExchangeRate json.RawMessage `json:"exchange_rate"`
	CostPerPound json.RawMessage `json:"cost_per_pound"`
}

// Get returns the effective settings.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	current, err := h.Svc.Get(r.Context())
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to load settings", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": current})
}

// Update persists new settings values.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	var payload updatePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	rate, err := common.DecimalField(payload.ExchangeRate, "exchange_rate")
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
		return
	}
	perPound, err := common.DecimalField(payload.CostPerPound, "cost_per_pound")
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
		return
	}
	updated, err := h.Svc.Update(r.Context(), Settings{ExchangeRate: rate, CostPerPound: perPound})
	if err != nil {
		var appErr *common.AppError
		if errors.As(err, &appErr) {
			common.JSONError(w, appErr.HTTPStatus, appErr.Code, appErr.Message, appErr.Details)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to save settings", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": updated})
}
