package expense

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/envioex/backend-envioex/internal/common"
)

// Handler exposes the expense endpoints.
type Handler struct {
	Store Store
}

type expensePayload struct {
	Concept  string          `json:"concept"`
	Category string          `json:"category"`
	Amount   json.RawMessage `json:"amount"`
	Date     string          `json:"date"`
}

// List returns paginated expenses.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	page, perPage := common.ParsePagination(r, 20)
	expenses, err := h.Store.List(r.Context(), perPage, (page-1)*perPage)
	if err != nil {
		renderError(w, err)
		return
	}
	total, err := h.Store.Count(r.Context())
	if err != nil {
		renderError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data":       expenses,
		"pagination": common.Pagination{Page: page, PerPage: perPage, TotalItems: int(total)},
	})
}

// Get returns one expense.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	e, err := h.Store.Get(r.Context(), id)
	if err != nil {
		renderError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": e})
}

// Create records a new expense.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	in, ok := decodeExpense(w, r)
	if !ok {
		return
	}
	created, err := h.Store.Insert(r.Context(), in)
	if err != nil {
		renderError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": created})
}

// Update replaces an expense.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	in, ok := decodeExpense(w, r)
	if !ok {
		return
	}
	in.ID = id
	updated, err := h.Store.Update(r.Context(), in)
	if err != nil {
		renderError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": updated})
}

// Delete removes an expense.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	if err := h.Store.Delete(r.Context(), id); err != nil {
		renderError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MonthlySummary aggregates the expenses of one month grouped by category.
func (h *Handler) MonthlySummary(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	year := common.AtoiDefault(r.URL.Query().Get("year"), now.Year())
	monthNum := common.AtoiDefault(r.URL.Query().Get("month"), int(now.Month()))
	if monthNum < 1 || monthNum > 12 {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", "month must be between 1 and 12", nil)
		return
	}
	summary, err := h.Store.MonthlySummary(r.Context(), year, time.Month(monthNum))
	if err != nil {
		renderError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": summary})
}

func decodeExpense(w http.ResponseWriter, r *http.Request) (Expense, bool) {
	var payload expensePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return Expense{}, false
	}
	concept := strings.TrimSpace(payload.Concept)
	if concept == "" {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", "concept is required", nil)
		return Expense{}, false
	}
	amount, err := common.DecimalField(payload.Amount, "amount")
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
		return Expense{}, false
	}
	if !amount.IsPositive() {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", "amount must be greater than zero", nil)
		return Expense{}, false
	}
	date, err := time.Parse("2006-01-02", strings.TrimSpace(payload.Date))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", "date must be YYYY-MM-DD", nil)
		return Expense{}, false
	}
	return Expense{
		Concept:  concept,
		Category: strings.TrimSpace(payload.Category),
		Amount:   amount,
		Date:     date,
	}, true
}

func parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := strings.TrimSpace(chi.URLParam(r, "id"))
	id, err := uuid.Parse(raw)
	if err != nil {
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "expense not found", nil)
		return uuid.Nil, false
	}
	return id, true
}

func renderError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrNotFound) {
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "expense not found", nil)
		return
	}
	common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "expense store error", nil)
}
