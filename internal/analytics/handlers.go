package analytics

import (
	"net/http"
	"time"

	"github.com/envioex/backend-envioex/internal/common"
)

// Handler exposes analytics read endpoints.
type Handler struct {
	Svc *Service
}

func (h *Handler) guard(w http.ResponseWriter) bool {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "ANALYTICS_NOT_CONFIGURED", "analytics service not configured", nil)
		return false
	}
	return true
}

func writeRows(w http.ResponseWriter, rows any, err error) {
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "ANALYTICS_ERROR", err.Error(), nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": rows})
}

// Invoiced returns daily invoiced totals for the requested range.
func (h *Handler) Invoiced(w http.ResponseWriter, r *http.Request) {
	if !h.guard(w) {
		return
	}
	from, to, ok := h.invoicedBounds(w, r)
	if !ok {
		return
	}
	rows, err := h.Svc.InvoicedRange(r.Context(), from, to)
	writeRows(w, rows, err)
}

// invoicedBounds resolves the window: an explicit from/to pair wins, otherwise
// the last N days ending now. Errors are written to w.
func (h *Handler) invoicedBounds(w http.ResponseWriter, r *http.Request) (from, to time.Time, ok bool) {
	query := r.URL.Query()
	fromStr, toStr := query.Get("from"), query.Get("to")

	if fromStr != "" && toStr != "" {
		var err error
		if from, err = time.Parse(time.RFC3339, fromStr); err != nil {
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid from date", nil)
			return
		}
		if to, err = time.Parse(time.RFC3339, toStr); err != nil {
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid to date", nil)
			return
		}
	} else {
		days := h.Svc.DefaultRange
		if days <= 0 {
			days = 30
		}
		if parsed := common.AtoiDefault(query.Get("days"), days); parsed > 0 {
			days = parsed
		}
		to = h.Svc.now()
		from = to.AddDate(0, 0, -days)
	}

	if !from.Before(to) {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "from must be before to", nil)
		return
	}
	return from, to, true
}

// OrdersByStatus returns the current order status distribution.
func (h *Handler) OrdersByStatus(w http.ResponseWriter, r *http.Request) {
	if !h.guard(w) {
		return
	}
	rows, err := h.Svc.OrdersByStatus(r.Context())
	writeRows(w, rows, err)
}

// TopShops returns shops ranked by registered product cost.
func (h *Handler) TopShops(w http.ResponseWriter, r *http.Request) {
	if !h.guard(w) {
		return
	}
	q := r.URL.Query()
	rows, err := h.Svc.TopShops(r.Context(),
		common.AtoiDefault(q.Get("limit"), 10),
		common.AtoiDefault(q.Get("offset"), 0))
	writeRows(w, rows, err)
}

// Overview aggregates key metrics for the dashboard landing page.
func (h *Handler) Overview(w http.ResponseWriter, r *http.Request) {
	if !h.guard(w) {
		return
	}
	overview, err := h.Svc.Overview(r.Context())
	writeRows(w, overview, err)
}
