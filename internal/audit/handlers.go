package audit

import (
	"net/http"

	"github.com/envioex/backend-envioex/internal/common"
)

// Handler serves the admin audit trail.
type Handler struct {
	Store Store
}

// List returns audit entries newest-first with limit/offset paging.
func (h Handler) List(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, "AUDIT_NOT_CONFIGURED", "audit store not configured", nil)
		return
	}
	query := r.URL.Query()
	limit := common.AtoiDefault(query.Get("limit"), 50)
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := max(common.AtoiDefault(query.Get("offset"), 0), 0)

	rows, err := h.Store.ListAuditLogs(r.Context(), limit, offset)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "AUDIT_QUERY_FAILED", "unable to fetch audit logs", nil)
		return
	}
	common.JSON(w, http.StatusOK, rows)
}
