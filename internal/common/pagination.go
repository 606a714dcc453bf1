package common

import "net/http"

// maxPerPage caps the "limit" query parameter so a single list call cannot
// drag an unbounded result set out of Postgres.
const maxPerPage = 200

// Pagination is the metadata block attached to every list response.
type Pagination struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	TotalItems int `json:"total_items"`
}

// ParsePagination reads "page" and "limit" from the query string.
func ParsePagination(r *http.Request, defaultPerPage int) (page, perPage int) {
	query := r.URL.Query()
	page = max(AtoiDefault(query.Get("page"), 1), 1)
	perPage = AtoiDefault(query.Get("limit"), defaultPerPage)
	if perPage < 1 {
		perPage = defaultPerPage
	}
	return page, min(perPage, maxPerPage)
}
