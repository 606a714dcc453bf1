package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/envioex/backend-envioex/internal/common"
)

var errNoToken = errors.New("auth: token missing")

// Middleware resolves the access token on incoming requests. Tokens arrive as
// a bearer header from API clients or, when AccessCookie is set, from the
// browser session cookie.
type Middleware struct {
	Service      *Service
	AccessCookie string
}

// Authenticate is the soft variant: a valid token attaches the user to the
// request context, anything else passes the request through anonymously.
func (m Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if userID, err := m.identify(r); err == nil {
			r = r.WithContext(common.WithUserID(r.Context(), userID))
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAuth rejects the request with 401 unless a valid token is present.
func (m Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := m.identify(r)
		if err != nil {
			writeUnauthorized(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(common.WithUserID(r.Context(), userID)))
	})
}

func (m Middleware) identify(r *http.Request) (string, error) {
	if m.Service == nil {
		return "", errors.New("auth: service not configured")
	}
	token := m.tokenFrom(r)
	if token == "" {
		return "", errNoToken
	}
	return m.Service.ParseAccessToken(token)
}

func (m Middleware) tokenFrom(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	if m.AccessCookie == "" {
		return ""
	}
	cookie, err := r.Cookie(m.AccessCookie)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(cookie.Value)
}

func writeUnauthorized(w http.ResponseWriter, err error) {
	var appErr *common.AppError
	if errors.As(err, &appErr) && !errors.Is(err, errNoToken) {
		status := appErr.HTTPStatus
		if status == 0 {
			status = http.StatusUnauthorized
		}
		common.JSONError(w, status, appErr.Code, appErr.Message, appErr.Details)
		return
	}
	common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid token", nil)
}
