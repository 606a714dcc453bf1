package auth

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/envioex/backend-envioex/internal/common"
)

// Handler exposes HTTP handlers for authentication and account endpoints.
// Access tokens travel in the response body; refresh tokens live in an
// HTTP-only cookie.
type Handler struct {
	Service               *Service
	Mailer                common.EmailSender
	PublicBaseURL         string
	RefreshCookieName     string
	RefreshCookieDomain   string
	RefreshCookieSecure   bool
	RefreshCookieSameSite http.SameSite
}

// CSRFCookieName carries the double-submit token checked by security.CSRF on
// cookie-authenticated endpoints.
const CSRFCookieName = "X-CSRF-Token"

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type forgotRequest struct {
	Email string `json:"email"`
}

type resetRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

// ready rejects requests when the handler was wired without a service.
func (h *Handler) ready(w http.ResponseWriter) bool {
	if h.Service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "auth service not configured", nil)
		return false
	}
	return true
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request payload", nil)
		return false
	}
	return true
}

// Register handles POST /api/v1/auth/register.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !h.ready(w) || !decode(w, r, &req) {
		return
	}
	user, err := h.Service.Register(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": user})
}

// Login handles POST /api/v1/auth/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !h.ready(w) || !decode(w, r, &req) {
		return
	}
	result, err := h.Service.Login(r.Context(), req.Email, req.Password, r.UserAgent(), common.ClientIP(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.setRefreshCookie(w, result.RefreshToken, result.RefreshExpiry)
	common.JSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{
			"user":                 result.User,
			"accessToken":          result.AccessToken,
			"accessTokenExpiresAt": result.AccessExpiry,
		},
	})
}

// Refresh handles POST /api/v1/auth/refresh.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	refreshToken := h.refreshTokenFromRequest(r)
	if refreshToken == "" {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing refresh token", nil)
		return
	}
	result, err := h.Service.Refresh(r.Context(), refreshToken)
	if err != nil {
		h.clearRefreshCookie(w)
		h.writeError(w, err)
		return
	}
	h.setRefreshCookie(w, result.RefreshToken, result.RefreshExpiry)
	common.JSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{
			"accessToken":          result.AccessToken,
			"accessTokenExpiresAt": result.AccessExpiry,
		},
	})
}

// Logout handles POST /api/v1/auth/logout. Logout never fails: an unknown or
// already-revoked token still clears the cookies.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	if refreshToken := h.refreshTokenFromRequest(r); refreshToken != "" {
		_ = h.Service.Logout(r.Context(), refreshToken)
	}
	h.clearRefreshCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

// Me handles GET /api/v1/auth/me.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	userID, ok := common.UserID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid token", nil)
		return
	}
	user, err := h.Service.Me(r.Context(), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": user})
}

// Forgot handles POST /api/v1/auth/password/forgot. The response is always
// 204 so callers cannot discover which emails exist.
func (h *Handler) Forgot(w http.ResponseWriter, r *http.Request) {
	var req forgotRequest
	if !h.ready(w) || !decode(w, r, &req) {
		return
	}
	if err := h.Service.Forgot(r.Context(), req.Email, h.PublicBaseURL, h.Mailer); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Reset handles POST /api/v1/auth/password/reset.
func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if !h.ready(w) || !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Token) == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "token is required", nil)
		return
	}
	if err := h.Service.Reset(r.Context(), req.Token, req.NewPassword); err != nil {
		h.writeError(w, err)
		return
	}
	h.clearRefreshCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var appErr *common.AppError
	if !errors.As(err, &appErr) {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
		return
	}
	status := appErr.HTTPStatus
	if status == 0 {
		status = http.StatusInternalServerError
	}
	common.JSONError(w, status,
		firstNonEmpty(appErr.Code, "INTERNAL"),
		firstNonEmpty(appErr.Message, "internal error"),
		appErr.Details)
}

// refreshCookie builds the two cookies every session mutation writes: the
// HTTP-only refresh token and the frontend-readable CSRF twin.
func (h *Handler) refreshCookie(name, value string, httpOnly bool) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Domain:   h.RefreshCookieDomain,
		Path:     "/",
		HttpOnly: httpOnly,
		Secure:   h.RefreshCookieSecure,
		SameSite: h.RefreshCookieSameSite,
	}
}

func (h *Handler) setRefreshCookie(w http.ResponseWriter, token string, expiresAt time.Time) {
	if h.RefreshCookieName == "" {
		return
	}
	refresh := h.refreshCookie(h.RefreshCookieName, token, true)
	refresh.Expires = expiresAt
	http.SetCookie(w, refresh)

	// Readable by the frontend so it can echo the value back in the header.
	csrf := h.refreshCookie(CSRFCookieName, newCSRFToken(), false)
	csrf.Expires = expiresAt
	http.SetCookie(w, csrf)
}

func (h *Handler) clearRefreshCookie(w http.ResponseWriter) {
	if h.RefreshCookieName == "" {
		return
	}
	for _, cookie := range []*http.Cookie{
		h.refreshCookie(h.RefreshCookieName, "", true),
		h.refreshCookie(CSRFCookieName, "", false),
	} {
		cookie.MaxAge = -1
		http.SetCookie(w, cookie)
	}
}

func (h *Handler) refreshTokenFromRequest(r *http.Request) string {
	if h.RefreshCookieName == "" {
		return ""
	}
	cookie, err := r.Cookie(h.RefreshCookieName)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(cookie.Value)
}

func newCSRFToken() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return ""
	}
	return hex.EncodeToString(buf)
}
