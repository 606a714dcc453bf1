package auth

import (
	"net/http"
	"strings"
	"testing"

	"github.com/envioex/backend-envioex/internal/common"
)

func TestForgotResetFlow(t *testing.T) {
	store := newFakeStore()
	mailer := &common.InMemoryEmail{}
	seedUser(t, store, "Ana Castillo", "ana@envioex.example", "hunter2!!")

	handler := &Handler{
		Service:               newTestService(t, store),
		Mailer:                mailer,
		PublicBaseURL:         "https://dashboard.envioex.example",
		RefreshCookieName:     "rt",
		RefreshCookieSameSite: http.SameSiteLaxMode,
	}

	// Open a session that must be revoked once the password is reset.
	loginRes := callHandler(t, handler.Login, "/api/v1/auth/login",
		`{"email":"ana@envioex.example","password":"hunter2!!"}`)
	if loginRes.StatusCode != http.StatusOK {
		t.Fatalf("unexpected login status: %d", loginRes.StatusCode)
	}
	_ = loginRes.Body.Close()
	if len(store.sessionsByToken) == 0 {
		t.Fatal("expected session created during login")
	}

	forgotRes := callHandler(t, handler.Forgot, "/api/v1/auth/password/forgot",
		`{"email":"ana@envioex.example"}`)
	if forgotRes.StatusCode != http.StatusNoContent {
		t.Fatalf("unexpected forgot status: %d", forgotRes.StatusCode)
	}
	_ = forgotRes.Body.Close()
	if len(mailer.Outbox) != 1 {
		t.Fatalf("expected email sent, got %d", len(mailer.Outbox))
	}
	token := extractTokenFromEmail(mailer.Outbox[0].HTML)
	if token == "" {
		t.Fatal("expected reset token in email body")
	}

	resetBody := `{"token":"` + token + `","newPassword":"newPassw0rd!"}`
	resetRes := callHandler(t, handler.Reset, "/api/v1/auth/password/reset", resetBody)
	if resetRes.StatusCode != http.StatusNoContent {
		t.Fatalf("unexpected reset status: %d", resetRes.StatusCode)
	}
	_ = resetRes.Body.Close()

	if len(store.resetsByToken) != 0 {
		t.Fatal("expected password reset entries cleared")
	}
	if len(store.sessionsByToken) != 0 {
		t.Fatal("expected sessions revoked after reset")
	}

	// The consumed token cannot be used a second time.
	reuseRes := callHandler(t, handler.Reset, "/api/v1/auth/password/reset", resetBody)
	if reuseRes.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected bad request on token reuse, got %d", reuseRes.StatusCode)
	}
	_ = reuseRes.Body.Close()

	newLoginRes := callHandler(t, handler.Login, "/api/v1/auth/login",
		`{"email":"ana@envioex.example","password":"newPassw0rd!"}`)
	if newLoginRes.StatusCode != http.StatusOK {
		t.Fatalf("expected successful login with new password, got %d", newLoginRes.StatusCode)
	}
	_ = newLoginRes.Body.Close()
}

func TestForgotUnknownEmailStaysSilent(t *testing.T) {
	store := newFakeStore()
	mailer := &common.InMemoryEmail{}
	handler := &Handler{
		Service:       newTestService(t, store),
		Mailer:        mailer,
		PublicBaseURL: "https://dashboard.envioex.example",
	}

	res := callHandler(t, handler.Forgot, "/api/v1/auth/password/forgot",
		`{"email":"nobody@envioex.example"}`)
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("unexpected forgot status: %d", res.StatusCode)
	}
	_ = res.Body.Close()
	if len(mailer.Outbox) != 0 {
		t.Fatalf("expected no email for unknown address, got %d", len(mailer.Outbox))
	}
}

func extractTokenFromEmail(body string) string {
	_, after, found := strings.Cut(body, "token=")
	if !found {
		return ""
	}
	token := after
	for _, stop := range []string{"&", " ", "\""} {
		if i := strings.Index(token, stop); i >= 0 {
			token = token[:i]
		}
	}
	return strings.TrimSpace(token)
}
