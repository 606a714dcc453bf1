package security

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"
)

func serveWithHeaders(t *testing.T, h Headers, tlsConn bool) http.Header {
	t.Helper()
	handler := h.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(http.MethodGet, "https://envioex.test/", nil)
	if tlsConn {
		req.TLS = &tls.ConnectionState{}
	} else {
		// httptest.NewRequest populates TLS for https URLs; clear it so the
		// request is actually plaintext.
		req.TLS = nil
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr.Result().Header
}

func TestHeadersEnabled(t *testing.T) {
	headers := serveWithHeaders(t, Headers{Enable: true, EnableHSTS: true, HSTSIncludeSubdomains: true}, true)
	if got := headers.Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("expected nosniff, got %q", got)
	}
	if got := headers.Get("X-Frame-Options"); got != "DENY" {
		t.Fatalf("expected DENY, got %q", got)
	}
	if got := headers.Get("Strict-Transport-Security"); got != "max-age=31536000; includeSubDomains" {
		t.Fatalf("unexpected hsts value %q", got)
	}
}

func TestHeadersNoHSTSWithoutTLS(t *testing.T) {
	headers := serveWithHeaders(t, Headers{Enable: true, EnableHSTS: true}, false)
	if headers.Get("Strict-Transport-Security") != "" {
		t.Fatal("hsts must not be set on plaintext responses")
	}
}

func TestHeadersDisabled(t *testing.T) {
	headers := serveWithHeaders(t, Headers{Enable: false, EnableHSTS: true}, true)
	if headers.Get("X-Content-Type-Options") != "" {
		t.Fatal("expected no security headers when disabled")
	}
}
