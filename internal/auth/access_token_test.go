package auth

import (
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

func frozenService(t *testing.T, at time.Time) *Service {
	t.Helper()
	svc := newTestService(t, newFakeStore())
	svc.WithNow(func() time.Time { return at })
	return svc
}

func TestParseAccessTokenRoundTrip(t *testing.T) {
	svc := frozenService(t, time.Now())

	token, _, err := svc.signAccessToken("admin-7f2b")
	if err != nil {
		t.Fatalf("sign access token: %v", err)
	}
	subject, err := svc.ParseAccessToken(token)
	if err != nil {
		t.Fatalf("parse access token: %v", err)
	}
	if subject != "admin-7f2b" {
		t.Fatalf("unexpected subject: %s", subject)
	}
}

func TestParseAccessTokenRejectsAlgorithmMismatch(t *testing.T) {
	fixed := time.Now()
	svc := frozenService(t, fixed)

	// Identical claims, but signed HS384 instead of the pinned HS256.
	built, err := jwt.NewBuilder().
		Subject("admin-7f2b").
		Issuer(svc.issuer).
		Audience([]string{svc.audience}).
		IssuedAt(fixed).
		NotBefore(fixed.Add(-svc.clockSkew)).
		Expiration(fixed.Add(svc.accessTTL)).
		Build()
	if err != nil {
		t.Fatalf("build token: %v", err)
	}
	signed, err := jwt.Sign(built, jwt.WithKey(jwa.HS384, svc.secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	if _, err := svc.ParseAccessToken(string(signed)); err == nil {
		t.Fatal("expected algorithm mismatch error")
	}
}

func TestParseAccessTokenRejectsExpired(t *testing.T) {
	svc := frozenService(t, time.Now().Add(-2*time.Hour))

	token, _, err := svc.signAccessToken("admin-7f2b")
	if err != nil {
		t.Fatalf("sign access token: %v", err)
	}

	svc.WithNow(time.Now)
	if _, err := svc.ParseAccessToken(token); err == nil {
		t.Fatal("expected expiry error")
	}
}
