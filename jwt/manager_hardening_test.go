package jwt

import (
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("session-signing-secret-0123456789")

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(Config{
		Secret:     testSecret,
		SessionTTL: time.Minute,
		Issuer:     "goaccess",
		Audience:   "admin",
		Leeway:     30 * time.Second,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m
}

func TestSessionRoundTrip(t *testing.T) {
	m := newTestManager(t)

	token, err := m.CreateSession("alice@example.com", "admin", 3)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	claims, err := m.ParseSession(token)
	if err != nil {
		t.Fatalf("parse session: %v", err)
	}
	if claims.Subject != "alice@example.com" {
		t.Fatalf("subject = %q", claims.Subject)
	}
	if claims.Role != "admin" {
		t.Fatalf("role = %q", claims.Role)
	}
	if claims.TokenVersion != 3 {
		t.Fatalf("token version = %d", claims.TokenVersion)
	}
}

func TestParseSessionRejectsWrongAlgorithm(t *testing.T) {
	m := newTestManager(t)

	claims := SessionClaims{RegisteredClaims: gjwt.RegisteredClaims{
		Subject:   "alice@example.com",
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
	}}
	tok := gjwt.NewWithClaims(gjwt.SigningMethodNone, claims)
	token, err := tok.SignedString(gjwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	if _, err := m.ParseSession(token); err == nil {
		t.Fatal("expected alg=none to be rejected")
	}
}

func TestParseSessionRejectsWrongSecret(t *testing.T) {
	m := newTestManager(t)

	other, err := NewManager(Config{Secret: []byte("a-different-secret-entirely-here"), SessionTTL: time.Minute})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	token, err := other.CreateSession("alice@example.com", "viewer", 0)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	if _, err := m.ParseSession(token); err == nil {
		t.Fatal("expected signature mismatch to be rejected")
	}
}

func TestParseSessionIssuerAudienceAndLeeway(t *testing.T) {
	m := newTestManager(t)

	sign := func(c SessionClaims) string {
		t.Helper()
		tok := gjwt.NewWithClaims(gjwt.SigningMethodHS256, c)
		s, err := tok.SignedString(testSecret)
		if err != nil {
			t.Fatalf("sign token: %v", err)
		}
		return s
	}

	badIssuer := sign(SessionClaims{RegisteredClaims: gjwt.RegisteredClaims{
		Subject:   "a@example.com",
		Issuer:    "other",
		Audience:  gjwt.ClaimStrings{"admin"},
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
	}})
	if _, err := m.ParseSession(badIssuer); err == nil {
		t.Fatal("expected wrong issuer to fail")
	}

	badAudience := sign(SessionClaims{RegisteredClaims: gjwt.RegisteredClaims{
		Subject:   "a@example.com",
		Issuer:    "goaccess",
		Audience:  gjwt.ClaimStrings{"other-app"},
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
	}})
	if _, err := m.ParseSession(badAudience); err == nil {
		t.Fatal("expected wrong audience to fail")
	}

	withinLeeway := sign(SessionClaims{RegisteredClaims: gjwt.RegisteredClaims{
		Subject:   "a@example.com",
		Issuer:    "goaccess",
		Audience:  gjwt.ClaimStrings{"admin"},
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(-15 * time.Second)),
	}})
	if _, err := m.ParseSession(withinLeeway); err != nil {
		t.Fatalf("expected token within leeway to pass: %v", err)
	}

	expired := sign(SessionClaims{RegisteredClaims: gjwt.RegisteredClaims{
		Subject:   "a@example.com",
		Issuer:    "goaccess",
		Audience:  gjwt.ClaimStrings{"admin"},
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(-2 * time.Minute)),
	}})
	if _, err := m.ParseSession(expired); err == nil {
		t.Fatal("expected expired token to fail")
	}
}

func TestParseSessionRequiresSubject(t *testing.T) {
	m := newTestManager(t)

	tok := gjwt.NewWithClaims(gjwt.SigningMethodHS256, SessionClaims{RegisteredClaims: gjwt.RegisteredClaims{
		Issuer:    "goaccess",
		Audience:  gjwt.ClaimStrings{"admin"},
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
	}})
	token, err := tok.SignedString(testSecret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	if _, err := m.ParseSession(token); err == nil {
		t.Fatal("expected missing subject to fail")
	}
}

func TestNewManagerValidation(t *testing.T) {
	if _, err := NewManager(Config{SessionTTL: time.Minute}); err == nil {
		t.Fatal("expected missing secret to fail")
	}
	if _, err := NewManager(Config{Secret: testSecret}); err == nil {
		t.Fatal("expected zero TTL to fail")
	}
	if _, err := NewManager(Config{Secret: testSecret, SessionTTL: time.Minute, Leeway: 5 * time.Minute}); err == nil {
		t.Fatal("expected oversized leeway to fail")
	}
}
