package jwt

import (
	"testing"
	"time"
)

// FuzzParseSession exercises the token parser with arbitrary strings.
// Goal: no panics; invalid inputs must be rejected with errors.
func FuzzParseSession(f *testing.F) {
	mgr, err := NewManager(Config{
		Secret:     []byte("fuzz-session-secret-0123456789ab"),
		SessionTTL: 5 * time.Minute,
		Issuer:     "fuzz-test",
		Leeway:     30 * time.Second,
	})
	if err != nil {
		f.Fatal(err)
	}

	validToken, err := mgr.CreateSession("fuzz@example.com", "viewer", 1)
	if err != nil {
		f.Fatal(err)
	}

	f.Add(validToken)
	f.Add("")
	f.Add("not.a.jwt")
	f.Add("eyJhbGciOiJIUzI1NiJ9.eyJzdWIiOiJ0ZXN0In0.invalid")
	f.Add("eyJhbGciOiJub25lIn0.eyJzdWIiOiJ0ZXN0In0.")

	f.Fuzz(func(t *testing.T, input string) {
		claims, err := mgr.ParseSession(input)
		if err != nil {
			return
		}
		if claims == nil {
			t.Fatal("ParseSession returned nil claims without error")
		}
	})
}
