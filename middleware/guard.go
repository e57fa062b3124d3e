package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"

	goAccess "github.com/vealkov/goAccess"
)

// correlationHeader carries the request correlation id. Inbound values
// are honored so callers can trace across services; otherwise one is
// generated per request. Every response echoes it.
const correlationHeader = "X-Correlation-ID"

type identityContextKey struct{}

// IdentityFromContext returns the authenticated caller attached by
// [Authenticate].
func IdentityFromContext(ctx context.Context) (*goAccess.Identity, bool) {
	id, ok := ctx.Value(identityContextKey{}).(*goAccess.Identity)
	return id, ok
}

// Authenticate returns middleware that validates the bearer session
// token, attaches the resulting [goAccess.Identity] to the request
// context, and propagates client IP, User-Agent, and a correlation id
// for audit attribution. Requests without a valid token are rejected
// with the status the engine error maps to; the rejection still
// carries the correlation header.
func Authenticate(engine *goAccess.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := withRequestAttribution(w, r)

			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			identity, err := engine.ValidateToken(ctx, token)
			if err != nil {
				http.Error(w, goAccess.CodeForError(err), goAccess.HTTPStatusForError(err))
				return
			}

			ctx = context.WithValue(ctx, identityContextKey{}, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func withRequestAttribution(w http.ResponseWriter, r *http.Request) context.Context {
	ctx := goAccess.WithUserAgent(r.Context(), r.UserAgent())

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	ctx = goAccess.WithClientIP(ctx, host)

	cid := r.Header.Get(correlationHeader)
	if cid == "" {
		cid = uuid.NewString()
	}
	w.Header().Set(correlationHeader, cid)
	return goAccess.WithCorrelationID(ctx, cid)
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}
