package middleware

import (
	"net/http"

	goAccess "github.com/vealkov/goAccess"
)

// RequirePermission returns middleware that rejects requests whose
// authenticated identity lacks the named permission. It must run after
// [Authenticate].
func RequirePermission(permission string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := IdentityFromContext(r.Context())
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			if !goAccess.HasPermission(identity.Role, permission) {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireRole returns middleware that rejects requests from identities
// below the given role. Role comparison is by privilege: viewer <
// editor < admin < root-admin.
func RequireRole(minimum goAccess.Role) func(http.Handler) http.Handler {
	rank := map[goAccess.Role]int{
		goAccess.RoleViewer:    0,
		goAccess.RoleEditor:    1,
		goAccess.RoleAdmin:     2,
		goAccess.RoleRootAdmin: 3,
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := IdentityFromContext(r.Context())
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			if rank[identity.Role] < rank[minimum] {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
