package goAccess

import "github.com/vealkov/goAccess/store"

// Permission names gate admin surfaces.
const (
	PermEventsView  = "events.view"
	PermAuditView   = "audit.view"
	PermUsersManage = "users.manage"
	PermRootManage  = "root_admins.manage"
)

var rolePermissions = map[Role][]string{
	RoleViewer: {},
	RoleEditor: {},
	RoleAdmin:  {PermEventsView, PermAuditView, PermUsersManage},
	RoleRootAdmin: {
		PermEventsView, PermAuditView, PermUsersManage, PermRootManage,
	},
}

// PermissionsByRole returns the permission names a role grants.
func PermissionsByRole(role Role) []string {
	perms := rolePermissions[role]
	out := make([]string, len(perms))
	copy(out, perms)
	return out
}

// HasPermission reports whether the role grants the named permission.
func HasPermission(role Role, permission string) bool {
	for _, p := range rolePermissions[role] {
		if p == permission {
			return true
		}
	}
	return false
}

// rootChecker answers allowlist membership. Satisfied by
// *rootadmin.Allowlist.
type rootChecker interface {
	Contains(email string) bool
}

// EffectiveRole derives the authorization role for an account against a
// root-admin snapshot. Root membership overrides every stored field.
// The result is never cached on the account: the allowlist can change
// at runtime, so callers resolve fresh on every authorization check.
func EffectiveRole(account *Account, roots rootChecker) Role {
	if account == nil {
		return RoleViewer
	}
	if roots != nil && roots.Contains(account.Email) {
		return RoleRootAdmin
	}
	if account.Role.Storable() {
		return account.Role
	}
	if account.IsAdmin {
		return RoleAdmin
	}
	return store.RoleViewer
}

// eligible reports whether the account may authenticate at all.
func eligible(account *Account) bool {
	return account != nil && account.IsApproved && !account.IsBlocked && !account.IsDeleted
}
