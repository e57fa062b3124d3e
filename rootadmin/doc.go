// Package rootadmin maintains the runtime allowlist of root-admin
// emails: the env-backed source of truth, case-insensitive membership
// checks, and hot reload when the env file changes on disk.
//
// The allowlist is authorization state, not identity state: the store
// never persists the root-admin role, and role resolution consults the
// live set on every request.
package rootadmin
