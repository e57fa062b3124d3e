// Package middleware exposes HTTP adapters over goAccess.Engine
// authentication and authorization.
//
// # Guards
//
//   - [Authenticate] — validates the bearer session token and injects
//     the resulting Identity into the request context.
//   - [RequirePermission] — gates a route on one permission name.
//   - [RequireRole] — gates a route on a minimum role.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does NOT
// implement authentication logic itself; all decisions are delegated to
// Engine.ValidateToken and the role/permission catalog.
//
// # What this package must NOT do
//
//   - Parse or create session tokens directly (delegates to Engine).
//   - Touch the store or Redis (Engine handles I/O).
//   - Invent authorization rules beyond the engine's catalog.
package middleware
