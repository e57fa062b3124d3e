// Package rate provides the Redis-backed sliding-window limiter that
// throttles login-code issuance and verification.
//
// # Window semantics
//
// Attempt facts live in one sorted set per (identity, action), scored
// by unix nanoseconds. Check counts members inside the window; Record
// appends a member unconditionally, prunes stale ones, and refreshes
// the key TTL. Keys are prefixed access:rl:<action>:<identity>.
//
// # What this package must NOT do
//
//   - Decide which identities or actions get which budgets (the engine
//     config owns the rules).
//   - Be imported outside the goAccess module.
package rate
