// Package internal contains helper utilities that are intentionally
// private to goAccess: secure random generation for login codes and
// device tokens, and keyed hashing of both.
//
// # Sub-packages
//
//   - audit — async event dispatch (Dispatcher + Sink implementations)
//   - rate — core Redis-backed rate limit primitives
//
// # What this package must NOT do
//
//   - Export types that appear in the public goAccess API.
//   - Be imported by any package outside the goAccess module.
package internal
