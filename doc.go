// Package goAccess provides an administrative control plane:
// passwordless-after-first-factor login with emailed one-time codes,
// trusted-device sessions, role- and permission-gated administration,
// a bulk admin-action engine, an append-only audit trail with an event
// center, a hot-reloadable root-admin allowlist, and a background
// anomaly detector over Prometheus telemetry.
//
// The package is designed for concurrent server workloads: Engine
// methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Architecture boundaries
//
// goAccess is the public surface. It exposes [Engine], [Builder],
// [Config], and value types (LoginStartResult, VerifyResult, Identity,
// MetricsSnapshot, etc.). Persistence lives in store/, token handling
// in jwt/ and password/, the allowlist in rootadmin/, anomaly
// detection in monitoring/, and shared primitives under internal/.
//
// # What this package must NOT do
//
//   - Expose SQL handles, Redis clients, or hash internals in its
//     public API.
//   - Cache effective roles: the root-admin allowlist can change at
//     runtime, so authorization resolves fresh on every check.
//   - Store login codes or device tokens in plaintext; only keyed
//     hashes are persisted.
package goAccess
