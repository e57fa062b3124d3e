// Package store is the durable control-plane state over SQLite:
// accounts, login challenges, trusted devices, the append-only audit
// log, events with per-account read state, and login history.
//
// Every operation is defined once and available both on [Store]
// (autocommit) and inside [Store.WithTx] on [Tx], so multi-row
// administrative actions commit or roll back as a unit.
package store
