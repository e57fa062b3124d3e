// Package monitoring watches service telemetry for anomalies: it
// samples cumulative counters over PromQL, compares per-sweep deltas
// against runtime-mutable thresholds, and emits anomaly facts with a
// per-key cooldown. Query results are memoized in a short TTL cache.
package monitoring
