// Package prometheus provides Prometheus collectors for goAccess metrics.
//
// [NewPrometheusExporter] accepts a [goAccess.Engine] and exposes an [http.Handler]
// that renders all goAccess counters and histograms in Prometheus text exposition
// format. Counter names are prefixed goaccess_*_total; the single histogram is
// goaccess_token_verify_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry; callers mount the Handler.
//   - Mutate engine state.
package prometheus
