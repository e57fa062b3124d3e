package internaldefs

import (
	goAccess "github.com/vealkov/goAccess"
)

// CounterDef binds one engine counter to its exposition name.
type CounterDef struct {
	ID   goAccess.MetricID
	Name string
	Help string
}

// HistogramDef binds one engine histogram to its exposition name.
type HistogramDef struct {
	ID   goAccess.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in exposition order.
var CounterDefs = []CounterDef{
	{ID: goAccess.MetricLoginStart, Name: "goaccess_login_start_total", Help: "Login challenges issued."},
	{ID: goAccess.MetricLoginTrusted, Name: "goaccess_login_trusted_total", Help: "Trusted-device logins that bypassed the code challenge."},
	{ID: goAccess.MetricLoginRateLimited, Name: "goaccess_login_rate_limited_total", Help: "Rate-limited login attempts."},
	{ID: goAccess.MetricVerifySuccess, Name: "goaccess_verify_success_total", Help: "Successful login-code verifications."},
	{ID: goAccess.MetricVerifyFailure, Name: "goaccess_verify_failure_total", Help: "Failed login-code verifications."},
	{ID: goAccess.MetricVerifyExhausted, Name: "goaccess_verify_exhausted_total", Help: "Login challenges closed by the attempt cap."},
	{ID: goAccess.MetricCodeSent, Name: "goaccess_code_sent_total", Help: "Login codes delivered out of band."},
	{ID: goAccess.MetricCodeSendFailed, Name: "goaccess_code_send_failed_total", Help: "Login-code deliveries that failed."},
	{ID: goAccess.MetricSessionIssued, Name: "goaccess_session_issued_total", Help: "Session tokens minted."},
	{ID: goAccess.MetricSessionRejected, Name: "goaccess_session_rejected_total", Help: "Session token validations that failed."},
	{ID: goAccess.MetricDeviceIssued, Name: "goaccess_device_issued_total", Help: "Trusted devices issued."},
	{ID: goAccess.MetricDeviceRevoked, Name: "goaccess_device_revoked_total", Help: "Trusted devices revoked."},
	{ID: goAccess.MetricAccessRequested, Name: "goaccess_access_requested_total", Help: "New access requests."},
	{ID: goAccess.MetricBulkItemApplied, Name: "goaccess_bulk_item_applied_total", Help: "Bulk-action items applied."},
	{ID: goAccess.MetricBulkItemRejected, Name: "goaccess_bulk_item_rejected_total", Help: "Bulk-action items rejected."},
	{ID: goAccess.MetricAnomalyEmitted, Name: "goaccess_anomaly_emitted_total", Help: "Monitoring anomalies emitted."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: goAccess.MetricTokenVerifyLatency, Name: "goaccess_token_verify_latency_seconds", Help: "Session token validation latency histogram."},
}

// HistogramBounds are the upper bucket bounds, matching the engine's
// fixed histogram layout.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// NormalizeBuckets pads or truncates a raw bucket slice to the fixed layout.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts into the cumulative form
// the Prometheus exposition format expects.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
