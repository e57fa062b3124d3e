package goAccess

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/vealkov/goAccess/internal/rate"
	"github.com/vealkov/goAccess/jwt"
	"github.com/vealkov/goAccess/monitoring"
	"github.com/vealkov/goAccess/password"
	"github.com/vealkov/goAccess/rootadmin"
	"github.com/vealkov/goAccess/store"
)

// Engine is the control-plane facade: login, trusted devices, session
// validation, admin bulk actions, the event center, and the audit trail
// all go through it.
//
// Engine instances are intended to be configured during initialization
// and then treated as immutable unless documented otherwise.
type Engine struct {
	config       Config
	store        *store.Store
	rateLimiter  *rate.Limiter
	passwordHash *password.Argon2
	jwtManager   *jwt.Manager
	sender       CodeSender

	rootAdmins  *rootadmin.Allowlist
	rootWatcher *rootadmin.Watcher
	rootEnv     string

	detector        *monitoring.Detector
	monitorSettings *monitoring.Settings
	monitorCache    *monitoring.Cache

	audit   *auditDispatcher
	metrics *Metrics
	log     *slog.Logger
}

// Start launches the background monitoring loop, if configured. Safe to
// call when monitoring is disabled.
func (e *Engine) Start(ctx context.Context) {
	if e == nil || e.detector == nil {
		return
	}
	e.detector.Start(ctx)
}

// Close stops background loops and drains the audit tap.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.close()
}

func (e *Engine) close() {
	if e.detector != nil {
		e.detector.Close()
	}
	if e.rootWatcher != nil {
		if err := e.rootWatcher.Close(); err != nil {
			e.log.Warn("root admin watcher close", "error", err)
		}
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports how many tap events were dropped because the
// buffer was full. The durable audit trail never drops rows.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a snapshot of the in-process counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil {
		return MetricsSnapshot{}
	}
	return e.metrics.Snapshot()
}

// MonitoringSettings exposes the runtime-tunable anomaly thresholds.
// Nil when monitoring is disabled.
func (e *Engine) MonitoringSettings() *monitoring.Settings {
	if e == nil {
		return nil
	}
	return e.monitorSettings
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) metricObserve(id MetricID, d time.Duration) {
	if e == nil {
		return
	}
	e.metrics.Observe(id, d)
}

// emitTap hands an event to the async observability tap. Never blocks
// the caller beyond the configured buffering policy.
func (e *Engine) emitTap(ctx context.Context, event AuditEvent) {
	if e == nil || e.audit == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.CorrelationID == "" {
		event.CorrelationID = correlationIDFromContext(ctx)
	}
	e.audit.Emit(ctx, event)
}

// cachedQuerier wraps a monitoring querier with the short-lived sample
// cache so repeated sweeps within the TTL reuse one backend call.
type cachedQuerier struct {
	cache *monitoring.Cache
	next  monitoring.Querier
}

func (c cachedQuerier) Query(ctx context.Context, expr string, at time.Time) (float64, error) {
	if v, ok := c.cache.Get(expr, at); ok {
		return v, nil
	}
	v, err := c.next.Query(ctx, expr, at)
	if err != nil {
		return 0, err
	}
	c.cache.Put(expr, v, at)
	return v, nil
}

var anomalyTitles = map[string]string{
	monitoring.KeyErrorRate:     "Elevated server error rate",
	monitoring.KeyRequestSpike:  "Request volume spike",
	monitoring.KeyLoginFailures: "Login failure burst",
}

// emitAnomaly persists a detector finding as a monitoring event so it
// surfaces in the event center.
func (e *Engine) emitAnomaly(ctx context.Context, a monitoring.Anomaly) {
	title := anomalyTitles[a.Key]
	if title == "" {
		title = "Monitoring anomaly: " + a.Key
	}
	_, err := e.store.InsertEvent(ctx, &store.Event{
		Type:     "monitoring.anomaly",
		Channel:  store.ChannelNotification,
		Severity: a.Severity,
		Title:    title,
		Body: fmt.Sprintf("%s reached %.2f (threshold %.2f) in the last sweep.",
			a.Key, a.Value, a.Threshold),
		Metadata: map[string]any{
			"key":       a.Key,
			"value":     a.Value,
			"threshold": a.Threshold,
		},
	})
	if err != nil {
		e.log.Error("persist anomaly event", "key", a.Key, "error", err)
		return
	}
	e.metricInc(MetricAnomalyEmitted)
	e.log.Warn("monitoring anomaly",
		"key", a.Key, "severity", a.Severity, "value", a.Value)
}
