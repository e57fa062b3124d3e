package monitoring

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Severity levels attached to anomalies.
const (
	SeverityWarning = "warning"
	SeverityDanger  = "danger"
)

// Anomaly keys.
const (
	KeyErrorRate     = "error_rate"
	KeyRequestSpike  = "request_spike"
	KeyLoginFailures = "login_failures"
)

// Anomaly is one detected condition.
type Anomaly struct {
	Key       string
	Severity  string
	Value     float64
	Threshold float64
	At        time.Time
}

// EmitFunc receives detected anomalies, typically to synthesize a
// monitoring.anomaly event.
type EmitFunc func(ctx context.Context, a Anomaly)

// DetectorConfig tunes the sweep loop.
type DetectorConfig struct {
	Interval time.Duration
	Cooldown time.Duration

	RequestsExpr      string
	ServerErrorsExpr  string
	LoginFailuresExpr string
}

// DefaultDetectorConfig returns the shipped sweep configuration.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		Interval:          time.Minute,
		Cooldown:          15 * time.Minute,
		RequestsExpr:      `sum(http_requests_total)`,
		ServerErrorsExpr:  `sum(http_requests_total{status=~"5.."})`,
		LoginFailuresExpr: `sum(login_attempts_total{result!="success"})`,
	}
}

// Detector periodically samples cumulative counters from the telemetry
// backend, computes per-sweep deltas, and emits anomalies when a delta
// crosses the configured thresholds. A per-key cooldown keeps a
// sustained condition from flooding the event center.
type Detector struct {
	cfg      DetectorConfig
	querier  Querier
	settings *Settings
	emit     EmitFunc
	log      *slog.Logger

	mu       sync.Mutex
	prev     map[string]float64
	lastFire map[string]time.Time

	done chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

// NewDetector wires a detector. emit must be non-nil; a nil logger
// falls back to slog.Default.
func NewDetector(cfg DetectorConfig, querier Querier, settings *Settings, emit EmitFunc, log *slog.Logger) *Detector {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 15 * time.Minute
	}
	if settings == nil {
		settings = DefaultSettings()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Detector{
		cfg:      cfg,
		querier:  querier,
		settings: settings,
		emit:     emit,
		log:      log,
		prev:     map[string]float64{},
		lastFire: map[string]time.Time{},
		done:     make(chan struct{}),
	}
}

// Start launches the sweep loop. The loop stops when ctx is cancelled
// or Close is called.
func (d *Detector) Start(ctx context.Context) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ticker := time.NewTicker(d.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				d.Sweep(ctx)
			case <-ctx.Done():
				return
			case <-d.done:
				return
			}
		}
	}()
}

// Close stops the loop and waits for it to exit.
func (d *Detector) Close() {
	if d == nil {
		return
	}
	d.once.Do(func() {
		close(d.done)
		d.wg.Wait()
	})
}

// Sweep runs one detection pass. Exposed for tests and manual triggers.
func (d *Detector) Sweep(ctx context.Context) {
	now := time.Now().UTC()

	requests, okReq := d.delta(ctx, KeyRequestSpike, d.cfg.RequestsExpr, now)
	serverErrors, okErr := d.delta(ctx, KeyErrorRate, d.cfg.ServerErrorsExpr, now)
	loginFailures, okLogin := d.delta(ctx, KeyLoginFailures, d.cfg.LoginFailuresExpr, now)

	if okReq {
		d.check(ctx, KeyRequestSpike, requests, d.settings.RequestSpike(), now)
	}
	if okReq && okErr && requests > 0 {
		d.check(ctx, KeyErrorRate, serverErrors/requests, d.settings.ErrorRate(), now)
	}
	if okLogin {
		d.check(ctx, KeyLoginFailures, loginFailures, d.settings.LoginFailures(), now)
	}
}

// delta samples the cumulative counter behind expr and returns the
// increase since the previous sweep. A decrease means the backend
// restarted; the sample becomes the new baseline and the sweep reports
// the post-reset value rather than a huge negative.
func (d *Detector) delta(ctx context.Context, key, expr string, now time.Time) (float64, bool) {
	value, err := d.querier.Query(ctx, expr, now)
	if err != nil {
		d.log.Warn("monitoring query failed", "key", key, "error", err)
		return 0, false
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	prev, seen := d.prev[key]
	d.prev[key] = value
	if !seen {
		return 0, false
	}
	if value < prev {
		return value, true
	}
	return value - prev, true
}

func (d *Detector) check(ctx context.Context, key string, value float64, t Thresholds, now time.Time) {
	severity := ""
	threshold := 0.0
	switch {
	case t.Crit > 0 && value >= t.Crit:
		severity, threshold = SeverityDanger, t.Crit
	case t.Warn > 0 && value >= t.Warn:
		severity, threshold = SeverityWarning, t.Warn
	default:
		return
	}

	d.mu.Lock()
	last, fired := d.lastFire[key]
	if fired && now.Sub(last) < d.cfg.Cooldown {
		d.mu.Unlock()
		return
	}
	d.lastFire[key] = now
	d.mu.Unlock()

	d.log.Warn("anomaly detected", "key", key, "severity", severity,
		"value", value, "threshold", threshold)
	if d.emit != nil {
		d.emit(ctx, Anomaly{Key: key, Severity: severity, Value: value, Threshold: threshold, At: now})
	}
}
