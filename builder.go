package goAccess

import (
	"errors"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/vealkov/goAccess/internal/rate"
	"github.com/vealkov/goAccess/jwt"
	"github.com/vealkov/goAccess/monitoring"
	"github.com/vealkov/goAccess/password"
	"github.com/vealkov/goAccess/rootadmin"
	"github.com/vealkov/goAccess/store"
)

// Builder assembles an [Engine] from a validated [Config] and injected
// dependencies.
type Builder struct {
	config Config

	store     *store.Store
	redis     redis.UniversalClient
	sender    CodeSender
	auditSink AuditSink
	logger    *slog.Logger

	rootAdmins   []string
	rootEnvFile  string
	watchEnvFile bool

	querier monitoring.Querier

	built bool
}

// New returns a builder preloaded with the default configuration.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithStore injects the durable store. Required.
func (b *Builder) WithStore(s *store.Store) *Builder {
	b.store = s
	return b
}

// WithRedis injects the Redis client backing the rate limiter.
// Optional; without it rate limiting is disabled.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithCodeSender injects the out-of-band login-code delivery channel.
func (b *Builder) WithCodeSender(sender CodeSender) *Builder {
	b.sender = sender
	return b
}

// WithAuditSink injects the async observability tap consumer.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger injects the structured logger. Defaults to slog.Default.
func (b *Builder) WithLogger(log *slog.Logger) *Builder {
	b.logger = log
	return b
}

// WithRootAdmins seeds the root-admin allowlist.
func (b *Builder) WithRootAdmins(emails []string) *Builder {
	b.rootAdmins = emails
	return b
}

// WithRootAdminFile loads the allowlist from the env file at path,
// persists updates back to it, and hot-reloads on external edits when
// watch is true. Explicit WithRootAdmins entries are merged in.
func (b *Builder) WithRootAdminFile(path string, watch bool) *Builder {
	b.rootEnvFile = path
	b.watchEnvFile = watch
	return b
}

// WithMonitoringQuerier overrides the telemetry querier, primarily for
// tests. Without an override a Prometheus querier is built from the
// monitoring config.
func (b *Builder) WithMonitoringQuerier(q monitoring.Querier) *Builder {
	b.querier = q
	return b
}

// Build validates the configuration, wires every component, and starts
// the background loops.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.store == nil {
		return nil, errors.New("store required")
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}

	rootEmails := append([]string(nil), b.rootAdmins...)
	if b.rootEnvFile != "" {
		fromFile, err := rootadmin.LoadFile(b.rootEnvFile)
		if err != nil {
			return nil, err
		}
		rootEmails = append(rootEmails, fromFile...)
	}
	roots, err := rootadmin.New(rootEmails)
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:     cfg,
		store:      b.store,
		rootAdmins: roots,
		rootEnv:    b.rootEnvFile,
		log:        logger,
		metrics:    NewMetrics(cfg.Metrics),
		audit:      newAuditDispatcher(cfg.Audit, b.auditSink),
	}

	engine.sender = b.sender
	if engine.sender == nil {
		engine.sender = NoOpCodeSender{}
	}

	if b.redis != nil {
		engine.rateLimiter = rate.New(b.redis)
	}

	ph, err := password.NewArgon2(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}
	engine.passwordHash = ph

	jm, err := jwt.NewManager(jwt.Config{
		Secret:     cloneBytes(cfg.JWT.Secret),
		SessionTTL: cfg.JWT.SessionTTL,
		Issuer:     cfg.JWT.Issuer,
		Audience:   cfg.JWT.Audience,
		Leeway:     cfg.JWT.Leeway,
	})
	if err != nil {
		return nil, err
	}
	engine.jwtManager = jm

	if b.rootEnvFile != "" && b.watchEnvFile {
		watcher, err := rootadmin.Watch(roots, b.rootEnvFile, logger)
		if err != nil {
			return nil, err
		}
		engine.rootWatcher = watcher
	}

	if cfg.Monitoring.Enabled {
		querier := b.querier
		if querier == nil {
			pq, err := monitoring.NewPromQuerier(cfg.Monitoring.PrometheusURL, 0)
			if err != nil {
				engine.close()
				return nil, err
			}
			querier = pq
		}
		dcfg := monitoring.DefaultDetectorConfig()
		dcfg.Interval = cfg.Monitoring.Interval
		dcfg.Cooldown = cfg.Monitoring.Cooldown
		engine.monitorSettings = monitoring.DefaultSettings()
		engine.monitorCache = monitoring.NewCache(cfg.Monitoring.CacheTTL)
		engine.detector = monitoring.NewDetector(dcfg,
			cachedQuerier{cache: engine.monitorCache, next: querier},
			engine.monitorSettings, engine.emitAnomaly, logger)
	}

	b.built = true

	return engine, nil
}
