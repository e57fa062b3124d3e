package goAccess

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"
)

// Config carries every engine tuning knob, grouped per concern.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	Secret     SecretConfig
	JWT        JWTConfig
	Challenge  ChallengeConfig
	Trust      TrustConfig
	RateLimit  RateLimitConfig
	Password   PasswordConfig
	Audit      AuditConfig
	Metrics    MetricsConfig
	Monitoring MonitoringConfig
	Dev        DevConfig
}

/*
====================================
SECRET CONFIG
====================================
*/

// SecretConfig holds the server secret keying challenge-code and
// device-token hashes. A database copy alone cannot replay either.
type SecretConfig struct {
	HashKey string
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig tunes session-token issuance.
type JWTConfig struct {
	Secret     []byte
	SessionTTL time.Duration
	Issuer     string
	Audience   string
	Leeway     time.Duration
}

/*
====================================
CHALLENGE CONFIG
====================================
*/

// ChallengeConfig tunes the emailed one-time code lifecycle.
type ChallengeConfig struct {
	TTL         time.Duration
	MaxAttempts int
	CodeDigits  int
}

/*
====================================
TRUST CONFIG
====================================
*/

// TrustConfig tunes trusted-device issuance.
type TrustConfig struct {
	StandardDays int
	ExtendedDays int
	// DisablePermanent downgrades the permanent policy to extended.
	DisablePermanent bool
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// RateLimitConfig holds the sliding-window budgets. Zero limits disable
// the corresponding check.
type RateLimitConfig struct {
	StartMaxAttempts  int
	StartWindow       time.Duration
	VerifyMaxAttempts int
	VerifyWindow      time.Duration
	PerIPMaxAttempts  int
	PerIPWindow       time.Duration
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig tunes Argon2id first-factor hashing.
type PasswordConfig struct {
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// AuditConfig tunes the async observability tap. The durable audit
// trail is always written and is not affected by these knobs.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig toggles in-process counters.
type MetricsConfig struct {
	Enabled bool
}

/*
====================================
MONITORING CONFIG
====================================
*/

// MonitoringConfig tunes the background anomaly detector.
type MonitoringConfig struct {
	Enabled       bool
	PrometheusURL string
	Interval      time.Duration
	Cooldown      time.Duration
	CacheTTL      time.Duration
}

// DevConfig holds development-only behavior.
type DevConfig struct {
	// EchoCodes surfaces the plaintext login code in the start result
	// when mail delivery fails. Never enable in production.
	EchoCodes bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the shipped defaults. Secrets are left empty
// and must be filled in before Build.
func DefaultConfig() Config {
	return defaultConfig()
}

// DemoConfig returns a configuration for demos and local development:
// random per-process secrets, metrics enabled, and login codes echoed
// in the start result when delivery fails. Never use in production.
func DemoConfig() Config {
	cfg := defaultConfig()
	cfg.Secret.HashKey = hex.EncodeToString(randomBytes(32))
	cfg.JWT.Secret = randomBytes(32)
	cfg.Metrics.Enabled = true
	cfg.Dev.EchoCodes = true
	return cfg
}

func randomBytes(n int) []byte {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return b
}

func defaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			SessionTTL: 12 * time.Hour,
			Issuer:     "goaccess",
			Leeway:     30 * time.Second,
		},
		Challenge: ChallengeConfig{
			TTL:         10 * time.Minute,
			MaxAttempts: 5,
			CodeDigits:  6,
		},
		Trust: TrustConfig{
			StandardDays: 30,
			ExtendedDays: 90,
		},
		RateLimit: RateLimitConfig{
			StartMaxAttempts:  10,
			StartWindow:       15 * time.Minute,
			VerifyMaxAttempts: 15,
			VerifyWindow:      15 * time.Minute,
			PerIPMaxAttempts:  30,
			PerIPWindow:       15 * time.Minute,
		},
		Password: PasswordConfig{
			Memory:      65536,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: false,
		},
		Monitoring: MonitoringConfig{
			Enabled:  false,
			Interval: time.Minute,
			Cooldown: 15 * time.Minute,
			CacheTTL: 30 * time.Second,
		},
	}
}

/*
====================================
VALIDATION
====================================
*/

// Validate rejects configurations the engine cannot run safely with.
func (c *Config) Validate() error {
	if c.Secret.HashKey == "" {
		return errors.New("Secret HashKey is required")
	}

	// JWT
	if len(c.JWT.Secret) < 32 {
		return errors.New("JWT Secret must be at least 32 bytes")
	}
	if c.JWT.SessionTTL <= 0 {
		return errors.New("JWT SessionTTL must be > 0")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be between 0 and 2m")
	}

	// Challenge
	if c.Challenge.TTL <= 0 {
		return errors.New("Challenge TTL must be > 0")
	}
	if c.Challenge.TTL > time.Hour {
		return errors.New("Challenge TTL must be <= 1h")
	}
	if c.Challenge.MaxAttempts <= 0 {
		return errors.New("Challenge MaxAttempts must be > 0")
	}
	if c.Challenge.CodeDigits < 6 || c.Challenge.CodeDigits > 10 {
		return errors.New("Challenge CodeDigits must be between 6 and 10")
	}

	// Trust
	if c.Trust.StandardDays <= 0 {
		return errors.New("Trust StandardDays must be > 0")
	}
	if c.Trust.ExtendedDays < c.Trust.StandardDays {
		return errors.New("Trust ExtendedDays must be >= StandardDays")
	}

	// Rate limits
	if c.RateLimit.StartMaxAttempts > 0 && c.RateLimit.StartWindow <= 0 {
		return errors.New("RateLimit StartWindow must be > 0 when StartMaxAttempts is set")
	}
	if c.RateLimit.VerifyMaxAttempts > 0 && c.RateLimit.VerifyWindow <= 0 {
		return errors.New("RateLimit VerifyWindow must be > 0 when VerifyMaxAttempts is set")
	}
	if c.RateLimit.PerIPMaxAttempts > 0 && c.RateLimit.PerIPWindow <= 0 {
		return errors.New("RateLimit PerIPWindow must be > 0 when PerIPMaxAttempts is set")
	}

	// Password
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}

	// Audit tap
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}

	// Monitoring
	if c.Monitoring.Enabled {
		if c.Monitoring.PrometheusURL == "" {
			return errors.New("Monitoring PrometheusURL is required when enabled")
		}
		if c.Monitoring.Interval <= 0 {
			return errors.New("Monitoring Interval must be > 0")
		}
		if c.Monitoring.Cooldown <= 0 {
			return errors.New("Monitoring Cooldown must be > 0")
		}
	}

	return nil
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.Secret = cloneBytes(cfg.JWT.Secret)
	return out
}
