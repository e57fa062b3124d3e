package store

import (
	"strings"
	"time"
)

// Role is the stored role of an account. The root-admin tier is never
// stored; it is derived from the runtime allowlist at authorization time.
type Role string

const (
	// RoleViewer is the default role for newly requested accounts.
	RoleViewer Role = "viewer"
	// RoleEditor grants profile editing and run management in consuming UIs.
	RoleEditor Role = "editor"
	// RoleAdmin grants user management and audit access.
	RoleAdmin Role = "admin"
	// RoleRootAdmin is derived from the allowlist and never persisted.
	RoleRootAdmin Role = "root-admin"
)

// ParseRole normalizes a stored role value. Unknown values map to viewer.
func ParseRole(value string) Role {
	switch Role(strings.ToLower(strings.TrimSpace(value))) {
	case RoleViewer:
		return RoleViewer
	case RoleEditor:
		return RoleEditor
	case RoleAdmin:
		return RoleAdmin
	case RoleRootAdmin:
		return RoleRootAdmin
	default:
		return RoleViewer
	}
}

// Storable reports whether the role may be written to an account row.
func (r Role) Storable() bool {
	switch r {
	case RoleViewer, RoleEditor, RoleAdmin:
		return true
	default:
		return false
	}
}

// TrustPolicy controls trusted-device issuance for an account.
type TrustPolicy string

const (
	// TrustStrict requires a login code on every login; no devices are issued.
	TrustStrict TrustPolicy = "strict"
	// TrustStandard issues devices valid for 30 days.
	TrustStandard TrustPolicy = "standard"
	// TrustExtended issues devices valid for 90 days.
	TrustExtended TrustPolicy = "extended"
	// TrustPermanent issues devices without expiry.
	TrustPermanent TrustPolicy = "permanent"
)

// ParseTrustPolicy normalizes a stored trust policy. Unknown values map
// to standard.
func ParseTrustPolicy(value string) TrustPolicy {
	switch TrustPolicy(strings.ToLower(strings.TrimSpace(value))) {
	case TrustStrict:
		return TrustStrict
	case TrustStandard:
		return TrustStandard
	case TrustExtended:
		return TrustExtended
	case TrustPermanent:
		return TrustPermanent
	default:
		return TrustStandard
	}
}

// Valid reports whether the trust policy is a member of the closed catalog.
func (p TrustPolicy) Valid() bool {
	switch p {
	case TrustStrict, TrustStandard, TrustExtended, TrustPermanent:
		return true
	default:
		return false
	}
}

// Account is the credential-store row for one identity.
//
// Invariants: Email is unique case-insensitively; a deleted account is
// always blocked and unapproved; TokenVersion only ever increases.
type Account struct {
	ID           int64
	Email        string
	PasswordHash string
	Role         Role
	TrustPolicy  TrustPolicy
	IsAdmin      bool // legacy flag, superseded by Role but still honored
	IsApproved   bool
	IsBlocked    bool
	IsDeleted    bool
	TokenVersion int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Challenge is a single-use emailed login code. Only the keyed hash of
// the code is persisted.
type Challenge struct {
	ID        string
	AccountID int64
	CodeHash  string
	ExpiresAt time.Time
	UsedAt    *time.Time
	Attempts  int
	CreatedAt time.Time
}

// TrustedDevice is a remembered browser/device. Only the keyed hash of
// the bearer token is persisted; the plaintext is returned once at issuance.
type TrustedDevice struct {
	ID         string
	AccountID  int64
	TokenHash  string
	Policy     TrustPolicy
	CreatedAt  time.Time
	ExpiresAt  *time.Time // nil = permanent
	LastUsedAt *time.Time
	RevokedAt  *time.Time // nil = active
}

// Active reports whether the device may authenticate at the given instant.
func (d *TrustedDevice) Active(now time.Time) bool {
	if d == nil || d.RevokedAt != nil {
		return false
	}
	if d.ExpiresAt != nil && !now.Before(*d.ExpiresAt) {
		return false
	}
	return true
}

// AuditRecord is one append-only administrative action entry. Actor and
// target references survive account hard-deletion as NULLs.
type AuditRecord struct {
	ID              int64
	ActorAccountID  *int64 // nil = system
	TargetAccountID *int64
	Action          string
	Metadata        map[string]any
	IP              string
	UserAgent       string
	CreatedAt       time.Time
}

// Event channels and severities.
const (
	ChannelNotification = "notification"
	ChannelAction       = "action"

	SeverityInfo    = "info"
	SeverityWarning = "warning"
	SeverityDanger  = "danger"
)

// Event is a broadcastable fact, created once and never mutated.
type Event struct {
	ID              int64
	Type            string
	Channel         string
	Severity        string
	Title           string
	Body            string
	TargetPath      string
	TargetRef       string
	ActorAccountID  *int64
	TargetAccountID *int64
	Metadata        map[string]any
	CreatedAt       time.Time
}

// EventUserState is the per-(event, account) read/dismissed/handled
// projection, lazily created with all-false defaults.
type EventUserState struct {
	ID          int64
	EventID     int64
	AccountID   int64
	IsRead      bool
	ReadAt      *time.Time
	IsDismissed bool
	DismissedAt *time.Time
	IsHandled   bool
	HandledAt   *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// LoginAttempt is one login-history fact for anomaly-detection consumers.
type LoginAttempt struct {
	ID        int64
	AccountID *int64
	Email     string
	IP        string
	UserAgent string
	Result    string
	Source    string
	CreatedAt time.Time
}

// NormalizeEmail lowercases and trims an identity for case-insensitive
// matching and rate-limit keying.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
