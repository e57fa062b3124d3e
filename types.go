package goAccess

import (
	"context"
	"time"

	internalaudit "github.com/vealkov/goAccess/internal/audit"
	"github.com/vealkov/goAccess/store"
)

// Re-exported store types so embedders rarely need to import the store
// package directly.
type (
	// Account is the credential-store row for one identity.
	Account = store.Account
	// Role is the stored role enum.
	Role = store.Role
	// TrustPolicy is the trusted-device policy enum.
	TrustPolicy = store.TrustPolicy
	// Challenge is a single-use emailed login code.
	Challenge = store.Challenge
	// TrustedDevice is a remembered browser/device.
	TrustedDevice = store.TrustedDevice
	// AuditRecord is one append-only audit row.
	AuditRecord = store.AuditRecord
	// Event is a broadcastable notification/action fact.
	Event = store.Event
	// EventUserState is the per-(event, account) read projection.
	EventUserState = store.EventUserState
	// LoginAttempt is one login-history fact.
	LoginAttempt = store.LoginAttempt
)

// Role and trust policy constants, re-exported.
const (
	RoleViewer    = store.RoleViewer
	RoleEditor    = store.RoleEditor
	RoleAdmin     = store.RoleAdmin
	RoleRootAdmin = store.RoleRootAdmin

	TrustStrict    = store.TrustStrict
	TrustStandard  = store.TrustStandard
	TrustExtended  = store.TrustExtended
	TrustPermanent = store.TrustPermanent
)

// AuditEvent is the in-process observability record delivered to the
// configured [AuditSink].
type AuditEvent = internalaudit.Event

// AuditSink receives engine audit events asynchronously.
type AuditSink = internalaudit.Sink

// NoOpAuditSink drops audit events.
type NoOpAuditSink = internalaudit.NoOpSink

// CodeSender delivers a plaintext login code out-of-band. A false
// return means delivery failed; issuance still succeeds but the
// caller-visible status changes.
type CodeSender interface {
	SendCode(ctx context.Context, email, code string) bool
}

// CodeSenderFunc adapts a function to the [CodeSender] interface.
type CodeSenderFunc func(ctx context.Context, email, code string) bool

// SendCode calls the wrapped function.
func (f CodeSenderFunc) SendCode(ctx context.Context, email, code string) bool {
	return f(ctx, email, code)
}

// NoOpCodeSender always reports delivery failure. With dev mode on, the
// code then surfaces in the start-login result.
type NoOpCodeSender struct{}

// SendCode drops the code.
func (NoOpCodeSender) SendCode(context.Context, string, string) bool { return false }

// LoginStartStatus tells the caller what the next step is.
type LoginStartStatus string

const (
	// LoginCodeSent means a challenge was issued and its code emailed.
	LoginCodeSent LoginStartStatus = "code_sent"
	// LoginCodeIssued means a challenge was issued but delivery failed.
	LoginCodeIssued LoginStartStatus = "code_issued"
	// LoginTrusted means a trusted device bypassed the code challenge.
	LoginTrusted LoginStartStatus = "trusted"
)

// LoginStartResult is the outcome of [Engine.StartLogin].
type LoginStartResult struct {
	Status      LoginStartStatus
	ChallengeID string
	// DevCode carries the plaintext code when delivery failed and dev
	// mode is on. Empty otherwise.
	DevCode string
	// SessionToken is set only on the trusted-device path.
	SessionToken string
	Role         Role
}

// VerifyResult is the outcome of a successful [Engine.VerifyCode].
type VerifyResult struct {
	SessionToken string
	Role         Role
	// DeviceToken is the plaintext trusted-device token, returned
	// exactly once. Empty when the effective trust policy is strict.
	DeviceToken     string
	DeviceID        string
	DeviceExpiresAt *time.Time
	TrustPolicy     TrustPolicy
}

// AccessRequestStatus classifies a [Engine.RequestAccess] outcome.
type AccessRequestStatus string

const (
	// AccessRequested means a new unapproved account was created.
	AccessRequested AccessRequestStatus = "requested"
	// AccessAlreadyRequested means an unapproved account already exists.
	AccessAlreadyRequested AccessRequestStatus = "already_requested"
	// AccessApproved means the account is approved; the caller should log in.
	AccessApproved AccessRequestStatus = "approved"
)

// RequestAccessResult is the outcome of [Engine.RequestAccess].
type RequestAccessResult struct {
	Status    AccessRequestStatus
	AccountID int64
}

// Identity is the verified caller of an authenticated request. Role is
// the effective role, resolved fresh against the live root-admin set.
type Identity struct {
	AccountID int64
	Email     string
	Role      Role
}
