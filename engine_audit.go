package goAccess

import (
	"context"
	"fmt"
	"strconv"

	"github.com/vealkov/goAccess/store"
)

// Admin action names as they appear in the audit trail.
const (
	actionApprove        = "approve"
	actionRemoveApprove  = "remove_approve"
	actionBlock          = "block"
	actionUnblock        = "unblock"
	actionRevokeSessions = "revoke_sessions"
	actionRevokeDevices  = "revoke_trusted_devices"
	actionSendCode       = "send_code"
	actionSetTrustPolicy = "set_trust_policy"
	actionSetRole        = "set_role"
	actionDeleteSoft     = "delete_soft"
	actionRestore        = "restore"
	actionDeleteHard     = "delete_hard"

	actionUpdateRootAdmins = "update_root_admins"
)

// eventTemplate drives the event synthesized alongside an audit row.
type eventTemplate struct {
	title    string
	severity string
	// security marks actions that escalate the event severity and are
	// surfaced prominently in the event center.
	security bool
}

var actionEvents = map[string]eventTemplate{
	actionApprove:        {title: "Account approved", severity: store.SeverityInfo},
	actionRemoveApprove:  {title: "Account approval removed", severity: store.SeverityWarning, security: true},
	actionBlock:          {title: "Account blocked", severity: store.SeverityWarning, security: true},
	actionUnblock:        {title: "Account unblocked", severity: store.SeverityInfo},
	actionRevokeSessions: {title: "Sessions revoked", severity: store.SeverityWarning, security: true},
	actionRevokeDevices:  {title: "Trusted devices revoked", severity: store.SeverityWarning, security: true},
	actionSendCode:       {title: "Login code sent", severity: store.SeverityInfo},
	actionSetTrustPolicy: {title: "Trust policy changed", severity: store.SeverityInfo},
	actionSetRole:        {title: "Role changed", severity: store.SeverityWarning, security: true},
	actionDeleteSoft:     {title: "Account deleted", severity: store.SeverityWarning, security: true},
	actionRestore:        {title: "Account restored", severity: store.SeverityInfo},
	actionDeleteHard:     {title: "Account permanently deleted", severity: store.SeverityDanger, security: true},

	actionUpdateRootAdmins: {title: "Root admin list updated", severity: store.SeverityDanger, security: true},
}

// recordAdminAction appends the audit row and synthesizes its event in
// the same transaction, so the trail and the event center can never
// disagree. The event deep-links back to the audit entry.
func (e *Engine) recordAdminAction(ctx context.Context, tx *store.Tx, actor *Identity, targetID *int64, targetEmail, action string, metadata map[string]any) error {
	if cid := correlationIDFromContext(ctx); cid != "" {
		metadata["correlation_id"] = cid
	}

	rec := &store.AuditRecord{
		Action:          action,
		TargetAccountID: targetID,
		Metadata:        metadata,
		IP:              clientIPFromContext(ctx),
		UserAgent:       userAgentFromContext(ctx),
	}
	if actor != nil {
		rec.ActorAccountID = &actor.AccountID
	}

	auditID, err := tx.AppendAudit(ctx, rec)
	if err != nil {
		return err
	}

	tmpl, ok := actionEvents[action]
	if !ok {
		tmpl = eventTemplate{title: action, severity: store.SeverityInfo}
	}

	body := tmpl.title
	if targetEmail != "" {
		body = fmt.Sprintf("%s for %s", tmpl.title, targetEmail)
	}
	if actor != nil {
		body += " by " + actor.Email
	}
	body += "."

	event := &store.Event{
		Type:            "admin." + action,
		Channel:         store.ChannelNotification,
		Severity:        tmpl.severity,
		Title:           tmpl.title,
		Body:            body,
		TargetPath:      "/logs?highlight_log_id=" + strconv.FormatInt(auditID, 10),
		TargetRef:       strconv.FormatInt(auditID, 10),
		TargetAccountID: targetID,
		Metadata:        metadata,
	}
	if actor != nil {
		event.ActorAccountID = &actor.AccountID
	}
	if tmpl.security && event.Severity == store.SeverityInfo {
		event.Severity = store.SeverityWarning
	}

	if _, err := tx.InsertEvent(ctx, event); err != nil {
		return err
	}

	e.emitTap(ctx, AuditEvent{
		Action:   "admin." + action,
		ActorID:  actorID(actor),
		TargetID: derefID(targetID),
		Email:    targetEmail,
		IP:       rec.IP,
		Success:  true,
	})
	return nil
}

func actorID(actor *Identity) int64 {
	if actor == nil {
		return 0
	}
	return actor.AccountID
}

func derefID(id *int64) int64 {
	if id == nil {
		return 0
	}
	return *id
}

// ListAuditLog returns audit entries, newest first. Requires the
// audit.view permission.
func (e *Engine) ListAuditLog(ctx context.Context, actor *Identity, filter store.AuditFilter) ([]*AuditRecord, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if actor == nil {
		return nil, ErrUnauthenticated
	}
	if !HasPermission(actor.Role, PermAuditView) {
		return nil, ErrForbidden
	}

	records, err := e.store.ListAudit(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return records, nil
}

// ListLoginHistory returns login-history facts, newest first. Requires
// the audit.view permission.
func (e *Engine) ListLoginHistory(ctx context.Context, actor *Identity, filter store.LoginHistoryFilter) ([]*LoginAttempt, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if actor == nil {
		return nil, ErrUnauthenticated
	}
	if !HasPermission(actor.Role, PermAuditView) {
		return nil, ErrForbidden
	}

	attempts, err := e.store.ListLoginHistory(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return attempts, nil
}
