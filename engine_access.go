package goAccess

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"

	"github.com/vealkov/goAccess/store"
)

var emailShape = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// RequestAccess registers interest in an account. A new identity is
// created unapproved with the viewer role; an admin has to approve it
// before the first login can succeed. The call is safe to repeat: an
// existing pending request is reported as such, and an approved account
// is pointed at the login flow instead.
func (e *Engine) RequestAccess(ctx context.Context, email, plainPassword string) (*RequestAccessResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	email = store.NormalizeEmail(email)
	if !emailShape.MatchString(email) {
		return nil, fmt.Errorf("%w: malformed email", ErrValidation)
	}
	if plainPassword == "" {
		return nil, fmt.Errorf("%w: empty password", ErrValidation)
	}

	existing, err := e.store.AccountByEmail(ctx, email)
	switch {
	case err == nil:
		if existing.IsDeleted || existing.IsBlocked {
			// Indistinguishable from a pending request on purpose.
			return &RequestAccessResult{
				Status:    AccessAlreadyRequested,
				AccountID: existing.ID,
			}, nil
		}
		if existing.IsApproved {
			return &RequestAccessResult{
				Status:    AccessApproved,
				AccountID: existing.ID,
			}, nil
		}
		return &RequestAccessResult{
			Status:    AccessAlreadyRequested,
			AccountID: existing.ID,
		}, nil
	case errors.Is(err, store.ErrNotFound):
		// Fall through to creation.
	default:
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	hash, err := e.passwordHash.Hash(plainPassword)
	if err != nil {
		return nil, err
	}

	var created *Account
	err = e.store.WithTx(ctx, func(tx *store.Tx) error {
		var txErr error
		created, txErr = tx.CreateAccount(ctx, &store.Account{
			Email:        email,
			PasswordHash: hash,
			Role:         RoleViewer,
			TrustPolicy:  TrustStandard,
		})
		if txErr != nil {
			return txErr
		}

		_, txErr = tx.AppendAudit(ctx, &store.AuditRecord{
			TargetAccountID: &created.ID,
			Action:          "auth.request_access",
			IP:              clientIPFromContext(ctx),
			UserAgent:       userAgentFromContext(ctx),
		})
		if txErr != nil {
			return txErr
		}

		_, txErr = tx.InsertEvent(ctx, &store.Event{
			Type:            "auth.request_access",
			Channel:         store.ChannelAction,
			Severity:        store.SeverityInfo,
			Title:           "Access requested",
			Body:            email + " requested access and is waiting for approval.",
			TargetPath:      "/users",
			TargetRef:       strconv.FormatInt(created.ID, 10),
			TargetAccountID: &created.ID,
		})
		return txErr
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			// Lost a race with a concurrent request for the same email.
			return e.RequestAccess(ctx, email, plainPassword)
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.metricInc(MetricAccessRequested)
	e.log.Info("access requested", "account_id", created.ID)
	e.emitTap(ctx, AuditEvent{
		Action:   "auth.request_access",
		TargetID: created.ID,
		Email:    email,
		IP:       clientIPFromContext(ctx),
		Success:  true,
	})

	return &RequestAccessResult{Status: AccessRequested, AccountID: created.ID}, nil
}
