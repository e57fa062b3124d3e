package goAccess

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vealkov/goAccess/store"
)

// ValidateToken authenticates a bearer session token. Beyond the
// signature and registered claims, the account must still be eligible
// and the embedded token version must exactly match the account's
// current counter, so one bump kills every outstanding token. The
// returned role is resolved fresh against the live root-admin set, not
// trusted from the token.
func (e *Engine) ValidateToken(ctx context.Context, token string) (*Identity, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	start := time.Now()
	defer func() {
		e.metricObserve(MetricTokenVerifyLatency, time.Since(start))
	}()

	claims, err := e.jwtManager.ParseSession(token)
	if err != nil {
		e.metricInc(MetricSessionRejected)
		return nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	account, err := e.store.AccountByEmail(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			e.metricInc(MetricSessionRejected)
			return nil, ErrUnauthenticated
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if !eligible(account) {
		e.metricInc(MetricSessionRejected)
		return nil, ErrUnauthenticated
	}
	if claims.TokenVersion != account.TokenVersion {
		e.metricInc(MetricSessionRejected)
		return nil, ErrUnauthenticated
	}

	return &Identity{
		AccountID: account.ID,
		Email:     account.Email,
		Role:      EffectiveRole(account, e.rootAdmins),
	}, nil
}

// RevokeOwnSessions bumps the caller's token version, invalidating
// every session token issued so far, including the one used to make
// this call. Trusted devices survive; the next login just runs again.
func (e *Engine) RevokeOwnSessions(ctx context.Context, actor *Identity) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if actor == nil {
		return ErrUnauthenticated
	}

	if _, err := e.store.BumpTokenVersion(ctx, actor.AccountID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUnauthenticated
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.log.Info("sessions revoked by owner", "account_id", actor.AccountID)
	e.emitTap(ctx, AuditEvent{
		Action:  "auth.revoke_own_sessions",
		ActorID: actor.AccountID,
		Email:   actor.Email,
		IP:      clientIPFromContext(ctx),
		Success: true,
	})
	return nil
}
