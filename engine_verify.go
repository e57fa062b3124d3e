package goAccess

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vealkov/goAccess/internal"
	"github.com/vealkov/goAccess/internal/rate"
	"github.com/vealkov/goAccess/store"
)

// VerifyCode runs the second factor against a pending challenge. Checks
// are ordered so the cheapest rejection wins and a correct code against
// a dead challenge never succeeds:
//
//  1. unknown or orphaned challenge
//  2. consumed or expired challenge
//  3. attempt cap reached
//  4. code mismatch (counts an attempt)
//  5. match: the challenge is consumed first, then account eligibility
//     is enforced, so an unapproved account still burns its code
//
// On success a session token is minted and, policy permitting, a
// trusted device is issued. The plaintext device token appears only in
// the returned result.
func (e *Engine) VerifyCode(ctx context.Context, challengeID, code string) (*VerifyResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if challengeID == "" || code == "" {
		return nil, fmt.Errorf("%w: challenge id and code required", ErrValidation)
	}

	now := time.Now().UTC()

	challenge, err := e.store.ChallengeByID(ctx, challengeID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			e.metricInc(MetricVerifyFailure)
			return nil, ErrInvalidChallenge
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	account, err := e.store.AccountByID(ctx, challenge.AccountID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			e.metricInc(MetricVerifyFailure)
			return nil, ErrInvalidChallenge
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if err := e.checkVerifyBudget(ctx, account.Email); err != nil {
		return nil, err
	}

	if challenge.UsedAt != nil || !now.Before(challenge.ExpiresAt) {
		e.metricInc(MetricVerifyFailure)
		e.appendLoginHistory(ctx, account, store.LoginResultExpired, store.LoginSourceCode)
		return nil, ErrChallengeExpired
	}

	if challenge.Attempts >= e.config.Challenge.MaxAttempts {
		e.metricInc(MetricVerifyExhausted)
		e.appendLoginHistory(ctx, account, store.LoginResultTooManyAttempts, store.LoginSourceCode)
		return nil, ErrTooManyAttempts
	}

	if !internal.HashEqual(challenge.CodeHash, internal.KeyedHash(code, e.config.Secret.HashKey)) {
		attempts, err := e.store.IncrementChallengeAttempts(ctx, challenge.ID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		e.metricInc(MetricVerifyFailure)
		e.appendLoginHistory(ctx, account, store.LoginResultInvalidCode, store.LoginSourceCode)
		e.log.Info("login code mismatch",
			"account_id", account.ID, "challenge_id", challenge.ID, "attempts", attempts)
		// A mismatch always reads as an invalid code; the cap surfaces on
		// the next attempt against the exhausted challenge.
		return nil, ErrInvalidCode
	}

	// Single use. A concurrent verify of the same challenge loses here.
	if err := e.store.MarkChallengeUsed(ctx, challenge.ID, now); err != nil {
		if errors.Is(err, store.ErrConflict) {
			e.metricInc(MetricVerifyFailure)
			return nil, ErrChallengeExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if !eligible(account) {
		// The code is consumed either way.
		e.metricInc(MetricVerifyFailure)
		e.appendLoginHistory(ctx, account, store.LoginResultNotAllowed, store.LoginSourceCode)
		return nil, ErrNotAllowed
	}

	role := EffectiveRole(account, e.rootAdmins)
	token, err := e.jwtManager.CreateSession(account.Email, string(role), account.TokenVersion)
	if err != nil {
		return nil, err
	}

	result := &VerifyResult{
		SessionToken: token,
		Role:         role,
		TrustPolicy:  e.effectiveTrustPolicy(account),
	}

	if result.TrustPolicy != TrustStrict {
		if err := e.issueDevice(ctx, account, result, now); err != nil {
			// Session issuance already succeeded; a device failure only
			// costs the remember-me convenience.
			e.log.Warn("trusted device issuance", "account_id", account.ID, "error", err)
		}
	}

	e.appendLoginHistory(ctx, account, store.LoginResultSuccess, store.LoginSourceCode)
	e.metricInc(MetricVerifySuccess)
	e.metricInc(MetricSessionIssued)
	e.log.Info("login verified", "account_id", account.ID, "role", string(role))
	e.emitTap(ctx, AuditEvent{
		Action:   "auth.login",
		TargetID: account.ID,
		Email:    account.Email,
		IP:       clientIPFromContext(ctx),
		Success:  true,
	})

	return result, nil
}

func (e *Engine) checkVerifyBudget(ctx context.Context, email string) error {
	if e.rateLimiter == nil {
		return nil
	}

	rule := rate.Rule{
		Limit:  e.config.RateLimit.VerifyMaxAttempts,
		Window: e.config.RateLimit.VerifyWindow,
	}

	checkErr := e.rateLimiter.Check(ctx, email, rateActionVerify, rule)
	if err := e.rateLimiter.Record(ctx, email, rateActionVerify, rule); err != nil {
		e.log.Warn("rate limiter record", "error", err)
	}

	switch {
	case checkErr == nil:
		return nil
	case errors.Is(checkErr, rate.ErrRateLimited):
		e.metricInc(MetricLoginRateLimited)
		return ErrRateLimited
	default:
		e.log.Warn("rate limiter unavailable, failing open", "error", checkErr)
		return nil
	}
}

// effectiveTrustPolicy resolves the account policy against the
// deployment config. Permanent downgrades to extended when permanent
// devices are disabled.
func (e *Engine) effectiveTrustPolicy(account *Account) TrustPolicy {
	policy := account.TrustPolicy
	if !policy.Valid() {
		policy = TrustStandard
	}
	if policy == TrustPermanent && e.config.Trust.DisablePermanent {
		policy = TrustExtended
	}
	return policy
}

func (e *Engine) issueDevice(ctx context.Context, account *Account, result *VerifyResult, now time.Time) error {
	plaintext, err := internal.NewDeviceToken()
	if err != nil {
		return err
	}

	device := &store.TrustedDevice{
		ID:        uuid.NewString(),
		AccountID: account.ID,
		TokenHash: internal.KeyedHash(plaintext, e.config.Secret.HashKey),
		Policy:    result.TrustPolicy,
	}
	switch result.TrustPolicy {
	case TrustStandard:
		exp := now.AddDate(0, 0, e.config.Trust.StandardDays)
		device.ExpiresAt = &exp
	case TrustExtended:
		exp := now.AddDate(0, 0, e.config.Trust.ExtendedDays)
		device.ExpiresAt = &exp
	case TrustPermanent:
		// No expiry.
	}

	if err := e.store.CreateDevice(ctx, device); err != nil {
		return err
	}

	result.DeviceToken = plaintext
	result.DeviceID = device.ID
	result.DeviceExpiresAt = device.ExpiresAt
	e.metricInc(MetricDeviceIssued)
	return nil
}
