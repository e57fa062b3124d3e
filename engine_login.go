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

// Rate-limit action names.
const (
	rateActionLoginStart = "login_start"
	rateActionLoginIP    = "login_ip"
	rateActionVerify     = "verify_code"
)

// StartLogin runs the first factor. The password is always checked; a
// valid trusted-device token then short-circuits the code challenge and
// mints a session directly. Otherwise a single-use code is generated,
// its keyed hash persisted, and the plaintext handed to the configured
// sender.
//
// deviceToken may be empty. A stale or foreign token is ignored rather
// than rejected so an old cookie never locks a browser out of the code
// path.
func (e *Engine) StartLogin(ctx context.Context, email, plainPassword, deviceToken string) (*LoginStartResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	email = store.NormalizeEmail(email)
	if email == "" || plainPassword == "" {
		return nil, fmt.Errorf("%w: email and password required", ErrValidation)
	}

	if err := e.checkLoginBudget(ctx, email); err != nil {
		return nil, err
	}

	account, err := e.store.AccountByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Uniform response; account existence is not disclosed.
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	ok, err := e.passwordHash.Verify(plainPassword, account.PasswordHash)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}

	if deviceToken != "" {
		if result, ok := e.tryTrustedDevice(ctx, account, deviceToken); ok {
			return result, nil
		}
	}

	return e.issueChallenge(ctx, account)
}

// checkLoginBudget enforces the per-identity and per-IP sliding windows
// and records the attempt fact either way. Redis being down fails open.
func (e *Engine) checkLoginBudget(ctx context.Context, email string) error {
	if e.rateLimiter == nil {
		return nil
	}

	ip := clientIPFromContext(ctx)
	identityRule := rate.Rule{
		Limit:  e.config.RateLimit.StartMaxAttempts,
		Window: e.config.RateLimit.StartWindow,
	}
	ipRule := rate.Rule{
		Limit:  e.config.RateLimit.PerIPMaxAttempts,
		Window: e.config.RateLimit.PerIPWindow,
	}

	checkErr := e.rateLimiter.Check(ctx, email, rateActionLoginStart, identityRule)
	if checkErr == nil && ip != "" {
		checkErr = e.rateLimiter.Check(ctx, ip, rateActionLoginIP, ipRule)
	}

	// The attempt counts whether or not it was allowed, so hammering a
	// limited identity keeps the window full instead of draining it.
	if err := e.rateLimiter.Record(ctx, email, rateActionLoginStart, identityRule); err != nil {
		e.log.Warn("rate limiter record", "error", err)
	}
	if ip != "" {
		if err := e.rateLimiter.Record(ctx, ip, rateActionLoginIP, ipRule); err != nil {
			e.log.Warn("rate limiter record", "error", err)
		}
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

// tryTrustedDevice validates a presented device token. Any defect in
// the token, the device, or the account falls back to the code path.
func (e *Engine) tryTrustedDevice(ctx context.Context, account *Account, deviceToken string) (*LoginStartResult, bool) {
	now := time.Now().UTC()

	device, err := e.store.DeviceByTokenHash(ctx,
		internal.KeyedHash(deviceToken, e.config.Secret.HashKey))
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			e.log.Warn("trusted device lookup", "error", err)
		}
		return nil, false
	}
	if device.AccountID != account.ID || !device.Active(now) || !eligible(account) {
		return nil, false
	}

	role := EffectiveRole(account, e.rootAdmins)
	token, err := e.jwtManager.CreateSession(account.Email, string(role), account.TokenVersion)
	if err != nil {
		e.log.Error("session issuance", "account_id", account.ID, "error", err)
		return nil, false
	}

	if err := e.store.TouchDevice(ctx, device.ID, now); err != nil {
		e.log.Warn("touch trusted device", "device_id", device.ID, "error", err)
	}
	e.appendLoginHistory(ctx, account, store.LoginResultSuccess, store.LoginSourceTrusted)

	e.metricInc(MetricLoginTrusted)
	e.metricInc(MetricSessionIssued)
	e.log.Info("trusted device login", "account_id", account.ID, "device_id", device.ID)
	e.emitTap(ctx, AuditEvent{
		Action:   "auth.login_trusted",
		TargetID: account.ID,
		Email:    account.Email,
		IP:       clientIPFromContext(ctx),
		Success:  true,
		Metadata: map[string]string{"device_id": device.ID},
	})

	return &LoginStartResult{
		Status:       LoginTrusted,
		SessionToken: token,
		Role:         role,
	}, true
}

// issueChallenge mints a single-use login code and persists only its
// keyed hash.
func (e *Engine) issueChallenge(ctx context.Context, account *Account) (*LoginStartResult, error) {
	code, err := internal.NewLoginCode(e.config.Challenge.CodeDigits)
	if err != nil {
		return nil, err
	}

	challenge := &store.Challenge{
		ID:        uuid.NewString(),
		AccountID: account.ID,
		CodeHash:  internal.KeyedHash(code, e.config.Secret.HashKey),
		ExpiresAt: time.Now().UTC().Add(e.config.Challenge.TTL),
	}
	if err := e.store.CreateChallenge(ctx, challenge); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	result := &LoginStartResult{
		Status:      LoginCodeSent,
		ChallengeID: challenge.ID,
	}

	if e.sender.SendCode(ctx, account.Email, code) {
		e.metricInc(MetricCodeSent)
	} else {
		e.metricInc(MetricCodeSendFailed)
		result.Status = LoginCodeIssued
		if e.config.Dev.EchoCodes {
			result.DevCode = code
		}
		e.log.Warn("login code delivery failed", "account_id", account.ID)
	}

	e.metricInc(MetricLoginStart)
	e.log.Info("login challenge issued",
		"account_id", account.ID, "challenge_id", challenge.ID)

	return result, nil
}

func (e *Engine) appendLoginHistory(ctx context.Context, account *Account, result, source string) {
	attempt := &store.LoginAttempt{
		Email:     account.Email,
		IP:        clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
		Result:    result,
		Source:    source,
	}
	if account.ID != 0 {
		attempt.AccountID = &account.ID
	}
	if err := e.store.AppendLoginAttempt(ctx, attempt); err != nil {
		e.log.Warn("append login history", "error", err)
	}
}
