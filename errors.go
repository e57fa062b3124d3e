package goAccess

import (
	"errors"
	"net/http"
)

var (
	// ErrRateLimited is returned when an identity exhausted its attempt budget.
	ErrRateLimited = errors.New("rate limited")
	// ErrInvalidChallenge is returned when a challenge id is unknown or orphaned.
	ErrInvalidChallenge = errors.New("invalid challenge")
	// ErrChallengeExpired is returned when a challenge is past expiry or already consumed.
	ErrChallengeExpired = errors.New("challenge expired")
	// ErrInvalidCode is returned on a code hash mismatch.
	ErrInvalidCode = errors.New("invalid code")
	// ErrTooManyAttempts is returned once a challenge hit its attempt cap.
	ErrTooManyAttempts = errors.New("too many attempts")
	// ErrInvalidCredentials is returned when the first-factor password does not match.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrNotAllowed is returned when the account is unapproved, blocked, or deleted.
	ErrNotAllowed = errors.New("account not allowed")
	// ErrUnauthenticated is returned for missing, malformed, or revoked session tokens.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrForbidden is returned on permission and ownership violations.
	ErrForbidden = errors.New("forbidden")
	// ErrNotFound is returned when a referenced entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrValidation is returned for malformed or out-of-range input.
	ErrValidation = errors.New("validation failed")
	// ErrAccountExists is returned when an access request hits an approved account.
	ErrAccountExists = errors.New("account already exists")
	// ErrEngineNotReady is returned when the engine was not built.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrStoreUnavailable wraps unexpected persistence failures.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// CodeForError maps an engine error to its machine-readable code.
func CodeForError(err error) string {
	switch {
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrInvalidChallenge):
		return "invalid_challenge"
	case errors.Is(err, ErrChallengeExpired):
		return "expired"
	case errors.Is(err, ErrInvalidCode):
		return "invalid_code"
	case errors.Is(err, ErrTooManyAttempts):
		return "too_many_attempts"
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, ErrNotAllowed):
		return "not_allowed"
	case errors.Is(err, ErrUnauthenticated):
		return "unauthenticated"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrValidation):
		return "validation_error"
	case errors.Is(err, ErrAccountExists):
		return "account_exists"
	default:
		return "internal_error"
	}
}

// HTTPStatusForError maps an engine error to the status an HTTP layer
// should respond with.
func HTTPStatusForError(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrRateLimited), errors.Is(err, ErrTooManyAttempts):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrInvalidChallenge), errors.Is(err, ErrChallengeExpired),
		errors.Is(err, ErrInvalidCode):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthenticated), errors.Is(err, ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden), errors.Is(err, ErrNotAllowed):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrValidation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrAccountExists):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
