package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Login-history result and source values.
const (
	LoginResultSuccess          = "success"
	LoginResultInvalidCode      = "invalid_code"
	LoginResultExpired          = "expired"
	LoginResultTooManyAttempts  = "too_many_attempts"
	LoginResultNotAllowed       = "not_allowed"
	LoginResultUnknownChallenge = "unknown_challenge"

	LoginSourceCode    = "code"
	LoginSourceTrusted = "trusted_device"
)

// AppendLoginAttempt records one login-history fact.
func (o ops) AppendLoginAttempt(ctx context.Context, a *LoginAttempt) error {
	now := time.Now().UTC()
	res, err := o.q.ExecContext(ctx, `
		INSERT INTO login_history (account_id, email, ip, user_agent, result, source, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		nullableID(a.AccountID), NormalizeEmail(a.Email), a.IP, a.UserAgent,
		a.Result, a.Source, now.Unix(),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if id, err := res.LastInsertId(); err == nil {
		a.ID = id
	}
	a.CreatedAt = now
	return nil
}

// LoginHistoryFilter narrows ListLoginHistory.
type LoginHistoryFilter struct {
	Email string
	Since time.Time
	Limit int
}

// ListLoginHistory returns login attempts newest first.
func (o ops) ListLoginHistory(ctx context.Context, filter LoginHistoryFilter) ([]*LoginAttempt, error) {
	query := `SELECT id, account_id, email, ip, user_agent, result, source, created_at
		FROM login_history`
	var (
		clauses []string
		args    []any
	)
	if filter.Email != "" {
		clauses = append(clauses, "email = ?")
		args = append(args, NormalizeEmail(filter.Email))
	}
	if !filter.Since.IsZero() {
		clauses = append(clauses, "created_at >= ?")
		args = append(args, filter.Since.Unix())
	}
	for i, c := range clauses {
		if i == 0 {
			query += " WHERE " + c
		} else {
			query += " AND " + c
		}
	}
	query += " ORDER BY id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := o.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	var attempts []*LoginAttempt
	for rows.Next() {
		var (
			a         LoginAttempt
			accountID sql.NullInt64
			createdAt int64
		)
		if err := rows.Scan(&a.ID, &accountID, &a.Email, &a.IP, &a.UserAgent,
			&a.Result, &a.Source, &createdAt); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		a.AccountID = int64PtrFromNull(accountID)
		a.CreatedAt = timeFromUnix(createdAt)
		attempts = append(attempts, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return attempts, nil
}
