package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const accountColumns = `id, email, password_hash, role, trust_policy,
	is_admin, is_approved, is_blocked, is_deleted, token_version,
	created_at, updated_at`

func scanAccount(row interface{ Scan(dest ...any) error }) (*Account, error) {
	var (
		a                  Account
		role, policy       string
		createdAt, updated int64
	)
	err := row.Scan(
		&a.ID, &a.Email, &a.PasswordHash, &role, &policy,
		&a.IsAdmin, &a.IsApproved, &a.IsBlocked, &a.IsDeleted, &a.TokenVersion,
		&createdAt, &updated,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	// An empty stored role stays empty so the legacy is_admin fallback
	// can apply at resolution time.
	if role != "" {
		a.Role = ParseRole(role)
	}
	a.TrustPolicy = ParseTrustPolicy(policy)
	a.CreatedAt = timeFromUnix(createdAt)
	a.UpdatedAt = timeFromUnix(updated)
	return &a, nil
}

// CreateAccount inserts a new account row and returns it with the
// assigned id. Email uniqueness is case-insensitive.
func (o ops) CreateAccount(ctx context.Context, a *Account) (*Account, error) {
	now := time.Now().UTC()
	res, err := o.q.ExecContext(ctx, `
		INSERT INTO accounts (email, password_hash, role, trust_policy,
			is_admin, is_approved, is_blocked, is_deleted, token_version,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		NormalizeEmail(a.Email), a.PasswordHash, string(a.Role), string(a.TrustPolicy),
		a.IsAdmin, a.IsApproved, a.IsBlocked, a.IsDeleted, a.TokenVersion,
		now.Unix(), now.Unix(),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	created := *a
	created.ID = id
	created.Email = NormalizeEmail(a.Email)
	created.CreatedAt = now
	created.UpdatedAt = now
	return &created, nil
}

// AccountByEmail looks an account up by its case-insensitive email.
func (o ops) AccountByEmail(ctx context.Context, email string) (*Account, error) {
	row := o.q.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE email = ?`,
		NormalizeEmail(email),
	)
	return scanAccount(row)
}

// AccountByID looks an account up by primary key.
func (o ops) AccountByID(ctx context.Context, id int64) (*Account, error) {
	row := o.q.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id)
	return scanAccount(row)
}

// UpdateAccount persists every mutable account field.
func (o ops) UpdateAccount(ctx context.Context, a *Account) error {
	res, err := o.q.ExecContext(ctx, `
		UPDATE accounts SET password_hash = ?, role = ?, trust_policy = ?,
			is_admin = ?, is_approved = ?, is_blocked = ?, is_deleted = ?,
			token_version = ?, updated_at = ?
		WHERE id = ?`,
		a.PasswordHash, string(a.Role), string(a.TrustPolicy),
		a.IsAdmin, a.IsApproved, a.IsBlocked, a.IsDeleted,
		a.TokenVersion, time.Now().UTC().Unix(), a.ID,
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// BumpTokenVersion monotonically increments the session-invalidation
// counter, invalidating every outstanding session token at once.
func (o ops) BumpTokenVersion(ctx context.Context, accountID int64) (int64, error) {
	_, err := o.q.ExecContext(ctx, `
		UPDATE accounts SET token_version = token_version + 1, updated_at = ?
		WHERE id = ?`, time.Now().UTC().Unix(), accountID)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var version int64
	row := o.q.QueryRowContext(ctx,
		`SELECT token_version FROM accounts WHERE id = ?`, accountID)
	if err := row.Scan(&version); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return version, nil
}

// AccountFilter narrows ListAccounts. Zero value lists non-deleted accounts.
type AccountFilter struct {
	IncludeDeleted bool
	OnlyPending    bool
	OnlyAdmins     bool
}

// ListAccounts returns accounts ordered by id. Soft-deleted accounts are
// excluded unless the filter asks for them.
func (o ops) ListAccounts(ctx context.Context, filter AccountFilter) ([]*Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts`
	var clauses []string
	if !filter.IncludeDeleted {
		clauses = append(clauses, "is_deleted = 0")
	}
	if filter.OnlyPending {
		clauses = append(clauses, "is_approved = 0")
	}
	if filter.OnlyAdmins {
		clauses = append(clauses, "is_admin = 1")
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY id ASC"

	rows, err := o.q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	var accounts []*Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return accounts, nil
}

// HardDeleteAccount permanently removes the account row after clearing
// every reference: per-account challenges, trusted devices and event
// state are deleted; audit, event, and login-history attributions are
// nulled so the history itself survives.
func (o ops) HardDeleteAccount(ctx context.Context, accountID int64) error {
	statements := []struct {
		query string
		args  []any
	}{
		{`DELETE FROM event_user_state WHERE account_id = ?`, []any{accountID}},
		{`DELETE FROM login_challenges WHERE account_id = ?`, []any{accountID}},
		{`DELETE FROM trusted_devices WHERE account_id = ?`, []any{accountID}},
		{`UPDATE audit_log SET actor_account_id = NULL WHERE actor_account_id = ?`, []any{accountID}},
		{`UPDATE audit_log SET target_account_id = NULL WHERE target_account_id = ?`, []any{accountID}},
		{`UPDATE events SET actor_account_id = NULL WHERE actor_account_id = ?`, []any{accountID}},
		{`UPDATE events SET target_account_id = NULL WHERE target_account_id = ?`, []any{accountID}},
		{`UPDATE login_history SET account_id = NULL WHERE account_id = ?`, []any{accountID}},
		{`DELETE FROM accounts WHERE id = ?`, []any{accountID}},
	}
	for _, stmt := range statements {
		if _, err := o.q.ExecContext(ctx, stmt.query, stmt.args...); err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	return nil
}
