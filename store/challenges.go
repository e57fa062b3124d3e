package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CreateChallenge persists a new login challenge.
func (o ops) CreateChallenge(ctx context.Context, c *Challenge) error {
	now := time.Now().UTC()
	_, err := o.q.ExecContext(ctx, `
		INSERT INTO login_challenges (id, account_id, code_hash, expires_at, used_at, attempts, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.AccountID, c.CodeHash, c.ExpiresAt.Unix(), unixPtr(c.UsedAt), c.Attempts, now.Unix(),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	c.CreatedAt = now
	return nil
}

// ChallengeByID fetches one challenge by its opaque id.
func (o ops) ChallengeByID(ctx context.Context, id string) (*Challenge, error) {
	row := o.q.QueryRowContext(ctx, `
		SELECT id, account_id, code_hash, expires_at, used_at, attempts, created_at
		FROM login_challenges WHERE id = ?`, id)

	var (
		c                    Challenge
		expiresAt, createdAt int64
		usedAt               sql.NullInt64
	)
	err := row.Scan(&c.ID, &c.AccountID, &c.CodeHash, &expiresAt, &usedAt, &c.Attempts, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	c.ExpiresAt = timeFromUnix(expiresAt)
	c.UsedAt = timePtrFromNull(usedAt)
	c.CreatedAt = timeFromUnix(createdAt)
	return &c, nil
}

// IncrementChallengeAttempts adds one failed attempt and returns the new count.
func (o ops) IncrementChallengeAttempts(ctx context.Context, id string) (int, error) {
	_, err := o.q.ExecContext(ctx,
		`UPDATE login_challenges SET attempts = attempts + 1 WHERE id = ?`, id)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var attempts int
	row := o.q.QueryRowContext(ctx,
		`SELECT attempts FROM login_challenges WHERE id = ?`, id)
	if err := row.Scan(&attempts); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return attempts, nil
}

// MarkChallengeUsed stamps used_at. The transition is one way; a second
// call leaves the original timestamp in place.
func (o ops) MarkChallengeUsed(ctx context.Context, id string, at time.Time) error {
	res, err := o.q.ExecContext(ctx, `
		UPDATE login_challenges SET used_at = ?
		WHERE id = ? AND used_at IS NULL`, at.Unix(), id)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrConflict
	}
	return nil
}

// DeleteChallengesForAccount removes every challenge issued to one account.
func (o ops) DeleteChallengesForAccount(ctx context.Context, accountID int64) error {
	_, err := o.q.ExecContext(ctx,
		`DELETE FROM login_challenges WHERE account_id = ?`, accountID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
