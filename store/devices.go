package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const deviceColumns = `id, account_id, token_hash, policy,
	created_at, expires_at, last_used_at, revoked_at`

func scanDevice(row interface{ Scan(dest ...any) error }) (*TrustedDevice, error) {
	var (
		d                            TrustedDevice
		policy                       string
		createdAt                    int64
		expiresAt, lastUsed, revoked sql.NullInt64
	)
	err := row.Scan(&d.ID, &d.AccountID, &d.TokenHash, &policy,
		&createdAt, &expiresAt, &lastUsed, &revoked)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	d.Policy = ParseTrustPolicy(policy)
	d.CreatedAt = timeFromUnix(createdAt)
	d.ExpiresAt = timePtrFromNull(expiresAt)
	d.LastUsedAt = timePtrFromNull(lastUsed)
	d.RevokedAt = timePtrFromNull(revoked)
	return &d, nil
}

// CreateDevice persists a newly issued trusted device.
func (o ops) CreateDevice(ctx context.Context, d *TrustedDevice) error {
	now := time.Now().UTC()
	_, err := o.q.ExecContext(ctx, `
		INSERT INTO trusted_devices (id, account_id, token_hash, policy,
			created_at, expires_at, last_used_at, revoked_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.AccountID, d.TokenHash, string(d.Policy),
		now.Unix(), unixPtr(d.ExpiresAt), unixPtr(d.LastUsedAt), unixPtr(d.RevokedAt),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	d.CreatedAt = now
	return nil
}

// DeviceByTokenHash resolves a presented device token by its keyed hash.
func (o ops) DeviceByTokenHash(ctx context.Context, tokenHash string) (*TrustedDevice, error) {
	row := o.q.QueryRowContext(ctx,
		`SELECT `+deviceColumns+` FROM trusted_devices WHERE token_hash = ?`,
		tokenHash)
	return scanDevice(row)
}

// DeviceByID fetches one device row.
func (o ops) DeviceByID(ctx context.Context, id string) (*TrustedDevice, error) {
	row := o.q.QueryRowContext(ctx,
		`SELECT `+deviceColumns+` FROM trusted_devices WHERE id = ?`, id)
	return scanDevice(row)
}

// TouchDevice records a successful device login.
func (o ops) TouchDevice(ctx context.Context, id string, at time.Time) error {
	_, err := o.q.ExecContext(ctx,
		`UPDATE trusted_devices SET last_used_at = ? WHERE id = ?`, at.Unix(), id)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// RevokeDevice stamps revoked_at once. Revoking an already revoked
// device succeeds without moving the timestamp.
func (o ops) RevokeDevice(ctx context.Context, id string, at time.Time) error {
	res, err := o.q.ExecContext(ctx, `
		UPDATE trusted_devices SET revoked_at = ?
		WHERE id = ? AND revoked_at IS NULL`, at.Unix(), id)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		var exists int
		row := o.q.QueryRowContext(ctx,
			`SELECT 1 FROM trusted_devices WHERE id = ?`, id)
		if scanErr := row.Scan(&exists); scanErr != nil {
			if errors.Is(scanErr, sql.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("%w: %v", ErrUnavailable, scanErr)
		}
	}
	return nil
}

// RevokeDevicesForAccount revokes every active device of the account and
// returns how many were newly revoked.
func (o ops) RevokeDevicesForAccount(ctx context.Context, accountID int64, at time.Time) (int64, error) {
	res, err := o.q.ExecContext(ctx, `
		UPDATE trusted_devices SET revoked_at = ?
		WHERE account_id = ? AND revoked_at IS NULL`, at.Unix(), accountID)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return n, nil
}

// RevokeDevicesExcept revokes every active device except the one named,
// so a logout-everywhere keeps the current browser signed in.
func (o ops) RevokeDevicesExcept(ctx context.Context, accountID int64, keepID string, at time.Time) (int64, error) {
	res, err := o.q.ExecContext(ctx, `
		UPDATE trusted_devices SET revoked_at = ?
		WHERE account_id = ? AND id != ? AND revoked_at IS NULL`,
		at.Unix(), accountID, keepID)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return n, nil
}

// ListDevices returns the account's devices, most recently created first.
func (o ops) ListDevices(ctx context.Context, accountID int64) ([]*TrustedDevice, error) {
	rows, err := o.q.QueryContext(ctx,
		`SELECT `+deviceColumns+` FROM trusted_devices
		WHERE account_id = ? ORDER BY created_at DESC, id DESC`, accountID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	var devices []*TrustedDevice
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		devices = append(devices, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return devices, nil
}

// MostRecentActiveDevice returns the newest non-revoked, non-expired
// device, or ErrNotFound when none exists.
func (o ops) MostRecentActiveDevice(ctx context.Context, accountID int64, now time.Time) (*TrustedDevice, error) {
	row := o.q.QueryRowContext(ctx, `
		SELECT `+deviceColumns+` FROM trusted_devices
		WHERE account_id = ? AND revoked_at IS NULL
			AND (expires_at IS NULL OR expires_at > ?)
		ORDER BY created_at DESC, id DESC LIMIT 1`,
		accountID, now.Unix())
	return scanDevice(row)
}

// DeleteDevicesForAccount removes every device row of the account.
func (o ops) DeleteDevicesForAccount(ctx context.Context, accountID int64) error {
	_, err := o.q.ExecContext(ctx,
		`DELETE FROM trusted_devices WHERE account_id = ?`, accountID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
