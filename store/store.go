package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // pure Go SQLite driver
)

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrConflict is returned on unique-constraint violations.
	ErrConflict = errors.New("store: conflict")
	// ErrUnavailable wraps driver-level failures.
	ErrUnavailable = errors.New("store: unavailable")
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ops carries every persistence operation; it is embedded by both
// [Store] (autocommit) and [Tx] (transactional) so call sites look the same.
type ops struct {
	q querier
}

// Store is the durable control-plane state: accounts, challenges,
// trusted devices, audit log, events, and login history.
type Store struct {
	db *sql.DB
	ops
}

// Tx is one transactional unit of work over the store.
type Tx struct {
	tx *sql.Tx
	ops
}

// Open opens (and migrates) the database at path. SQLite supports a
// single writer, so the pool is capped at one connection.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}

	s := &Store{db: db, ops: ops{q: db}}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// WithTx runs fn inside one transaction, committing on nil and rolling
// back on error or panic.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	raw, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	tx := &Tx{tx: raw, ops: ops{q: raw}}
	defer func() {
		if p := recover(); p != nil {
			_ = raw.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		_ = raw.Rollback()
		return err
	}
	if err := raw.Commit(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *Store) migrate() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			email TEXT NOT NULL UNIQUE COLLATE NOCASE,
			password_hash TEXT NOT NULL,
			role TEXT NOT NULL DEFAULT 'viewer',
			trust_policy TEXT NOT NULL DEFAULT 'standard',
			is_admin INTEGER NOT NULL DEFAULT 0,
			is_approved INTEGER NOT NULL DEFAULT 0,
			is_blocked INTEGER NOT NULL DEFAULT 0,
			is_deleted INTEGER NOT NULL DEFAULT 0,
			token_version INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS login_challenges (
			id TEXT PRIMARY KEY,
			account_id INTEGER NOT NULL REFERENCES accounts(id),
			code_hash TEXT NOT NULL,
			expires_at INTEGER NOT NULL,
			used_at INTEGER,
			attempts INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_login_challenges_account
			ON login_challenges(account_id)`,
		`CREATE TABLE IF NOT EXISTS trusted_devices (
			id TEXT PRIMARY KEY,
			account_id INTEGER NOT NULL REFERENCES accounts(id),
			token_hash TEXT NOT NULL,
			policy TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			expires_at INTEGER,
			last_used_at INTEGER,
			revoked_at INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trusted_devices_account
			ON trusted_devices(account_id)`,
		`CREATE INDEX IF NOT EXISTS idx_trusted_devices_hash
			ON trusted_devices(token_hash)`,
		`CREATE TABLE IF NOT EXISTS audit_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			actor_account_id INTEGER REFERENCES accounts(id),
			target_account_id INTEGER REFERENCES accounts(id),
			action TEXT NOT NULL,
			metadata TEXT,
			ip TEXT NOT NULL DEFAULT '',
			user_agent TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_log_target
			ON audit_log(target_account_id)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_log_action
			ON audit_log(action)`,
		`CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			event_type TEXT NOT NULL,
			channel TEXT NOT NULL,
			severity TEXT NOT NULL DEFAULT 'info',
			title TEXT NOT NULL,
			body TEXT NOT NULL DEFAULT '',
			target_path TEXT NOT NULL DEFAULT '',
			target_ref TEXT NOT NULL DEFAULT '',
			actor_account_id INTEGER REFERENCES accounts(id),
			target_account_id INTEGER REFERENCES accounts(id),
			metadata TEXT,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_channel_created
			ON events(channel, created_at)`,
		`CREATE TABLE IF NOT EXISTS event_user_state (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			event_id INTEGER NOT NULL REFERENCES events(id),
			account_id INTEGER NOT NULL REFERENCES accounts(id),
			is_read INTEGER NOT NULL DEFAULT 0,
			read_at INTEGER,
			is_dismissed INTEGER NOT NULL DEFAULT 0,
			dismissed_at INTEGER,
			is_handled INTEGER NOT NULL DEFAULT 0,
			handled_at INTEGER,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			UNIQUE(event_id, account_id)
		)`,
		`CREATE TABLE IF NOT EXISTS login_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			account_id INTEGER REFERENCES accounts(id),
			email TEXT NOT NULL,
			ip TEXT NOT NULL DEFAULT '',
			user_agent TEXT NOT NULL DEFAULT '',
			result TEXT NOT NULL,
			source TEXT NOT NULL,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_login_history_email
			ON login_history(email)`,
	}

	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	return nil
}

func unixPtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Unix()
}

func timeFromUnix(v int64) time.Time {
	return time.Unix(v, 0).UTC()
}

func timePtrFromNull(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := timeFromUnix(v.Int64)
	return &t
}

func int64PtrFromNull(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}

func nullableID(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}
