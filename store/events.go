package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// InsertEvent persists a new event and returns its id.
func (o ops) InsertEvent(ctx context.Context, e *Event) (int64, error) {
	meta, err := encodeMetadata(e.Metadata)
	if err != nil {
		return 0, err
	}
	now := time.Now().UTC()
	res, err := o.q.ExecContext(ctx, `
		INSERT INTO events (event_type, channel, severity, title, body,
			target_path, target_ref, actor_account_id, target_account_id, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Type, e.Channel, e.Severity, e.Title, e.Body,
		e.TargetPath, e.TargetRef, nullableID(e.ActorAccountID),
		nullableID(e.TargetAccountID), meta, now.Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	e.ID = id
	e.CreatedAt = now
	return id, nil
}

func scanEvent(row interface{ Scan(dest ...any) error }) (*Event, error) {
	var (
		e             Event
		actor, target sql.NullInt64
		meta          sql.NullString
		createdAt     int64
	)
	err := row.Scan(&e.ID, &e.Type, &e.Channel, &e.Severity, &e.Title, &e.Body,
		&e.TargetPath, &e.TargetRef, &actor, &target, &meta, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	e.ActorAccountID = int64PtrFromNull(actor)
	e.TargetAccountID = int64PtrFromNull(target)
	e.Metadata = decodeMetadata(meta)
	e.CreatedAt = timeFromUnix(createdAt)
	return &e, nil
}

const eventColumns = `id, event_type, channel, severity, title, body,
	target_path, target_ref, actor_account_id, target_account_id, metadata, created_at`

// EventByID fetches a single event.
func (o ops) EventByID(ctx context.Context, id int64) (*Event, error) {
	row := o.q.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = ?`, id)
	return scanEvent(row)
}

// EventFilter narrows ListEvents. Zero value lists everything, newest first.
type EventFilter struct {
	Channel string
	Limit   int
}

// ListEvents returns events newest first.
func (o ops) ListEvents(ctx context.Context, filter EventFilter) ([]*Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events`
	var args []any
	if filter.Channel != "" {
		query += " WHERE channel = ?"
		args = append(args, filter.Channel)
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

	var events []*Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return events, nil
}

const stateColumns = `id, event_id, account_id, is_read, read_at,
	is_dismissed, dismissed_at, is_handled, handled_at, created_at, updated_at`

func scanState(row interface{ Scan(dest ...any) error }) (*EventUserState, error) {
	var (
		s                            EventUserState
		readAt, dismissedAt, handled sql.NullInt64
		createdAt, updatedAt         int64
	)
	err := row.Scan(&s.ID, &s.EventID, &s.AccountID, &s.IsRead, &readAt,
		&s.IsDismissed, &dismissedAt, &s.IsHandled, &handled, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	s.ReadAt = timePtrFromNull(readAt)
	s.DismissedAt = timePtrFromNull(dismissedAt)
	s.HandledAt = timePtrFromNull(handled)
	s.CreatedAt = timeFromUnix(createdAt)
	s.UpdatedAt = timeFromUnix(updatedAt)
	return &s, nil
}

// EnsureEventState returns the per-account state row for the event,
// creating the all-false default on first access.
func (o ops) EnsureEventState(ctx context.Context, eventID, accountID int64) (*EventUserState, error) {
	now := time.Now().UTC().Unix()
	_, err := o.q.ExecContext(ctx, `
		INSERT INTO event_user_state (event_id, account_id, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(event_id, account_id) DO NOTHING`,
		eventID, accountID, now, now)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	row := o.q.QueryRowContext(ctx, `
		SELECT `+stateColumns+` FROM event_user_state
		WHERE event_id = ? AND account_id = ?`, eventID, accountID)
	return scanState(row)
}

// MarkEventRead sets is_read without touching dismissed or handled.
func (o ops) MarkEventRead(ctx context.Context, eventID, accountID int64, at time.Time) error {
	if _, err := o.EnsureEventState(ctx, eventID, accountID); err != nil {
		return err
	}
	_, err := o.q.ExecContext(ctx, `
		UPDATE event_user_state SET is_read = 1, read_at = ?, updated_at = ?
		WHERE event_id = ? AND account_id = ? AND is_read = 0`,
		at.Unix(), at.Unix(), eventID, accountID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// MarkEventUnread clears the read flag. Dismissed and handled flags are
// left alone.
func (o ops) MarkEventUnread(ctx context.Context, eventID, accountID int64, at time.Time) error {
	if _, err := o.EnsureEventState(ctx, eventID, accountID); err != nil {
		return err
	}
	_, err := o.q.ExecContext(ctx, `
		UPDATE event_user_state SET is_read = 0, read_at = NULL, updated_at = ?
		WHERE event_id = ? AND account_id = ?`,
		at.Unix(), eventID, accountID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// SetEventDismissed toggles dismissal. Dismissing also marks the event read.
func (o ops) SetEventDismissed(ctx context.Context, eventID, accountID int64, dismissed bool, at time.Time) error {
	if _, err := o.EnsureEventState(ctx, eventID, accountID); err != nil {
		return err
	}
	var err error
	if dismissed {
		_, err = o.q.ExecContext(ctx, `
			UPDATE event_user_state SET is_dismissed = 1, dismissed_at = ?,
				is_read = 1, read_at = COALESCE(read_at, ?), updated_at = ?
			WHERE event_id = ? AND account_id = ?`,
			at.Unix(), at.Unix(), at.Unix(), eventID, accountID)
	} else {
		_, err = o.q.ExecContext(ctx, `
			UPDATE event_user_state SET is_dismissed = 0, dismissed_at = NULL, updated_at = ?
			WHERE event_id = ? AND account_id = ?`,
			at.Unix(), eventID, accountID)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// SetEventHandled toggles the handled flag. Handling also marks the
// event read.
func (o ops) SetEventHandled(ctx context.Context, eventID, accountID int64, handled bool, at time.Time) error {
	if _, err := o.EnsureEventState(ctx, eventID, accountID); err != nil {
		return err
	}
	var err error
	if handled {
		_, err = o.q.ExecContext(ctx, `
			UPDATE event_user_state SET is_handled = 1, handled_at = ?,
				is_read = 1, read_at = COALESCE(read_at, ?), updated_at = ?
			WHERE event_id = ? AND account_id = ?`,
			at.Unix(), at.Unix(), at.Unix(), eventID, accountID)
	} else {
		_, err = o.q.ExecContext(ctx, `
			UPDATE event_user_state SET is_handled = 0, handled_at = NULL, updated_at = ?
			WHERE event_id = ? AND account_id = ?`,
			at.Unix(), eventID, accountID)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// UnreadEventCount counts events on the channel that the account has not
// read. Events with no state row count as unread.
func (o ops) UnreadEventCount(ctx context.Context, accountID int64, channel string) (int64, error) {
	var count int64
	row := o.q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM events e
		LEFT JOIN event_user_state s ON s.event_id = e.id AND s.account_id = ?
		WHERE e.channel = ? AND (s.id IS NULL OR s.is_read = 0)`,
		accountID, channel)
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return count, nil
}

// UnhandledEventCount counts action-channel events the account has not
// handled or dismissed.
func (o ops) UnhandledEventCount(ctx context.Context, accountID int64) (int64, error) {
	var count int64
	row := o.q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM events e
		LEFT JOIN event_user_state s ON s.event_id = e.id AND s.account_id = ?
		WHERE e.channel = ? AND (s.id IS NULL OR (s.is_handled = 0 AND s.is_dismissed = 0))`,
		accountID, ChannelAction)
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return count, nil
}

// EventStateFor returns the account's state for one event, or
// ErrNotFound when no row exists yet.
func (o ops) EventStateFor(ctx context.Context, eventID, accountID int64) (*EventUserState, error) {
	row := o.q.QueryRowContext(ctx, `
		SELECT `+stateColumns+` FROM event_user_state
		WHERE event_id = ? AND account_id = ?`, eventID, accountID)
	return scanState(row)
}
