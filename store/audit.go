package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

func encodeMetadata(m map[string]any) (any, error) {
	if len(m) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return string(raw), nil
}

func decodeMetadata(raw sql.NullString) map[string]any {
	if !raw.Valid || raw.String == "" {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(raw.String), &m); err != nil {
		return nil
	}
	return m
}

// AppendAudit inserts one audit row and returns its id.
func (o ops) AppendAudit(ctx context.Context, rec *AuditRecord) (int64, error) {
	meta, err := encodeMetadata(rec.Metadata)
	if err != nil {
		return 0, err
	}
	now := time.Now().UTC()
	res, err := o.q.ExecContext(ctx, `
		INSERT INTO audit_log (actor_account_id, target_account_id, action, metadata, ip, user_agent, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		nullableID(rec.ActorAccountID), nullableID(rec.TargetAccountID),
		rec.Action, meta, rec.IP, rec.UserAgent, now.Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	rec.ID = id
	rec.CreatedAt = now
	return id, nil
}

// AuditFilter narrows ListAudit. Zero value lists everything, newest first.
type AuditFilter struct {
	TargetAccountID *int64
	Action          string
	Limit           int
}

// ListAudit returns audit rows newest first.
func (o ops) ListAudit(ctx context.Context, filter AuditFilter) ([]*AuditRecord, error) {
	query := `SELECT id, actor_account_id, target_account_id, action, metadata, ip, user_agent, created_at
		FROM audit_log`
	var (
		clauses []string
		args    []any
	)
	if filter.TargetAccountID != nil {
		clauses = append(clauses, "target_account_id = ?")
		args = append(args, *filter.TargetAccountID)
	}
	if filter.Action != "" {
		clauses = append(clauses, "action = ?")
		args = append(args, filter.Action)
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

	var records []*AuditRecord
	for rows.Next() {
		var (
			rec           AuditRecord
			actor, target sql.NullInt64
			meta          sql.NullString
			createdAt     int64
		)
		if err := rows.Scan(&rec.ID, &actor, &target, &rec.Action, &meta,
			&rec.IP, &rec.UserAgent, &createdAt); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		rec.ActorAccountID = int64PtrFromNull(actor)
		rec.TargetAccountID = int64PtrFromNull(target)
		rec.Metadata = decodeMetadata(meta)
		rec.CreatedAt = timeFromUnix(createdAt)
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return records, nil
}

// AuditByID fetches a single audit row.
func (o ops) AuditByID(ctx context.Context, id int64) (*AuditRecord, error) {
	row := o.q.QueryRowContext(ctx, `
		SELECT id, actor_account_id, target_account_id, action, metadata, ip, user_agent, created_at
		FROM audit_log WHERE id = ?`, id)

	var (
		rec           AuditRecord
		actor, target sql.NullInt64
		meta          sql.NullString
		createdAt     int64
	)
	err := row.Scan(&rec.ID, &actor, &target, &rec.Action, &meta,
		&rec.IP, &rec.UserAgent, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	rec.ActorAccountID = int64PtrFromNull(actor)
	rec.TargetAccountID = int64PtrFromNull(target)
	rec.Metadata = decodeMetadata(meta)
	rec.CreatedAt = timeFromUnix(createdAt)
	return &rec, nil
}
