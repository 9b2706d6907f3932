package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"mira/internal/model"
)

// InsertInjection persists a new injection for a background session and
// assigns it the next sequence number for the target session, following
// the original implementation's SELECT COALESCE(MAX(sequence_num),0)+1
// pattern.
func (s *Store) InsertInjection(ctx context.Context, inj model.Injection) (model.Injection, error) {
	if inj.CreatedAt.IsZero() {
		inj.CreatedAt = time.Now()
	}
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		var next int
		row := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(sequence_num), 0) + 1 FROM injections WHERE target_session_id = ?`, inj.TargetSessionID)
		if err := row.Scan(&next); err != nil {
			return err
		}
		inj.SequenceNum = next

		var metaJSON []byte
		if inj.Metadata != nil {
			var err error
			metaJSON, err = json.Marshal(inj.Metadata)
			if err != nil {
				return err
			}
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO injections (target_session_id, source_session_id, injection_type, content, metadata, sequence_num, acknowledged, created_at)
			VALUES (?, ?, ?, ?, ?, ?, 0, ?)`,
			inj.TargetSessionID, inj.SourceSessionID, string(inj.Type), inj.Content, string(metaJSON), inj.SequenceNum, inj.CreatedAt.Unix())
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		inj.ID = id
		return nil
	})
	if err != nil {
		return model.Injection{}, &model.StorageError{Kind: model.StorageConstraintViolation, Err: err}
	}
	return inj, nil
}

// PendingInjections returns unacknowledged injections for a session, in
// sequence order.
func (s *Store) PendingInjections(ctx context.Context, targetSessionID string) ([]model.Injection, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, target_session_id, source_session_id, injection_type, content, metadata,
			sequence_num, acknowledged, acknowledged_at, created_at
		FROM injections WHERE target_session_id = ? AND acknowledged = 0
		ORDER BY sequence_num ASC`, targetSessionID)
	if err != nil {
		return nil, &model.StorageError{Kind: model.StorageConnection, Err: err}
	}
	defer rows.Close()
	return scanInjections(rows)
}

// RecentInjections returns the most recent injections for a session
// regardless of acknowledgement, newest first, capped at limit.
func (s *Store) RecentInjections(ctx context.Context, targetSessionID string, limit int) ([]model.Injection, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, target_session_id, source_session_id, injection_type, content, metadata,
			sequence_num, acknowledged, acknowledged_at, created_at
		FROM injections WHERE target_session_id = ?
		ORDER BY sequence_num DESC LIMIT ?`, targetSessionID, limit)
	if err != nil {
		return nil, &model.StorageError{Kind: model.StorageConnection, Err: err}
	}
	defer rows.Close()
	return scanInjections(rows)
}

func scanInjections(rows *sql.Rows) ([]model.Injection, error) {
	var out []model.Injection
	for rows.Next() {
		var inj model.Injection
		var typ string
		var metaJSON sql.NullString
		var ackAt sql.NullInt64
		var createdAt int64
		if err := rows.Scan(&inj.ID, &inj.TargetSessionID, &inj.SourceSessionID, &typ, &inj.Content, &metaJSON,
			&inj.SequenceNum, &inj.Acknowledged, &ackAt, &createdAt); err != nil {
			return nil, &model.StorageError{Kind: model.StorageConnection, Err: err}
		}
		inj.Type = model.InjectionType(typ)
		inj.CreatedAt = time.Unix(createdAt, 0).UTC()
		if metaJSON.Valid && metaJSON.String != "" {
			_ = json.Unmarshal([]byte(metaJSON.String), &inj.Metadata)
		}
		if ackAt.Valid {
			t := time.Unix(ackAt.Int64, 0).UTC()
			inj.AcknowledgedAt = &t
		}
		out = append(out, inj)
	}
	return out, rows.Err()
}

// AcknowledgeInjection marks a single injection acknowledged.
func (s *Store) AcknowledgeInjection(ctx context.Context, id int64) error {
	now := time.Now().Unix()
	res, err := s.db.ExecContext(ctx, `UPDATE injections SET acknowledged = 1, acknowledged_at = ? WHERE id = ?`, now, id)
	if err != nil {
		return &model.StorageError{Kind: model.StorageConnection, Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return &model.StorageError{Kind: model.StorageConnection, Err: err}
	}
	if n == 0 {
		return &model.StorageError{Kind: model.StorageNotFound, Err: errors.New("injection not found")}
	}
	return nil
}

// AcknowledgeAllInjections atomically marks every pending injection for a
// session acknowledged, matching acknowledge_all in the original
// implementation.
func (s *Store) AcknowledgeAllInjections(ctx context.Context, targetSessionID string) (int64, error) {
	now := time.Now().Unix()
	res, err := s.db.ExecContext(ctx, `
		UPDATE injections SET acknowledged = 1, acknowledged_at = ?
		WHERE target_session_id = ? AND acknowledged = 0`, now, targetSessionID)
	if err != nil {
		return 0, &model.StorageError{Kind: model.StorageConnection, Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, &model.StorageError{Kind: model.StorageConnection, Err: err}
	}
	return n, nil
}
