package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"mira/internal/model"
)

// CreateBackgroundSession registers a background session with its
// parent, matching the original implementation's chat_sessions insert
// for a codex session tied to a voice session. Interactive sessions
// don't need an explicit create call: ensureSession lazily rows them
// in on first message.
func (s *Store) CreateBackgroundSession(ctx context.Context, sessionID, parentSessionID string) error {
	now := time.Now().Unix()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, type, parent_session_id, message_count, last_active, created_at)
		 VALUES (?, 'background', ?, 0, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		sessionID, parentSessionID, now, now)
	if err != nil {
		return &model.StorageError{Kind: model.StorageConstraintViolation, Err: err}
	}
	return nil
}

// GetSession loads a session's row, including its parent if it is a
// background session.
func (s *Store) GetSession(ctx context.Context, sessionID string) (model.Session, error) {
	var sess model.Session
	var typ string
	var parent sql.NullString
	var lastActive, createdAt int64

	row := s.db.QueryRowContext(ctx,
		`SELECT id, type, parent_session_id, message_count, last_active, created_at FROM sessions WHERE id = ?`,
		sessionID)
	if err := row.Scan(&sess.ID, &typ, &parent, &sess.MessageCount, &lastActive, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Session{}, &model.StorageError{Kind: model.StorageNotFound, Err: err}
		}
		return model.Session{}, &model.StorageError{Kind: model.StorageConnection, Err: err}
	}

	sess.Type = model.SessionType(typ)
	if parent.Valid {
		sess.ParentSessionID = &parent.String
	}
	sess.LastActive = time.Unix(lastActive, 0).UTC()
	sess.CreatedAt = time.Unix(createdAt, 0).UTC()
	return sess, nil
}
