package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"mira/internal/model"
)

// InsertOperation records a new operation in the pending state.
func (s *Store) InsertOperation(ctx context.Context, op model.Operation) error {
	if op.CreatedAt.IsZero() {
		op.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO operations (id, session_id, kind, status, started_at, completed_at, result, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		op.ID, op.SessionID, string(op.Kind), string(op.Status), unixPtr(op.StartedAt), unixPtr(op.CompletedAt),
		op.Result, op.Error, op.CreatedAt.Unix())
	if err != nil {
		return &model.StorageError{Kind: model.StorageConstraintViolation, Err: err}
	}
	return nil
}

// TransitionOperation applies a state-machine transition. The caller
// (operation.Engine) is responsible for validating the transition before
// calling; this method persists whatever status is given.
func (s *Store) TransitionOperation(ctx context.Context, id string, status model.OperationStatus, startedAt, completedAt *time.Time, result, errMsg *string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE operations SET status = ?, started_at = COALESCE(?, started_at),
			completed_at = COALESCE(?, completed_at), result = COALESCE(?, result), error = COALESCE(?, error)
		WHERE id = ?`,
		string(status), unixPtr(startedAt), unixPtr(completedAt), result, errMsg, id)
	if err != nil {
		return &model.StorageError{Kind: model.StorageConnection, Err: err}
	}
	return nil
}

// GetOperation fetches an operation by id.
func (s *Store) GetOperation(ctx context.Context, id string) (model.Operation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, kind, status, started_at, completed_at, result, error, created_at
		FROM operations WHERE id = ?`, id)

	var op model.Operation
	var kind, status string
	var startedAt, completedAt sql.NullInt64
	var createdAt int64
	err := row.Scan(&op.ID, &op.SessionID, &kind, &status, &startedAt, &completedAt, &op.Result, &op.Error, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Operation{}, &model.StorageError{Kind: model.StorageNotFound, Err: err}
	}
	if err != nil {
		return model.Operation{}, &model.StorageError{Kind: model.StorageConnection, Err: err}
	}
	op.Kind = model.OperationKind(kind)
	op.Status = model.OperationStatus(status)
	op.CreatedAt = time.Unix(createdAt, 0).UTC()
	if startedAt.Valid {
		t := time.Unix(startedAt.Int64, 0).UTC()
		op.StartedAt = &t
	}
	if completedAt.Valid {
		t := time.Unix(completedAt.Int64, 0).UTC()
		op.CompletedAt = &t
	}
	return op, nil
}

func unixPtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Unix()
}

// InsertArtifact persists a new artifact version.
func (s *Store) InsertArtifact(ctx context.Context, a model.Artifact) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO artifacts (id, operation_id, kind, file_path, language, content, content_hash, diff, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.OperationID, a.Kind, a.FilePath, a.Language, a.Content, a.ContentHash, a.Diff, a.CreatedAt.Unix())
	if err != nil {
		return &model.StorageError{Kind: model.StorageConstraintViolation, Err: err}
	}
	return nil
}

// LatestArtifactForPath returns the most recent artifact previously
// written for (operationID, filePath), or a StorageNotFound error if this
// is the first version.
func (s *Store) LatestArtifactForPath(ctx context.Context, operationID string, filePath string) (model.Artifact, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, operation_id, kind, file_path, language, content, content_hash, diff, created_at
		FROM artifacts WHERE operation_id = ? AND file_path = ?
		ORDER BY created_at DESC, rowid DESC LIMIT 1`, operationID, filePath)
	return scanArtifact(row)
}

func scanArtifact(row *sql.Row) (model.Artifact, error) {
	var a model.Artifact
	var createdAt int64
	err := row.Scan(&a.ID, &a.OperationID, &a.Kind, &a.FilePath, &a.Language, &a.Content, &a.ContentHash, &a.Diff, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Artifact{}, &model.StorageError{Kind: model.StorageNotFound, Err: err}
	}
	if err != nil {
		return model.Artifact{}, &model.StorageError{Kind: model.StorageConnection, Err: err}
	}
	a.CreatedAt = time.Unix(createdAt, 0).UTC()
	return a, nil
}

// ListArtifactsForOperation returns every artifact version created for an
// operation, oldest first.
func (s *Store) ListArtifactsForOperation(ctx context.Context, operationID string) ([]model.Artifact, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, operation_id, kind, file_path, language, content, content_hash, diff, created_at
		FROM artifacts WHERE operation_id = ? ORDER BY created_at ASC, rowid ASC`, operationID)
	if err != nil {
		return nil, &model.StorageError{Kind: model.StorageConnection, Err: err}
	}
	defer rows.Close()

	var out []model.Artifact
	for rows.Next() {
		var a model.Artifact
		var createdAt int64
		if err := rows.Scan(&a.ID, &a.OperationID, &a.Kind, &a.FilePath, &a.Language, &a.Content, &a.ContentHash, &a.Diff, &createdAt); err != nil {
			return nil, &model.StorageError{Kind: model.StorageConnection, Err: err}
		}
		a.CreatedAt = time.Unix(createdAt, 0).UTC()
		out = append(out, a)
	}
	return out, rows.Err()
}
