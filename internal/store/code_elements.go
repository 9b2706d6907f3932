package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"mira/internal/model"
)

// UpsertCodeElement inserts or replaces a code element keyed on
// (file_id, full_path), matching the unique constraint that drives
// selective re-embedding: a matching signature_hash on conflict means the
// caller can skip re-embedding this element.
func (s *Store) UpsertCodeElement(ctx context.Context, e model.CodeElement) (int64, error) {
	now := time.Now()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.UpdatedAt = now

	var metaJSON []byte
	if e.Metadata != nil {
		var err error
		metaJSON, err = json.Marshal(e.Metadata)
		if err != nil {
			return 0, &model.PipelineError{Kind: model.PipelineAnalysisParse, Err: err}
		}
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO code_elements (file_id, language, element_type, name, full_path, visibility,
			start_line, end_line, content, signature_hash, complexity_score, is_test, is_async,
			documentation, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(file_id, full_path) DO UPDATE SET
			language=excluded.language, element_type=excluded.element_type, name=excluded.name,
			visibility=excluded.visibility, start_line=excluded.start_line, end_line=excluded.end_line,
			content=excluded.content, signature_hash=excluded.signature_hash,
			complexity_score=excluded.complexity_score, is_test=excluded.is_test, is_async=excluded.is_async,
			documentation=excluded.documentation, metadata=excluded.metadata, updated_at=excluded.updated_at`,
		e.FileID, e.Language, string(e.ElementType), e.Name, e.FullPath, string(e.Visibility),
		e.StartLine, e.EndLine, e.Content, e.SignatureHash, e.ComplexityScore, e.IsTest, e.IsAsync,
		e.Documentation, string(metaJSON), e.CreatedAt.Unix(), e.UpdatedAt.Unix())
	if err != nil {
		return 0, &model.StorageError{Kind: model.StorageConstraintViolation, Err: err}
	}

	var id int64
	if err := s.db.QueryRowContext(ctx, `SELECT id FROM code_elements WHERE file_id = ? AND full_path = ?`, e.FileID, e.FullPath).Scan(&id); err != nil {
		id, _ = res.LastInsertId()
	}
	return id, nil
}

// ElementsForFile lists the code elements currently recorded for a file,
// used to diff against a fresh parse and find removed elements.
func (s *Store) ElementsForFile(ctx context.Context, fileID string) ([]model.CodeElement, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, file_id, language, element_type, name, full_path, visibility, start_line, end_line,
			content, signature_hash, complexity_score, is_test, is_async, documentation, metadata, created_at, updated_at
		FROM code_elements WHERE file_id = ?`, fileID)
	if err != nil {
		return nil, &model.StorageError{Kind: model.StorageConnection, Err: err}
	}
	defer rows.Close()

	var out []model.CodeElement
	for rows.Next() {
		e, err := scanCodeElement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// SignatureHashForPath returns the currently stored signature hash for an
// element, used to decide whether a re-parsed element is unchanged and
// can skip re-embedding. Returns StorageNotFound if the element is new.
func (s *Store) SignatureHashForPath(ctx context.Context, fileID, fullPath string) (string, error) {
	var hash string
	err := s.db.QueryRowContext(ctx, `SELECT signature_hash FROM code_elements WHERE file_id = ? AND full_path = ?`, fileID, fullPath).Scan(&hash)
	if err == sql.ErrNoRows {
		return "", &model.StorageError{Kind: model.StorageNotFound, Err: err}
	}
	if err != nil {
		return "", &model.StorageError{Kind: model.StorageConnection, Err: err}
	}
	return hash, nil
}

// DeleteFileElements removes all code elements (and their dependent
// quality_issues / review_findings / external_dependencies rows) for a
// file, used when a file is deleted or invalidated wholesale.
func (s *Store) DeleteFileElements(ctx context.Context, fileID string) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `SELECT id FROM code_elements WHERE file_id = ?`, fileID)
		if err != nil {
			return err
		}
		var ids []int64
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return err
			}
			ids = append(ids, id)
		}
		rows.Close()

		for _, id := range ids {
			if _, err := tx.ExecContext(ctx, `DELETE FROM quality_issues WHERE element_id = ?`, id); err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM review_findings WHERE element_id = ?`, id); err != nil {
				return err
			}
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM external_dependencies WHERE file_id = ?`, fileID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM code_elements WHERE file_id = ?`, fileID); err != nil {
			return err
		}
		return nil
	})
}

// DeleteQualityIssuesForElement clears a single element's prior detector
// findings, used before re-inserting a fresh set on re-sync so repeated
// parses don't accumulate duplicate rows for the same element.
func (s *Store) DeleteQualityIssuesForElement(ctx context.Context, elementID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM quality_issues WHERE element_id = ?`, elementID)
	if err != nil {
		return &model.StorageError{Kind: model.StorageConnection, Err: err}
	}
	return nil
}

// DeleteExternalDependenciesForFile clears a file's prior dependency
// edges, used before re-inserting a fresh set on re-sync since
// ExternalDependency carries no identity to upsert against.
func (s *Store) DeleteExternalDependenciesForFile(ctx context.Context, fileID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM external_dependencies WHERE file_id = ?`, fileID)
	if err != nil {
		return &model.StorageError{Kind: model.StorageConnection, Err: err}
	}
	return nil
}

func scanCodeElement(rows *sql.Rows) (model.CodeElement, error) {
	var e model.CodeElement
	var elementType, visibility string
	var metaJSON sql.NullString
	var createdAt, updatedAt int64
	if err := rows.Scan(&e.ID, &e.FileID, &e.Language, &elementType, &e.Name, &e.FullPath, &visibility,
		&e.StartLine, &e.EndLine, &e.Content, &e.SignatureHash, &e.ComplexityScore, &e.IsTest, &e.IsAsync,
		&e.Documentation, &metaJSON, &createdAt, &updatedAt); err != nil {
		return model.CodeElement{}, &model.StorageError{Kind: model.StorageConnection, Err: err}
	}
	e.ElementType = model.ElementType(elementType)
	e.Visibility = model.Visibility(visibility)
	e.CreatedAt = time.Unix(createdAt, 0).UTC()
	e.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	if metaJSON.Valid && metaJSON.String != "" {
		_ = json.Unmarshal([]byte(metaJSON.String), &e.Metadata)
	}
	return e, nil
}

// InsertQualityIssue records a detector finding against a code element.
func (s *Store) InsertQualityIssue(ctx context.Context, i model.QualityIssue) error {
	now := time.Now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO quality_issues (element_id, detector, severity, message, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		i.ElementID, i.Detector, string(i.Severity), i.Message, now.Unix())
	if err != nil {
		return &model.StorageError{Kind: model.StorageConstraintViolation, Err: err}
	}
	return nil
}

// InsertExternalDependency records a classified import/dependency edge
// for a file.
func (s *Store) InsertExternalDependency(ctx context.Context, d model.ExternalDependency) error {
	now := time.Now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO external_dependencies (file_id, path, kind, created_at)
		VALUES (?, ?, ?, ?)`,
		d.FileID, d.Path, string(d.Kind), now.Unix())
	if err != nil {
		return &model.StorageError{Kind: model.StorageConstraintViolation, Err: err}
	}
	return nil
}

// InsertReviewFinding records a review comment against a code element.
func (s *Store) InsertReviewFinding(ctx context.Context, f model.ReviewFinding) error {
	now := time.Now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO review_findings (element_id, category, message, created_at)
		VALUES (?, ?, ?, ?)`,
		f.ElementID, f.Category, f.Message, now.Unix())
	if err != nil {
		return &model.StorageError{Kind: model.StorageConstraintViolation, Err: err}
	}
	return nil
}
