package store

import (
	"context"
	"database/sql"
	"time"

	"mira/internal/model"
)

// UpsertFact inserts a new memory fact, or bumps confidence/session_count
// on an existing one found by (user_id, category, fact_type, content).
// Unlike analyses, facts have no natural single-row key; the match here
// is advisory dedup for the pattern-mining task, not a DB constraint.
func (s *Store) UpsertFact(ctx context.Context, f model.MemoryFact) (int64, error) {
	now := time.Now()
	var existing int64
	err := s.db.QueryRowContext(ctx, `
		SELECT id FROM memory_facts WHERE user_id = ? AND category = ? AND fact_type = ? AND content = ?`,
		f.UserID, f.Category, f.FactType, f.Content).Scan(&existing)

	if err == nil {
		_, uerr := s.db.ExecContext(ctx, `
			UPDATE memory_facts SET confidence = ?, session_count = session_count + 1, updated_at = ? WHERE id = ?`,
			f.Confidence, now.Unix(), existing)
		if uerr != nil {
			return 0, &model.StorageError{Kind: model.StorageConnection, Err: uerr}
		}
		return existing, nil
	}
	if err != sql.ErrNoRows {
		return 0, &model.StorageError{Kind: model.StorageConnection, Err: err}
	}

	if f.Status == "" {
		f.Status = model.FactPending
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO memory_facts (user_id, category, fact_type, content, confidence, session_count, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 1, ?, ?, ?)`,
		f.UserID, f.Category, f.FactType, f.Content, f.Confidence, string(f.Status), now.Unix(), now.Unix())
	if err != nil {
		return 0, &model.StorageError{Kind: model.StorageConstraintViolation, Err: err}
	}
	return res.LastInsertId()
}

// FactsForUser lists a user's facts, optionally filtered to a status.
func (s *Store) FactsForUser(ctx context.Context, userID string, status model.FactStatus) ([]model.MemoryFact, error) {
	query := `SELECT id, user_id, category, fact_type, content, confidence, session_count, status, created_at, updated_at
		FROM memory_facts WHERE user_id = ?`
	args := []any{userID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, string(status))
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &model.StorageError{Kind: model.StorageConnection, Err: err}
	}
	defer rows.Close()

	var out []model.MemoryFact
	for rows.Next() {
		var f model.MemoryFact
		var status string
		var createdAt, updatedAt int64
		if err := rows.Scan(&f.ID, &f.UserID, &f.Category, &f.FactType, &f.Content, &f.Confidence,
			&f.SessionCount, &status, &createdAt, &updatedAt); err != nil {
			return nil, &model.StorageError{Kind: model.StorageConnection, Err: err}
		}
		f.Status = model.FactStatus(status)
		f.CreatedAt = time.Unix(createdAt, 0).UTC()
		f.UpdatedAt = time.Unix(updatedAt, 0).UTC()
		out = append(out, f)
	}
	return out, rows.Err()
}

// SetFactStatus transitions a fact's graduation status.
func (s *Store) SetFactStatus(ctx context.Context, id int64, status model.FactStatus) error {
	_, err := s.db.ExecContext(ctx, `UPDATE memory_facts SET status = ?, updated_at = ? WHERE id = ?`, string(status), time.Now().Unix(), id)
	if err != nil {
		return &model.StorageError{Kind: model.StorageConnection, Err: err}
	}
	return nil
}

// UpsertPattern inserts or reinforces a learned pattern keyed on
// (user_id, pattern_type, pattern_name).
func (s *Store) UpsertPattern(ctx context.Context, p model.LearnedPattern) error {
	now := time.Now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO learned_patterns (user_id, pattern_type, pattern_name, confidence, times_observed, times_applied, deprecated, created_at, updated_at)
		VALUES (?, ?, ?, ?, 1, 0, 0, ?, ?)
		ON CONFLICT(user_id, pattern_type, pattern_name) DO UPDATE SET
			confidence = excluded.confidence, times_observed = learned_patterns.times_observed + 1, updated_at = excluded.updated_at`,
		p.UserID, p.PatternType, p.PatternName, p.Confidence, now.Unix(), now.Unix())
	if err != nil {
		return &model.StorageError{Kind: model.StorageConstraintViolation, Err: err}
	}
	return nil
}

// DistinctPatternUserIDs lists every user_id with at least one
// non-deprecated learned pattern, for the proactive-suggestion task to
// iterate without needing a separate user registry.
func (s *Store) DistinctPatternUserIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT user_id FROM learned_patterns WHERE deprecated = 0`)
	if err != nil {
		return nil, &model.StorageError{Kind: model.StorageConnection, Err: err}
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, &model.StorageError{Kind: model.StorageConnection, Err: err}
		}
		out = append(out, userID)
	}
	return out, rows.Err()
}

// PatternsForUser lists non-deprecated learned patterns for a user.
func (s *Store) PatternsForUser(ctx context.Context, userID string) ([]model.LearnedPattern, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, pattern_type, pattern_name, confidence, times_observed, times_applied, deprecated, created_at, updated_at
		FROM learned_patterns WHERE user_id = ? AND deprecated = 0`, userID)
	if err != nil {
		return nil, &model.StorageError{Kind: model.StorageConnection, Err: err}
	}
	defer rows.Close()

	var out []model.LearnedPattern
	for rows.Next() {
		var p model.LearnedPattern
		var createdAt, updatedAt int64
		if err := rows.Scan(&p.ID, &p.UserID, &p.PatternType, &p.PatternName, &p.Confidence,
			&p.TimesObserved, &p.TimesApplied, &p.Deprecated, &createdAt, &updatedAt); err != nil {
			return nil, &model.StorageError{Kind: model.StorageConnection, Err: err}
		}
		p.CreatedAt = time.Unix(createdAt, 0).UTC()
		p.UpdatedAt = time.Unix(updatedAt, 0).UTC()
		out = append(out, p)
	}
	return out, rows.Err()
}

// EnqueueDocTask records a detected documentation-drift candidate.
func (s *Store) EnqueueDocTask(ctx context.Context, t model.DocTask) (int64, error) {
	now := time.Now()
	if t.Status == "" {
		t.Status = model.DocTaskPending
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO doc_tasks (doc_type, target_doc_path, priority, status, source_signature_hash,
			target_doc_checksum_at_generation, draft_content, draft_sha256, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.DocType, t.TargetDocPath, t.Priority, string(t.Status), t.SourceSignatureHash,
		t.TargetDocChecksumAtGen, t.DraftContent, t.DraftSHA256, now.Unix(), now.Unix())
	if err != nil {
		return 0, &model.StorageError{Kind: model.StorageConstraintViolation, Err: err}
	}
	return res.LastInsertId()
}

// PendingDocTasks lists doc tasks awaiting drafting or approval, highest
// priority first.
func (s *Store) PendingDocTasks(ctx context.Context, limit int) ([]model.DocTask, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, doc_type, target_doc_path, priority, status, source_signature_hash,
			target_doc_checksum_at_generation, draft_content, draft_sha256, created_at, updated_at
		FROM doc_tasks WHERE status IN ('pending', 'draft_ready') ORDER BY priority DESC, id ASC LIMIT ?`, limit)
	if err != nil {
		return nil, &model.StorageError{Kind: model.StorageConnection, Err: err}
	}
	defer rows.Close()

	var out []model.DocTask
	for rows.Next() {
		var t model.DocTask
		var status string
		var createdAt, updatedAt int64
		if err := rows.Scan(&t.ID, &t.DocType, &t.TargetDocPath, &t.Priority, &status, &t.SourceSignatureHash,
			&t.TargetDocChecksumAtGen, &t.DraftContent, &t.DraftSHA256, &createdAt, &updatedAt); err != nil {
			return nil, &model.StorageError{Kind: model.StorageConnection, Err: err}
		}
		t.Status = model.DocTaskStatus(status)
		t.CreatedAt = time.Unix(createdAt, 0).UTC()
		t.UpdatedAt = time.Unix(updatedAt, 0).UTC()
		out = append(out, t)
	}
	return out, rows.Err()
}

// UpdateDocTaskDraft records a generated draft and moves the task to
// draft_ready.
func (s *Store) UpdateDocTaskDraft(ctx context.Context, id int64, draft string, sha256Hex string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE doc_tasks SET draft_content = ?, draft_sha256 = ?, status = ?, updated_at = ? WHERE id = ?`,
		draft, sha256Hex, string(model.DocTaskDraftReady), time.Now().Unix(), id)
	if err != nil {
		return &model.StorageError{Kind: model.StorageConnection, Err: err}
	}
	return nil
}

// SetDocTaskStatus transitions a doc task's status (approved/applied/skipped).
func (s *Store) SetDocTaskStatus(ctx context.Context, id int64, status model.DocTaskStatus) error {
	_, err := s.db.ExecContext(ctx, `UPDATE doc_tasks SET status = ?, updated_at = ? WHERE id = ?`, string(status), time.Now().Unix(), id)
	if err != nil {
		return &model.StorageError{Kind: model.StorageConnection, Err: err}
	}
	return nil
}
