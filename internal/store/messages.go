package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"mira/internal/logging"
	"mira/internal/model"
)

// SaveMessage inserts a new message row and bumps the owning session's
// counters, matching spec.md's "never mutated after insert" invariant.
func (s *Store) SaveMessage(ctx context.Context, msg model.Message) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}

	if err := s.ensureSession(ctx, msg.SessionID); err != nil {
		return 0, err
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (session_id, role, content, parent_id, kind, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		msg.SessionID, string(msg.Role), msg.Content, msg.ParentID, msg.Kind, msg.CreatedAt.Unix())
	if err != nil {
		return 0, &model.StorageError{Kind: model.StorageConstraintViolation, Err: err}
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, &model.StorageError{Kind: model.StorageConnection, Err: err}
	}

	if _, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET message_count = message_count + 1, last_active = ? WHERE id = ?`,
		msg.CreatedAt.Unix(), msg.SessionID); err != nil {
		logging.Get(logging.CategoryStore).Warnw("failed to bump session counters", "session", msg.SessionID, "err", err)
	}

	return id, nil
}

func (s *Store) ensureSession(ctx context.Context, sessionID string) error {
	now := time.Now().Unix()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, type, message_count, last_active, created_at)
		 VALUES (?, 'interactive', 0, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		sessionID, now, now)
	if err != nil {
		return &model.StorageError{Kind: model.StorageConstraintViolation, Err: err}
	}
	return nil
}

// LoadRecent returns the newest n messages for a session, ordered oldest
// to newest (ready to append directly after a summary in a recall
// context).
func (s *Store) LoadRecent(ctx context.Context, sessionID string, n int) ([]model.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, role, content, parent_id, kind, summarized_through, created_at
		 FROM messages WHERE session_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`,
		sessionID, n)
	if err != nil {
		return nil, &model.StorageError{Kind: model.StorageConnection, Err: err}
	}
	defer rows.Close()

	var out []model.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	// reverse to chronological order
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, rows.Err()
}

// GetMessageByID loads a single message by its primary key, used by the
// embedding backfill task to re-render a message's content before
// re-embedding it.
func (s *Store) GetMessageByID(ctx context.Context, id int64) (model.Message, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, session_id, role, content, parent_id, kind, summarized_through, created_at
		 FROM messages WHERE id = ?`, id)
	m, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Message{}, &model.StorageError{Kind: model.StorageNotFound, Err: err}
	}
	return m, err
}

// LoadMessagesSince returns messages in a session created after sinceID
// (exclusive), oldest first. Used by the summarization engine to find the
// unsummarized tail.
func (s *Store) LoadMessagesSince(ctx context.Context, sessionID string, sinceID int64, limit int) ([]model.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, role, content, parent_id, kind, summarized_through, created_at
		 FROM messages WHERE session_id = ? AND id > ? ORDER BY id ASC LIMIT ?`,
		sessionID, sinceID, limit)
	if err != nil {
		return nil, &model.StorageError{Kind: model.StorageConnection, Err: err}
	}
	defer rows.Close()

	var out []model.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(rs rowScanner) (model.Message, error) {
	var m model.Message
	var role string
	var parentID sql.NullInt64
	var summarizedThrough sql.NullInt64
	var createdAt int64

	if err := rs.Scan(&m.ID, &m.SessionID, &role, &m.Content, &parentID, &m.Kind, &summarizedThrough, &createdAt); err != nil {
		return m, &model.StorageError{Kind: model.StorageConnection, Err: err}
	}
	m.Role = model.Role(role)
	if parentID.Valid {
		v := parentID.Int64
		m.ParentID = &v
	}
	if summarizedThrough.Valid {
		v := summarizedThrough.Int64
		m.SummarizedThrough = &v
	}
	m.CreatedAt = time.Unix(createdAt, 0).UTC()
	return m, nil
}

// LatestSummaryMessage returns the most recent rolling-summary message
// for a session (kind="summary"), used by the Recall Engine's
// session_summary channel. Kind=StorageNotFound if none exists yet.
func (s *Store) LatestSummaryMessage(ctx context.Context, sessionID string) (model.Message, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, session_id, role, content, parent_id, kind, summarized_through, created_at
		 FROM messages WHERE session_id = ? AND kind = 'summary' ORDER BY created_at DESC, id DESC LIMIT 1`,
		sessionID)
	m, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Message{}, &model.StorageError{Kind: model.StorageNotFound, Err: err}
	}
	return m, err
}

// MarkSummarizedThrough records that messages up to and including
// throughID have been folded into a rolling summary.
func (s *Store) MarkSummarizedThrough(ctx context.Context, sessionID string, throughID int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE messages SET summarized_through = ? WHERE session_id = ? AND id <= ? AND summarized_through IS NULL`,
		throughID, sessionID, throughID)
	if err != nil {
		return &model.StorageError{Kind: model.StorageConnection, Err: err}
	}
	return nil
}

// LastSummarizedThrough returns the highest sequence id already folded
// into a rolling summary for a session (0 if none yet), giving the
// summarization engine the cursor to resume the unsummarized tail from.
func (s *Store) LastSummarizedThrough(ctx context.Context, sessionID string) (int64, error) {
	var through sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(summarized_through) FROM messages WHERE session_id = ?`, sessionID).Scan(&through)
	if err != nil {
		return 0, &model.StorageError{Kind: model.StorageConnection, Err: err}
	}
	if !through.Valid {
		return 0, nil
	}
	return through.Int64, nil
}

// UpsertAnalysis writes or replaces a message's Analysis. OriginalSalience
// is preserved across repeated writes (decay passes), per spec.md's
// invariant that it is immutable once set.
func (s *Store) UpsertAnalysis(ctx context.Context, a model.Analysis) error {
	existing, err := s.GetAnalysis(ctx, a.MessageID)
	if err == nil {
		a.OriginalSalience = existing.OriginalSalience
		a.RecallCount = existing.RecallCount
	}

	topicsJSON, _ := json.Marshal(a.Topics)
	headsJSON, _ := json.Marshal(a.RoutedToHeads)
	now := time.Now()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now

	_, execErr := s.db.ExecContext(ctx, `
		INSERT INTO analyses (message_id, salience, original_salience, mood, intensity, intent, topics,
			summary, contains_code, programming_lang, contains_error, error_type, error_severity, error_file,
			routed_to_heads, recall_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(message_id) DO UPDATE SET
			salience=excluded.salience, mood=excluded.mood, intensity=excluded.intensity, intent=excluded.intent,
			topics=excluded.topics, summary=excluded.summary, contains_code=excluded.contains_code,
			programming_lang=excluded.programming_lang, contains_error=excluded.contains_error,
			error_type=excluded.error_type, error_severity=excluded.error_severity, error_file=excluded.error_file,
			routed_to_heads=excluded.routed_to_heads, recall_count=excluded.recall_count, updated_at=excluded.updated_at`,
		a.MessageID, model.Clamp01(a.Salience), model.Clamp01(a.OriginalSalience), a.Mood, a.Intensity, a.Intent,
		string(topicsJSON), a.Summary, a.ContainsCode, a.ProgrammingLang, a.ContainsError, a.ErrorType,
		a.ErrorSeverity, a.ErrorFile, string(headsJSON), a.RecallCount, a.CreatedAt.Unix(), a.UpdatedAt.Unix())
	if execErr != nil {
		return &model.StorageError{Kind: model.StorageConstraintViolation, Err: execErr}
	}
	return nil
}

// GetAnalysis returns the Analysis for a message, or a StorageError with
// Kind=StorageNotFound if none exists.
func (s *Store) GetAnalysis(ctx context.Context, messageID int64) (model.Analysis, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT message_id, salience, original_salience, mood, intensity, intent, topics, summary,
			contains_code, programming_lang, contains_error, error_type, error_severity, error_file,
			routed_to_heads, recall_count, created_at, updated_at
		FROM analyses WHERE message_id = ?`, messageID)

	var a model.Analysis
	var topicsJSON, headsJSON string
	var createdAt, updatedAt int64
	err := row.Scan(&a.MessageID, &a.Salience, &a.OriginalSalience, &a.Mood, &a.Intensity, &a.Intent, &topicsJSON,
		&a.Summary, &a.ContainsCode, &a.ProgrammingLang, &a.ContainsError, &a.ErrorType, &a.ErrorSeverity, &a.ErrorFile,
		&headsJSON, &a.RecallCount, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Analysis{}, &model.StorageError{Kind: model.StorageNotFound, Err: err}
	}
	if err != nil {
		return model.Analysis{}, &model.StorageError{Kind: model.StorageConnection, Err: err}
	}
	_ = json.Unmarshal([]byte(topicsJSON), &a.Topics)
	var heads []model.Head
	_ = json.Unmarshal([]byte(headsJSON), &heads)
	a.RoutedToHeads = heads
	a.CreatedAt = time.Unix(createdAt, 0).UTC()
	a.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return a, nil
}

// AnalysesForSession returns every Analysis row belonging to messages in
// sessionID, used by the decay pass to re-score a session's salience in
// one sweep.
func (s *Store) AnalysesForSession(ctx context.Context, sessionID string) ([]model.Analysis, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.message_id, a.salience, a.original_salience, a.mood, a.intensity, a.intent, a.topics, a.summary,
			a.contains_code, a.programming_lang, a.contains_error, a.error_type, a.error_severity, a.error_file,
			a.routed_to_heads, a.recall_count, a.created_at, a.updated_at
		FROM analyses a JOIN messages m ON m.id = a.message_id
		WHERE m.session_id = ?`, sessionID)
	if err != nil {
		return nil, &model.StorageError{Kind: model.StorageConnection, Err: err}
	}
	defer rows.Close()

	var out []model.Analysis
	for rows.Next() {
		var a model.Analysis
		var topicsJSON, headsJSON string
		var createdAt, updatedAt int64
		if err := rows.Scan(&a.MessageID, &a.Salience, &a.OriginalSalience, &a.Mood, &a.Intensity, &a.Intent, &topicsJSON,
			&a.Summary, &a.ContainsCode, &a.ProgrammingLang, &a.ContainsError, &a.ErrorType, &a.ErrorSeverity, &a.ErrorFile,
			&headsJSON, &a.RecallCount, &createdAt, &updatedAt); err != nil {
			return nil, &model.StorageError{Kind: model.StorageConnection, Err: err}
		}
		_ = json.Unmarshal([]byte(topicsJSON), &a.Topics)
		var heads []model.Head
		_ = json.Unmarshal([]byte(headsJSON), &heads)
		a.RoutedToHeads = heads
		a.CreatedAt = time.Unix(createdAt, 0).UTC()
		a.UpdatedAt = time.Unix(updatedAt, 0).UTC()
		out = append(out, a)
	}
	return out, rows.Err()
}

// IncrementRecallCount bumps a message's analysis recall_count by one,
// used by the Recall Engine so decay's boost(recall_count) term reflects
// messages actually surfaced back to a caller. A message with no analysis
// row yet (never analyzed) is a no-op rather than an error, since recall
// can return messages the analysis backlog hasn't reached.
func (s *Store) IncrementRecallCount(ctx context.Context, messageID int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE analyses SET recall_count = recall_count + 1, updated_at = ? WHERE message_id = ?`,
		time.Now().Unix(), messageID)
	if err != nil {
		return &model.StorageError{Kind: model.StorageConnection, Err: err}
	}
	return nil
}

// UnanalyzedMessages returns up to limit messages in a session that have
// no corresponding analyses row, oldest first, for the analysis-backlog
// task.
func (s *Store) UnanalyzedMessages(ctx context.Context, sessionID string, limit int) ([]model.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id, m.session_id, m.role, m.content, m.parent_id, m.kind, m.summarized_through, m.created_at
		FROM messages m LEFT JOIN analyses a ON a.message_id = m.id
		WHERE m.session_id = ? AND a.message_id IS NULL
		ORDER BY m.id ASC LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, &model.StorageError{Kind: model.StorageConnection, Err: err}
	}
	defer rows.Close()

	var out []model.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ActiveSessionIDs returns sessions with last_active within the past
// window, used by several C10 tasks to bound their scan.
func (s *Store) ActiveSessionIDs(ctx context.Context, window time.Duration) ([]string, error) {
	cutoff := time.Now().Add(-window).Unix()
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM sessions WHERE last_active >= ?`, cutoff)
	if err != nil {
		return nil, &model.StorageError{Kind: model.StorageConnection, Err: err}
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, &model.StorageError{Kind: model.StorageConnection, Err: err}
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// MessageCount returns a session's running message_count counter.
func (s *Store) MessageCount(ctx context.Context, sessionID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT message_count FROM sessions WHERE id = ?`, sessionID).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, &model.StorageError{Kind: model.StorageNotFound, Err: err}
	}
	if err != nil {
		return 0, &model.StorageError{Kind: model.StorageConnection, Err: fmt.Errorf("message count: %w", err)}
	}
	return n, nil
}

// DeleteSessionMessages removes all messages (and analyses) for a session,
// used by the session-cleanup task. Returns the number of messages
// deleted.
func (s *Store) DeleteSessionMessages(ctx context.Context, sessionID string) (int64, error) {
	var affected int64
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM analyses WHERE message_id IN (SELECT id FROM messages WHERE session_id = ?)`, sessionID)
		if err != nil {
			return err
		}
		res, err = tx.ExecContext(ctx, `DELETE FROM messages WHERE session_id = ?`, sessionID)
		if err != nil {
			return err
		}
		affected, _ = res.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, &model.StorageError{Kind: model.StorageConnection, Err: err}
	}
	return affected, nil
}

// IdleSessions returns interactive session IDs whose last_active predates
// now-maxAge, for the session-cleanup task.
func (s *Store) IdleSessions(ctx context.Context, maxAge time.Duration) ([]string, error) {
	cutoff := time.Now().Add(-maxAge).Unix()
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM sessions WHERE last_active < ?`, cutoff)
	if err != nil {
		return nil, &model.StorageError{Kind: model.StorageConnection, Err: err}
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, &model.StorageError{Kind: model.StorageConnection, Err: err}
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
