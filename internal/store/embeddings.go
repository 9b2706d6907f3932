package store

import (
	"context"
	"database/sql"
	"time"

	"mira/internal/model"
)

// StoreEmbeddingRefs records the (head, point_id) pairs produced for a
// message. Call after the corresponding vectors have been upserted into
// the vector store, so a reference is never written without a matching
// point (modulo the in-flight write window noted in spec.md §8).
func (s *Store) StoreEmbeddingRefs(ctx context.Context, refs []model.EmbeddingRef) error {
	if len(refs) == 0 {
		return nil
	}
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO embedding_refs (message_id, head, point_id, created_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(message_id, head) DO UPDATE SET point_id=excluded.point_id, created_at=excluded.created_at`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, r := range refs {
			ts := r.CreatedAt
			if ts.IsZero() {
				ts = time.Now()
			}
			if _, err := stmt.ExecContext(ctx, r.MessageID, string(r.Head), r.PointID, ts.Unix()); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetEmbeddingHeads returns the heads a message has a stored reference
// for.
func (s *Store) GetEmbeddingHeads(ctx context.Context, messageID int64) ([]model.Head, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT head FROM embedding_refs WHERE message_id = ?`, messageID)
	if err != nil {
		return nil, &model.StorageError{Kind: model.StorageConnection, Err: err}
	}
	defer rows.Close()

	var heads []model.Head
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, &model.StorageError{Kind: model.StorageConnection, Err: err}
		}
		heads = append(heads, model.Head(h))
	}
	return heads, rows.Err()
}

// MessagesMissingEmbeddings returns message IDs that have an Analysis but
// no embedding_refs row at all, for the startup embedding-backfill task.
func (s *Store) MessagesMissingEmbeddings(ctx context.Context, limit int) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.message_id FROM analyses a
		LEFT JOIN embedding_refs r ON r.message_id = a.message_id
		WHERE r.message_id IS NULL
		ORDER BY a.message_id ASC LIMIT ?`, limit)
	if err != nil {
		return nil, &model.StorageError{Kind: model.StorageConnection, Err: err}
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, &model.StorageError{Kind: model.StorageConnection, Err: err}
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// AllEmbeddingRefPointIDs lists every point_id currently referenced, for
// the orphan-sweeping embedding-cleanup task to diff against the vector
// store's actual points.
func (s *Store) AllEmbeddingRefPointIDs(ctx context.Context, head model.Head) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT point_id FROM embedding_refs WHERE head = ?`, string(head))
	if err != nil {
		return nil, &model.StorageError{Kind: model.StorageConnection, Err: err}
	}
	defer rows.Close()

	out := map[string]bool{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, &model.StorageError{Kind: model.StorageConnection, Err: err}
		}
		out[id] = true
	}
	return out, rows.Err()
}

// DeleteEmbeddingRefsForMessage removes all head references for a
// message.
func (s *Store) DeleteEmbeddingRefsForMessage(ctx context.Context, messageID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM embedding_refs WHERE message_id = ?`, messageID)
	if err != nil {
		return &model.StorageError{Kind: model.StorageConnection, Err: err}
	}
	return nil
}
