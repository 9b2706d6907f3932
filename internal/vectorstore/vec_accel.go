//go:build sqlite_vec && cgo

package vectorstore

import (
	"context"
	"fmt"

	vec "github.com/asg017/sqlite-vec-go-bindings/cgo"

	"mira/internal/logging"
	"mira/internal/model"
)

func init() {
	// Registers the sqlite-vec extension as auto-loadable, matching the
	// teacher's init_vec.go. Only compiled into cgo builds that opt into
	// ANN search; the default build uses the pure-Go brute-force path in
	// vectorstore.go.
	vec.Auto()
}

// EnsureVecIndex creates a vec0 virtual table for a head, enabling
// approximate nearest-neighbor search via vec_distance_cosine instead of
// the brute-force Search path. Safe to call repeatedly.
func (s *Store) EnsureVecIndex(ctx context.Context, head model.Head, dim int) error {
	table := "vec0_" + string(head)
	stmt := fmt.Sprintf("CREATE VIRTUAL TABLE IF NOT EXISTS %s USING vec0(embedding float[%d], point_id TEXT, session_id TEXT)", table, dim)
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		logging.Get(logging.CategoryVectorStore).Warnw("failed to create vec0 index", "head", head, "err", err)
		return &model.StorageError{Kind: model.StorageConnection, Err: err}
	}
	return nil
}

// SearchANN performs approximate nearest-neighbor search via the vec0
// index instead of brute-force cosine similarity, for deployments built
// with the sqlite_vec cgo tag.
func (s *Store) SearchANN(ctx context.Context, head model.Head, query []float32, k int, sessionFilter string) ([]SearchResult, error) {
	if k <= 0 {
		k = 10
	}
	table := "vec0_" + string(head)
	blob := encodeVector(query)

	q := fmt.Sprintf(`SELECT point_id, session_id, vec_distance_cosine(embedding, ?) AS dist FROM %s`, table)
	args := []any{blob}
	if sessionFilter != "" {
		q += ` WHERE session_id = ?`
		args = append(args, sessionFilter)
	}
	q += ` ORDER BY dist ASC LIMIT ?`
	args = append(args, k)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, &model.StorageError{Kind: model.StorageConnection, Err: err}
	}
	defer rows.Close()

	var out []SearchResult
	for rows.Next() {
		var pointID, sessionID string
		var dist float64
		if err := rows.Scan(&pointID, &sessionID, &dist); err != nil {
			return nil, &model.StorageError{Kind: model.StorageConnection, Err: err}
		}
		out = append(out, SearchResult{
			Point:      Point{ID: pointID, SessionID: sessionID},
			Similarity: 1 - dist,
		})
	}
	return out, rows.Err()
}
