// Package vectorstore implements the per-head vector store (C2): one
// collection per model.Head (recent, semantic, code, summary), sharing
// the same SQLite file as the relational store via store.Store.DB().
//
// modernc.org/sqlite is a pure-Go driver with no cgo, so the sqlite-vec
// C extension cannot be loaded through it the way the teacher's
// mattn/go-sqlite3-backed init_vec.go does. The default path here
// mirrors the teacher's own non-extension fallback in
// local_vector.go/vector_store.go: embeddings are stored as a
// little-endian float32 BLOB per row, and search is brute-force cosine
// similarity in Go (cosineSimilarity below). A cgo-accelerated path
// using github.com/asg017/sqlite-vec-go-bindings' vec0 virtual tables is
// available behind the "sqlite_vec" build tag (see vec_accel.go), for
// deployments that opt into a cgo build — exactly the dual-path split
// the teacher already made.
package vectorstore

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"mira/internal/logging"
	"mira/internal/model"
)

// Store is the vector store capability described in spec.md §6. It
// shares a *sql.DB with the relational store.
type Store struct {
	db *sql.DB
}

// New wraps an existing database handle (typically store.Store.DB()).
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// EnsureCollection creates the backing table for a head if it does not
// already exist. dim is not used by the pure-Go path: it stores raw
// float32 blobs, and each saved row records the length of its own vector.
func (s *Store) EnsureCollection(ctx context.Context, head model.Head, dim int) error {
	table := tableName(head)
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			point_id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			embedding BLOB NOT NULL,
			dim INTEGER NOT NULL,
			content TEXT NOT NULL,
			created_at INTEGER NOT NULL
		)`, table))
	if err != nil {
		return &model.StorageError{Kind: model.StorageConnection, Err: fmt.Errorf("ensure collection %s: %w", table, err)}
	}
	_, err = s.db.ExecContext(ctx, fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_session ON %s(session_id)`, table, table))
	if err != nil {
		return &model.StorageError{Kind: model.StorageConnection, Err: err}
	}
	return nil
}

// Point is a single embedded vector: the message content it represents,
// scoped to a session for per-session recall filtering.
type Point struct {
	ID        string
	SessionID string
	Vector    []float32
	Content   string
	CreatedAt time.Time
}

// Save upserts a single point into a head's collection.
func (s *Store) Save(ctx context.Context, head model.Head, p Point) error {
	return s.SaveBatch(ctx, head, []Point{p})
}

// SaveBatch upserts many points in one transaction, matching the
// teacher's batched-insert discipline in StoreVectorBatchWithEmbedding.
func (s *Store) SaveBatch(ctx context.Context, head model.Head, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	timer := logging.StartTimer(logging.CategoryVectorStore, "SaveBatch")
	defer timer.Stop()

	table := tableName(head)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &model.StorageError{Kind: model.StorageConnection, Err: err}
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (point_id, session_id, embedding, dim, content, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(point_id) DO UPDATE SET
			session_id=excluded.session_id, embedding=excluded.embedding,
			dim=excluded.dim, content=excluded.content, created_at=excluded.created_at`, table))
	if err != nil {
		return &model.StorageError{Kind: model.StorageConnection, Err: err}
	}
	defer stmt.Close()

	for _, p := range points {
		ts := p.CreatedAt
		if ts.IsZero() {
			ts = time.Now()
		}
		if _, err := stmt.ExecContext(ctx, p.ID, p.SessionID, encodeVector(p.Vector), len(p.Vector), p.Content, ts.Unix()); err != nil {
			return &model.StorageError{Kind: model.StorageConstraintViolation, Err: err}
		}
	}
	if err := tx.Commit(); err != nil {
		return &model.StorageError{Kind: model.StorageConnection, Err: err}
	}
	logging.Get(logging.CategoryVectorStore).Debugw("saved batch", "head", head, "count", len(points))
	return nil
}

// SearchResult pairs a point with its similarity to the query vector.
type SearchResult struct {
	Point      Point
	Similarity float64
}

// Search returns the top k points in a head's collection most similar to
// query, optionally restricted to a session. Brute-force cosine
// similarity, grounded on the teacher's vectorRecallBruteForce path.
func (s *Store) Search(ctx context.Context, head model.Head, query []float32, k int, sessionFilter string) ([]SearchResult, error) {
	timer := logging.StartTimer(logging.CategoryVectorStore, "Search")
	defer timer.Stop()

	if k <= 0 {
		k = 10
	}
	table := tableName(head)

	q := fmt.Sprintf(`SELECT point_id, session_id, embedding, dim, content, created_at FROM %s`, table)
	var args []any
	if sessionFilter != "" {
		q += ` WHERE session_id = ?`
		args = append(args, sessionFilter)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, &model.StorageError{Kind: model.StorageConnection, Err: err}
	}
	defer rows.Close()

	var candidates []SearchResult
	for rows.Next() {
		var p Point
		var blob []byte
		var dim int
		var createdAt int64
		if err := rows.Scan(&p.ID, &p.SessionID, &blob, &dim, &p.Content, &createdAt); err != nil {
			return nil, &model.StorageError{Kind: model.StorageConnection, Err: err}
		}
		p.Vector = decodeVector(blob, dim)
		p.CreatedAt = time.Unix(createdAt, 0).UTC()

		sim, err := cosineSimilarity(query, p.Vector)
		if err != nil {
			continue // dimension mismatch: skip rather than fail the whole search
		}
		candidates = append(candidates, SearchResult{Point: p, Similarity: sim})
	}
	if err := rows.Err(); err != nil {
		return nil, &model.StorageError{Kind: model.StorageConnection, Err: err}
	}

	sortBySimilarityDesc(candidates)
	if len(candidates) > k {
		candidates = candidates[:k]
	}
	return candidates, nil
}

// DeleteByField removes every point in a head's collection saved under a
// session_id; codeintel uses it to drop all code-head points of a project.
func (s *Store) DeleteByField(ctx context.Context, head model.Head, sessionID string) (int64, error) {
	table := tableName(head)
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE session_id = ?`, table), sessionID)
	if err != nil {
		return 0, &model.StorageError{Kind: model.StorageConnection, Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, &model.StorageError{Kind: model.StorageConnection, Err: err}
	}
	return n, nil
}

// DeletePoint removes a single point by id, used when a code element's
// embedding is invalidated by a signature-hash change.
func (s *Store) DeletePoint(ctx context.Context, head model.Head, pointID string) error {
	table := tableName(head)
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE point_id = ?`, table), pointID)
	if err != nil {
		return &model.StorageError{Kind: model.StorageConnection, Err: err}
	}
	return nil
}

// ListPoints returns every point id currently stored for a head, used by
// the embedding-cleanup task to diff against embedding_refs.
func (s *Store) ListPoints(ctx context.Context, head model.Head) ([]string, error) {
	table := tableName(head)
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`SELECT point_id FROM %s`, table))
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

func tableName(head model.Head) string {
	return "vec_" + string(head)
}

func encodeVector(v []float32) []byte {
	buf := &bytes.Buffer{}
	_ = binary.Write(buf, binary.LittleEndian, v)
	return buf.Bytes()
}

func decodeVector(blob []byte, dim int) []float32 {
	if dim <= 0 {
		dim = len(blob) / 4
	}
	out := make([]float32, dim)
	_ = binary.Read(bytes.NewReader(blob), binary.LittleEndian, &out)
	return out
}

func cosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("vector dimension mismatch: %d != %d", len(a), len(b))
	}
	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB)), nil
}

func sortBySimilarityDesc(results []SearchResult) {
	for i := 0; i < len(results); i++ {
		for j := i + 1; j < len(results); j++ {
			if results[j].Similarity > results[i].Similarity {
				results[i], results[j] = results[j], results[i]
			}
		}
	}
}
