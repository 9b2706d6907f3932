package vectorstore

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mira/internal/model"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "vec.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestSaveAndSearch_RanksBySimilarity(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	s := New(db)
	require.NoError(t, s.EnsureCollection(ctx, model.HeadSemantic, 3))

	require.NoError(t, s.SaveBatch(ctx, model.HeadSemantic, []Point{
		{ID: "a", SessionID: "s1", Vector: []float32{1, 0, 0}, Content: "alpha"},
		{ID: "b", SessionID: "s1", Vector: []float32{0, 1, 0}, Content: "beta"},
		{ID: "c", SessionID: "s1", Vector: []float32{0.9, 0.1, 0}, Content: "gamma"},
	}))

	results, err := s.Search(ctx, model.HeadSemantic, []float32{1, 0, 0}, 2, "")
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].Point.ID)
	assert.Equal(t, "c", results[1].Point.ID)
}

func TestSearch_FiltersBySession(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	s := New(db)
	require.NoError(t, s.EnsureCollection(ctx, model.HeadRecent, 2))

	require.NoError(t, s.SaveBatch(ctx, model.HeadRecent, []Point{
		{ID: "a", SessionID: "s1", Vector: []float32{1, 0}, Content: "in session"},
		{ID: "b", SessionID: "s2", Vector: []float32{1, 0}, Content: "other session"},
	}))

	results, err := s.Search(ctx, model.HeadRecent, []float32{1, 0}, 10, "s1")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].Point.ID)
}

func TestSaveBatch_UpsertsOnConflict(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	s := New(db)
	require.NoError(t, s.EnsureCollection(ctx, model.HeadCode, 2))

	require.NoError(t, s.Save(ctx, model.HeadCode, Point{ID: "p1", SessionID: "s1", Vector: []float32{1, 0}, Content: "v1"}))
	require.NoError(t, s.Save(ctx, model.HeadCode, Point{ID: "p1", SessionID: "s1", Vector: []float32{0, 1}, Content: "v2"}))

	results, err := s.Search(ctx, model.HeadCode, []float32{0, 1}, 10, "")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "v2", results[0].Point.Content)
}

func TestDeleteByField_RemovesOnlyMatchingSession(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	s := New(db)
	require.NoError(t, s.EnsureCollection(ctx, model.HeadSummary, 2))
	require.NoError(t, s.SaveBatch(ctx, model.HeadSummary, []Point{
		{ID: "a", SessionID: "s1", Vector: []float32{1, 0}, Content: "x"},
		{ID: "b", SessionID: "s2", Vector: []float32{1, 0}, Content: "y"},
	}))

	n, err := s.DeleteByField(ctx, model.HeadSummary, "s1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	points, err := s.ListPoints(ctx, model.HeadSummary)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, points)
}
