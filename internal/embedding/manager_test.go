package embedding

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mira/internal/model"
	"mira/internal/vectorstore"
)

type fakeProvider struct {
	dims    int
	calls   int
	failing bool
}

func (f *fakeProvider) Dimensions() int { return f.dims }
func (f *fakeProvider) Name() string    { return "fake" }

func (f *fakeProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := f.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (f *fakeProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.failing {
		return nil, fmt.Errorf("provider unavailable")
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(i) + 0.1, 0.2, 0.3}
	}
	return out, nil
}

type fakeRefWriter struct {
	written []model.EmbeddingRef
}

func (f *fakeRefWriter) StoreEmbeddingRefs(ctx context.Context, refs []model.EmbeddingRef) error {
	f.written = append(f.written, refs...)
	return nil
}

func newTestVectorStore(t *testing.T) *vectorstore.Store {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "vec.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	vs := vectorstore.New(db)
	for _, h := range model.AllHeads {
		require.NoError(t, vs.EnsureCollection(context.Background(), h, 3))
	}
	return vs
}

func TestManager_Embed_RoutesChunksToEachHead(t *testing.T) {
	ctx := context.Background()
	vs := newTestVectorStore(t)
	provider := &fakeProvider{dims: 3}
	refs := &fakeRefWriter{}
	mgr := NewManager(provider, vs, refs)

	entry := model.MemoryEntry{
		ID:        "42",
		SessionID: "s1",
		Content:   "the user hit a nil pointer panic in billing.go",
		Heads:     []model.Head{model.HeadRecent, model.HeadSemantic},
	}

	require.NoError(t, mgr.Embed(ctx, entry, nil))
	assert.Len(t, refs.written, 2)
	assert.Equal(t, int64(42), refs.written[0].MessageID)

	recentPoints, err := vs.ListPoints(ctx, model.HeadRecent)
	require.NoError(t, err)
	assert.Len(t, recentPoints, 1)
}

func TestManager_Embed_FallsBackPerHeadOnBatchFailure(t *testing.T) {
	ctx := context.Background()
	vs := newTestVectorStore(t)
	provider := &fakeProvider{dims: 3, failing: true}
	refs := &fakeRefWriter{}
	mgr := NewManager(provider, vs, refs)

	entry := model.MemoryEntry{
		ID:        "7",
		SessionID: "s1",
		Content:   "hello",
		Heads:     []model.Head{model.HeadRecent},
	}

	err := mgr.Embed(ctx, entry, nil)
	require.NoError(t, err)
	assert.Empty(t, refs.written)
	assert.GreaterOrEqual(t, provider.calls, 2)
}

func TestManager_Embed_CodeHeadUsesElementFunc(t *testing.T) {
	ctx := context.Background()
	vs := newTestVectorStore(t)
	provider := &fakeProvider{dims: 3}
	refs := &fakeRefWriter{}
	mgr := NewManager(provider, vs, refs)

	entry := model.MemoryEntry{
		ID:        "9",
		SessionID: "s1",
		Content:   "irrelevant for code head",
		Heads:     []model.Head{model.HeadCode},
	}

	require.NoError(t, mgr.Embed(ctx, entry, func() []string {
		return []string{"func Foo() {}", "func Bar() {}"}
	}))

	points, err := vs.ListPoints(ctx, model.HeadCode)
	require.NoError(t, err)
	assert.Len(t, points, 2)
}

func TestTruncate_ClipsAtLimit(t *testing.T) {
	long := make([]byte, maxInputChars+500)
	for i := range long {
		long[i] = 'a'
	}
	out := truncate(string(long))
	assert.Len(t, out, maxInputChars)
}
