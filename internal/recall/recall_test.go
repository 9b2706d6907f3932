package recall

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mira/internal/model"
	"mira/internal/vectorstore"
)

type fakeStore struct {
	recent        map[string][]model.Message
	analyses      map[int64]model.Analysis
	summaries     map[string]model.Message
	loadRecentCalls int
	recallCounts  map[int64]int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		recent:       make(map[string][]model.Message),
		analyses:     make(map[int64]model.Analysis),
		summaries:    make(map[string]model.Message),
		recallCounts: make(map[int64]int),
	}
}

func (f *fakeStore) LoadRecent(ctx context.Context, sessionID string, n int) ([]model.Message, error) {
	f.loadRecentCalls++
	return f.recent[sessionID], nil
}

func (f *fakeStore) GetAnalysis(ctx context.Context, messageID int64) (model.Analysis, error) {
	a, ok := f.analyses[messageID]
	if !ok {
		return model.Analysis{}, &model.StorageError{Kind: model.StorageNotFound}
	}
	return a, nil
}

func (f *fakeStore) LatestSummaryMessage(ctx context.Context, sessionID string) (model.Message, error) {
	m, ok := f.summaries[sessionID]
	if !ok {
		return model.Message{}, &model.StorageError{Kind: model.StorageNotFound}
	}
	return m, nil
}

func (f *fakeStore) IncrementRecallCount(ctx context.Context, messageID int64) error {
	f.recallCounts[messageID]++
	return nil
}

type fakeVectors struct {
	hits []vectorstore.SearchResult
}

func (f *fakeVectors) Search(ctx context.Context, head model.Head, query []float32, k int, sessionFilter string) ([]vectorstore.SearchResult, error) {
	return f.hits, nil
}

type fakeEmbedder struct{}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{0.1, 0.2}, nil
}

func TestRecall_FansOutAllFourChannels(t *testing.T) {
	store := newFakeStore()
	store.recent["s1"] = []model.Message{{ID: 1, SessionID: "s1", Content: "hello"}}
	store.analyses[2] = model.Analysis{MessageID: 2, Salience: 0.7}
	store.summaries["s1"] = model.Message{SessionID: "s1", Content: "prior summary"}

	vectors := &fakeVectors{hits: []vectorstore.SearchResult{
		{Point: vectorstore.Point{ID: "2:semantic:0", Content: "matched chunk", CreatedAt: time.Now()}, Similarity: 0.9},
	}}

	e := New(store, vectors, &fakeEmbedder{}, 0)
	rc, err := e.Recall(context.Background(), "s1", "query", Config{RecentCount: 10, SemanticCount: 10, CodeCount: 10, ProjectID: "p1"})
	require.NoError(t, err)

	assert.Len(t, rc.Recent, 1)
	assert.Equal(t, "prior summary", rc.SessionSummary)
	require.Len(t, rc.Semantic, 1)
	assert.Equal(t, "matched chunk", rc.Semantic[0].Content)
	assert.InDelta(t, 0.9*0.6+0.7*0.3+0.1, rc.Semantic[0].Score, 0.01)
}

func TestRecall_BumpsRecallCountOnReturnedMessages(t *testing.T) {
	store := newFakeStore()
	store.recent["s1"] = []model.Message{{ID: 1, SessionID: "s1", Content: "hello"}}
	store.analyses[2] = model.Analysis{MessageID: 2, Salience: 0.7}
	store.summaries["s1"] = model.Message{SessionID: "s1", Content: "prior summary"}

	vectors := &fakeVectors{hits: []vectorstore.SearchResult{
		{Point: vectorstore.Point{ID: "2:semantic:0", Content: "matched chunk", CreatedAt: time.Now()}, Similarity: 0.9},
	}}

	e := New(store, vectors, &fakeEmbedder{}, 0)
	_, err := e.Recall(context.Background(), "s1", "query", Config{RecentCount: 10, SemanticCount: 10, CodeCount: 10, ProjectID: "p1"})
	require.NoError(t, err)

	assert.Equal(t, 1, store.recallCounts[1], "recalled recent message must be recall-counted")
	assert.Equal(t, 1, store.recallCounts[2], "recalled semantic hit's source message must be recall-counted")
}

func TestRecall_CacheServesRecentWithoutRepeatedStoreCalls(t *testing.T) {
	store := newFakeStore()
	store.recent["s1"] = []model.Message{{ID: 1, SessionID: "s1", Content: "hi"}}
	e := New(store, &fakeVectors{}, &fakeEmbedder{}, 16)

	cfg := Config{RecentCount: 10}
	_, err := e.Recall(context.Background(), "s1", "q", cfg)
	require.NoError(t, err)
	_, err = e.Recall(context.Background(), "s1", "q", cfg)
	require.NoError(t, err)

	assert.Equal(t, 1, store.loadRecentCalls, "second call should be served from the recent cache")
}

func TestRecall_InvalidateRecentForcesReload(t *testing.T) {
	store := newFakeStore()
	store.recent["s1"] = []model.Message{{ID: 1, SessionID: "s1", Content: "hi"}}
	e := New(store, &fakeVectors{}, &fakeEmbedder{}, 16)

	cfg := Config{RecentCount: 10}
	_, err := e.Recall(context.Background(), "s1", "q", cfg)
	require.NoError(t, err)

	e.InvalidateRecent("s1")
	_, err = e.Recall(context.Background(), "s1", "q", cfg)
	require.NoError(t, err)

	assert.Equal(t, 2, store.loadRecentCalls)
}

func TestRecall_CancelledContextDiscardsPartialResults(t *testing.T) {
	store := newFakeStore()
	e := New(store, &fakeVectors{}, &fakeEmbedder{}, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rc, err := e.Recall(ctx, "s1", "q", Config{})
	require.Error(t, err)
	assert.Equal(t, Context{}, rc)
}

func TestContext_Render_ConcatenatesInSpecOrderAndRespectsBudget(t *testing.T) {
	rc := Context{
		SessionSummary: "summary-text",
		Recent:         []model.Message{{Role: model.RoleUser, Content: "hi"}},
		Semantic:       []Scored{{Content: "semantic-hit"}},
		Code:           []Scored{{Content: "code-hit"}},
	}

	full := rc.Render(10000)
	assert.Contains(t, full, "summary-text")
	assert.Contains(t, full, "semantic-hit")
	assert.Contains(t, full, "code-hit")

	tiny := rc.Render(len("summary-text"))
	assert.Equal(t, "summary-text", tiny)
}

func TestRecencyDecay_HalvesAtHalfLife(t *testing.T) {
	assert.InDelta(t, 0.5, recencyDecay(30), 0.01)
	assert.InDelta(t, 1.0, recencyDecay(0), 0.01)
}
