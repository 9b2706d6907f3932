package summarize

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mira/internal/embedding"
	"mira/internal/llmprovider"
	"mira/internal/model"
	"mira/internal/vectorstore"
)

type fakeStore struct {
	messages  []model.Message
	through   map[string]int64
	saved     []model.Message
	nextID    int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{through: make(map[string]int64)}
}

func (f *fakeStore) LoadMessagesSince(ctx context.Context, sessionID string, sinceID int64, limit int) ([]model.Message, error) {
	var out []model.Message
	for _, m := range f.messages {
		if m.SessionID == sessionID && m.ID > sinceID {
			out = append(out, m)
			if len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (f *fakeStore) LoadRecent(ctx context.Context, sessionID string, n int) ([]model.Message, error) {
	var out []model.Message
	for _, m := range f.messages {
		if m.SessionID == sessionID {
			out = append(out, m)
		}
	}
	if len(out) > n {
		out = out[len(out)-n:]
	}
	return out, nil
}

func (f *fakeStore) LastSummarizedThrough(ctx context.Context, sessionID string) (int64, error) {
	return f.through[sessionID], nil
}

func (f *fakeStore) SaveMessage(ctx context.Context, msg model.Message) (int64, error) {
	f.nextID++
	msg.ID = f.nextID
	f.saved = append(f.saved, msg)
	f.messages = append(f.messages, msg)
	return msg.ID, nil
}

func (f *fakeStore) MarkSummarizedThrough(ctx context.Context, sessionID string, throughID int64) error {
	f.through[sessionID] = throughID
	return nil
}

func (f *fakeStore) MessageCount(ctx context.Context, sessionID string) (int, error) {
	count := 0
	for _, m := range f.messages {
		if m.SessionID == sessionID {
			count++
		}
	}
	return count, nil
}

func (f *fakeStore) seed(sessionID string, n int) {
	for i := 0; i < n; i++ {
		f.nextID++
		f.messages = append(f.messages, model.Message{ID: f.nextID, SessionID: sessionID, Role: model.RoleUser, Content: fmt.Sprintf("message %d", i)})
	}
}

type fakeChatProvider struct {
	response string
	calls    int
}

func (f *fakeChatProvider) Chat(ctx context.Context, req llmprovider.ChatRequest) (llmprovider.ChatResponse, error) {
	f.calls++
	return llmprovider.ChatResponse{Content: f.response}, nil
}
func (f *fakeChatProvider) CompleteWithReasoning(ctx context.Context, req llmprovider.ChatRequest) (llmprovider.ChatResponse, error) {
	return f.Chat(ctx, req)
}
func (f *fakeChatProvider) Name() string { return "fake" }

type fakeEmbedProvider struct{}

func (f *fakeEmbedProvider) Dimensions() int { return 3 }
func (f *fakeEmbedProvider) Name() string    { return "fake" }
func (f *fakeEmbedProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{0.1, 0.2, 0.3}, nil
}
func (f *fakeEmbedProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0.1, 0.2, 0.3}
	}
	return out, nil
}

type fakeRefWriter struct{}

func (f *fakeRefWriter) StoreEmbeddingRefs(ctx context.Context, refs []model.EmbeddingRef) error {
	return nil
}

func newTestManager(t *testing.T) *embedding.Manager {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "vec.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	vs := vectorstore.New(db)
	require.NoError(t, vs.EnsureCollection(context.Background(), model.HeadSummary, 3))
	return embedding.NewManager(&fakeEmbedProvider{}, vs, &fakeRefWriter{})
}

func TestMaybeRollingSummary_NoOpBelowWindow(t *testing.T) {
	store := newFakeStore()
	store.seed("s1", 5)
	provider := &fakeChatProvider{}
	s := New(provider, store, nil, 20)

	msg, err := s.MaybeRollingSummary(context.Background(), "s1")
	require.NoError(t, err)
	assert.Nil(t, msg)
	assert.Zero(t, provider.calls)
}

func TestMaybeRollingSummary_TriggersAtWindowBoundary(t *testing.T) {
	store := newFakeStore()
	store.seed("s1", 20)
	provider := &fakeChatProvider{response: `{"summary":"discussed billing refactor","topics":["billing","refactor"]}`}
	s := New(provider, store, newTestManager(t), 20)

	msg, err := s.MaybeRollingSummary(context.Background(), "s1")
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, "discussed billing refactor", msg.Content)
	assert.Equal(t, model.RoleSystem, msg.Role)
	assert.Equal(t, "summary", msg.Kind)
	assert.Equal(t, int64(20), store.through["s1"])
}

func TestRollingSummary_AdvancesCursorAndIsIdempotentWithoutNewMessages(t *testing.T) {
	store := newFakeStore()
	store.seed("s1", 20)
	provider := &fakeChatProvider{response: `{"summary":"first window","topics":[]}`}
	s := New(provider, store, newTestManager(t), 20)

	_, err := s.RollingSummary(context.Background(), "s1")
	require.NoError(t, err)

	msg, err := s.RollingSummary(context.Background(), "s1")
	require.NoError(t, err)
	assert.Nil(t, msg, "no new messages since the cursor means nothing to summarize")
}

func TestSnapshotSummary_BudgetsByApproxCharsPerToken(t *testing.T) {
	store := newFakeStore()
	store.seed("s1", 50)
	provider := &fakeChatProvider{response: `{"summary":"snapshot","topics":[]}`}
	s := New(provider, store, nil, 20)

	summary, err := s.SnapshotSummary(context.Background(), "s1", 100)
	require.NoError(t, err)
	assert.Equal(t, "snapshot", summary)
}

func TestParseSummary_ExtractsBraceMatchedJSON(t *testing.T) {
	p, err := parseSummary("Summary follows:\n{\"summary\":\"x\",\"topics\":[\"a\"]}\nthanks")
	require.NoError(t, err)
	assert.Equal(t, "x", p.Summary)
	assert.Equal(t, []string{"a"}, p.Topics)
}
