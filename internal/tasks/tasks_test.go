package tasks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mira/internal/model"
)

type fakeActiveSessionsStore struct {
	sessions []string
}

func (f *fakeActiveSessionsStore) ActiveSessionIDs(ctx context.Context, window time.Duration) ([]string, error) {
	return f.sessions, nil
}

type fakePipeline struct {
	perSession map[string][]model.Analysis
	calls      []string
}

func (f *fakePipeline) AnalyzeBatch(ctx context.Context, sessionID string, limit int) ([]model.Analysis, error) {
	f.calls = append(f.calls, sessionID)
	return f.perSession[sessionID], nil
}

func TestAnalysisBacklogTask_ProcessesEveryActiveSession(t *testing.T) {
	store := &fakeActiveSessionsStore{sessions: []string{"s1", "s2"}}
	pipeline := &fakePipeline{perSession: map[string][]model.Analysis{
		"s1": {{MessageID: 1}, {MessageID: 2}},
		"s2": {{MessageID: 3}},
	}}

	task := NewAnalysisBacklogTask(store, pipeline, time.Second)
	processed, err := task.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, processed)
	assert.ElementsMatch(t, []string{"s1", "s2"}, pipeline.calls)
}

type fakeBackfillStore struct {
	batches [][]int64
	call    int
}

func (f *fakeBackfillStore) MessagesMissingEmbeddings(ctx context.Context, limit int) ([]int64, error) {
	if f.call >= len(f.batches) {
		return nil, nil
	}
	b := f.batches[f.call]
	f.call++
	return b, nil
}

type fakeMessageEmbedder struct {
	embedded []int64
	failOn   int64
}

func (f *fakeMessageEmbedder) EmbedMessage(ctx context.Context, messageID int64) error {
	if messageID == f.failOn {
		return errors.New("embed failed")
	}
	f.embedded = append(f.embedded, messageID)
	return nil
}

func TestRunEmbeddingBackfill_DrainsUntilEmpty(t *testing.T) {
	store := &fakeBackfillStore{batches: [][]int64{{1, 2}, {3}, {}}}
	embedder := &fakeMessageEmbedder{}

	processed, err := RunEmbeddingBackfill(context.Background(), store, embedder)
	require.NoError(t, err)
	assert.Equal(t, 3, processed)
	assert.Equal(t, []int64{1, 2, 3}, embedder.embedded)
}

func TestRunEmbeddingBackfill_StopsInsteadOfLoopingForeverOnSkippedMessages(t *testing.T) {
	// message 1 never gets an embedding_refs row (should_embed was false),
	// so every poll returns it again; the backfill must not spin forever.
	store := &fakeBackfillStore{batches: [][]int64{{1}, {1}, {1}}}
	embedder := &fakeMessageEmbedder{}

	processed, err := RunEmbeddingBackfill(context.Background(), store, embedder)
	require.NoError(t, err)
	assert.Equal(t, 1, processed, "message 1 should be attempted exactly once")
}

func TestPatternMiningTask_OnlyRunsEveryNthTick(t *testing.T) {
	store := &fakePatternStore{sessions: []string{"s1"}}
	task := NewPatternMiningTask(store, func(string) string { return "user1" }, time.Second, 3)

	p1, err := task.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, p1, "first two ticks should be no-ops")

	_, err = task.Run(context.Background())
	require.NoError(t, err)

	p3, err := task.Run(context.Background())
	require.NoError(t, err)
	assert.Positive(t, p3, "third tick should mine and record the repeated pattern")
}

type fakePatternStore struct {
	sessions []string
	upserts  []model.LearnedPattern
}

func (f *fakePatternStore) ActiveSessionIDs(ctx context.Context, window time.Duration) ([]string, error) {
	return f.sessions, nil
}

func (f *fakePatternStore) AnalysesForSession(ctx context.Context, sessionID string) ([]model.Analysis, error) {
	intent := "debug"
	return []model.Analysis{
		{MessageID: 1, Intent: &intent},
		{MessageID: 2, Intent: &intent},
		{MessageID: 3, Intent: &intent},
		{MessageID: 4, Intent: &intent},
	}, nil
}

func (f *fakePatternStore) UpsertPattern(ctx context.Context, p model.LearnedPattern) error {
	f.upserts = append(f.upserts, p)
	return nil
}
