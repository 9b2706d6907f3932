package pipeline

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mira/internal/llmprovider"
	"mira/internal/model"
)

type fakeStore struct {
	recent     []model.Message
	unanalyzed []model.Message
	saved      []model.Analysis
}

func (f *fakeStore) LoadRecent(ctx context.Context, sessionID string, n int) ([]model.Message, error) {
	return f.recent, nil
}

func (f *fakeStore) UpsertAnalysis(ctx context.Context, a model.Analysis) error {
	f.saved = append(f.saved, a)
	return nil
}

func (f *fakeStore) GetAnalysis(ctx context.Context, messageID int64) (model.Analysis, error) {
	for _, a := range f.saved {
		if a.MessageID == messageID {
			return a, nil
		}
	}
	return model.Analysis{}, fmt.Errorf("not found")
}

func (f *fakeStore) UnanalyzedMessages(ctx context.Context, sessionID string, limit int) ([]model.Message, error) {
	return f.unanalyzed, nil
}

type fakeChatProvider struct {
	response string
	err      error
	calls    int
}

func (f *fakeChatProvider) Chat(ctx context.Context, req llmprovider.ChatRequest) (llmprovider.ChatResponse, error) {
	f.calls++
	if f.err != nil {
		return llmprovider.ChatResponse{}, f.err
	}
	return llmprovider.ChatResponse{Content: f.response}, nil
}

func (f *fakeChatProvider) CompleteWithReasoning(ctx context.Context, req llmprovider.ChatRequest) (llmprovider.ChatResponse, error) {
	return f.Chat(ctx, req)
}

func (f *fakeChatProvider) Name() string { return "fake" }

func TestPipeline_Analyze_ParsesAndPersistsAnalysis(t *testing.T) {
	provider := &fakeChatProvider{response: `{"salience":0.8,"mood":"focused","intensity":0.6,"intent":"debug","topics":["billing"],"summary":null,"contains_code":true,"programming_lang":"go","contains_error":true,"error_type":"panic","error_severity":"high","error_file":"billing.go","should_embed":true,"skip_reason":null}`}
	store := &fakeStore{}
	p := New(provider, store, nil)

	msg := model.Message{ID: 1, SessionID: "s1", Role: model.RoleUser, Content: "nil pointer panic in billing.go"}
	analysis, err := p.Analyze(context.Background(), msg)
	require.NoError(t, err)

	assert.Equal(t, int64(1), analysis.MessageID)
	assert.InDelta(t, 0.8, analysis.Salience, 0.0001)
	assert.True(t, analysis.ContainsCode)
	assert.Contains(t, analysis.RoutedToHeads, model.HeadCode)
	assert.Contains(t, analysis.RoutedToHeads, model.HeadRecent)
	assert.Len(t, store.saved, 1)
}

func TestPipeline_Analyze_ExtractsJSONFromFencedResponse(t *testing.T) {
	provider := &fakeChatProvider{response: "Here is the analysis:\n```json\n{\"salience\":0.1,\"intensity\":0.1,\"contains_code\":false,\"contains_error\":false}\n```"}
	store := &fakeStore{}
	p := New(provider, store, nil)

	msg := model.Message{ID: 2, SessionID: "s1", Role: model.RoleUser, Content: "ok thanks"}
	analysis, err := p.Analyze(context.Background(), msg)
	require.NoError(t, err)
	assert.NotContains(t, analysis.RoutedToHeads, model.HeadCode)
}

func TestPipeline_Analyze_ReturnsParseErrorOnGarbage(t *testing.T) {
	provider := &fakeChatProvider{response: "not json at all, sorry"}
	store := &fakeStore{}
	p := New(provider, store, nil)

	msg := model.Message{ID: 3, SessionID: "s1", Role: model.RoleUser, Content: "hi"}
	_, err := p.Analyze(context.Background(), msg)
	require.Error(t, err)
	var pe *model.PipelineError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, model.PipelineAnalysisParse, pe.Kind)
}

func TestPipeline_AnalyzeBatch_RoutesByMessageIndex(t *testing.T) {
	msgs := []model.Message{
		{ID: 10, SessionID: "s1", Role: model.RoleUser, Content: "first"},
		{ID: 11, SessionID: "s1", Role: model.RoleAssistant, Content: "second"},
	}
	provider := &fakeChatProvider{response: `[
		{"message_index":1,"salience":0.5,"intensity":0.2,"contains_code":false,"contains_error":false},
		{"message_index":0,"salience":0.9,"intensity":0.7,"contains_code":false,"contains_error":false}
	]`}
	store := &fakeStore{unanalyzed: msgs}
	p := New(provider, store, nil)

	results, err := p.AnalyzeBatch(context.Background(), "s1", 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Len(t, store.saved, 2)

	var byID = map[int64]model.Analysis{}
	for _, a := range store.saved {
		byID[a.MessageID] = a
	}
	assert.InDelta(t, 0.9, byID[10].Salience, 0.0001)
	assert.InDelta(t, 0.5, byID[11].Salience, 0.0001)
}

func TestPipeline_AnalyzeBatch_RetriesMissingIndicesThenDrops(t *testing.T) {
	msgs := []model.Message{
		{ID: 20, SessionID: "s2", Role: model.RoleUser, Content: "first"},
		{ID: 21, SessionID: "s2", Role: model.RoleUser, Content: "second"},
	}
	// First call only returns index 1; the retry for the missing index 0
	// sends message 20 on its own and gets the same reply, whose index 1 is
	// out of range for a one-message call, so message 20 is dropped, not
	// retried forever.
	provider := &fakeChatProvider{response: `[{"message_index":1,"salience":0.4,"intensity":0.1,"contains_code":false,"contains_error":false}]`}
	store := &fakeStore{unanalyzed: msgs}
	p := New(provider, store, nil)

	results, err := p.AnalyzeBatch(context.Background(), "s2", 10)
	require.NoError(t, err)
	assert.Len(t, results, 1)
	assert.Equal(t, 2, provider.calls)
}

func TestPipeline_AnalyzeBatch_NoUnanalyzedReturnsNil(t *testing.T) {
	provider := &fakeChatProvider{}
	store := &fakeStore{}
	p := New(provider, store, nil)

	results, err := p.AnalyzeBatch(context.Background(), "s3", 10)
	require.NoError(t, err)
	assert.Nil(t, results)
	assert.Zero(t, provider.calls)
}
