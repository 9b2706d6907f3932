package pipeline

import (
	"context"
	"fmt"
	"sync"

	"mira/internal/llmprovider"
	"mira/internal/logging"
	"mira/internal/model"
)

// Store is the narrow slice of *store.Store the pipeline needs. Kept as
// an interface so tests can supply a fake without a real database.
type Store interface {
	LoadRecent(ctx context.Context, sessionID string, n int) ([]model.Message, error)
	UpsertAnalysis(ctx context.Context, a model.Analysis) error
	GetAnalysis(ctx context.Context, messageID int64) (model.Analysis, error)
	UnanalyzedMessages(ctx context.Context, sessionID string, limit int) ([]model.Message, error)
}

// Embedder is the narrow embedding.Manager slice the pipeline needs to
// complete spec.md's "C4 analyzes → C3 embeds" step for every message
// whose routing decision says should_embed=true.
type Embedder interface {
	Embed(ctx context.Context, entry model.MemoryEntry, codeElements func() []string) error
}

// priorContextMessages is how many preceding turns get folded into the
// single-message analysis prompt for context.
const priorContextMessages = 5

// Pipeline is the Message Pipeline (C4): one LLM call per message,
// producing the full Analysis plus head-routing decision. Per spec.md §5,
// the pipeline holds a per-session lock across analyze-and-route so that
// routing decisions for a session are never reordered by concurrent calls.
type Pipeline struct {
	provider llmprovider.Provider
	store    Store
	embedder Embedder

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func New(provider llmprovider.Provider, store Store, embedder Embedder) *Pipeline {
	return &Pipeline{
		provider: provider,
		store:    store,
		embedder: embedder,
		locks:    make(map[string]*sync.Mutex),
	}
}

// embedAnalyzed issues the C3 embedding call for a just-analyzed message,
// per spec.md §4.2's should_embed routing decision. A failure here is
// logged and never fails the caller: the analysis itself already
// persisted successfully, and the one-shot startup embedding backfill
// (tasks.RunEmbeddingBackfill) picks the message back up on the next
// process start via store.MessagesMissingEmbeddings.
func (p *Pipeline) embedAnalyzed(ctx context.Context, msg model.Message, a model.Analysis, embed bool) {
	if !embed || p.embedder == nil || len(a.RoutedToHeads) == 0 {
		return
	}
	entry := model.MemoryEntry{
		ID:        fmt.Sprintf("%d", msg.ID),
		SessionID: msg.SessionID,
		Content:   msg.Content,
		Heads:     a.RoutedToHeads,
		CreatedAt: msg.CreatedAt,
	}
	if err := p.embedder.Embed(ctx, entry, nil); err != nil {
		logging.Get(logging.CategoryPipeline).Warnw("message embed failed", "message_id", msg.ID, "error", err)
	}
}

func (p *Pipeline) sessionLock(sessionID string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.locks[sessionID]
	if !ok {
		l = &sync.Mutex{}
		p.locks[sessionID] = l
	}
	return l
}

// Analyze runs the single-message analysis call for msg, folding in the
// session's recent history as prior context, and persists the result.
func (p *Pipeline) Analyze(ctx context.Context, msg model.Message) (model.Analysis, error) {
	lock := p.sessionLock(msg.SessionID)
	lock.Lock()
	defer lock.Unlock()

	prior, err := p.store.LoadRecent(ctx, msg.SessionID, priorContextMessages)
	if err != nil {
		return model.Analysis{}, fmt.Errorf("pipeline: load prior context: %w", err)
	}
	priorText := renderPrior(prior)

	resp, err := p.provider.Chat(ctx, llmprovider.ChatRequest{
		SystemPrompt: analysisSystemPrompt,
		Messages: []llmprovider.Message{
			{Role: model.RoleUser, Content: buildUserPrompt(msg.Content, msg.Role, priorText)},
		},
	})
	if err != nil {
		return model.Analysis{}, err
	}

	payload, err := parseAnalysis(resp.Content)
	if err != nil {
		logging.Get(logging.CategoryPipeline).Warnw("analysis parse failed", "session_id", msg.SessionID, "message_id", msg.ID, "error", err)
		return model.Analysis{}, err
	}

	analysis := toAnalysis(msg.ID, payload)
	embed, reason := shouldEmbed(payload)
	if !embed {
		logging.Get(logging.CategoryPipeline).Debugw("skipping embedding", "message_id", msg.ID, "reason", reason)
	}

	if err := p.store.UpsertAnalysis(ctx, analysis); err != nil {
		return model.Analysis{}, fmt.Errorf("pipeline: persist analysis: %w", err)
	}
	p.embedAnalyzed(ctx, msg, analysis, embed)
	return analysis, nil
}

// AnalyzeBatch runs the batched backlog-catch-up path for every currently
// unanalyzed message in sessionID (spec.md §4.2's "pending processing"),
// retrying any message_index missing from the LLM's response array once
// on its own before giving up on it.
func (p *Pipeline) AnalyzeBatch(ctx context.Context, sessionID string, limit int) ([]model.Analysis, error) {
	lock := p.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	msgs, err := p.store.UnanalyzedMessages(ctx, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("pipeline: load unanalyzed: %w", err)
	}
	if len(msgs) == 0 {
		return nil, nil
	}

	results := make([]model.Analysis, len(msgs))
	got := make([]bool, len(msgs))
	embedFlags := make([]bool, len(msgs))

	if err := p.runBatchCall(ctx, msgs, results, got, embedFlags); err != nil {
		logging.Get(logging.CategoryPipeline).Warnw("batch analysis call failed, retrying individually missing indices", "session_id", sessionID, "error", err)
	}

	for _, idx := range missingIndices(got) {
		retryResults := make([]model.Analysis, 1)
		retryGot := make([]bool, 1)
		retryEmbed := make([]bool, 1)
		_ = p.runBatchCall(ctx, msgs[idx:idx+1], retryResults, retryGot, retryEmbed)
		if retryGot[0] {
			results[idx] = retryResults[0]
			got[idx] = true
			embedFlags[idx] = retryEmbed[0]
		}
	}

	out := make([]model.Analysis, 0, len(msgs))
	for i, ok := range got {
		if !ok {
			logging.Get(logging.CategoryPipeline).Warnw("message left unanalyzed after batch retry", "message_id", msgs[i].ID)
			continue
		}
		if err := p.store.UpsertAnalysis(ctx, results[i]); err != nil {
			return out, fmt.Errorf("pipeline: persist batch analysis: %w", err)
		}
		p.embedAnalyzed(ctx, msgs[i], results[i], embedFlags[i])
		out = append(out, results[i])
	}
	return out, nil
}

// runBatchCall issues one LLM call for msgs and fills results/got/embed by
// message_index; it does not itself retry — AnalyzeBatch drives that.
func (p *Pipeline) runBatchCall(ctx context.Context, msgs []model.Message, results []model.Analysis, got, embed []bool) error {
	resp, err := p.provider.Chat(ctx, llmprovider.ChatRequest{
		SystemPrompt: batchAnalysisSystemPrompt,
		Messages: []llmprovider.Message{
			{Role: model.RoleUser, Content: buildBatchPrompt(msgs)},
		},
	})
	if err != nil {
		return err
	}

	arr, err := parseBatchAnalysis(resp.Content)
	if err != nil {
		return err
	}

	for _, item := range arr {
		if item.MessageIndex < 0 || item.MessageIndex >= len(msgs) {
			continue
		}
		results[item.MessageIndex] = toAnalysis(msgs[item.MessageIndex].ID, item.analysisPayload)
		got[item.MessageIndex] = true
		shouldEmbedMsg, _ := shouldEmbed(item.analysisPayload)
		embed[item.MessageIndex] = shouldEmbedMsg
	}
	return nil
}

func missingIndices(got []bool) []int {
	var missing []int
	for i, ok := range got {
		if !ok {
			missing = append(missing, i)
		}
	}
	return missing
}

func renderPrior(msgs []model.Message) string {
	if len(msgs) == 0 {
		return ""
	}
	out := ""
	for _, m := range msgs {
		out += fmt.Sprintf("%s: %s\n", m.Role, m.Content)
	}
	return out
}
