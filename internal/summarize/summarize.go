// Package summarize implements the Summarization Engine (C6): rolling
// summaries triggered every W messages, on-demand snapshot summaries,
// and single-session coalescing of concurrent rolling triggers.
//
// The LLM-call-then-tolerant-parse shape is grounded on
// theRebelliousNerd-codenerd/internal/perception/transducer_llm.go's
// extractJSON/parseResponse pair (first-brace-to-matching-last-brace),
// kept at that simpler single-step form here rather than the message
// pipeline's extended four-step cascade (internal/pipeline/analysis.go)
// since spec.md only demands the pipeline's analysis call use the full
// cascade — the summarizer's output is lower-stakes free text plus a
// topic list, not a routing decision. Single-flight coalescing
// (golang.org/x/sync/singleflight) is the teacher's own
// concurrency-deduplication primitive, already in go.mod from its
// dependency set, applied here against spec.md §4.4's "a second
// concurrent trigger is coalesced."
package summarize

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/sync/singleflight"

	"mira/internal/embedding"
	"mira/internal/llmprovider"
	"mira/internal/model"
)

const (
	defaultWindow      = 20
	approxCharsPerToken = 4
)

// Store is the narrow store.Store slice the summarizer needs.
type Store interface {
	LoadMessagesSince(ctx context.Context, sessionID string, sinceID int64, limit int) ([]model.Message, error)
	LoadRecent(ctx context.Context, sessionID string, n int) ([]model.Message, error)
	LastSummarizedThrough(ctx context.Context, sessionID string) (int64, error)
	SaveMessage(ctx context.Context, msg model.Message) (int64, error)
	MarkSummarizedThrough(ctx context.Context, sessionID string, throughID int64) error
	MessageCount(ctx context.Context, sessionID string) (int, error)
}

// Summarizer is the Summarization Engine (C6).
type Summarizer struct {
	provider llmprovider.Provider
	store    Store
	embedder *embedding.Manager
	window   int

	sf singleflight.Group
}

func New(provider llmprovider.Provider, store Store, embedder *embedding.Manager, window int) *Summarizer {
	if window <= 0 {
		window = defaultWindow
	}
	return &Summarizer{provider: provider, store: store, embedder: embedder, window: window}
}

type summaryPayload struct {
	Summary string   `json:"summary"`
	Topics  []string `json:"topics"`
}

const summarySystemPrompt = `Summarize the following conversation turns compactly, preserving decisions, open questions and any code or error context. Respond with a single JSON object and no prose: {"summary": string, "topics": [string]}`

// MaybeRollingSummary checks whether sessionID's message count has
// crossed a window boundary and, if so, produces and persists the
// rolling summary for the unsummarized tail. A no-op if the count isn't
// a multiple of the window size, or if nothing new has accumulated.
func (s *Summarizer) MaybeRollingSummary(ctx context.Context, sessionID string) (*model.Message, error) {
	count, err := s.store.MessageCount(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if count == 0 || count%s.window != 0 {
		return nil, nil
	}
	return s.RollingSummary(ctx, sessionID)
}

// RollingSummary produces a summary of the messages since the last
// summarized cursor, writes it back as a Message{role=system,
// kind=summary}, embeds it into the summary head, and advances the
// cursor. Concurrent calls for the same session are coalesced onto one
// in-flight call via singleflight, per spec.md §4.4's "at most one
// rolling summary per session may be in flight."
func (s *Summarizer) RollingSummary(ctx context.Context, sessionID string) (*model.Message, error) {
	v, err, _ := s.sf.Do(sessionID, func() (interface{}, error) {
		return s.rollingSummaryLocked(ctx, sessionID)
	})
	if err != nil {
		return nil, err
	}
	msg, _ := v.(*model.Message)
	return msg, nil
}

func (s *Summarizer) rollingSummaryLocked(ctx context.Context, sessionID string) (*model.Message, error) {
	since, err := s.store.LastSummarizedThrough(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	pending, err := s.store.LoadMessagesSince(ctx, sessionID, since, s.window)
	if err != nil {
		return nil, err
	}
	// Earlier rolling summaries sit past the cursor too; they are not
	// summarized again.
	kept := pending[:0]
	for _, m := range pending {
		if m.Kind != "summary" {
			kept = append(kept, m)
		}
	}
	pending = kept
	if len(pending) == 0 {
		return nil, nil
	}

	payload, err := s.summarize(ctx, pending)
	if err != nil {
		return nil, err
	}

	msg := model.Message{
		SessionID: sessionID,
		Role:      model.RoleSystem,
		Kind:      "summary",
		Content:   payload.Summary,
	}
	id, err := s.store.SaveMessage(ctx, msg)
	if err != nil {
		return nil, err
	}
	msg.ID = id

	throughID := pending[len(pending)-1].ID
	if err := s.store.MarkSummarizedThrough(ctx, sessionID, throughID); err != nil {
		return nil, err
	}

	if s.embedder != nil {
		entry := model.MemoryEntry{
			ID:        fmt.Sprintf("%d", id),
			SessionID: sessionID,
			Content:   payload.Summary,
			Heads:     []model.Head{model.HeadSummary},
		}
		if err := s.embedder.Embed(ctx, entry, nil); err != nil {
			return &msg, err
		}
	}

	return &msg, nil
}

// SnapshotSummary produces an on-demand summary spanning roughly the
// last maxTokens of material, independent of the rolling cadence. It
// does not persist anything — callers decide what to do with the text.
func (s *Summarizer) SnapshotSummary(ctx context.Context, sessionID string, maxTokens int) (string, error) {
	budget := maxTokens * approxCharsPerToken
	recent, err := s.store.LoadRecent(ctx, sessionID, s.window*4)
	if err != nil {
		return "", err
	}

	var selected []model.Message
	used := 0
	for i := len(recent) - 1; i >= 0; i-- {
		used += len(recent[i].Content)
		if used > budget && len(selected) > 0 {
			break
		}
		selected = append([]model.Message{recent[i]}, selected...)
	}
	if len(selected) == 0 {
		return "", nil
	}

	payload, err := s.summarize(ctx, selected)
	if err != nil {
		return "", err
	}
	return payload.Summary, nil
}

func (s *Summarizer) summarize(ctx context.Context, msgs []model.Message) (summaryPayload, error) {
	resp, err := s.provider.Chat(ctx, llmprovider.ChatRequest{
		SystemPrompt: summarySystemPrompt,
		Messages: []llmprovider.Message{
			{Role: model.RoleUser, Content: renderTranscript(msgs)},
		},
	})
	if err != nil {
		return summaryPayload{}, err
	}
	return parseSummary(resp.Content)
}

func renderTranscript(msgs []model.Message) string {
	var b strings.Builder
	for _, m := range msgs {
		fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
	}
	return b.String()
}

// parseSummary extracts the first brace-matched JSON object from raw,
// mirroring the teacher's simpler single-step extraction.
func parseSummary(raw string) (summaryPayload, error) {
	jsonStr, ok := braceMatch(raw)
	if !ok {
		return summaryPayload{}, &model.PipelineError{Kind: model.PipelineAnalysisParse, Err: fmt.Errorf("no JSON object found in summary response")}
	}
	var p summaryPayload
	if err := json.Unmarshal([]byte(jsonStr), &p); err != nil {
		return summaryPayload{}, &model.PipelineError{Kind: model.PipelineAnalysisParse, Err: err}
	}
	return p, nil
}

func braceMatch(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start == -1 {
		return "", false
	}
	depth := 0
	for i := start; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
