package tasks

import (
	"context"
	"fmt"
	"strings"
	"time"

	"mira/internal/llmprovider"
	"mira/internal/logging"
	"mira/internal/model"
)

// SuggestionStore is the narrow store slice the suggestion-generation
// task needs.
type SuggestionStore interface {
	DistinctPatternUserIDs(ctx context.Context) ([]string, error)
	PatternsForUser(ctx context.Context, userID string) ([]model.LearnedPattern, error)
	UpsertFact(ctx context.Context, f model.MemoryFact) (int64, error)
}

const suggestionConfidenceFloor = 0.6

const suggestionSystemPrompt = `You turn an observed user behavior pattern into one short, concrete hint.
Respond with a single sentence of actionable advice. No preamble, no markdown.`

// SuggestionTask is spec.md §4.8's "proactive suggestion generation":
// an LLM pass, run far less often than pattern mining, that turns each
// user's high-confidence learned patterns into a recorded hint (stored
// as a pending MemoryFact so it flows through the same
// confirm/archive lifecycle as any other fact).
type SuggestionTask struct {
	store    SuggestionStore
	provider llmprovider.Provider

	baseInterval time.Duration
	everyN       int
	tick         int
}

func NewSuggestionTask(store SuggestionStore, provider llmprovider.Provider, baseInterval time.Duration, everyN int) *SuggestionTask {
	if everyN < 1 {
		everyN = 1
	}
	return &SuggestionTask{store: store, provider: provider, baseInterval: baseInterval, everyN: everyN}
}

func (t *SuggestionTask) Name() string           { return "suggestion_generation" }
func (t *SuggestionTask) Interval() time.Duration { return t.baseInterval }

func (t *SuggestionTask) Run(ctx context.Context) (int, error) {
	t.tick++
	if t.tick%t.everyN != 0 {
		return 0, nil
	}

	userIDs, err := t.store.DistinctPatternUserIDs(ctx)
	if err != nil {
		return 0, err
	}

	processed := 0
	for _, userID := range userIDs {
		if ctx.Err() != nil {
			return processed, ctx.Err()
		}
		patterns, err := t.store.PatternsForUser(ctx, userID)
		if err != nil {
			return processed, err
		}
		for _, p := range patterns {
			if p.Confidence < suggestionConfidenceFloor {
				continue
			}
			hint, err := t.generateHint(ctx, p)
			if err != nil {
				logging.Get(logging.CategoryTasks).Warnw("suggestion generation failed", "user_id", userID, "pattern", p.PatternName, "error", err)
				continue
			}
			if _, err := t.store.UpsertFact(ctx, model.MemoryFact{
				UserID:     userID,
				Category:   "suggestion",
				FactType:   p.PatternType,
				Content:    hint,
				Confidence: p.Confidence,
				Status:     model.FactPending,
			}); err != nil {
				return processed, err
			}
			processed++
		}
	}
	return processed, nil
}

func (t *SuggestionTask) generateHint(ctx context.Context, p model.LearnedPattern) (string, error) {
	resp, err := t.provider.Chat(ctx, llmprovider.ChatRequest{
		SystemPrompt: suggestionSystemPrompt,
		Messages: []llmprovider.Message{
			{Role: model.RoleUser, Content: fmt.Sprintf(
				"Pattern type: %s\nPattern: %s\nObserved %d times, applied %d times, confidence %.2f.",
				p.PatternType, p.PatternName, p.TimesObserved, p.TimesApplied, p.Confidence)},
		},
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Content), nil
}
