package tasks

import (
	"context"
	"fmt"
	"time"

	"mira/internal/model"
)

// PatternMiningStore is the narrow store slice the pattern-mining task
// needs to read analyses and write back discovered patterns.
type PatternMiningStore interface {
	ActiveSessionIDs(ctx context.Context, window time.Duration) ([]string, error)
	AnalysesForSession(ctx context.Context, sessionID string) ([]model.Analysis, error)
	UpsertPattern(ctx context.Context, p model.LearnedPattern) error
}

const (
	patternMiningWindow   = 7 * 24 * time.Hour
	patternMinRepeatCount = 3
)

// PatternMiningTask is spec.md §4.8's "proactive pattern mining": a
// SQL-only (no LLM call) pass that looks for a session's intent
// sequence repeating back-to-back and records it as a learned pattern.
// It only does work every N invocations of its base tick — the ticker
// fires on baseInterval so skip-on-miss still applies per invocation, but the
// mining pass itself only runs every everyN-th tick, per spec.md's
// "every 3rd cycle."
type PatternMiningTask struct {
	store  PatternMiningStore
	userOf func(sessionID string) string

	baseInterval time.Duration
	everyN       int
	tick         int
}

func NewPatternMiningTask(store PatternMiningStore, userOf func(sessionID string) string, baseInterval time.Duration, everyN int) *PatternMiningTask {
	if everyN < 1 {
		everyN = 1
	}
	return &PatternMiningTask{store: store, userOf: userOf, baseInterval: baseInterval, everyN: everyN}
}

func (t *PatternMiningTask) Name() string           { return "pattern_mining" }
func (t *PatternMiningTask) Interval() time.Duration { return t.baseInterval }

func (t *PatternMiningTask) Run(ctx context.Context) (int, error) {
	t.tick++
	if t.tick%t.everyN != 0 {
		return 0, nil
	}

	sessions, err := t.store.ActiveSessionIDs(ctx, patternMiningWindow)
	if err != nil {
		return 0, err
	}

	processed := 0
	for _, sessionID := range sessions {
		if ctx.Err() != nil {
			return processed, ctx.Err()
		}
		analyses, err := t.store.AnalysesForSession(ctx, sessionID)
		if err != nil {
			return processed, err
		}
		userID := t.userOf(sessionID)
		for _, pat := range repeatedIntentSequences(analyses) {
			if err := t.store.UpsertPattern(ctx, model.LearnedPattern{
				UserID:      userID,
				PatternType: "intent_sequence",
				PatternName: pat.name,
				Confidence:  pat.confidence,
			}); err != nil {
				return processed, err
			}
			processed++
		}
	}
	return processed, nil
}

type minedPattern struct {
	name       string
	confidence float64
}

// repeatedIntentSequences finds every pair of consecutive analyses that
// share the same non-empty intent at least patternMinRepeatCount times
// across the session, and reports it as one candidate pattern per
// distinct intent. Confidence is the observed repeat fraction.
func repeatedIntentSequences(analyses []model.Analysis) []minedPattern {
	counts := make(map[string]int)
	for i := 1; i < len(analyses); i++ {
		prev, cur := analyses[i-1].Intent, analyses[i].Intent
		if prev == nil || cur == nil || *prev == "" || *prev != *cur {
			continue
		}
		counts[*cur]++
	}

	var out []minedPattern
	for intent, n := range counts {
		if n < patternMinRepeatCount {
			continue
		}
		out = append(out, minedPattern{
			name:       fmt.Sprintf("repeated_intent:%s", intent),
			confidence: float64(n) / float64(len(analyses)),
		})
	}
	return out
}
