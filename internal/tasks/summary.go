package tasks

import (
	"context"
	"time"
)

// SummarizerFunc adapts a concrete summarize.Summarizer call (whose
// MaybeRollingSummary returns *model.Message, nil when it didn't fire)
// to a plain bool so this package doesn't need to import model just to
// describe "did it fire". cmd/mira wires this as
// func(ctx, id) (bool, error) { msg, err := summarizer.MaybeRollingSummary(ctx, id); return msg != nil, err }.
type SummarizerFunc func(ctx context.Context, sessionID string) (bool, error)

// RollingSummaryStore is the narrow store slice needed to enumerate
// sessions to check for a rolling-summary boundary.
type RollingSummaryStore interface {
	ActiveSessionIDs(ctx context.Context, window time.Duration) ([]string, error)
}

const summaryActiveWindow = 24 * time.Hour

// RollingSummaryTask checks every active session for whether it has
// crossed the rolling-summary window boundary (spec.md §4.4) and, if
// so, triggers a new rolling summary.
type RollingSummaryTask struct {
	store     RollingSummaryStore
	summarize SummarizerFunc
	interval  time.Duration
}

func NewRollingSummaryTask(store RollingSummaryStore, summarize SummarizerFunc, interval time.Duration) *RollingSummaryTask {
	return &RollingSummaryTask{store: store, summarize: summarize, interval: interval}
}

func (t *RollingSummaryTask) Name() string           { return "rolling_summary" }
func (t *RollingSummaryTask) Interval() time.Duration { return t.interval }

func (t *RollingSummaryTask) Run(ctx context.Context) (int, error) {
	sessions, err := t.store.ActiveSessionIDs(ctx, summaryActiveWindow)
	if err != nil {
		return 0, err
	}

	processed := 0
	for _, sessionID := range sessions {
		if ctx.Err() != nil {
			return processed, ctx.Err()
		}
		fired, err := t.summarize(ctx, sessionID)
		if err != nil {
			return processed, err
		}
		if fired {
			processed++
		}
	}
	return processed, nil
}
