package tasks

import (
	"context"
	"time"

	"mira/internal/model"
)

// AnalysisBacklogStore is the narrow store slice the analysis backlog
// task needs to find sessions with unanalyzed messages.
type AnalysisBacklogStore interface {
	ActiveSessionIDs(ctx context.Context, window time.Duration) ([]string, error)
}

// Pipeline is the narrow pipeline.Pipeline slice the analysis backlog
// task drives.
type Pipeline interface {
	AnalyzeBatch(ctx context.Context, sessionID string, limit int) ([]model.Analysis, error)
}

const (
	analysisActiveWindow = 24 * time.Hour
	analysisBatchLimit   = 20
)

// AnalysisBacklogTask runs the C4 message pipeline over every active
// session's unanalyzed messages, so a saved message is analyzed even
// when no inline Analyze call reached it (e.g. a crash between
// SaveMessage and Analyze).
type AnalysisBacklogTask struct {
	store    AnalysisBacklogStore
	pipeline Pipeline
	interval time.Duration
}

func NewAnalysisBacklogTask(store AnalysisBacklogStore, pipeline Pipeline, interval time.Duration) *AnalysisBacklogTask {
	return &AnalysisBacklogTask{store: store, pipeline: pipeline, interval: interval}
}

func (t *AnalysisBacklogTask) Name() string           { return "analysis_backlog" }
func (t *AnalysisBacklogTask) Interval() time.Duration { return t.interval }

func (t *AnalysisBacklogTask) Run(ctx context.Context) (int, error) {
	sessions, err := t.store.ActiveSessionIDs(ctx, analysisActiveWindow)
	if err != nil {
		return 0, err
	}

	processed := 0
	for _, sessionID := range sessions {
		if ctx.Err() != nil {
			return processed, ctx.Err()
		}
		results, err := t.pipeline.AnalyzeBatch(ctx, sessionID, analysisBatchLimit)
		if err != nil {
			return processed, err
		}
		processed += len(results)
	}
	return processed, nil
}
