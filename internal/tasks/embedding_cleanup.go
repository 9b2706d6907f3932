package tasks

import (
	"context"
	"time"

	"mira/internal/model"
)

// nonCodeHeads excludes model.HeadCode: code-head point identity
// ("code:<element_id>") lives entirely outside embedding_refs and is
// reconciled by codeintel.Engine.InvalidateFile/InvalidateProject
// instead, so sweeping it here against embedding_refs would delete
// every code point on the first run.
var nonCodeHeads = []model.Head{model.HeadRecent, model.HeadSemantic, model.HeadSummary}

// EmbeddingCleanupStore is the narrow store slice the orphan sweep needs.
type EmbeddingCleanupStore interface {
	AllEmbeddingRefPointIDs(ctx context.Context, head model.Head) (map[string]bool, error)
}

// EmbeddingCleanupVectors is the narrow vectorstore.Store slice the
// orphan sweep needs.
type EmbeddingCleanupVectors interface {
	ListPoints(ctx context.Context, head model.Head) ([]string, error)
	DeletePoint(ctx context.Context, head model.Head, pointID string) error
}

// EmbeddingCleanupTask deletes vector points that have no corresponding
// embedding_refs row, per spec.md §4.8's weekly orphan sweep: a point
// can outlive its ref row after a crash between the vector write and the
// ref write.
type EmbeddingCleanupTask struct {
	store    EmbeddingCleanupStore
	vectors  EmbeddingCleanupVectors
	interval time.Duration
}

func NewEmbeddingCleanupTask(store EmbeddingCleanupStore, vectors EmbeddingCleanupVectors, interval time.Duration) *EmbeddingCleanupTask {
	return &EmbeddingCleanupTask{store: store, vectors: vectors, interval: interval}
}

func (t *EmbeddingCleanupTask) Name() string           { return "embedding_cleanup" }
func (t *EmbeddingCleanupTask) Interval() time.Duration { return t.interval }

func (t *EmbeddingCleanupTask) Run(ctx context.Context) (int, error) {
	processed := 0
	for _, head := range nonCodeHeads {
		if ctx.Err() != nil {
			return processed, ctx.Err()
		}
		refs, err := t.store.AllEmbeddingRefPointIDs(ctx, head)
		if err != nil {
			return processed, err
		}
		points, err := t.vectors.ListPoints(ctx, head)
		if err != nil {
			return processed, err
		}
		for _, pointID := range points {
			if refs[pointID] {
				continue
			}
			if err := t.vectors.DeletePoint(ctx, head, pointID); err != nil {
				return processed, err
			}
			processed++
		}
	}
	return processed, nil
}
