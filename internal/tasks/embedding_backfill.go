package tasks

import "context"

// EmbeddingBackfillStore is the narrow store slice the one-shot backfill
// needs to find analyzed messages that have no embedding_refs row at all
// (e.g. a crash between UpsertAnalysis and Embed).
type EmbeddingBackfillStore interface {
	MessagesMissingEmbeddings(ctx context.Context, limit int) ([]int64, error)
}

// MessageEmbedder re-runs the embed step for a single message_id,
// looking its content and routed heads back up before calling
// embedding.Manager.Embed.
type MessageEmbedder interface {
	EmbedMessage(ctx context.Context, messageID int64) error
}

const embeddingBackfillBatch = 200

// RunEmbeddingBackfill is C10's one-shot startup task: it is not a
// recurring Task (it doesn't implement the Task interface) because
// spec.md §4.8 runs it exactly once at process start, before the
// recurring tasks begin, to close any gap left by a prior crash.
//
// A message whose routing decided should_embed=false never gets an
// embedding_refs row, so it reappears in MessagesMissingEmbeddings
// forever; attempted tracks every message_id this run has already
// called EmbedMessage on so such a message is retried at most once
// instead of spinning the loop. The loop otherwise only terminates
// when a poll comes back empty — every row matching attempted and
// newly-embedded message_ids drops out of that query on its own.
func RunEmbeddingBackfill(ctx context.Context, store EmbeddingBackfillStore, embedder MessageEmbedder) (int, error) {
	processed := 0
	attempted := make(map[int64]bool)
	for {
		ids, err := store.MessagesMissingEmbeddings(ctx, embeddingBackfillBatch)
		if err != nil {
			return processed, err
		}
		if len(ids) == 0 {
			return processed, nil
		}

		newWork := false
		for _, id := range ids {
			if ctx.Err() != nil {
				return processed, ctx.Err()
			}
			if attempted[id] {
				continue
			}
			attempted[id] = true
			newWork = true
			if err := embedder.EmbedMessage(ctx, id); err != nil {
				return processed, err
			}
			processed++
		}
		if !newWork {
			return processed, nil
		}
	}
}
