package main

import (
	"context"
	"fmt"

	"mira/internal/embedding"
	"mira/internal/model"
	"mira/internal/store"
)

// storeMessageEmbedder adapts the store and embedding manager to
// tasks.MessageEmbedder, re-running the embed step for one message_id
// by loading its content and already-routed heads back up, mirroring
// pipeline.embedAnalyzed's model.MemoryEntry construction.
type storeMessageEmbedder struct {
	store    *store.Store
	embedder *embedding.Manager
}

func (e *storeMessageEmbedder) EmbedMessage(ctx context.Context, messageID int64) error {
	msg, err := e.store.GetMessageByID(ctx, messageID)
	if err != nil {
		return err
	}
	analysis, err := e.store.GetAnalysis(ctx, messageID)
	if err != nil {
		return err
	}
	if len(analysis.RoutedToHeads) == 0 {
		return nil
	}

	entry := model.MemoryEntry{
		ID:        fmt.Sprintf("%d", msg.ID),
		SessionID: msg.SessionID,
		Content:   msg.Content,
		Heads:     analysis.RoutedToHeads,
		CreatedAt: msg.CreatedAt,
	}
	return e.embedder.Embed(ctx, entry, nil)
}
