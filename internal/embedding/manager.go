package embedding

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"mira/internal/logging"
	"mira/internal/model"
	"mira/internal/vectorstore"
)

// maxInputChars is the truncation ceiling applied before any text reaches
// a provider, per spec.md §4.1's "truncated to the limit; never silently
// dropped". Conservative relative to every provider in the pack (genai
// and OpenAI both accept several times this many characters per input).
const maxInputChars = 8000

// retryAttempts and baseBackoff match spec.md §4.1's "2 attempts,
// 500ms·attempt Laplace backoff" retry policy for the non-batched path.
const retryAttempts = 2

const baseBackoff = 500 * time.Millisecond

// Manager is the Embedding Manager (C3): it chunks a MemoryEntry per
// head, embeds the chunks, and writes the resulting vectors into the
// vector store plus their embedding_refs bookkeeping.
type Manager struct {
	provider Provider
	vectors  *vectorstore.Store
	refs     RefWriter
}

// RefWriter is the subset of store.Store the manager needs, so tests can
// substitute a fake without standing up a real database.
type RefWriter interface {
	StoreEmbeddingRefs(ctx context.Context, refs []model.EmbeddingRef) error
}

// NewManager wires a provider, vector store, and ref writer together.
func NewManager(provider Provider, vectors *vectorstore.Store, refs RefWriter) *Manager {
	return &Manager{provider: provider, vectors: vectors, refs: refs}
}

// codeElementsFunc supplies the whole-element chunks for the code head;
// nil means the entry carries no code-element content.
type codeElementsFunc func() []string

// headChunks pairs a head with the chunks produced for it.
type headChunks struct {
	head   model.Head
	chunks []string
}

// Embed chunks entry per its routed heads, embeds every chunk, and
// persists the vectors plus refs. A failure embedding one head's chunks
// is logged and skipped; it never aborts the other heads, per spec.md
// §4.1's per-head failure isolation.
func (m *Manager) Embed(ctx context.Context, entry model.MemoryEntry, codeElements codeElementsFunc) error {
	timer := logging.StartTimer(logging.CategoryEmbedding, "Manager.Embed")
	defer timer.Stop()

	var perHead []headChunks
	var allChunks []string
	for _, head := range entry.Heads {
		var elements []string
		if head == model.HeadCode && codeElements != nil {
			elements = codeElements()
		}
		chunks := ChunkForHead(head, entry.Content, elements)
		for i, c := range chunks {
			chunks[i] = truncate(c)
		}
		if len(chunks) == 0 {
			continue
		}
		perHead = append(perHead, headChunks{head: head, chunks: chunks})
		allChunks = append(allChunks, chunks...)
	}
	if len(perHead) == 0 {
		return nil
	}

	// Batching: try one call across every head's chunks first, since the
	// providers here all support native batch embedding.
	vectors, err := m.provider.EmbedBatch(ctx, allChunks)
	if err != nil || len(vectors) != len(allChunks) {
		logging.Get(logging.CategoryEmbedding).Warnw("batched embed failed, falling back per-head", "entry", entry.ID, "err", err)
		return m.embedPerHeadWithRetry(ctx, entry, perHead)
	}

	idx := 0
	var refs []model.EmbeddingRef
	for _, hc := range perHead {
		points := make([]vectorstore.Point, len(hc.chunks))
		for i, c := range hc.chunks {
			points[i] = vectorstore.Point{
				ID:        pointID(entry.ID, hc.head, i),
				SessionID: entry.SessionID,
				Vector:    vectors[idx+i],
				Content:   c,
			}
		}
		idx += len(hc.chunks)

		if err := m.vectors.SaveBatch(ctx, hc.head, points); err != nil {
			logging.Get(logging.CategoryEmbedding).Errorw("failed to save vector batch", "head", hc.head, "err", err)
			continue
		}
		refs = append(refs, model.EmbeddingRef{Head: hc.head, PointID: points[0].ID})
	}
	return m.writeRefs(ctx, entry.ID, refs)
}

// embedPerHeadWithRetry is the fallback path when a single batched call
// across heads fails: each head is retried independently (2 attempts,
// Laplace-jittered backoff) so one provider hiccup doesn't cost every
// head its embedding.
func (m *Manager) embedPerHeadWithRetry(ctx context.Context, entry model.MemoryEntry, perHead []headChunks) error {
	var refs []model.EmbeddingRef
	for _, hc := range perHead {
		vectors, err := m.embedWithRetry(ctx, hc.chunks)
		if err != nil {
			logging.Get(logging.CategoryEmbedding).Errorw("embedding failed for head, skipping", "head", hc.head, "entry", entry.ID, "err", err)
			continue
		}
		points := make([]vectorstore.Point, len(hc.chunks))
		for i, c := range hc.chunks {
			points[i] = vectorstore.Point{
				ID:        pointID(entry.ID, hc.head, i),
				SessionID: entry.SessionID,
				Vector:    vectors[i],
				Content:   c,
			}
		}
		if err := m.vectors.SaveBatch(ctx, hc.head, points); err != nil {
			logging.Get(logging.CategoryEmbedding).Errorw("failed to save vector batch", "head", hc.head, "err", err)
			continue
		}
		refs = append(refs, model.EmbeddingRef{Head: hc.head, PointID: points[0].ID})
	}
	return m.writeRefs(ctx, entry.ID, refs)
}

func (m *Manager) embedWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	var lastErr error
	for attempt := 1; attempt <= retryAttempts; attempt++ {
		vectors, err := m.provider.EmbedBatch(ctx, texts)
		if err == nil {
			return vectors, nil
		}
		lastErr = err
		if attempt < retryAttempts {
			select {
			case <-time.After(laplaceBackoff(attempt)):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return nil, fmt.Errorf("embed retries exhausted: %w", lastErr)
}

func (m *Manager) writeRefs(ctx context.Context, entryID string, refs []model.EmbeddingRef) error {
	if len(refs) == 0 || m.refs == nil {
		return nil
	}
	// entryID is the message id for message-scoped entries; callers whose
	// entries aren't message-backed (e.g. pure summary entries) pass refs
	// through their own bookkeeping instead of this writer.
	var messageID int64
	if _, err := fmt.Sscanf(entryID, "%d", &messageID); err != nil {
		return nil
	}
	for i := range refs {
		refs[i].MessageID = messageID
	}
	return m.refs.StoreEmbeddingRefs(ctx, refs)
}

func truncate(s string) string {
	if len(s) <= maxInputChars {
		return s
	}
	logging.Get(logging.CategoryEmbedding).Warnw("truncating input at provider limit", "original_len", len(s), "limit", maxInputChars)
	return s[:maxInputChars]
}

func pointID(entryID string, head model.Head, index int) string {
	return fmt.Sprintf("%s:%s:%d", entryID, head, index)
}

// laplaceBackoff implements spec.md §4.1's "500ms·attempt Laplace
// backoff": a base delay scaling with the attempt number, jittered by
// noise drawn from a Laplace distribution so retries across concurrent
// callers don't synchronize.
func laplaceBackoff(attempt int) time.Duration {
	base := time.Duration(attempt) * baseBackoff
	noise := sampleLaplace(float64(baseBackoff) * 0.2)
	d := base + time.Duration(noise)
	if d < 0 {
		return base
	}
	return d
}

// sampleLaplace draws from a Laplace(0, scale) distribution via inverse
// transform sampling.
func sampleLaplace(scale float64) float64 {
	u := rand.Float64() - 0.5
	sign := 1.0
	if u < 0 {
		sign = -1.0
	}
	return -sign * scale * math.Log(1-2*math.Abs(u))
}
