// Package embedding implements the Embedding Manager (C3): an abstract
// EmbeddingProvider capability plus the chunking/batching/truncation
// contract of spec.md §4.1, grounded on
// theRebelliousNerd-codenerd/internal/embedding/engine.go's
// EmbeddingEngine interface (Embed/EmbedBatch/Dimensions/Name) and its
// genai.go backend, generalized to also support an OpenAI-compatible
// embeddings backend the way the rest of the pack wires openai-go for
// every other capability.
package embedding

import "context"

// Provider is the abstract EmbeddingProvider capability named in
// spec.md's Non-goals: "specific LLM and embedding provider APIs (treated
// as abstract LlmProvider and EmbeddingProvider capabilities)".
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Name() string
}
