package embedding

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"mira/internal/config"
	"mira/internal/logging"
	"mira/internal/model"
)

// maxGenAIBatch mirrors the teacher's maxBatchSize: the GenAI API 400s
// above 100 requests per batch call.
const maxGenAIBatch = 100

// GenAIProvider embeds text via Google's Gemini API, ported near-verbatim
// from theRebelliousNerd-codenerd/internal/embedding/genai.go's
// GenAIEngine — client construction, EmbedContent call shape, and the
// sequential-chunking EmbedBatch fallback above the 100-item API limit —
// generalized to Mira's configured dimensionality instead of the
// teacher's hardcoded 3072.
type GenAIProvider struct {
	client *genai.Client
	model  string
	dims   int32
}

// NewGenAIProvider constructs the genai embedding backend.
func NewGenAIProvider(cfg config.EmbeddingConfig) (*GenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, &model.ProviderError{Kind: model.ProviderInvalidKey, Err: fmt.Errorf("genai API key is required")}
	}
	m := cfg.Model
	if m == "" {
		m = "gemini-embedding-001"
	}
	dims := int32(cfg.Dimensions)
	if dims <= 0 {
		dims = 768
	}
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{APIKey: cfg.APIKey})
	if err != nil {
		return nil, &model.ProviderError{Kind: model.ProviderAPIError, Err: err}
	}
	return &GenAIProvider{client: client, model: m, dims: dims}, nil
}

func (p *GenAIProvider) Dimensions() int { return int(p.dims) }
func (p *GenAIProvider) Name() string    { return "genai:" + p.model }

func (p *GenAIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := p.embedChunk(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, &model.ProviderError{Kind: model.ProviderAPIError, Err: fmt.Errorf("no embeddings returned")}
	}
	return vecs[0], nil
}

func (p *GenAIProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if len(texts) <= maxGenAIBatch {
		return p.embedChunk(ctx, texts)
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += maxGenAIBatch {
		end := start + maxGenAIBatch
		if end > len(texts) {
			end = len(texts)
		}
		chunk, err := p.embedChunk(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("batch %d-%d: %w", start, end, err)
		}
		out = append(out, chunk...)
	}
	return out, nil
}

func (p *GenAIProvider) embedChunk(ctx context.Context, texts []string) ([][]float32, error) {
	timer := logging.StartTimer(logging.CategoryEmbedding, "genai.embedChunk")
	defer timer.Stop()

	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}

	result, err := p.client.Models.EmbedContent(ctx, p.model, contents, &genai.EmbedContentConfig{
		OutputDimensionality: &p.dims,
	})
	if err != nil {
		return nil, &model.ProviderError{Kind: model.ProviderAPIError, Err: err}
	}

	out := make([][]float32, len(result.Embeddings))
	for i, e := range result.Embeddings {
		out[i] = e.Values
	}
	return out, nil
}
