package embedding

import (
	"context"
	"fmt"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"mira/internal/config"
	"mira/internal/logging"
	"mira/internal/model"
)

// OpenAIProvider embeds text via OpenAI's embeddings endpoint, grounded
// on the same openai-go/v2 client construction used for chat in
// internal/llmprovider/openai.go (option.WithAPIKey/WithBaseURL), applied
// here to client.Embeddings.New instead of Chat.Completions.New.
type OpenAIProvider struct {
	client openai.Client
	model  string
	dims   int
}

// NewOpenAIProvider constructs the OpenAI embeddings backend.
func NewOpenAIProvider(cfg config.EmbeddingConfig) *OpenAIProvider {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	m := cfg.Model
	if m == "" {
		m = "text-embedding-3-small"
	}
	dims := cfg.Dimensions
	if dims <= 0 {
		dims = 1536
	}
	return &OpenAIProvider{client: openai.NewClient(opts...), model: m, dims: dims}
}

func (p *OpenAIProvider) Dimensions() int { return p.dims }
func (p *OpenAIProvider) Name() string    { return "openai:" + p.model }

func (p *OpenAIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, &model.ProviderError{Kind: model.ProviderAPIError, Err: fmt.Errorf("no embeddings returned")}
	}
	return vecs[0], nil
}

func (p *OpenAIProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	timer := logging.StartTimer(logging.CategoryEmbedding, "openai.EmbedBatch")
	defer timer.Stop()

	resp, err := p.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model:          p.model,
		Input:          openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Dimensions:     openai.Int(int64(p.dims)),
		EncodingFormat: openai.EmbeddingNewParamsEncodingFormatFloat,
	})
	if err != nil {
		return nil, &model.ProviderError{Kind: model.ProviderAPIError, Err: err}
	}

	out := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		vec := make([]float32, len(d.Embedding))
		for j, f := range d.Embedding {
			vec[j] = float32(f)
		}
		out[i] = vec
	}
	return out, nil
}
