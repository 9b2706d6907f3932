package embedding

import (
	"fmt"

	"mira/internal/config"
)

// NewProvider resolves an embedding Provider from configuration, the
// embedding-side counterpart of llmprovider.New.
func NewProvider(cfg config.EmbeddingConfig) (Provider, error) {
	switch cfg.Provider {
	case "genai", "":
		return NewGenAIProvider(cfg)
	case "openai":
		return NewOpenAIProvider(cfg), nil
	default:
		return nil, fmt.Errorf("embedding: unknown provider %q", cfg.Provider)
	}
}
