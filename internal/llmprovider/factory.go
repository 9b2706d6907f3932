package llmprovider

import (
	"fmt"

	"mira/internal/config"
)

// New resolves a Provider from configuration, grounded on the
// provider-detection switch in
// theRebelliousNerd-codenerd/internal/perception/client_factory.go
// (DetectProvider's provider-to-client dispatch), generalized from the
// teacher's config.json/env-var precedence to Mira's single
// config.LLMConfig.
func New(cfg config.LLMConfig) (Provider, error) {
	switch cfg.Provider {
	case "anthropic", "":
		return NewAnthropicProvider(cfg), nil
	case "openai":
		return NewOpenAIProvider(cfg, ""), nil
	case "deepseek":
		base := cfg.BaseURL
		if base == "" {
			base = "https://api.deepseek.com/v1"
		}
		return NewOpenAIProvider(cfg, base), nil
	case "genai":
		return NewGenAIProvider(cfg)
	default:
		return nil, fmt.Errorf("llmprovider: unknown provider %q", cfg.Provider)
	}
}
