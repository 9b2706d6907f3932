package llmprovider

import (
	"context"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"mira/internal/config"
	"mira/internal/logging"
	"mira/internal/model"
)

// GenAIProvider backs Provider with Google's Gemini API, grounded on
// theRebelliousNerd-codenerd/internal/embedding/genai.go's client
// construction (genai.NewClient with a GenAI API key) extended here to
// the chat surface (client.Models.GenerateContent) instead of embeddings.
type GenAIProvider struct {
	client *genai.Client
	model  string
}

// NewGenAIProvider builds a provider from LLM configuration.
func NewGenAIProvider(cfg config.LLMConfig) (*GenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, &model.ProviderError{Kind: model.ProviderInvalidKey, Err: fmt.Errorf("genai API key is required")}
	}
	m := cfg.Model
	if m == "" {
		m = "gemini-2.0-flash"
	}
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{APIKey: cfg.APIKey})
	if err != nil {
		return nil, &model.ProviderError{Kind: model.ProviderAPIError, Err: err}
	}
	return &GenAIProvider{client: client, model: m}, nil
}

func (p *GenAIProvider) Name() string { return "genai:" + p.model }

func (p *GenAIProvider) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	return p.complete(ctx, req)
}

// CompleteWithReasoning forwards to the same GenerateContent call;
// Gemini's "thinking" budget is not modeled here since no component in
// SPEC_FULL.md currently asks genai for reasoning tokens specifically
// (its role is the default embedding backend, with chat as a fallback
// provider option).
func (p *GenAIProvider) CompleteWithReasoning(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	return p.complete(ctx, req)
}

func (p *GenAIProvider) complete(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	timer := logging.StartTimer(logging.CategoryLLM, "genai.complete")
	defer timer.Stop()

	contents := make([]*genai.Content, 0, len(req.Messages))
	for _, m := range req.Messages {
		role := genai.RoleUser
		if m.Role == model.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}

	cfg := &genai.GenerateContentConfig{}
	if req.SystemPrompt != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.SystemPrompt, genai.RoleUser)
	}

	start := time.Now()
	resp, err := p.client.Models.GenerateContent(ctx, p.model, contents, cfg)
	logging.Get(logging.CategoryLLM).Debugw("genai call completed", "duration_ms", time.Since(start).Milliseconds())
	if err != nil {
		return ChatResponse{}, &model.ProviderError{Kind: classifyGenAIErr(err), Err: err}
	}

	text := strings.TrimSpace(resp.Text())
	usage := Usage{}
	if resp.UsageMetadata != nil {
		usage.PromptTokens = int(resp.UsageMetadata.PromptTokenCount)
		usage.CompletionTokens = int(resp.UsageMetadata.CandidatesTokenCount)
		usage.TotalTokens = int(resp.UsageMetadata.TotalTokenCount)
	}

	return ChatResponse{Content: text, Usage: usage}, nil
}

func classifyGenAIErr(err error) model.ProviderErrorKind {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "429") || strings.Contains(msg, "rate"):
		return model.ProviderRateLimited
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline"):
		return model.ProviderTimeout
	case strings.Contains(msg, "401") || strings.Contains(msg, "403") || strings.Contains(msg, "api key"):
		return model.ProviderInvalidKey
	default:
		return model.ProviderAPIError
	}
}
