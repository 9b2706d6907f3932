package llmprovider

import (
	"context"
	"strings"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/packages/param"
	"github.com/openai/openai-go/v2/shared"

	"mira/internal/config"
	"mira/internal/logging"
	"mira/internal/model"
)

const defaultOpenAIMaxTokens = 4096

// OpenAIProvider backs Provider with the OpenAI-compatible chat
// completions API, grounded on
// intelligencedev-manifold/internal/llm/openai_client.go's CallLLM
// (openai.NewClient with option.WithBaseURL, ChatCompletionMessageParamUnion
// construction, ChatCompletionNewParams). baseURLOverride lets the same
// client serve DeepSeek through its OpenAI-compatible endpoint, matching
// original_source/src/llm/provider/deepseek.rs's reuse of the OpenAI wire
// format.
type OpenAIProvider struct {
	client openai.Client
	model  string
	name   string
}

// NewOpenAIProvider builds a provider from LLM configuration. Pass a
// non-empty baseURLOverride to target a DeepSeek (or other
// OpenAI-compatible) endpoint instead of api.openai.com.
func NewOpenAIProvider(cfg config.LLMConfig, baseURLOverride string) *OpenAIProvider {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	base := baseURLOverride
	if base == "" {
		base = cfg.BaseURL
	}
	if base != "" {
		opts = append(opts, option.WithBaseURL(base))
	}
	name := "openai"
	defaultModel := "gpt-4o-mini"
	if baseURLOverride != "" {
		name = "deepseek"
		defaultModel = "deepseek-chat"
	}
	m := cfg.Model
	if m == "" {
		m = defaultModel
	}
	return &OpenAIProvider{client: openai.NewClient(opts...), model: m, name: name}
}

func (p *OpenAIProvider) Name() string { return p.name + ":" + p.model }

func (p *OpenAIProvider) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	return p.complete(ctx, req)
}

// CompleteWithReasoning maps onto the same chat completion call: OpenAI's
// o-series reasoning models take no separate reasoning endpoint. The
// effort knob is not sent with the request; reasoning_tokens is read back
// from usage when the API reports it.
func (p *OpenAIProvider) CompleteWithReasoning(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	return p.complete(ctx, req)
}

func (p *OpenAIProvider) complete(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	timer := logging.StartTimer(logging.CategoryLLM, p.name+".complete")
	defer timer.Stop()

	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		msgs = append(msgs, openai.SystemMessage(req.SystemPrompt))
	}
	for _, m := range req.Messages {
		switch m.Role {
		case model.RoleAssistant:
			msgs = append(msgs, openai.AssistantMessage(m.Content))
		case model.RoleSystem:
			msgs = append(msgs, openai.SystemMessage(m.Content))
		default:
			msgs = append(msgs, openai.UserMessage(m.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(p.model),
		Messages: msgs,
	}
	if isThinkingModel(p.model) {
		params.MaxCompletionTokens = param.NewOpt(int64(defaultOpenAIMaxTokens))
	} else {
		params.MaxTokens = param.NewOpt(int64(defaultOpenAIMaxTokens))
		params.Temperature = param.NewOpt(0.2)
	}

	start := time.Now()
	resp, err := p.client.Chat.Completions.New(ctx, params)
	logging.Get(logging.CategoryLLM).Debugw(p.name+" call completed", "duration_ms", time.Since(start).Milliseconds())
	if err != nil {
		return ChatResponse{}, &model.ProviderError{Kind: classifyOpenAIErr(err), Err: err}
	}
	if len(resp.Choices) == 0 {
		return ChatResponse{}, &model.ProviderError{Kind: model.ProviderAPIError, Err: context.Canceled}
	}

	return ChatResponse{
		Content: strings.TrimSpace(resp.Choices[0].Message.Content),
		Usage: Usage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
		ReasoningTokens: int(resp.Usage.CompletionTokensDetails.ReasoningTokens),
	}, nil
}

// isThinkingModel matches OpenAI's o<int>-* reasoning model naming
// (o1-mini, o4-mini, ...; a bare "o1" with no suffix does not match),
// which take max_completion_tokens instead of max_tokens — ported from the teacher-adjacent
// intelligencedev-manifold/internal/llm/openai_client.go helper of the
// same name.
func isThinkingModel(modelName string) bool {
	modelName = strings.ToLower(modelName)
	if !strings.HasPrefix(modelName, "o") {
		return false
	}
	rest := modelName[1:]
	i := 0
	for ; i < len(rest) && rest[i] >= '0' && rest[i] <= '9'; i++ {
	}
	return i > 0 && i < len(rest) && rest[i] == '-'
}

func classifyOpenAIErr(err error) model.ProviderErrorKind {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "429") || strings.Contains(msg, "rate"):
		return model.ProviderRateLimited
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline"):
		return model.ProviderTimeout
	case strings.Contains(msg, "401") || strings.Contains(msg, "invalid_api_key") || strings.Contains(msg, "incorrect api key"):
		return model.ProviderInvalidKey
	default:
		return model.ProviderAPIError
	}
}
