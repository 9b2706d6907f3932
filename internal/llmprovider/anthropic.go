package llmprovider

import (
	"context"
	"strings"
	"time"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"mira/internal/config"
	"mira/internal/logging"
	"mira/internal/model"
)

const defaultAnthropicMaxTokens int64 = 4096

// AnthropicProvider backs Provider with Anthropic's Messages API,
// grounded on intelligencedev-manifold/internal/llm/anthropic/client.go's
// Chat method (anthropic.NewClient, MessageNewParams, NewUserMessage/
// NewTextBlock message construction, ThinkingConfigParamOfEnabled for
// reasoning requests).
type AnthropicProvider struct {
	sdk   anthropicsdk.Client
	model string
}

// NewAnthropicProvider builds a provider from LLM configuration.
func NewAnthropicProvider(cfg config.LLMConfig) *AnthropicProvider {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")))
	}
	m := cfg.Model
	if m == "" {
		m = "claude-sonnet-4-5-20250514"
	}
	return &AnthropicProvider{sdk: anthropicsdk.NewClient(opts...), model: m}
}

func (p *AnthropicProvider) Name() string { return "anthropic:" + p.model }

func (p *AnthropicProvider) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	return p.complete(ctx, req, false)
}

func (p *AnthropicProvider) CompleteWithReasoning(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	return p.complete(ctx, req, true)
}

func (p *AnthropicProvider) complete(ctx context.Context, req ChatRequest, reasoning bool) (ChatResponse, error) {
	timer := logging.StartTimer(logging.CategoryLLM, "anthropic.complete")
	defer timer.Stop()

	params := anthropicsdk.MessageNewParams{
		Model:     anthropicsdk.Model(p.model),
		Messages:  toAnthropicMessages(req.Messages),
		MaxTokens: defaultAnthropicMaxTokens,
	}
	if req.SystemPrompt != "" {
		params.System = []anthropicsdk.TextBlockParam{{Text: req.SystemPrompt}}
	}
	if reasoning {
		budget := effortToThinkingBudget(req.Effort)
		params.Thinking = anthropicsdk.ThinkingConfigParamOfEnabled(budget)
		if params.MaxTokens <= budget {
			params.MaxTokens = budget + defaultAnthropicMaxTokens
		}
	}

	start := time.Now()
	resp, err := p.sdk.Messages.New(ctx, params)
	logging.Get(logging.CategoryLLM).Debugw("anthropic call completed", "duration_ms", time.Since(start).Milliseconds(), "reasoning", reasoning)
	if err != nil {
		return ChatResponse{}, &model.ProviderError{Kind: classifyAnthropicErr(err), Err: err}
	}

	var text strings.Builder
	var reasoningTokens int
	for _, block := range resp.Content {
		switch b := block.AsAny().(type) {
		case anthropicsdk.TextBlock:
			text.WriteString(b.Text)
		case anthropicsdk.ThinkingBlock:
			reasoningTokens += len(strings.Fields(b.Thinking))
		}
	}

	return ChatResponse{
		Content: strings.TrimSpace(text.String()),
		Usage: Usage{
			PromptTokens:     int(resp.Usage.InputTokens),
			CompletionTokens: int(resp.Usage.OutputTokens),
			TotalTokens:      int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
		},
		ReasoningTokens: reasoningTokens,
	}, nil
}

func toAnthropicMessages(msgs []Message) []anthropicsdk.MessageParam {
	out := make([]anthropicsdk.MessageParam, 0, len(msgs))
	for _, m := range msgs {
		block := anthropicsdk.NewTextBlock(m.Content)
		switch m.Role {
		case model.RoleAssistant:
			out = append(out, anthropicsdk.NewAssistantMessage(block))
		default:
			out = append(out, anthropicsdk.NewUserMessage(block))
		}
	}
	return out
}

// effortToThinkingBudget maps the abstract effort knob to Anthropic's
// budget_tokens; Anthropic enforces a minimum of 1024.
func effortToThinkingBudget(effort string) int64 {
	switch effort {
	case "high":
		return 8192
	case "medium":
		return 4096
	default:
		return 1024
	}
}

func classifyAnthropicErr(err error) model.ProviderErrorKind {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "429") || strings.Contains(msg, "rate"):
		return model.ProviderRateLimited
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline"):
		return model.ProviderTimeout
	case strings.Contains(msg, "401") || strings.Contains(msg, "authentication") || strings.Contains(msg, "api key"):
		return model.ProviderInvalidKey
	default:
		return model.ProviderAPIError
	}
}
