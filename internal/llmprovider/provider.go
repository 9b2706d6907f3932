// Package llmprovider implements the LLM Provider capability named in
// spec.md §4.3: a single chat interface backed by one of several
// official SDKs, so the message pipeline (C4) and operation engine (C9)
// never depend on a specific vendor. Grounded on the capability-interface
// shape of theRebelliousNerd-codenerd/internal/perception/client_types.go
// (LLMClient/Provider/per-vendor *Config structs), but implemented
// against the official anthropic-sdk-go, openai-go/v2, and
// google.golang.org/genai SDKs the way intelligencedev-manifold's
// internal/llm/anthropic and internal/llm/openai_client.go and
// vvoland-cagent's internal/creator/agent.go do, since the teacher's own
// client_*.go files are hand-rolled REST and not the ecosystem's SDK
// idiom.
package llmprovider

import (
	"context"

	"mira/internal/model"
)

// Role mirrors model.Role for provider-facing chat turns.
type Role = model.Role

// Message is one turn in a chat request.
type Message struct {
	Role    Role
	Content string
}

// Usage reports token accounting for a completed request.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// ChatRequest is the common shape every provider backend accepts.
type ChatRequest struct {
	Messages     []Message
	SystemPrompt string
	// Effort selects a reasoning budget for CompleteWithReasoning ("low",
	// "medium", "high"); ignored by Chat and by providers with no
	// reasoning-token concept.
	Effort string
}

// ChatResponse is the common shape every provider backend returns.
type ChatResponse struct {
	Content         string
	Usage           Usage
	ReasoningTokens int
}

// Provider is the abstract LLM Provider capability. Every backend must
// implement both methods even when it has no reasoning-token concept of
// its own, per spec.md's Redesign note that the union of vendor
// capabilities is assumed rather than the intersection.
type Provider interface {
	Chat(ctx context.Context, req ChatRequest) (ChatResponse, error)
	CompleteWithReasoning(ctx context.Context, req ChatRequest) (ChatResponse, error)
	Name() string
}
