package llmprovider

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"mira/internal/config"
	"mira/internal/model"
)

func TestIsThinkingModel(t *testing.T) {
	cases := map[string]bool{
		"o1":          false,
		"o1-mini":     true,
		"o4-mini":     true,
		"o1-pro":      true,
		"gpt-4o":      false,
		"gpt-4o-mini": false,
	}
	for m, want := range cases {
		assert.Equal(t, want, isThinkingModel(m), "model %s", m)
	}
}

func TestClassifyOpenAIErr(t *testing.T) {
	assert.Equal(t, model.ProviderRateLimited, classifyOpenAIErr(errors.New("429 rate limited")))
	assert.Equal(t, model.ProviderTimeout, classifyOpenAIErr(errors.New("context deadline exceeded: timeout")))
	assert.Equal(t, model.ProviderInvalidKey, classifyOpenAIErr(errors.New("401 invalid_api_key")))
	assert.Equal(t, model.ProviderAPIError, classifyOpenAIErr(errors.New("500 internal server error")))
}

func TestClassifyAnthropicErr(t *testing.T) {
	assert.Equal(t, model.ProviderRateLimited, classifyAnthropicErr(errors.New("429 Too Many Requests")))
	assert.Equal(t, model.ProviderInvalidKey, classifyAnthropicErr(errors.New("401: authentication_error")))
}

func TestNew_UnknownProviderReturnsError(t *testing.T) {
	_, err := New(config.LLMConfig{Provider: "carrier-pigeon"})
	assert.Error(t, err)
}

func TestNew_DeepseekUsesOpenAICompatibleBaseURL(t *testing.T) {
	p, err := New(config.LLMConfig{Provider: "deepseek", APIKey: "k"})
	assert.NoError(t, err)
	assert.Equal(t, "deepseek:deepseek-chat", p.Name())
}

func TestNew_AnthropicIsDefault(t *testing.T) {
	p, err := New(config.LLMConfig{Provider: "", APIKey: "k"})
	assert.NoError(t, err)
	assert.Contains(t, p.Name(), "anthropic:")
}

func TestToAnthropicMessages_PreservesRoles(t *testing.T) {
	msgs := toAnthropicMessages([]Message{
		{Role: model.RoleUser, Content: "hi"},
		{Role: model.RoleAssistant, Content: "hello"},
	})
	assert.Len(t, msgs, 2)
}
