package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/openai/openai-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/tender-radar/internal/retry"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.Equal(t, ProviderGemini, config.Provider)
	assert.Equal(t, "gemini-2.5-flash-lite", config.GetModel(TierLite))
	assert.Equal(t, "gemini-2.5-flash", config.GetModel(TierStandard))
	assert.Equal(t, "gemini-2.5-pro", config.GetModel(TierAdvanced))
}

func TestDefaultConfigFor(t *testing.T) {
	assert.Equal(t, ProviderOpenAI, DefaultConfigFor(ProviderOpenAI).Provider)
	assert.Equal(t, ProviderAnthropic, DefaultConfigFor(ProviderAnthropic).Provider)
	assert.Equal(t, ProviderGemini, DefaultConfigFor("").Provider)
}

func TestGetModel_Fallback(t *testing.T) {
	config := &Config{
		Provider: ProviderGemini,
		Models:   map[ModelTier]string{TierLite: "fallback-model"},
	}
	assert.Equal(t, "fallback-model", config.GetModel("unknown"))
}

func TestGetModel_EmptyConfig(t *testing.T) {
	config := &Config{Provider: ProviderGemini, Models: map[ModelTier]string{}}
	assert.Equal(t, "", config.GetModel(TierAdvanced))
}

func TestWithModel(t *testing.T) {
	config := DefaultConfig()
	newConfig := config.WithModel(TierLite, "custom-model")

	assert.Equal(t, "gemini-2.5-flash-lite", config.GetModel(TierLite))
	assert.Equal(t, "custom-model", newConfig.GetModel(TierLite))
	assert.Equal(t, config.GetModel(TierStandard), newConfig.GetModel(TierStandard))
}

func TestMergeWithDefaults(t *testing.T) {
	merged := (&Config{Provider: ProviderAnthropic}).MergeWithDefaults()
	assert.Equal(t, DefaultAnthropicConfig().Models, merged.Models)
	assert.Equal(t, DefaultTemperature, merged.Temperature)
	assert.Equal(t, DefaultMaxTokens, merged.MaxTokens)

	custom := (&Config{Provider: ProviderOpenAI, Models: map[ModelTier]string{TierLite: "gpt-x"}, MaxTokens: 50}).MergeWithDefaults()
	assert.Equal(t, "gpt-x", custom.GetModel(TierLite))
	assert.Equal(t, 50, custom.MaxTokens)
}

func TestParseProvider(t *testing.T) {
	p, err := ParseProvider("openai")
	require.NoError(t, err)
	assert.Equal(t, ProviderOpenAI, p)

	p, err = ParseProvider("")
	require.NoError(t, err)
	assert.Equal(t, ProviderGemini, p)

	_, err = ParseProvider("mistral")
	assert.Error(t, err)

	assert.Equal(t, "ANTHROPIC_API_KEY", ProviderAnthropic.APIKeyEnv())
	assert.Equal(t, "GEMINI_API_KEY", ProviderGemini.APIKeyEnv())
}

func TestNewClient_RequiresKey(t *testing.T) {
	for _, p := range []Provider{ProviderGemini, ProviderOpenAI, ProviderAnthropic} {
		t.Run(string(p), func(t *testing.T) {
			_, err := NewClient(context.Background(), &Config{Provider: p}, "")
			assert.Error(t, err)
		})
	}
}

func TestNewClient_Providers(t *testing.T) {
	c, err := NewClient(context.Background(), &Config{Provider: ProviderOpenAI}, "sk-test")
	require.NoError(t, err)
	assert.IsType(t, &OpenAIClient{}, c)
	assert.Equal(t, "gpt-4o-mini", c.GetModel(TierLite))

	c, err = NewClient(context.Background(), &Config{Provider: ProviderAnthropic}, "sk-test")
	require.NoError(t, err)
	assert.IsType(t, &AnthropicClient{}, c)
	assert.NoError(t, c.Close())
}

func TestAPIError_Retryable(t *testing.T) {
	tests := []struct {
		name  string
		cause error
		want  bool
	}{
		{name: "openai 429", cause: &openai.Error{StatusCode: http.StatusTooManyRequests}, want: true},
		{name: "openai 400", cause: &openai.Error{StatusCode: http.StatusBadRequest}, want: false},
		{name: "anthropic 529", cause: &anthropic.Error{StatusCode: 529}, want: true},
		{name: "anthropic 401", cause: &anthropic.Error{StatusCode: http.StatusUnauthorized}, want: false},
		{name: "timeout", cause: fmt.Errorf("post: %w", context.DeadlineExceeded), want: true},
		{name: "other", cause: errors.New("malformed"), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := &APIError{Provider: ProviderOpenAI, Message: "call failed", Cause: tt.cause}
			assert.Equal(t, tt.want, err.Retryable())
			assert.Equal(t, tt.want, retry.DefaultIsRetryable(fmt.Errorf("classify: %w", err)))
		})
	}
}
