package primary

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/tender-radar/internal/llm"
	"github.com/jonathan/tender-radar/internal/retry"
	"github.com/jonathan/tender-radar/internal/types"
)

// MockLLMClient implements llm.Client for testing
type MockLLMClient struct {
	GenerateJSONFunc func(ctx context.Context, prompt string, tier llm.ModelTier) (string, error)
}

func (m *MockLLMClient) GenerateContent(ctx context.Context, prompt string, tier llm.ModelTier) (string, error) {
	return m.GenerateJSON(ctx, prompt, tier)
}

func (m *MockLLMClient) GenerateJSON(ctx context.Context, prompt string, tier llm.ModelTier) (string, error) {
	if m.GenerateJSONFunc != nil {
		return m.GenerateJSONFunc(ctx, prompt, tier)
	}
	return `{"prediction": "No", "confidence": 50, "reasoning": "Mock reasoning"}`, nil
}

func (m *MockLLMClient) GetModel(_ llm.ModelTier) string { return "mock-model" }

func (m *MockLLMClient) Close() error { return nil }

func fastRetry() retry.Config {
	return retry.Config{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2}
}

func testConfig() Config {
	return Config{
		ServiceCatalogue: []string{"Programme evaluation", "Impact assessment"},
		CuratedKeywords:  []string{"evaluation", "monitoring"},
		Retry:            fastRetry(),
	}
}

func TestClassify_Success(t *testing.T) {
	var gotPrompt string
	client := &MockLLMClient{
		GenerateJSONFunc: func(_ context.Context, prompt string, tier llm.ModelTier) (string, error) {
			gotPrompt = prompt
			assert.Equal(t, llm.TierLite, tier)
			return "```json\n{\"prediction\": \"Yes\", \"confidence\": 87, \"reasoning\": \"Evaluation of a public programme.\"}\n```", nil
		},
	}

	c := New(client, testConfig(), nil)
	v := c.Classify(context.Background(), "Final evaluation of the ESF programme", "Evaluation services")

	assert.Equal(t, types.MethodPrimary, v.Method)
	assert.True(t, v.IsRelevant)
	assert.Equal(t, 87.0, v.Confidence)
	assert.Equal(t, "Evaluation of a public programme.", v.Reasoning)
	assert.False(t, v.ClassifiedAt.IsZero())

	assert.Contains(t, gotPrompt, "- Programme evaluation\n- Impact assessment")
	assert.Contains(t, gotPrompt, "evaluation, monitoring")
	assert.Contains(t, gotPrompt, "Final evaluation of the ESF programme")
	assert.NotContains(t, gotPrompt, "{{.")
}

func TestClassify_NoPrediction(t *testing.T) {
	client := &MockLLMClient{
		GenerateJSONFunc: func(context.Context, string, llm.ModelTier) (string, error) {
			return `{"prediction": "no", "confidence": 95, "reasoning": "Supply of vehicles."}`, nil
		},
	}
	v := New(client, testConfig(), nil).Classify(context.Background(), "Supply of vehicles", "")

	assert.Equal(t, types.MethodPrimary, v.Method)
	assert.False(t, v.IsRelevant)
	assert.Equal(t, 95.0, v.Confidence)
}

func TestClassify_FailsClosed(t *testing.T) {
	tests := []struct {
		name   string
		answer string
		err    error
	}{
		{name: "network error", err: errors.New("connection refused")},
		{name: "permanent API error", err: &llm.APIError{Provider: llm.ProviderOpenAI, Message: "bad request"}},
		{name: "not JSON", answer: "I think this is relevant."},
		{name: "wrong shape", answer: `{"relevant": true}`},
		{name: "out of range", answer: `{"prediction": "Yes", "confidence": 420, "reasoning": "sure"}`},
		{name: "unknown prediction", answer: `{"prediction": "Maybe", "confidence": 50, "reasoning": "unsure"}`},
		{name: "truncated", answer: `{"prediction": "Yes", "confid`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &MockLLMClient{
				GenerateJSONFunc: func(context.Context, string, llm.ModelTier) (string, error) {
					return tt.answer, tt.err
				},
			}
			v := New(client, testConfig(), nil).Classify(context.Background(), "t", "d")

			assert.Equal(t, types.MethodError, v.Method)
			assert.False(t, v.IsRelevant)
			assert.Zero(t, v.Confidence)
			assert.NotEmpty(t, v.Reasoning)
		})
	}
}

func TestClassify_NilClient(t *testing.T) {
	v := New(nil, testConfig(), nil).Classify(context.Background(), "t", "d")
	assert.Equal(t, types.MethodError, v.Method)
	assert.Contains(t, v.Reasoning, "not configured")
}

func TestClassify_RetriesTransientErrors(t *testing.T) {
	var calls atomic.Int32
	client := &MockLLMClient{
		GenerateJSONFunc: func(context.Context, string, llm.ModelTier) (string, error) {
			if calls.Add(1) < 3 {
				return "", &llm.APIError{Provider: llm.ProviderGemini, Message: "busy", Cause: context.DeadlineExceeded}
			}
			return `{"prediction": "Yes", "confidence": 70, "reasoning": "ok"}`, nil
		},
	}

	v := New(client, testConfig(), nil).Classify(context.Background(), "t", "d")

	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, types.MethodPrimary, v.Method)
}

func TestClassify_StopsAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	client := &MockLLMClient{
		GenerateJSONFunc: func(context.Context, string, llm.ModelTier) (string, error) {
			calls.Add(1)
			return "", errors.New("503 service unavailable: timeout")
		},
	}

	v := New(client, testConfig(), nil).Classify(context.Background(), "t", "d")

	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, types.MethodError, v.Method)
	assert.Contains(t, v.Reasoning, "max retry attempts exceeded")
}

func TestClassify_Timeout(t *testing.T) {
	cfg := testConfig()
	cfg.Timeout = 20 * time.Millisecond
	cfg.Retry.MaxAttempts = 1
	client := &MockLLMClient{
		GenerateJSONFunc: func(ctx context.Context, _ string, _ llm.ModelTier) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		},
	}

	start := time.Now()
	v := New(client, cfg, nil).Classify(context.Background(), "t", "d")

	assert.Equal(t, types.MethodError, v.Method)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestClassify_Reprompt(t *testing.T) {
	var prompts []string
	client := &MockLLMClient{
		GenerateJSONFunc: func(_ context.Context, prompt string, _ llm.ModelTier) (string, error) {
			prompts = append(prompts, prompt)
			if len(prompts) == 1 {
				return "Sure! It is relevant.", nil
			}
			return `{"prediction": "Yes", "confidence": 60, "reasoning": "second try"}`, nil
		},
	}
	cfg := testConfig()
	cfg.Reprompt = true

	v := New(client, cfg, nil).Classify(context.Background(), "Evaluation", "d")

	require.Len(t, prompts, 2)
	assert.Contains(t, prompts[1], "could not be parsed")
	assert.Equal(t, types.MethodPrimary, v.Method)
	assert.Equal(t, "second try", v.Reasoning)
}

func TestClassify_EmptyInputsStillRender(t *testing.T) {
	var gotPrompt string
	client := &MockLLMClient{
		GenerateJSONFunc: func(_ context.Context, prompt string, _ llm.ModelTier) (string, error) {
			gotPrompt = prompt
			return `{"prediction": "No", "confidence": 10, "reasoning": "nothing to go on"}`, nil
		},
	}

	v := New(client, Config{Retry: fastRetry()}, nil).Classify(context.Background(), "", "")

	assert.Equal(t, types.MethodPrimary, v.Method)
	assert.Contains(t, gotPrompt, "Not specified")
}

func TestResponseError_NotRetryable(t *testing.T) {
	err := &ResponseError{Message: "bad"}
	assert.False(t, retry.DefaultIsRetryable(err))
	assert.True(t, retry.StatusRetryable(http.StatusServiceUnavailable))
}
