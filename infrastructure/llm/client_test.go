package llm

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tagMiddleware appends its tag to the prompt so tests can observe
// the order in which middleware runs.
func tagMiddleware(tag string) Middleware {
	return func(next CoreLLM) CoreLLM {
		return &taggedLLM{next: next, tag: tag}
	}
}

type taggedLLM struct {
	next CoreLLM
	tag  string
}

func (t *taggedLLM) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	return t.next.DoRequest(ctx, prompt+t.tag, opts)
}
func (t *taggedLLM) GetModel() string  { return t.next.GetModel() }
func (t *taggedLLM) SetModel(m string) { t.next.SetModel(m) }

// TestChain tests that the first middleware is the outermost layer.
func TestChain(t *testing.T) {
	mock := NewMockCoreLLM()
	core := Chain(mock, tagMiddleware("-a"), nil, tagMiddleware("-b"))

	_, _, _, err := core.DoRequest(context.Background(), "p", nil)

	require.NoError(t, err)
	assert.Equal(t, []string{"p-a-b"}, mock.Prompts())
}

// TestNewClient tests construction failures and the provider lookup.
func TestNewClient(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		cfg      ClientConfig
		wantErr  string
	}{
		{"missing key", "openai", ClientConfig{Model: "gpt-4.1"}, "API key cannot be empty"},
		{"missing model", "openai", ClientConfig{APIKey: "k"}, "model is required"},
		{"unknown provider", "nope", ClientConfig{APIKey: "k", Model: "m"}, "unknown provider: nope"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewClient(tt.provider, tt.cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	t.Run("registered provider with middleware", func(t *testing.T) {
		c, err := NewClient("deepseek", ClientConfig{
			APIKey:     "k",
			Model:      "deepseek-chat",
			Middleware: []Middleware{tagMiddleware("x")},
		})
		require.NoError(t, err)
		assert.Equal(t, "deepseek-chat", c.GetModel())
	})
}

// TestClient_Complete tests that Client forwards to the chain and estimates
// tokens with the default estimator.
func TestClient_Complete(t *testing.T) {
	mock := NewMockCoreLLM()
	mock.Response = "hello"
	c := NewClientFromCore(mock, nil)

	got, err := c.Complete(context.Background(), "prompt", map[string]any{OptSkill: "generate"})
	require.NoError(t, err)
	assert.Equal(t, "hello", got)
	assert.Equal(t, "generate", mock.LastOpts()[OptSkill])

	resp, in, out, err := c.CompleteWithUsage(context.Background(), "prompt", nil)
	require.NoError(t, err)
	assert.Equal(t, "hello", resp)
	assert.Equal(t, 10, in)
	assert.Equal(t, 20, out)

	n, err := c.EstimateTokens(strings.Repeat("a", 9))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, "test-model", c.GetModel())
}

// TestRegisteredProviders tests that every built-in provider registers itself.
func TestRegisteredProviders(t *testing.T) {
	got := RegisteredProviders()
	for _, p := range []string{"anthropic", "deepseek", "google", "openai"} {
		assert.Contains(t, got, p)
	}
}

func TestEstimateOr(t *testing.T) {
	assert.Equal(t, 7, estimateOr(7, "ignored"))
	assert.Equal(t, 2, estimateOr(0, "abcde"))
	assert.Equal(t, 0, estimateOr(0, ""))
}
