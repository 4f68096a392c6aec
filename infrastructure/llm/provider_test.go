package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"

	"github.com/ahrav/go-spout/internal/ports"
)

func chatCompletionBody(content string, promptTokens, completionTokens int) map[string]any {
	return map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1,
		"model":   "m",
		"choices": []map[string]any{{
			"index":         0,
			"message":       map[string]any{"role": "assistant", "content": content},
			"finish_reason": "stop",
		}},
		"usage": map[string]any{
			"prompt_tokens":     promptTokens,
			"completion_tokens": completionTokens,
			"total_tokens":      promptTokens + completionTokens,
		},
	}
}

// TestOpenAIProvider_DoRequest tests request shaping and usage reporting
// against a local chat-completions server.
func TestOpenAIProvider_DoRequest(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(chatCompletionBody(`{"generated_items":["a"]}`, 12, 7))
	}))
	defer server.Close()

	p, err := newOpenAICompatible("openai", OpenAIDefaultModel, "", ClientConfig{
		APIKey:  "test-key",
		Model:   "gpt-4.1",
		BaseURL: server.URL + "/v1",
	})
	require.NoError(t, err)

	resp, in, out, err := p.DoRequest(context.Background(), "list things", map[string]any{
		OptTemperature: 0.9,
		OptSystem:      "be terse",
		OptSkill:       "generate",
	})

	require.NoError(t, err)
	assert.Equal(t, `{"generated_items":["a"]}`, resp)
	assert.Equal(t, 12, in)
	assert.Equal(t, 7, out)

	assert.Equal(t, "gpt-4.1", got["model"])
	assert.InDelta(t, 0.9, got["temperature"], 1e-6)
	msgs, ok := got["messages"].([]any)
	require.True(t, ok)
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
	assert.NotContains(t, got, "skill", "skill is never forwarded")
}

// TestDeepSeekProvider_UsesCompatibleEndpoint tests that the deepseek
// provider reuses the OpenAI protocol against its own base URL.
func TestDeepSeekProvider_UsesCompatibleEndpoint(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(chatCompletionBody("ok", 0, 0))
	}))
	defer server.Close()

	c, err := NewClient("deepseek", ClientConfig{APIKey: "k", Model: "deepseek-chat", BaseURL: server.URL})
	require.NoError(t, err)

	resp, in, out, err := c.CompleteWithUsage(context.Background(), "abcdefgh", nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp)
	assert.Equal(t, 2, in, "missing usage falls back to the estimate")
	assert.Equal(t, 1, out)
}

func TestOpenAIProvider_ErrorClassification(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		wantType ErrorType
		sentinel error
	}{
		{"rate limited", http.StatusTooManyRequests, ErrorTypeRateLimit, ports.ErrRateLimited},
		{"unauthorized", http.StatusUnauthorized, ErrorTypeAuthentication, ports.ErrAuthenticationFailed},
		{"server", http.StatusBadGateway, ErrorTypeServerError, ports.ErrServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"error":{"message":"nope","type":"err"}}`))
			}))
			defer server.Close()

			p, err := newOpenAICompatible("openai", OpenAIDefaultModel, "", ClientConfig{APIKey: "k", BaseURL: server.URL})
			require.NoError(t, err)

			_, _, _, err = p.DoRequest(context.Background(), "p", nil)

			var pe *ProviderError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.wantType, pe.Type)
			assert.Equal(t, "openai", pe.Provider)
			assert.ErrorIs(t, err, tt.sentinel)
		})
	}
}

func TestOpenAIProvider_NoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"x","object":"chat.completion","choices":[]}`))
	}))
	defer server.Close()

	p, err := newOpenAICompatible("openai", OpenAIDefaultModel, "", ClientConfig{APIKey: "k", BaseURL: server.URL})
	require.NoError(t, err)

	_, _, _, err = p.DoRequest(context.Background(), "p", nil)
	assert.ErrorIs(t, err, ErrNoResponseChoice)
}

func TestNewOpenAICompatible_Validation(t *testing.T) {
	_, err := newOpenAICompatible("openai", OpenAIDefaultModel, "", ClientConfig{})
	assert.ErrorIs(t, err, ErrEmptyAPIKey)

	_, err = newOpenAICompatible("openai", OpenAIDefaultModel, "", ClientConfig{APIKey: "k", BaseURL: "ftp://x"})
	assert.ErrorContains(t, err, "invalid BaseURL")

	p, err := newOpenAICompatible("deepseek", DeepSeekDefaultModel, DeepSeekBaseURL, ClientConfig{APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, DeepSeekDefaultModel, p.GetModel())
}

// TestAnthropicProvider_DoRequest tests the Messages API round trip.
func TestAnthropicProvider_DoRequest(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":          "msg_1",
			"type":        "message",
			"role":        "assistant",
			"model":       AnthropicDefaultModel,
			"stop_reason": "end_turn",
			"content":     []map[string]any{{"type": "text", "text": `{"Rankings":[]}`}},
			"usage":       map[string]any{"input_tokens": 30, "output_tokens": 4},
		})
	}))
	defer server.Close()

	p, err := newAnthropicProvider(ClientConfig{APIKey: "test-key", BaseURL: server.URL})
	require.NoError(t, err)

	resp, in, out, err := p.DoRequest(context.Background(), "rank these", map[string]any{
		OptTemperature: 1.5,
		OptMaxTokens:   512,
		OptSystem:      "judge",
	})

	require.NoError(t, err)
	assert.Equal(t, `{"Rankings":[]}`, resp)
	assert.Equal(t, 30, in)
	assert.Equal(t, 4, out)
	assert.Equal(t, AnthropicDefaultModel, got["model"])
	assert.InDelta(t, 512, got["max_tokens"], 0)
	assert.InDelta(t, 1.0, got["temperature"], 1e-9, "temperature is clamped to Anthropic's range")
}

func TestAnthropicProvider_AuthError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"authentication_error","message":"bad key"}}`))
	}))
	defer server.Close()

	p, err := newAnthropicProvider(ClientConfig{APIKey: "k", BaseURL: server.URL})
	require.NoError(t, err)

	_, _, _, err = p.DoRequest(context.Background(), "p", nil)

	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, ErrorTypeAuthentication, pe.Type)
	assert.False(t, pe.IsRetryable())
}

func TestGoogleProvider_HandleError(t *testing.T) {
	p := &googleProvider{classifier: ErrorClassifier{Provider: "google"}}

	tests := []struct {
		name     string
		err      error
		wantType ErrorType
	}{
		{"safety block", &googleapi.Error{Code: 400, Message: "Response blocked by safety settings"}, ErrorTypeContentPolicy},
		{"safety reason", &googleapi.Error{Code: 400, Errors: []googleapi.ErrorItem{{Reason: "SAFETY"}}}, ErrorTypeContentPolicy},
		{"rate limit", &googleapi.Error{Code: 429, Message: "quota"}, ErrorTypeRateLimit},
		{"deadline", context.DeadlineExceeded, ErrorTypeTimeout},
		{"transport", assert.AnError, ErrorTypeNetwork},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var pe *ProviderError
			require.ErrorAs(t, p.handleError(tt.err), &pe)
			assert.Equal(t, tt.wantType, pe.Type)
		})
	}
}

func TestNewGoogleProvider(t *testing.T) {
	_, err := newGoogleProvider(ClientConfig{})
	assert.ErrorIs(t, err, ErrEmptyAPIKey)

	p, err := newGoogleProvider(ClientConfig{APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, GoogleDefaultModel, p.GetModel())
}
