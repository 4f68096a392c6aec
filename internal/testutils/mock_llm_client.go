// Package testutils holds test doubles shared across packages.
package testutils

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/ahrav/go-spout/internal/ports"
)

// Default replies keyed by the payload field each prompt asks for.
const (
	DefaultGenerateReply = `{"generated_items": ["Spark Your Day", "Fuel Big Ideas"]}`
	DefaultMutateReply   = `{"variants": ["Upbeat slogans for a coffee brand"]}`
	DefaultJudgeReply    = `{"Rankings": [{"Name": "Input 1", "Rank": 1, "Score": 9, "Explanation": "Best fit"}]}`
)

// MockResponse maps a prompt substring to a reply.
type MockResponse struct {
	// Pattern is matched case-insensitively against the prompt. An empty
	// pattern is the fallback reply.
	Pattern  string
	Response string
	Err      error
}

// Call is one recorded Complete invocation.
type Call struct {
	Prompt  string
	Options map[string]any
}

// MockLLMClient implements ports.LLMClient with pattern-matched replies.
// Patterns are tried in the order they were added; later AddResponse calls
// with an existing pattern replace the earlier reply in place.
type MockLLMClient struct {
	mu        sync.Mutex
	model     string
	responses []MockResponse
	calls     []Call
}

var _ ports.LLMClient = (*MockLLMClient)(nil)

// NewMockLLMClient returns a client preloaded with replies for the
// generate, mutate, and judge prompts.
func NewMockLLMClient(model string) *MockLLMClient {
	m := &MockLLMClient{model: model}
	m.AddResponse(MockResponse{Pattern: "generated_items", Response: DefaultGenerateReply})
	m.AddResponse(MockResponse{Pattern: "variants", Response: DefaultMutateReply})
	m.AddResponse(MockResponse{Pattern: "rankings", Response: DefaultJudgeReply})
	return m
}

// AddResponse registers or replaces the reply for a pattern.
func (m *MockLLMClient) AddResponse(r MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r.Pattern = strings.ToLower(r.Pattern)
	for i := range m.responses {
		if m.responses[i].Pattern == r.Pattern {
			m.responses[i] = r
			return
		}
	}
	m.responses = append(m.responses, r)
}

// Reset drops every reply and recorded call.
func (m *MockLLMClient) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = nil
	m.calls = nil
}

// Complete implements ports.LLMClient.
func (m *MockLLMClient) Complete(ctx context.Context, prompt string, options map[string]any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if prompt == "" {
		return "", errors.New("prompt cannot be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, Call{Prompt: prompt, Options: options})

	lower := strings.ToLower(prompt)
	var fallback *MockResponse
	for i, r := range m.responses {
		if r.Pattern == "" {
			fallback = &m.responses[i]
			continue
		}
		if strings.Contains(lower, r.Pattern) {
			return r.Response, r.Err
		}
	}
	if fallback != nil {
		return fallback.Response, fallback.Err
	}
	return "", fmt.Errorf("mock: no response for prompt %.40q", prompt)
}

// EstimateTokens implements ports.LLMClient.
func (m *MockLLMClient) EstimateTokens(text string) (int, error) {
	if text == "" {
		return 0, nil
	}
	return max(len(text)/4, 1), nil
}

// GetModel implements ports.LLMClient.
func (m *MockLLMClient) GetModel() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.model
}

// SetModel changes the reported model.
func (m *MockLLMClient) SetModel(model string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.model = model
}

// Calls returns the recorded invocations in order.
func (m *MockLLMClient) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

// LastCall returns the most recent invocation.
func (m *MockLLMClient) LastCall() (Call, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return Call{}, false
	}
	return m.calls[len(m.calls)-1], true
}
