package llm

import (
	"context"
	"errors"
	"sync"
	"time"
)

// MockCoreLLM is a scriptable CoreLLM for middleware tests.
type MockCoreLLM struct {
	mu sync.Mutex

	Response  string
	TokensIn  int
	TokensOut int
	Err       error
	Model     string
	Delay     time.Duration

	// FailFirst makes the first N calls return Err (or a generic error when
	// Err is nil) before succeeding.
	FailFirst int

	// Handler, when set, replaces the fixed response for every call.
	Handler func(prompt string, opts map[string]any) (string, error)

	calls    int
	prompts  []string
	lastOpts map[string]any
}

// NewMockCoreLLM returns a mock that always succeeds.
func NewMockCoreLLM() *MockCoreLLM {
	return &MockCoreLLM{
		Response:  "test response",
		TokensIn:  10,
		TokensOut: 20,
		Model:     "test-model",
	}
}

// DoRequest implements CoreLLM.
func (m *MockCoreLLM) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	m.mu.Lock()
	m.calls++
	call := m.calls
	m.prompts = append(m.prompts, prompt)
	m.lastOpts = opts
	delay, handler := m.Delay, m.Handler
	m.mu.Unlock()

	if delay > 0 {
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return "", 0, 0, ctx.Err()
		case <-t.C:
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if call <= m.FailFirst {
		if m.Err != nil {
			return "", 0, 0, m.Err
		}
		return "", 0, 0, errors.New("simulated failure")
	}
	if handler != nil {
		resp, err := handler(prompt, opts)
		if err != nil {
			return "", 0, 0, err
		}
		return resp, m.TokensIn, m.TokensOut, nil
	}
	if m.Err != nil && m.FailFirst == 0 {
		return "", 0, 0, m.Err
	}
	return m.Response, m.TokensIn, m.TokensOut, nil
}

// GetModel implements CoreLLM.
func (m *MockCoreLLM) GetModel() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Model
}

// SetModel implements CoreLLM.
func (m *MockCoreLLM) SetModel(model string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Model = model
}

// Calls returns how many times DoRequest ran.
func (m *MockCoreLLM) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Prompts returns the prompts received, in call order.
func (m *MockCoreLLM) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.prompts...)
}

// LastOpts returns the options of the most recent call.
func (m *MockCoreLLM) LastOpts() map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastOpts
}
