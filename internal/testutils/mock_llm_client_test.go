package testutils

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMockLLMClient_Complete tests pattern matching against the default
// replies and the fallback.
func TestMockLLMClient_Complete(t *testing.T) {
	tests := []struct {
		name   string
		prompt string
		want   string
	}{
		{"generate prompt", `Reply with {"generated_items": [...]}`, DefaultGenerateReply},
		{"mutate prompt", `Return JSON with a "variants" array`, DefaultMutateReply},
		{"judge prompt", `Return {"Rankings": [...]}`, DefaultJudgeReply},
	}

	m := NewMockLLMClient("mock")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := m.Complete(context.Background(), tt.prompt, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := m.Complete(context.Background(), "unmatched", nil)
	assert.Error(t, err, "no fallback configured")

	m.AddResponse(MockResponse{Response: "fallback"})
	got, err := m.Complete(context.Background(), "unmatched", nil)
	require.NoError(t, err)
	assert.Equal(t, "fallback", got)
}

func TestMockLLMClient_AddResponseReplaces(t *testing.T) {
	m := NewMockLLMClient("mock")
	boom := errors.New("boom")
	m.AddResponse(MockResponse{Pattern: "Rankings", Err: boom})

	_, err := m.Complete(context.Background(), "rankings please", nil)

	assert.ErrorIs(t, err, boom)
}

func TestMockLLMClient_RecordsCalls(t *testing.T) {
	m := NewMockLLMClient("mock")
	opts := map[string]any{"skill": "generate"}

	_, err := m.Complete(context.Background(), "generated_items", opts)
	require.NoError(t, err)

	call, ok := m.LastCall()
	require.True(t, ok)
	assert.Equal(t, "generated_items", call.Prompt)
	assert.Equal(t, opts, call.Options)
	assert.Len(t, m.Calls(), 1)

	m.Reset()
	assert.Empty(t, m.Calls())
}

func TestMockLLMClient_ContextAndEmptyPrompt(t *testing.T) {
	m := NewMockLLMClient("mock")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.Complete(ctx, "variants", nil)
	assert.ErrorIs(t, err, context.Canceled)

	_, err = m.Complete(context.Background(), "", nil)
	assert.Error(t, err)
}

func TestMockLLMClient_EstimateTokensAndModel(t *testing.T) {
	m := NewMockLLMClient("mock-1")

	n, err := m.EstimateTokens("")
	require.NoError(t, err)
	assert.Zero(t, n)
	n, _ = m.EstimateTokens("ab")
	assert.Equal(t, 1, n)
	n, _ = m.EstimateTokens("abcdefgh")
	assert.Equal(t, 2, n)

	assert.Equal(t, "mock-1", m.GetModel())
	m.SetModel("mock-2")
	assert.Equal(t, "mock-2", m.GetModel())
}
