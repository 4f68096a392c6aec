package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseError(t *testing.T) {
	cause := errors.New("unexpected end of JSON input")
	err := NewParseError("rankings", []string{"direct", "fenced", "bracket"}, 42, cause)

	assert.Equal(t,
		"parse error: target=rankings, attempts=[direct,fenced,bracket], length=42, err=unexpected end of JSON input",
		err.Error())
	assert.True(t, errors.Is(err, cause), "Should unwrap to underlying error")
}

func TestStructuralError(t *testing.T) {
	err := NewStructuralError("rankings", "Rankings", errors.New("required"))

	assert.Equal(t, "structural error: target=rankings, field=Rankings, err=required", err.Error())
}

func TestBackendCallError(t *testing.T) {
	tests := []struct {
		name    string
		backend string
		model   string
		wantMsg string
	}{
		{
			name:    "without model",
			backend: "judge",
			wantMsg: "backend call error: backend=judge, err=boom",
		},
		{
			name:    "with model",
			backend: "generate",
			model:   "gpt-4.1",
			wantMsg: "backend call error: backend=generate, model=gpt-4.1, err=boom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cause := errors.New("boom")
			err := NewBackendCallError(tt.backend, tt.model, cause)

			assert.Equal(t, tt.wantMsg, err.Error())
			assert.ErrorIs(t, err, cause)
		})
	}
}

func TestTournamentExhaustionError(t *testing.T) {
	err := NewTournamentExhaustionError(2, 6, 3)

	assert.Equal(t, "tournament exhausted: no winners advanced in round 2 (survivors=6, groups=3)", err.Error())

	var target *TournamentExhaustionError
	assert.True(t, errors.As(fmt.Errorf("run: %w", err), &target))
	assert.Equal(t, 2, target.Round)
}

func TestValidationError(t *testing.T) {
	t.Run("single error", func(t *testing.T) {
		err := NewValidationError("Config")
		err.AddError("batch_size must be positive")

		assert.Equal(t, "validation error for Config: batch_size must be positive", err.Error())
		assert.True(t, err.HasErrors())
		assert.ErrorIs(t, err, ErrInvalidConfiguration)
	})

	t.Run("no errors", func(t *testing.T) {
		err := NewValidationError("Config")
		assert.False(t, err.HasErrors())
	})
}

func TestIsRecoverable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"parse", NewParseError("x", nil, 0, nil), true},
		{"structural", NewStructuralError("x", "y", nil), true},
		{"backend wrapped", fmt.Errorf("call: %w", NewBackendCallError("judge", "", errors.New("x"))), true},
		{"exhaustion", NewTournamentExhaustionError(1, 2, 1), false},
		{"empty pool", ErrEmptyPool, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRecoverable(tt.err))
		})
	}
}
