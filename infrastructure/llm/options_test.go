package llm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRequestOptions(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		o := ParseRequestOptions(nil, "gpt-4.1")
		assert.Equal(t, "gpt-4.1", o.Model)
		assert.Equal(t, DefaultMaxTokens, o.MaxTokens)
		assert.Nil(t, o.Temperature)
		assert.Nil(t, o.TopP)
		assert.Empty(t, o.Extra)
	})

	t.Run("typed values and extras", func(t *testing.T) {
		o := ParseRequestOptions(map[string]any{
			OptModel:            "override",
			OptMaxTokens:        int64(256),
			OptTemperature:      1,
			OptTopP:             float32(0.5),
			OptSystem:           "be brief",
			OptSkill:            "judge",
			"frequency_penalty": 0.3,
		}, "default")

		assert.Equal(t, "override", o.Model)
		assert.Equal(t, 256, o.MaxTokens)
		require.NotNil(t, o.Temperature)
		assert.InDelta(t, 1.0, *o.Temperature, 1e-9)
		require.NotNil(t, o.TopP)
		assert.InDelta(t, 0.5, *o.TopP, 1e-6)
		assert.Equal(t, "be brief", o.System)
		assert.Equal(t, "judge", o.Skill)
		assert.Equal(t, map[string]any{"frequency_penalty": 0.3}, o.Extra)
	})

	t.Run("invalid values fall back", func(t *testing.T) {
		o := ParseRequestOptions(map[string]any{
			OptModel:       "",
			OptMaxTokens:   -5,
			OptTemperature: 3.5,
			OptTopP:        "high",
		}, "default")

		assert.Equal(t, "default", o.Model)
		assert.Equal(t, DefaultMaxTokens, o.MaxTokens)
		assert.Nil(t, o.Temperature)
		assert.Nil(t, o.TopP)
	})
}

func TestValidateBaseURL(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"", "", false},
		{"https://api.deepseek.com", "https://api.deepseek.com", false},
		{"http://localhost:8080/v1", "http://localhost:8080/v1", false},
		{"ftp://example.com", "", true},
		{"api.openai.com", "", true},
		{"https://", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ValidateBaseURL(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidateTimeout(t *testing.T) {
	assert.Zero(t, ValidateTimeout(0))
	assert.Zero(t, ValidateTimeout(-time.Second))
	assert.Equal(t, time.Second, ValidateTimeout(time.Millisecond))
	assert.Equal(t, 30*time.Second, ValidateTimeout(30*time.Second))
	assert.Equal(t, 10*time.Minute, ValidateTimeout(time.Hour))
}

func TestModelHolder(t *testing.T) {
	var m modelHolder
	m.SetModel("a")
	assert.Equal(t, "a", m.GetModel())
}
