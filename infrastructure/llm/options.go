package llm

import (
	"fmt"
	"net/url"
	"sync"
	"time"
)

// Request option keys understood by every provider.
const (
	OptMaxTokens   = "max_tokens"
	OptModel       = "model"
	OptSystem      = "system"
	OptTemperature = "temperature"
	OptTopP        = "top_p"
	// OptSkill names the backend operation issuing the call. It is consumed
	// by the usage log and never forwarded to a provider.
	OptSkill = "skill"
)

const (
	// DefaultMaxTokens caps completions when the caller does not set
	// max_tokens. Generation batches are short lists, so this is generous.
	DefaultMaxTokens = 4096

	minTimeout = time.Second
	maxTimeout = 10 * time.Minute
)

// RequestOptions is the typed view of the per-request options map.
type RequestOptions struct {
	MaxTokens   int
	Model       string
	System      string
	Skill       string
	Temperature *float64
	TopP        *float64

	// Extra holds provider-specific keys such as frequency_penalty or top_k.
	Extra map[string]any
}

// ParseRequestOptions reads opts, falling back to defaultModel and
// DefaultMaxTokens. Out-of-range sampling values are dropped rather than
// clamped so the provider default applies.
func ParseRequestOptions(opts map[string]any, defaultModel string) RequestOptions {
	o := RequestOptions{
		MaxTokens: DefaultMaxTokens,
		Model:     defaultModel,
		Extra:     make(map[string]any),
	}

	for k, v := range opts {
		switch k {
		case OptMaxTokens:
			if n, ok := toInt(v); ok && n > 0 {
				o.MaxTokens = n
			}
		case OptModel:
			if s, ok := v.(string); ok && s != "" {
				o.Model = s
			}
		case OptSystem:
			o.System, _ = v.(string)
		case OptSkill:
			o.Skill, _ = v.(string)
		case OptTemperature:
			if f, ok := toFloat64(v); ok && f >= 0 && f <= 2 {
				o.Temperature = &f
			}
		case OptTopP:
			if f, ok := toFloat64(v); ok && f >= 0 && f <= 1 {
				o.TopP = &f
			}
		default:
			o.Extra[k] = v
		}
	}
	return o
}

// SkillOf returns the skill name recorded in opts, or "" when absent.
func SkillOf(opts map[string]any) string {
	s, _ := opts[OptSkill].(string)
	return s
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		if n != n {
			return 0, false
		}
		return int(n), true
	default:
		return 0, false
	}
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func clamp[T ~int | ~int64 | ~float64](v, lo, hi T) T {
	return max(lo, min(v, hi))
}

// ValidateBaseURL normalizes an endpoint override. An empty string means
// "use the provider default" and is returned unchanged.
func ValidateBaseURL(baseURL string) (string, error) {
	if baseURL == "" {
		return "", nil
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid URL format: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("URL scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("URL must include a host")
	}
	return u.String(), nil
}

// ValidateTimeout clamps a positive timeout to [1s, 10m]. Zero or negative
// returns zero, meaning the SDK default.
func ValidateTimeout(timeout time.Duration) time.Duration {
	if timeout <= 0 {
		return 0
	}
	return clamp(timeout, minTimeout, maxTimeout)
}

// modelHolder is embedded by providers to give GetModel/SetModel safe
// concurrent access.
type modelHolder struct {
	mu    sync.RWMutex
	model string
}

// GetModel returns the current default model.
func (m *modelHolder) GetModel() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.model
}

// SetModel replaces the default model.
func (m *modelHolder) SetModel(model string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.model = model
}
