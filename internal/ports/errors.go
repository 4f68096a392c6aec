package ports

import (
	"errors"
	"fmt"
)

// Provider failure classes. Provider adapters make their errors match these
// with errors.Is so callers never import a provider SDK.
var (
	ErrRateLimited          = errors.New("rate limited")
	ErrServiceUnavailable   = errors.New("service unavailable")
	ErrTimeout              = errors.New("operation timed out")
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrBudgetExceeded indicates that a run used up its call or token
	// budget. Calls after this point fail fast.
	ErrBudgetExceeded = errors.New("budget exceeded")

	// ErrConfigNotFound indicates a missing config file, API key, or other
	// required setting.
	ErrConfigNotFound = errors.New("configuration not found")
)

// LLMError records which model and skill (generate, mutate, judge) a failed
// completion was for.
type LLMError struct {
	Model string
	Skill string
	Err   error
}

func (e *LLMError) Error() string {
	return fmt.Sprintf("%s call to %s failed: %v", e.Skill, e.Model, e.Err)
}

func (e *LLMError) Unwrap() error { return e.Err }

// IsRetryable reports whether the underlying failure is transient.
func (e *LLMError) IsRetryable() bool {
	return errors.Is(e.Err, ErrRateLimited) ||
		errors.Is(e.Err, ErrServiceUnavailable) ||
		errors.Is(e.Err, ErrTimeout)
}

// NewLLMError wraps err with the model and skill of the failed call.
func NewLLMError(model, skill string, err error) *LLMError {
	return &LLMError{Model: model, Skill: skill, Err: err}
}

// ConfigError names the setting that could not be resolved.
type ConfigError struct {
	Key string
	Err error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %v", e.Key, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// NewConfigError returns a ConfigError for key.
func NewConfigError(key string, err error) *ConfigError {
	return &ConfigError{Key: key, Err: err}
}
