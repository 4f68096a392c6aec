// Package llm connects the generator, mutator, and judge backends to hosted
// language models. Each provider implements CoreLLM; cross-cutting behavior
// such as rate limiting, retries, budgets, and usage logging is layered on
// with Middleware, and Client adapts the resulting chain to ports.LLMClient.
package llm

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ahrav/go-spout/internal/ports"
)

// CoreLLM is the minimal request surface every provider and middleware
// implements.
type CoreLLM interface {
	// DoRequest sends prompt to the model and returns the completion text
	// together with the input and output token counts.
	DoRequest(
		ctx context.Context,
		prompt string,
		opts map[string]any,
	) (
		response string,
		tokensIn, tokensOut int,
		err error,
	)

	// GetModel returns the model identifier requests are sent to.
	GetModel() string

	// SetModel changes the model used by subsequent requests.
	SetModel(model string)
}

// TokenEstimator approximates token counts without calling a provider.
type TokenEstimator interface {
	EstimateTokens(text string) int
}

// ClientConfig configures a provider and the middleware wrapped around it.
type ClientConfig struct {
	// APIKey authenticates with the provider.
	APIKey string

	// Model is the default model for requests that do not override it.
	Model string

	// BaseURL replaces the provider's default endpoint. OpenAI-compatible
	// services such as DeepSeek are reached this way.
	BaseURL string

	// Timeout bounds the underlying HTTP client. Zero keeps the SDK default.
	Timeout time.Duration

	// TokenEstimator backs Client.EstimateTokens. Defaults to
	// SimpleTokenEstimator.
	TokenEstimator TokenEstimator

	// Middleware is applied in order, so Middleware[0] is the outermost
	// layer and sees each request first.
	Middleware []Middleware
}

// Middleware decorates a CoreLLM.
type Middleware func(CoreLLM) CoreLLM

// Chain applies middleware to core so that the first element is outermost.
func Chain(core CoreLLM, mws ...Middleware) CoreLLM {
	for i := len(mws) - 1; i >= 0; i-- {
		if mws[i] != nil {
			core = mws[i](core)
		}
	}
	return core
}

// Client adapts a CoreLLM chain to ports.LLMClient.
type Client struct {
	core      CoreLLM
	estimator TokenEstimator
}

var _ ports.LLMClient = (*Client)(nil)

// NewClient builds the provider registered under providerType and wraps it
// with the configured middleware.
func NewClient(providerType string, config ClientConfig) (*Client, error) {
	if config.APIKey == "" {
		return nil, ErrEmptyAPIKey
	}
	if config.Model == "" {
		return nil, fmt.Errorf("model is required for provider %q", providerType)
	}

	factory, ok := lookupProviderFactory(providerType)
	if !ok {
		return nil, fmt.Errorf("unknown provider: %s", providerType)
	}

	core, err := factory(config)
	if err != nil {
		return nil, fmt.Errorf("create %s provider: %w", providerType, err)
	}

	return NewClientFromCore(Chain(core, config.Middleware...), config.TokenEstimator), nil
}

// NewClientFromCore wraps an already assembled CoreLLM. A nil estimator
// falls back to SimpleTokenEstimator.
func NewClientFromCore(core CoreLLM, estimator TokenEstimator) *Client {
	if estimator == nil {
		estimator = SimpleTokenEstimator{}
	}
	return &Client{core: core, estimator: estimator}
}

// Complete implements ports.LLMClient.
func (c *Client) Complete(ctx context.Context, prompt string, options map[string]any) (string, error) {
	response, _, _, err := c.CompleteWithUsage(ctx, prompt, options)
	return response, err
}

// CompleteWithUsage is Complete plus the token counts reported by the
// provider.
func (c *Client) CompleteWithUsage(ctx context.Context, prompt string, options map[string]any) (string, int, int, error) {
	return c.core.DoRequest(ctx, prompt, options)
}

// EstimateTokens implements ports.LLMClient.
func (c *Client) EstimateTokens(text string) (int, error) {
	return c.estimator.EstimateTokens(text), nil
}

// GetModel implements ports.LLMClient.
func (c *Client) GetModel() string { return c.core.GetModel() }

// SimpleTokenEstimator assumes roughly four characters per token, rounding up.
type SimpleTokenEstimator struct{}

// EstimateTokens returns ceil(len(text)/4).
func (SimpleTokenEstimator) EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}

// estimateOr returns reported when the provider supplied a count and the
// heuristic estimate otherwise.
func estimateOr(reported int, text string) int {
	if reported > 0 {
		return reported
	}
	return SimpleTokenEstimator{}.EstimateTokens(text)
}

// ProviderFactory builds a provider from its configuration.
type ProviderFactory func(ClientConfig) (CoreLLM, error)

var (
	factoriesMu       sync.RWMutex
	providerFactories = map[string]ProviderFactory{}
)

// RegisterProviderFactory makes a provider available to NewClient. Providers
// in this package register themselves in init.
func RegisterProviderFactory(providerType string, factory ProviderFactory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	providerFactories[providerType] = factory
}

func lookupProviderFactory(providerType string) (ProviderFactory, bool) {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	f, ok := providerFactories[providerType]
	return f, ok
}

// RegisteredProviders lists the provider types known to NewClient, sorted.
func RegisteredProviders() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	names := make([]string, 0, len(providerFactories))
	for name := range providerFactories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
