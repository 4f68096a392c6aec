package llm

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ahrav/go-spout/internal/ports"
)

// ProviderSpec describes how to reach one provider.
type ProviderSpec struct {
	// Type is the factory name passed to NewClient.
	Type string
	// EnvVar names the environment variable holding the API key.
	EnvVar string
	// DefaultModel is used for a bare "provider" spec.
	DefaultModel string
	// BaseURL overrides the provider endpoint.
	BaseURL string
}

// DefaultProviders are the providers a Registry knows without configuration.
var DefaultProviders = map[string]ProviderSpec{
	"openai": {
		Type:         "openai",
		EnvVar:       "OPENAI_API_KEY",
		DefaultModel: OpenAIDefaultModel,
	},
	"anthropic": {
		Type:         "anthropic",
		EnvVar:       "ANTHROPIC_API_KEY",
		DefaultModel: AnthropicDefaultModel,
	},
	"google": {
		Type:         "google",
		EnvVar:       "GOOGLE_API_KEY",
		DefaultModel: GoogleDefaultModel,
	},
	"deepseek": {
		Type:         "deepseek",
		EnvVar:       "DEEPSEEK_API_KEY",
		DefaultModel: DeepSeekDefaultModel,
		BaseURL:      DeepSeekBaseURL,
	},
}

// RegistryConfig configures a Registry.
type RegistryConfig struct {
	// Providers defaults to DefaultProviders.
	Providers map[string]ProviderSpec

	// Timeout is passed to every provider's HTTP client.
	Timeout time.Duration

	// Middleware returns the chain for a provider name. It is called once
	// per distinct provider/model client.
	Middleware func(provider string) []Middleware

	// Getenv looks up API keys. Defaults to os.Getenv.
	Getenv func(string) string
}

// Registry builds clients lazily from "provider/model" specs and caches
// them. Concurrent first requests for the same spec build one client.
type Registry struct {
	cfg RegistryConfig

	mu      sync.RWMutex
	clients map[string]ports.LLMClient
	group   singleflight.Group
}

// NewRegistry returns an empty registry.
func NewRegistry(cfg RegistryConfig) *Registry {
	if cfg.Providers == nil {
		cfg.Providers = DefaultProviders
	}
	if cfg.Getenv == nil {
		cfg.Getenv = os.Getenv
	}
	return &Registry{cfg: cfg, clients: make(map[string]ports.LLMClient)}
}

// ParseModelSpec splits "provider/model". The model part may itself contain
// slashes. A bare provider yields an empty model.
func ParseModelSpec(spec string) (provider, model string, err error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return "", "", fmt.Errorf("model spec cannot be empty")
	}
	provider, model, _ = strings.Cut(spec, "/")
	if provider == "" {
		return "", "", fmt.Errorf("model spec %q has no provider", spec)
	}
	return provider, model, nil
}

// Client returns the client for spec, building it on first use.
func (r *Registry) Client(spec string) (ports.LLMClient, error) {
	provider, model, err := ParseModelSpec(spec)
	if err != nil {
		return nil, err
	}
	ps, ok := r.cfg.Providers[provider]
	if !ok {
		return nil, fmt.Errorf("unknown provider %q (known: %s)", provider, strings.Join(r.Providers(), ", "))
	}
	if model == "" {
		model = ps.DefaultModel
	}
	key := provider + "/" + model

	r.mu.RLock()
	c, ok := r.clients[key]
	r.mu.RUnlock()
	if ok {
		return c, nil
	}

	v, err, _ := r.group.Do(key, func() (any, error) {
		r.mu.RLock()
		c, ok := r.clients[key]
		r.mu.RUnlock()
		if ok {
			return c, nil
		}

		c, err := r.build(provider, model, ps)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.clients[key] = c
		r.mu.Unlock()
		return c, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(ports.LLMClient), nil
}

func (r *Registry) build(provider, model string, ps ProviderSpec) (ports.LLMClient, error) {
	key := r.cfg.Getenv(ps.EnvVar)
	if key == "" {
		return nil, ports.NewConfigError(ps.EnvVar,
			fmt.Errorf("%w: API key for provider %q is not set", ports.ErrConfigNotFound, provider))
	}

	var mws []Middleware
	if r.cfg.Middleware != nil {
		mws = r.cfg.Middleware(provider)
	}

	c, err := NewClient(ps.Type, ClientConfig{
		APIKey:     key,
		Model:      model,
		BaseURL:    ps.BaseURL,
		Timeout:    r.cfg.Timeout,
		Middleware: mws,
	})
	if err != nil {
		return nil, fmt.Errorf("build %s/%s client: %w", provider, model, err)
	}
	return c, nil
}

// Register installs c under spec, replacing any cached client.
func (r *Registry) Register(spec string, c ports.LLMClient) error {
	provider, model, err := ParseModelSpec(spec)
	if err != nil {
		return err
	}
	if model == "" {
		if ps, ok := r.cfg.Providers[provider]; ok {
			model = ps.DefaultModel
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[provider+"/"+model] = c
	return nil
}

// Providers lists the configured provider names, sorted.
func (r *Registry) Providers() []string {
	names := make([]string, 0, len(r.cfg.Providers))
	for name := range r.cfg.Providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
