package application

import (
	"log/slog"
	"os"
	"sync"

	"golang.org/x/time/rate"

	"github.com/ahrav/go-spout/infrastructure/llm"
	"github.com/ahrav/go-spout/internal/ports"
)

// ClientSource resolves "provider/model" specs to clients. *llm.Registry
// satisfies it.
type ClientSource interface {
	Client(spec string) (ports.LLMClient, error)
}

// middlewareSet builds each provider's middleware chain. Every model of one
// provider shares that provider's circuit breaker and rate limiter; the
// budget is shared by every provider.
type middlewareSet struct {
	cfg     LLMConfig
	logger  *slog.Logger
	metrics ports.MetricsCollector
	usage   *llm.UsageLog
	budget  *llm.BudgetTracker

	mu       sync.Mutex
	breakers map[string]*llm.CircuitBreaker
	limiters map[string]llm.Middleware
}

func newMiddlewareSet(
	cfg LLMConfig,
	logger *slog.Logger,
	metrics ports.MetricsCollector,
	usage *llm.UsageLog,
	budget *llm.BudgetTracker,
) *middlewareSet {
	return &middlewareSet{
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics,
		usage:    usage,
		budget:   budget,
		breakers: make(map[string]*llm.CircuitBreaker),
		limiters: make(map[string]llm.Middleware),
	}
}

// forProvider returns the chain, outermost first: tracing, metrics, usage
// log, retry, budget, circuit breaker, rate limit, per-attempt timeout.
func (m *middlewareSet) forProvider(provider string) []llm.Middleware {
	mws := []llm.Middleware{
		llm.TracingMiddleware(provider),
		llm.MetricsMiddleware(provider, m.metrics),
	}
	if m.usage != nil {
		mws = append(mws, llm.UsageLogMiddleware(m.usage, func(err error) {
			m.logger.Warn("llm: failed to write usage log", "provider", provider, "error", err)
		}))
	}
	if m.cfg.Retry.MaxAttempts > 1 {
		mws = append(mws, llm.RetryMiddleware(llm.RetryConfig{
			MaxAttempts: m.cfg.Retry.MaxAttempts,
			BaseDelay:   m.cfg.Retry.BaseDelay,
			MaxDelay:    m.cfg.Retry.MaxDelay,
		}))
	}
	if m.budget != nil {
		mws = append(mws, llm.BudgetMiddleware(m.budget))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cfg.CircuitBreaker.MaxFailures > 0 {
		cb, ok := m.breakers[provider]
		if !ok {
			cb = llm.NewCircuitBreaker(m.cfg.CircuitBreaker.MaxFailures, m.cfg.CircuitBreaker.Cooldown)
			cb.OnStateChange = func(s llm.CircuitState) {
				m.logger.Warn("llm: circuit breaker state changed", "provider", provider, "state", s.String())
			}
			m.breakers[provider] = cb
		}
		mws = append(mws, llm.CircuitBreakerMiddleware(cb))
	}
	if m.cfg.RateLimit > 0 {
		rl, ok := m.limiters[provider]
		if !ok {
			rl = llm.RateLimitMiddleware(provider, rate.Limit(m.cfg.RateLimit), max(m.cfg.Burst, 1))
			m.limiters[provider] = rl
		}
		mws = append(mws, rl)
	}
	if m.cfg.RequestTimeout > 0 {
		mws = append(mws, llm.TimeoutMiddleware(provider, m.cfg.RequestTimeout))
	}
	return mws
}

// newRegistry returns a provider registry whose clients carry the
// middleware built by set. getenv defaults to os.Getenv.
func newRegistry(cfg LLMConfig, set *middlewareSet, getenv func(string) string) *llm.Registry {
	if getenv == nil {
		getenv = os.Getenv
	}
	return llm.NewRegistry(llm.RegistryConfig{
		Timeout:    cfg.Timeout,
		Middleware: set.forProvider,
		Getenv:     getenv,
	})
}
