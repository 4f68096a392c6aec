package llm

import (
	"context"
	"errors"
	"time"

	"github.com/ahrav/go-spout/internal/ports"
)

// Metric names recorded by MetricsMiddleware.
const (
	MetricRequestLatency = "llm_latency_seconds"
	MetricRequests       = "llm_requests_total"
	MetricTokens         = "llm_tokens_total"
)

type metricsLLM struct {
	next      CoreLLM
	provider  string
	collector ports.MetricsCollector
}

// MetricsMiddleware records request latency, outcomes, and token usage,
// labelled by provider, model, and skill.
func MetricsMiddleware(provider string, collector ports.MetricsCollector) Middleware {
	return func(next CoreLLM) CoreLLM {
		if collector == nil {
			return next
		}
		return &metricsLLM{next: next, provider: provider, collector: collector}
	}
}

func (m *metricsLLM) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	start := time.Now()
	resp, in, out, err := m.next.DoRequest(ctx, prompt, opts)

	labels := map[string]string{
		"provider": m.provider,
		"model":    m.next.GetModel(),
		"skill":    SkillOf(opts),
		"status":   requestStatus(err),
	}
	m.collector.RecordHistogram(MetricRequestLatency, time.Since(start).Seconds(), labels)
	m.collector.RecordCounter(MetricRequests, 1, labels)

	if err == nil {
		m.collector.RecordCounter(MetricTokens, float64(in), withLabel(labels, "token_type", "input"))
		m.collector.RecordCounter(MetricTokens, float64(out), withLabel(labels, "token_type", "output"))
	}
	return resp, in, out, err
}

func (m *metricsLLM) GetModel() string  { return m.next.GetModel() }
func (m *metricsLLM) SetModel(s string) { m.next.SetModel(s) }

func requestStatus(err error) string {
	var pe *ProviderError
	var be *BudgetExceededError
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrCircuitOpen):
		return "circuit_open"
	case errors.As(err, &be):
		return "budget_exceeded"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.As(err, &pe):
		return pe.Type.String()
	default:
		return "error"
	}
}

func withLabel(labels map[string]string, k, v string) map[string]string {
	out := make(map[string]string, len(labels)+1)
	for key, val := range labels {
		out[key] = val
	}
	out[k] = v
	return out
}
