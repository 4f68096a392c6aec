// Package middleware provides the metrics and tracing sinks that the
// generator, judge, tournament, and LLM client layers report into.
package middleware

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ahrav/go-spout/internal/ports"
)

const unknownLabel = "unknown"

// PrometheusMetrics implements ports.MetricsCollector using Prometheus.
// Known metric names are routed to dedicated vectors; anything else lands in
// the generic operation counter, state gauge, or duration histogram keyed by
// metric name and component.
type PrometheusMetrics struct {
	llmLatency  *prometheus.HistogramVec
	llmRequests *prometheus.CounterVec
	llmTokens   *prometheus.CounterVec

	judgeBatches    *prometheus.CounterVec
	judgeMismatches prometheus.Counter
	judgeUnresolved prometheus.Counter

	generatorBatches    *prometheus.CounterVec
	generatorItemsAdded *prometheus.CounterVec
	generatorPoolSize   prometheus.Gauge

	tournamentRounds    prometheus.Counter
	tournamentFallbacks prometheus.Counter
	tournamentSurvivors prometheus.Gauge

	durations  *prometheus.HistogramVec
	operations *prometheus.CounterVec
	state      *prometheus.GaugeVec
}

var _ ports.MetricsCollector = (*PrometheusMetrics)(nil)

// NewPrometheusMetrics creates the metric vectors and registers them with
// reg. A nil reg uses the default Prometheus registerer.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &PrometheusMetrics{
		llmLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "llm_latency_seconds",
				Help:    "Latency of LLM provider requests.",
				Buckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"provider", "model", "skill", "status"},
		),
		llmRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_requests_total",
				Help: "LLM provider requests by outcome.",
			},
			[]string{"provider", "model", "skill", "status"},
		),
		llmTokens: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_tokens_total",
				Help: "Tokens sent to and received from LLM providers.",
			},
			[]string{"provider", "model", "skill", "token_type"},
		),

		judgeBatches: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "judge_batches_total",
				Help: "Judge calls by outcome.",
			},
			[]string{"outcome"},
		),
		judgeMismatches: f.NewCounter(prometheus.CounterOpts{
			Name: "judge_count_mismatch_total",
			Help: "Judge replies whose ranking count differed from the batch size.",
		}),
		judgeUnresolved: f.NewCounter(prometheus.CounterOpts{
			Name: "judge_unresolved_entries_total",
			Help: "Ranking entries that could not be matched to a candidate.",
		}),

		generatorBatches: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "generator_batches_total",
				Help: "Generation calls by outcome.",
			},
			[]string{"outcome"},
		),
		generatorItemsAdded: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "generator_items_added_total",
				Help: "Items each stream was first to add to the pool.",
			},
			[]string{"stream"},
		),
		generatorPoolSize: f.NewGauge(prometheus.GaugeOpts{
			Name: "generator_pool_size",
			Help: "Current size of the deduplicated candidate pool.",
		}),

		tournamentRounds: f.NewCounter(prometheus.CounterOpts{
			Name: "tournament_rounds_total",
			Help: "Tournament rounds played.",
		}),
		tournamentFallbacks: f.NewCounter(prometheus.CounterOpts{
			Name: "tournament_fallback_groups_total",
			Help: "Groups whose judge call failed and kept their input order.",
		}),
		tournamentSurvivors: f.NewGauge(prometheus.GaugeOpts{
			Name: "tournament_survivors",
			Help: "Candidates advancing out of the latest round.",
		}),

		durations: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "spout_operation_duration_seconds",
				Help:    "Duration of judge batches, tournament rounds, and other operations.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "component"},
		),
		operations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spout_operations_total",
				Help: "Counters reported under names without a dedicated metric.",
			},
			[]string{"metric", "component"},
		),
		state: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "spout_state",
				Help: "Gauges reported under names without a dedicated metric.",
			},
			[]string{"metric", "component"},
		),
	}
}

// RecordLatency implements ports.MetricsCollector.
func (pm *PrometheusMetrics) RecordLatency(operation string, duration time.Duration, labels map[string]string) {
	pm.durations.WithLabelValues(operation, label(labels, "component")).Observe(duration.Seconds())
}

// RecordCounter implements ports.MetricsCollector.
func (pm *PrometheusMetrics) RecordCounter(metric string, value float64, labels map[string]string) {
	if value < 0 {
		return
	}
	switch metric {
	case "llm_requests_total":
		pm.llmRequests.WithLabelValues(llmLabels(labels, "status")...).Add(value)
	case "llm_tokens_total":
		pm.llmTokens.WithLabelValues(llmLabels(labels, "token_type")...).Add(value)
	case "judge_batches_total":
		pm.judgeBatches.WithLabelValues(label(labels, "outcome")).Add(value)
	case "judge_count_mismatch_total":
		pm.judgeMismatches.Add(value)
	case "judge_unresolved_entries_total":
		pm.judgeUnresolved.Add(value)
	case "generator_batches_total":
		pm.generatorBatches.WithLabelValues(label(labels, "outcome")).Add(value)
	case "generator_items_added_total":
		pm.generatorItemsAdded.WithLabelValues(label(labels, "stream")).Add(value)
	case "tournament_rounds_total":
		pm.tournamentRounds.Add(value)
	case "tournament_fallback_groups_total":
		pm.tournamentFallbacks.Add(value)
	default:
		pm.operations.WithLabelValues(metric, label(labels, "component")).Add(value)
	}
}

// RecordGauge implements ports.MetricsCollector.
func (pm *PrometheusMetrics) RecordGauge(metric string, value float64, labels map[string]string) {
	switch metric {
	case "generator_pool_size":
		pm.generatorPoolSize.Set(value)
	case "tournament_survivors":
		pm.tournamentSurvivors.Set(value)
	default:
		pm.state.WithLabelValues(metric, label(labels, "component")).Set(value)
	}
}

// RecordHistogram implements ports.MetricsCollector.
func (pm *PrometheusMetrics) RecordHistogram(metric string, value float64, labels map[string]string) {
	if metric == "llm_latency_seconds" {
		pm.llmLatency.WithLabelValues(llmLabels(labels, "status")...).Observe(value)
		return
	}
	pm.durations.WithLabelValues(metric, label(labels, "component")).Observe(value)
}

func label(labels map[string]string, key string) string {
	if v := labels[key]; v != "" {
		return v
	}
	return unknownLabel
}

// llmLabels returns provider, model, skill, and the given final label.
func llmLabels(labels map[string]string, last string) []string {
	return []string{
		label(labels, "provider"),
		label(labels, "model"),
		label(labels, "skill"),
		label(labels, last),
	}
}
