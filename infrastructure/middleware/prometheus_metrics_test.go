package middleware

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMetrics(t *testing.T) (*PrometheusMetrics, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return NewPrometheusMetrics(reg), reg
}

func TestNewPrometheusMetrics_RegistersOnGivenRegistry(t *testing.T) {
	pm, reg := newTestMetrics(t)
	pm.RecordCounter("tournament_rounds_total", 1, nil)

	families, err := reg.Gather()
	require.NoError(t, err)

	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "tournament_rounds_total")

	// A second collector on the same registry collides.
	assert.Panics(t, func() { NewPrometheusMetrics(reg) })
}

// TestPrometheusMetrics_RecordCounter tests that each known counter name is
// routed to its own vector and unknown names fall through to the generic one.
func TestPrometheusMetrics_RecordCounter(t *testing.T) {
	pm, _ := newTestMetrics(t)

	llm := map[string]string{"provider": "openai", "model": "gpt-4.1", "skill": "judge", "status": "success"}
	pm.RecordCounter("llm_requests_total", 1, llm)
	pm.RecordCounter("llm_requests_total", 1, llm)
	pm.RecordCounter("llm_tokens_total", 120, map[string]string{
		"provider": "openai", "model": "gpt-4.1", "skill": "judge", "token_type": "input",
	})
	pm.RecordCounter("judge_batches_total", 1, map[string]string{"component": "judge", "outcome": "ok"})
	pm.RecordCounter("judge_count_mismatch_total", 1, map[string]string{"component": "judge"})
	pm.RecordCounter("generator_items_added_total", 4, map[string]string{"component": "generator", "stream": "2"})
	pm.RecordCounter("tournament_fallback_groups_total", 2, map[string]string{"component": "tournament", "round": "1"})
	pm.RecordCounter("something_else", 3, map[string]string{"component": "pipeline"})
	pm.RecordCounter("judge_unresolved_entries_total", -1, nil)

	assert.Equal(t, 2.0, testutil.ToFloat64(pm.llmRequests.WithLabelValues("openai", "gpt-4.1", "judge", "success")))
	assert.Equal(t, 120.0, testutil.ToFloat64(pm.llmTokens.WithLabelValues("openai", "gpt-4.1", "judge", "input")))
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.judgeBatches.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.judgeMismatches))
	assert.Equal(t, 4.0, testutil.ToFloat64(pm.generatorItemsAdded.WithLabelValues("2")))
	assert.Equal(t, 2.0, testutil.ToFloat64(pm.tournamentFallbacks))
	assert.Equal(t, 3.0, testutil.ToFloat64(pm.operations.WithLabelValues("something_else", "pipeline")))
	assert.Zero(t, testutil.ToFloat64(pm.judgeUnresolved), "negative increments are dropped")
}

func TestPrometheusMetrics_RecordGauge(t *testing.T) {
	pm, _ := newTestMetrics(t)

	pm.RecordGauge("generator_pool_size", 10, nil)
	pm.RecordGauge("generator_pool_size", 25, nil)
	pm.RecordGauge("tournament_survivors", 5, map[string]string{"round": "2"})
	pm.RecordGauge("queue_depth", 7, nil)

	assert.Equal(t, 25.0, testutil.ToFloat64(pm.generatorPoolSize))
	assert.Equal(t, 5.0, testutil.ToFloat64(pm.tournamentSurvivors))
	assert.Equal(t, 7.0, testutil.ToFloat64(pm.state.WithLabelValues("queue_depth", unknownLabel)))
}

func TestPrometheusMetrics_LatencyAndHistogram(t *testing.T) {
	pm, _ := newTestMetrics(t)

	pm.RecordLatency("judge_batch", 150*time.Millisecond, map[string]string{"component": "judge"})
	pm.RecordLatency("tournament_round", time.Second, map[string]string{"component": "tournament"})
	pm.RecordHistogram("llm_latency_seconds", 0.8, map[string]string{"provider": "anthropic", "status": "error"})
	pm.RecordHistogram("payload_bytes", 512, nil)

	assert.Equal(t, 3, testutil.CollectAndCount(pm.durations))
	assert.Equal(t, 1, testutil.CollectAndCount(pm.llmLatency))
}

func TestLabel(t *testing.T) {
	tests := []struct {
		name   string
		labels map[string]string
		want   string
	}{
		{"present", map[string]string{"k": "v"}, "v"},
		{"missing", map[string]string{"other": "v"}, unknownLabel},
		{"empty", map[string]string{"k": ""}, unknownLabel},
		{"nil map", nil, unknownLabel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, label(tt.labels, "k"))
		})
	}
}
