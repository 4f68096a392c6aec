package ports

import (
	"context"
	"time"
)

// LLMClient defines the interface for interacting with Large Language
// Model providers.
// Implementations should handle provider-specific details like authentication,
// request formatting, and response parsing.
type LLMClient interface {
	// Complete sends a completion request to the LLM provider and returns
	// the generated text.
	//
	// The options map allows flexibility for different providers without
	// changing the interface. Common options include:
	//   - "temperature": float64 (0.0-1.0)
	//   - "max_tokens": int
	//   - "model": string (specific model version)
	//   - "skill": string (the backend operation issuing the call, used for
	//     usage logging)
	Complete(ctx context.Context, prompt string, options map[string]any) (string, error)

	// EstimateTokens calculates the approximate token count for a given text.
	EstimateTokens(text string) (int, error)

	// GetModel returns the model identifier being used by this client.
	GetModel() string
}

// MetricsCollector defines the interface for collecting operational metrics.
// Implementations integrate with observability platforms like Prometheus.
type MetricsCollector interface {
	// RecordLatency records the execution time of an operation.
	// The labels map provides additional context for the metric.
	RecordLatency(operation string, duration time.Duration, labels map[string]string)

	// RecordCounter increments a counter metric.
	RecordCounter(metric string, value float64, labels map[string]string)

	// RecordGauge sets the current value of a gauge metric.
	RecordGauge(metric string, value float64, labels map[string]string)

	// RecordHistogram records a value in a histogram.
	RecordHistogram(metric string, value float64, labels map[string]string)
}

// RoundInfo describes a tournament round as seen by a TournamentObserver.
type RoundInfo struct {
	Round     int
	Survivors int
	Groups    int
	Judged    int
	Winners   int
	Fallbacks int
	Duration  time.Duration
}

// TournamentObserver receives tournament lifecycle events.
// Observers must not block; the scheduler calls them inline.
type TournamentObserver interface {
	// RoundStarted is called before any group of the round is judged. The
	// returned context is used for that round's judge calls, so observers
	// may attach tracing spans to it.
	RoundStarted(ctx context.Context, info RoundInfo) context.Context

	// RoundFinished is called after the round's winners are known.
	RoundFinished(ctx context.Context, info RoundInfo)

	// TournamentFinished is called once with the winner, or with the error
	// that failed the tournament.
	TournamentFinished(ctx context.Context, winner string, rounds int, err error)
}
