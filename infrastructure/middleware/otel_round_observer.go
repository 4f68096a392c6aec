package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/go-spout/internal/ports"
)

const tracerName = "github.com/ahrav/go-spout/tournament"

var _ ports.TournamentObserver = (*OTelRoundObserver)(nil)

// OTelRoundObserver traces tournament rounds with OpenTelemetry. Each round
// gets a span that parents the round's judge calls; the tournament outcome
// is recorded as an event on the caller's span.
type OTelRoundObserver struct {
	tracer trace.Tracer
}

// NewOTelRoundObserver returns an observer using tracer, or the global
// tracer provider when tracer is nil.
func NewOTelRoundObserver(tracer trace.Tracer) *OTelRoundObserver {
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}
	return &OTelRoundObserver{tracer: tracer}
}

// RoundStarted implements ports.TournamentObserver.
func (o *OTelRoundObserver) RoundStarted(ctx context.Context, info ports.RoundInfo) context.Context {
	ctx, _ = o.tracer.Start(ctx, "tournament.round", trace.WithAttributes(
		attribute.Int("tournament.round", info.Round),
		attribute.Int("tournament.survivors", info.Survivors),
		attribute.Int("tournament.groups", info.Groups),
	))
	return ctx
}

// RoundFinished implements ports.TournamentObserver. ctx must be the context
// returned by RoundStarted.
func (o *OTelRoundObserver) RoundFinished(ctx context.Context, info ports.RoundInfo) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	span.SetAttributes(
		attribute.Int("tournament.judged_groups", info.Judged),
		attribute.Int("tournament.winners", info.Winners),
		attribute.Int("tournament.fallback_groups", info.Fallbacks),
		attribute.Int64("tournament.duration_ms", info.Duration.Milliseconds()),
	)
	if info.Fallbacks > 0 {
		span.AddEvent("tournament.fallback", trace.WithAttributes(
			attribute.Int("groups", info.Fallbacks),
		))
	}
	span.SetStatus(codes.Ok, "")
}

// TournamentFinished implements ports.TournamentObserver.
func (o *OTelRoundObserver) TournamentFinished(ctx context.Context, winner string, rounds int, err error) {
	span := trace.SpanFromContext(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.AddEvent("tournament.finished", trace.WithAttributes(
		attribute.String("tournament.winner", winner),
		attribute.Int("tournament.rounds", rounds),
	))
}
