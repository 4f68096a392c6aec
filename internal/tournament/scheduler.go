// Package tournament runs single-elimination rounds over a candidate pool
// until one winner remains.
//
// Each round partitions the survivors into consecutive fixed-size groups.
// Singleton groups advance without a judge call; larger groups are judged
// concurrently under the limiter, at most min(MaxConcurrent, groups) at a
// time. Each group's top-ranked candidate advances, in group order. Once
// started, a tournament is not cancelled: it runs until one survivor remains
// or a round advances nobody.
package tournament

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/ahrav/go-spout/internal/domain"
	"github.com/ahrav/go-spout/internal/limiter"
	"github.com/ahrav/go-spout/internal/ports"
)

// Metric names emitted by Scheduler.
const (
	MetricRounds         = "tournament_rounds_total"
	MetricFallbackGroups = "tournament_fallback_groups_total"
	MetricSurvivors      = "tournament_survivors"
	MetricRoundLatency   = "tournament_round"
)

// BatchJudge ranks one group of candidates. Implementations must always
// return a result; *judge.Judge is the production implementation.
type BatchJudge interface {
	Judge(ctx context.Context, batch []domain.Candidate, criteria string) domain.RankedResult
}

// Recorder persists round records. *resultlog.Log satisfies it.
type Recorder interface {
	Append(lines ...string) error
}

// Config holds the tournament parameters.
type Config struct {
	// BatchSize is the group size; values below 2 are raised to 2.
	BatchSize int

	// MaxConcurrent bounds how many groups are judged at once.
	MaxConcurrent int

	// Criteria is passed to the judge for every group.
	Criteria string
}

// Scheduler drives the tournament state machine.
type Scheduler struct {
	judge    BatchJudge
	cfg      Config
	logger   *slog.Logger
	metrics  ports.MetricsCollector
	observer ports.TournamentObserver
	record   Recorder
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m ports.MetricsCollector) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// WithObserver registers a lifecycle observer.
func WithObserver(o ports.TournamentObserver) Option {
	return func(s *Scheduler) { s.observer = o }
}

// WithRecorder sets where round records are written.
func WithRecorder(r Recorder) Option {
	return func(s *Scheduler) { s.record = r }
}

// New creates a Scheduler.
func New(judge BatchJudge, cfg Config, opts ...Option) *Scheduler {
	if cfg.BatchSize < 2 {
		cfg.BatchSize = 2
	}
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 1
	}
	s := &Scheduler{judge: judge, cfg: cfg, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run plays the tournament over pool. Inadmissible and duplicate entries are
// dropped first; an empty pool returns domain.ErrEmptyPool. A round that
// advances no winners returns the Failed state together with a
// *domain.TournamentExhaustionError. Cancellation of ctx is ignored once
// the tournament starts; its values are kept.
func (s *Scheduler) Run(ctx context.Context, pool []domain.Candidate) (*domain.TournamentState, error) {
	ctx = context.WithoutCancel(ctx)

	state, err := domain.NewTournamentState(pool)
	if err != nil {
		return nil, err
	}

	s.logger.Info("tournament: starting", "candidates", len(state.Survivors), "batch_size", s.cfg.BatchSize)
	s.persist(headerLines()...)

	for state.Status == domain.StatusRunning {
		round := s.playRound(ctx, state)

		if err := state.Advance(round); err != nil {
			var exhausted *domain.TournamentExhaustionError
			if errors.As(err, &exhausted) {
				s.logger.Error("tournament: no winners advanced", "round", round.Number)
				s.persist(failureLines(err)...)
				s.finish(ctx, state)
				return state, err
			}
			return state, err
		}
	}

	s.logger.Info("tournament: complete", "winner", state.Winner.String(), "rounds", len(state.Rounds))
	s.persist(winnerLines(state.Winner)...)
	s.finish(ctx, state)
	return state, nil
}

func (s *Scheduler) playRound(ctx context.Context, state *domain.TournamentState) domain.Round {
	start := time.Now()
	partitions := domain.Partition(state.Survivors, s.cfg.BatchSize)
	round := domain.Round{
		Number:        state.Round,
		Entrants:      state.Survivors,
		Groups:        make([]domain.Group, len(partitions)),
		MaxConcurrent: min(s.cfg.MaxConcurrent, len(partitions)),
	}

	info := ports.RoundInfo{Round: round.Number, Survivors: len(round.Entrants), Groups: len(partitions)}
	if s.observer != nil {
		ctx = s.observer.RoundStarted(ctx, info)
	}
	s.logger.Info("tournament: round starting",
		"round", round.Number,
		"survivors", len(round.Entrants),
		"groups", len(partitions),
		"max_concurrent", round.MaxConcurrent)

	var tasks []limiter.Task[domain.RankedResult]
	var judged []int
	for i, members := range partitions {
		round.Groups[i] = domain.Group{Index: i + 1, Members: members}
		if len(members) == 1 {
			round.Groups[i].Result = domain.RankedResult{Entries: []domain.Ranking{{
				Rank:      1,
				Candidate: members[0],
				Reference: members[0].String(),
				Resolved:  true,
			}}}
			continue
		}
		judged = append(judged, i)
		tasks = append(tasks, func(ctx context.Context) (domain.RankedResult, error) {
			return s.judge.Judge(ctx, members, s.cfg.Criteria), nil
		})
	}

	// Judges absorb their own failures and the context never cancels, so the
	// limiter cannot return an error here.
	results, _ := limiter.Run(ctx, tasks, round.MaxConcurrent)

	fallbacks := 0
	for k, gi := range judged {
		round.Groups[gi].Result = results[k]
		round.Groups[gi].Judged = true
		if results[k].Fallback {
			fallbacks++
		}
	}
	round.CollectWinners()

	s.persist(roundLines(round)...)

	info.Judged = len(judged)
	info.Winners = len(round.Winners)
	info.Fallbacks = fallbacks
	info.Duration = time.Since(start)
	if s.observer != nil {
		s.observer.RoundFinished(ctx, info)
	}
	s.recordRound(info)

	s.logger.Info("tournament: round complete",
		"round", round.Number,
		"winners", len(round.Winners),
		"fallbacks", fallbacks,
		"duration", info.Duration)
	return round
}

func (s *Scheduler) persist(lines ...string) {
	if s.record == nil {
		return
	}
	if err := s.record.Append(lines...); err != nil {
		s.logger.Warn("tournament: failed to persist round record", "error", err)
	}
}

func (s *Scheduler) finish(ctx context.Context, state *domain.TournamentState) {
	if s.observer != nil {
		s.observer.TournamentFinished(ctx, state.Winner.String(), len(state.Rounds), state.Err)
	}
}

func (s *Scheduler) recordRound(info ports.RoundInfo) {
	if s.metrics == nil {
		return
	}
	labels := map[string]string{"component": "tournament", "round": strconv.Itoa(info.Round)}
	s.metrics.RecordCounter(MetricRounds, 1, labels)
	s.metrics.RecordCounter(MetricFallbackGroups, float64(info.Fallbacks), labels)
	s.metrics.RecordGauge(MetricSurvivors, float64(info.Winners), labels)
	s.metrics.RecordLatency(MetricRoundLatency, info.Duration, labels)
}
