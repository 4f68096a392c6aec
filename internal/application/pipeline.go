// Package application wires configuration, LLM clients, the generator, and
// the tournament into runnable factory and tournament pipelines.
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/ahrav/go-spout/infrastructure/backend"
	"github.com/ahrav/go-spout/infrastructure/llm"
	"github.com/ahrav/go-spout/internal/domain"
	"github.com/ahrav/go-spout/internal/generator"
	"github.com/ahrav/go-spout/internal/judge"
	"github.com/ahrav/go-spout/internal/ports"
	"github.com/ahrav/go-spout/internal/resultlog"
	"github.com/ahrav/go-spout/internal/tournament"
)

// Pipeline runs one factory or tournament job.
type Pipeline struct {
	cfg      Config
	logger   *slog.Logger
	metrics  ports.MetricsCollector
	observer ports.TournamentObserver
	clients  ClientSource
	getenv   func(string) string
	runID    string
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) PipelineOption {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithMetrics reports metrics from every component to m.
func WithMetrics(m ports.MetricsCollector) PipelineOption {
	return func(p *Pipeline) { p.metrics = m }
}

// WithObserver registers a tournament observer.
func WithObserver(o ports.TournamentObserver) PipelineOption {
	return func(p *Pipeline) { p.observer = o }
}

// WithClientSource replaces the provider registry. The configured LLM
// middleware is not applied to clients from src.
func WithClientSource(src ClientSource) PipelineOption {
	return func(p *Pipeline) { p.clients = src }
}

// WithGetenv replaces os.Getenv for API key lookup.
func WithGetenv(fn func(string) string) PipelineOption {
	return func(p *Pipeline) { p.getenv = fn }
}

// WithRunID sets the run identifier. The default is a random UUID.
func WithRunID(id string) PipelineOption {
	return func(p *Pipeline) {
		if id != "" {
			p.runID = id
		}
	}
}

// NewPipeline validates cfg and returns a pipeline for it.
func NewPipeline(cfg Config, opts ...PipelineOption) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p := &Pipeline{
		logger: slog.Default(),
		runID:  uuid.NewString(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With("run_id", p.runID)
	p.cfg = cfg.Normalize(p.logger)
	return p, nil
}

// RunID returns the run identifier attached to logs and the summary.
func (p *Pipeline) RunID() string { return p.runID }

// Config returns the effective configuration.
func (p *Pipeline) Config() Config { return p.cfg }

// run holds the per-run resources shared by both entry points.
type run struct {
	dir     string
	backend *backend.LLMBackend
	usage   *llm.UsageLog
	budget  *llm.BudgetTracker
}

func (r *run) close(logger *slog.Logger) {
	if r.usage == nil {
		return
	}
	if err := r.usage.Close(); err != nil {
		logger.Warn("pipeline: failed to close usage log", "error", err)
	}
}

func (p *Pipeline) start() (*run, error) {
	dir, err := resultlog.NextAvailableDir(p.cfg.Output.Dir)
	if err != nil {
		return nil, fmt.Errorf("choose output directory: %w", err)
	}
	r := &run{dir: dir, budget: llm.NewBudgetTracker(p.cfg.LLM.Budget)}

	clients := p.clients
	if clients == nil {
		if path := p.cfg.Output.UsageLog; path != "" {
			if !filepath.IsAbs(path) {
				path = filepath.Join(dir, path)
			}
			if r.usage, err = llm.OpenUsageLog(path); err != nil {
				return nil, err
			}
		}
		set := newMiddlewareSet(p.cfg.LLM, p.logger, p.metrics, r.usage, r.budget)
		clients = newRegistry(p.cfg.LLM, set, p.getenv)
	}

	b, err := p.newBackend(clients)
	if err != nil {
		r.close(p.logger)
		return nil, err
	}
	r.backend = b
	return r, nil
}

func (p *Pipeline) newBackend(src ClientSource) (*backend.LLMBackend, error) {
	var c backend.Clients
	for _, role := range []struct {
		spec string
		dst  *ports.LLMClient
	}{
		{p.cfg.Models.Generate, &c.Generate},
		{p.cfg.Models.Mutate, &c.Mutate},
		{p.cfg.Models.Judge, &c.Judge},
	} {
		client, err := src.Client(role.spec)
		if err != nil {
			return nil, fmt.Errorf("resolve model %q: %w", role.spec, err)
		}
		*role.dst = client
	}

	var opts []backend.Option
	if len(p.cfg.Prompts) > 0 {
		t, err := backend.ParseTemplates(p.cfg.Prompts)
		if err != nil {
			return nil, ports.NewConfigError("prompts", err)
		}
		opts = append(opts, backend.WithTemplates(t))
	}
	for skill, o := range p.cfg.LLM.Options {
		opts = append(opts, backend.WithCallOptions(skill, o))
	}
	return backend.New(c, opts...)
}

// Run executes the factory: expand the seed into variants, generate the
// pool, write the main result file, and, when enabled and the pool is not
// empty, run the tournament over it. Cancelling ctx stops generation
// between batches; the tournament still runs over the partial pool.
//
// The returned error is non-nil only for invalid input, setup failures, or
// a tournament that advanced no winners; in the last case the summary is
// still returned.
func (p *Pipeline) Run(ctx context.Context) (*Summary, error) {
	gen := p.cfg.Generation
	if gen.Description == "" {
		verr := domain.NewValidationError("Config")
		verr.AddError("generation.description: required for a factory run")
		return nil, verr
	}

	r, err := p.start()
	if err != nil {
		return nil, err
	}
	defer r.close(p.logger)

	p.logger.Info("pipeline: starting factory run",
		"dir", r.dir,
		"variants", gen.NumVariants,
		"max_items", gen.MaxItems,
		"batch_size", gen.BatchSize)

	seeds := generator.ExpandSeeds(ctx, r.backend, gen.Description, gen.Example,
		gen.NumVariants, gen.MutationLevel, p.logger)
	for i, s := range seeds {
		p.logger.Debug("pipeline: seed", "stream", i+1, "description", s.Description, "example", s.Example)
	}

	poolLog := resultlog.New(filepath.Join(r.dir, p.cfg.Output.ResultFile))
	streamLogs := make([]*resultlog.Log, len(seeds))
	for i := range seeds {
		streamLogs[i] = resultlog.New(filepath.Join(r.dir, fmt.Sprintf(p.cfg.Output.VariantPattern, i+1)))
	}

	g := generator.New(r.backend,
		generator.WithLogger(p.logger),
		generator.WithMetrics(p.metrics),
		generator.WithPoolLog(poolLog),
		generator.WithStreamLogs(func(i int) generator.Recorder { return streamLogs[i] }),
		generator.WithContextLimit(gen.AlreadyGenLimit),
		generator.WithMaxStaleBatches(gen.MaxStaleBatches),
	)
	res, err := g.Generate(ctx, generator.Request{
		Seeds:       seeds,
		TargetCount: gen.MaxItems,
		BatchSize:   gen.BatchSize,
		MaxStreams:  gen.MaxThreads,
	})
	if err != nil {
		return nil, err
	}

	if err := poolLog.Replace(domain.Texts(res.Pool)...); err != nil {
		p.logger.Warn("pipeline: failed to write result file", "path", poolLog.Path(), "error", err)
	}

	sum := newSummary(p.runID, r.dir, poolLog.Path(), res, streamLogs)
	if res.Interrupted {
		p.logger.Warn("pipeline: generation interrupted", "pool", len(res.Pool))
	}

	if p.cfg.Tournament.Enabled {
		if len(res.Pool) == 0 {
			p.logger.Warn("pipeline: no candidates to judge, skipping tournament")
		} else {
			err = p.tournament(ctx, r, res.Pool, sum)
		}
	}

	sum.Usage = r.budget.Usage()
	return sum, err
}

// RunTournament judges candidates without generating. Inadmissible and
// duplicate candidates are dropped; an empty remainder returns
// domain.ErrEmptyPool.
func (p *Pipeline) RunTournament(ctx context.Context, candidates []domain.Candidate) (*Summary, error) {
	pool := domain.Dedupe(candidates)
	if len(pool) == 0 {
		return nil, domain.ErrEmptyPool
	}

	r, err := p.start()
	if err != nil {
		return nil, err
	}
	defer r.close(p.logger)

	sum := &Summary{
		RunID:       p.runID,
		Dir:         r.dir,
		TotalItems:  len(candidates),
		UniqueCount: len(pool),
	}
	sum.DuplicatesRemoved = sum.TotalItems - sum.UniqueCount

	err = p.tournament(ctx, r, pool, sum)
	sum.Usage = r.budget.Usage()
	return sum, err
}

func (p *Pipeline) tournament(ctx context.Context, r *run, pool []domain.Candidate, sum *Summary) error {
	record := resultlog.New(filepath.Join(r.dir, p.cfg.Output.TournamentFile))
	j := judge.New(r.backend,
		judge.WithLogger(p.logger),
		judge.WithMetrics(p.metrics),
		judge.WithFuzzyThreshold(p.cfg.Tournament.FuzzyMatchThreshold),
	)
	s := tournament.New(j, tournament.Config{
		BatchSize:     p.cfg.Tournament.BatchSize,
		MaxConcurrent: p.cfg.Generation.MaxThreads,
		Criteria:      p.cfg.Tournament.Criteria,
	},
		tournament.WithLogger(p.logger),
		tournament.WithMetrics(p.metrics),
		tournament.WithObserver(p.observer),
		tournament.WithRecorder(record),
	)

	state, err := s.Run(ctx, pool)
	sum.TournamentPath = record.Path()
	if state != nil {
		sum.Rounds = len(state.Rounds)
		sum.Winner = state.Winner.String()
	}
	if err != nil {
		var exhausted *domain.TournamentExhaustionError
		if errors.As(err, &exhausted) {
			sum.TournamentErr = err
		}
		return err
	}
	return nil
}
