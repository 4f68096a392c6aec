// Package generator grows a shared, duplicate-free candidate pool from
// several concurrent generation streams.
//
// Every stream repeatedly sends the current pool to the generation backend
// as the already-generated context, merges the returned items into the
// shared pool, and flushes its progress to disk after each batch. A stream
// stops on an empty batch, when the pool reaches the target size, when the
// context is cancelled, or when its own backend call fails. One stream
// stopping never affects the others.
package generator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/ahrav/go-spout/internal/domain"
	"github.com/ahrav/go-spout/internal/limiter"
	"github.com/ahrav/go-spout/internal/parser"
	"github.com/ahrav/go-spout/internal/ports"
)

// DefaultContextLimit is the maximum length of the JSON-encoded pool sent
// as already-generated context. A stream whose context would exceed it stops.
const DefaultContextLimit = 8000

// DefaultMaxStaleBatches is how many consecutive batches may add nothing new
// to the pool before a stream gives up.
const DefaultMaxStaleBatches = 3

// Metric names emitted by Generator.
const (
	MetricBatches    = "generator_batches_total"
	MetricItemsAdded = "generator_items_added_total"
	MetricPoolSize   = "generator_pool_size"
)

// StopReason says why a stream ended.
type StopReason string

// Stream stop reasons.
const (
	StopExhausted    StopReason = "exhausted"
	StopTarget       StopReason = "target_reached"
	StopCancelled    StopReason = "cancelled"
	StopContextLimit StopReason = "context_limit"
	StopStale        StopReason = "stale"
	StopBackendError StopReason = "backend_error"
	StopParseError   StopReason = "parse_error"
)

// Completed reports whether the stream ran to a natural end.
func (r StopReason) Completed() bool {
	return r == StopExhausted || r == StopTarget
}

// Recorder persists progress lines. *resultlog.Log satisfies it.
type Recorder interface {
	Append(lines ...string) error
}

// Request describes one generation run.
type Request struct {
	// Seeds holds one entry per stream.
	Seeds []Seed

	// TargetCount is the pool size at which every stream stops.
	TargetCount int

	// BatchSize is the number of items requested per backend call.
	BatchSize int

	// MaxStreams bounds how many streams run at once.
	MaxStreams int
}

// StreamResult summarises one stream.
type StreamResult struct {
	Index int
	Seed  Seed

	// Items are the distinct items this stream received, in arrival order.
	// Some of them may have been contributed to the pool by another stream.
	Items []domain.Candidate

	// Added is how many of Items this stream was first to add to the pool.
	Added int

	Batches    int
	StopReason StopReason
	Err        error
}

// Result is the outcome of a generation run.
type Result struct {
	// Pool is the deduplicated pool in insertion order.
	Pool []domain.Candidate

	// Streams are the per-stream summaries, in stream order.
	Streams []StreamResult

	// Interrupted is true when the context was cancelled before every stream
	// finished on its own.
	Interrupted bool

	// TotalReturned counts every cleaned item any stream received.
	TotalReturned int

	// DuplicatesRemoved is TotalReturned minus the number of pool members
	// those items produced.
	DuplicatesRemoved int
}

// CompletedStreams returns how many streams ran to a natural end.
func (r Result) CompletedStreams() int {
	n := 0
	for _, s := range r.Streams {
		if s.StopReason.Completed() {
			n++
		}
	}
	return n
}

// Generator runs generation streams against a GenerationBackend.
type Generator struct {
	backend         ports.GenerationBackend
	logger          *slog.Logger
	metrics         ports.MetricsCollector
	poolLog         Recorder
	streamLog       func(index int) Recorder
	contextLimit    int
	maxStaleBatches int
}

// Option configures a Generator.
type Option func(*Generator)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(g *Generator) {
		if l != nil {
			g.logger = l
		}
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m ports.MetricsCollector) Option {
	return func(g *Generator) { g.metrics = m }
}

// WithPoolLog records every item added to the shared pool.
func WithPoolLog(r Recorder) Option {
	return func(g *Generator) { g.poolLog = r }
}

// WithStreamLogs gives stream i (0-based) its own recorder for the items it
// receives. The function may return nil to skip a stream.
func WithStreamLogs(fn func(index int) Recorder) Option {
	return func(g *Generator) { g.streamLog = fn }
}

// WithContextLimit overrides DefaultContextLimit. Zero or less disables it.
func WithContextLimit(n int) Option {
	return func(g *Generator) { g.contextLimit = n }
}

// WithMaxStaleBatches overrides DefaultMaxStaleBatches. Zero or less
// disables the guard.
func WithMaxStaleBatches(n int) Option {
	return func(g *Generator) { g.maxStaleBatches = n }
}

// New creates a Generator over backend.
func New(backend ports.GenerationBackend, opts ...Option) *Generator {
	g := &Generator{
		backend:         backend,
		logger:          slog.Default(),
		contextLimit:    DefaultContextLimit,
		maxStaleBatches: DefaultMaxStaleBatches,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate runs one stream per seed, at most req.MaxStreams at a time, and
// returns the merged pool. It returns an error only for an invalid request;
// stream failures are reported in Result.Streams.
func (g *Generator) Generate(ctx context.Context, req Request) (Result, error) {
	if err := validateRequest(req); err != nil {
		return Result{}, err
	}

	pool := domain.NewPool()
	tasks := make([]limiter.Task[StreamResult], len(req.Seeds))
	for i, seed := range req.Seeds {
		tasks[i] = func(ctx context.Context) (StreamResult, error) {
			return g.runStream(ctx, i, seed, pool, req), nil
		}
	}

	streams, err := limiter.Run(ctx, tasks, max(req.MaxStreams, 1))
	for i := range streams {
		// Streams the limiter never started.
		if streams[i].StopReason == "" {
			streams[i] = StreamResult{Index: i, Seed: req.Seeds[i], StopReason: StopCancelled}
		}
	}
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		g.logger.Error("generator: unexpected limiter error", "error", err)
	}

	res := Result{Pool: pool.Snapshot(), Streams: streams}
	for _, s := range streams {
		res.TotalReturned += len(s.Items)
		if s.StopReason == StopCancelled {
			res.Interrupted = true
		}
	}
	res.DuplicatesRemoved = res.TotalReturned - len(res.Pool)

	g.logger.Info("generator: finished",
		"streams", len(streams),
		"completed", res.CompletedStreams(),
		"pool", len(res.Pool),
		"duplicates_removed", res.DuplicatesRemoved,
		"interrupted", res.Interrupted)
	return res, nil
}

func validateRequest(req Request) error {
	verr := domain.NewValidationError("generator.Request")
	if len(req.Seeds) == 0 {
		verr.AddError("at least one seed is required")
	}
	if req.TargetCount < 1 {
		verr.AddError("target count must be positive")
	}
	if req.BatchSize < 1 {
		verr.AddError("batch size must be positive")
	}
	if verr.HasErrors() {
		return verr
	}
	return nil
}

func (g *Generator) runStream(ctx context.Context, index int, seed Seed, pool *domain.Pool, req Request) StreamResult {
	res := StreamResult{Index: index, Seed: seed}
	log := g.logger.With("stream", index+1)
	var streamLog Recorder
	if g.streamLog != nil {
		streamLog = g.streamLog(index)
	}

	seen := make(map[domain.Candidate]struct{})
	stale := 0

	log.Info("generator: stream starting", "description", seed.Description, "example", seed.Example)

	for {
		if ctx.Err() != nil {
			res.StopReason = StopCancelled
			break
		}
		if pool.Len() >= req.TargetCount {
			res.StopReason = StopTarget
			break
		}

		already, err := pool.MarshalMembers()
		if err != nil {
			res.StopReason, res.Err = StopParseError, err
			break
		}
		if g.contextLimit > 0 && len(already) > g.contextLimit {
			log.Info("generator: already-generated context limit reached", "length", len(already))
			res.StopReason = StopContextLimit
			break
		}

		// In-flight calls are allowed to finish after cancellation.
		reply, err := g.backend.Generate(context.WithoutCancel(ctx), ports.GenerateRequest{
			Description:      seed.Description,
			Example:          seed.Example,
			BatchSize:        req.BatchSize,
			AlreadyGenerated: domain.Texts(pool.Snapshot()),
		})
		if err != nil {
			res.StopReason, res.Err = StopBackendError, domain.NewBackendCallError("generate", "", err)
			log.Error("generator: stream stopped on backend error", "error", err)
			g.record(MetricBatches, 1, map[string]string{"outcome": "error"})
			break
		}

		parsed, err := parser.ParseGeneratedItems(reply)
		if err != nil {
			res.StopReason, res.Err = StopParseError, err
			log.Error("generator: stream stopped on unparseable reply", "error", err)
			g.record(MetricBatches, 1, map[string]string{"outcome": "parse_error"})
			break
		}

		items := domain.Dedupe(CleanItems(parsed.Items))
		res.Batches++
		if len(items) == 0 {
			log.Info("generator: backend returned no items, stopping", "received", len(res.Items))
			g.record(MetricBatches, 1, map[string]string{"outcome": "empty"})
			res.StopReason = StopExhausted
			break
		}
		g.record(MetricBatches, 1, map[string]string{"outcome": "ok"})

		var fresh []domain.Candidate
		for _, c := range items {
			if _, ok := seen[c]; !ok {
				seen[c] = struct{}{}
				fresh = append(fresh, c)
			}
		}
		res.Items = append(res.Items, fresh...)

		added := pool.Add(items...)
		res.Added += len(added)
		g.flush(log, streamLog, fresh, added)
		g.record(MetricItemsAdded, float64(len(added)), map[string]string{"stream": strconv.Itoa(index + 1)})
		if g.metrics != nil {
			g.metrics.RecordGauge(MetricPoolSize, float64(pool.Len()), map[string]string{"component": "generator"})
		}

		log.Info("generator: batch merged", "returned", len(items), "added", len(added), "pool", pool.Len())

		if len(added) == 0 {
			stale++
			if g.maxStaleBatches > 0 && stale >= g.maxStaleBatches {
				log.Warn("generator: no new items for consecutive batches, stopping", "batches", stale)
				res.StopReason = StopStale
				break
			}
		} else {
			stale = 0
		}
	}

	log.Info("generator: stream finished", "reason", string(res.StopReason), "items", len(res.Items), "added", res.Added)
	return res
}

func (g *Generator) flush(log *slog.Logger, streamLog Recorder, fresh, added []domain.Candidate) {
	if streamLog != nil && len(fresh) > 0 {
		if err := streamLog.Append(domain.Texts(fresh)...); err != nil {
			log.Warn("generator: failed to persist stream progress", "error", err)
		}
	}
	if g.poolLog != nil && len(added) > 0 {
		if err := g.poolLog.Append(domain.Texts(added)...); err != nil {
			log.Warn("generator: failed to persist pool progress", "error", err)
		}
	}
}

func (g *Generator) record(metric string, value float64, labels map[string]string) {
	if g.metrics == nil {
		return
	}
	l := map[string]string{"component": "generator"}
	for k, v := range labels {
		l[k] = v
	}
	g.metrics.RecordCounter(metric, value, l)
}

// String implements fmt.Stringer for log output.
func (s StreamResult) String() string {
	return fmt.Sprintf("stream %d: %d items (%d added) after %d batches, %s",
		s.Index+1, len(s.Items), s.Added, s.Batches, s.StopReason)
}
