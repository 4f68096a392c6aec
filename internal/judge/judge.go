// Package judge ranks one bounded batch of candidates through the judging
// backend and maps the judge's references back to the submitted candidates.
//
// Judge never fails. A backend error, an unparseable reply, or a reply that
// lacks its rankings all produce the deterministic fallback ranking, so every
// batch always yields a well-formed result with a winner from the batch.
package judge

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/cases"

	"github.com/ahrav/go-spout/internal/domain"
	"github.com/ahrav/go-spout/internal/parser"
	"github.com/ahrav/go-spout/internal/ports"
)

// Separator joins the batch's candidates into one backend request. It is
// not expected to occur in generated text.
const Separator = "@@"

// DefaultFuzzyThreshold is the minimum normalized Levenshtein similarity for
// a judge reference to resolve to a candidate when no substring matches.
const DefaultFuzzyThreshold = 0.8

// Metric names emitted by Judge.
const (
	MetricBatches       = "judge_batches_total"
	MetricCountMismatch = "judge_count_mismatch_total"
	MetricUnresolved    = "judge_unresolved_entries_total"
	MetricLatency       = "judge_batch"
)

// inputRef matches a positional reference with an optional trailing label,
// as in "Input 2" or "Input 2: Midnight Brew".
var inputRef = regexp.MustCompile(`(?i)^\s*input\s*#?\s*(\d+)\b`)

// Judge ranks batches through a JudgeBackend.
type Judge struct {
	backend        ports.JudgeBackend
	logger         *slog.Logger
	metrics        ports.MetricsCollector
	fuzzyThreshold float64
}

// Option configures a Judge.
type Option func(*Judge)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(j *Judge) {
		if l != nil {
			j.logger = l
		}
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m ports.MetricsCollector) Option {
	return func(j *Judge) { j.metrics = m }
}

// WithFuzzyThreshold sets the similarity needed for a fuzzy reference match.
// Zero disables fuzzy matching.
func WithFuzzyThreshold(threshold float64) Option {
	return func(j *Judge) { j.fuzzyThreshold = threshold }
}

// New creates a Judge over backend.
func New(backend ports.JudgeBackend, opts ...Option) *Judge {
	j := &Judge{
		backend:        backend,
		logger:         slog.Default(),
		fuzzyThreshold: DefaultFuzzyThreshold,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Judge ranks batch against criteria. The batch must be non-empty and free
// of duplicates; duplicates are logged because they make name-based mapping
// ambiguous. The result always has a winner drawn from batch.
func (j *Judge) Judge(ctx context.Context, batch []domain.Candidate, criteria string) domain.RankedResult {
	start := time.Now()
	if len(batch) == 0 {
		return domain.RankedResult{Fallback: true, Reason: "empty batch"}
	}
	if n := len(domain.Dedupe(batch)); n != len(batch) {
		j.logger.Warn("judge: batch contains duplicates", "size", len(batch), "unique", n)
	}

	result, err := j.rank(ctx, batch, criteria)
	outcome := "ok"
	if err != nil {
		outcome = "fallback"
		j.logger.Warn("judge: using fallback ranking", "size", len(batch), "error", err)
		result = domain.FallbackRanking(batch, err.Error())
	}

	j.record(MetricBatches, 1, map[string]string{"outcome": outcome})
	if j.metrics != nil {
		j.metrics.RecordLatency(MetricLatency, time.Since(start), map[string]string{
			"component": "judge",
			"outcome":   outcome,
		})
	}
	return result
}

func (j *Judge) rank(ctx context.Context, batch []domain.Candidate, criteria string) (domain.RankedResult, error) {
	reply, err := j.backend.Judge(ctx, ports.JudgeRequest{
		CombinedInputs: CombineInputs(batch),
		Separator:      Separator,
		Criteria:       criteria,
		Explanation:    true,
		Count:          len(batch),
	})
	if err != nil {
		return domain.RankedResult{}, domain.NewBackendCallError("judge", "", err)
	}

	parsed, err := parser.ParseRankings(reply)
	if err != nil {
		return domain.RankedResult{}, err
	}

	if len(parsed.Rankings) != len(batch) {
		j.logger.Warn("judge: ranking count mismatch", "expected", len(batch), "got", len(parsed.Rankings))
		j.record(MetricCountMismatch, 1, nil)
	}

	entries := make([]domain.Ranking, 0, len(parsed.Rankings))
	resolved := 0
	for _, e := range parsed.Rankings {
		c, ok := j.resolve(e.Name, batch)
		if ok {
			resolved++
		} else {
			j.logger.Debug("judge: unresolved reference", "name", e.Name)
			j.record(MetricUnresolved, 1, nil)
		}

		explanation := e.Explanation
		if explanation == "" {
			explanation = "No explanation provided"
		}
		entries = append(entries, domain.Ranking{
			Rank:        e.Rank.Int(),
			Score:       float64(e.Score),
			Candidate:   c,
			Explanation: explanation,
			Reference:   e.Name,
			Resolved:    ok,
		})
	}

	result := domain.RankedResult{Entries: entries}
	if _, ok := result.Winner(); !ok {
		return domain.RankedResult{}, domain.NewStructuralError(parser.TargetRankings, "Name",
			fmt.Errorf("none of %d entries references the batch", len(entries)))
	}
	return result, nil
}

// resolve maps a judge reference to a batch member. It tries, in order, the
// positional "Input N" form, a literal substring, a case-folded substring,
// and the nearest candidate by edit distance. An unmatched reference is
// returned as-is with ok false.
func (j *Judge) resolve(name string, batch []domain.Candidate) (domain.Candidate, bool) {
	if m := inputRef.FindStringSubmatch(name); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n >= 1 && n <= len(batch) {
			return batch[n-1], true
		}
	}

	ref := strings.TrimSpace(name)
	if ref == "" {
		return domain.Candidate(name), false
	}

	for _, c := range batch {
		if strings.Contains(string(c), ref) || strings.Contains(flatten(c), ref) {
			return c, true
		}
	}

	// A Caser is stateful, so each call gets its own.
	fold := cases.Fold()
	folded := fold.String(ref)
	for _, c := range batch {
		if strings.Contains(fold.String(flatten(c)), folded) {
			return c, true
		}
	}

	if j.fuzzyThreshold > 0 {
		best, bestSim := -1, 0.0
		for i, c := range batch {
			if sim := similarity(folded, fold.String(flatten(c))); sim > bestSim {
				best, bestSim = i, sim
			}
		}
		if best >= 0 && bestSim >= j.fuzzyThreshold {
			return batch[best], true
		}
	}

	return domain.Candidate(name), false
}

func (j *Judge) record(metric string, value float64, labels map[string]string) {
	if j.metrics == nil {
		return
	}
	l := map[string]string{"component": "judge"}
	for k, v := range labels {
		l[k] = v
	}
	j.metrics.RecordCounter(metric, value, l)
}

// CombineInputs flattens each candidate onto one line and joins them with
// Separator.
func CombineInputs(batch []domain.Candidate) string {
	parts := make([]string, len(batch))
	for i, c := range batch {
		parts[i] = flatten(c)
	}
	return strings.Join(parts, Separator)
}

func flatten(c domain.Candidate) string {
	return strings.TrimSpace(strings.ReplaceAll(string(c), "\n", " "))
}

// similarity is 1 - distance/maxLen over runes.
func similarity(a, b string) float64 {
	maxLen := max(len([]rune(a)), len([]rune(b)))
	if maxLen == 0 {
		return 1
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(maxLen)
}
