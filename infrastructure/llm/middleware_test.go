package llm

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/ahrav/go-spout/internal/ports"
)

var errTransient = NewProviderError("test", ErrorTypeServerError, 503, "", nil)

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{MaxAttempts: attempts, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

// TestRetryMiddleware_RecoversFromTransientFailures tests that transient
// failures are retried until the call succeeds.
func TestRetryMiddleware_RecoversFromTransientFailures(t *testing.T) {
	mock := NewMockCoreLLM()
	mock.Err = errTransient
	mock.FailFirst = 2

	resp, _, _, err := RetryMiddleware(fastRetry(3))(mock).DoRequest(context.Background(), "p", nil)

	require.NoError(t, err)
	assert.Equal(t, "test response", resp)
	assert.Equal(t, 3, mock.Calls())
}

// TestRetryMiddleware_StopsOnPermanentError tests that non-retryable errors
// are returned after a single attempt.
func TestRetryMiddleware_StopsOnPermanentError(t *testing.T) {
	mock := NewMockCoreLLM()
	mock.Err = NewProviderError("test", ErrorTypeAuthentication, 401, "", nil)

	_, _, _, err := RetryMiddleware(fastRetry(5))(mock).DoRequest(context.Background(), "p", nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrAuthenticationFailed)
	assert.Equal(t, 1, mock.Calls())
}

func TestRetryMiddleware_ExhaustsAttempts(t *testing.T) {
	mock := NewMockCoreLLM()
	mock.Err = errTransient

	_, _, _, err := RetryMiddleware(fastRetry(3))(mock).DoRequest(context.Background(), "p", nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.ErrorIs(t, err, ports.ErrServiceUnavailable)
	assert.Equal(t, 3, mock.Calls())
}

func TestRetryMiddleware_CustomPredicate(t *testing.T) {
	mock := NewMockCoreLLM()
	mock.Err = errTransient
	cfg := fastRetry(4)
	cfg.Retryable = func(error) bool { return false }

	_, _, _, err := RetryMiddleware(cfg)(mock).DoRequest(context.Background(), "p", nil)

	require.Error(t, err)
	assert.Equal(t, 1, mock.Calls())
}

func TestBackoff(t *testing.T) {
	for attempt := range 6 {
		d := backoff(attempt, 100*time.Millisecond, time.Second)
		base := 100 * time.Millisecond << attempt
		if base > time.Second {
			base = time.Second
		}
		assert.LessOrEqual(t, d, time.Second)
		assert.GreaterOrEqual(t, d, base*3/4, "attempt %d", attempt)
	}
}

// TestCircuitBreaker_Lifecycle tests closed, open, half-open, and recovery
// transitions with a controllable clock.
func TestCircuitBreaker_Lifecycle(t *testing.T) {
	now := time.Unix(0, 0)
	cb := NewCircuitBreaker(2, time.Minute)
	cb.now = func() time.Time { return now }
	var transitions []CircuitState
	cb.OnStateChange = func(s CircuitState) { transitions = append(transitions, s) }

	mock := NewMockCoreLLM()
	mock.Err = errTransient
	llm := CircuitBreakerMiddleware(cb)(mock)
	ctx := context.Background()

	for range 2 {
		_, _, _, err := llm.DoRequest(ctx, "p", nil)
		require.ErrorIs(t, err, errTransient)
	}
	assert.Equal(t, StateOpen, cb.State())

	_, _, _, err := llm.DoRequest(ctx, "p", nil)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 2, mock.Calls(), "open breaker must not reach the provider")

	now = now.Add(time.Minute)
	assert.Equal(t, StateHalfOpen, cb.State())

	mock.Err = nil
	_, _, _, err = llm.DoRequest(ctx, "p", nil)
	require.NoError(t, err)
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, []CircuitState{StateOpen, StateHalfOpen, StateClosed}, transitions)
}

func TestCircuitBreaker_FailedProbeReopens(t *testing.T) {
	now := time.Unix(0, 0)
	cb := NewCircuitBreaker(1, time.Second)
	cb.now = func() time.Time { return now }

	fail := func() error { return errTransient }
	require.Error(t, cb.Call(fail))
	assert.Equal(t, StateOpen, cb.State())

	now = now.Add(time.Second)
	require.ErrorIs(t, cb.Call(fail), errTransient)
	assert.Equal(t, StateOpen, cb.State())
	assert.ErrorIs(t, cb.Call(fail), ErrCircuitOpen)
}

func TestCircuitBreaker_CancellationDoesNotTrip(t *testing.T) {
	cb := NewCircuitBreaker(1, time.Minute)

	err := cb.Call(func() error { return context.Canceled })

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateClosed, cb.State())
}

// TestRateLimitMiddleware_SharedAcrossClients tests that one limiter paces
// every client it wraps.
func TestRateLimitMiddleware_SharedAcrossClients(t *testing.T) {
	mw := RateLimitMiddleware("openai", rate.Every(20*time.Millisecond), 1)
	a := mw(NewMockCoreLLM())
	b := mw(NewMockCoreLLM())
	ctx := context.Background()

	start := time.Now()
	for range 2 {
		_, _, _, err := a.DoRequest(ctx, "p", nil)
		require.NoError(t, err)
		_, _, _, err = b.DoRequest(ctx, "p", nil)
		require.NoError(t, err)
	}

	assert.GreaterOrEqual(t, time.Since(start), 55*time.Millisecond)
}

func TestRateLimitMiddleware_ContextCanceled(t *testing.T) {
	mw := RateLimitMiddleware("openai", rate.Every(time.Hour), 1)
	llm := mw(NewMockCoreLLM())
	_, _, _, err := llm.DoRequest(context.Background(), "p", nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, _, err = llm.DoRequest(ctx, "p", map[string]any{OptSkill: "judge"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Contains(t, err.Error(), "rate limit wait for judge")
	assert.False(t, IsRetryable(err))

	// A deadline the next token cannot meet is refused as a rate limit.
	ctx, cancel = context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	_, _, _, err = llm.DoRequest(ctx, "p", nil)
	assert.ErrorIs(t, err, ports.ErrRateLimited)
	assert.True(t, IsRetryable(err))
}

// TestTimeoutMiddleware tests that an attempt timeout is a retryable
// provider timeout while a caller deadline passes through unchanged.
func TestTimeoutMiddleware(t *testing.T) {
	mock := NewMockCoreLLM()
	mock.Delay = time.Second

	_, _, _, err := TimeoutMiddleware("openai", 10*time.Millisecond)(mock).
		DoRequest(context.Background(), "p", map[string]any{OptSkill: "generate"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.ErrorIs(t, err, ports.ErrTimeout)
	assert.Contains(t, err.Error(), "generate attempt exceeded 10ms")
	assert.True(t, IsRetryable(err))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, _, _, err = TimeoutMiddleware("openai", time.Minute)(mock).DoRequest(ctx, "p", nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	var pe *ProviderError
	assert.False(t, errors.As(err, &pe), "caller deadlines are not rewritten")

	assert.Same(t, CoreLLM(mock), TimeoutMiddleware("openai", 0)(mock), "zero timeout leaves the chain untouched")
}

// TestBudgetMiddleware tests that calls are refused once either limit is
// spent and that the tracker is shared across clients.
func TestBudgetMiddleware(t *testing.T) {
	t.Run("calls", func(t *testing.T) {
		tracker := NewBudgetTracker(Budget{MaxCalls: 2})
		mw := BudgetMiddleware(tracker)
		a, b := mw(NewMockCoreLLM()), mw(NewMockCoreLLM())
		ctx := context.Background()

		_, _, _, err := a.DoRequest(ctx, "p", nil)
		require.NoError(t, err)
		_, _, _, err = b.DoRequest(ctx, "p", nil)
		require.NoError(t, err)
		_, _, _, err = a.DoRequest(ctx, "p", nil)

		var be *BudgetExceededError
		require.ErrorAs(t, err, &be)
		assert.Equal(t, "calls", be.LimitType)
		assert.ErrorIs(t, err, ports.ErrBudgetExceeded)
		assert.Equal(t, Usage{Calls: 2, Tokens: 60}, tracker.Usage())
	})

	t.Run("tokens", func(t *testing.T) {
		tracker := NewBudgetTracker(Budget{MaxTokens: 25})
		llm := BudgetMiddleware(tracker)(NewMockCoreLLM())

		_, _, _, err := llm.DoRequest(context.Background(), "p", nil)
		require.NoError(t, err, "the call crossing the limit completes")
		_, _, _, err = llm.DoRequest(context.Background(), "p", nil)
		assert.ErrorIs(t, err, ports.ErrBudgetExceeded)
	})

	t.Run("unlimited", func(t *testing.T) {
		llm := BudgetMiddleware(NewBudgetTracker(Budget{}))(NewMockCoreLLM())
		for range 10 {
			_, _, _, err := llm.DoRequest(context.Background(), "p", nil)
			require.NoError(t, err)
		}
	})
}

type recordedMetric struct {
	name   string
	value  float64
	labels map[string]string
}

type recordingCollector struct {
	mu      sync.Mutex
	records []recordedMetric
}

func (r *recordingCollector) add(name string, v float64, labels map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, recordedMetric{name, v, labels})
}

func (r *recordingCollector) RecordLatency(name string, d time.Duration, labels map[string]string) {
	r.add(name, d.Seconds(), labels)
}
func (r *recordingCollector) RecordCounter(name string, v float64, labels map[string]string) {
	r.add(name, v, labels)
}
func (r *recordingCollector) RecordGauge(name string, v float64, labels map[string]string) {
	r.add(name, v, labels)
}
func (r *recordingCollector) RecordHistogram(name string, v float64, labels map[string]string) {
	r.add(name, v, labels)
}

func (r *recordingCollector) named(name string) []recordedMetric {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []recordedMetric
	for _, m := range r.records {
		if m.name == name {
			out = append(out, m)
		}
	}
	return out
}

func TestMetricsMiddleware(t *testing.T) {
	col := &recordingCollector{}
	mock := NewMockCoreLLM()
	llm := MetricsMiddleware("deepseek", col)(mock)

	_, _, _, err := llm.DoRequest(context.Background(), "p", map[string]any{OptSkill: "judge"})
	require.NoError(t, err)

	reqs := col.named(MetricRequests)
	require.Len(t, reqs, 1)
	assert.Equal(t, map[string]string{
		"provider": "deepseek", "model": "test-model", "skill": "judge", "status": "success",
	}, reqs[0].labels)

	tokens := col.named(MetricTokens)
	require.Len(t, tokens, 2)
	assert.Equal(t, "input", tokens[0].labels["token_type"])
	assert.InDelta(t, 10, tokens[0].value, 0)
	assert.Equal(t, "output", tokens[1].labels["token_type"])
	assert.InDelta(t, 20, tokens[1].value, 0)
	assert.NotContains(t, reqs[0].labels, "token_type", "request labels must not be mutated")
	assert.Len(t, col.named(MetricRequestLatency), 1)
}

func TestRequestStatus(t *testing.T) {
	assert.Equal(t, "success", requestStatus(nil))
	assert.Equal(t, "circuit_open", requestStatus(ErrCircuitOpen))
	assert.Equal(t, "budget_exceeded", requestStatus(&BudgetExceededError{}))
	assert.Equal(t, "rate_limit", requestStatus(NewProviderError("x", ErrorTypeRateLimit, 429, "", nil)))
	assert.Equal(t, "error", requestStatus(errors.New("x")))
}

func TestTracingMiddleware_PassesThrough(t *testing.T) {
	mock := NewMockCoreLLM()
	mock.Err = errTransient
	llm := TracingMiddleware("openai")(mock)

	_, _, _, err := llm.DoRequest(context.Background(), "p", nil)

	assert.ErrorIs(t, err, errTransient)
	assert.Equal(t, "test-model", llm.GetModel())
}

// TestUsageLogMiddleware tests the CSV layout, the header, and error
// fingerprinting.
func TestUsageLogMiddleware(t *testing.T) {
	var buf bytes.Buffer
	log := NewUsageLog(&buf)
	mock := NewMockCoreLLM()
	mock.Response = "out"
	llm := UsageLogMiddleware(log, nil)(mock)
	ctx := context.Background()

	_, _, _, err := llm.DoRequest(ctx, "in", map[string]any{OptSkill: "generate", OptModel: "gpt-4.1"})
	require.NoError(t, err)

	mock.Err = errors.New("boom")
	_, _, _, err = llm.DoRequest(ctx, "in", nil)
	require.Error(t, err)

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, UsageLogHeader, rows[0])

	assert.Equal(t, "gpt-4.1", rows[1][2])
	assert.Equal(t, "generate", rows[1][3])
	assert.Equal(t, "10", rows[1][4])
	assert.Equal(t, "20", rows[1][5])
	assert.Equal(t, fingerprint("in"), rows[1][6])
	assert.Equal(t, fingerprint("out"), rows[1][7])
	assert.Len(t, rows[1][6], 8)

	assert.Equal(t, "test-model", rows[2][2])
	assert.Equal(t, "Unknown", rows[2][3])
	assert.Equal(t, "0", rows[2][4])
	assert.Equal(t, fingerprint("boom"), rows[2][7])
}

func TestOpenUsageLog_KeepsExistingHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "api_metrics.csv")
	rec := UsageRecord{Start: time.Now(), Model: "m", Skill: "s"}

	for range 2 {
		log, err := OpenUsageLog(path)
		require.NoError(t, err)
		require.NoError(t, log.Record(rec))
		require.NoError(t, log.Close())
	}

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	rows, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	require.NoError(t, err)
	assert.Len(t, rows, 3, "header once plus two rows")
}
