package llm

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"
)

// RetryConfig controls RetryMiddleware.
type RetryConfig struct {
	// MaxAttempts includes the first try. Values below 1 mean 1.
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration

	// Retryable overrides IsRetryable.
	Retryable func(error) bool
}

// DefaultRetryConfig returns three attempts with backoff from 500ms to 10s.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    10 * time.Second,
	}
}

type retryLLM struct {
	next  CoreLLM
	cfg   RetryConfig
	sleep func(context.Context, time.Duration) error
}

// RetryMiddleware retries transient failures with exponential backoff and
// ±25% jitter. Only errors that IsRetryable accepts are retried.
func RetryMiddleware(cfg RetryConfig) Middleware {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.Retryable == nil {
		cfg.Retryable = IsRetryable
	}
	return func(next CoreLLM) CoreLLM {
		return &retryLLM{next: next, cfg: cfg, sleep: sleepCtx}
	}
}

func (r *retryLLM) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	var lastErr error
	for attempt := range r.cfg.MaxAttempts {
		resp, in, out, err := r.next.DoRequest(ctx, prompt, opts)
		if err == nil {
			return resp, in, out, nil
		}
		lastErr = err

		if ctx.Err() != nil || !r.cfg.Retryable(err) || attempt == r.cfg.MaxAttempts-1 {
			break
		}
		if err := r.sleep(ctx, backoff(attempt, r.cfg.BaseDelay, r.cfg.MaxDelay)); err != nil {
			return "", 0, 0, err
		}
	}

	if r.cfg.MaxAttempts == 1 {
		return "", 0, 0, lastErr
	}
	return "", 0, 0, fmt.Errorf("request failed after %d attempts: %w", r.cfg.MaxAttempts, lastErr)
}

func (r *retryLLM) GetModel() string  { return r.next.GetModel() }
func (r *retryLLM) SetModel(m string) { r.next.SetModel(m) }

// backoff returns base*2^attempt with ±25% jitter, capped at maxDelay.
func backoff(attempt int, base, maxDelay time.Duration) time.Duration {
	attempt = clamp(attempt, 0, 30)
	d := base << attempt
	if d <= 0 || (maxDelay > 0 && d > maxDelay) {
		d = maxDelay
	}
	// #nosec G404 - jitter does not need a cryptographic source
	jitter := time.Duration((rand.Float64() - 0.5) * 0.5 * float64(d))
	d += jitter
	if maxDelay > 0 && d > maxDelay {
		d = maxDelay
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
