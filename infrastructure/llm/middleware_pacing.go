package llm

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitMiddleware paces requests with one token bucket shared by every
// CoreLLM it wraps, so concurrent generation streams and judge groups for
// a provider draw from the same quota.
func RateLimitMiddleware(provider string, limit rate.Limit, burst int) Middleware {
	limiter := rate.NewLimiter(limit, burst)
	return func(next CoreLLM) CoreLLM {
		return &pacedLLM{next: next, provider: provider, limiter: limiter}
	}
}

// TimeoutMiddleware bounds each attempt. An attempt that runs out of time
// while the caller's context is still live becomes a retryable timeout
// ProviderError.
func TimeoutMiddleware(provider string, timeout time.Duration) Middleware {
	return func(next CoreLLM) CoreLLM {
		if timeout <= 0 {
			return next
		}
		return &pacedLLM{next: next, provider: provider, timeout: timeout}
	}
}

type pacedLLM struct {
	next     CoreLLM
	provider string
	limiter  *rate.Limiter
	timeout  time.Duration
}

func (p *pacedLLM) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return "", 0, 0, fmt.Errorf("rate limit wait for %s: %w", SkillOf(opts), ctx.Err())
			}
			// Wait refuses up front when the next token is past the deadline.
			return "", 0, 0, NewProviderError(p.provider, ErrorTypeRateLimit, 0, "local rate limit", err)
		}
	}
	if p.timeout <= 0 {
		return p.next.DoRequest(ctx, prompt, opts)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	text, in, out, err := p.next.DoRequest(attemptCtx, prompt, opts)
	if err != nil && ctx.Err() == nil && attemptCtx.Err() == context.DeadlineExceeded {
		msg := fmt.Sprintf("%s attempt exceeded %s", SkillOf(opts), p.timeout)
		return "", in, out, NewProviderError(p.provider, ErrorTypeTimeout, 0, msg, context.DeadlineExceeded)
	}
	return text, in, out, err
}

func (p *pacedLLM) GetModel() string  { return p.next.GetModel() }
func (p *pacedLLM) SetModel(m string) { p.next.SetModel(m) }
