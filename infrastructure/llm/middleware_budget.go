package llm

import (
	"context"
	"fmt"
	"sync"

	"github.com/ahrav/go-spout/internal/ports"
)

// Budget caps the calls and tokens a run may spend. Zero disables a limit.
type Budget struct {
	MaxCalls  int64 `yaml:"max_calls" validate:"gte=0"`
	MaxTokens int64 `yaml:"max_tokens" validate:"gte=0"`
}

// Usage is the spend recorded by a BudgetTracker.
type Usage struct {
	Calls  int64
	Tokens int64
}

// BudgetExceededError reports which limit a run hit.
type BudgetExceededError struct {
	LimitType string
	Limit     int64
	Used      int64
}

// Error implements the error interface.
func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("budget exceeded: %s limit=%d, used=%d", e.LimitType, e.Limit, e.Used)
}

// Is matches ports.ErrBudgetExceeded.
func (e *BudgetExceededError) Is(target error) bool {
	return target == ports.ErrBudgetExceeded
}

// BudgetTracker accounts spend across every client sharing it. A run-wide
// tracker is shared by the generate, mutate, and judge clients.
type BudgetTracker struct {
	budget Budget

	mu    sync.Mutex
	usage Usage
}

// NewBudgetTracker returns a tracker with no spend recorded.
func NewBudgetTracker(b Budget) *BudgetTracker {
	return &BudgetTracker{budget: b}
}

// Usage returns a snapshot of the recorded spend.
func (t *BudgetTracker) Usage() Usage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.usage
}

// reserve counts one call, refusing it when either limit is already spent.
func (t *BudgetTracker) reserve() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.budget.MaxCalls > 0 && t.usage.Calls >= t.budget.MaxCalls {
		return &BudgetExceededError{LimitType: "calls", Limit: t.budget.MaxCalls, Used: t.usage.Calls}
	}
	if t.budget.MaxTokens > 0 && t.usage.Tokens >= t.budget.MaxTokens {
		return &BudgetExceededError{LimitType: "tokens", Limit: t.budget.MaxTokens, Used: t.usage.Tokens}
	}
	t.usage.Calls++
	return nil
}

func (t *BudgetTracker) spend(tokens int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.usage.Tokens += int64(tokens)
}

type budgetLLM struct {
	next    CoreLLM
	tracker *BudgetTracker
}

// BudgetMiddleware refuses requests once tracker's budget is spent. A call
// in flight when the token limit is crossed still completes; the next call
// is refused.
func BudgetMiddleware(tracker *BudgetTracker) Middleware {
	return func(next CoreLLM) CoreLLM {
		return &budgetLLM{next: next, tracker: tracker}
	}
}

func (b *budgetLLM) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	if err := b.tracker.reserve(); err != nil {
		return "", 0, 0, err
	}
	resp, in, out, err := b.next.DoRequest(ctx, prompt, opts)
	b.tracker.spend(in + out)
	return resp, in, out, err
}

func (b *budgetLLM) GetModel() string  { return b.next.GetModel() }
func (b *budgetLLM) SetModel(m string) { b.next.SetModel(m) }
