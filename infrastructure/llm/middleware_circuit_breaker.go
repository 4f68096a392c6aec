package llm

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned without contacting the provider while the
// breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitState is the breaker's position.
type CircuitState int

const (
	// StateClosed passes every request through.
	StateClosed CircuitState = iota
	// StateOpen rejects requests until the cooldown elapses.
	StateOpen
	// StateHalfOpen lets one probe through; its outcome closes or reopens
	// the breaker.
	StateHalfOpen
)

// String returns the lowercase state name.
func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// CircuitBreaker trips after maxFailures consecutive failures. Caller
// cancellations do not count as failures.
type CircuitBreaker struct {
	mu          sync.Mutex
	state       CircuitState
	failures    int
	maxFailures int
	cooldown    time.Duration
	openedAt    time.Time
	probing     bool
	now         func() time.Time

	// OnStateChange, when set, is called with the new state after every
	// transition. It runs with the breaker unlocked.
	OnStateChange func(CircuitState)
}

// NewCircuitBreaker returns a closed breaker.
func NewCircuitBreaker(maxFailures int, cooldown time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		maxFailures: max(maxFailures, 1),
		cooldown:    cooldown,
		now:         time.Now,
	}
}

// State returns the current state, moving Open to HalfOpen when the cooldown
// has elapsed.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen && cb.now().Sub(cb.openedAt) >= cb.cooldown {
		return StateHalfOpen
	}
	return cb.state
}

// allow reserves a slot for one call, or reports ErrCircuitOpen.
func (cb *CircuitBreaker) allow() (CircuitState, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.openedAt) < cb.cooldown {
			return cb.state, ErrCircuitOpen
		}
		cb.state = StateHalfOpen
		cb.probing = true
		return StateHalfOpen, nil
	case StateHalfOpen:
		if cb.probing {
			return cb.state, ErrCircuitOpen
		}
		cb.probing = true
	}
	return cb.state, nil
}

// record applies the outcome of a call admitted by allow and returns the
// state after the transition plus whether the state changed.
func (cb *CircuitBreaker) record(err error) (CircuitState, bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	before := cb.state
	cb.probing = false

	switch {
	case err == nil:
		cb.failures = 0
		cb.state = StateClosed
	case errors.Is(err, context.Canceled):
		// The caller gave up; says nothing about provider health.
		if cb.state == StateHalfOpen {
			cb.state = StateOpen
		}
	default:
		cb.failures++
		if cb.state == StateHalfOpen || cb.failures >= cb.maxFailures {
			cb.state = StateOpen
			cb.openedAt = cb.now()
		}
	}
	return cb.state, cb.state != before
}

// Call runs fn through the breaker.
func (cb *CircuitBreaker) Call(fn func() error) error {
	entered, err := cb.allow()
	if err != nil {
		return err
	}
	if entered == StateHalfOpen {
		cb.notify(StateHalfOpen)
	}

	err = fn()

	if state, changed := cb.record(err); changed {
		cb.notify(state)
	}
	return err
}

func (cb *CircuitBreaker) notify(s CircuitState) {
	if cb.OnStateChange != nil {
		cb.OnStateChange(s)
	}
}

type circuitBreakerLLM struct {
	next CoreLLM
	cb   *CircuitBreaker
}

// CircuitBreakerMiddleware shares one breaker across every CoreLLM it wraps.
func CircuitBreakerMiddleware(cb *CircuitBreaker) Middleware {
	return func(next CoreLLM) CoreLLM {
		return &circuitBreakerLLM{next: next, cb: cb}
	}
}

func (c *circuitBreakerLLM) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	var (
		resp    string
		in, out int
	)
	err := c.cb.Call(func() error {
		var err error
		resp, in, out, err = c.next.DoRequest(ctx, prompt, opts)
		return err
	})
	return resp, in, out, err
}

func (c *circuitBreakerLLM) GetModel() string  { return c.next.GetModel() }
func (c *circuitBreakerLLM) SetModel(m string) { c.next.SetModel(m) }
