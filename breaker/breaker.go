package breaker

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrOpen is an exported constant or variable used by the authentication gateway.
// It is returned when a call is short-circuited because the breaker is open
// and no fallback was supplied.
var ErrOpen = errors.New("circuit breaker open")

// State defines a public type used by adela-auth APIs.
//
// State instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type State uint8

const (
	// StateClosed is an exported constant or variable used by the authentication gateway.
	StateClosed State = iota
	// StateOpen is an exported constant or variable used by the authentication gateway.
	StateOpen
	// StateHalfOpen is an exported constant or variable used by the authentication gateway.
	StateHalfOpen
)

func (s State) String() string {
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

// Config holds breaker tuning parameters.
//
// ExpectedErrors lists substrings of error messages that are treated as
// transient noise rather than systemic failure: matching errors are still
// propagated to the caller but do not count toward FailureThreshold.
type Config struct {
	FailureThreshold int
	ResetTimeout     time.Duration
	MonitoringPeriod time.Duration
	ExpectedErrors   []string
}

func (c Config) withDefaults() Config {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = 30 * time.Second
	}
	if c.MonitoringPeriod <= 0 {
		c.MonitoringPeriod = time.Minute
	}
	return c
}

// Counts is a point-in-time snapshot of the breaker's rolling counters.
type Counts struct {
	Requests        int
	Successes       int
	Failures        int
	LastFailureTime time.Time
}

// Breaker is a per-dependency circuit breaker. It is safe for concurrent
// use; one instance is intentionally shared by all requests touching the
// same dependency.
type Breaker struct {
	name   string
	config Config
	logger *zap.Logger
	now    func() time.Time

	mu           sync.Mutex
	state        State
	failureCount int
	successCount int
	requestCount int
	lastFailure  time.Time
	windowStart  time.Time
}

// New creates a [Breaker] for the named dependency.
func New(name string, cfg Config, logger *zap.Logger) *Breaker {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Breaker{
		name:   name,
		config: cfg.withDefaults(),
		logger: logger,
		now:    time.Now,
	}
	b.windowStart = b.now()
	return b
}

// Name returns the dependency name this breaker protects.
func (b *Breaker) Name() string { return b.name }

// State returns the current breaker state. An elapsed reset timeout is
// reflected as half-open even before the next probing call arrives, so
// health reporting never shows a stale open state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.now().Sub(b.lastFailure) >= b.config.ResetTimeout {
		return StateHalfOpen
	}
	return b.state
}

// Counts returns a snapshot of the rolling window counters.
func (b *Breaker) Counts() Counts {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Counts{
		Requests:        b.requestCount,
		Successes:       b.successCount,
		Failures:        b.failureCount,
		LastFailureTime: b.lastFailure,
	}
}

// Execute runs op through the breaker. While open and before the reset
// timeout has elapsed, op is never invoked and ErrOpen is returned.
func (b *Breaker) Execute(ctx context.Context, op func(context.Context) error) error {
	return b.ExecuteWithFallback(ctx, op, nil)
}

// ExecuteWithFallback runs op through the breaker. When the call is
// short-circuited and fallback is non-nil, the fallback result is
// returned instead of ErrOpen.
func (b *Breaker) ExecuteWithFallback(ctx context.Context, op, fallback func(context.Context) error) error {
	if err := b.Allow(); err != nil {
		if fallback != nil {
			return fallback(ctx)
		}
		return err
	}

	err := op(ctx)
	b.Record(err)
	return err
}

// Allow reports whether a call may be attempted right now. It transitions
// an open breaker to half-open once the reset timeout has elapsed since
// the last failure. Callers pairing Allow with Record can protect
// asynchronous operations that do not fit the Execute shape.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.rollWindowLocked()
	b.requestCount++

	switch b.state {
	case StateOpen:
		if b.now().Sub(b.lastFailure) < b.config.ResetTimeout {
			return ErrOpen
		}
		b.transitionLocked(StateHalfOpen)
		return nil
	default:
		return nil
	}
}

// Record feeds the outcome of an attempted call back into the breaker.
// Errors matching a configured expected-error substring are propagated by
// the caller but are not counted as failures here.
func (b *Breaker) Record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.rollWindowLocked()

	if err == nil {
		b.successCount++
		if b.state == StateHalfOpen {
			b.failureCount = 0
			b.transitionLocked(StateClosed)
		}
		return
	}

	if b.expected(err) {
		return
	}

	b.failureCount++
	b.lastFailure = b.now()

	switch b.state {
	case StateHalfOpen:
		b.transitionLocked(StateOpen)
	case StateClosed:
		if b.failureCount >= b.config.FailureThreshold {
			b.transitionLocked(StateOpen)
		}
	}
}

func (b *Breaker) expected(err error) bool {
	msg := err.Error()
	for _, substr := range b.config.ExpectedErrors {
		if substr != "" && strings.Contains(msg, substr) {
			return true
		}
	}
	return false
}

// rollWindowLocked resets the per-window counters once MonitoringPeriod
// has elapsed. failureCount is reset only while closed so failure memory
// survives across window boundaries while the dependency is degraded.
func (b *Breaker) rollWindowLocked() {
	now := b.now()
	if now.Sub(b.windowStart) < b.config.MonitoringPeriod {
		return
	}
	b.windowStart = now
	b.requestCount = 0
	b.successCount = 0
	if b.state == StateClosed {
		b.failureCount = 0
	}
}

func (b *Breaker) transitionLocked(next State) {
	if b.state == next {
		return
	}
	prev := b.state
	b.state = next
	b.logger.Warn("circuit breaker state change",
		zap.String("dependency", b.name),
		zap.String("from", prev.String()),
		zap.String("to", next.String()),
		zap.Int("failures", b.failureCount),
	)
}

// Do runs a value-returning operation through the breaker. When the call
// is short-circuited the zero value and ErrOpen are returned.
func Do[T any](ctx context.Context, b *Breaker, op func(context.Context) (T, error)) (T, error) {
	var out T
	err := b.Execute(ctx, func(ctx context.Context) error {
		var opErr error
		out, opErr = op(ctx)
		return opErr
	})
	return out, err
}
