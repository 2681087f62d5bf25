// Package breaker implements the per-Target circuit breaker (spec §4.3),
// grounded on internal/infra/resilience/circuit_breaker.go's wrapper around
// github.com/sony/gobreaker: same options pattern, same onStateChange
// logging/metrics hook, same State enum translation, adapted to log via
// go.uber.org/zap (this module's ambient logger) instead of *slog.Logger.
package breaker

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/iruldev/gatewaycore/internal/gwerrors"
)

// State mirrors gobreaker's state but is named per spec §3/§4.3.
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

func goStateToState(s gobreaker.State) State {
	switch s {
	case gobreaker.StateClosed:
		return StateClosed
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	case gobreaker.StateOpen:
		return StateOpen
	default:
		return StateClosed
	}
}

// Config mirrors spec §3 CircuitBreaker fields.
type Config struct {
	FailureThreshold  uint32
	ResetTimeout      time.Duration
	HalfOpenMaxProbes uint32
}

// DefaultConfig mirrors spec §3 defaults.
func DefaultConfig() Config {
	return Config{
		FailureThreshold:  5,
		ResetTimeout:      30 * time.Second,
		HalfOpenMaxProbes: 1,
	}
}

// CircuitBreaker is the per-target gate the Dispatcher consults before and
// reports to after every attempt.
type CircuitBreaker interface {
	Execute(ctx context.Context, fn func(ctx context.Context) error) error
	State() State
	Name() string
}

type circuitBreaker struct {
	name string
	cb   *gobreaker.CircuitBreaker
	log  *zap.Logger
}

// Option configures a CircuitBreaker at construction.
type Option func(*circuitBreaker)

// WithLogger attaches a zap.Logger for state-transition logging.
func WithLogger(log *zap.Logger) Option {
	return func(c *circuitBreaker) { c.log = log }
}

// NewCircuitBreaker builds a CircuitBreaker named name, gating one Target.
func NewCircuitBreaker(name string, cfg Config, opts ...Option) CircuitBreaker {
	c := &circuitBreaker{name: name, log: zap.NewNop()}
	for _, opt := range opts {
		opt(c)
	}

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.HalfOpenMaxProbes,
		Timeout:     cfg.ResetTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.log.Info("circuit breaker state change",
				zap.String("target", name),
				zap.String("from", goStateToState(from).String()),
				zap.String("to", goStateToState(to).String()),
			)
			recordTransition(name, goStateToState(to))
		},
	}
	c.cb = gobreaker.NewCircuitBreaker(settings)
	return c
}

// Execute runs fn gated by the breaker. It returns gwerrors.ErrBreakerOpen
// (wrapped) immediately when the breaker is Open, matching spec §4.3 ("rejects
// dispatch immediately with a dedicated breaker-open error").
func (c *circuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := c.cb.Execute(func() (any, error) {
		return nil, fn(ctx)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return gwerrors.New("breaker", gwerrors.KindUpstreamUnavailable, gwerrors.CodeCircuitBreakerOpen,
			"circuit breaker open for target "+c.name, gwerrors.ErrBreakerOpen)
	}
	return err
}

func (c *circuitBreaker) State() State { return goStateToState(c.cb.State()) }
func (c *circuitBreaker) Name() string { return c.name }

// recordTransition is a seam for internal/observability metrics without an
// import cycle; wired by internal/gateway at startup via SetMetricsHook.
var metricsHook func(name string, s State)

// SetMetricsHook installs the package-level hook invoked on every breaker
// state transition. Called once from internal/gateway during wiring.
func SetMetricsHook(fn func(name string, s State)) { metricsHook = fn }

func recordTransition(name string, s State) {
	if metricsHook != nil {
		metricsHook(name, s)
	}
}
