package breaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errUpstream = errors.New("upstream failed")

func TestCircuitBreakerStartsClosed(t *testing.T) {
	cb := NewCircuitBreaker("t1", DefaultConfig())
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreakerOpensAfterConsecutiveFailureThreshold(t *testing.T) {
	cfg := Config{FailureThreshold: 3, ResetTimeout: time.Hour, HalfOpenMaxProbes: 1}
	cb := NewCircuitBreaker("t1", cfg)

	for i := 0; i < 3; i++ {
		err := cb.Execute(context.Background(), func(ctx context.Context) error { return errUpstream })
		assert.ErrorIs(t, err, errUpstream)
	}

	assert.Equal(t, StateOpen, cb.State())
}

func TestCircuitBreakerRejectsImmediatelyWhenOpen(t *testing.T) {
	cfg := Config{FailureThreshold: 1, ResetTimeout: time.Hour, HalfOpenMaxProbes: 1}
	cb := NewCircuitBreaker("t1", cfg)

	err := cb.Execute(context.Background(), func(ctx context.Context) error { return errUpstream })
	require.Error(t, err)
	require.Equal(t, StateOpen, cb.State())

	called := false
	err = cb.Execute(context.Background(), func(ctx context.Context) error {
		called = true
		return nil
	})
	assert.Error(t, err)
	assert.False(t, called, "an open breaker must reject without invoking fn")
}

func TestCircuitBreakerHalfOpenAllowsProbeAfterResetTimeout(t *testing.T) {
	cfg := Config{FailureThreshold: 1, ResetTimeout: 10 * time.Millisecond, HalfOpenMaxProbes: 1}
	cb := NewCircuitBreaker("t1", cfg)

	err := cb.Execute(context.Background(), func(ctx context.Context) error { return errUpstream })
	require.Error(t, err)
	require.Equal(t, StateOpen, cb.State())

	time.Sleep(20 * time.Millisecond)

	probeRan := false
	err = cb.Execute(context.Background(), func(ctx context.Context) error {
		probeRan = true
		return nil
	})
	assert.NoError(t, err)
	assert.True(t, probeRan, "after the reset timeout, one probe must be let through")
	assert.Equal(t, StateClosed, cb.State(), "a successful half-open probe closes the breaker")
}

func TestStateStringValues(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "half-open", StateHalfOpen.String())
	assert.Equal(t, "open", StateOpen.String())
}

func TestSetMetricsHookReceivesStateTransitions(t *testing.T) {
	var transitions []State
	SetMetricsHook(func(name string, s State) { transitions = append(transitions, s) })
	defer SetMetricsHook(nil)

	cfg := Config{FailureThreshold: 1, ResetTimeout: time.Hour, HalfOpenMaxProbes: 1}
	cb := NewCircuitBreaker("metrics-target", cfg)
	_ = cb.Execute(context.Background(), func(ctx context.Context) error { return errUpstream })

	require.NotEmpty(t, transitions)
	assert.Equal(t, StateOpen, transitions[len(transitions)-1])
}
