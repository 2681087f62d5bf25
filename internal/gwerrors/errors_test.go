package gwerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorIncludesOpMessageAndWrappedError(t *testing.T) {
	wrapped := errors.New("boom")
	ge := New("dispatcher", KindUpstreamTransport, CodeUpstreamTransport, "upstream failed", wrapped)

	assert.Equal(t, "dispatcher: upstream failed: boom", ge.Error())
	assert.ErrorIs(t, ge, wrapped, "Unwrap must expose the wrapped error to errors.Is")
}

func TestErrorWithoutWrappedErrorOmitsTrailer(t *testing.T) {
	ge := New("routetable", KindRoute, CodeNotFound, "no matching route", nil)
	assert.Equal(t, "routetable: no matching route", ge.Error())
}

func TestAsExtractsGatewayErrorThroughWrapping(t *testing.T) {
	ge := New("breaker", KindUpstreamUnavailable, CodeCircuitBreakerOpen, "open", ErrBreakerOpen)
	wrapped := fmt.Errorf("dispatch attempt failed: %w", ge)

	got, ok := As(wrapped)
	require.True(t, ok)
	assert.Equal(t, CodeCircuitBreakerOpen, got.Code)
}

func TestAsReturnsFalseForPlainError(t *testing.T) {
	_, ok := As(errors.New("plain"))
	assert.False(t, ok)
}

func TestSentinelErrorsAreDistinctAndStable(t *testing.T) {
	sentinels := []error{ErrNoEligibleTarget, ErrBreakerOpen, ErrRouteNotFound, ErrMethodNotAllowed}
	for i, a := range sentinels {
		for j, b := range sentinels {
			if i == j {
				continue
			}
			assert.NotErrorIs(t, a, b)
		}
	}
}
