// Package retry implements the Dispatcher's attempt loop backoff, grounded
// on internal/infra/resilience/retry.go's wrapper around
// github.com/sethvargo/go-retry (NewExponential -> WithJitter ->
// WithCappedDuration -> WithMaxRetries), adapted from a generic
// named-operation retrier to the Dispatcher's per-attempt/per-target retry
// semantics in spec §4.6 (the Dispatcher itself enforces "same target not
// retried consecutively"; this package only supplies the backoff/attempt
// budget primitive).
package retry

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/sethvargo/go-retry"
)

// Config mirrors the Dispatcher's retry knobs (spec §4.6/§3 Route.proxy).
type Config struct {
	MaxAttempts  int
	BaseDelay    time.Duration
	MaxDelay     time.Duration
}

// DefaultConfig returns conservative defaults used when a route does not
// override retry behavior.
func DefaultConfig() Config {
	return Config{MaxAttempts: 1, BaseDelay: 20 * time.Millisecond, MaxDelay: 200 * time.Millisecond}
}

// Retrier runs fn up to Config.MaxAttempts times with exponential backoff
// and jitter between attempts, stopping early on success or a
// non-retryable error.
type Retrier interface {
	Do(ctx context.Context, fn retry.RetryFunc) error
}

type retrier struct {
	backoff retry.Backoff
}

// NewRetrier builds a Retrier from cfg.
func NewRetrier(cfg Config) Retrier {
	b := retry.NewExponential(cfg.BaseDelay)
	b = retry.WithJitter(cfg.BaseDelay/2, b)
	b = retry.WithCappedDuration(cfg.MaxDelay, b)
	b = retry.WithMaxRetries(uint64(maxInt(cfg.MaxAttempts-1, 0)), b)
	return &retrier{backoff: b}
}

func (r *retrier) Do(ctx context.Context, fn retry.RetryFunc) error {
	return retry.Do(ctx, r.backoff, fn)
}

// Continue marks err as the reason to attempt again, signaling the go-retry
// loop underlying Retrier.Do to continue (subject to its own MaxAttempts
// budget). This is distinct from RetryableError below, which only affects
// DefaultIsRetryable's classification and has no bearing on Retrier.Do's
// control flow.
func Continue(err error) error {
	return retry.RetryableError(err)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// retryableError lets a caller mark a specific error instance retryable
// without it matching one of the structural categories below.
type retryableError struct{ err error }

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

// RetryableError marks err as retryable regardless of its underlying type.
func RetryableError(err error) error { return &retryableError{err: err} }

type temporaryError interface {
	Temporary() bool
}

// DefaultIsRetryable mirrors internal/infra/resilience/retry.go's
// DefaultIsRetryable: never retry context cancellation/deadline, always
// retry an explicitly marked RetryableError, retry net.Error timeouts and
// anything reporting Temporary() == true.
func DefaultIsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var re *retryableError
	if errors.As(err, &re) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	var tempErr temporaryError
	if errors.As(err, &tempErr) {
		return tempErr.Temporary()
	}
	return false
}
