// Package retry bounds repeated attempts of re-issuable remote calls.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	goretry "github.com/sethvargo/go-retry"
)

// Class tells Execute whether a failure is worth another attempt.
type Class int

const (
	NonRetryable Class = iota
	Retryable
)

// Policy is an exponential backoff with a hard attempt limit.
type Policy struct {
	// MaxAttempts counts the first call. Values below 1 mean 1.
	MaxAttempts  int
	InitialDelay time.Duration
	// MaxDelay caps a single wait. Zero means uncapped.
	MaxDelay time.Duration
	// Jitter is a percentage applied to every wait.
	Jitter uint64
}

// DefaultPolicy is three attempts with 2s/4s waits capped at 10s.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 3, InitialDelay: 2 * time.Second, MaxDelay: 10 * time.Second}
}

func (p Policy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

func (p Policy) backoff() goretry.Backoff {
	initial := p.InitialDelay
	if initial <= 0 {
		initial = time.Millisecond
	}
	b := goretry.NewExponential(initial)
	if p.MaxDelay > 0 {
		b = goretry.WithCappedDuration(p.MaxDelay, b)
	}
	if p.Jitter > 0 {
		b = goretry.WithJitterPercent(p.Jitter, b)
	}
	return goretry.WithMaxRetries(uint64(p.attempts()-1), b)
}

// ExhaustedError is returned when every attempt failed with a retryable
// error. It unwraps to the last failure.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("gave up after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// OnRetry observes a scheduled retry: attempt is the number of the failed
// attempt (1-based), delay the wait before the next one.
type OnRetry func(attempt int, delay time.Duration, err error)

// Execute runs op until it succeeds, classify reports NonRetryable, the
// policy runs out of attempts or ctx is done. A nil classify treats every
// error as non-retryable.
func Execute[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error), classify func(error) Class, onRetry OnRetry) (T, error) {
	var (
		result    T
		attempt   int
		last      error
		retryable bool
	)

	inner := p.backoff()
	b := goretry.BackoffFunc(func() (time.Duration, bool) {
		d, stop := inner.Next()
		if !stop && onRetry != nil {
			onRetry(attempt, d, last)
		}
		return d, stop
	})

	err := goretry.Do(ctx, b, func(ctx context.Context) error {
		attempt++
		v, err := op(ctx)
		if err == nil {
			result = v
			return nil
		}
		last = err
		retryable = classify != nil && classify(err) == Retryable
		if retryable {
			return goretry.RetryableError(err)
		}
		return err
	})

	switch {
	case err == nil:
		return result, nil
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		var zero T
		return zero, err
	case retryable:
		var zero T
		return zero, &ExhaustedError{Attempts: attempt, Err: last}
	default:
		var zero T
		return zero, err
	}
}
