package services

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

const defaultMaxJitter = 150 * time.Millisecond

// startTimer returns a channel that fires after d and a func that stops it.
var startTimer = func(d time.Duration) (<-chan time.Time, func() bool) {
	t := time.NewTimer(d)
	return t.C, t.Stop
}

// RetryPolicy bounds a single WithRetry call. Each call starts a fresh attempt count.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxJitter   time.Duration

	// OnRetry is called before each wait with the failed attempt number.
	OnRetry func(attempt int, err error, delay time.Duration)
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 4, BaseDelay: 500 * time.Millisecond, MaxJitter: defaultMaxJitter}
}

type permanentError struct {
	err error
}

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// WithRetry runs op until it succeeds, returns a permanent error, or the policy
// is exhausted. The last error is returned as op produced it; a Permanent mark
// is stripped. Waits happen only between attempts.
func WithRetry[T any](ctx context.Context, policy RetryPolicy, op func(ctx context.Context) (T, error)) (T, error) {
	attempts := max(policy.MaxAttempts, 1)

	var (
		zero    T
		lastErr error
	)

	for attempt := 1; attempt <= attempts; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}

		var p *permanentError
		if errors.As(err, &p) {
			return zero, p.err
		}
		lastErr = err

		if attempt == attempts {
			break
		}

		delay := policy.backoff(attempt)
		if policy.OnRetry != nil {
			policy.OnRetry(attempt, err, delay)
		}
		if waitErr := waitFor(ctx, delay); waitErr != nil {
			return zero, lastErr
		}
	}

	return zero, lastErr
}

// backoff is BaseDelay*2^(attempt-1) plus up to MaxJitter of random jitter.
func (p RetryPolicy) backoff(attempt int) time.Duration {
	delay := p.BaseDelay << (attempt - 1)
	if p.MaxJitter > 0 {
		delay += rand.N(p.MaxJitter)
	}
	return delay
}

func waitFor(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil || d <= 0 {
		return err
	}

	fired, stop := startTimer(d)
	select {
	case <-ctx.Done():
		stop()
		return ctx.Err()
	case <-fired:
		return nil
	}
}
