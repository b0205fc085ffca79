// Package retry wraps outbound calls with bounded exponential backoff.
//
// Failures are classified as retryable (5xx, rate limiting, connection
// refused, timeouts, DNS failures) or terminal. Terminal failures are
// returned to the caller on the first attempt; retryable ones are retried
// with a delay of base*2^attempt until the retry budget is spent.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const (
	// DefaultMaxRetries is the number of retries after the first attempt
	DefaultMaxRetries = 3

	// DefaultBaseDelay is the delay before the first retry
	DefaultBaseDelay = time.Second
)

// Policy controls how an operation is retried.
type Policy struct {
	// MaxRetries is the number of retries after the first attempt.
	// The operation runs at most MaxRetries+1 times.
	MaxRetries int

	// BaseDelay is the delay before the first retry. It doubles on every
	// subsequent retry.
	BaseDelay time.Duration

	// AttemptTimeout bounds every individual attempt. Zero means no
	// per-attempt deadline beyond the caller's context.
	AttemptTimeout time.Duration
}

// DefaultPolicy returns the policy used when none is configured.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries: DefaultMaxRetries,
		BaseDelay:  DefaultBaseDelay,
	}
}

// Validate checks that the policy values are usable.
func (p Policy) Validate() error {
	if p.MaxRetries < 0 {
		return fmt.Errorf("maxRetries must be non-negative, got %d", p.MaxRetries)
	}
	if p.BaseDelay < 0 {
		return fmt.Errorf("baseDelay must be non-negative, got %s", p.BaseDelay)
	}
	if p.AttemptTimeout < 0 {
		return fmt.Errorf("attemptTimeout must be non-negative, got %s", p.AttemptTimeout)
	}
	return nil
}

// doublingBackOff feeds Policy.Delay to backoff so the schedule is exactly
// base*2^attempt.
type doublingBackOff struct {
	policy  Policy
	attempt int
}

func (b *doublingBackOff) NextBackOff() time.Duration {
	d := b.policy.Delay(b.attempt)
	b.attempt++
	return d
}

func (b *doublingBackOff) Reset() {
	b.attempt = 0
}

// Do runs op until it succeeds, fails with a terminal error, or the retry
// budget is exhausted. The last error is returned in the latter two cases.
func Do[T any](ctx context.Context, p Policy, name string, op func(ctx context.Context) (T, error)) (T, error) {
	return do(ctx, p, name, op, nil)
}

// do is Do with an extra observer of every scheduled wait.
func do[T any](
	ctx context.Context,
	p Policy,
	name string,
	op func(ctx context.Context) (T, error),
	onWait func(next time.Duration),
) (T, error) {
	attempt := 0
	operation := func() (T, error) {
		attempt++
		attemptCtx := ctx
		if p.AttemptTimeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, p.AttemptTimeout)
			defer cancel()
		}

		res, err := op(attemptCtx)
		if err == nil {
			return res, nil
		}
		// A cancelled parent context is never worth another attempt.
		if ctx.Err() != nil || !IsRetryable(err) {
			return res, backoff.Permanent(err)
		}
		return res, err
	}

	res, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(&doublingBackOff{policy: p}),
		backoff.WithMaxTries(uint(p.MaxRetries)+1),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			if onWait != nil {
				onWait(next)
			}
			slog.WarnContext(ctx, "Retrying operation after transient failure",
				"operation", name,
				"attempt", attempt,
				"max_retries", p.MaxRetries,
				"next_delay", next,
				"error", err)
		}),
	)
	if err != nil {
		// The final attempt may still carry the permanent marker.
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			err = perm.Unwrap()
		}
		return res, err
	}
	return res, nil
}

// Delay returns the wait before retry number attempt (zero based) under p.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		return 0
	}
	if attempt > 30 {
		attempt = 30
	}
	return p.BaseDelay * time.Duration(1<<uint(attempt))
}
