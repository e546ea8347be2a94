// Package retry wraps every external call the pipeline makes (embedding,
// index search, classification, generation) in one explicit policy: a bounded
// number of attempts, exponential backoff between them, and a per-attempt
// timeout derived from the caller's context.
package retry

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/54b3r/flarerag-go/internal/logging"
)

// Policy is the retry configuration shared by all pipeline stages.
// The zero value performs a single attempt with no timeout.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// InitialBackoff is the wait before the second attempt.
	InitialBackoff time.Duration

	// MaxBackoff caps the wait between attempts.
	MaxBackoff time.Duration

	// CallTimeout bounds each individual attempt. Zero disables it.
	CallTimeout time.Duration

	// OnRetry, when set, is called before each backoff sleep with the
	// operation name, the attempt that just failed, and the error.
	OnRetry func(op string, attempt int, err error)
}

// DefaultPolicy returns the policy used when nothing is configured.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:    3,
		InitialBackoff: 250 * time.Millisecond,
		MaxBackoff:     2 * time.Second,
		CallTimeout:    30 * time.Second,
	}
}

// Permanent marks err as not worth retrying. Do returns the unwrapped error
// immediately.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Do runs fn until it succeeds, returns a Permanent error, the attempts are
// exhausted, or ctx is done. Each attempt receives its own context bounded by
// CallTimeout. It returns the value of the successful attempt, the number of
// attempts made, and the last error.
func Do[T any](ctx context.Context, p Policy, op string, fn func(context.Context) (T, error)) (T, int, error) {
	var (
		out      T
		attempts int
	)

	operation := func() error {
		attempts++
		callCtx, cancel := p.callContext(ctx)
		defer cancel()

		v, err := fn(callCtx)
		if err != nil {
			if ctx.Err() != nil {
				// The request itself is gone; further attempts cannot help.
				return backoff.Permanent(err)
			}
			return err
		}
		out = v
		return nil
	}

	notify := func(err error, wait time.Duration) {
		logging.FromContext(ctx).Warn("retry: attempt failed",
			slog.String("op", op),
			slog.Int("attempt", attempts),
			slog.Duration("backoff", wait),
			slog.String("error", err.Error()),
		)
		if p.OnRetry != nil {
			p.OnRetry(op, attempts, err)
		}
	}

	err := backoff.RetryNotify(operation, p.backOff(ctx), notify)
	return out, attempts, err
}

// backOff builds the backoff schedule for one Do invocation.
func (p Policy) backOff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	if p.InitialBackoff > 0 {
		exp.InitialInterval = p.InitialBackoff
	}
	if p.MaxBackoff > 0 {
		exp.MaxInterval = p.MaxBackoff
	}
	// Attempts, not wall time, bound the loop.
	exp.MaxElapsedTime = 0

	retries := p.MaxAttempts - 1
	if retries < 0 {
		retries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(retries)), ctx)
}

func (p Policy) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.CallTimeout > 0 {
		return context.WithTimeout(ctx, p.CallTimeout)
	}
	return context.WithCancel(ctx)
}
