package client

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"time"
)

const maxRetryDelay = 5 * time.Second

// retrier re-runs one provider call on transient failures: network errors,
// 5xx answers and rate limiting. Create calls carry an idempotency key that
// is reused on every attempt, so a retried create never makes a second object.
type retrier struct {
	maxRetries  int64
	baseDelay   time.Duration
	callTimeout time.Duration
	logger      *slog.Logger
}

func retryable(err error) bool {
	return errors.Is(err, ErrProviderUnavailable) || errors.Is(err, ErrProviderRateLimited)
}

// do runs call until it succeeds, fails permanently or runs out of attempts.
// Errors returned by call are classified before the retry decision.
func (r *retrier) do(ctx context.Context, op string, call func(ctx context.Context) error) error {
	for attempt := int64(0); ; attempt++ {
		err := r.attempt(ctx, call)
		if err == nil {
			return nil
		}
		err = classifyError(op, err)

		if attempt >= r.maxRetries || !retryable(err) || ctx.Err() != nil {
			return err
		}

		delay := r.delay(attempt)
		r.logger.Warn("retrying payment provider call",
			"op", op,
			"attempt", attempt+1,
			"delay", delay,
			"error", err,
		)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return err
		}
	}
}

func (r *retrier) attempt(ctx context.Context, call func(ctx context.Context) error) error {
	if r.callTimeout <= 0 {
		return call(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()
	return call(ctx)
}

// delay is exponential in attempt, capped, with full jitter over the upper half.
func (r *retrier) delay(attempt int64) time.Duration {
	if r.baseDelay <= 0 {
		return 0
	}

	d := r.baseDelay << min(attempt, 16)
	if d <= 0 || d > maxRetryDelay {
		d = maxRetryDelay
	}

	half := int64(d / 2)
	return time.Duration(half + rand.Int64N(half+1))
}
