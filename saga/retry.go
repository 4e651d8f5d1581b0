package saga

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
)

type transientError interface {
	IsTransient() bool
}

func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var sagaErr *Error
	if errors.As(err, &sagaErr) {
		return sagaErr.Reason == REASON_TRANSIENT_ERROR
	}

	var te transientError
	if errors.As(err, &te) {
		return te.IsTransient()
	}
	return false
}

// retryCall runs op with a per call timeout, retrying transient failures
// with exponential backoff. A timeout counts as transient.
func retryCall[T any](ctx context.Context, cfg Config, timeout time.Duration, op func(ctx context.Context) (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.InitialBackoff
	b.MaxInterval = cfg.MaxBackoff

	return backoff.Retry(ctx, func() (T, error) {
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		v, err := op(callCtx)
		if err == nil {
			return v, nil
		}
		if ctx.Err() != nil || !isTransient(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(cfg.MaxTries))
}
