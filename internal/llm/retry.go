package llm

import (
	"context"
	"errors"
)

// RetryWithContext calls fn up to maxTries times until it succeeds or ctx
// is done. Cancellation is returned immediately and never retried.
func RetryWithContext[T any](ctx context.Context, maxTries int, fn func(context.Context) (T, error)) (T, error) {
	if maxTries <= 0 {
		maxTries = 1
	}
	var zero T
	var lastErr error
	for i := 0; i < maxTries; i++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return zero, err
		}
		lastErr = err
	}
	return zero, lastErr
}
