package eventstore

import (
	"context"
	"errors"
)

// RetryOnConflict runs fn up to attempts times while it fails with a
// concurrency conflict. fn must reload the stream on every call; version
// numbers from a failed attempt must not be reused.
func RetryOnConflict[T any](ctx context.Context, attempts int, fn func(ctx context.Context) (T, error)) (T, error) {
	if attempts < 1 {
		attempts = 1
	}
	var (
		result T
		err    error
	)
	for i := 0; i < attempts; i++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			if err != nil {
				return result, err
			}
			return result, ctxErr
		}
		result, err = fn(ctx)
		if err == nil || !errors.Is(err, ErrConcurrencyConflict) {
			return result, err
		}
	}
	return result, err
}
