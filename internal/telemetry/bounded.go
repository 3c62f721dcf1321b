package telemetry

import (
	"context"
	"time"

	"github.com/pavelc4/auriya/internal/errors"
)

type result[T any] struct {
	val T
	err error
}

// Bounded runs fn with a deadline of timeout. If fn has not returned by
// then, Bounded returns ErrTimeout and leaves fn running to finish on its
// own with a cancelled context; its result is discarded.
func Bounded[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan result[T], 1)
	go func() {
		v, err := fn(ctx)
		done <- result[T]{val: v, err: err}
	}()

	select {
	case r := <-done:
		return r.val, r.err
	case <-ctx.Done():
		var zero T
		return zero, errors.New().Wrap(ErrTimeout, ctx.Err())
	}
}
