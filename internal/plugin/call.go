package plugin

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrTimeout is returned by Call when the per-call deadline expires.
var ErrTimeout = errors.New("plugin call timed out")

// Call runs fn with a deadline of timeout (no deadline when timeout <= 0).
// It returns as soon as the deadline passes even if fn ignores its context,
// and converts a panic in fn into an error. The goroutine running fn is left
// to finish on its own; its result is discarded.
func Call[T any](ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	callCtx := ctx
	cancel := context.CancelFunc(func() {})
	if timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	type outcome struct {
		val T
		err error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				var zero T
				done <- outcome{val: zero, err: fmt.Errorf("plugin panic: %v", r)}
			}
		}()
		v, err := fn(callCtx)
		done <- outcome{val: v, err: err}
	}()

	select {
	case out := <-done:
		return out.val, out.err
	case <-callCtx.Done():
		var zero T
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		return zero, fmt.Errorf("%w after %s", ErrTimeout, timeout)
	}
}

// Do is Call for functions that only return an error.
func Do(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) error {
	_, err := Call(ctx, timeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}
