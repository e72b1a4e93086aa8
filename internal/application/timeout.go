package application

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrDeadline is returned by Bounded when it stops waiting.
var ErrDeadline = errors.New("deadline exceeded")

type result[T any] struct {
	val T
	err error
}

// Bounded runs fn with a deadline of d. It stops waiting at the deadline even
// if fn ignores its context; fn keeps running in the background until it returns.
func Bounded[T any](ctx context.Context, d time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if d <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	done := make(chan result[T], 1)
	go func() {
		v, err := fn(ctx)
		done <- result[T]{val: v, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil && errors.Is(r.err, context.DeadlineExceeded) {
			return r.val, ErrDeadline
		}
		return r.val, r.err
	case <-ctx.Done():
		var zero T
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return zero, ErrDeadline
		}
		return zero, ctx.Err()
	}
}

// CallFailure wraps an error from a collaborator call. Deadlines become
// ErrTimeout and caller cancellation becomes ErrCanceled; everything else
// gets kind.
func CallFailure(kind error, op string, err error) error {
	switch {
	case errors.Is(err, ErrDeadline), errors.Is(err, context.DeadlineExceeded):
		kind = ErrTimeout
	case errors.Is(err, context.Canceled):
		kind = ErrCanceled
	}
	return Fail(kind, "", fmt.Errorf("%s: %w", op, err))
}
