package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrDeadline is wrapped into the error returned by WithTimeout when the
// limit fires before fn returns.
var ErrDeadline = errors.New("deadline exceeded")

// WithTimeout runs fn with a derived context that is cancelled after the
// given timeout. A timeout yields an error matching both ErrDeadline and
// context.DeadlineExceeded; a cancelled parent yields the parent's error.
func WithTimeout(ctx context.Context, timeout time.Duration, name string, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- fn(timeoutCtx)
	}()
	select {
	case err := <-done:
		if err != nil && errors.Is(timeoutCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return fmt.Errorf("%s: %w: %w (limit: %v)", name, ErrDeadline, context.DeadlineExceeded, timeout)
		}
		return err
	case <-timeoutCtx.Done():
		if ctx.Err() != nil {
			return fmt.Errorf("%s: parent context cancelled: %w", name, ctx.Err())
		}
		return fmt.Errorf("%s: %w: %w (limit: %v)", name, ErrDeadline, context.DeadlineExceeded, timeout)
	}
}

// IsTimeout reports whether err came from an expired deadline.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrDeadline) || errors.Is(err, context.DeadlineExceeded)
}
