package resilience

import (
	"context"
	"fmt"
	"time"
)

// WithTimeout runs fn under a context that expires after timeout. A timeout
// of zero or less runs fn under ctx unchanged. fn must honour its context;
// WithTimeout returns as soon as the deadline passes even if fn has not.
func WithTimeout(ctx context.Context, timeout time.Duration, name string, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- fn(tctx) }()

	select {
	case err := <-done:
		return err
	case <-tctx.Done():
		if ctx.Err() != nil {
			return fmt.Errorf("%s: cancelled: %w", name, ctx.Err())
		}
		return fmt.Errorf("%s: %w after %v", name, context.DeadlineExceeded, timeout)
	}
}
