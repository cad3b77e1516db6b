package resilience

import (
	"context"
	"fmt"
	"time"
)

// WithTimeout runs fn under a context that expires after timeout and stops
// waiting once it does. fn keeps running in the background until it notices
// the cancelled context, so it must honour ctx. A non-positive timeout runs
// fn inline.
func WithTimeout(ctx context.Context, timeout time.Duration, name string, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	ctx2, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- fn(ctx2) }()

	select {
	case err := <-done:
		return err
	case <-ctx2.Done():
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s: parent context cancelled: %w", name, err)
		}
		return fmt.Errorf("%s: %w after %v", name, context.DeadlineExceeded, timeout)
	}
}
