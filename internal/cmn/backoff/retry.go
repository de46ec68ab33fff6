package backoff

import (
	"context"
	"time"
)

// Operation to retry.
type Operation func(ctx context.Context) error

// Retry runs op until it succeeds, the policy gives up, or ctx is done.
// The error of the last attempt is returned when retries are exhausted.
func Retry(ctx context.Context, op Operation, policy RetryPolicy) error {
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := op(ctx)
		if err == nil {
			return nil
		}

		interval, perr := policy.ComputeNextInterval(attempt)
		if perr != nil {
			return err
		}
		if interval <= 0 {
			continue
		}

		timer := time.NewTimer(interval)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}
