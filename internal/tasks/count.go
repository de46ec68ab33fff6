package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/dagu-org/jobloop/internal/cmn/logger"
	"github.com/dagu-org/jobloop/internal/cmn/logger/tag"
	"github.com/dagu-org/jobloop/internal/core"
)

func init() {
	Register("count", "Yield a fixed number of times, optionally sleeping each step", Count)
}

// CountArgs are the arguments of Count.
type CountArgs struct {
	N     int           `mapstructure:"n"`
	Sleep time.Duration `mapstructure:"sleep"`
}

// Count yields N times. It is useful for exercising the scheduler.
func Count(_ context.Context, args ...any) (core.Step, error) {
	var a CountArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if a.N < 0 {
		return nil, fmt.Errorf("n must not be negative: %d", a.N)
	}
	return core.Iterate(a.N, func(ctx context.Context, i int) error {
		if a.Sleep > 0 {
			timer := time.NewTimer(a.Sleep)
			defer timer.Stop()
			select {
			case <-timer.C:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		logger.Debug(ctx, "Count", tag.Count(i+1), tag.Limit(a.N))
		return nil
	}, nil), nil
}
