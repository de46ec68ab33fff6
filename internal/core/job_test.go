package core_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dagu-org/jobloop/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countTo(n int) core.Task {
	return func(_ context.Context, _ ...any) (core.Step, error) {
		return core.Iterate(n, func(context.Context, int) error { return nil }, nil), nil
	}
}

func ReadLines(_ context.Context, _ ...any) (core.Step, error) {
	return core.Iterate(1, func(context.Context, int) error { return nil }, nil), nil
}

func TestNewJob_Deadline(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	start := now.Add(time.Hour)

	tests := []struct {
		name string
		opts []core.JobOption
		want time.Time
	}{
		{
			name: "StartAndDuration",
			opts: []core.JobOption{core.WithStartAt(start), core.WithMaxWorkingTime(10 * time.Second)},
			want: start.Add(10 * time.Second),
		},
		{
			name: "DurationOnly",
			opts: []core.JobOption{core.WithMaxWorkingTime(10 * time.Second)},
			want: now.Add(10 * time.Second),
		},
		{
			name: "StartOnly",
			opts: []core.JobOption{core.WithStartAt(start)},
		},
		{
			name: "Neither",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := append([]core.JobOption{core.WithClock(clock)}, tt.opts...)
			job, err := core.NewJob(countTo(1), opts...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, job.Deadline())
		})
	}
}

func TestNewJob_Validation(t *testing.T) {
	t.Parallel()

	_, err := core.NewJob(nil)
	require.ErrorIs(t, err, core.ErrTaskRequired)

	_, err = core.NewJob(countTo(1), core.WithTries(-1))
	require.Error(t, err)

	_, err = core.NewJob(countTo(1), core.WithDependencies(nil))
	require.Error(t, err)
}

func TestNewJob_Name(t *testing.T) {
	t.Parallel()

	job, err := core.NewJob(ReadLines)
	require.NoError(t, err)
	assert.Equal(t, "ReadLines", job.Name())
	assert.Equal(t, core.DefaultTries, job.TriesRemaining())

	job, err = core.NewJob(ReadLines, core.WithName("lorem"))
	require.NoError(t, err)
	assert.Equal(t, "lorem", job.Name())
}

func TestJob_Lifecycle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	job, err := core.NewJob(countTo(3))
	require.NoError(t, err)
	assert.Equal(t, core.JobUninitialized, job.Status())

	_, err = job.Advance(ctx)
	require.ErrorIs(t, err, core.ErrNotInitialized)

	require.NoError(t, job.Init(ctx))
	assert.Equal(t, core.JobReady, job.Status())

	for range 2 {
		done, err := job.Advance(ctx)
		require.NoError(t, err)
		assert.False(t, done)
		assert.Equal(t, core.JobRunning, job.Status())
	}
	done, err := job.Advance(ctx)
	require.NoError(t, err)
	assert.True(t, done)
}

func TestJob_ArgsAreBound(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	var got []any
	task := func(_ context.Context, args ...any) (core.Step, error) {
		got = args
		return core.StepFunc(func(context.Context, bool) (core.StepState, error) {
			return core.StepCompleted, nil
		}), nil
	}
	job, err := core.NewJob(task, core.WithArgs("a", 2))
	require.NoError(t, err)
	require.NoError(t, job.Init(ctx))
	assert.Equal(t, []any{"a", 2}, got)
}

func TestJob_Restart(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	inits := 0
	task := func(context.Context, ...any) (core.Step, error) {
		inits++
		return core.StepFunc(func(context.Context, bool) (core.StepState, error) {
			return core.StepYielded, errors.New("boom")
		}), nil
	}

	job, err := core.NewJob(task, core.WithTries(2))
	require.NoError(t, err)
	require.NoError(t, job.Init(ctx))

	_, err = job.Advance(ctx)
	require.Error(t, err)
	assert.EqualError(t, job.LastError(), "boom")

	require.NoError(t, job.Restart(ctx))
	require.NoError(t, job.Restart(ctx))
	assert.Equal(t, 0, job.TriesRemaining())
	assert.Equal(t, 2, job.Restarts())
	require.ErrorIs(t, job.Restart(ctx), core.ErrNoTriesLeft)
	assert.Equal(t, 3, inits)
}

func TestJob_CancelOnce(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	cleanups := 0
	task := func(context.Context, ...any) (core.Step, error) {
		return core.Iterate(10, func(context.Context, int) error { return nil }, func() error {
			cleanups++
			return nil
		}), nil
	}

	job, err := core.NewJob(task)
	require.NoError(t, err)
	require.NoError(t, job.Cancel(ctx), "cancel before init is a no-op")

	require.NoError(t, job.Init(ctx))
	_, err = job.Advance(ctx)
	require.NoError(t, err)

	require.NoError(t, job.Cancel(ctx))
	require.NoError(t, job.Cancel(ctx))
	assert.Equal(t, 1, cleanups)

	_, err = job.Advance(ctx)
	require.ErrorIs(t, err, core.ErrNotInitialized)
}

func TestJob_PanicIsFailure(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	task := func(context.Context, ...any) (core.Step, error) {
		return core.StepFunc(func(context.Context, bool) (core.StepState, error) {
			panic("kaboom")
		}), nil
	}
	job, err := core.NewJob(task)
	require.NoError(t, err)
	require.NoError(t, job.Init(ctx))

	_, err = job.Advance(ctx)
	require.ErrorIs(t, err, core.ErrStepPanicked)
	assert.Contains(t, err.Error(), "kaboom")
}

func TestJob_InitError(t *testing.T) {
	t.Parallel()

	boom := errors.New("cannot open")
	task := func(context.Context, ...any) (core.Step, error) { return nil, boom }
	job, err := core.NewJob(task, core.WithName("broken"))
	require.NoError(t, err)

	err = job.Init(context.Background())
	require.ErrorIs(t, err, boom)
	assert.Equal(t, core.JobUninitialized, job.Status())
}

func TestJob_Expired(t *testing.T) {
	t.Parallel()

	now := time.Now()
	job, err := core.NewJob(countTo(1), core.WithClock(func() time.Time { return now }), core.WithMaxWorkingTime(time.Second))
	require.NoError(t, err)

	assert.False(t, job.Expired(now))
	assert.True(t, job.Expired(now.Add(2*time.Second)))

	noDeadline, err := core.NewJob(countTo(1))
	require.NoError(t, err)
	assert.False(t, noDeadline.Expired(now.Add(24*time.Hour)))
}

func TestParseStartAt(t *testing.T) {
	t.Parallel()

	got, err := core.ParseStartAt("2026-10-19 08:30:00.250000")
	require.NoError(t, err)
	assert.True(t, time.Date(2026, 10, 19, 8, 30, 0, 250_000_000, time.Local).Equal(got))

	got, err = core.ParseStartAt("")
	require.NoError(t, err)
	assert.True(t, got.IsZero())

	_, err = core.ParseStartAt("tomorrow")
	require.Error(t, err)
}
