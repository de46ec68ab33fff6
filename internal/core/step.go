package core

import "context"

// StepState is what a step reports after a successful resumption.
type StepState int

const (
	// StepYielded means more work remains and the step wants to be resumed.
	StepYielded StepState = iota
	// StepCompleted means the step has no more work.
	StepCompleted
)

func (s StepState) String() string {
	if s == StepCompleted {
		return "completed"
	}
	return "yielded"
}

// Step is a resumable unit of work. Each call to Resume performs one bounded
// increment and returns control to the scheduler.
//
// When proceed is false the step must stop working and release whatever it
// holds (files, connections) before returning. A non-nil error means this
// resumption failed; the scheduler decides whether to restart the job.
type Step interface {
	Resume(ctx context.Context, proceed bool) (StepState, error)
}

// Task creates a fresh Step from the arguments bound to a job.
// It is called once per initialization, so every retry starts from scratch.
type Task func(ctx context.Context, args ...any) (Step, error)

// StepFunc adapts an ordinary function to the Step interface.
type StepFunc func(ctx context.Context, proceed bool) (StepState, error)

// Resume implements Step.
func (f StepFunc) Resume(ctx context.Context, proceed bool) (StepState, error) {
	return f(ctx, proceed)
}

// Iterate returns a Step that calls fn once per resumption for i in [0, n)
// and completes after the last increment. cleanup, if not nil, runs exactly
// once: after the last increment, after a failing increment, or when the step
// is told to stop.
func Iterate(n int, fn func(ctx context.Context, i int) error, cleanup func() error) Step {
	return &iterator{n: n, fn: fn, cleanup: cleanup}
}

type iterator struct {
	n       int
	i       int
	fn      func(ctx context.Context, i int) error
	cleanup func() error
	closed  bool
}

func (it *iterator) Resume(ctx context.Context, proceed bool) (StepState, error) {
	if !proceed {
		return StepCompleted, it.close()
	}
	if it.i >= it.n {
		return StepCompleted, it.close()
	}
	if err := it.fn(ctx, it.i); err != nil {
		_ = it.close()
		return StepYielded, err
	}
	it.i++
	if it.i >= it.n {
		return StepCompleted, it.close()
	}
	return StepYielded, nil
}

func (it *iterator) close() error {
	if it.closed || it.cleanup == nil {
		it.closed = true
		return nil
	}
	it.closed = true
	return it.cleanup()
}
