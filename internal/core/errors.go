package core

import "errors"

var (
	// ErrNoTriesLeft is returned by Restart when the retry budget is spent.
	ErrNoTriesLeft = errors.New("no tries left")
	// ErrNotInitialized is returned when a job is resumed before Init.
	ErrNotInitialized = errors.New("job is not initialized")
	// ErrDeadlineExceeded marks a job cancelled because its deadline passed.
	ErrDeadlineExceeded = errors.New("deadline exceeded")
	// ErrTaskRequired is returned by NewJob when no task is given.
	ErrTaskRequired = errors.New("task is required")
	// ErrDependencyFailed is reported by a gate whose dependency did not complete.
	ErrDependencyFailed = errors.New("dependency did not complete")
	// ErrStepPanicked wraps a panic recovered from a step.
	ErrStepPanicked = errors.New("step panicked")
)
