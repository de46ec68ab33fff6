package core

import (
	"context"
	"fmt"
	"reflect"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/dagu-org/jobloop/internal/cmn/stringutil"
)

// DefaultTries is the retry budget of a job built without WithTries.
const DefaultTries = 3

// Job is a schedulable unit: a task bound to fixed arguments together with
// its start time, deadline, retry budget and dependencies.
type Job struct {
	name          string
	task          Task
	args          []any
	startAt       time.Time
	deadline      time.Time
	maxWorkTime   time.Duration
	retryInterval time.Duration
	dependencies  []*Job

	mu       sync.Mutex
	status   JobStatus
	tries    int
	restarts int
	step     Step
	gates    []*Gate
	lastErr  error
}

// JobOption configures NewJob.
type JobOption func(*jobOptions)

type jobOptions struct {
	name          string
	args          []any
	startAt       time.Time
	maxWorkTime   time.Duration
	tries         int
	retryInterval time.Duration
	dependencies  []*Job
	now           func() time.Time
}

// WithName overrides the name derived from the task function.
func WithName(name string) JobOption {
	return func(o *jobOptions) { o.name = name }
}

// WithArgs binds the arguments passed to the task on every initialization.
func WithArgs(args ...any) JobOption {
	return func(o *jobOptions) { o.args = args }
}

// WithStartAt delays the job until t.
func WithStartAt(t time.Time) JobOption {
	return func(o *jobOptions) { o.startAt = t }
}

// ParseStartAt parses a start time written as "2006-01-02 15:04:05.000000"
// or RFC 3339. An empty string yields the zero time.
func ParseStartAt(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := stringutil.ParseTime(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid start time: %w", err)
	}
	return t, nil
}

// WithMaxWorkingTime sets the time budget used to compute the deadline.
func WithMaxWorkingTime(d time.Duration) JobOption {
	return func(o *jobOptions) { o.maxWorkTime = d }
}

// WithTries sets how many times the job may be restarted after a failure.
func WithTries(n int) JobOption {
	return func(o *jobOptions) { o.tries = n }
}

// WithRetryInterval delays a restarted job before it re-enters the ready
// queue. Successive restarts back off exponentially from this interval.
func WithRetryInterval(d time.Duration) JobOption {
	return func(o *jobOptions) { o.retryInterval = d }
}

// WithDependencies makes the job wait until every given job has completed.
func WithDependencies(jobs ...*Job) JobOption {
	return func(o *jobOptions) { o.dependencies = append(o.dependencies, jobs...) }
}

// WithClock replaces time.Now when computing the deadline.
func WithClock(now func() time.Time) JobOption {
	return func(o *jobOptions) { o.now = now }
}

// NewJob creates a job for task. The deadline is fixed here: startAt plus
// the working time when both are set, now plus the working time when only
// the duration is set, and no deadline otherwise.
func NewJob(task Task, opts ...JobOption) (*Job, error) {
	if task == nil {
		return nil, ErrTaskRequired
	}

	o := jobOptions{tries: DefaultTries, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.tries < 0 {
		return nil, fmt.Errorf("invalid tries %d: must not be negative", o.tries)
	}
	if o.maxWorkTime < 0 {
		return nil, fmt.Errorf("invalid max working time %s: must not be negative", o.maxWorkTime)
	}
	for _, dep := range o.dependencies {
		if dep == nil {
			return nil, fmt.Errorf("job %q: nil dependency", o.name)
		}
	}

	name := o.name
	if name == "" {
		name = TaskName(task)
	}

	var deadline time.Time
	switch {
	case o.maxWorkTime > 0 && !o.startAt.IsZero():
		deadline = o.startAt.Add(o.maxWorkTime)
	case o.maxWorkTime > 0:
		deadline = o.now().Add(o.maxWorkTime)
	}

	return &Job{
		name:          name,
		task:          task,
		args:          o.args,
		startAt:       o.startAt,
		deadline:      deadline,
		maxWorkTime:   o.maxWorkTime,
		retryInterval: o.retryInterval,
		dependencies:  o.dependencies,
		tries:         o.tries,
	}, nil
}

// TaskName derives a job name from the task function's identifier with the
// package path removed, e.g. "ReadLines" for tasks.ReadLines.
func TaskName(task Task) string {
	fn := runtime.FuncForPC(reflect.ValueOf(task).Pointer())
	if fn == nil {
		return "task"
	}
	name := fn.Name()
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	if i := strings.Index(name, "."); i >= 0 {
		name = name[i+1:]
	}
	return name
}

// Name returns the job name, which is also its key in the state store.
func (j *Job) Name() string { return j.name }

// StartAt returns the delayed start time, or the zero time.
func (j *Job) StartAt() time.Time { return j.startAt }

// Deadline returns the absolute deadline, or the zero time.
func (j *Job) Deadline() time.Time { return j.deadline }

// MaxWorkingTime returns the time budget the deadline was computed from.
func (j *Job) MaxWorkingTime() time.Duration { return j.maxWorkTime }

// RetryInterval returns the base delay before a restarted job is requeued.
func (j *Job) RetryInterval() time.Duration { return j.retryInterval }

// Dependencies returns the jobs that must complete first.
func (j *Job) Dependencies() []*Job { return j.dependencies }

// HasDependencies reports whether the job must wait for other jobs.
func (j *Job) HasDependencies() bool { return len(j.dependencies) > 0 }

// Expired reports whether the deadline is set and has passed at now.
func (j *Job) Expired(now time.Time) bool {
	return !j.deadline.IsZero() && now.After(j.deadline)
}

// Status returns the current lifecycle phase.
func (j *Job) Status() JobStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}

// SetStatus records a lifecycle transition.
func (j *Job) SetStatus(s JobStatus) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.status = s
}

// TriesRemaining returns how many restarts are left.
func (j *Job) TriesRemaining() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.tries
}

// Restarts returns how many times the job has been restarted.
func (j *Job) Restarts() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.restarts
}

// LastError returns the most recent step failure, if any.
func (j *Job) LastError() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.lastErr
}

// Init builds a fresh step from the task, discarding any previous progress.
func (j *Job) Init(ctx context.Context) error {
	step, err := j.task(ctx, j.args...)
	if err != nil {
		j.recordError(err)
		return fmt.Errorf("failed to initialize job %s: %w", j.name, err)
	}
	if step == nil {
		err := fmt.Errorf("failed to initialize job %s: task returned no step", j.name)
		j.recordError(err)
		return err
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	j.step = step
	j.status = JobReady
	return nil
}

// Advance resumes the step once with proceed set. It reports done when the
// step has no more work. A panic inside the step is returned as an error
// wrapping ErrStepPanicked.
func (j *Job) Advance(ctx context.Context) (done bool, err error) {
	j.mu.Lock()
	step := j.step
	if step != nil {
		j.status = JobRunning
	}
	j.mu.Unlock()

	if step == nil {
		return false, ErrNotInitialized
	}

	state, err := j.resume(ctx, step, true)
	if err != nil {
		j.recordError(err)
		return false, err
	}
	return state == StepCompleted, nil
}

// Cancel resumes the step once with proceed cleared so it can release its
// resources. The step is dropped afterwards; Cancel on an uninitialized or
// already cancelled job is a no-op.
func (j *Job) Cancel(ctx context.Context) error {
	j.mu.Lock()
	step := j.step
	j.step = nil
	j.mu.Unlock()

	if step == nil {
		return nil
	}
	_, err := j.resume(ctx, step, false)
	return err
}

// Restart spends one try and initializes the job again.
func (j *Job) Restart(ctx context.Context) error {
	j.mu.Lock()
	if j.tries <= 0 {
		j.mu.Unlock()
		return ErrNoTriesLeft
	}
	j.tries--
	j.restarts++
	j.step = nil
	j.mu.Unlock()

	return j.Init(ctx)
}

// ReleaseDependents opens or aborts every gate this job feeds. A nil err
// means the job completed.
func (j *Job) ReleaseDependents(err error) {
	j.mu.Lock()
	gates := j.gates
	j.mu.Unlock()

	for _, g := range gates {
		if err == nil {
			g.Signal(j)
		} else {
			g.Abort(j, err)
		}
	}
}

func (j *Job) addGate(g *Gate) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.gates = append(j.gates, g)
}

func (j *Job) recordError(err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.lastErr = err
}

// String describes the job for logs.
func (j *Job) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "job %s", j.name)
	if !j.startAt.IsZero() {
		fmt.Fprintf(&b, " start-at=%s", j.startAt.Format(time.DateTime))
	}
	if !j.deadline.IsZero() {
		fmt.Fprintf(&b, " deadline=%s", j.deadline.Format(time.DateTime))
	}
	fmt.Fprintf(&b, " tries=%d", j.TriesRemaining())
	return b.String()
}

func (j *Job) resume(ctx context.Context, step Step, proceed bool) (state StepState, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrStepPanicked, r)
		}
	}()
	return step.Resume(withJob(ctx, j), proceed)
}
