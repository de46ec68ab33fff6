package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dagu-org/jobloop/internal/cmn/backoff"
	"github.com/dagu-org/jobloop/internal/cmn/logger"
	"github.com/dagu-org/jobloop/internal/cmn/logger/tag"
	"github.com/dagu-org/jobloop/internal/core"
	"github.com/google/uuid"
)

var (
	// ErrAdmissionRejected is returned by Schedule when the pending pool is full.
	ErrAdmissionRejected = errors.New("admission rejected: pending pool is full")
	// ErrAlreadyRunning is returned when Run is entered twice.
	ErrAlreadyRunning = errors.New("scheduler is already running")
	// ErrStopped is returned by Schedule after Stop.
	ErrStopped = errors.New("scheduler is stopped")

	errStopRequested = errors.New("scheduler stopped")
)

const (
	defaultPoolSize     = 10
	defaultPollInterval = 300 * time.Millisecond
)

// StateStore records whether a job, by name, has completed.
type StateStore interface {
	Get(ctx context.Context, key string) (value, ok bool)
	Set(ctx context.Context, key string, value bool) error
}

// Clock is a function that returns the current time.
// It can be replaced for testing purposes.
type Clock func() time.Time

// Config holds the scheduler settings.
type Config struct {
	// PoolSize bounds the number of admitted jobs waiting to be started.
	PoolSize int
	// PollInterval is how long the loop idles while only timers and
	// dependency waiters are active.
	PollInterval time.Duration
	// Clock defaults to time.Now.
	Clock Clock
}

// Scheduler runs admitted jobs round-robin on a single goroutine, one step
// at a time, and records the outcome of every job in a StateStore.
type Scheduler struct {
	store        StateStore
	poolSize     int
	pollInterval time.Duration
	clock        Clock
	running      atomic.Bool

	mu       sync.Mutex
	ready    *readyQueue
	pending  []*core.Job
	released []*core.Job // dependencies completed, not yet initialized
	admitted map[*core.Job]struct{}
	order    []*core.Job
	timers   map[*core.Job]*time.Timer
	waiters  int
	stopped  bool
	stopCh   chan struct{}

	// cancelled holds jobs stopped off the loop goroutine. Their steps are
	// resumed with proceed=false by the loop before Run returns.
	cancelled []*core.Job
	// inflight counts timer callbacks and dependency waiters.
	inflight sync.WaitGroup
}

// New creates a Scheduler that persists job outcomes in store.
func New(store StateStore, cfg Config) *Scheduler {
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = defaultPoolSize
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Scheduler{
		store:        store,
		poolSize:     cfg.PoolSize,
		pollInterval: cfg.PollInterval,
		clock:        cfg.Clock,
		ready:        newReadyQueue(),
		admitted:     make(map[*core.Job]struct{}),
		timers:       make(map[*core.Job]*time.Timer),
		stopCh:       make(chan struct{}),
	}
}

// Schedule admits job. A job already recorded as completed is skipped. A job
// with dependencies is admitted together with every dependency that is not
// yet admitted or completed, and starts only after all of them complete.
// The whole group is rejected with ErrAdmissionRejected if it does not fit
// in the pending pool.
func (s *Scheduler) Schedule(ctx context.Context, job *core.Job) error {
	if job == nil {
		return errors.New("job is nil")
	}
	ctx = logger.WithValues(ctx, tag.Job(job.Name()))

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrStopped
	}

	var group []*core.Job
	s.collect(ctx, job, make(map[*core.Job]struct{}), &group)
	if len(group) == 0 {
		return nil
	}

	if len(s.pending)+len(group) > s.poolSize {
		logger.Error(ctx, "Admission rejected: pending pool is full",
			tag.Count(len(s.pending)+len(group)),
			tag.Limit(s.poolSize),
		)
		return fmt.Errorf("%w: %s", ErrAdmissionRejected, job.Name())
	}

	for _, j := range group {
		s.admitted[j] = struct{}{}
		s.order = append(s.order, j)
		j.SetStatus(core.JobUninitialized)
		if j.HasDependencies() {
			s.watchDependencies(ctx, j)
			continue
		}
		s.pending = append(s.pending, j)
		logger.Debug(ctx, "Job admitted", slog.String("admitted", j.Name()), tag.Count(len(s.pending)))
	}
	logger.Info(ctx, "Job scheduled", tag.Count(len(group)))
	return nil
}

// collect appends job and its not yet admitted dependencies to group,
// dependencies first. The caller must hold s.mu.
func (s *Scheduler) collect(ctx context.Context, job *core.Job, seen map[*core.Job]struct{}, group *[]*core.Job) {
	if _, ok := seen[job]; ok {
		return
	}
	seen[job] = struct{}{}

	if _, ok := s.admitted[job]; ok {
		return
	}
	if s.completed(ctx, job) {
		return
	}
	for _, dep := range job.Dependencies() {
		s.collect(ctx, dep, seen, group)
	}
	*group = append(*group, job)
}

func (s *Scheduler) completed(ctx context.Context, job *core.Job) bool {
	if job.Status() == core.JobCompleted {
		return true
	}
	if value, ok := s.store.Get(ctx, job.Name()); ok && value {
		job.SetStatus(core.JobCompleted)
		logger.Info(ctx, "Job already completed, skipping", slog.String("skipped", job.Name()))
		return true
	}
	return false
}

// watchDependencies creates the gate for job and starts its waiter.
// The caller must hold s.mu.
func (s *Scheduler) watchDependencies(ctx context.Context, job *core.Job) {
	gate := core.NewGate(job.Name(), job.Dependencies())
	for _, dep := range job.Dependencies() {
		switch st := dep.Status(); {
		case st == core.JobCompleted:
			gate.Signal(dep)
		case st.IsTerminal():
			cause := dep.LastError()
			if cause == nil {
				cause = errors.New(st.String())
			}
			gate.Abort(dep, cause)
		}
	}

	s.waiters++
	s.inflight.Add(1)
	logger.Debug(ctx, "Waiting for dependencies",
		tag.Dependent(job.Name()),
		tag.Count(gate.Pending()),
	)
	go s.waitDependencies(ctx, job, gate, s.ready, s.stopCh)
}

func (s *Scheduler) waitDependencies(ctx context.Context, job *core.Job, gate *core.Gate, q *readyQueue, stopCh <-chan struct{}) {
	ctx = logger.WithValues(ctx, tag.Dependent(job.Name()))
	defer s.inflight.Done()
	defer s.waiterDone()

	select {
	case <-gate.Done():
	case <-stopCh:
		logger.Debug(ctx, "Dependency wait released by stop")
		return
	}

	if s.isStopped() {
		return
	}
	if err := gate.Err(); err != nil {
		logger.Warn(ctx, "Dependency did not complete, cancelling job", tag.Error(err))
		s.finish(ctx, job, core.JobCancelled, err)
		return
	}

	logger.Info(ctx, "Dependencies completed")
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.released = append(s.released, job)
	s.mu.Unlock()
	q.Wake()
}

func (s *Scheduler) waiterDone() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.waiters--
}

// Run executes admitted jobs until none remain or the scheduler is stopped.
// Jobs may be scheduled while Run is in progress. Cancelling ctx stops the
// scheduler.
func (s *Scheduler) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer s.running.Store(false)

	runID, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("failed to generate run ID: %w", err)
	}
	ctx = logger.WithValues(ctx, tag.RunID(runID.String()))
	logger.Info(ctx, "Scheduler started", tag.Limit(s.poolSize))

	s.mu.Lock()
	q, stopCh := s.ready, s.stopCh
	s.mu.Unlock()

	for {
		if err := ctx.Err(); err != nil {
			s.Stop(ctx)
			s.shutdown(ctx)
			return err
		}
		if s.isStopped() {
			s.shutdown(ctx)
			logger.Info(ctx, "Scheduler stopped")
			return nil
		}

		s.drainPending(ctx, q)

		job, ok := q.Pop()
		if !ok {
			if s.settled(q) {
				logger.Info(ctx, "Scheduler finished, no jobs left")
				return nil
			}
			s.idle(ctx, q, stopCh)
			continue
		}
		s.step(ctx, q, job)
	}
}

// settled reports whether nothing is queued, pending or waiting.
// Timer callbacks and waiters push before unregistering, so a job in flight
// is always visible through one of the checks.
func (s *Scheduler) settled(q *readyQueue) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending) == 0 && len(s.released) == 0 && len(s.timers) == 0 &&
		s.waiters == 0 && q.Len() == 0
}

// shutdown waits for timer callbacks and dependency waiters to return, then
// gives every job stopped off the loop one resumption to release its
// resources.
func (s *Scheduler) shutdown(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	s.inflight.Wait()

	s.mu.Lock()
	jobs := s.cancelled
	s.cancelled = nil
	s.mu.Unlock()

	for _, job := range jobs {
		jobCtx := logger.WithValues(ctx, tag.Job(job.Name()))
		if err := job.Cancel(jobCtx); err != nil {
			logger.Warn(jobCtx, "Job cancellation returned an error", tag.Error(err))
		}
	}
}

func (s *Scheduler) idle(ctx context.Context, q *readyQueue, stopCh <-chan struct{}) {
	timer := time.NewTimer(s.pollInterval)
	defer timer.Stop()

	select {
	case <-q.Notify():
	case <-timer.C:
	case <-stopCh:
	case <-ctx.Done():
	}
}

// drainPending initializes admitted jobs and jobs whose dependencies
// completed, then moves them into the ready queue, or onto a timer for jobs
// whose start time is still in the future.
func (s *Scheduler) drainPending(ctx context.Context, q *readyQueue) {
	s.mu.Lock()
	pending := slices.Concat(s.pending, s.released)
	s.pending, s.released = nil, nil
	s.mu.Unlock()

	for _, job := range pending {
		jobCtx := logger.WithValues(ctx, tag.Job(job.Name()))
		if !s.initialize(jobCtx, job) {
			continue
		}
		if delay := job.StartAt().Sub(s.clock()); !job.StartAt().IsZero() && delay > 0 {
			logger.Info(jobCtx, "Job delayed until start time", tag.StartAt(job.StartAt()), tag.Delay(delay))
			s.after(jobCtx, q, job, delay)
			continue
		}
		s.enqueue(jobCtx, q, job)
	}
}

// initialize builds the job's first step, spending tries if that fails.
func (s *Scheduler) initialize(ctx context.Context, job *core.Job) bool {
	if err := job.Init(ctx); err != nil {
		logger.Warn(ctx, "Failed to initialize job", tag.Error(err), tag.Tries(job.TriesRemaining()))
		return s.restart(ctx, job)
	}
	logger.Debug(ctx, "Job initialized", tag.Status(job.Status().String()))
	return true
}

// restart spends tries until the job initializes again. When the budget is
// spent the job is marked failed and false is returned.
func (s *Scheduler) restart(ctx context.Context, job *core.Job) bool {
	for {
		err := job.Restart(ctx)
		if err == nil {
			logger.Info(ctx, "Job restarted", tag.Tries(job.TriesRemaining()))
			return true
		}
		if errors.Is(err, core.ErrNoTriesLeft) {
			cause := job.LastError()
			if cause == nil {
				cause = err
			}
			logger.Error(ctx, "Job failed, no tries left", tag.Error(cause))
			s.finish(ctx, job, core.JobFailed, cause)
			return false
		}
		logger.Warn(ctx, "Failed to initialize job", tag.Error(err), tag.Tries(job.TriesRemaining()))
	}
}

// step runs one resumption of job and decides where it goes next.
func (s *Scheduler) step(ctx context.Context, q *readyQueue, job *core.Job) {
	ctx = logger.WithValues(ctx, tag.Job(job.Name()))

	if job.Expired(s.clock()) {
		logger.Warn(ctx, "Job deadline exceeded, cancelling", tag.Deadline(job.Deadline()))
		s.cancel(ctx, job, core.ErrDeadlineExceeded)
		return
	}

	done, err := job.Advance(ctx)
	switch {
	case err != nil:
		logger.Warn(ctx, "Job step failed", tag.Error(err), tag.Tries(job.TriesRemaining()))
		s.retry(ctx, q, job)

	case done:
		s.finish(ctx, job, core.JobCompleted, nil)

	default:
		job.SetStatus(core.JobReady)
		s.enqueue(ctx, q, job)
	}
}

func (s *Scheduler) retry(ctx context.Context, q *readyQueue, job *core.Job) {
	if !s.restart(ctx, job) {
		return
	}
	if job.RetryInterval() <= 0 {
		s.enqueue(ctx, q, job)
		return
	}
	policy := backoff.NewExponentialBackoffPolicy(job.RetryInterval())
	delay, err := policy.ComputeNextInterval(job.Restarts() - 1)
	if err != nil || delay <= 0 {
		s.enqueue(ctx, q, job)
		return
	}
	logger.Info(ctx, "Job retry delayed", tag.Delay(delay))
	s.after(ctx, q, job, delay)
}

// enqueue appends job to the ready queue. A closed queue means the
// scheduler stopped, so the job is aborted instead.
func (s *Scheduler) enqueue(ctx context.Context, q *readyQueue, job *core.Job) {
	if q.Push(job) {
		logger.Debug(ctx, "Job queued", tag.Status(job.Status().String()))
		return
	}
	s.abort(ctx, job, errStopRequested)
}

// after enqueues job once delay has elapsed.
func (s *Scheduler) after(ctx context.Context, q *readyQueue, job *core.Job, delay time.Duration) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		s.abort(ctx, job, errStopRequested)
		return
	}
	s.inflight.Add(1)
	s.timers[job] = time.AfterFunc(delay, func() {
		defer s.inflight.Done()
		s.enqueue(ctx, q, job)

		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.timers, job)
	})
	s.mu.Unlock()
}

// abort records job as cancelled and leaves the resumption that releases its
// resources to the loop goroutine.
func (s *Scheduler) abort(ctx context.Context, job *core.Job, cause error) {
	s.finish(ctx, job, core.JobCancelled, cause)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelled = append(s.cancelled, job)
}

// cancel gives the job's step one chance to release its resources and
// records the job as not completed.
func (s *Scheduler) cancel(ctx context.Context, job *core.Job, cause error) {
	if err := job.Cancel(ctx); err != nil {
		logger.Warn(ctx, "Job cancellation returned an error", tag.Error(err))
	}
	s.finish(ctx, job, core.JobCancelled, cause)
}

// finish records a terminal status, persists it and releases the job's
// dependents.
func (s *Scheduler) finish(ctx context.Context, job *core.Job, status core.JobStatus, cause error) {
	job.SetStatus(status)

	// The outcome is recorded even when the run context is already cancelled.
	completed := status == core.JobCompleted
	if err := s.store.Set(context.WithoutCancel(ctx), job.Name(), completed); err != nil {
		logger.Warn(ctx, "Failed to persist job state", tag.Error(err))
	}

	switch status {
	case core.JobCompleted:
		logger.Info(ctx, "Job completed", tag.Tries(job.TriesRemaining()))
	case core.JobFailed:
		logger.Error(ctx, "Job failed", tag.Status(status.String()), tag.Error(cause))
	default:
		logger.Warn(ctx, "Job cancelled", tag.Status(status.String()), tag.Error(cause))
	}

	if completed {
		job.ReleaseDependents(nil)
	} else {
		job.ReleaseDependents(cause)
	}
}

func (s *Scheduler) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// Stop shuts the scheduler down. Jobs in the ready queue, on a timer or not
// yet started are recorded as cancelled, and dependency waiters return
// without enqueueing. Stop never resumes a step itself: the loop resumes each
// stopped job once with proceed=false before Run returns. A step that is
// currently running is not interrupted; its job is stopped after the step
// returns. Calling Stop more than once has no effect.
func (s *Scheduler) Stop(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	close(s.stopCh)
	stopped := slices.Concat(s.pending, s.released)
	s.pending, s.released = nil, nil
	for job, timer := range s.timers {
		// A timer that already fired finds the queue closed and aborts the
		// job itself.
		if timer.Stop() {
			delete(s.timers, job)
			s.inflight.Done()
			stopped = append(stopped, job)
		}
	}
	q := s.ready
	s.mu.Unlock()

	logger.Info(ctx, "Stopping scheduler")

	for _, job := range slices.Concat(q.Close(), stopped) {
		s.abort(logger.WithValues(ctx, tag.Job(job.Name())), job, errStopRequested)
	}
}

// Restart re-admits every job admitted so far that has not completed and
// runs them again. It must not be called while Run is in progress.
func (s *Scheduler) Restart(ctx context.Context) error {
	if s.running.Load() {
		return ErrAlreadyRunning
	}

	s.mu.Lock()
	jobs := s.order
	s.order = nil
	s.admitted = make(map[*core.Job]struct{})
	s.pending = nil
	s.released = nil
	s.cancelled = nil
	s.ready = newReadyQueue()
	if s.stopped {
		s.stopped = false
		s.stopCh = make(chan struct{})
	}
	s.mu.Unlock()

	logger.Info(ctx, "Restarting scheduler", tag.Count(len(jobs)))
	for _, job := range jobs {
		if job.Status() == core.JobCompleted {
			continue
		}
		if err := s.Schedule(ctx, job); err != nil {
			return err
		}
	}
	return s.Run(ctx)
}
