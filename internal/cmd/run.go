package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/dagu-org/jobloop/internal/cmn/logger"
	"github.com/dagu-org/jobloop/internal/cmn/logger/tag"
	"github.com/dagu-org/jobloop/internal/core"
	"github.com/dagu-org/jobloop/internal/service/scheduler"
	"github.com/spf13/cobra"
)

var errJobsNotCompleted = errors.New("some jobs did not complete")

// Run returns the command that schedules job files and runs them to the end.
func Run() *cobra.Command {
	return NewCommand(
		&cobra.Command{
			Use:   "run [flags] <job file or pattern>...",
			Short: "Run the jobs defined in job files",
			Long: `Load every job file matching the given paths or patterns and run their
jobs round-robin until all of them have completed, failed or expired.

Jobs recorded as completed in the state file are skipped. Use --fresh to
clear the state first. Jobs that do not fit in the pending pool are dropped
and the command exits non-zero after the admitted jobs have run.

Examples:
  jobloop run jobs.yaml
  jobloop run --fresh "jobs/**/*.yaml"
`,
			Args: cobra.MinimumNArgs(1),
		}, runFlags, runJobs,
	)
}

var runFlags = []commandLineFlag{freshFlag, poolSizeFlag}

func runJobs(ctx *Context, args []string) error {
	jobs, err := ctx.LoadJobs(args)
	if err != nil {
		return fmt.Errorf("failed to load jobs: %w", err)
	}

	fresh, err := ctx.BoolParam("fresh")
	if err != nil {
		return err
	}
	if fresh || !ctx.Config.Scheduler.Resume {
		if err := ctx.Store.Clear(ctx); err != nil {
			return fmt.Errorf("failed to clear state: %w", err)
		}
		logger.Info(ctx, "Completion state cleared", tag.File(ctx.Store.Path()))
	}

	sched := ctx.NewScheduler()
	var rejected []string
	for _, job := range jobs {
		if err := sched.Schedule(ctx, job); err != nil {
			if errors.Is(err, scheduler.ErrAdmissionRejected) {
				logger.Warn(ctx, "Job dropped", tag.Job(job.Name()), tag.Limit(ctx.Config.Scheduler.PoolSize))
				rejected = append(rejected, job.Name())
				continue
			}
			return fmt.Errorf("job %s: %w", job.Name(), err)
		}
	}

	stopListening := listenSignals(ctx, sched.Stop)
	defer stopListening()

	runErr := sched.Run(ctx)
	renderJobs(ctx.Command.OutOrStdout(), jobs)
	if runErr != nil {
		return runErr
	}
	if len(rejected) > 0 {
		return fmt.Errorf("%w: %s (raise scheduler.poolSize)",
			scheduler.ErrAdmissionRejected, strings.Join(rejected, ", "))
	}

	for _, job := range flattenJobs(jobs) {
		if job.Status() != core.JobCompleted {
			return errJobsNotCompleted
		}
	}
	return nil
}

// listenSignals calls stop once SIGINT, SIGTERM or SIGHUP is received.
// The returned function unsubscribes.
func listenSignals(ctx context.Context, stop func(context.Context)) func() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	done := make(chan struct{})
	go func() {
		select {
		case sig := <-sigCh:
			logger.Info(ctx, "Received signal, stopping", tag.Signal(sig.String()))
			stop(ctx)
		case <-done:
		}
	}()

	return func() {
		signal.Stop(sigCh)
		close(done)
	}
}
