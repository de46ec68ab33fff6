package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dagu-org/jobloop/internal/persis/filestate"
	"github.com/spf13/cobra"
)

// Status returns the command that prints the completion state.
func Status() *cobra.Command {
	return NewCommand(
		&cobra.Command{
			Use:   "status [flags] [job name]...",
			Short: "Display the completion state of jobs",
			Long: `Print the completion flag recorded for each job in the state file.

Without job names every recorded job is listed. With --watch the table is
printed again each time the state file changes, until interrupted.

Example:
  jobloop status --watch
`,
		}, statusFlags, runStatus,
	)
}

var statusFlags = []commandLineFlag{watchFlag}

func runStatus(ctx *Context, args []string) error {
	watch, err := ctx.BoolParam("watch")
	if err != nil {
		return err
	}
	out := ctx.Command.OutOrStdout()

	if !watch {
		st, err := ctx.Store.Snapshot(ctx)
		if err != nil {
			return fmt.Errorf("failed to read state: %w", err)
		}
		renderState(out, st, args)
		return nil
	}

	watchCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	return ctx.Store.Watch(watchCtx, func(st filestate.State) {
		renderState(out, st, args)
	})
}
