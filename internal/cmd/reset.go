package cmd

import (
	"fmt"

	"github.com/dagu-org/jobloop/internal/cmn/logger"
	"github.com/dagu-org/jobloop/internal/cmn/logger/tag"
	"github.com/spf13/cobra"
)

// Reset returns the command that forgets completed jobs.
func Reset() *cobra.Command {
	return NewCommand(
		&cobra.Command{
			Use:   "reset [flags] [job name]...",
			Short: "Forget which jobs have completed",
			Long: `Remove the state file so that every job runs again on the next run.

With job names, only those jobs are marked as not completed.

Example:
  jobloop reset fetch-prices
`,
		}, nil, runReset,
	)
}

func runReset(ctx *Context, args []string) error {
	if len(args) == 0 {
		if err := ctx.Store.Clear(ctx); err != nil {
			return fmt.Errorf("failed to clear state: %w", err)
		}
		logger.Info(ctx, "Completion state cleared", tag.File(ctx.Store.Path()))
		return nil
	}

	for _, name := range args {
		if err := ctx.Store.Set(ctx, name, false); err != nil {
			return fmt.Errorf("failed to reset job %s: %w", name, err)
		}
		logger.Info(ctx, "Job reset", tag.Job(name))
	}
	return nil
}
