package cmd

import (
	"fmt"

	"github.com/dagu-org/jobloop/internal/cmn/logger"
	"github.com/dagu-org/jobloop/internal/cmn/logger/tag"
	"github.com/spf13/cobra"
)

// Validate returns the command that checks job files without running them.
func Validate() *cobra.Command {
	return NewCommand(
		&cobra.Command{
			Use:   "validate [flags] <job file or pattern>...",
			Short: "Check job files and print the jobs they define",
			Long: `Load job files the same way run does and print the resulting jobs,
including start times, deadlines and dependencies. Nothing is executed and
the state file is not touched.

Example:
  jobloop validate jobs.yaml
`,
			Args: cobra.MinimumNArgs(1),
		}, nil, runValidate,
	)
}

func runValidate(ctx *Context, args []string) error {
	jobs, err := ctx.LoadJobs(args)
	if err != nil {
		return fmt.Errorf("invalid job file: %w", err)
	}
	renderJobs(ctx.Command.OutOrStdout(), jobs)
	logger.Info(ctx, "Job files are valid", tag.Count(len(flattenJobs(jobs))))
	return nil
}
