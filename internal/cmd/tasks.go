package cmd

import (
	"github.com/dagu-org/jobloop/internal/tasks"
	"github.com/spf13/cobra"
)

// Tasks returns the command that lists the built-in tasks.
func Tasks() *cobra.Command {
	return NewCommand(
		&cobra.Command{
			Use:   "tasks",
			Short: "List the tasks available to job files",
			Args:  cobra.NoArgs,
		}, nil, func(ctx *Context, _ []string) error {
			renderTasks(ctx.Command.OutOrStdout(), tasks.List())
			return nil
		},
	)
}
