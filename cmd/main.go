package main

import (
	"os"

	"github.com/dagu-org/jobloop/internal/cmd"
	"github.com/dagu-org/jobloop/internal/cmn/config"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   config.AppSlug,
	Short: "Jobloop runs resumable jobs round-robin on a single loop",
	Long: `Jobloop runs resumable jobs round-robin on a single loop.

Each job advances one step at a time, so long-running jobs share the loop
fairly. Jobs can start later, expire after a deadline, retry after failures
and wait for other jobs. Completed jobs are recorded in a state file and
skipped on the next run.
`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(cmd.Run())
	rootCmd.AddCommand(cmd.Validate())
	rootCmd.AddCommand(cmd.Status())
	rootCmd.AddCommand(cmd.Reset())
	rootCmd.AddCommand(cmd.Tasks())
	rootCmd.AddCommand(cmd.Version())

	config.Version = version
}

var version = "0.0.0"
