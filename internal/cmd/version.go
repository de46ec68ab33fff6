package cmd

import (
	"fmt"

	"github.com/dagu-org/jobloop/internal/cmn/config"
	"github.com/spf13/cobra"
)

func Version() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Display the binary version",
		Long:  `Print the current version of the jobloop executable.`,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), config.Version)
		},
	}
}
