package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type commandLineFlag struct {
	name, shorthand, defaultValue, usage string
	required                             bool
	isBool                               bool
	// bindViper binds the flag to the viper key of the same name, so it
	// overrides the config file and environment.
	bindViper bool
}

var (
	configFlag = commandLineFlag{
		name:      "config",
		shorthand: "c",
		usage:     "config file (default is $HOME/.config/jobloop/config.yaml)",
		bindViper: true,
	}
	quietFlag = commandLineFlag{
		name:      "quiet",
		shorthand: "q",
		usage:     "suppress log output on stderr",
		isBool:    true,
	}
	stateFileFlag = commandLineFlag{
		name:      "paths.stateFile",
		usage:     "completion state file (default is $HOME/.local/share/jobloop/state.json)",
		bindViper: true,
	}
	freshFlag = commandLineFlag{
		name:   "fresh",
		usage:  "clear the completion state before scheduling",
		isBool: true,
	}
	poolSizeFlag = commandLineFlag{
		name:      "scheduler.poolSize",
		shorthand: "n",
		usage:     "maximum number of jobs waiting to be started",
		bindViper: true,
	}
	watchFlag = commandLineFlag{
		name:      "watch",
		shorthand: "w",
		usage:     "keep printing the state whenever it changes",
		isBool:    true,
	}
)

// baseFlags are added to every command.
var baseFlags = []commandLineFlag{configFlag, quietFlag, stateFileFlag}

func initFlags(cmd *cobra.Command, additionalFlags ...commandLineFlag) {
	flags := append([]commandLineFlag{}, baseFlags...)
	flags = append(flags, additionalFlags...)

	for _, flag := range flags {
		if flag.isBool {
			cmd.Flags().BoolP(flag.name, flag.shorthand, flag.defaultValue == "true", flag.usage)
		} else {
			cmd.Flags().StringP(flag.name, flag.shorthand, flag.defaultValue, flag.usage)
		}
		if flag.required {
			if err := cmd.MarkFlagRequired(flag.name); err != nil {
				fmt.Fprintf(os.Stderr, "failed to mark flag %s as required: %v\n", flag.name, err)
			}
		}
	}
}

// bindFlags binds viper-backed flags of cmd to v. Flags the user did not set
// fall back to the config file and environment.
func bindFlags(v *viper.Viper, cmd *cobra.Command, additionalFlags ...commandLineFlag) error {
	flags := append([]commandLineFlag{}, baseFlags...)
	flags = append(flags, additionalFlags...)

	for _, flag := range flags {
		if !flag.bindViper {
			continue
		}
		if err := v.BindPFlag(flag.name, cmd.Flags().Lookup(flag.name)); err != nil {
			return fmt.Errorf("failed to bind flag %s: %w", flag.name, err)
		}
	}
	return nil
}
