package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/dagu-org/jobloop/internal/cmn/config"
	"github.com/dagu-org/jobloop/internal/cmn/fileutil"
	"github.com/dagu-org/jobloop/internal/cmn/logger"
	"github.com/dagu-org/jobloop/internal/cmn/logger/tag"
	"github.com/dagu-org/jobloop/internal/core"
	"github.com/dagu-org/jobloop/internal/core/spec"
	"github.com/dagu-org/jobloop/internal/persis/filestate"
	"github.com/dagu-org/jobloop/internal/service/scheduler"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Context holds the configuration and stores shared by a command.
type Context struct {
	context.Context

	Command *cobra.Command
	Flags   []commandLineFlag
	Config  *config.Config
	Quiet   bool
	Store   *filestate.Store

	logFile *os.File
}

// NewContext loads the configuration, sets up the logger and opens the
// completion state store.
func NewContext(cmd *cobra.Command, flags []commandLineFlag) (*Context, error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	v := viper.New()
	if err := bindFlags(v, cmd, flags...); err != nil {
		return nil, err
	}

	quiet, err := cmd.Flags().GetBool("quiet")
	if err != nil {
		return nil, fmt.Errorf("failed to get quiet flag: %w", err)
	}

	var loaderOpts []config.ConfigLoaderOption
	if cfgPath := v.GetString("config"); cfgPath != "" {
		loaderOpts = append(loaderOpts, config.WithConfigFile(cfgPath))
	}
	cfg, err := config.NewConfigLoader(v, loaderOpts...).Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	var opts []logger.Option
	if cfg.Core.Debug || os.Getenv("DEBUG") != "" {
		opts = append(opts, logger.WithDebug())
	}
	if quiet {
		opts = append(opts, logger.WithQuiet())
	}
	if cfg.Core.LogFormat != "" {
		opts = append(opts, logger.WithFormat(cfg.Core.LogFormat))
	}

	var logFile *os.File
	if cfg.Paths.LogFile != "" {
		logFile, err = fileutil.OpenOrCreateFile(cfg.Paths.LogFile)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		opts = append(opts, logger.WithWriter(logFile))
	}
	ctx = logger.WithLogger(ctx, logger.NewLogger(opts...))

	for _, w := range cfg.Warnings {
		logger.Warn(ctx, w)
	}
	if cfg.Paths.ConfigFileUsed != "" {
		logger.Debug(ctx, "Config file loaded", tag.File(cfg.Paths.ConfigFileUsed))
	}

	return &Context{
		Context: ctx,
		Command: cmd,
		Flags:   flags,
		Config:  cfg,
		Quiet:   quiet,
		Store:   filestate.New(cfg.Paths.StateFile),
		logFile: logFile,
	}, nil
}

// NewScheduler creates a scheduler that records outcomes in the state store.
func (c *Context) NewScheduler() *scheduler.Scheduler {
	return scheduler.New(c.Store, scheduler.Config{
		PoolSize:     c.Config.Scheduler.PoolSize,
		PollInterval: c.Config.Scheduler.PollInterval,
	})
}

// LoadJobs loads the jobs of every job file matching one of patterns.
// Job names must be unique across all of them.
func (c *Context) LoadJobs(patterns []string) ([]*core.Job, error) {
	opts := []spec.LoadOption{
		spec.WithDefaultTries(c.Config.Defaults.Tries),
		spec.WithDefaultRetryInterval(c.Config.Defaults.RetryInterval),
	}

	var jobs []*core.Job
	seen := make(map[string]struct{})
	for _, pattern := range patterns {
		loaded, err := spec.LoadFiles(c, pattern, opts...)
		if err != nil {
			return nil, err
		}
		for _, job := range loaded {
			if _, ok := seen[job.Name()]; ok {
				return nil, fmt.Errorf("%w: %s", spec.ErrDuplicateName, job.Name())
			}
			seen[job.Name()] = struct{}{}
		}
		jobs = append(jobs, loaded...)
	}
	return jobs, nil
}

// BoolParam returns the value of a boolean flag.
func (c *Context) BoolParam(name string) (bool, error) {
	val, err := c.Command.Flags().GetBool(name)
	if err != nil {
		return false, fmt.Errorf("failed to get flag %s: %w", name, err)
	}
	return val, nil
}

// Close releases the log file, if one was opened.
func (c *Context) Close() error {
	if c.logFile == nil {
		return nil
	}
	return c.logFile.Close()
}

var errCommandFailed = errors.New("command failed")

// NewCommand wires flags and the config-loading context into cmd. A failing
// runFunc is logged and returned so that the caller exits non-zero.
func NewCommand(cmd *cobra.Command, flags []commandLineFlag, runFunc func(cmd *Context, args []string) error) *cobra.Command {
	initFlags(cmd, flags...)

	cmd.SilenceUsage = true
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		ctx, err := NewContext(cmd, flags)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Initialization error: %v\n", err)
			return fmt.Errorf("%w: %w", errCommandFailed, err)
		}
		defer func() {
			_ = ctx.Close()
		}()

		if err := runFunc(ctx, args); err != nil {
			logger.Error(ctx, "Command failed", tag.Error(err))
			return fmt.Errorf("%w: %w", errCommandFailed, err)
		}
		return nil
	}

	return cmd
}
