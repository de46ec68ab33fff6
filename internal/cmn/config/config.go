package config

import (
	"errors"
	"fmt"
	"time"
)

const (
	// AppName is the human readable application name.
	AppName = "Jobloop"
	// AppSlug is used for directory names, env prefixes and the binary name.
	AppSlug = "jobloop"
)

// Version is set by the main package at build time.
var Version = "0.0.0"

// Config holds the resolved application configuration.
type Config struct {
	Core      Core
	Paths     Paths
	Scheduler Scheduler
	Defaults  JobDefaults
	Warnings  []string
}

// Core holds process-wide settings.
type Core struct {
	Debug     bool
	LogFormat string
}

// Paths holds file system locations, all resolved to absolute paths.
type Paths struct {
	// StateFile is the JSON completion-state file.
	StateFile string
	// LogFile, when set, receives a copy of every log record.
	LogFile        string
	ConfigFileUsed string
}

// Scheduler holds settings for the round-robin scheduler.
type Scheduler struct {
	// PoolSize bounds the number of jobs waiting in the pending queue.
	PoolSize int
	// PollInterval is how long the loop idles while only timers or
	// dependency waiters are outstanding.
	PollInterval time.Duration
	// Resume keeps the state file between sessions so that completed jobs
	// are skipped. When false the state is cleared at session start.
	Resume bool
}

// JobDefaults holds values applied to jobs that do not set them.
type JobDefaults struct {
	Tries         int
	RetryInterval time.Duration
}

var (
	errInvalidPoolSize  = errors.New("scheduler.poolSize must be positive")
	errInvalidTries     = errors.New("defaults.tries must not be negative")
	errInvalidLogFormat = errors.New("logFormat must be text or json")
)

// Validate checks the configuration for values the scheduler cannot use.
func (c *Config) Validate() error {
	if c.Scheduler.PoolSize <= 0 {
		return fmt.Errorf("%w: %d", errInvalidPoolSize, c.Scheduler.PoolSize)
	}
	if c.Defaults.Tries < 0 {
		return fmt.Errorf("%w: %d", errInvalidTries, c.Defaults.Tries)
	}
	switch c.Core.LogFormat {
	case "", "text", "json":
	default:
		return fmt.Errorf("%w: %q", errInvalidLogFormat, c.Core.LogFormat)
	}
	return nil
}
