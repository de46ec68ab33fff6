package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/dagu-org/jobloop/internal/cmn/fileutil"
	"github.com/spf13/viper"
)

const (
	defaultPoolSize     = 10
	defaultPollInterval = 300 * time.Millisecond
	defaultTries        = 3
)

// ConfigLoader reads and merges configuration from the config file,
// environment variables and defaults.
type ConfigLoader struct {
	v          *viper.Viper
	configFile string
	dataHome   string
	configHome string
	warnings   []string
}

// ConfigLoaderOption defines a functional option for configuring a ConfigLoader.
type ConfigLoaderOption func(*ConfigLoader)

// WithConfigFile sets an explicit configuration file path.
func WithConfigFile(configFile string) ConfigLoaderOption {
	return func(l *ConfigLoader) {
		l.configFile = configFile
	}
}

// WithXDGHomes overrides the XDG data and config homes. Used by tests.
func WithXDGHomes(dataHome, configHome string) ConfigLoaderOption {
	return func(l *ConfigLoader) {
		l.dataHome = dataHome
		l.configHome = configHome
	}
}

// NewConfigLoader creates a ConfigLoader with the given viper instance and options.
func NewConfigLoader(v *viper.Viper, options ...ConfigLoaderOption) *ConfigLoader {
	loader := &ConfigLoader{
		v:          v,
		dataHome:   xdg.DataHome,
		configHome: xdg.ConfigHome,
	}
	for _, opt := range options {
		opt(loader)
	}
	return loader
}

// Load loads the configuration using the global viper instance.
func Load(options ...ConfigLoaderOption) (*Config, error) {
	return NewConfigLoader(viper.GetViper(), options...).Load()
}

// Load reads configuration files, applies defaults and environment overrides,
// and returns a validated Config instance.
func (l *ConfigLoader) Load() (*Config, error) {
	l.configureViper()
	l.bindEnvironmentVariables()
	l.setViperDefaultValues()

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var def Definition
	if err := l.v.Unmarshal(&def); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg, err := l.buildConfig(def)
	if err != nil {
		return nil, fmt.Errorf("failed to build config: %w", err)
	}
	return cfg, nil
}

func (l *ConfigLoader) buildConfig(def Definition) (*Config, error) {
	cfg := &Config{
		Core: Core{
			Debug:     def.Debug,
			LogFormat: strings.ToLower(def.LogFormat),
		},
		Scheduler: Scheduler{
			PoolSize:     def.Scheduler.PoolSize,
			PollInterval: l.parseDuration("scheduler.pollInterval", def.Scheduler.PollInterval),
			Resume:       def.Scheduler.Resume,
		},
		Defaults: JobDefaults{
			Tries:         def.Defaults.Tries,
			RetryInterval: l.parseDuration("defaults.retryInterval", def.Defaults.RetryInterval),
		},
	}
	if cfg.Scheduler.PollInterval <= 0 {
		cfg.Scheduler.PollInterval = defaultPollInterval
	}

	var err error
	if cfg.Paths.StateFile, err = l.resolvePath("paths.stateFile", def.Paths.StateFile); err != nil {
		return nil, err
	}
	if cfg.Paths.LogFile, err = l.resolvePath("paths.logFile", def.Paths.LogFile); err != nil {
		return nil, err
	}
	if cfg.Paths.ConfigFileUsed, err = l.resolvePath("config file", l.v.ConfigFileUsed()); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.Warnings = l.warnings
	return cfg, nil
}

func (l *ConfigLoader) configureViper() {
	if l.configFile == "" {
		l.v.AddConfigPath(filepath.Join(l.configHome, AppSlug))
		l.v.SetConfigName("config")
	} else {
		l.v.SetConfigFile(l.configFile)
	}
	l.v.SetConfigType("yaml")
	l.v.SetEnvPrefix(strings.ToUpper(AppSlug))
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	l.v.AutomaticEnv()
}

// envBindings maps config keys to environment variable suffixes.
var envBindings = []struct {
	key string
	env string
}{
	{"debug", "DEBUG"},
	{"logFormat", "LOG_FORMAT"},
	{"paths.stateFile", "STATE_FILE"},
	{"paths.logFile", "LOG_FILE"},
	{"scheduler.poolSize", "POOL_SIZE"},
	{"scheduler.pollInterval", "POLL_INTERVAL"},
	{"scheduler.resume", "RESUME"},
	{"defaults.tries", "TRIES"},
	{"defaults.retryInterval", "RETRY_INTERVAL"},
}

func (l *ConfigLoader) bindEnvironmentVariables() {
	prefix := strings.ToUpper(AppSlug) + "_"
	for _, b := range envBindings {
		_ = l.v.BindEnv(b.key, prefix+b.env)
	}
}

func (l *ConfigLoader) setViperDefaultValues() {
	l.v.SetDefault("debug", false)
	l.v.SetDefault("logFormat", "text")
	l.v.SetDefault("paths.stateFile", filepath.Join(l.dataHome, AppSlug, "state.json"))
	l.v.SetDefault("paths.logFile", "")
	l.v.SetDefault("scheduler.poolSize", defaultPoolSize)
	l.v.SetDefault("scheduler.pollInterval", defaultPollInterval.String())
	l.v.SetDefault("scheduler.resume", true)
	l.v.SetDefault("defaults.tries", defaultTries)
	l.v.SetDefault("defaults.retryInterval", "0s")
}

// resolvePath resolves a path to an absolute path. Empty paths are returned as-is.
func (l *ConfigLoader) resolvePath(fieldName, pathValue string) (string, error) {
	if pathValue == "" {
		return "", nil
	}
	resolved, err := fileutil.ResolvePath(pathValue)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s path %q: %w", fieldName, pathValue, err)
	}
	return resolved, nil
}

// parseDuration parses a duration string, returning zero and adding a warning if invalid.
func (l *ConfigLoader) parseDuration(fieldName, value string) time.Duration {
	if value == "" {
		return 0
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		l.warnings = append(l.warnings, fmt.Sprintf("Invalid %s value: %s", fieldName, value))
		return 0
	}
	return d
}
