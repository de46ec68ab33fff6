package config

// Definition mirrors the configuration file and environment keys before
// paths and durations are resolved.
type Definition struct {
	// Debug toggles debug logging with source locations.
	Debug bool `mapstructure:"debug"`

	// LogFormat is "text" or "json".
	LogFormat string `mapstructure:"logFormat"`

	Paths     PathsDef     `mapstructure:"paths"`
	Scheduler SchedulerDef `mapstructure:"scheduler"`
	Defaults  DefaultsDef  `mapstructure:"defaults"`
}

// PathsDef holds raw path settings.
type PathsDef struct {
	StateFile string `mapstructure:"stateFile"`
	LogFile   string `mapstructure:"logFile"`
}

// SchedulerDef holds raw scheduler settings.
type SchedulerDef struct {
	PoolSize     int    `mapstructure:"poolSize"`
	PollInterval string `mapstructure:"pollInterval"`
	Resume       bool   `mapstructure:"resume"`
}

// DefaultsDef holds raw job defaults.
type DefaultsDef struct {
	Tries         int    `mapstructure:"tries"`
	RetryInterval string `mapstructure:"retryInterval"`
}
