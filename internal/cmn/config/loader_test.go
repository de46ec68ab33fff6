package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLoad(t *testing.T, opts ...ConfigLoaderOption) *Config {
	t.Helper()
	home := t.TempDir()
	opts = append([]ConfigLoaderOption{
		WithXDGHomes(filepath.Join(home, "data"), filepath.Join(home, "config")),
	}, opts...)
	cfg, err := NewConfigLoader(viper.New(), opts...).Load()
	require.NoError(t, err)
	return cfg
}

func TestLoad_Defaults(t *testing.T) {
	home := t.TempDir()
	cfg, err := NewConfigLoader(viper.New(),
		WithXDGHomes(filepath.Join(home, "data"), filepath.Join(home, "config")),
	).Load()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, "data", AppSlug, "state.json"), cfg.Paths.StateFile)
	assert.Equal(t, 10, cfg.Scheduler.PoolSize)
	assert.Equal(t, 300*time.Millisecond, cfg.Scheduler.PollInterval)
	assert.True(t, cfg.Scheduler.Resume)
	assert.Equal(t, 3, cfg.Defaults.Tries)
	assert.Zero(t, cfg.Defaults.RetryInterval)
	assert.Equal(t, "text", cfg.Core.LogFormat)
	assert.Empty(t, cfg.Warnings)
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	configFile := filepath.Join(dir, "config.yaml")
	content := `
debug: true
logFormat: json
paths:
  stateFile: ` + filepath.Join(dir, "custom.json") + `
scheduler:
  poolSize: 4
  pollInterval: 50ms
  resume: false
defaults:
  tries: 7
  retryInterval: 2s
`
	require.NoError(t, os.WriteFile(configFile, []byte(content), 0o600))

	cfg := testLoad(t, WithConfigFile(configFile))

	assert.True(t, cfg.Core.Debug)
	assert.Equal(t, "json", cfg.Core.LogFormat)
	assert.Equal(t, filepath.Join(dir, "custom.json"), cfg.Paths.StateFile)
	assert.Equal(t, 4, cfg.Scheduler.PoolSize)
	assert.Equal(t, 50*time.Millisecond, cfg.Scheduler.PollInterval)
	assert.False(t, cfg.Scheduler.Resume)
	assert.Equal(t, 7, cfg.Defaults.Tries)
	assert.Equal(t, 2*time.Second, cfg.Defaults.RetryInterval)
	assert.Equal(t, configFile, cfg.Paths.ConfigFileUsed)
}

func TestLoad_Env(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("JOBLOOP_POOL_SIZE", "25")
	t.Setenv("JOBLOOP_STATE_FILE", filepath.Join(dir, "env.json"))
	t.Setenv("JOBLOOP_POLL_INTERVAL", "not-a-duration")

	cfg := testLoad(t)

	assert.Equal(t, 25, cfg.Scheduler.PoolSize)
	assert.Equal(t, filepath.Join(dir, "env.json"), cfg.Paths.StateFile)
	assert.Equal(t, defaultPollInterval, cfg.Scheduler.PollInterval)
	require.Len(t, cfg.Warnings, 1)
	assert.Contains(t, cfg.Warnings[0], "scheduler.pollInterval")
}

func TestLoad_Invalid(t *testing.T) {
	dir := t.TempDir()
	configFile := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(configFile, []byte("scheduler:\n  poolSize: 0\n"), 0o600))

	_, err := NewConfigLoader(viper.New(),
		WithConfigFile(configFile),
		WithXDGHomes(dir, dir),
	).Load()
	require.ErrorIs(t, err, errInvalidPoolSize)
}
