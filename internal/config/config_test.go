package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "config.yaml", `
store:
  path: /tmp/outcomes.db
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/outcomes.db", cfg.Store.Path)
	assert.Equal(t, "dev", cfg.App.Env)
	assert.Equal(t, "info", cfg.App.LogLevel)
	assert.Equal(t, ":9985", cfg.App.HTTPAddr)
	assert.Equal(t, "https://fapi.binance.com", cfg.Pricing.RESTBaseURL)
	assert.Equal(t, 10*time.Second, cfg.Pricing.Timeout())
	assert.Equal(t, "15m", cfg.Scorer.SweepInterval)
	assert.Equal(t, 15*time.Minute, cfg.Scorer.SweepIntervalDuration())
	assert.Equal(t, 4, cfg.Scorer.MaxParallel)
	assert.Equal(t, 500, cfg.Scorer.BatchLimit)
	assert.False(t, cfg.Memory.Enabled)
	assert.Equal(t, 3, cfg.Memory.MaxAttempts)
	assert.Equal(t, 5, cfg.Context.SymbolLimit)
	assert.Equal(t, 100, cfg.Context.ScanLimit)
}

func TestLoadHonorsExplicitValues(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "config.yaml", `
store:
  path: /tmp/outcomes.db
scorer:
  sweep_interval: 1h
  offset_seconds: 0
  max_parallel: 2
memory:
  enabled: true
  base_url: http://memory.internal:8080
  max_attempts: 5
  initial_backoff_seconds: 2
  max_backoff_seconds: 60
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, time.Hour, cfg.Scorer.SweepIntervalDuration())
	// offset_seconds was explicitly set to zero, the default must not win.
	assert.Equal(t, 0, cfg.Scorer.OffsetSeconds)
	assert.Equal(t, 2, cfg.Scorer.MaxParallel)
	assert.True(t, cfg.Memory.Enabled)
	assert.Equal(t, "http://memory.internal:8080", cfg.Memory.BaseURL)
	assert.Equal(t, 5, cfg.Memory.MaxAttempts)
	assert.Equal(t, 60, cfg.Memory.MaxBackoffSeconds)
}

func TestLoadMergesIncludes(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "base.yaml", `
store:
  path: /tmp/base.db
app:
  log_level: debug
`)
	path := writeConfig(t, dir, "config.yaml", `
include:
  - base.yaml
store:
  path: /tmp/override.db
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	// The including file wins on conflicts, included values fill the rest.
	assert.Equal(t, "/tmp/override.db", cfg.Store.Path)
	assert.Equal(t, "debug", cfg.App.LogLevel)
}

func TestLoadRejectsIncludeCycle(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "a.yaml", "include:\n  - b.yaml\n")
	path := writeConfig(t, dir, "b.yaml", "include:\n  - a.yaml\n")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "include cycle")
}

func TestLoadValidation(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{
			name: "bad sweep interval",
			body: "store:\n  path: /tmp/x.db\nscorer:\n  sweep_interval: fast\n",
			want: "sweep_interval",
		},
		{
			name: "memory enabled without base url",
			body: "store:\n  path: /tmp/x.db\nmemory:\n  enabled: true\n",
			want: "memory.base_url",
		},
		{
			name: "backoff ceiling below floor",
			body: "store:\n  path: /tmp/x.db\nmemory:\n  enabled: true\n  base_url: http://m\n  initial_backoff_seconds: 30\n  max_backoff_seconds: 5\n",
			want: "max_backoff_seconds",
		},
		{
			name: "symbol limit over scan limit",
			body: "store:\n  path: /tmp/x.db\ncontext:\n  symbol_limit: 200\n  scan_limit: 50\n",
			want: "scan_limit",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfig(t, t.TempDir(), "config.yaml", tc.body)
			_, err := Load(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
