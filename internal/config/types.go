package config

import (
	"strings"
	"time"

	"gradebook/internal/scheduler"
)

// Config is the top-level configuration carrier.
type Config struct {
	App     AppConfig     `toml:"app"`
	Store   StoreConfig   `toml:"store"`
	Pricing PricingConfig `toml:"pricing"`
	Scorer  ScorerConfig  `toml:"scorer"`
	Memory  MemoryConfig  `toml:"memory"`
	Recall  RecallConfig  `toml:"recall"`
	Context ContextConfig `toml:"context"`
}

type AppConfig struct {
	Env      string `toml:"env"`
	LogLevel string `toml:"log_level"`
	HTTPAddr string `toml:"http_addr"`
	LogPath  string `toml:"log_path"`
}

type StoreConfig struct {
	Path string `toml:"path"`
}

// PricingConfig describes the exchange price source.
type PricingConfig struct {
	RESTBaseURL    string `toml:"rest_base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

func (p PricingConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutSeconds) * time.Second
}

// ScorerConfig controls the checkpoint sweep loop.
type ScorerConfig struct {
	SweepInterval  string `toml:"sweep_interval"` // e.g. "15m"
	OffsetSeconds  int    `toml:"offset_seconds"` // delay after the aligned boundary
	MaxParallel    int    `toml:"max_parallel"`
	BatchLimit     int    `toml:"batch_limit"`
	RunImmediately bool   `toml:"run_immediately"`
}

// SweepIntervalDuration resolves the configured interval, zero when invalid.
func (s ScorerConfig) SweepIntervalDuration() time.Duration {
	d, ok := scheduler.ParseIntervalDuration(s.SweepInterval)
	if !ok {
		return 0
	}
	return d
}

// MemoryConfig describes the external memory service and retry policy.
type MemoryConfig struct {
	Enabled               bool   `toml:"enabled"`
	BaseURL               string `toml:"base_url"`
	APIKey                string `toml:"api_key"`
	TimeoutSeconds        int    `toml:"timeout_seconds"`
	MaxAttempts           int    `toml:"max_attempts"`
	InitialBackoffSeconds int    `toml:"initial_backoff_seconds"`
	MaxBackoffSeconds     int    `toml:"max_backoff_seconds"`
	BreakerThreshold      int    `toml:"breaker_threshold"`
	BreakerCooldownSecs   int    `toml:"breaker_cooldown_seconds"`
}

type RecallConfig struct {
	QueryTimeoutSeconds int `toml:"query_timeout_seconds"`
}

// ContextConfig bounds the pre-analysis history digest.
type ContextConfig struct {
	SymbolLimit    int `toml:"symbol_limit"`
	ConditionLimit int `toml:"condition_limit"`
	WindowDays     int `toml:"window_days"`
	ScanLimit      int `toml:"scan_limit"`
}

// keySet tracks the field paths explicitly present in the config files, so
// defaults never clobber an intentional zero value.
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}

// fieldDefault describes the default rule for a single field.
type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
