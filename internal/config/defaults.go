package config

import "strings"

const (
	defaultAppEnv          = "dev"
	defaultAppLogLevel     = "info"
	defaultAppHTTPAddr     = ":9985"
	defaultAppLogPath      = "/data/logs/gradebook.log"
	defaultStorePath       = "/data/db/outcomes.db"
	defaultPricingREST     = "https://fapi.binance.com"
	defaultPricingTimeout  = 10
	defaultSweepInterval   = "15m"
	defaultSweepOffset     = 10
	defaultSweepParallel   = 4
	defaultSweepBatch      = 500
	defaultMemoryTimeout   = 10
	defaultMemoryAttempts  = 3
	defaultMemoryBackoff   = 1
	defaultMemoryBackoffHi = 30
	defaultBreakerFailures = 5
	defaultBreakerCooldown = 30
	defaultRecallTimeout   = 5
	defaultCtxSymbolLimit  = 5
	defaultCtxCondLimit    = 10
	defaultCtxWindowDays   = 30
	defaultCtxScanLimit    = 100
)

func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Store.applyDefaults(keys)
	c.Pricing.applyDefaults(keys)
	c.Scorer.applyDefaults(keys)
	c.Memory.applyDefaults(keys)
	c.Recall.applyDefaults(keys)
	c.Context.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
		stringFieldDefault("app.log_path", &a.LogPath, defaultAppLogPath),
	)
}

func (s *StoreConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("store.path", &s.Path, defaultStorePath),
	)
}

func (p *PricingConfig) applyDefaults(keys keySet) {
	if p == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("pricing.rest_base_url", &p.RESTBaseURL, defaultPricingREST),
		fieldDefault{
			key:   "pricing.timeout_seconds",
			need:  func() bool { return p.TimeoutSeconds <= 0 },
			apply: func() { p.TimeoutSeconds = defaultPricingTimeout },
		},
	)
}

func (s *ScorerConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("scorer.sweep_interval", &s.SweepInterval, defaultSweepInterval),
		fieldDefault{
			key:   "scorer.offset_seconds",
			need:  func() bool { return s.OffsetSeconds <= 0 },
			apply: func() { s.OffsetSeconds = defaultSweepOffset },
		},
		fieldDefault{
			key:   "scorer.max_parallel",
			need:  func() bool { return s.MaxParallel <= 0 },
			apply: func() { s.MaxParallel = defaultSweepParallel },
		},
		fieldDefault{
			key:   "scorer.batch_limit",
			need:  func() bool { return s.BatchLimit <= 0 },
			apply: func() { s.BatchLimit = defaultSweepBatch },
		},
	)
}

func (m *MemoryConfig) applyDefaults(keys keySet) {
	if m == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "memory.timeout_seconds",
			need:  func() bool { return m.TimeoutSeconds <= 0 },
			apply: func() { m.TimeoutSeconds = defaultMemoryTimeout },
		},
		fieldDefault{
			key:   "memory.max_attempts",
			need:  func() bool { return m.MaxAttempts <= 0 },
			apply: func() { m.MaxAttempts = defaultMemoryAttempts },
		},
		fieldDefault{
			key:   "memory.initial_backoff_seconds",
			need:  func() bool { return m.InitialBackoffSeconds <= 0 },
			apply: func() { m.InitialBackoffSeconds = defaultMemoryBackoff },
		},
		fieldDefault{
			key:   "memory.max_backoff_seconds",
			need:  func() bool { return m.MaxBackoffSeconds <= 0 },
			apply: func() { m.MaxBackoffSeconds = defaultMemoryBackoffHi },
		},
		fieldDefault{
			key:   "memory.breaker_threshold",
			need:  func() bool { return m.BreakerThreshold <= 0 },
			apply: func() { m.BreakerThreshold = defaultBreakerFailures },
		},
		fieldDefault{
			key:   "memory.breaker_cooldown_seconds",
			need:  func() bool { return m.BreakerCooldownSecs <= 0 },
			apply: func() { m.BreakerCooldownSecs = defaultBreakerCooldown },
		},
	)
}

func (r *RecallConfig) applyDefaults(keys keySet) {
	if r == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "recall.query_timeout_seconds",
			need:  func() bool { return r.QueryTimeoutSeconds <= 0 },
			apply: func() { r.QueryTimeoutSeconds = defaultRecallTimeout },
		},
	)
}

func (c *ContextConfig) applyDefaults(keys keySet) {
	if c == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "context.symbol_limit",
			need:  func() bool { return c.SymbolLimit <= 0 },
			apply: func() { c.SymbolLimit = defaultCtxSymbolLimit },
		},
		fieldDefault{
			key:   "context.condition_limit",
			need:  func() bool { return c.ConditionLimit <= 0 },
			apply: func() { c.ConditionLimit = defaultCtxCondLimit },
		},
		fieldDefault{
			key:   "context.window_days",
			need:  func() bool { return c.WindowDays <= 0 },
			apply: func() { c.WindowDays = defaultCtxWindowDays },
		},
		fieldDefault{
			key:   "context.scan_limit",
			need:  func() bool { return c.ScanLimit <= 0 },
			apply: func() { c.ScanLimit = defaultCtxScanLimit },
		},
	)
}

// Helper functions

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}
