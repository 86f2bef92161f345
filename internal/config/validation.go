package config

import (
	"fmt"
	"strings"

	"gradebook/internal/scheduler"
)

func validate(c *Config) error {
	if err := c.Store.validate(); err != nil {
		return err
	}
	if err := c.Pricing.validate(); err != nil {
		return err
	}
	if err := c.Scorer.validate(); err != nil {
		return err
	}
	if err := c.Memory.validate(); err != nil {
		return err
	}
	if err := c.Context.validate(); err != nil {
		return err
	}
	return nil
}

func (s *StoreConfig) validate() error {
	if strings.TrimSpace(s.Path) == "" {
		return fmt.Errorf("store.path cannot be empty")
	}
	return nil
}

func (p *PricingConfig) validate() error {
	if strings.TrimSpace(p.RESTBaseURL) == "" {
		return fmt.Errorf("pricing.rest_base_url cannot be empty")
	}
	if p.TimeoutSeconds <= 0 {
		return fmt.Errorf("pricing.timeout_seconds must be > 0")
	}
	return nil
}

func (s *ScorerConfig) validate() error {
	if _, ok := scheduler.ParseIntervalDuration(s.SweepInterval); !ok {
		return fmt.Errorf("scorer.sweep_interval is not a valid interval: %s", s.SweepInterval)
	}
	if s.OffsetSeconds < 0 {
		return fmt.Errorf("scorer.offset_seconds must be >= 0")
	}
	if s.MaxParallel <= 0 {
		return fmt.Errorf("scorer.max_parallel must be > 0")
	}
	if s.BatchLimit <= 0 {
		return fmt.Errorf("scorer.batch_limit must be > 0")
	}
	return nil
}

func (m *MemoryConfig) validate() error {
	if !m.Enabled {
		return nil
	}
	if strings.TrimSpace(m.BaseURL) == "" {
		return fmt.Errorf("memory.base_url cannot be empty when memory.enabled=true")
	}
	if m.MaxAttempts <= 0 {
		return fmt.Errorf("memory.max_attempts must be > 0")
	}
	if m.MaxBackoffSeconds < m.InitialBackoffSeconds {
		return fmt.Errorf("memory.max_backoff_seconds must be >= memory.initial_backoff_seconds")
	}
	return nil
}

func (c *ContextConfig) validate() error {
	if c.ScanLimit > 0 && c.SymbolLimit > c.ScanLimit {
		return fmt.Errorf("context.symbol_limit cannot exceed context.scan_limit")
	}
	return nil
}
