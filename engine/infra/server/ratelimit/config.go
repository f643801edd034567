package ratelimit

import (
	"fmt"
	"time"

	"github.com/compozy/relay/pkg/config"
	"github.com/ulule/limiter/v3"
)

// Config represents rate limiting configuration
type Config struct {
	// Limit applied to every dispatched request
	GlobalRate RateConfig `yaml:"global_rate"`

	// Per-module limits replacing the global one
	ModuleRates map[string]RateConfig `yaml:"module_rates"`

	// Options
	Prefix   string `yaml:"prefix"`
	MaxRetry int    `yaml:"max_retry"`

	DisableHeaders bool     `yaml:"disable_headers"`
	ExcludedPaths  []string `yaml:"excluded_paths"`
}

// RateConfig represents a single rate limit configuration
type RateConfig struct {
	Period   time.Duration `yaml:"period"`
	Limit    int64         `yaml:"limit"`
	Disabled bool          `yaml:"disabled,omitempty"`
}

// DefaultConfig returns default rate limiting configuration
func DefaultConfig() *Config {
	return &Config{
		GlobalRate: RateConfig{
			Limit:  100,
			Period: 1 * time.Minute,
		},
		ModuleRates:   map[string]RateConfig{},
		Prefix:        "relay:ratelimit:",
		MaxRetry:      3,
		ExcludedPaths: []string{"/health", "/metrics"},
	}
}

// FromAppConfig builds the limiter configuration from the rate_limit
// section of the application configuration.
func FromAppConfig(cfg *config.RateLimitConfig) *Config {
	out := DefaultConfig()
	if cfg == nil {
		return out
	}
	if cfg.Limit > 0 {
		out.GlobalRate.Limit = cfg.Limit
	}
	if cfg.Period > 0 {
		out.GlobalRate.Period = cfg.Period
	}
	for module, rule := range cfg.Modules {
		period := rule.Period
		if period <= 0 {
			period = out.GlobalRate.Period
		}
		out.ModuleRates[module] = RateConfig{Limit: rule.Limit, Period: period}
	}
	if cfg.Prefix != "" {
		out.Prefix = cfg.Prefix
	}
	out.DisableHeaders = cfg.DisableHeaders
	if cfg.ExcludedPaths != nil {
		out.ExcludedPaths = cfg.ExcludedPaths
	}
	return out
}

// ToLimiterRate converts RateConfig to limiter.Rate
func (rc RateConfig) ToLimiterRate() limiter.Rate {
	return limiter.Rate{
		Period: rc.Period,
		Limit:  rc.Limit,
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.GlobalRate.Limit <= 0 {
		return fmt.Errorf("global rate limit must be positive")
	}
	if c.GlobalRate.Period <= 0 {
		return fmt.Errorf("global rate period must be positive")
	}
	for module, rate := range c.ModuleRates {
		if rate.Limit <= 0 {
			return fmt.Errorf("rate limit for module %s must be positive", module)
		}
		if rate.Period <= 0 {
			return fmt.Errorf("rate period for module %s must be positive", module)
		}
	}
	return nil
}
