package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"go.yaml.in/yaml/v2"

	"github.com/joeychilson/strmanip/logger"
	"github.com/joeychilson/strmanip/rules"
)

const (
	DefaultAddr             = ":8080"
	DefaultMaxInputBytes    = 1 << 20
	DefaultMaxRulesBytes    = 64 << 10
	DefaultMaxBatchItems    = 32
	DefaultBatchConcurrency = 4
	DefaultCacheTTL         = 10 * time.Minute
	DefaultCachePrefix      = "strmanip:"
	DefaultCleanupInterval  = time.Minute
	DefaultRateLimitWindow  = time.Minute
	DefaultRateLimitRequest = 100
)

// Config represents the top-level configuration.
type Config struct {
	Server  ServerConfig `yaml:"server"`
	Engine  EngineConfig `yaml:"engine"`
	Cache   CacheConfig  `yaml:"cache"`
	Log     LogConfig    `yaml:"log"`
	Presets []Preset     `yaml:"presets"`
}

// New returns a new Config with defaults.
func New() *Config {
	return &Config{
		Server: ServerConfig{Addr: DefaultAddr},
		Cache:  CacheConfig{TTL: DefaultCacheTTL},
		Log:    LogConfig{Level: "info", Format: string(logger.FormatJSON)},
	}
}

// ServerConfig configures the HTTP host.
type ServerConfig struct {
	Addr      string          `yaml:"addr,omitempty"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// GetAddr returns the listen address with a default of :8080.
func (s *ServerConfig) GetAddr() string {
	if s.Addr != "" {
		return s.Addr
	}
	return DefaultAddr
}

// RateLimitConfig defines per-client request limits for the HTTP host.
type RateLimitConfig struct {
	Requests int           `yaml:"requests,omitempty"`
	Window   time.Duration `yaml:"window,omitempty"`
}

// GetRequests returns the request limit per window with a default of 100.
func (r *RateLimitConfig) GetRequests() int {
	if r.Requests > 0 {
		return r.Requests
	}
	return DefaultRateLimitRequest
}

// GetWindow returns the rate limit window with a default of one minute.
func (r *RateLimitConfig) GetWindow() time.Duration {
	if r.Window > 0 {
		return r.Window
	}
	return DefaultRateLimitWindow
}

// EngineConfig bounds the work accepted per run.
type EngineConfig struct {
	MaxInputBytes    int `yaml:"max_input_bytes,omitempty"`
	MaxRulesBytes    int `yaml:"max_rules_bytes,omitempty"`
	MaxBatchItems    int `yaml:"max_batch_items,omitempty"`
	BatchConcurrency int `yaml:"batch_concurrency,omitempty"`
}

// GetMaxInputBytes returns the input size limit with a default of 1 MiB.
func (e *EngineConfig) GetMaxInputBytes() int {
	if e.MaxInputBytes > 0 {
		return e.MaxInputBytes
	}
	return DefaultMaxInputBytes
}

// GetMaxRulesBytes returns the rules size limit with a default of 64 KiB.
func (e *EngineConfig) GetMaxRulesBytes() int {
	if e.MaxRulesBytes > 0 {
		return e.MaxRulesBytes
	}
	return DefaultMaxRulesBytes
}

// GetMaxBatchItems returns the batch size limit with a default of 32.
func (e *EngineConfig) GetMaxBatchItems() int {
	if e.MaxBatchItems > 0 {
		return e.MaxBatchItems
	}
	return DefaultMaxBatchItems
}

// GetBatchConcurrency returns how many batch items run at once (default 4).
func (e *EngineConfig) GetBatchConcurrency() int {
	if e.BatchConcurrency > 0 {
		return e.BatchConcurrency
	}
	return DefaultBatchConcurrency
}

// CacheConfig defines result caching. A zero TTL disables caching.
type CacheConfig struct {
	TTL             time.Duration `yaml:"ttl,omitempty"`
	Prefix          string        `yaml:"prefix,omitempty"`
	CleanupInterval time.Duration `yaml:"cleanup_interval,omitempty"`
}

// IsEnabled returns true if caching is enabled.
func (c *CacheConfig) IsEnabled() bool {
	return c.TTL > 0
}

// GetPrefix returns the cache key prefix with a default of "strmanip:".
func (c *CacheConfig) GetPrefix() string {
	if c.Prefix != "" {
		return c.Prefix
	}
	return DefaultCachePrefix
}

// GetCleanupInterval returns how often the memory cache drops expired entries.
func (c *CacheConfig) GetCleanupInterval() time.Duration {
	if c.CleanupInterval > 0 {
		return c.CleanupInterval
	}
	return DefaultCleanupInterval
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `yaml:"level,omitempty"`
	Format string `yaml:"format,omitempty"`
}

// NewLogger builds a logger writing to stderr from the log settings.
func (l *LogConfig) NewLogger() (logger.Logger, error) {
	level, err := logger.ParseLevel(l.Level)
	if err != nil {
		return nil, err
	}
	return logger.NewWithFormat(os.Stderr, level, logger.Format(l.Format)), nil
}

// Preset is a named rules block that requests can refer to.
type Preset struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
	Rules       string `yaml:"rules"`
}

// Preset returns the preset with the given name.
func (c *Config) Preset(name string) (Preset, bool) {
	for _, p := range c.Presets {
		if p.Name == name {
			return p, true
		}
	}
	return Preset{}, false
}

// LoadConfig loads configuration from a YAML file. Missing fields keep their defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg := New()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration for errors and conflicts.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateEngine(); err != nil {
		return err
	}
	if err := c.validateCache(); err != nil {
		return err
	}
	if err := c.validateLog(); err != nil {
		return err
	}
	return c.validatePresets()
}

func (c *Config) validateServer() error {
	if c.Server.RateLimit.Requests < 0 {
		return fmt.Errorf("server.rate_limit: 'requests' must be >= 0")
	}
	if c.Server.RateLimit.Window < 0 {
		return fmt.Errorf("server.rate_limit: 'window' must be >= 0")
	}
	return nil
}

func (c *Config) validateEngine() error {
	e := c.Engine
	if e.MaxInputBytes < 0 {
		return fmt.Errorf("engine: 'max_input_bytes' must be >= 0")
	}
	if e.MaxRulesBytes < 0 {
		return fmt.Errorf("engine: 'max_rules_bytes' must be >= 0")
	}
	if e.MaxBatchItems < 0 {
		return fmt.Errorf("engine: 'max_batch_items' must be >= 0")
	}
	if e.BatchConcurrency < 0 {
		return fmt.Errorf("engine: 'batch_concurrency' must be >= 0")
	}
	return nil
}

func (c *Config) validateCache() error {
	if c.Cache.TTL < 0 {
		return fmt.Errorf("cache: 'ttl' must be >= 0")
	}
	if c.Cache.CleanupInterval < 0 {
		return fmt.Errorf("cache: 'cleanup_interval' must be >= 0")
	}
	return nil
}

func (c *Config) validateLog() error {
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	switch logger.Format(c.Log.Format) {
	case "", logger.FormatJSON, logger.FormatText:
		return nil
	default:
		return fmt.Errorf("log: 'format' must be 'json' or 'text' (got %q)", c.Log.Format)
	}
}

func (c *Config) validatePresets() error {
	seen := make(map[string]bool, len(c.Presets))
	for i, p := range c.Presets {
		name := strings.TrimSpace(p.Name)
		if name == "" {
			return fmt.Errorf("presets[%d]: 'name' cannot be empty", i)
		}

		ctx := fmt.Sprintf("presets[%d](%s)", i, name)

		if seen[name] {
			return fmt.Errorf("%s: duplicate preset name", ctx)
		}
		seen[name] = true

		if strings.TrimSpace(p.Rules) == "" {
			return fmt.Errorf("%s: 'rules' cannot be empty", ctx)
		}

		_, diags := rules.ParseSet(p.Rules)
		if rules.HasErrors(diags) {
			return fmt.Errorf("%s: rule line %d: %s", ctx, diags[0].RuleLine, diags[0].Message)
		}
	}
	return nil
}
