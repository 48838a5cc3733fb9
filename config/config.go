// Package config provides YAML configuration loading with validation,
// defaulting, and environment variable substitution for the resilience
// layer, plus hot reload via file watching.
package config

import (
	"bytes"
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Trip strategy names accepted by BreakerConfig.TripStrategy.
const (
	TripConsecutive = "consecutive"
	TripRate        = "rate"
)

// Config is the top-level resilience layer configuration.
type Config struct {
	Logging    LoggingConfig    `yaml:"logging" json:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics" json:"metrics"`
	Resilience ResilienceConfig `yaml:"resilience" json:"resilience"`
	Batch      BatchConfig      `yaml:"batch" json:"batch"`

	// Warnings holds non-fatal config issues detected during loading.
	// Stored on the Config itself (not a package-level var) so it is
	// safe to call Load concurrently from the hot-reload goroutine.
	Warnings []string `yaml:"-" json:"-"`
}

// LoggingConfig holds structured log output settings.
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`   // "debug", "info", "warn", "error"; default: "info"
	Format string `yaml:"format" json:"format"` // "json" or "text"; default: "json"
}

// MetricsConfig holds Prometheus bridge settings.
// Enabled defaults to true; set to false to disable the bridge.
type MetricsConfig struct {
	Enabled   *bool  `yaml:"enabled" json:"enabled"`
	Namespace string `yaml:"namespace" json:"namespace"` // metric name prefix; default: "ragshield"
}

// IsEnabled returns whether the Prometheus bridge is enabled (defaults to true).
func (m MetricsConfig) IsEnabled() bool {
	if m.Enabled == nil {
		return true
	}
	return *m.Enabled
}

// ResilienceConfig holds per-category protection settings plus the shared
// retry policy.
type ResilienceConfig struct {
	Embedding   CategoryConfig `yaml:"embedding" json:"embedding"`
	VectorStore CategoryConfig `yaml:"vector_store" json:"vector_store"`
	Generation  CategoryConfig `yaml:"generation" json:"generation"`
	Retry       RetryConfig    `yaml:"retry" json:"retry"`
}

// CategoryConfig protects one resource category (embedding, vector store, or
// generation).
type CategoryConfig struct {
	Breaker   BreakerConfig   `yaml:"breaker" json:"breaker"`
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`
}

// BreakerConfig configures the category's circuit breaker. TripStrategy
// selects the gate: "consecutive" (default) trips after FailureThreshold
// consecutive failures; "rate" trips when the failure ratio over the most
// recent WindowSize outcomes reaches FailureRatio.
type BreakerConfig struct {
	TripStrategy     string        `yaml:"trip_strategy" json:"trip_strategy"`
	FailureThreshold int           `yaml:"failure_threshold" json:"failure_threshold"` // default: 5
	WindowSize       int           `yaml:"window_size" json:"window_size"`             // default: 20
	FailureRatio     float64       `yaml:"failure_ratio" json:"failure_ratio"`         // default: 0.5
	ResetTimeout     time.Duration `yaml:"reset_timeout" json:"reset_timeout"`         // default: 30s
	HalfOpenMax      int           `yaml:"half_open_max" json:"half_open_max"`         // default: 1
}

// RetryConfig configures exponential backoff retries around primary calls.
// MaxRetries 0 disables retrying.
type RetryConfig struct {
	MaxRetries     int           `yaml:"max_retries" json:"max_retries"`
	InitialBackoff time.Duration `yaml:"initial_backoff" json:"initial_backoff"` // default: 100ms
}

// RateLimitConfig caps the client-side call rate to a provider. Zero
// RequestsPerSecond disables the limiter.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" json:"requests_per_second"`
	Burst             int     `yaml:"burst" json:"burst"` // default: 1 when rate limiting is enabled
}

// BatchConfig holds defaults for bounded batch execution.
type BatchConfig struct {
	Concurrency      int           `yaml:"concurrency" json:"concurrency"` // default: 4
	FailureThreshold int           `yaml:"failure_threshold" json:"failure_threshold"`
	ResetTimeout     time.Duration `yaml:"reset_timeout" json:"reset_timeout"`
}

// envPattern matches ${VAR} and ${VAR:-default} references in raw config text.
var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// Load reads, substitutes, decodes, defaults, and validates the config file
// at path. Unknown YAML fields are rejected.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return Parse(raw)
}

// Parse decodes raw YAML config bytes. See Load.
func Parse(raw []byte) (*Config, error) {
	substituted := substituteEnv(raw)

	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(substituted))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when no file is supplied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// substituteEnv expands ${VAR} and ${VAR:-default} references. Unset
// variables without a default expand to the empty string.
func substituteEnv(raw []byte) []byte {
	return envPattern.ReplaceAllFunc(raw, func(match []byte) []byte {
		groups := envPattern.FindSubmatch(match)
		name := string(groups[1])
		if value, ok := os.LookupEnv(name); ok {
			return []byte(value)
		}
		return groups[3]
	})
}

func (c *Config) applyDefaults() {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = "ragshield"
	}

	for _, cat := range []*CategoryConfig{&c.Resilience.Embedding, &c.Resilience.VectorStore, &c.Resilience.Generation} {
		cat.Breaker.applyDefaults()
		if cat.RateLimit.RequestsPerSecond > 0 && cat.RateLimit.Burst < 1 {
			cat.RateLimit.Burst = 1
		}
	}

	if c.Resilience.Retry.InitialBackoff <= 0 {
		c.Resilience.Retry.InitialBackoff = 100 * time.Millisecond
	}

	if c.Batch.Concurrency < 1 {
		c.Batch.Concurrency = 4
	}
	if c.Batch.FailureThreshold > 0 && c.Batch.ResetTimeout <= 0 {
		c.Batch.ResetTimeout = 30 * time.Second
	}
}

func (b *BreakerConfig) applyDefaults() {
	if b.TripStrategy == "" {
		b.TripStrategy = TripConsecutive
	}
	if b.FailureThreshold < 1 {
		b.FailureThreshold = 5
	}
	if b.WindowSize < 1 {
		b.WindowSize = 20
	}
	if b.FailureRatio <= 0 {
		b.FailureRatio = 0.5
	}
	if b.ResetTimeout == 0 {
		b.ResetTimeout = 30 * time.Second
	}
	if b.HalfOpenMax < 1 {
		b.HalfOpenMax = 1
	}
}

// Validate checks the configuration, returning an error for fatal problems
// and appending to Warnings for suspicious-but-usable settings.
func (c *Config) Validate() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unknown level %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("logging.format: must be \"json\" or \"text\", got %q", c.Logging.Format)
	}

	for _, cat := range []struct {
		name string
		cfg  *CategoryConfig
	}{
		{"resilience.embedding", &c.Resilience.Embedding},
		{"resilience.vector_store", &c.Resilience.VectorStore},
		{"resilience.generation", &c.Resilience.Generation},
	} {
		if err := cat.cfg.Breaker.validate(cat.name); err != nil {
			return err
		}
		if cat.cfg.Breaker.ResetTimeout < 0 {
			return fmt.Errorf("%s.breaker.reset_timeout: must not be negative", cat.name)
		}
		if cat.cfg.Breaker.ResetTimeout < time.Second && cat.cfg.Breaker.ResetTimeout >= 0 {
			c.Warnings = append(c.Warnings, fmt.Sprintf("%s.breaker.reset_timeout below 1s; the breaker will re-probe almost immediately", cat.name))
		}
		if cat.cfg.RateLimit.RequestsPerSecond < 0 {
			return fmt.Errorf("%s.rate_limit.requests_per_second: must not be negative", cat.name)
		}
	}

	if c.Resilience.Retry.MaxRetries < 0 {
		return fmt.Errorf("resilience.retry.max_retries: must not be negative")
	}
	if c.Resilience.Retry.MaxRetries > 10 {
		c.Warnings = append(c.Warnings, "resilience.retry.max_retries above 10; retry storms can amplify provider outages")
	}

	if c.Batch.Concurrency > 64 {
		c.Warnings = append(c.Warnings, "batch.concurrency above 64; most providers throttle well below this")
	}

	return nil
}

func (b *BreakerConfig) validate(prefix string) error {
	switch b.TripStrategy {
	case TripConsecutive, TripRate:
	default:
		return fmt.Errorf("%s.breaker.trip_strategy: must be %q or %q, got %q", prefix, TripConsecutive, TripRate, b.TripStrategy)
	}
	if b.TripStrategy == TripRate && b.FailureRatio > 1 {
		return fmt.Errorf("%s.breaker.failure_ratio: must be in (0, 1], got %g", prefix, b.FailureRatio)
	}
	return nil
}
