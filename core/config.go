package core

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default discovery budgets for the dependency metric dimensions.
const (
	DefaultMaxDependencyTypesToDiscover    = 15
	DefaultMaxDependencyTargetsToDiscover  = 50
	DefaultMaxCloudRoleInstancesToDiscover = 2
	DefaultMaxCloudRoleNamesToDiscover     = 2

	// DefaultFallbackValue replaces a dimension value once its discovery
	// budget or the series limit of its metric is spent.
	DefaultFallbackValue = "DIMENSION-CAPPED"
)

// Config holds all configuration options for the metrics pipeline.
// It supports layered configuration priority:
//  1. Default values (lowest priority)
//  2. Environment variables
//  3. Config file (JSON or YAML), when one is given
//  4. Functional options (highest priority)
//
// Example usage:
//
//	cfg, err := NewConfig(
//	    WithServiceName("checkout"),
//	    WithMaxDependencyTargetsToDiscover(100),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
type Config struct {
	ServiceName string `json:"service_name" yaml:"service_name" env:"CALLMETRICS_SERVICE_NAME" default:"callmetrics"`

	// Workers bounds the number of goroutines feeding records into the pipeline.
	Workers int `json:"workers" yaml:"workers" env:"CALLMETRICS_WORKERS" default:"8"`

	Extraction ExtractionConfig `json:"extraction" yaml:"extraction"`
	Logging    LoggingConfig    `json:"logging" yaml:"logging"`
	HTTP       HTTPConfig       `json:"http" yaml:"http"`
	Telemetry  TelemetryConfig  `json:"telemetry" yaml:"telemetry"`
	Redis      RedisConfig      `json:"redis" yaml:"redis"`
}

// ExtractionConfig holds the discovery budgets of the dependency metric.
// Changing them only takes effect before the extractor is initialized.
type ExtractionConfig struct {
	MaxDependencyTypesToDiscover    int    `json:"max_dependency_types_to_discover" yaml:"max_dependency_types_to_discover" env:"CALLMETRICS_MAX_DEPENDENCY_TYPES" default:"15"`
	MaxDependencyTargetsToDiscover  int    `json:"max_dependency_targets_to_discover" yaml:"max_dependency_targets_to_discover" env:"CALLMETRICS_MAX_DEPENDENCY_TARGETS" default:"50"`
	MaxCloudRoleInstancesToDiscover int    `json:"max_cloud_role_instances_to_discover" yaml:"max_cloud_role_instances_to_discover" env:"CALLMETRICS_MAX_ROLE_INSTANCES" default:"2"`
	MaxCloudRoleNamesToDiscover     int    `json:"max_cloud_role_names_to_discover" yaml:"max_cloud_role_names_to_discover" env:"CALLMETRICS_MAX_ROLE_NAMES" default:"2"`
	FallbackValue                   string `json:"fallback_value" yaml:"fallback_value" env:"CALLMETRICS_FALLBACK_VALUE" default:"DIMENSION-CAPPED"`
}

// LoggingConfig contains logging configuration.
// Supports structured (JSON) and human-readable (text) formats.
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level" env:"CALLMETRICS_LOG_LEVEL" default:"info"`
	Format string `json:"format" yaml:"format" env:"CALLMETRICS_LOG_FORMAT"`
	Output string `json:"output" yaml:"output" env:"CALLMETRICS_LOG_OUTPUT" default:"stdout"`
}

// HTTPConfig configures the /metrics and /health listener of the demo binary.
type HTTPConfig struct {
	Address         string        `json:"address" yaml:"address" env:"CALLMETRICS_HTTP_ADDRESS" default:":9464"`
	ReadTimeout     time.Duration `json:"read_timeout" yaml:"read_timeout" default:"10s"`
	WriteTimeout    time.Duration `json:"write_timeout" yaml:"write_timeout" default:"10s"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout" default:"5s"`
}

// TelemetryConfig configures the export adapters.
type TelemetryConfig struct {
	PrometheusEnabled bool          `json:"prometheus_enabled" yaml:"prometheus_enabled" env:"CALLMETRICS_PROMETHEUS_ENABLED" default:"true"`
	Namespace         string        `json:"namespace" yaml:"namespace" env:"CALLMETRICS_NAMESPACE" default:"callmetrics"`
	OTLPEndpoint      string        `json:"otlp_endpoint" yaml:"otlp_endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	ExportInterval    time.Duration `json:"export_interval" yaml:"export_interval" env:"CALLMETRICS_EXPORT_INTERVAL" default:"60s"`
}

// RedisConfig configures the optional Redis snapshot sink.
type RedisConfig struct {
	Enabled      bool          `json:"enabled" yaml:"enabled" env:"CALLMETRICS_REDIS_ENABLED" default:"false"`
	URL          string        `json:"url" yaml:"url" env:"REDIS_URL"`
	KeyPrefix    string        `json:"key_prefix" yaml:"key_prefix" env:"CALLMETRICS_REDIS_PREFIX" default:"callmetrics"`
	Interval     time.Duration `json:"interval" yaml:"interval" env:"CALLMETRICS_REDIS_INTERVAL" default:"30s"`
	TTL          time.Duration `json:"ttl" yaml:"ttl" default:"10m"`
	MaxFailures  int           `json:"max_failures" yaml:"max_failures" default:"5"`
	RecoveryTime time.Duration `json:"recovery_time" yaml:"recovery_time" default:"30s"`
}

// Option configures Config. Options are applied after env vars and files.
type Option func(*Config) error

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		ServiceName: "callmetrics",
		Workers:     8,
		Extraction: ExtractionConfig{
			MaxDependencyTypesToDiscover:    DefaultMaxDependencyTypesToDiscover,
			MaxDependencyTargetsToDiscover:  DefaultMaxDependencyTargetsToDiscover,
			MaxCloudRoleInstancesToDiscover: DefaultMaxCloudRoleInstancesToDiscover,
			MaxCloudRoleNamesToDiscover:     DefaultMaxCloudRoleNamesToDiscover,
			FallbackValue:                   DefaultFallbackValue,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: "stdout",
		},
		HTTP: HTTPConfig{
			Address:         ":9464",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 5 * time.Second,
		},
		Telemetry: TelemetryConfig{
			PrometheusEnabled: true,
			Namespace:         "callmetrics",
			ExportInterval:    60 * time.Second,
		},
		Redis: RedisConfig{
			KeyPrefix:    "callmetrics",
			Interval:     30 * time.Second,
			TTL:          10 * time.Minute,
			MaxFailures:  5,
			RecoveryTime: 30 * time.Second,
		},
	}
}

// LoadFromEnv loads configuration from environment variables.
// Invalid numeric values are reported instead of silently ignored.
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv("CALLMETRICS_SERVICE_NAME"); v != "" {
		c.ServiceName = v
	}
	if err := envInt("CALLMETRICS_WORKERS", &c.Workers); err != nil {
		return err
	}

	// Extraction budgets
	if err := envInt("CALLMETRICS_MAX_DEPENDENCY_TYPES", &c.Extraction.MaxDependencyTypesToDiscover); err != nil {
		return err
	}
	if err := envInt("CALLMETRICS_MAX_DEPENDENCY_TARGETS", &c.Extraction.MaxDependencyTargetsToDiscover); err != nil {
		return err
	}
	if err := envInt("CALLMETRICS_MAX_ROLE_INSTANCES", &c.Extraction.MaxCloudRoleInstancesToDiscover); err != nil {
		return err
	}
	if err := envInt("CALLMETRICS_MAX_ROLE_NAMES", &c.Extraction.MaxCloudRoleNamesToDiscover); err != nil {
		return err
	}
	if v := os.Getenv("CALLMETRICS_FALLBACK_VALUE"); v != "" {
		c.Extraction.FallbackValue = v
	}

	// Logging
	if v := os.Getenv("CALLMETRICS_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("CALLMETRICS_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("CALLMETRICS_LOG_OUTPUT"); v != "" {
		c.Logging.Output = v
	}

	// HTTP
	if v := os.Getenv("CALLMETRICS_HTTP_ADDRESS"); v != "" {
		c.HTTP.Address = v
	}

	// Telemetry export
	if v := os.Getenv("CALLMETRICS_PROMETHEUS_ENABLED"); v != "" {
		c.Telemetry.PrometheusEnabled = parseBool(v)
	}
	if v := os.Getenv("CALLMETRICS_NAMESPACE"); v != "" {
		c.Telemetry.Namespace = v
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		c.Telemetry.OTLPEndpoint = v
	}
	if err := envDuration("CALLMETRICS_EXPORT_INTERVAL", &c.Telemetry.ExportInterval); err != nil {
		return err
	}

	// Redis sink
	if v := os.Getenv("CALLMETRICS_REDIS_ENABLED"); v != "" {
		c.Redis.Enabled = parseBool(v)
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		c.Redis.URL = v
	}
	if v := os.Getenv("CALLMETRICS_REDIS_PREFIX"); v != "" {
		c.Redis.KeyPrefix = v
	}
	if err := envDuration("CALLMETRICS_REDIS_INTERVAL", &c.Redis.Interval); err != nil {
		return err
	}

	return nil
}

// LoadFromFile loads configuration from a JSON or YAML file.
// Only the keys present in the file override the current values.
func (c *Config) LoadFromFile(path string) error {
	cleanPath := filepath.Clean(path)

	ext := filepath.Ext(cleanPath)
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("unsupported config file extension %s: %w", ext, ErrInvalidConfiguration)
	}

	data, err := os.ReadFile(cleanPath) // nosec G304 -- operator supplied path
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", cleanPath, err)
	}

	switch ext {
	case ".json":
		if err := json.Unmarshal(data, c); err != nil {
			return fmt.Errorf("failed to parse JSON config file: %v: %w", err, ErrInvalidConfiguration)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("failed to parse YAML config file: %v: %w", err, ErrInvalidConfiguration)
		}
	}

	return nil
}

// Validate checks if the configuration is valid and returns an error if not.
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return &FrameworkError{
			Op:      "Config.Validate",
			Kind:    "config",
			Message: "service name is required",
			Err:     ErrMissingConfiguration,
		}
	}
	if c.Workers < 1 {
		return &FrameworkError{
			Op:      "Config.Validate",
			Kind:    "config",
			Message: fmt.Sprintf("workers must be positive, got %d", c.Workers),
			Err:     ErrInvalidConfiguration,
		}
	}
	if err := c.Extraction.Validate(); err != nil {
		return err
	}
	if c.Redis.Enabled && c.Redis.URL == "" {
		return &FrameworkError{
			Op:      "Config.Validate",
			Kind:    "config",
			Message: "redis URL is required when the redis sink is enabled",
			Err:     ErrMissingConfiguration,
		}
	}
	if c.Redis.Enabled && c.Redis.Interval <= 0 {
		return &FrameworkError{
			Op:      "Config.Validate",
			Kind:    "config",
			Message: fmt.Sprintf("redis interval must be positive, got %s", c.Redis.Interval),
			Err:     ErrInvalidConfiguration,
		}
	}
	return nil
}

// Validate checks that every discovery budget is a positive integer.
func (e ExtractionConfig) Validate() error {
	budgets := []struct {
		name  string
		value int
	}{
		{"max_dependency_types_to_discover", e.MaxDependencyTypesToDiscover},
		{"max_dependency_targets_to_discover", e.MaxDependencyTargetsToDiscover},
		{"max_cloud_role_instances_to_discover", e.MaxCloudRoleInstancesToDiscover},
		{"max_cloud_role_names_to_discover", e.MaxCloudRoleNamesToDiscover},
	}
	for _, b := range budgets {
		if b.value <= 0 {
			return &FrameworkError{
				Op:      "ExtractionConfig.Validate",
				Kind:    "config",
				Message: fmt.Sprintf("%s must be positive, got %d", b.name, b.value),
				Err:     ErrInvalidConfiguration,
			}
		}
	}
	if e.FallbackValue == "" {
		return &FrameworkError{
			Op:      "ExtractionConfig.Validate",
			Kind:    "config",
			Message: "fallback value is required",
			Err:     ErrMissingConfiguration,
		}
	}
	return nil
}

// Helper functions

func envInt(key string, dst *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("%s=%q is not an integer: %w", key, v, ErrInvalidConfiguration)
	}
	*dst = n
	return nil
}

func envDuration(key string, dst *time.Duration) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("%s=%q is not a duration: %w", key, v, ErrInvalidConfiguration)
	}
	*dst = d
	return nil
}

// parseBool converts a string to a boolean value.
// Accepts: "true", "1", "yes", "on" (case-insensitive) as true.
// Everything else is false.
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes" || s == "on"
}

// WithServiceName sets the service name used in logs and exported resources.
func WithServiceName(name string) Option {
	return func(c *Config) error {
		c.ServiceName = name
		return nil
	}
}

// WithWorkers sets the number of concurrent record workers.
func WithWorkers(n int) Option {
	return func(c *Config) error {
		c.Workers = n
		return nil
	}
}

// WithMaxDependencyTypesToDiscover sets the call-type discovery budget.
func WithMaxDependencyTypesToDiscover(n int) Option {
	return func(c *Config) error {
		c.Extraction.MaxDependencyTypesToDiscover = n
		return nil
	}
}

// WithMaxDependencyTargetsToDiscover sets the call-target discovery budget.
func WithMaxDependencyTargetsToDiscover(n int) Option {
	return func(c *Config) error {
		c.Extraction.MaxDependencyTargetsToDiscover = n
		return nil
	}
}

// WithMaxCloudRoleInstancesToDiscover sets the role-instance discovery budget.
func WithMaxCloudRoleInstancesToDiscover(n int) Option {
	return func(c *Config) error {
		c.Extraction.MaxCloudRoleInstancesToDiscover = n
		return nil
	}
}

// WithMaxCloudRoleNamesToDiscover sets the role-name discovery budget.
func WithMaxCloudRoleNamesToDiscover(n int) Option {
	return func(c *Config) error {
		c.Extraction.MaxCloudRoleNamesToDiscover = n
		return nil
	}
}

// WithLogLevel sets the logging level (debug, info, warn, error).
func WithLogLevel(level string) Option {
	return func(c *Config) error {
		c.Logging.Level = level
		return nil
	}
}

// WithLogFormat sets the logging format (json or text).
func WithLogFormat(format string) Option {
	return func(c *Config) error {
		c.Logging.Format = format
		return nil
	}
}

// WithHTTPAddress sets the listen address of the metrics/health server.
func WithHTTPAddress(addr string) Option {
	return func(c *Config) error {
		c.HTTP.Address = addr
		return nil
	}
}

// WithOTLPEndpoint enables OTLP/HTTP metric export to the given endpoint.
func WithOTLPEndpoint(endpoint string) Option {
	return func(c *Config) error {
		c.Telemetry.OTLPEndpoint = endpoint
		return nil
	}
}

// WithRedisSink enables the Redis snapshot sink.
func WithRedisSink(url string, interval time.Duration) Option {
	return func(c *Config) error {
		c.Redis.Enabled = true
		c.Redis.URL = url
		if interval > 0 {
			c.Redis.Interval = interval
		}
		return nil
	}
}

// WithConfigFile loads a JSON or YAML file. Options listed after it override the file.
func WithConfigFile(path string) Option {
	return func(c *Config) error {
		return c.LoadFromFile(path)
	}
}

// NewConfig creates a new configuration: defaults, then env vars, then options,
// then validation.
//
// Example:
//
//	cfg, err := NewConfig(
//	    WithServiceName("checkout"),
//	    WithConfigFile("callmetrics.yaml"),
//	)
//	if err != nil {
//	    return err
//	}
func NewConfig(opts ...Option) (*Config, error) {
	cfg := DefaultConfig()

	if err := cfg.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load env config: %w", err)
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}
