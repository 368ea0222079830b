package core

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "callmetrics", cfg.ServiceName)
	assert.Equal(t, 15, cfg.Extraction.MaxDependencyTypesToDiscover)
	assert.Equal(t, 50, cfg.Extraction.MaxDependencyTargetsToDiscover)
	assert.Equal(t, 2, cfg.Extraction.MaxCloudRoleInstancesToDiscover)
	assert.Equal(t, 2, cfg.Extraction.MaxCloudRoleNamesToDiscover)
	assert.Equal(t, "DIMENSION-CAPPED", cfg.Extraction.FallbackValue)
	assert.True(t, cfg.Telemetry.PrometheusEnabled)
	assert.False(t, cfg.Redis.Enabled)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("CALLMETRICS_SERVICE_NAME", "checkout")
	t.Setenv("CALLMETRICS_MAX_DEPENDENCY_TYPES", "20")
	t.Setenv("CALLMETRICS_MAX_DEPENDENCY_TARGETS", "100")
	t.Setenv("CALLMETRICS_MAX_ROLE_INSTANCES", "4")
	t.Setenv("CALLMETRICS_MAX_ROLE_NAMES", "3")
	t.Setenv("CALLMETRICS_LOG_LEVEL", "debug")
	t.Setenv("CALLMETRICS_REDIS_ENABLED", "yes")
	t.Setenv("REDIS_URL", "redis://localhost:6379")
	t.Setenv("CALLMETRICS_REDIS_INTERVAL", "5s")

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromEnv())

	assert.Equal(t, "checkout", cfg.ServiceName)
	assert.Equal(t, 20, cfg.Extraction.MaxDependencyTypesToDiscover)
	assert.Equal(t, 100, cfg.Extraction.MaxDependencyTargetsToDiscover)
	assert.Equal(t, 4, cfg.Extraction.MaxCloudRoleInstancesToDiscover)
	assert.Equal(t, 3, cfg.Extraction.MaxCloudRoleNamesToDiscover)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "redis://localhost:6379", cfg.Redis.URL)
	assert.Equal(t, 5*time.Second, cfg.Redis.Interval)
}

func TestLoadFromEnvRejectsGarbage(t *testing.T) {
	t.Setenv("CALLMETRICS_MAX_DEPENDENCY_TARGETS", "lots")

	cfg := DefaultConfig()
	err := cfg.LoadFromEnv()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidConfiguration))
}

func TestLoadFromFileYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "callmetrics.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
service_name: payments
extraction:
  max_dependency_types_to_discover: 3
  fallback_value: Capped
redis:
  enabled: true
  url: redis://cache:6379
  interval: 15s
`), 0o600))

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromFile(path))

	assert.Equal(t, "payments", cfg.ServiceName)
	assert.Equal(t, 3, cfg.Extraction.MaxDependencyTypesToDiscover)
	assert.Equal(t, 50, cfg.Extraction.MaxDependencyTargetsToDiscover, "keys absent from the file keep their defaults")
	assert.Equal(t, "Capped", cfg.Extraction.FallbackValue)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, 15*time.Second, cfg.Redis.Interval)
}

func TestLoadFromFileJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "callmetrics.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"service_name":"orders","workers":2}`), 0o600))

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromFile(path))
	assert.Equal(t, "orders", cfg.ServiceName)
	assert.Equal(t, 2, cfg.Workers)
}

func TestLoadFromFileErrors(t *testing.T) {
	dir := t.TempDir()

	cfg := DefaultConfig()
	err := cfg.LoadFromFile(filepath.Join(dir, "config.toml"))
	assert.True(t, errors.Is(err, ErrInvalidConfiguration))

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("extraction: [unterminated"), 0o600))
	err = cfg.LoadFromFile(bad)
	assert.True(t, errors.Is(err, ErrInvalidConfiguration))

	err = cfg.LoadFromFile(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
		errMsg  string
	}{
		{
			name:   "defaults are valid",
			mutate: func(*Config) {},
		},
		{
			name:    "empty service name",
			mutate:  func(c *Config) { c.ServiceName = "" },
			wantErr: ErrMissingConfiguration,
			errMsg:  "service name is required",
		},
		{
			name:    "zero workers",
			mutate:  func(c *Config) { c.Workers = 0 },
			wantErr: ErrInvalidConfiguration,
			errMsg:  "workers must be positive",
		},
		{
			name:    "zero type budget",
			mutate:  func(c *Config) { c.Extraction.MaxDependencyTypesToDiscover = 0 },
			wantErr: ErrInvalidConfiguration,
			errMsg:  "max_dependency_types_to_discover must be positive",
		},
		{
			name:    "negative role name budget",
			mutate:  func(c *Config) { c.Extraction.MaxCloudRoleNamesToDiscover = -1 },
			wantErr: ErrInvalidConfiguration,
			errMsg:  "max_cloud_role_names_to_discover must be positive",
		},
		{
			name:    "empty fallback",
			mutate:  func(c *Config) { c.Extraction.FallbackValue = "" },
			wantErr: ErrMissingConfiguration,
			errMsg:  "fallback value is required",
		},
		{
			name:    "redis enabled without url",
			mutate:  func(c *Config) { c.Redis.Enabled = true },
			wantErr: ErrMissingConfiguration,
			errMsg:  "redis URL is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr))
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestNewConfigOptionsOverrideEnv(t *testing.T) {
	t.Setenv("CALLMETRICS_MAX_DEPENDENCY_TARGETS", "10")

	cfg, err := NewConfig(
		WithServiceName("inventory"),
		WithMaxDependencyTargetsToDiscover(25),
		WithRedisSink("redis://localhost:6379", time.Second),
	)
	require.NoError(t, err)

	assert.Equal(t, "inventory", cfg.ServiceName)
	assert.Equal(t, 25, cfg.Extraction.MaxDependencyTargetsToDiscover)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, time.Second, cfg.Redis.Interval)
}

func TestNewConfigInvalid(t *testing.T) {
	_, err := NewConfig(WithMaxCloudRoleInstancesToDiscover(0))
	require.Error(t, err)
	assert.True(t, IsConfigurationError(err))
}
