package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8000", cfg.API.BaseURL)
	assert.Equal(t, 60, cfg.API.TimeoutSecs)
	assert.InDelta(t, 5.0, cfg.API.RatePerSec, 0.001)
	assert.Equal(t, 5, cfg.API.Burst)
	assert.Equal(t, 3, cfg.API.Retry.MaxAttempts)
	assert.Equal(t, 500, cfg.API.Retry.InitialBackoffMS)
	assert.InDelta(t, 2.0, cfg.API.Retry.Multiplier, 0.001)
	assert.Equal(t, 300, cfg.Stream.IdleTimeoutSecs)
	assert.Equal(t, 5*time.Minute, cfg.Stream.IdleTimeout())
	assert.Equal(t, 4096, cfg.Stream.ReadChunkBytes)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "wbcard.db", cfg.Store.DatabaseURL)
	assert.Equal(t, 3, cfg.Batch.MaxConcurrent)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, "auto", cfg.Output.Color)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
api:
  base_url: https://wb-admin.example.com
  retry:
    max_attempts: 5
store:
  driver: postgres
  database_url: postgres://localhost/wbcard
log:
  level: debug
  format: json
batch:
  max_concurrent: 8
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://wb-admin.example.com", cfg.API.BaseURL)
	assert.Equal(t, 5, cfg.API.Retry.MaxAttempts)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/wbcard", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8, cfg.Batch.MaxConcurrent)
	// Defaults still apply for unset values
	assert.Equal(t, 60, cfg.API.TimeoutSecs)
	assert.Equal(t, 500, cfg.API.Retry.InitialBackoffMS)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("WBCARD_STORE_DRIVER", "sqlite")
	t.Setenv("WBCARD_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("WBCARD_API_BASE_URL", "http://10.0.0.5:8000")
	t.Setenv("WBCARD_STREAM_IDLE_TIMEOUT_SECS", "0")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "http://10.0.0.5:8000", cfg.API.BaseURL)
	assert.Equal(t, time.Duration(0), cfg.Stream.IdleTimeout())
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("api: [unclosed"), 0644))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read file")
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.API.BaseURL = "http://localhost:8000"
	cfg.API.TimeoutSecs = 60
	cfg.API.RatePerSec = 5
	cfg.API.Retry.MaxAttempts = 3
	cfg.Stream.IdleTimeoutSecs = 300
	cfg.Stream.ReadChunkBytes = 4096
	cfg.Store.Driver = "sqlite"
	cfg.Store.DatabaseURL = "wbcard.db"
	cfg.Batch.MaxConcurrent = 3
	return cfg
}

func TestValidate_AllModesPass(t *testing.T) {
	cfg := validDefaults()
	for _, mode := range []string{"api", "stream", "store"} {
		assert.NoError(t, cfg.Validate(mode), mode)
	}
}

func TestValidateAPI_MissingFields(t *testing.T) {
	cfg := validDefaults()
	cfg.API.BaseURL = ""
	cfg.API.TimeoutSecs = 0
	cfg.API.Retry.MaxAttempts = 0

	err := cfg.Validate("api")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api.base_url is required")
	assert.Contains(t, err.Error(), "api.timeout_secs must be > 0")
	assert.Contains(t, err.Error(), "api.retry.max_attempts must be > 0")
}

func TestValidateStream_Bounds(t *testing.T) {
	cfg := validDefaults()

	cfg.Batch.MaxConcurrent = 0
	err := cfg.Validate("stream")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "batch.max_concurrent must be between 1 and 20")

	cfg.Batch.MaxConcurrent = 21
	require.Error(t, cfg.Validate("stream"))

	cfg.Batch.MaxConcurrent = 20
	cfg.Stream.IdleTimeoutSecs = -1
	cfg.Stream.ReadChunkBytes = 0
	err = cfg.Validate("stream")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stream.idle_timeout_secs")
	assert.Contains(t, err.Error(), "stream.read_chunk_bytes")

	// stream limits do not matter for plain requests
	assert.NoError(t, cfg.Validate("api"))
}

func TestValidateStore(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "mysql"

	err := cfg.Validate("store")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver must be sqlite or postgres")

	cfg.Store.Driver = "postgres"
	cfg.Store.DatabaseURL = ""
	err = cfg.Validate("store")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}
