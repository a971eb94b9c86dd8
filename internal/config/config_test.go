package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "access.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "https://d2r7gabxtstf5s.cloudfront.net/ex_datasets/", cfg.Dataset.BaseURL)
	assert.NotEmpty(t, cfg.Dataset.CacheDir)
	assert.Equal(t, 60, cfg.Fetch.TimeoutSecs)
	assert.Equal(t, 3, cfg.Fetch.Retries)
	assert.InDelta(t, 4.0, cfg.Fetch.RequestsPerSecond, 0.001)
	assert.InDelta(t, 60.0, cfg.Engine.MaxCost, 0.001)
	assert.InDelta(t, 60.0, cfg.Engine.RAAMTau, 0.001)
	assert.Equal(t, 150, cfg.Engine.RAAMMaxCycles)
	assert.True(t, cfg.Engine.WarnUncovered)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/access
log:
  level: debug
  format: console
server:
  port: 9090
engine:
  raam_tau: 45
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.InDelta(t, 45.0, cfg.Engine.RAAMTau, 0.001)
	// Defaults still apply for unset values
	assert.Equal(t, 150, cfg.Engine.RAAMMaxCycles)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: postgres
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("ACCESS_STORE_DRIVER", "sqlite")
	t.Setenv("ACCESS_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	t.Setenv("ACCESS_SERVER_PORT", "3000")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
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
	cfg.Store.Driver = "sqlite"
	cfg.Dataset.BaseURL = "https://example.com/data/"
	cfg.Dataset.CacheDir = "/tmp/access"
	cfg.Fetch.Retries = 3
	cfg.Fetch.RequestsPerSecond = 4
	cfg.Engine.MaxCost = 60
	cfg.Engine.RAAMTau = 60
	cfg.Engine.RAAMMaxCycles = 150
	cfg.Server.Port = 8080
	return cfg
}

func TestValidateScore(t *testing.T) {
	cfg := validDefaults()
	assert.NoError(t, cfg.Validate("score"))

	cfg.Store.Driver = "mysql"
	err := cfg.Validate("score")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver must be sqlite or postgres")

	cfg.Store.Driver = "postgres"
	cfg.Engine.RAAMTau = 0
	err = cfg.Validate("score")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "engine.raam_tau must be > 0")
}

func TestValidateFetch(t *testing.T) {
	cfg := validDefaults()
	assert.NoError(t, cfg.Validate("fetch"))

	cfg.Dataset.BaseURL = ""
	cfg.Fetch.RequestsPerSecond = 0
	err := cfg.Validate("fetch")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "dataset.base_url is required")
	assert.Contains(t, err.Error(), "fetch.requests_per_second must be > 0")
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}
