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

	assert.InDelta(t, 0.85, cfg.Cleaner.SimilarityThreshold, 0.001)
	assert.InDelta(t, 0.3, cfg.Cleaner.ConfidenceFloor, 0.001)
	assert.Empty(t, cfg.Cleaner.RequiredFields)
	assert.Equal(t, []string{"title", "description", "text"}, cfg.Cleaner.TextFields)
	assert.InDelta(t, 1.0, cfg.Cleaner.QualityWeights.Completeness, 0.001)
	assert.InDelta(t, 1.0, cfg.Cleaner.QualityWeights.Accuracy, 0.001)
	assert.InDelta(t, 1.0, cfg.Cleaner.QualityWeights.Consistency, 0.001)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, 4, cfg.Batch.MaxConcurrentFiles)
	assert.Equal(t, "claude-haiku-4-5-20251001", cfg.Anthropic.Model)
	assert.Equal(t, int64(512), cfg.Anthropic.MaxTokens)
	assert.Equal(t, 24, cfg.Monitoring.LookbackHours)
	assert.InDelta(t, 0.7, cfg.Monitoring.MinOverallScore, 0.001)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
cleaner:
  similarity_threshold: 0.9
  required_fields: [title, email]
  quality_weights:
    completeness: 2
store:
  driver: postgres
log:
  level: debug
  format: console
server:
  port: 9090
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.InDelta(t, 0.9, cfg.Cleaner.SimilarityThreshold, 0.001)
	assert.Equal(t, []string{"title", "email"}, cfg.Cleaner.RequiredFields)
	assert.InDelta(t, 2.0, cfg.Cleaner.QualityWeights.Completeness, 0.001)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	// Defaults still apply for unset values
	assert.InDelta(t, 0.3, cfg.Cleaner.ConfidenceFloor, 0.001)
	assert.InDelta(t, 1.0, cfg.Cleaner.QualityWeights.Accuracy, 0.001)
}

func TestLoadRejectsBadThreshold(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("cleaner:\n  similarity_threshold: 1.5\n"), 0644))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "similarity_threshold")
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("SCRAPECLEAN_STORE_DRIVER", "postgres")
	t.Setenv("SCRAPECLEAN_LOG_LEVEL", "warn")
	t.Setenv("SCRAPECLEAN_CLEANER_CONFIDENCE_FLOOR", "0.5")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.InDelta(t, 0.5, cfg.Cleaner.ConfidenceFloor, 0.001)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	t.Setenv("SCRAPECLEAN_SERVER_PORT", "3000")

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
	cfg.Cleaner.SimilarityThreshold = 0.85
	cfg.Cleaner.ConfidenceFloor = 0.3
	cfg.Cleaner.QualityWeights = QualityWeights{Completeness: 1, Accuracy: 1, Consistency: 1}
	cfg.Store.Driver = "sqlite"
	cfg.Batch.MaxConcurrentFiles = 4
	cfg.Server.Port = 8080
	cfg.Monitoring.LookbackHours = 24
	cfg.Monitoring.MinOverallScore = 0.7
	cfg.Monitoring.MaxInvalidRate = 0.2
	cfg.Monitoring.MaxDuplicateRate = 0.1
	cfg.Anthropic.RequestsPerSecond = 2
	return cfg
}

func TestValidateModes(t *testing.T) {
	cfg := validDefaults()
	assert.NoError(t, cfg.Validate("clean"))
	assert.NoError(t, cfg.Validate("serve"))
	assert.NoError(t, cfg.Validate("monitor"))

	err := cfg.Validate("enrich")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic.key is required")

	cfg.Anthropic.Key = "sk-ant-key"
	assert.NoError(t, cfg.Validate("enrich"))
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

func TestValidateConcurrencyBounds(t *testing.T) {
	cfg := validDefaults()

	cfg.Batch.MaxConcurrentFiles = 0
	err := cfg.Validate("clean")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "max_concurrent_files must be between 1 and 64")

	cfg.Batch.MaxConcurrentFiles = 65
	assert.Error(t, cfg.Validate("clean"))

	cfg.Batch.MaxConcurrentFiles = 64
	assert.NoError(t, cfg.Validate("clean"))
}

func TestValidateStoreDriver(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "mysql"

	err := cfg.Validate("clean")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver")
}

func TestCleanerValidate(t *testing.T) {
	c := validDefaults().Cleaner
	assert.NoError(t, c.Validate())

	c.SimilarityThreshold = -0.1
	err := c.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "similarity_threshold")

	c.SimilarityThreshold = 0.85
	c.ConfidenceFloor = 1.1
	assert.Error(t, c.Validate())

	c.ConfidenceFloor = 0.3
	c.QualityWeights.Accuracy = -1
	err = c.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "quality_weights must be non-negative")
}

func TestValidateMonitorThresholds(t *testing.T) {
	cfg := validDefaults()
	cfg.Monitoring.MaxInvalidRate = 2

	err := cfg.Validate("monitor")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "monitoring thresholds")
}
