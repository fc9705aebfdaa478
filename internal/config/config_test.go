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
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "anthropic", cfg.Model.Provider)
	assert.Equal(t, "claude-sonnet-4-5-20250929", cfg.Anthropic.Model)
	assert.Equal(t, int64(4096), cfg.Anthropic.MaxTokens)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 120*time.Second, cfg.Analysis.StageTimeout())
	assert.Equal(t, 90*time.Second, cfg.Analysis.CheckTimeout())
	assert.Equal(t, 10, cfg.Analysis.MaxRecommendations)
	assert.InDelta(t, 0.1, cfg.Analysis.DefaultWeight, 0.001)
	assert.InDelta(t, 0.35, cfg.Analysis.Weights["contractual_risk"], 0.001)
	assert.Len(t, cfg.Analysis.Weights, 4)
	assert.Equal(t, 3, cfg.Resilience.MaxAttempts)
	assert.InDelta(t, 5.0, cfg.Resilience.RequestsPerSecond, 0.001)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
model:
  provider: openai
store:
  driver: postgres
  database_url: postgres://localhost/lexpilot
log:
  level: debug
  format: console
analysis:
  stage_timeout_secs: 30
  max_recommendations: 5
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.Model.Provider)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 30*time.Second, cfg.Analysis.StageTimeout())
	assert.Equal(t, 5, cfg.Analysis.MaxRecommendations)
	// Defaults still apply for unset values
	assert.Equal(t, 90*time.Second, cfg.Analysis.CheckTimeout())
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("LEXPILOT_STORE_DRIVER", "postgres")
	t.Setenv("LEXPILOT_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)
	t.Setenv("LEXPILOT_ANTHROPIC_KEY", "sk-ant-test")
	t.Setenv("LEXPILOT_SERVER_PORT", "3000")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "sk-ant-test", cfg.Anthropic.Key)
	assert.Equal(t, 3000, cfg.Server.Port)
}

func TestLoadEnvOnlyKeys(t *testing.T) {
	chdirTemp(t)
	t.Setenv("LEXPILOT_OPENAI_KEY", "sk-openai")
	t.Setenv("LEXPILOT_OPENAI_BASE_URL", "http://localhost:9000/v1")
	t.Setenv("LEXPILOT_GEMINI_KEY", "gm-key")
	t.Setenv("LEXPILOT_ANALYSIS_CHECKS_FILE", "checks.yaml")
	t.Setenv("LEXPILOT_MONITORING_WEBHOOK_URL", "https://hooks.example.com/x")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "sk-openai", cfg.OpenAI.Key)
	assert.Equal(t, "http://localhost:9000/v1", cfg.OpenAI.BaseURL)
	assert.Equal(t, "gm-key", cfg.Gemini.Key)
	assert.Equal(t, "checks.yaml", cfg.Analysis.ChecksFile)
	assert.Equal(t, "https://hooks.example.com/x", cfg.Monitoring.WebhookURL)
}

func TestLoadEnvKeyPassesValidate(t *testing.T) {
	chdirTemp(t)
	t.Setenv("LEXPILOT_ANTHROPIC_KEY", "sk-ant-test")

	cfg, err := Load()
	require.NoError(t, err)
	assert.NoError(t, cfg.Validate("analysis"))
}

func TestInitLoggerConsole(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "info", Format: "json"}))
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	assert.Error(t, InitLogger(LogConfig{Level: "invalid", Format: "json"}))
}

// validDefaults returns a Config with the defaults Validate depends on.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Model.Provider = "anthropic"
	cfg.Anthropic.Key = "sk-ant-key"
	cfg.Analysis.StageTimeoutSecs = 120
	cfg.Analysis.CheckTimeoutSecs = 90
	cfg.Server.Port = 8080
	cfg.Store.Driver = "sqlite"
	return cfg
}

func TestValidateAnalysis_AllPresent(t *testing.T) {
	assert.NoError(t, validDefaults().Validate("analysis"))
}

func TestValidateAnalysis_MissingProviderKey(t *testing.T) {
	for _, provider := range []string{"anthropic", "openai", "gemini"} {
		cfg := validDefaults()
		cfg.Anthropic.Key = ""
		cfg.Model.Provider = provider

		err := cfg.Validate("analysis")
		require.Error(t, err, provider)
		assert.Contains(t, err.Error(), provider+".key is required")
	}
}

func TestValidateAnalysis_UnknownProvider(t *testing.T) {
	cfg := validDefaults()
	cfg.Model.Provider = "llama"

	err := cfg.Validate("analysis")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not supported")
}

func TestValidateAnalysis_NegativeWeight(t *testing.T) {
	cfg := validDefaults()
	cfg.Analysis.Weights = map[string]float64{"data_protection": -0.1}

	err := cfg.Validate("analysis")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "analysis.weights.data_protection")
}

func TestValidateAnalysis_Timeouts(t *testing.T) {
	cfg := validDefaults()
	cfg.Analysis.StageTimeoutSecs = 0
	cfg.Analysis.CheckTimeoutSecs = -1

	err := cfg.Validate("analysis")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stage_timeout_secs")
	assert.Contains(t, err.Error(), "check_timeout_secs")
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port")
}

func TestValidateMonitor_RequiresStore(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "none"

	err := cfg.Validate("monitor")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver")
}

func TestValidateUnknownMode(t *testing.T) {
	assert.Error(t, validDefaults().Validate("fedsync"))
}
