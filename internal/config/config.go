package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Model      ModelConfig      `yaml:"model" mapstructure:"model"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	OpenAI     OpenAIConfig     `yaml:"openai" mapstructure:"openai"`
	Gemini     GeminiConfig     `yaml:"gemini" mapstructure:"gemini"`
	Analysis   AnalysisConfig   `yaml:"analysis" mapstructure:"analysis"`
	Resilience ResilienceConfig `yaml:"resilience" mapstructure:"resilience"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// ModelConfig selects the model provider behind the invocation port.
type ModelConfig struct {
	Provider string `yaml:"provider" mapstructure:"provider"` // anthropic, openai, gemini
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// OpenAIConfig holds OpenAI API settings.
type OpenAIConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	BaseURL   string `yaml:"base_url" mapstructure:"base_url"`
	MaxTokens int    `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// GeminiConfig holds Google Gemini API settings.
type GeminiConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int32  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// AnalysisConfig configures the two analysis engines and scoring.
type AnalysisConfig struct {
	StageTimeoutSecs    int                `yaml:"stage_timeout_secs" mapstructure:"stage_timeout_secs"`
	CheckTimeoutSecs    int                `yaml:"check_timeout_secs" mapstructure:"check_timeout_secs"`
	MaxRecommendations  int                `yaml:"max_recommendations" mapstructure:"max_recommendations"`
	DefaultWeight       float64            `yaml:"default_weight" mapstructure:"default_weight"`
	MaxConcurrentChecks int                `yaml:"max_concurrent_checks" mapstructure:"max_concurrent_checks"`
	ChecksFile          string             `yaml:"checks_file" mapstructure:"checks_file"`
	Weights             map[string]float64 `yaml:"weights" mapstructure:"weights"`
}

// StageTimeout is the deadline for one IRAC stage model call.
func (a AnalysisConfig) StageTimeout() time.Duration {
	return time.Duration(a.StageTimeoutSecs) * time.Second
}

// CheckTimeout is the deadline for one compliance check model call.
func (a AnalysisConfig) CheckTimeout() time.Duration {
	return time.Duration(a.CheckTimeoutSecs) * time.Second
}

// ResilienceConfig configures retries, the circuit breaker and client-side
// rate limiting around model calls.
type ResilienceConfig struct {
	MaxAttempts       int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs  int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs      int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	FailureThreshold  int     `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs  int     `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Burst             int     `yaml:"burst" mapstructure:"burst"`
}

// StoreConfig configures the event and run store.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // sqlite, postgres, none
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// MonitoringConfig configures run health alerting.
type MonitoringConfig struct {
	WebhookURL            string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	FailureRateThreshold  float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	DegradedRateThreshold float64 `yaml:"degraded_rate_threshold" mapstructure:"degraded_rate_threshold"`
	LookbackHours         int     `yaml:"lookback_hours" mapstructure:"lookback_hours"`
	CheckIntervalMins     int     `yaml:"check_interval_mins" mapstructure:"check_interval_mins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("LEXPILOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults. Keys without a default still need one so AutomaticEnv
	// picks them up during Unmarshal.
	v.SetDefault("model.provider", "anthropic")
	v.SetDefault("anthropic.key", "")
	v.SetDefault("openai.key", "")
	v.SetDefault("openai.base_url", "")
	v.SetDefault("gemini.key", "")
	v.SetDefault("analysis.checks_file", "")
	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 4096)
	v.SetDefault("openai.model", "gpt-4o")
	v.SetDefault("openai.max_tokens", 4096)
	v.SetDefault("gemini.model", "gemini-2.5-flash")
	v.SetDefault("gemini.max_tokens", 4096)
	v.SetDefault("analysis.stage_timeout_secs", 120)
	v.SetDefault("analysis.check_timeout_secs", 90)
	v.SetDefault("analysis.max_recommendations", 10)
	v.SetDefault("analysis.default_weight", 0.1)
	v.SetDefault("analysis.max_concurrent_checks", 0)
	v.SetDefault("analysis.weights", map[string]float64{
		"data_protection":       0.25,
		"contractual_risk":      0.35,
		"regulatory_disclosure": 0.25,
		"consumer_protection":   0.15,
	})
	v.SetDefault("resilience.max_attempts", 3)
	v.SetDefault("resilience.initial_backoff_ms", 500)
	v.SetDefault("resilience.max_backoff_ms", 10000)
	v.SetDefault("resilience.failure_threshold", 5)
	v.SetDefault("resilience.reset_timeout_secs", 30)
	v.SetDefault("resilience.requests_per_second", 5)
	v.SetDefault("resilience.burst", 5)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "lexpilot.db")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("monitoring.failure_rate_threshold", 0.25)
	v.SetDefault("monitoring.degraded_rate_threshold", 0.5)
	v.SetDefault("monitoring.lookback_hours", 24)
	v.SetDefault("monitoring.check_interval_mins", 15)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command mode depends on. Modes: "analysis",
// "serve", "monitor".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "analysis", "serve":
		errs = append(errs, c.validateAnalysis()...)
		if mode == "serve" && (c.Server.Port <= 0 || c.Server.Port > 65535) {
			errs = append(errs, fmt.Sprintf("server.port must be between 1 and 65535, got %d", c.Server.Port))
		}
	case "monitor":
		if c.Store.Driver == "none" {
			errs = append(errs, "store.driver must not be none for monitoring")
		}
		if c.Monitoring.FailureRateThreshold < 0 || c.Monitoring.FailureRateThreshold > 1 {
			errs = append(errs, "monitoring.failure_rate_threshold must be within [0,1]")
		}
	default:
		return eris.Errorf("config: unknown validation mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateAnalysis() []string {
	var errs []string

	switch c.Model.Provider {
	case "anthropic":
		if c.Anthropic.Key == "" {
			errs = append(errs, "anthropic.key is required")
		}
	case "openai":
		if c.OpenAI.Key == "" {
			errs = append(errs, "openai.key is required")
		}
	case "gemini":
		if c.Gemini.Key == "" {
			errs = append(errs, "gemini.key is required")
		}
	default:
		errs = append(errs, fmt.Sprintf("model.provider %q is not supported", c.Model.Provider))
	}

	if c.Analysis.StageTimeoutSecs <= 0 {
		errs = append(errs, "analysis.stage_timeout_secs must be positive")
	}
	if c.Analysis.CheckTimeoutSecs <= 0 {
		errs = append(errs, "analysis.check_timeout_secs must be positive")
	}
	if c.Analysis.MaxConcurrentChecks < 0 {
		errs = append(errs, "analysis.max_concurrent_checks must be >= 0")
	}
	for name, w := range c.Analysis.Weights {
		if w < 0 {
			errs = append(errs, fmt.Sprintf("analysis.weights.%s must be >= 0", name))
		}
	}
	return errs
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
