package config

import (
	"math"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Cleaner    CleanerConfig    `yaml:"cleaner" mapstructure:"cleaner"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Batch      BatchConfig      `yaml:"batch" mapstructure:"batch"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
}

// CleanerConfig configures the data cleaner.
type CleanerConfig struct {
	SimilarityThreshold float64        `yaml:"similarity_threshold" mapstructure:"similarity_threshold"`
	ConfidenceFloor     float64        `yaml:"confidence_floor" mapstructure:"confidence_floor"`
	RequiredFields      []string       `yaml:"required_fields" mapstructure:"required_fields"`
	ExpectedFields      []string       `yaml:"expected_fields" mapstructure:"expected_fields"`
	TextFields          []string       `yaml:"text_fields" mapstructure:"text_fields"`
	RulesFile           string         `yaml:"rules_file" mapstructure:"rules_file"`
	QualityWeights      QualityWeights `yaml:"quality_weights" mapstructure:"quality_weights"`
}

// QualityWeights controls how completeness, accuracy and consistency combine
// into the overall score.
type QualityWeights struct {
	Completeness float64 `yaml:"completeness" mapstructure:"completeness"`
	Accuracy     float64 `yaml:"accuracy" mapstructure:"accuracy"`
	Consistency  float64 `yaml:"consistency" mapstructure:"consistency"`
}

// Validate checks thresholds and weights.
func (c CleanerConfig) Validate() error {
	var errs []string
	if !inUnit(c.SimilarityThreshold) {
		errs = append(errs, "similarity_threshold must be in [0,1]")
	}
	if !inUnit(c.ConfidenceFloor) {
		errs = append(errs, "confidence_floor must be in [0,1]")
	}
	w := c.QualityWeights
	if w.Completeness < 0 || w.Accuracy < 0 || w.Consistency < 0 {
		errs = append(errs, "quality_weights must be non-negative")
	}
	if len(errs) > 0 {
		return eris.Errorf("config: cleaner validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Validate checks the settings a command mode depends on. Modes are clean,
// serve, monitor and enrich.
func (c *Config) Validate(mode string) error {
	var errs []string

	if err := c.Cleaner.Validate(); err != nil {
		errs = append(errs, err.Error())
	}
	if c.Batch.MaxConcurrentFiles < 1 || c.Batch.MaxConcurrentFiles > 64 {
		errs = append(errs, "batch.max_concurrent_files must be between 1 and 64")
	}
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, "store.driver must be sqlite or postgres")
	}

	switch mode {
	case "clean":
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, "server.port must be > 0")
		}
	case "monitor":
		m := c.Monitoring
		if m.LookbackHours <= 0 {
			errs = append(errs, "monitoring.lookback_hours must be > 0")
		}
		if !inUnit(m.MinOverallScore) || !inUnit(m.MaxInvalidRate) || !inUnit(m.MaxDuplicateRate) {
			errs = append(errs, "monitoring thresholds must be in [0,1]")
		}
	case "enrich":
		if c.Anthropic.Key == "" {
			errs = append(errs, "anthropic.key is required")
		}
		if c.Anthropic.RequestsPerSecond <= 0 {
			errs = append(errs, "anthropic.requests_per_second must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: validation failed for %s: %s", mode, strings.Join(errs, "; "))
	}
	return nil
}

func inUnit(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 1
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
}

// AnthropicConfig holds Anthropic API settings for record enrichment.
type AnthropicConfig struct {
	Key               string  `yaml:"key" mapstructure:"key"`
	Model             string  `yaml:"model" mapstructure:"model"`
	MaxTokens         int64   `yaml:"max_tokens" mapstructure:"max_tokens"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Burst             int     `yaml:"burst" mapstructure:"burst"`
	MaxRetries        int     `yaml:"max_retries" mapstructure:"max_retries"`
	BreakerThreshold  int     `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
}

// BatchConfig configures batch processing.
type BatchConfig struct {
	MaxConcurrentFiles int `yaml:"max_concurrent_files" mapstructure:"max_concurrent_files"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	MaxBodyBytes   int64    `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// MonitoringConfig configures quality monitoring and alerting.
type MonitoringConfig struct {
	Enabled              bool    `yaml:"enabled" mapstructure:"enabled"`
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	LookbackHours        int     `yaml:"lookback_hours" mapstructure:"lookback_hours"`
	CheckIntervalMinutes int     `yaml:"check_interval_minutes" mapstructure:"check_interval_minutes"`
	MinOverallScore      float64 `yaml:"min_overall_score" mapstructure:"min_overall_score"`
	MaxInvalidRate       float64 `yaml:"max_invalid_rate" mapstructure:"max_invalid_rate"`
	MaxDuplicateRate     float64 `yaml:"max_duplicate_rate" mapstructure:"max_duplicate_rate"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("SCRAPECLEAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("cleaner.similarity_threshold", 0.85)
	v.SetDefault("cleaner.confidence_floor", 0.3)
	v.SetDefault("cleaner.required_fields", []string{})
	v.SetDefault("cleaner.expected_fields", []string{})
	v.SetDefault("cleaner.text_fields", []string{"title", "description", "text"})
	v.SetDefault("cleaner.rules_file", "")
	v.SetDefault("cleaner.quality_weights.completeness", 1.0)
	v.SetDefault("cleaner.quality_weights.accuracy", 1.0)
	v.SetDefault("cleaner.quality_weights.consistency", 1.0)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.max_body_bytes", 10<<20)
	v.SetDefault("batch.max_concurrent_files", 4)
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 512)
	v.SetDefault("anthropic.requests_per_second", 2.0)
	v.SetDefault("anthropic.burst", 2)
	v.SetDefault("anthropic.max_retries", 3)
	v.SetDefault("anthropic.breaker_threshold", 5)
	v.SetDefault("monitoring.enabled", false)
	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("monitoring.lookback_hours", 24)
	v.SetDefault("monitoring.check_interval_minutes", 5)
	v.SetDefault("monitoring.min_overall_score", 0.7)
	v.SetDefault("monitoring.max_invalid_rate", 0.2)
	v.SetDefault("monitoring.max_duplicate_rate", 0.1)

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

	if err := cfg.Cleaner.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
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
