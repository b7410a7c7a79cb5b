// File: internal/config/config.go
package config

import (
	"fmt"
	"path/filepath"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	Browser BrowserConfig `mapstructure:"browser" yaml:"browser"`
	Healing HealingConfig `mapstructure:"healing" yaml:"healing"`
	Model   ModelConfig   `mapstructure:"model" yaml:"model"`
	Review  ReviewConfig  `mapstructure:"review" yaml:"review"`
	Run     RunConfig     `mapstructure:"run" yaml:"run"`
}

// LoggerConfig controls the global zap logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// BrowserConfig tunes the Chrome session the runner drives.
type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	ExecPath          string        `mapstructure:"exec_path" yaml:"exec_path"`
	IgnoreTLSErrors   bool          `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	ActionTimeout     time.Duration `mapstructure:"action_timeout" yaml:"action_timeout"`
}

// HealingConfig governs the locator resolution engine.
type HealingConfig struct {
	// SimilarityCutoff is the acceptance threshold for the text-similarity
	// strategy and the identifier-variation strategy, in [0,1].
	SimilarityCutoff float64 `mapstructure:"similarity_cutoff" yaml:"similarity_cutoff"`
	// ExactTimeout bounds the initial re-check of the unmodified locator.
	ExactTimeout time.Duration `mapstructure:"exact_timeout" yaml:"exact_timeout"`
	// StrategyTimeout bounds every fallback strategy so a hanging strategy
	// cannot starve the chain.
	StrategyTimeout time.Duration `mapstructure:"strategy_timeout" yaml:"strategy_timeout"`
	// HistoryBackend selects where the healing history is persisted:
	// "file", "postgres" or "none".
	HistoryBackend string `mapstructure:"history_backend" yaml:"history_backend"`
	// HistoryPath is the JSON file used by the "file" backend.
	HistoryPath string         `mapstructure:"history_path" yaml:"history_path"`
	Postgres    PostgresConfig `mapstructure:"postgres" yaml:"postgres"`
	// ModelAssisted enables the LLM fallback strategy.
	ModelAssisted bool `mapstructure:"model_assisted" yaml:"model_assisted"`
}

// ModelConfig configures the LLM used by the model-assisted strategy.
type ModelConfig struct {
	Model             string        `mapstructure:"model" yaml:"model"`
	APIKey            string        `mapstructure:"api_key" yaml:"api_key"`
	Endpoint          string        `mapstructure:"endpoint" yaml:"endpoint"`
	APITimeout        time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	Temperature       float32       `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens         int           `mapstructure:"max_tokens" yaml:"max_tokens"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
}

// PostgresConfig holds connection details for a PostgreSQL database.
type PostgresConfig struct {
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	User     string `mapstructure:"user" yaml:"user"`
	Password string `mapstructure:"password" yaml:"password"`
	DBName   string `mapstructure:"dbname" yaml:"dbname"`
	SSLMode  string `mapstructure:"sslmode" yaml:"sslmode"`
}

// DSN renders the config as a pgx connection string.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.DBName, p.SSLMode)
}

// ReviewConfig controls the optional human-review queue.
type ReviewConfig struct {
	Enabled  bool           `mapstructure:"enabled" yaml:"enabled"`
	Postgres PostgresConfig `mapstructure:"postgres" yaml:"postgres"`
}

// RunConfig holds settings populated mostly from CLI flags for a run.
type RunConfig struct {
	Concurrency int  `mapstructure:"concurrency" yaml:"concurrency"`
	HealDisable bool `mapstructure:"heal_disable" yaml:"heal_disable"`
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.service_name", "restitch")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.navigation_timeout", "30s")
	v.SetDefault("browser.action_timeout", "10s")

	// -- Healing --
	v.SetDefault("healing.similarity_cutoff", 0.8)
	v.SetDefault("healing.exact_timeout", "1s")
	v.SetDefault("healing.strategy_timeout", "5s")
	v.SetDefault("healing.history_backend", "file")
	v.SetDefault("healing.history_path", defaultHistoryPath())
	v.SetDefault("healing.model_assisted", false)

	// -- Model --
	v.SetDefault("model.model", "gemini-2.5-flash")
	v.SetDefault("model.api_timeout", "60s")
	v.SetDefault("model.temperature", 0.1)
	v.SetDefault("model.max_tokens", 1024)
	v.SetDefault("model.requests_per_minute", 30)

	// -- Review --
	v.SetDefault("review.enabled", false)
	v.SetDefault("review.postgres.host", "localhost")
	v.SetDefault("review.postgres.port", 5432)
	v.SetDefault("review.postgres.user", "postgres")
	v.SetDefault("review.postgres.dbname", "restitch")
	v.SetDefault("review.postgres.sslmode", "disable")

	// -- Run --
	v.SetDefault("run.concurrency", 4)
	v.SetDefault("run.heal_disable", false)
}

// NewFromViper builds and validates a Config from a viper instance.
func NewFromViper(v *viper.Viper) (*Config, error) {
	// Sensitive values come from the environment, never the config file.
	_ = v.BindEnv("model.api_key", "RESTITCH_MODEL_API_KEY")
	_ = v.BindEnv("review.postgres.password", "RESTITCH_REVIEW_PG_PASSWORD")
	_ = v.BindEnv("healing.postgres.password", "RESTITCH_HEALING_PG_PASSWORD")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Healing.SimilarityCutoff < 0.0 || c.Healing.SimilarityCutoff > 1.0 {
		return fmt.Errorf("healing.similarity_cutoff must be between 0.0 and 1.0")
	}
	if c.Healing.ExactTimeout <= 0 || c.Healing.StrategyTimeout <= 0 {
		return fmt.Errorf("healing timeouts must be positive durations")
	}
	switch c.Healing.HistoryBackend {
	case "file", "postgres", "none":
	default:
		return fmt.Errorf("healing.history_backend must be one of file, postgres, none")
	}
	if c.Healing.HistoryBackend == "file" && c.Healing.HistoryPath == "" {
		return fmt.Errorf("healing.history_path is required for the file backend")
	}
	if c.Healing.ModelAssisted && c.Model.APIKey == "" {
		return fmt.Errorf("model.api_key is required when healing.model_assisted is enabled (set RESTITCH_MODEL_API_KEY)")
	}
	if c.Run.Concurrency <= 0 {
		return fmt.Errorf("run.concurrency must be a positive integer")
	}
	return nil
}

// defaultHistoryPath resolves ~/.restitch/healing_history.json, falling back
// to a relative path when the home directory cannot be determined.
func defaultHistoryPath() string {
	home, err := homedir.Dir()
	if err != nil {
		return filepath.Join(".restitch", "healing_history.json")
	}
	return filepath.Join(home, ".restitch", "healing_history.json")
}
