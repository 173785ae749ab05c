// Package config loads scanbook settings from defaults, an optional YAML
// file, SCANBOOK_* environment variables and command-line flags, in
// increasing order of precedence.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/valpere/scanbook/internal/chunker"
	"github.com/valpere/scanbook/internal/corrector"
	"github.com/valpere/scanbook/internal/cost"
	"github.com/valpere/scanbook/internal/dispatcher"
)

const envPrefix = "SCANBOOK"

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type Config struct {
	Provider        string        `mapstructure:"provider"`
	ModelID         string        `mapstructure:"model_id"`
	APIKey          string        `mapstructure:"api_key"`
	BaseURL         string        `mapstructure:"base_url"`
	Language        string        `mapstructure:"language"`
	Temperature     float64       `mapstructure:"temperature"`
	MaxOutputTokens int           `mapstructure:"max_output_tokens"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`

	MaxTokensPerChunk int    `mapstructure:"max_tokens_per_chunk"`
	Estimator         string `mapstructure:"estimator"`
	ContextWords      int    `mapstructure:"context_words"`

	ConcurrencyLimit  int           `mapstructure:"concurrency_limit"`
	MaxRetries        int           `mapstructure:"max_retries"`
	AttemptTimeout    time.Duration `mapstructure:"attempt_timeout"`
	BaseDelay         time.Duration `mapstructure:"base_delay"`
	MaxDelay          time.Duration `mapstructure:"max_delay"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	DivergenceRatio   float64       `mapstructure:"divergence_ratio"`
	LanguageCheck     bool          `mapstructure:"language_check"`

	MaxCostLimit float64 `mapstructure:"max_cost_limit"`
	// RateTable is decoded on its own: model names contain dots, which
	// viper treats as key separators when flattening.
	RateTable cost.RateTable `mapstructure:"-"`

	DBPath      string    `mapstructure:"db_path"`
	NoCache     bool      `mapstructure:"no_cache"`
	MetricsAddr string    `mapstructure:"metrics_addr"`
	Log         LogConfig `mapstructure:"log"`
}

// flagKeys maps command-line flag names to configuration keys.
var flagKeys = map[string]string{
	"provider":            "provider",
	"model":               "model_id",
	"api-key":             "api_key",
	"base-url":            "base_url",
	"language":            "language",
	"temperature":         "temperature",
	"max-output-tokens":   "max_output_tokens",
	"max-tokens":          "max_tokens_per_chunk",
	"estimator":           "estimator",
	"context-words":       "context_words",
	"concurrency":         "concurrency_limit",
	"max-retries":         "max_retries",
	"attempt-timeout":     "attempt_timeout",
	"requests-per-second": "requests_per_second",
	"max-cost":            "max_cost_limit",
	"db":                  "db_path",
	"no-cache":            "no_cache",
	"language-check":      "language_check",
	"metrics-addr":        "metrics_addr",
	"log-level":           "log.level",
	"log-format":          "log.format",
}

// Load reads the configuration. path may be empty. Flags in flags that are
// listed in flagKeys override every other source when set.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	if path != "" {
		if err := loadConfigFile(v, path); err != nil {
			return nil, err
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := v.UnmarshalKey("rate_table", &cfg.RateTable); err != nil {
		return nil, fmt.Errorf("failed to unmarshal rate_table: %w", err)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv(apiKeyEnv(cfg.Provider))
	}
	return &cfg, nil
}

func loadConfigFile(v *viper.Viper, path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := v.ReadConfig(strings.NewReader(expandEnv(string(content)))); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

var envPlaceholder = regexp.MustCompile(`\$\{(\w+)(:([^}]*))?\}`)

// expandEnv replaces ${VAR} and ${VAR:default} placeholders. Unknown
// variables without a default are left as they are.
func expandEnv(s string) string {
	return envPlaceholder.ReplaceAllStringFunc(s, func(match string) string {
		m := envPlaceholder.FindStringSubmatch(match)
		if val, ok := os.LookupEnv(m[1]); ok {
			return val
		}
		if m[2] != "" {
			return m[3]
		}
		return match
	})
}

func apiKeyEnv(provider string) string {
	switch strings.ToLower(provider) {
	case "openai":
		return "OPENAI_API_KEY"
	case "openrouter":
		return "OPENROUTER_API_KEY"
	case "anthropic", "claude":
		return "ANTHROPIC_API_KEY"
	}
	return ""
}

func setDefaults(v *viper.Viper) {
	d := dispatcher.DefaultConfig()

	v.SetDefault("provider", "anthropic")
	v.SetDefault("model_id", "claude-sonnet-4-20250514")
	v.SetDefault("api_key", "")
	v.SetDefault("base_url", "")
	v.SetDefault("language", "")
	v.SetDefault("temperature", corrector.DefaultTemperature)
	v.SetDefault("max_output_tokens", corrector.DefaultMaxOutputTokens)
	v.SetDefault("request_timeout", "180s")

	v.SetDefault("max_tokens_per_chunk", chunker.DefaultMaxTokens)
	v.SetDefault("estimator", "scaled")
	v.SetDefault("context_words", d.ContextWords)

	v.SetDefault("concurrency_limit", d.ConcurrencyLimit)
	v.SetDefault("max_retries", d.MaxRetries)
	v.SetDefault("attempt_timeout", d.AttemptTimeout.String())
	v.SetDefault("base_delay", d.BaseDelay.String())
	v.SetDefault("max_delay", d.MaxDelay.String())
	v.SetDefault("requests_per_second", 0.0)
	v.SetDefault("divergence_ratio", d.DivergenceRatio)
	v.SetDefault("language_check", true)

	v.SetDefault("max_cost_limit", 10.0)

	v.SetDefault("db_path", "./data/scanbook.db")
	v.SetDefault("no_cache", false)
	v.SetDefault("metrics_addr", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Validate reports the first setting that cannot work.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Provider) {
	case "openai", "openrouter", "anthropic", "claude":
		if c.APIKey == "" {
			return fmt.Errorf("provider %s requires an API key (set %s or SCANBOOK_API_KEY)", c.Provider, apiKeyEnv(c.Provider))
		}
	case "ollama":
	default:
		return fmt.Errorf("unknown provider %q", c.Provider)
	}
	if c.ModelID == "" {
		return fmt.Errorf("model_id is required")
	}
	if c.MaxTokensPerChunk <= 0 {
		return fmt.Errorf("max_tokens_per_chunk must be positive, got %d", c.MaxTokensPerChunk)
	}
	if c.ConcurrencyLimit <= 0 {
		return fmt.Errorf("concurrency_limit must be positive, got %d", c.ConcurrencyLimit)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative, got %d", c.MaxRetries)
	}
	if c.MaxCostLimit < 0 {
		return fmt.Errorf("max_cost_limit must not be negative")
	}
	if _, err := chunker.NewEstimator(c.Estimator); err != nil {
		return err
	}
	return nil
}

// Rates returns the built-in rate table with configured rates applied on top.
func (c *Config) Rates() cost.RateTable {
	return cost.DefaultRates().Merge(c.RateTable)
}

func (c *Config) Dispatcher() dispatcher.Config {
	return dispatcher.Config{
		ConcurrencyLimit:  c.ConcurrencyLimit,
		MaxRetries:        c.MaxRetries,
		AttemptTimeout:    c.AttemptTimeout,
		BaseDelay:         c.BaseDelay,
		MaxDelay:          c.MaxDelay,
		RequestsPerSecond: c.RequestsPerSecond,
		Model:             c.ModelID,
		Language:          c.Language,
		DivergenceRatio:   c.DivergenceRatio,
		LanguageCheck:     c.LanguageCheck,
		ContextWords:      c.ContextWords,
	}
}

func (c *Config) Service() corrector.ServiceConfig {
	return corrector.ServiceConfig{
		APIKey:          c.APIKey,
		BaseURL:         c.BaseURL,
		Timeout:         c.RequestTimeout,
		MaxOutputTokens: c.MaxOutputTokens,
		Temperature:     c.Temperature,
	}
}
