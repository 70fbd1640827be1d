package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/FranksOps/rankwatch/internal/rank"
	"github.com/FranksOps/rankwatch/internal/serp"
)

// DefaultInterval is the re-run period of watch mode.
const DefaultInterval = 10 * time.Minute

// Config stores all configuration for the application.
type Config struct {
	ClientID     string        `mapstructure:"NAVER_CLIENT_ID"`
	ClientSecret string        `mapstructure:"NAVER_CLIENT_SECRET"`
	Endpoint     string        `mapstructure:"RANKWATCH_ENDPOINT"`
	KeywordsPath string        `mapstructure:"RANKWATCH_KEYWORDS"`
	OutputDir    string        `mapstructure:"RANKWATCH_OUTPUT_DIR"`
	PageSize     int           `mapstructure:"RANKWATCH_PAGE_SIZE"`
	MaxDepth     int           `mapstructure:"RANKWATCH_MAX_DEPTH"`
	Pause        time.Duration `mapstructure:"RANKWATCH_PAUSE"`
	Timeout      time.Duration `mapstructure:"RANKWATCH_TIMEOUT"`
	Concurrency  int           `mapstructure:"RANKWATCH_CONCURRENCY"`
	Interval     time.Duration `mapstructure:"RANKWATCH_INTERVAL"`
	MetricsPort  int           `mapstructure:"RANKWATCH_METRICS_PORT"`
	JSONLPath    string        `mapstructure:"RANKWATCH_JSONL_PATH"`
	SQLiteDSN    string        `mapstructure:"RANKWATCH_SQLITE_DSN"`
	PostgresDSN  string        `mapstructure:"RANKWATCH_POSTGRES_DSN"`
}

// Load reads configuration from the environment and a config file. With an
// empty path, an optional .env in the working directory is used; an explicit
// path must exist. Environment variables take precedence over the file.
func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigFile(".env")
		v.SetConfigType("env")
	}
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil && path != "" {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	// Every key needs a default so AutomaticEnv can see it during Unmarshal.
	v.SetDefault("NAVER_CLIENT_ID", "")
	v.SetDefault("NAVER_CLIENT_SECRET", "")
	v.SetDefault("RANKWATCH_ENDPOINT", serp.DefaultNaverEndpoint)
	v.SetDefault("RANKWATCH_KEYWORDS", "keywords.csv")
	v.SetDefault("RANKWATCH_OUTPUT_DIR", ".")
	v.SetDefault("RANKWATCH_PAGE_SIZE", rank.DefaultPageSize)
	v.SetDefault("RANKWATCH_MAX_DEPTH", rank.DefaultMaxDepth)
	v.SetDefault("RANKWATCH_PAUSE", serp.DefaultPause)
	v.SetDefault("RANKWATCH_TIMEOUT", serp.DefaultTimeout)
	v.SetDefault("RANKWATCH_CONCURRENCY", 1)
	v.SetDefault("RANKWATCH_INTERVAL", DefaultInterval)
	v.SetDefault("RANKWATCH_METRICS_PORT", 0)
	v.SetDefault("RANKWATCH_JSONL_PATH", "")
	v.SetDefault("RANKWATCH_SQLITE_DSN", "")
	v.SetDefault("RANKWATCH_POSTGRES_DSN", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

// Validate checks the numeric settings. Credentials are checked by the search
// client itself.
func (c *Config) Validate() error {
	var errs []error
	if c.KeywordsPath == "" {
		errs = append(errs, errors.New("RANKWATCH_KEYWORDS must be set"))
	}
	if c.OutputDir == "" {
		errs = append(errs, errors.New("RANKWATCH_OUTPUT_DIR must be set"))
	}
	if c.PageSize < 1 || c.PageSize > 100 {
		errs = append(errs, fmt.Errorf("RANKWATCH_PAGE_SIZE must be between 1 and 100, got %d", c.PageSize))
	}
	if c.MaxDepth < 1 {
		errs = append(errs, fmt.Errorf("RANKWATCH_MAX_DEPTH must be positive, got %d", c.MaxDepth))
	}
	if c.Pause < 0 {
		errs = append(errs, fmt.Errorf("RANKWATCH_PAUSE must not be negative, got %s", c.Pause))
	}
	if c.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("RANKWATCH_TIMEOUT must be positive, got %s", c.Timeout))
	}
	if c.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("RANKWATCH_CONCURRENCY must be at least 1, got %d", c.Concurrency))
	}
	if c.Interval < time.Second {
		errs = append(errs, fmt.Errorf("RANKWATCH_INTERVAL must be at least 1s, got %s", c.Interval))
	}
	if c.MetricsPort < 0 || c.MetricsPort > 65535 {
		errs = append(errs, fmt.Errorf("RANKWATCH_METRICS_PORT out of range: %d", c.MetricsPort))
	}
	return errors.Join(errs...)
}
