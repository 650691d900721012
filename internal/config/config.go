// Package config loads process configuration from defaults, an optional
// yaml file and WHENR_ prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment overrides, e.g. WHENR_DATABASE_PATH
const EnvPrefix = "WHENR"

// ErrInvalidConfig wraps validation failures
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds all configuration values
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Search   SearchConfig   `mapstructure:"search"`
	Indexer  IndexerConfig  `mapstructure:"indexer"`
	Log      LogConfig      `mapstructure:"log"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// DatabaseConfig locates the SQLite database
type DatabaseConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// SearchConfig holds the text profile and searcher limits
type SearchConfig struct {
	Locale       string        `mapstructure:"locale" validate:"required"`
	Weights      WeightsConfig `mapstructure:"weights"`
	DefaultLimit int           `mapstructure:"default_limit" validate:"min=1,ltefield=MaxLimit"`
	MaxLimit     int           `mapstructure:"max_limit" validate:"min=1"`
	CacheSize    int           `mapstructure:"cache_size" validate:"min=-1"` // -1 disables the cache
	CacheTTL     time.Duration `mapstructure:"cache_ttl" validate:"gt=0"`
}

// WeightsConfig are the relevance weights of the two lexeme tiers
type WeightsConfig struct {
	Primary   float64 `mapstructure:"primary" validate:"gt=0,gtfield=Secondary"`
	Secondary float64 `mapstructure:"secondary" validate:"gt=0"`
}

// IndexerConfig tunes full reindexing
type IndexerConfig struct {
	Workers   int `mapstructure:"workers" validate:"min=1"`
	BatchSize int `mapstructure:"batch_size" validate:"min=1"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level      string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format     string `mapstructure:"format" validate:"oneof=text json"`
	File       string `mapstructure:"file"` // empty logs to stderr only
	MaxSizeMB  int    `mapstructure:"max_size_mb" validate:"min=1"`
	MaxBackups int    `mapstructure:"max_backups" validate:"min=0"`
	MaxAgeDays int    `mapstructure:"max_age_days" validate:"min=0"`
}

// MetricsConfig controls the prometheus endpoint
type MetricsConfig struct {
	Addr string `mapstructure:"addr" validate:"omitempty,hostname_port"` // empty disables the endpoint
}

// Load reads configuration. With an empty path it looks for config.yaml in
// the working directory and /etc/whenr, and a missing file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/whenr")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when nothing is overridden
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{Path: "whenr.db"},
		Search: SearchConfig{
			Locale:       "english",
			Weights:      WeightsConfig{Primary: 1.0, Secondary: 0.4},
			DefaultLimit: 20,
			MaxLimit:     100,
			CacheSize:    1000,
			CacheTTL:     5 * time.Minute,
		},
		Indexer: IndexerConfig{Workers: 4, BatchSize: 100},
		Log: LogConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
	}
}

func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("database.path", d.Database.Path)

	v.SetDefault("search.locale", d.Search.Locale)
	v.SetDefault("search.weights.primary", d.Search.Weights.Primary)
	v.SetDefault("search.weights.secondary", d.Search.Weights.Secondary)
	v.SetDefault("search.default_limit", d.Search.DefaultLimit)
	v.SetDefault("search.max_limit", d.Search.MaxLimit)
	v.SetDefault("search.cache_size", d.Search.CacheSize)
	v.SetDefault("search.cache_ttl", d.Search.CacheTTL.String())

	v.SetDefault("indexer.workers", d.Indexer.Workers)
	v.SetDefault("indexer.batch_size", d.Indexer.BatchSize)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.max_size_mb", d.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("log.max_age_days", d.Log.MaxAgeDays)

	v.SetDefault("metrics.addr", d.Metrics.Addr)
}

// Validate checks field constraints
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			msgs := make([]string, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}
