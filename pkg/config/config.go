// Package config loads and validates configuration from YAML files with
// environment-variable overrides. It provides typed structs for the model
// parameters, the index builder, logging, and metrics.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	pkgerrors "github.com/phrasekit/phrasekit/pkg/errors"
)

// Config is the top-level application configuration.
type Config struct {
	Model   ModelConfig   `yaml:"model"`
	Build   BuildConfig   `yaml:"build"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// ModelConfig controls rule sampling and scoring at query time.
type ModelConfig struct {
	MaxSourcePhrase int    `yaml:"maxSourcePhrase"`
	MaxTargetPhrase int    `yaml:"maxTargetPhrase"`
	SampleSize      int    `yaml:"sampleSize"`
	FeatureTemplate string `yaml:"featureTemplate"`
	CacheThreshold  int    `yaml:"cacheThreshold"`
	Seed            uint64 `yaml:"seed"`
	Parallelism     int    `yaml:"parallelism"`
	UseSystemVocab  bool   `yaml:"useSystemVocab"`
}

// BuildConfig holds the bitext inputs and output path for index construction.
type BuildConfig struct {
	SourcePath string `yaml:"sourcePath"`
	TargetPath string `yaml:"targetPath"`
	AlignPath  string `yaml:"alignPath"`
	OutputPath string `yaml:"outputPath"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with sensible defaults for any
// missing values.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects parameter combinations the model cannot run with.
func (c *Config) Validate() error {
	if c.Model.MaxSourcePhrase <= 0 {
		return pkgerrors.Newf(pkgerrors.ErrInvalidConfig, "maxSourcePhrase must be positive, got %d", c.Model.MaxSourcePhrase)
	}
	if c.Model.MaxTargetPhrase <= 0 {
		return pkgerrors.Newf(pkgerrors.ErrInvalidConfig, "maxTargetPhrase must be positive, got %d", c.Model.MaxTargetPhrase)
	}
	if c.Model.SampleSize <= 0 {
		return pkgerrors.Newf(pkgerrors.ErrInvalidConfig, "sampleSize must be positive, got %d", c.Model.SampleSize)
	}
	if c.Model.CacheThreshold <= 0 {
		return pkgerrors.Newf(pkgerrors.ErrInvalidConfig, "cacheThreshold must be positive, got %d", c.Model.CacheThreshold)
	}
	switch c.Model.FeatureTemplate {
	case "dense", "dense-ext":
	default:
		return pkgerrors.Newf(pkgerrors.ErrUnknownTemplate, "%q", c.Model.FeatureTemplate)
	}
	return nil
}

// defaultConfig returns a Config with the model defaults used in production.
func defaultConfig() *Config {
	return &Config{
		Model: ModelConfig{
			MaxSourcePhrase: 7,
			MaxTargetPhrase: 7,
			SampleSize:      100,
			FeatureTemplate: "dense",
			CacheThreshold:  1000,
			Seed:            1,
			Parallelism:     0,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads PK_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PK_MODEL_MAX_SOURCE_PHRASE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Model.MaxSourcePhrase = n
		}
	}
	if v := os.Getenv("PK_MODEL_MAX_TARGET_PHRASE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Model.MaxTargetPhrase = n
		}
	}
	if v := os.Getenv("PK_MODEL_SAMPLE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Model.SampleSize = n
		}
	}
	if v := os.Getenv("PK_MODEL_FEATURE_TEMPLATE"); v != "" {
		cfg.Model.FeatureTemplate = v
	}
	if v := os.Getenv("PK_MODEL_SEED"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.Model.Seed = n
		}
	}
	if v := os.Getenv("PK_MODEL_PARALLELISM"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Model.Parallelism = n
		}
	}
	if v := os.Getenv("PK_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("PK_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("PK_METRICS_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Metrics.Port = n
		}
	}
}
