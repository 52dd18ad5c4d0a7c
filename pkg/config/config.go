// Package config provides configuration loading and validation for indexbag.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/viper"

	"github.com/Sumatoshi-tech/indexbag/pkg/persist"
)

// Sentinel validation errors.
var (
	ErrInvalidOps       = errors.New("rapid ops must not be negative")
	ErrInvalidBase      = errors.New("rapid base must not be negative")
	ErrInvalidPageSize  = errors.New("bag page size must be positive")
	ErrInvalidWeights   = errors.New("rapid weights must be non-negative with a positive sum")
	ErrInvalidLogFormat = errors.New("logging format must be text or json")
	ErrInvalidLogLevel  = errors.New("unknown logging level")
	ErrInvalidThreshold = errors.New("bag hibernation threshold must not be negative")
	ErrInvalidCodec     = errors.New("rapid checkpoint codec must be gob or json")
)

// Default configuration values.
const (
	DefaultPageSize = 1024
	DefaultSeed     = 0x4a94ef6a5d233890
	DefaultOps      = 1000
	DefaultWeight   = 1

	FormatText = "text"
	FormatJSON = "json"
)

// Config holds all configuration for the indexbag tools.
type Config struct {
	Bag       BagConfig       `mapstructure:"bag"`
	Rapid     RapidConfig     `mapstructure:"rapid"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// BagConfig holds bag construction settings.
type BagConfig struct {
	PageSize             int `mapstructure:"page_size"`
	HibernationThreshold int `mapstructure:"hibernation_threshold"`
}

// RapidConfig holds randomized driver settings.
type RapidConfig struct {
	Weights         WeightsConfig `mapstructure:"weights"`
	CheckpointDir   string        `mapstructure:"checkpoint_dir"`
	CheckpointCodec string        `mapstructure:"checkpoint_codec"`
	Seed            uint64        `mapstructure:"seed"`
	Base            int           `mapstructure:"base"`
	Ops             int           `mapstructure:"ops"`
	HibernateEach   int           `mapstructure:"hibernate_each"`
	Verbose         bool          `mapstructure:"verbose"`
}

// WeightsConfig holds the relative frequency of each driver action.
type WeightsConfig struct {
	Insert int `mapstructure:"insert"`
	Remove int `mapstructure:"remove"`
	Lookup int `mapstructure:"lookup"`
}

// LoggingConfig holds logging-specific configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TelemetryConfig holds export settings for traces and metrics.
type TelemetryConfig struct {
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	OTLPHeaders  string  `mapstructure:"otlp_headers"`
	MetricsAddr  string  `mapstructure:"metrics_addr"`
	SampleRatio  float64 `mapstructure:"sample_ratio"`
	OTLPInsecure bool    `mapstructure:"otlp_insecure"`
}

// SlogLevel parses Level.
func (lc LoggingConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level

	err := level.UnmarshalText([]byte(lc.Level))
	if err != nil {
		return slog.LevelInfo, fmt.Errorf("%w: %q", ErrInvalidLogLevel, lc.Level)
	}

	return level, nil
}

// LoadConfig loads configuration from file and environment variables.
func LoadConfig(configPath string) (*Config, error) {
	viperCfg := viper.New()

	setDefaults(viperCfg)

	if configPath != "" {
		viperCfg.SetConfigFile(configPath)
	} else {
		viperCfg.SetConfigName("indexbag")
		viperCfg.SetConfigType("yaml")
		viperCfg.AddConfigPath(".")
		viperCfg.AddConfigPath("./config")
		viperCfg.AddConfigPath("/etc/indexbag")
	}

	viperCfg.SetEnvPrefix("INDEXBAG")
	viperCfg.AutomaticEnv()
	viperCfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	readErr := viperCfg.ReadInConfig()
	if readErr != nil {
		var notFoundErr viper.ConfigFileNotFoundError
		if !errors.As(readErr, &notFoundErr) {
			return nil, fmt.Errorf("failed to read config file: %w", readErr)
		}
	}

	var config Config

	unmarshalErr := viperCfg.Unmarshal(&config)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", unmarshalErr)
	}

	validateErr := validateConfig(&config)
	if validateErr != nil {
		return nil, fmt.Errorf("invalid configuration: %w", validateErr)
	}

	return &config, nil
}

func setDefaults(viperCfg *viper.Viper) {
	viperCfg.SetDefault("bag.page_size", DefaultPageSize)
	viperCfg.SetDefault("bag.hibernation_threshold", 0)

	viperCfg.SetDefault("rapid.seed", uint64(DefaultSeed))
	viperCfg.SetDefault("rapid.base", 0)
	viperCfg.SetDefault("rapid.ops", DefaultOps)
	viperCfg.SetDefault("rapid.hibernate_each", 0)
	viperCfg.SetDefault("rapid.verbose", false)
	viperCfg.SetDefault("rapid.checkpoint_dir", "")
	viperCfg.SetDefault("rapid.checkpoint_codec", persist.CodecGob)
	viperCfg.SetDefault("rapid.weights.insert", DefaultWeight)
	viperCfg.SetDefault("rapid.weights.remove", DefaultWeight)
	viperCfg.SetDefault("rapid.weights.lookup", DefaultWeight)

	viperCfg.SetDefault("logging.level", "info")
	viperCfg.SetDefault("logging.format", FormatText)

	viperCfg.SetDefault("telemetry.otlp_endpoint", "")
	viperCfg.SetDefault("telemetry.otlp_headers", "")
	viperCfg.SetDefault("telemetry.otlp_insecure", false)
	viperCfg.SetDefault("telemetry.metrics_addr", "")
	viperCfg.SetDefault("telemetry.sample_ratio", 0.0)
}

func validateConfig(config *Config) error {
	if config.Bag.PageSize <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidPageSize, config.Bag.PageSize)
	}

	if config.Bag.HibernationThreshold < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidThreshold, config.Bag.HibernationThreshold)
	}

	if config.Rapid.Ops < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidOps, config.Rapid.Ops)
	}

	if config.Rapid.Base < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidBase, config.Rapid.Base)
	}

	weights := config.Rapid.Weights
	if weights.Insert < 0 || weights.Remove < 0 || weights.Lookup < 0 ||
		weights.Insert+weights.Remove+weights.Lookup == 0 {
		return fmt.Errorf("%w: %+v", ErrInvalidWeights, weights)
	}

	_, err := persist.CodecByName(config.Rapid.CheckpointCodec)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidCodec, config.Rapid.CheckpointCodec)
	}

	switch config.Logging.Format {
	case FormatText, FormatJSON:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidLogFormat, config.Logging.Format)
	}

	_, err = config.Logging.SlogLevel()

	return err
}
