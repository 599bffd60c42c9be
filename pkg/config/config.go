// Package config loads and validates the FrameFeed configuration.
//
// Configuration sources, in order of precedence:
//  1. Environment variables (FRAMEFEED_*)
//  2. Configuration file (YAML)
//  3. Default values
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/marmos91/framefeed/internal/bytesize"
)

// Config captures one evaluation run's settings.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Metrics controls the Prometheus endpoint
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// Precache configures the input/ground-truth read-ahead caches
	Precache PrecacheConfig `mapstructure:"precache" yaml:"precache"`

	// Writer configures the output queue
	Writer WriterConfig `mapstructure:"writer" yaml:"writer"`

	// Dataset points at the input data and the archive destination
	Dataset DatasetConfig `mapstructure:"dataset" yaml:"dataset"`

	// ShutdownTimeout bounds the graceful drain on interrupt
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=DEBUG INFO WARN ERROR" yaml:"level"`
	Format string `mapstructure:"format" validate:"oneof=text json" yaml:"format"`
	Output string `mapstructure:"output" yaml:"output"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Listen  string `mapstructure:"listen" yaml:"listen"`
}

// PrecacheConfig configures the read-ahead caches.
type PrecacheConfig struct {
	// BufferBytes is the per-precacher scratch capacity ("1Gi", "256Mi").
	BufferBytes bytesize.ByteSize `mapstructure:"buffer_bytes" validate:"required" yaml:"buffer_bytes"`
}

// WriterConfig configures the output queue.
type WriterConfig struct {
	// QueueBytes bounds the pending output bytes.
	QueueBytes bytesize.ByteSize `mapstructure:"queue_bytes" validate:"required" yaml:"queue_bytes"`

	// DropOnFull selects the overflow policy: drop packets instead of
	// blocking the algorithm.
	DropOnFull bool `mapstructure:"drop_on_full" yaml:"drop_on_full"`

	// Workers is the number of drain goroutines.
	Workers int `mapstructure:"workers" validate:"gte=1" yaml:"workers"`
}

// DatasetConfig points at the data.
type DatasetConfig struct {
	InputDir        string  `mapstructure:"input_dir" validate:"required" yaml:"input_dir"`
	GTDir           string  `mapstructure:"gt_dir" yaml:"gt_dir"`
	OutputDir       string  `mapstructure:"output_dir" yaml:"output_dir"`
	OutputPrefix    string  `mapstructure:"output_prefix" yaml:"output_prefix"`
	OutputSuffix    string  `mapstructure:"output_suffix" yaml:"output_suffix"`
	Scale           float64 `mapstructure:"scale" validate:"gte=0" yaml:"scale"`
	FourByteAligned bool    `mapstructure:"four_byte_aligned" yaml:"four_byte_aligned"`
	Transposed      bool    `mapstructure:"transposed" yaml:"transposed"`

	// Store selects the archive backend: "fs" or "badger".
	Store string `mapstructure:"store" validate:"oneof=fs badger" yaml:"store"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Logging: LoggingConfig{
			Level:  "INFO",
			Format: "text",
			Output: "stdout",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Listen:  ":9464",
		},
		Precache: PrecacheConfig{
			BufferBytes: 256 * bytesize.MiB,
		},
		Writer: WriterConfig{
			QueueBytes: 256 * bytesize.MiB,
			DropOnFull: false,
			Workers:    4,
		},
		Dataset: DatasetConfig{
			Scale:        1,
			OutputSuffix: ".pgm",
			Store:        "fs",
		},
		ShutdownTimeout: 30 * time.Second,
	}
}

// Load reads the configuration from the given file path (or the default
// search locations when path is empty), layered over environment variables
// and defaults, and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v, Default())

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "framefeed"))
		}
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("FRAMEFEED")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if path != "" {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		// Without an explicit path, a missing file just means defaults.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	decodeHook := mapstructure.ComposeDecodeHookFunc(
		mapstructure.TextUnmarshallerHookFunc(),
		mapstructure.StringToTimeDurationHookFunc(),
	)
	if err := v.Unmarshal(&cfg, viper.DecodeHook(decodeHook)); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration against its struct tags.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// WriteSample renders the default configuration as YAML at the given path.
func WriteSample(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file %s already exists (use --force to overwrite)", path)
		}
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}

	cfg := Default()
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return fmt.Errorf("render config: %w", err)
	}
	header := "# FrameFeed configuration\n# Byte sizes accept human-readable units: 1Gi, 256Mi, 100MB.\n"
	if err := os.WriteFile(path, append([]byte(header), data...), 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// setDefaults seeds viper with the built-in configuration so partial files
// only override what they mention.
func setDefaults(v *viper.Viper, def Config) {
	v.SetDefault("logging.level", def.Logging.Level)
	v.SetDefault("logging.format", def.Logging.Format)
	v.SetDefault("logging.output", def.Logging.Output)
	v.SetDefault("metrics.enabled", def.Metrics.Enabled)
	v.SetDefault("metrics.listen", def.Metrics.Listen)
	v.SetDefault("precache.buffer_bytes", def.Precache.BufferBytes.Uint64())
	v.SetDefault("writer.queue_bytes", def.Writer.QueueBytes.Uint64())
	v.SetDefault("writer.drop_on_full", def.Writer.DropOnFull)
	v.SetDefault("writer.workers", def.Writer.Workers)
	v.SetDefault("dataset.scale", def.Dataset.Scale)
	v.SetDefault("dataset.output_prefix", def.Dataset.OutputPrefix)
	v.SetDefault("dataset.output_suffix", def.Dataset.OutputSuffix)
	v.SetDefault("dataset.store", def.Dataset.Store)
	v.SetDefault("shutdown_timeout", def.ShutdownTimeout)
}
