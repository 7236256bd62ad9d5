package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable the server reads, e.g.
// REPLAY_CAPACITY or REPLAY_GRPC_ADDR.
const EnvPrefix = "REPLAY"

// Config holds all replay server configuration
type Config struct {
	// Listeners
	GRPCAddr  string `mapstructure:"grpc-addr"`
	AdminAddr string `mapstructure:"admin-addr"`

	// Buffer settings
	Capacity int     `mapstructure:"capacity"`
	Alpha    float32 `mapstructure:"alpha"`
	Beta     float32 `mapstructure:"beta"`
	Prefetch int     `mapstructure:"prefetch"`
	Seed     int64   `mapstructure:"seed"`

	// Events; an empty URL disables publishing
	NATSURL     string `mapstructure:"nats-url"`
	NATSSubject string `mapstructure:"nats-subject"`

	StatsInterval   time.Duration `mapstructure:"stats-interval"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown-timeout"`

	// Logging
	LogLevel  string `mapstructure:"log-level"`
	LogFormat string `mapstructure:"log-format"`
}

// Default returns a config with sensible defaults
func Default() *Config {
	return &Config{
		GRPCAddr:        ":8080",
		AdminAddr:       ":9090",
		Capacity:        100000,
		Alpha:           0.6,
		Beta:            0.4,
		Prefetch:        0,
		Seed:            1,
		NATSSubject:     "replay.stats",
		StatsInterval:   30 * time.Second,
		ShutdownTimeout: 30 * time.Second,
		LogLevel:        "info",
		LogFormat:       "json",
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.GRPCAddr == "" {
		return fmt.Errorf("grpc-addr is required")
	}
	if c.Capacity <= 0 {
		return fmt.Errorf("capacity must be positive")
	}
	if c.Alpha < 0 {
		return fmt.Errorf("alpha must not be negative")
	}
	if c.Beta < 0 {
		return fmt.Errorf("beta must not be negative")
	}
	if c.Prefetch < 0 {
		return fmt.Errorf("prefetch must not be negative")
	}
	if c.NATSURL != "" && c.NATSSubject == "" {
		return fmt.Errorf("nats-subject is required when nats-url is set")
	}
	if c.StatsInterval < 0 {
		return fmt.Errorf("stats-interval must not be negative")
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown-timeout must be positive")
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log-level: %w", err)
	}
	if c.LogFormat != "json" && c.LogFormat != "console" {
		return fmt.Errorf("log-format must be json or console, got %q", c.LogFormat)
	}
	return nil
}

// RegisterFlags adds one flag per Config field, plus --config, to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()

	fs.String("config", "", "Optional config file (yaml, json or toml)")

	// Listeners
	fs.String("grpc-addr", d.GRPCAddr, "gRPC listen address")
	fs.String("admin-addr", d.AdminAddr, "Admin HTTP listen address (empty disables)")

	// Buffer settings
	fs.Int("capacity", d.Capacity, "Maximum number of transitions kept")
	fs.Float32("alpha", d.Alpha, "Priority exponent")
	fs.Float32("beta", d.Beta, "Importance-sampling exponent")
	fs.Int("prefetch", d.Prefetch, "Sample draws computed ahead (0 disables)")
	fs.Int64("seed", d.Seed, "Sampling random seed")

	// Events
	fs.String("nats-url", d.NATSURL, "NATS server URL (empty disables events)")
	fs.String("nats-subject", d.NATSSubject, "NATS subject for buffer events")

	fs.Duration("stats-interval", d.StatsInterval, "Interval between stats reports (0 disables)")
	fs.Duration("shutdown-timeout", d.ShutdownTimeout, "Grace period for shutdown")

	// Logging
	fs.String("log-level", d.LogLevel, "Log level (debug, info, warn, error)")
	fs.String("log-format", d.LogFormat, "Log format (json, console)")
}

// Load resolves the configuration from flags, REPLAY_* environment variables
// and the optional config file, in that order of precedence.
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	if err := v.BindPFlags(fs); err != nil {
		return nil, fmt.Errorf("config: bind flags: %w", err)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}
