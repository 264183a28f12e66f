// Package config loads callflow settings from a config file, the environment and CLI flags.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/ringwire/callflow/pkg/domain"
)

const appName = "callflow"

// Storage drivers.
const (
	DriverMemory = "memory"
	DriverFile   = "file"
	DriverRedis  = "redis"
	DriverSQLite = "sqlite"
)

// Config is the resolved configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Storage StorageConfig `mapstructure:"storage"`
	Runtime RuntimeConfig `mapstructure:"runtime"`
	Webhook WebhookConfig `mapstructure:"webhook"`
	Log     LogConfig     `mapstructure:"log"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

type StorageConfig struct {
	Driver string       `mapstructure:"driver"`
	Dir    string       `mapstructure:"dir"`
	Redis  RedisConfig  `mapstructure:"redis"`
	SQLite SQLiteConfig `mapstructure:"sqlite"`

	// EncryptionKeys are base64 AES-256 keys. The first seals new call
	// state; the rest only open older state.
	EncryptionKeys []string `mapstructure:"encryption_keys"`
	// Redact lists variable name patterns masked once a call ends.
	Redact []string `mapstructure:"redact"`
}

type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Prefix   string        `mapstructure:"prefix"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

type RuntimeConfig struct {
	MaxUnresolvedTurns    int `mapstructure:"max_unresolved_turns"`
	MaxChainedTransitions int `mapstructure:"max_chained_transitions"`
	MaxInputSize          int `mapstructure:"max_input_size"`
}

type WebhookConfig struct {
	DefaultTimeoutSeconds int `mapstructure:"default_timeout_seconds"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// New returns a viper instance with callflow's search paths, env binding and defaults.
// Callers bind CLI flags onto it before calling Load.
func New() *viper.Viper {
	v := viper.New()
	configure(v)
	setDefaults(v)
	return v
}

// Load reads the config file (explicit path, or callflow.yaml on the search path)
// and unmarshals the merged settings. A missing search-path file is not an error.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
	}
	if err := readConfig(v.ReadInConfig()); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that cannot be defaulted.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverMemory:
	case DriverFile:
		if c.Storage.Dir == "" {
			return errors.New("storage.dir is required for the file driver")
		}
	case DriverRedis:
		if c.Storage.Redis.Addr == "" {
			return errors.New("storage.redis.addr is required for the redis driver")
		}
	case DriverSQLite:
		if c.Storage.SQLite.Path == "" {
			return errors.New("storage.sqlite.path is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.Runtime.MaxUnresolvedTurns < 1 {
		return fmt.Errorf("runtime.max_unresolved_turns must be positive, got %d", c.Runtime.MaxUnresolvedTurns)
	}
	if c.Runtime.MaxChainedTransitions < 1 {
		return fmt.Errorf("runtime.max_chained_transitions must be positive, got %d", c.Runtime.MaxChainedTransitions)
	}
	return nil
}

func readConfig(err error) error {
	if err == nil {
		return nil
	}
	var notFound viper.ConfigFileNotFoundError
	if errors.As(err, &notFound) {
		return nil
	}
	return fmt.Errorf("failed to read config: %w", err)
}

func configure(v *viper.Viper) {
	v.SetConfigName(appName)
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath(fmt.Sprintf("$HOME/.config/%s", appName))
	v.SetEnvPrefix(strings.ToUpper(appName))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("storage.driver", DriverMemory)
	v.SetDefault("storage.dir", ".callflow")
	v.SetDefault("storage.redis.addr", "")
	v.SetDefault("storage.redis.password", "")
	v.SetDefault("storage.redis.db", 0)
	v.SetDefault("storage.redis.prefix", "callflow:")
	v.SetDefault("storage.redis.ttl", 24*time.Hour)
	v.SetDefault("storage.sqlite.path", ".callflow/callflow.db")
	v.SetDefault("storage.encryption_keys", []string{})
	v.SetDefault("storage.redact", []string{})
	v.SetDefault("runtime.max_unresolved_turns", 3)
	v.SetDefault("runtime.max_chained_transitions", 32)
	v.SetDefault("runtime.max_input_size", domain.DefaultMaxInputSize)
	v.SetDefault("webhook.default_timeout_seconds", domain.DefaultWebhookTimeoutSeconds)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}
