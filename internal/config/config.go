// Package config materializes the auditor's settings from command-line flags,
// PORTAUDIT_* environment variables and an optional config file, in that order
// of precedence.
package config

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"

	"port-policy-auditor/internal/engine"
	"port-policy-auditor/internal/parser"
	"port-policy-auditor/internal/resolver"
)

const EnvPrefix = "PORTAUDIT"

// Inventory providers.
const (
	ProviderYAML    = "yaml"
	ProviderMariaDB = "mariadb"
	ProviderSQLite  = "sqlite"
)

type Config struct {
	Inventory       string        `mapstructure:"inventory"`
	Provider        string        `mapstructure:"provider"`
	DB              string        `mapstructure:"db"`
	Roles           []string      `mapstructure:"role"`
	Out             string        `mapstructure:"out"`
	Violations      string        `mapstructure:"violations"`
	Timeout         time.Duration `mapstructure:"timeout"`
	LookupTimeout   time.Duration `mapstructure:"lookup-timeout"`
	Workers         int           `mapstructure:"workers"`
	MaxSockets      int64         `mapstructure:"max-sockets"`
	MaxHosts        uint64        `mapstructure:"max-hosts"`
	FailOnViolation bool          `mapstructure:"fail-on-violation"`
	LogLevel        string        `mapstructure:"log-level"`
	LogFile         string        `mapstructure:"log-file"`
}

// New returns a viper instance with defaults and environment lookup set up.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("inventory", "inventory.yml")
	v.SetDefault("provider", ProviderYAML)
	v.SetDefault("db", "")
	v.SetDefault("role", []string{})
	v.SetDefault("out", "")
	v.SetDefault("violations", "")
	v.SetDefault("timeout", engine.DefaultProbeTimeout)
	v.SetDefault("lookup-timeout", resolver.DefaultLookupTimeout)
	v.SetDefault("workers", runtime.NumCPU())
	v.SetDefault("max-sockets", engine.DefaultMaxSockets)
	v.SetDefault("max-hosts", parser.DefaultMaxHosts)
	v.SetDefault("fail-on-violation", false)
	v.SetDefault("log-level", "INFO")
	v.SetDefault("log-file", "")
	return v
}

// Load reads path (when set) into v and returns the validated settings.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Provider {
	case ProviderYAML:
		if c.Inventory == "" {
			return errors.New("inventory file path must be provided for yaml provider")
		}
	case ProviderMariaDB, ProviderSQLite:
		if c.DB == "" {
			return fmt.Errorf("database connection string must be provided for %s provider", c.Provider)
		}
	default:
		return fmt.Errorf("unknown inventory provider: %s", c.Provider)
	}

	if c.Timeout <= 0 {
		return errors.New("timeout must be positive")
	}
	if c.LookupTimeout <= 0 {
		return errors.New("lookup-timeout must be positive")
	}
	if c.Workers <= 0 {
		return errors.New("workers must be positive")
	}
	if c.MaxSockets <= 0 {
		return errors.New("max-sockets must be positive")
	}
	if c.MaxHosts == 0 {
		return errors.New("max-hosts must be positive")
	}
	return nil
}
