// Package config provides YAML-based configuration loading for peerhost.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/LemmyAI/peerhost/internal/transport"
)

// EnvPrefix prefixes environment overrides, e.g. PEERHOST_TRANSPORT_PORT=7777.
const EnvPrefix = "PEERHOST"

// Config is the root application configuration.
type Config struct {
	Server    ServerConfig     `mapstructure:"server" yaml:"server"`
	Transport transport.Config `mapstructure:"transport" yaml:"transport"`
	Log       LogConfig        `mapstructure:"log" yaml:"log"`
}

// ServerConfig controls the tick loop.
type ServerConfig struct {
	// TickRate is how many times per second the host is polled.
	TickRate int `mapstructure:"tick_rate" yaml:"tick_rate"`
	// Welcome sends each new client its id on connect.
	Welcome bool `mapstructure:"welcome" yaml:"welcome"`
}

// LogConfig defines logger settings.
type LogConfig struct {
	// Level: debug, info, warn, error
	Level string `mapstructure:"level" yaml:"level"`
	// Format: console or json
	Format string `mapstructure:"format" yaml:"format"`
	// Outputs: stdout, stderr, or file paths
	Outputs []string `mapstructure:"outputs" yaml:"outputs"`
	// Rotation controls file rotation when writing to files
	Rotation RotationConfig `mapstructure:"rotation" yaml:"rotation"`
	// Development toggles development-friendly logging options
	Development bool `mapstructure:"development" yaml:"development"`
}

// RotationConfig controls log file rotation for file outputs.
type RotationConfig struct {
	Enable     bool   `mapstructure:"enable" yaml:"enable"`
	Filename   string `mapstructure:"filename" yaml:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

// Default returns a Config populated with sensible defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			TickRate: 60,
			Welcome:  true,
		},
		Transport: transport.DefaultConfig(),
		Log: LogConfig{
			Level:       "info",
			Format:      "console",
			Outputs:     []string{"stdout"},
			Development: false,
			Rotation: RotationConfig{
				Enable:     false,
				Filename:   "logs/peerhost.log",
				MaxSizeMB:  50,
				MaxBackups: 3,
				MaxAgeDays: 28,
				Compress:   true,
			},
		},
	}
}

// Load reads configuration from path (if non-empty), otherwise searches
// ./peerhost.yaml, ./configs and ~/.peerhost. Environment variables with the
// PEERHOST prefix override file values.
func Load(path string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// seed defaults for viper so env-only configs work
	v.SetDefault("server.tick_rate", cfg.Server.TickRate)
	v.SetDefault("server.welcome", cfg.Server.Welcome)
	v.SetDefault("transport.kind", cfg.Transport.Kind)
	v.SetDefault("transport.host", cfg.Transport.Host)
	v.SetDefault("transport.port", cfg.Transport.Port)
	v.SetDefault("transport.max_peers", cfg.Transport.MaxPeers)
	v.SetDefault("transport.channels", cfg.Transport.Channels)
	v.SetDefault("transport.max_message_size", cfg.Transport.MaxMessageSize)
	v.SetDefault("transport.queue_size", cfg.Transport.QueueSize)
	v.SetDefault("transport.idle_timeout", cfg.Transport.IdleTimeout)
	v.SetDefault("transport.write_timeout", cfg.Transport.WriteTimeout)
	v.SetDefault("transport.path", cfg.Transport.Path)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.outputs", cfg.Log.Outputs)
	v.SetDefault("log.development", cfg.Log.Development)
	v.SetDefault("log.rotation.enable", cfg.Log.Rotation.Enable)
	v.SetDefault("log.rotation.filename", cfg.Log.Rotation.Filename)
	v.SetDefault("log.rotation.max_size_mb", cfg.Log.Rotation.MaxSizeMB)
	v.SetDefault("log.rotation.max_backups", cfg.Log.Rotation.MaxBackups)
	v.SetDefault("log.rotation.max_age_days", cfg.Log.Rotation.MaxAgeDays)
	v.SetDefault("log.rotation.compress", cfg.Log.Rotation.Compress)

	if path == "" {
		if envPath := os.Getenv(EnvPrefix + "_CONFIG"); envPath != "" {
			path = envPath
		}
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("peerhost")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".peerhost"))
		}
	}

	// Read config file if present; if not found, continue with defaults/env
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate normalises fields and rejects unusable values.
func (c *Config) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Log.Level)) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log.level: %q", c.Log.Level)
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if len(c.Log.Outputs) == 0 {
		c.Log.Outputs = []string{"stdout"}
	}

	if c.Server.TickRate <= 0 {
		return fmt.Errorf("invalid server.tick_rate: %d", c.Server.TickRate)
	}

	c.Transport.Kind = strings.ToLower(strings.TrimSpace(c.Transport.Kind))
	if !transport.SupportedKind(c.Transport.Kind) {
		return fmt.Errorf("invalid transport.kind %q: %w", c.Transport.Kind, transport.ErrUnknownKind)
	}
	if c.Transport.MaxPeers <= 0 {
		c.Transport.MaxPeers = transport.DefaultConfig().MaxPeers
	}
	if c.Transport.Channels <= 0 {
		c.Transport.Channels = transport.DefaultConfig().Channels
	}
	if c.Transport.MaxMessageSize <= 0 {
		c.Transport.MaxMessageSize = transport.DefaultConfig().MaxMessageSize
	}
	return nil
}

// YAML renders the configuration as a YAML document.
func (c *Config) YAML() ([]byte, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return out, nil
}
