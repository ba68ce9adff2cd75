// Package config loads service configuration from configs/config.yml and
// FIREPLUS_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "FIREPLUS"

// Config holds all runtime configuration.
type Config struct {
	Port string     `mapstructure:"port"`
	DB   DBConfig   `mapstructure:"db"`
	Log  LogConfig  `mapstructure:"log"`
	Auth AuthConfig `mapstructure:"-"`
	Poll PollConfig `mapstructure:"poll"`
	MQTT MQTTConfig `mapstructure:"mqtt"`
	// Devices are set up on start when not yet known.
	Devices []DeviceSeed `mapstructure:"devices"`
}

type DBConfig struct {
	Path string `mapstructure:"path"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type AuthConfig struct {
	SigningKey string
	TokenTTL   time.Duration
}

type PollConfig struct {
	// DefaultInterval is used when a device is added without an interval, in seconds.
	DefaultInterval int `mapstructure:"default_interval"`
}

// DefaultIntervalDuration returns the default poll interval.
func (p PollConfig) DefaultIntervalDuration() time.Duration {
	return time.Duration(p.DefaultInterval) * time.Second
}

type MQTTConfig struct {
	Broker          string `mapstructure:"broker"`
	Username        string `mapstructure:"username"`
	Password        string `mapstructure:"password"`
	ClientID        string `mapstructure:"client_id"`
	DiscoveryPrefix string `mapstructure:"discovery_prefix"`
	TopicPrefix     string `mapstructure:"topic_prefix"`
}

// Enabled reports whether a broker is configured.
func (m MQTTConfig) Enabled() bool {
	return strings.TrimSpace(m.Broker) != ""
}

type DeviceSeed struct {
	Host     string `mapstructure:"host"`
	Interval int    `mapstructure:"interval"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("db.path", "fireplus.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("auth.signing_key", "")
	v.SetDefault("auth.token_ttl", "1h")
	v.SetDefault("poll.default_interval", 30)
	v.SetDefault("mqtt.broker", "")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.client_id", "fireplus")
	v.SetDefault("mqtt.discovery_prefix", "homeassistant")
	v.SetDefault("mqtt.topic_prefix", "fireplus")
}

// Load reads config.yml from the given directories (first match wins) and
// applies environment overrides. A missing file is not an error.
func Load(paths ...string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.Auth.SigningKey = v.GetString("auth.signing_key")
	cfg.Auth.TokenTTL = v.GetDuration("auth.token_ttl")
	return cfg, nil
}

// Validate checks the values the service cannot run without.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Auth.SigningKey) == "" {
		return errors.New("auth.signing_key is required (set FIREPLUS_AUTH_SIGNING_KEY)")
	}
	if c.Auth.TokenTTL <= 0 {
		return errors.New("auth.token_ttl must be positive")
	}
	if c.Poll.DefaultInterval <= 0 {
		return errors.New("poll.default_interval must be a positive number of seconds")
	}
	for i, d := range c.Devices {
		if strings.TrimSpace(d.Host) == "" {
			return fmt.Errorf("devices[%d]: host is required", i)
		}
		if d.Interval < 0 {
			return fmt.Errorf("devices[%d]: interval must not be negative", i)
		}
	}
	return nil
}
