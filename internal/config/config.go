package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config is the full application configuration, loaded once at startup.
type Config struct {
	LogLevel string        `mapstructure:"log_level"`
	Adapter  AdapterConfig `mapstructure:"adapter"`
	Polling  PollingConfig `mapstructure:"polling"`
	Server   ServerConfig  `mapstructure:"server"`
	Commands CommandConfig `mapstructure:"commands"`
	Auth     AuthConfig    `mapstructure:"auth"`
}

// AdapterConfig selects and tunes the transport to the ELM327 adapter.
// When Device is set the serial transport is used, otherwise TCP to Host:Port.
type AdapterConfig struct {
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	Device    string `mapstructure:"device"`
	Baud      int    `mapstructure:"baud"`
	TimeoutMs int    `mapstructure:"timeout_ms"`
	Protocol  string `mapstructure:"protocol"` // "auto" or an ELM protocol number "1".."9"
}

type PollingConfig struct {
	IntervalMs        int `mapstructure:"interval_ms"`
	OfflineIntervalMs int `mapstructure:"offline_interval_ms"`
	SlowEveryN        int `mapstructure:"slow_every_n"`
}

type ServerConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

// CommandConfig enables per-command tuning: names listed in Disabled are
// never polled, Ranges overrides a command's plausible value range.
type CommandConfig struct {
	Disabled []string         `mapstructure:"disabled"`
	Ranges   map[string]Range `mapstructure:"ranges"`
}

type Range struct {
	Min float64 `mapstructure:"min"`
	Max float64 `mapstructure:"max"`
}

type AuthConfig struct {
	Enabled       bool     `mapstructure:"enabled"`
	JWTSecret     string   `mapstructure:"jwt_secret"`
	JWTExpiration int      `mapstructure:"jwt_expiration"` // minutes
	APIKeys       []string `mapstructure:"api_keys"`
	Users         []User   `mapstructure:"users"`
}

type User struct {
	Username     string `mapstructure:"username"`
	PasswordHash string `mapstructure:"password_hash"`
	Role         string `mapstructure:"role"`
}

func (a AdapterConfig) Timeout() time.Duration {
	return time.Duration(a.TimeoutMs) * time.Millisecond
}

func (p PollingConfig) Interval() time.Duration {
	return time.Duration(p.IntervalMs) * time.Millisecond
}

func (p PollingConfig) OfflineInterval() time.Duration {
	return time.Duration(p.OfflineIntervalMs) * time.Millisecond
}

// Load reads config.yaml from path (and matching environment variables) and
// returns the resulting configuration. A missing file is not an error; the
// defaults describe a local ELM327 emulator on 127.0.0.1:35000.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(path)
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Adapter.Host == "" && c.Adapter.Device == "" {
		return fmt.Errorf("config: adapter.host or adapter.device must be set")
	}
	if c.Polling.IntervalMs <= 0 {
		return fmt.Errorf("config: polling.interval_ms must be positive")
	}
	if c.Polling.OfflineIntervalMs <= 0 {
		return fmt.Errorf("config: polling.offline_interval_ms must be positive")
	}
	if c.Auth.Enabled && c.Auth.JWTSecret == "" && len(c.Auth.APIKeys) == 0 {
		return fmt.Errorf("config: auth.enabled requires auth.jwt_secret or auth.api_keys")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("adapter.host", "127.0.0.1")
	v.SetDefault("adapter.port", 35000)
	v.SetDefault("adapter.baud", 38400)
	v.SetDefault("adapter.timeout_ms", 3000)
	v.SetDefault("adapter.protocol", "auto")
	v.SetDefault("polling.interval_ms", 500)
	v.SetDefault("polling.offline_interval_ms", 2000)
	v.SetDefault("polling.slow_every_n", 10)
	v.SetDefault("server.listen_addr", ":8765")
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.jwt_expiration", 60)
}
