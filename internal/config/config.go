package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the complete application configuration
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Storage StorageConfig `mapstructure:"storage"`
	Backend BackendConfig `mapstructure:"backend"`
	Session SessionConfig `mapstructure:"session"`
	Usage   UsageConfig   `mapstructure:"usage"`
	Limits  LimitsConfig  `mapstructure:"limits"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig defines server ports and addresses
type ServerConfig struct {
	APIPort     int    `mapstructure:"api_port"`
	MetricsPort int    `mapstructure:"metrics_port"`
	BindAddress string `mapstructure:"bind_address"`
}

// StorageConfig defines storage backend settings
type StorageConfig struct {
	Type   string       `mapstructure:"type"` // "redis" or "sqlite"
	Redis  RedisConfig  `mapstructure:"redis"`
	SQLite SQLiteConfig `mapstructure:"sqlite"`
}

// RedisConfig defines Redis connection settings
type RedisConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	PoolSize     int    `mapstructure:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
	DialTimeout  string `mapstructure:"dial_timeout"`
	ReadTimeout  string `mapstructure:"read_timeout"`
	WriteTimeout string `mapstructure:"write_timeout"`
}

// SQLiteConfig defines embedded database settings
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// BackendConfig defines the hosted limit service. Limits are stored remotely
// when URL is set.
type BackendConfig struct {
	URL         string `mapstructure:"url"`
	APIKey      string `mapstructure:"api_key"`
	AccessToken string `mapstructure:"access_token"`
	Timeout     string `mapstructure:"timeout"`
	Retries     int    `mapstructure:"retries"`
}

// SessionConfig scopes limits and events to one user/device
type SessionConfig struct {
	Owner    string `mapstructure:"owner"`
	Timezone string `mapstructure:"timezone"`
}

// UsageConfig defines polling and journal retention
type UsageConfig struct {
	PollInterval  string `mapstructure:"poll_interval"`
	WindowDays    int    `mapstructure:"window_days"`
	RetentionDays int    `mapstructure:"retention_days"`
	PruneTime     string `mapstructure:"prune_time"`
	InboxDir      string `mapstructure:"inbox_dir"`
}

// LimitsConfig defines limit store settings
type LimitsConfig struct {
	CacheSize int `mapstructure:"cache_size"`
}

// LoggingConfig defines logging behavior
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "json", "text" or "auto"
}

// Location resolves the configured timezone, defaulting to the host's.
func (c SessionConfig) Location() (*time.Location, error) {
	if c.Timezone == "" || strings.EqualFold(c.Timezone, "local") {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Configure viper
	v.SetConfigFile(configPath)
	v.SetEnvPrefix("FOCUSPACT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, use defaults and environment variables
	}

	// Unmarshal config
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate config
	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.api_port", 8080)
	v.SetDefault("server.metrics_port", 9090)
	v.SetDefault("server.bind_address", "127.0.0.1")

	// Storage defaults
	v.SetDefault("storage.type", "sqlite")
	v.SetDefault("storage.sqlite.path", "/var/lib/focuspact/focuspact.db")
	v.SetDefault("storage.redis.host", "localhost")
	v.SetDefault("storage.redis.port", 6379)
	v.SetDefault("storage.redis.password", "")
	v.SetDefault("storage.redis.db", 0)
	v.SetDefault("storage.redis.pool_size", 10)
	v.SetDefault("storage.redis.min_idle_conns", 2)
	v.SetDefault("storage.redis.dial_timeout", "5s")
	v.SetDefault("storage.redis.read_timeout", "3s")
	v.SetDefault("storage.redis.write_timeout", "3s")

	// Backend defaults
	v.SetDefault("backend.url", "")
	v.SetDefault("backend.api_key", "")
	v.SetDefault("backend.access_token", "")
	v.SetDefault("backend.timeout", "10s")
	v.SetDefault("backend.retries", 3)

	// Session defaults
	v.SetDefault("session.owner", "local")
	v.SetDefault("session.timezone", "Local")

	// Usage defaults
	v.SetDefault("usage.poll_interval", "1m")
	v.SetDefault("usage.window_days", 2)
	v.SetDefault("usage.retention_days", 35)
	v.SetDefault("usage.prune_time", "03:00")
	v.SetDefault("usage.inbox_dir", "")

	// Limits defaults
	v.SetDefault("limits.cache_size", 256)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Defaults returns the configuration made of default values only. It is not
// validated.
func Defaults() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// UnknownKeys reads the file at configPath and returns the keys no setting
// consumes, sorted.
func UnknownKeys(configPath string) ([]string, error) {
	known := viper.New()
	setDefaults(known)
	valid := make(map[string]bool)
	for _, key := range known.AllKeys() {
		valid[key] = true
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	unknown := []string{}
	for _, key := range v.AllKeys() {
		if !valid[key] {
			unknown = append(unknown, key)
		}
	}
	sort.Strings(unknown)
	return unknown, nil
}

// validate validates the configuration
func validate(cfg *Config) error {
	if cfg.Server.APIPort <= 0 || cfg.Server.APIPort > 65535 {
		return fmt.Errorf("invalid API port: %d", cfg.Server.APIPort)
	}
	if cfg.Server.MetricsPort < 0 || cfg.Server.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", cfg.Server.MetricsPort)
	}

	if cfg.Session.Owner == "" {
		return fmt.Errorf("session owner is required")
	}
	if _, err := cfg.Session.Location(); err != nil {
		return fmt.Errorf("invalid session timezone %q: %w", cfg.Session.Timezone, err)
	}

	switch cfg.Storage.Type {
	case "redis":
		if cfg.Storage.Redis.Host == "" {
			return fmt.Errorf("redis host is required")
		}
	case "sqlite":
		if cfg.Storage.SQLite.Path == "" {
			return fmt.Errorf("sqlite path is required")
		}
		if cfg.Storage.SQLite.Path != ":memory:" {
			// Ensure storage directory exists
			storageDir := filepath.Dir(cfg.Storage.SQLite.Path)
			if err := os.MkdirAll(storageDir, 0755); err != nil {
				return fmt.Errorf("failed to create storage directory: %w", err)
			}
		}
	default:
		return fmt.Errorf("unsupported storage type: %q", cfg.Storage.Type)
	}

	if cfg.Backend.URL != "" {
		if cfg.Backend.APIKey == "" {
			return fmt.Errorf("backend api_key is required when backend url is set")
		}
		if _, err := time.ParseDuration(cfg.Backend.Timeout); err != nil {
			return fmt.Errorf("invalid backend timeout: %w", err)
		}
		if cfg.Backend.Retries < 0 {
			return fmt.Errorf("invalid backend retries: %d", cfg.Backend.Retries)
		}
	}

	if d, err := time.ParseDuration(cfg.Usage.PollInterval); err != nil || d <= 0 {
		return fmt.Errorf("invalid poll interval: %q", cfg.Usage.PollInterval)
	}
	if cfg.Usage.WindowDays < 1 || cfg.Usage.WindowDays > 31 {
		return fmt.Errorf("window_days must be between 1 and 31, got %d", cfg.Usage.WindowDays)
	}
	if cfg.Usage.RetentionDays < cfg.Usage.WindowDays {
		return fmt.Errorf("retention_days (%d) must cover window_days (%d)", cfg.Usage.RetentionDays, cfg.Usage.WindowDays)
	}
	if _, err := time.Parse("15:04", cfg.Usage.PruneTime); err != nil {
		return fmt.Errorf("invalid prune time %q: %w", cfg.Usage.PruneTime, err)
	}

	if cfg.Limits.CacheSize <= 0 {
		return fmt.Errorf("limits cache_size must be positive, got %d", cfg.Limits.CacheSize)
	}

	switch cfg.Logging.Format {
	case "json", "text", "auto":
	default:
		return fmt.Errorf("unsupported log format: %q", cfg.Logging.Format)
	}

	return nil
}
