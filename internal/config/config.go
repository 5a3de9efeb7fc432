package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the delivery engine binaries.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Delivery   DeliveryConfig   `yaml:"delivery"`
	Dispatcher DispatcherConfig `yaml:"dispatcher"`
	SES        SESConfig        `yaml:"ses"`
	Log        LogConfig        `yaml:"log"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Port               int      `yaml:"port"`
	Host               string   `yaml:"host"`
	ReadTimeoutSeconds int      `yaml:"read_timeout_seconds"`
	AllowedOrigins     []string `yaml:"allowed_origins"`
}

// GetHost returns the listen host. Containers listen on all interfaces.
func (c ServerConfig) GetHost() string {
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// Addr returns host:port.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.GetHost(), c.Port)
}

func (c ServerConfig) ReadTimeout() time.Duration {
	return time.Duration(c.ReadTimeoutSeconds) * time.Second
}

// DatabaseConfig holds the PostgreSQL connection.
type DatabaseConfig struct {
	URL                    string `yaml:"url"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

func (c DatabaseConfig) ConnMaxLifetime() time.Duration {
	return time.Duration(c.ConnMaxLifetimeMinutes) * time.Minute
}

// RedisConfig holds the optional Redis used for distributed locks. An
// empty URL falls back to PostgreSQL advisory locks.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// DeliveryConfig holds the deliverability and retry policy.
type DeliveryConfig struct {
	HardBounceThreshold   int  `yaml:"hard_bounce_threshold"`
	MaxAttempts           int  `yaml:"max_attempts"`
	BackoffBaseSeconds    int  `yaml:"backoff_base_seconds"`
	ComplaintUnsubscribes bool `yaml:"complaint_unsubscribes"`
}

func (c DeliveryConfig) BackoffBase() time.Duration {
	return time.Duration(c.BackoffBaseSeconds) * time.Second
}

// DispatcherConfig holds the worker loop settings.
type DispatcherConfig struct {
	IntervalSeconds        int `yaml:"interval_seconds"`
	BatchSize              int `yaml:"batch_size"`
	Workers                int `yaml:"workers"`
	StaleAfterMinutes      int `yaml:"stale_after_minutes"`
	RecoveryIntervalSecond int `yaml:"recovery_interval_seconds"`

	// SendRatePerSecond caps provider calls across all workers. Zero
	// disables the limiter.
	SendRatePerSecond int `yaml:"send_rate_per_second"`
}

func (c DispatcherConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

func (c DispatcherConfig) StaleAfter() time.Duration {
	return time.Duration(c.StaleAfterMinutes) * time.Minute
}

func (c DispatcherConfig) RecoveryInterval() time.Duration {
	return time.Duration(c.RecoveryIntervalSecond) * time.Second
}

// SESConfig holds AWS SES credentials. Empty keys use the default AWS
// credential chain.
type SESConfig struct {
	Enabled          bool   `yaml:"enabled"`
	Region           string `yaml:"region"`
	AccessKey        string `yaml:"access_key"`
	SecretKey        string `yaml:"secret_key"`
	ConfigurationSet string `yaml:"configuration_set"`
	TimeoutSeconds   int    `yaml:"timeout_seconds"`
}

func (c SESConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level     string `yaml:"level"`
	RedactPII *bool  `yaml:"redact_pii"`
}

// ShouldRedact defaults to true when unset.
func (c LogConfig) ShouldRedact() bool {
	return c.RedactPII == nil || *c.RedactPII
}

// Load reads configuration from a YAML file and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.ReadTimeoutSeconds == 0 {
		cfg.Server.ReadTimeoutSeconds = 15
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 20
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetimeMinutes == 0 {
		cfg.Database.ConnMaxLifetimeMinutes = 30
	}
	if cfg.Delivery.HardBounceThreshold == 0 {
		cfg.Delivery.HardBounceThreshold = 3
	}
	if cfg.Delivery.MaxAttempts == 0 {
		cfg.Delivery.MaxAttempts = 5
	}
	if cfg.Delivery.BackoffBaseSeconds == 0 {
		cfg.Delivery.BackoffBaseSeconds = 60
	}
	if cfg.Dispatcher.IntervalSeconds == 0 {
		cfg.Dispatcher.IntervalSeconds = 5
	}
	if cfg.Dispatcher.BatchSize == 0 {
		cfg.Dispatcher.BatchSize = 100
	}
	if cfg.Dispatcher.Workers == 0 {
		cfg.Dispatcher.Workers = 4
	}
	if cfg.Dispatcher.StaleAfterMinutes == 0 {
		cfg.Dispatcher.StaleAfterMinutes = 10
	}
	if cfg.Dispatcher.RecoveryIntervalSecond == 0 {
		cfg.Dispatcher.RecoveryIntervalSecond = 60
	}
	if cfg.SES.Region == "" {
		cfg.SES.Region = "us-west-2"
	}
	if cfg.SES.TimeoutSeconds == 0 {
		cfg.SES.TimeoutSeconds = 30
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

// LoadFromEnv loads configuration with environment variable overrides. A
// .env file in the working directory is read first if present.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("AWS_SES_ACCESS_KEY"); v != "" {
		cfg.SES.AccessKey = v
	}
	if v := os.Getenv("AWS_SES_SECRET_KEY"); v != "" {
		cfg.SES.SecretKey = v
	}
	if v := os.Getenv("AWS_SES_REGION"); v != "" {
		cfg.SES.Region = v
	}
	if v := os.Getenv("AWS_SES_CONFIGURATION_SET"); v != "" {
		cfg.SES.ConfigurationSet = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("SEND_RATE_PER_SECOND"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.Dispatcher.SendRatePerSecond = n
		}
	}
	if v := os.Getenv("HARD_BOUNCE_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Delivery.HardBounceThreshold = n
		}
	}

	return cfg, nil
}

// Validate reports configuration that would prevent startup.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("database url is required (set DATABASE_URL)")
	}
	if c.Delivery.HardBounceThreshold < 1 {
		return fmt.Errorf("delivery.hard_bounce_threshold must be positive")
	}
	if c.Delivery.MaxAttempts < 1 {
		return fmt.Errorf("delivery.max_attempts must be positive")
	}
	return nil
}
