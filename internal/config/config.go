package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all runtime configuration for the trading API. Values
// come from an optional YAML file with environment variable overrides
// for deployment-specific settings.
type Config struct {
	Server struct {
		Port               int `yaml:"port"`
		ShutdownTimeoutSec int `yaml:"shutdown_timeout_sec"`
	} `yaml:"server"`

	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Cache struct {
		Backend            string `yaml:"backend"` // memory or redis
		RedisAddr          string `yaml:"redis_addr"`
		RedisDB            int    `yaml:"redis_db"`
		PriceTTLSec        int    `yaml:"price_ttl_sec"`
		MatchTTLSec        int    `yaml:"match_ttl_sec"`
		CleanupIntervalSec int    `yaml:"cleanup_interval_sec"`
	} `yaml:"cache"`

	Pricing struct {
		SubscriptionIntervalSec int `yaml:"subscription_interval_sec"`
	} `yaml:"pricing"`

	Processors struct {
		ExpiryIntervalSec     int `yaml:"expiry_interval_sec"`
		SettlementIntervalSec int `yaml:"settlement_interval_sec"`
	} `yaml:"processors"`

	Auth struct {
		JWTSecret   string `yaml:"jwt_secret"`
		TokenTTLHrs int    `yaml:"token_ttl_hrs"`
	} `yaml:"auth"`

	Logging struct {
		Level string `yaml:"level"`
		File  string `yaml:"file"` // empty disables the rotating file sink
	} `yaml:"logging"`
}

// Load reads the YAML file at path (missing file falls back to
// defaults), applies environment overrides, and validates the result.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	overrideWithEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func defaults() *Config {
	cfg := &Config{}
	cfg.Server.Port = 8080
	cfg.Server.ShutdownTimeoutSec = 5
	cfg.Database.Path = "trading.db"
	cfg.Cache.Backend = "memory"
	cfg.Cache.RedisAddr = "localhost:6379"
	cfg.Cache.PriceTTLSec = 60
	cfg.Cache.MatchTTLSec = 10
	cfg.Cache.CleanupIntervalSec = 60
	cfg.Pricing.SubscriptionIntervalSec = 5
	cfg.Processors.ExpiryIntervalSec = 10
	cfg.Processors.SettlementIntervalSec = 300
	cfg.Auth.JWTSecret = "agromart-secret-key"
	cfg.Auth.TokenTTLHrs = 24
	cfg.Logging.Level = "info"
	return cfg
}

// overrideWithEnv lets deployments override sensitive or host-specific
// values without editing the config file.
func overrideWithEnv(cfg *Config) {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}
	if path := os.Getenv("DATABASE_PATH"); path != "" {
		cfg.Database.Path = path
	}
	if backend := os.Getenv("CACHE_BACKEND"); backend != "" {
		cfg.Cache.Backend = backend
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Cache.RedisAddr = addr
	}
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		cfg.Auth.JWTSecret = secret
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if file := os.Getenv("LOG_FILE"); file != "" {
		cfg.Logging.File = file
	}
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("port out of range: %d", c.Server.Port)
	}
	switch c.Cache.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown cache backend: %q, must be memory or redis", c.Cache.Backend)
	}
	if c.Cache.Backend == "redis" && c.Cache.RedisAddr == "" {
		return fmt.Errorf("redis_addr is required for the redis cache backend")
	}
	if c.Cache.PriceTTLSec <= 0 {
		return fmt.Errorf("price_ttl_sec must be positive")
	}
	if c.Cache.MatchTTLSec <= 0 {
		return fmt.Errorf("match_ttl_sec must be positive")
	}
	if c.Pricing.SubscriptionIntervalSec <= 0 {
		return fmt.Errorf("subscription_interval_sec must be positive")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("jwt_secret must not be empty")
	}
	if !isValidLogLevel(c.Logging.Level) {
		return fmt.Errorf("invalid log level: %q, must be one of: debug, info, warn, error", c.Logging.Level)
	}
	return nil
}

func isValidLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	}
	return false
}

// Duration accessors.

func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownTimeoutSec) * time.Second
}

func (c *Config) PriceTTL() time.Duration {
	return time.Duration(c.Cache.PriceTTLSec) * time.Second
}

func (c *Config) MatchTTL() time.Duration {
	return time.Duration(c.Cache.MatchTTLSec) * time.Second
}

func (c *Config) CacheCleanupInterval() time.Duration {
	return time.Duration(c.Cache.CleanupIntervalSec) * time.Second
}

func (c *Config) SubscriptionInterval() time.Duration {
	return time.Duration(c.Pricing.SubscriptionIntervalSec) * time.Second
}

func (c *Config) ExpiryInterval() time.Duration {
	return time.Duration(c.Processors.ExpiryIntervalSec) * time.Second
}

func (c *Config) SettlementInterval() time.Duration {
	return time.Duration(c.Processors.SettlementIntervalSec) * time.Second
}

func (c *Config) TokenTTL() time.Duration {
	return time.Duration(c.Auth.TokenTTLHrs) * time.Hour
}
