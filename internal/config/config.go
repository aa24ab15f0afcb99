// Package config provides YAML-based configuration loading for gigroom.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the top-level gigroom configuration, loaded from gigroom.yaml.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	Broadcast BroadcastConfig `yaml:"broadcast"`
	Storage   StorageConfig   `yaml:"storage"`
	Relay     RelayConfig     `yaml:"relay"`
	Retention RetentionConfig `yaml:"retention"`
	Users     []UserConfig    `yaml:"users"`
}

// HTTPConfig controls the API listener.
type HTTPConfig struct {
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// DatabaseConfig selects and configures the relational store.
type DatabaseConfig struct {
	Driver   string `yaml:"driver"` // "mysql" or "sqlite"
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	Path     string `yaml:"path"` // sqlite file path
}

// AuthConfig holds the token signing settings.
type AuthConfig struct {
	JWTSecret  string `yaml:"jwt_secret"`
	TokenTTLHr int    `yaml:"token_ttl_hours"`
}

// BroadcastConfig selects the realtime fan-out medium.
type BroadcastConfig struct {
	Backend string      `yaml:"backend"` // "memory", "redis" or "none"
	Redis   RedisConfig `yaml:"redis"`
}

// RedisConfig holds connection settings for the redis pub/sub backend.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// StorageConfig controls where uploaded attachments live.
type StorageConfig struct {
	Dir            string `yaml:"dir"`
	BaseURL        string `yaml:"base_url"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes"`
}

// RelayConfig mirrors selected notifications to an operator chat channel.
type RelayConfig struct {
	Platform  string   `yaml:"platform"` // "", "slack" or "discord"
	BotToken  string   `yaml:"bot_token"`
	ChannelID string   `yaml:"channel_id"`
	Types     []string `yaml:"types"`
	AppURL    string   `yaml:"app_url"` // web app base for card links
}

// RetentionConfig schedules pruning of read notifications.
type RetentionConfig struct {
	Schedule       string `yaml:"schedule"` // 5-field cron expression, empty disables
	ReadMaxAgeDays int    `yaml:"read_max_age_days"`
}

// UserConfig seeds an identity row, used for local development.
type UserConfig struct {
	Username string `yaml:"username"`
	Role     string `yaml:"role"`
}

// Load reads a YAML config file from path and returns a validated Config.
// A .env file in the working directory, if present, is loaded first so its
// values are visible to the environment overrides.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyEnv(os.Getenv)
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv lets secrets come from the environment instead of the file.
func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv("GIGROOM_JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := getenv("GIGROOM_DB_PASSWORD"); v != "" {
		c.Database.Password = v
	}
	if v := getenv("GIGROOM_REDIS_PASSWORD"); v != "" {
		c.Broadcast.Redis.Password = v
	}
	if v := getenv("GIGROOM_RELAY_BOT_TOKEN"); v != "" {
		c.Relay.BotToken = v
	}
	if v := getenv("GIGROOM_HTTP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.HTTP.Port = port
		}
	}
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8000
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	switch c.Database.Driver {
	case "mysql":
		if c.Database.Host == "" {
			c.Database.Host = "127.0.0.1"
		}
		if c.Database.Port == 0 {
			c.Database.Port = 3306
		}
		if c.Database.User == "" {
			c.Database.User = "root"
		}
		if c.Database.Name == "" {
			c.Database.Name = "gigroom"
		}
	case "sqlite":
		if c.Database.Path == "" {
			c.Database.Path = "gigroom.db"
		}
	}
	if c.Auth.TokenTTLHr == 0 {
		c.Auth.TokenTTLHr = 24
	}
	if c.Broadcast.Backend == "" {
		c.Broadcast.Backend = "memory"
	}
	if c.Broadcast.Redis.Addr == "" {
		c.Broadcast.Redis.Addr = "127.0.0.1:6379"
	}
	if c.Broadcast.Redis.Prefix == "" {
		c.Broadcast.Redis.Prefix = "gigroom:"
	}
	if c.Storage.Dir == "" {
		c.Storage.Dir = "media"
	}
	if c.Storage.BaseURL == "" {
		c.Storage.BaseURL = "/media"
	}
	if c.Storage.MaxUploadBytes == 0 {
		c.Storage.MaxUploadBytes = 10 << 20
	}
	if c.Retention.ReadMaxAgeDays == 0 {
		c.Retention.ReadMaxAgeDays = 90
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	if c.Auth.JWTSecret == "" {
		errs = append(errs, "auth.jwt_secret is required (or GIGROOM_JWT_SECRET)")
	}
	switch c.Database.Driver {
	case "mysql", "sqlite":
	default:
		errs = append(errs, fmt.Sprintf("database.driver %q must be mysql or sqlite", c.Database.Driver))
	}
	switch c.Broadcast.Backend {
	case "memory", "redis", "none":
	default:
		errs = append(errs, fmt.Sprintf("broadcast.backend %q must be memory, redis or none", c.Broadcast.Backend))
	}
	switch c.Relay.Platform {
	case "":
	case "slack", "discord":
		if c.Relay.BotToken == "" {
			errs = append(errs, "relay.bot_token is required when relay.platform is set")
		}
		if c.Relay.ChannelID == "" {
			errs = append(errs, "relay.channel_id is required when relay.platform is set")
		}
	default:
		errs = append(errs, fmt.Sprintf("relay.platform %q must be slack or discord", c.Relay.Platform))
	}
	if c.Storage.MaxUploadBytes < 0 {
		errs = append(errs, "storage.max_upload_bytes must not be negative")
	}
	if c.Retention.ReadMaxAgeDays < 0 {
		errs = append(errs, "retention.read_max_age_days must not be negative")
	}
	for i, u := range c.Users {
		if u.Username == "" {
			errs = append(errs, fmt.Sprintf("users[%d].username is required", i))
		}
		switch u.Role {
		case "organizer", "vendor", "admin":
		default:
			errs = append(errs, fmt.Sprintf("users[%d].role %q must be organizer, vendor or admin", i, u.Role))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
