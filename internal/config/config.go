// Package config handles application configuration from environment
// variables, an optional .env file and an optional YAML file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/mbd888/riskproxy/internal/account"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port      string `yaml:"port"`
	Env       string `yaml:"env"` // "development", "staging", "production"
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"` // "json" or "text"

	// Storage
	DatabaseURL string `yaml:"database_url"` // PostgreSQL connection string (optional, uses in-memory if not set)

	// Registry bootstrap. When set and the store has no owner yet, the
	// server initializes the registry with this owner at startup.
	InitialOwner string `yaml:"initial_owner"`

	// Security
	AdminSecret        string   `yaml:"admin_secret"`
	JWTSecret          string   `yaml:"jwt_secret"` // enables HS256 bearer tokens when set
	RateLimitRPM       int      `yaml:"rate_limit_rpm"`
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`

	// Events
	KafkaBrokers []string `yaml:"kafka_brokers"`
	KafkaTopic   string   `yaml:"kafka_topic"`

	// Tracing
	OTLPEndpoint string `yaml:"otlp_endpoint"`
}

const (
	DefaultPort       = "8080"
	DefaultEnv        = "development"
	DefaultLogLevel   = "info"
	DefaultLogFormat  = "json"
	DefaultRateLimit  = 120
	DefaultKafkaTopic = "riskproxy.events"
)

// Defaults returns the configuration used when nothing is set.
func Defaults() *Config {
	return &Config{
		Port:         DefaultPort,
		Env:          DefaultEnv,
		LogLevel:     DefaultLogLevel,
		LogFormat:    DefaultLogFormat,
		RateLimitRPM: DefaultRateLimit,
		KafkaTopic:   DefaultKafkaTopic,
	}
}

// Load reads configuration. Precedence, lowest first: built-in defaults, the
// YAML file named by CONFIG_FILE, environment variables (including those
// from a .env file in the working directory).
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := Defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path) // #nosec G304 -- operator-supplied config path
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Port = getEnv("PORT", c.Port)
	c.Env = getEnv("ENV", c.Env)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("LOG_FORMAT", c.LogFormat)
	c.DatabaseURL = getEnv("DATABASE_URL", c.DatabaseURL)
	c.InitialOwner = getEnv("INITIAL_OWNER", c.InitialOwner)
	c.AdminSecret = getEnv("ADMIN_SECRET", c.AdminSecret)
	c.JWTSecret = getEnv("AUTH_JWT_SECRET", c.JWTSecret)
	c.RateLimitRPM = int(getEnvInt64("RATE_LIMIT_RPM", int64(c.RateLimitRPM)))
	c.CORSAllowedOrigins = getEnvList("CORS_ALLOWED_ORIGINS", c.CORSAllowedOrigins)
	c.KafkaBrokers = getEnvList("KAFKA_BROKERS", c.KafkaBrokers)
	c.KafkaTopic = getEnv("KAFKA_TOPIC", c.KafkaTopic)
	c.OTLPEndpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", c.OTLPEndpoint)
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	port, err := strconv.Atoi(c.Port)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("PORT must be a number between 1 and 65535, got %q", c.Port)
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error, got %q", c.LogLevel)
	}

	if c.LogFormat != "json" && c.LogFormat != "text" {
		return fmt.Errorf("LOG_FORMAT must be json or text, got %q", c.LogFormat)
	}

	if c.InitialOwner != "" {
		if _, err := account.Parse(c.InitialOwner); err != nil {
			return fmt.Errorf("INITIAL_OWNER %q: %w", c.InitialOwner, err)
		}
	}

	if c.RateLimitRPM < 0 {
		return fmt.Errorf("RATE_LIMIT_RPM must not be negative")
	}

	if len(c.KafkaBrokers) > 0 && c.KafkaTopic == "" {
		return fmt.Errorf("KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}

	if c.IsProduction() && c.AdminSecret == "" {
		return fmt.Errorf("ADMIN_SECRET is required in production")
	}

	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
