package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var configEnvKeys = []string{
	"CONFIG_FILE", "PORT", "ENV", "LOG_LEVEL", "LOG_FORMAT", "DATABASE_URL",
	"INITIAL_OWNER", "ADMIN_SECRET", "AUTH_JWT_SECRET", "RATE_LIMIT_RPM",
	"CORS_ALLOWED_ORIGINS", "KAFKA_BROKERS", "KAFKA_TOPIC",
	"OTEL_EXPORTER_OTLP_ENDPOINT",
}

// clearEnv blanks every config variable for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range configEnvKeys {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultEnv, cfg.Env)
	assert.Equal(t, DefaultLogLevel, cfg.LogLevel)
	assert.Equal(t, DefaultLogFormat, cfg.LogFormat)
	assert.Equal(t, DefaultRateLimit, cfg.RateLimitRPM)
	assert.Equal(t, DefaultKafkaTopic, cfg.KafkaTopic)
	assert.Empty(t, cfg.DatabaseURL)
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.IsProduction())
}

func TestLoad_FromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("INITIAL_OWNER", "registry.owner")
	t.Setenv("RATE_LIMIT_RPM", "30")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, "registry.owner", cfg.InitialOwner)
	assert.Equal(t, 30, cfg.RateLimitRPM)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
}

func TestLoad_FileThenEnv(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "riskproxy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: "7070"
log_level: debug
admin_secret: from-file
kafka_brokers: [kafka:9092]
cors_allowed_origins:
  - https://wallet.example
`), 0o600))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("ADMIN_SECRET", "from-env")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "7070", cfg.Port)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "from-env", cfg.AdminSecret, "env must win over the file")
	assert.Equal(t, []string{"kafka:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, []string{"https://wallet.example"}, cfg.CORSAllowedOrigins)
	assert.Equal(t, DefaultKafkaTopic, cfg.KafkaTopic, "unset file keys keep defaults")
}

func TestLoad_BadFile(t *testing.T) {
	clearEnv(t)

	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	_, err := Load()
	assert.ErrorContains(t, err, "read config file")

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: [unterminated"), 0o600))
	t.Setenv("CONFIG_FILE", path)
	_, err = Load()
	assert.ErrorContains(t, err, "parse config file")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"defaults", func(c *Config) {}, ""},
		{"port not a number", func(c *Config) { c.Port = "http" }, "PORT"},
		{"port out of range", func(c *Config) { c.Port = "70000" }, "PORT"},
		{"bad log level", func(c *Config) { c.LogLevel = "trace" }, "LOG_LEVEL"},
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }, "LOG_FORMAT"},
		{"bad initial owner", func(c *Config) { c.InitialOwner = "Not An Account" }, "INITIAL_OWNER"},
		{"hex initial owner", func(c *Config) { c.InitialOwner = "0x000000000000000000000000000000000000dEaD" }, ""},
		{"negative rate limit", func(c *Config) { c.RateLimitRPM = -1 }, "RATE_LIMIT_RPM"},
		{"brokers without topic", func(c *Config) { c.KafkaBrokers = []string{"k:9092"}; c.KafkaTopic = "" }, "KAFKA_TOPIC"},
		{"production without admin secret", func(c *Config) { c.Env = "production" }, "ADMIN_SECRET"},
		{"production with admin secret", func(c *Config) { c.Env = "production"; c.AdminSecret = "s3cret" }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
