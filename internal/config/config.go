// Package config provides application configuration management.
// Configuration is loaded from environment variables following 12-factor principles.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Quota enforcement modes.
const (
	QuotaHard = "hard"
	QuotaSoft = "soft"
)

const minJWTSecretLength = 32

// Config holds all application configuration.
// All fields are populated from environment variables.
type Config struct {
	// Application settings
	AppEnv  string `env:"APP_ENV" envDefault:"development"`
	AppPort int    `env:"APP_PORT" envDefault:"8080"`

	// Database (PostgreSQL)
	DatabaseURL    string `env:"DATABASE_URL,required,notEmpty"`
	DBMaxConns     int32  `env:"DB_MAX_CONNS" envDefault:"20"`
	MigrateOnStart bool   `env:"MIGRATE_ON_START" envDefault:"false"`

	// Cache (Redis)
	RedisURL       string        `env:"REDIS_URL,required,notEmpty"`
	APIKeyCacheTTL time.Duration `env:"API_KEY_CACHE_TTL" envDefault:"5m"`
	RedisPoolSize  int           `env:"REDIS_POOL_SIZE" envDefault:"10"`

	// Sessions
	JWTSecret  string        `env:"JWT_SECRET,required,notEmpty"`
	SessionTTL time.Duration `env:"SESSION_TTL" envDefault:"24h"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Server timeouts
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"10s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// Quotas
	QuotaEnforcement string `env:"QUOTA_ENFORCEMENT" envDefault:"hard"`
	QuotaTimezone    string `env:"QUOTA_TIMEZONE" envDefault:"UTC"`

	// Rate limiting of credential endpoints, per client IP
	RateLimitAuthEnabled bool    `env:"RATE_LIMIT_AUTH_ENABLED" envDefault:"true"`
	RateLimitAuthRPS     float64 `env:"RATE_LIMIT_AUTH_RPS" envDefault:"0.2"`
	RateLimitAuthBurst   int     `env:"RATE_LIMIT_AUTH_BURST" envDefault:"10"`

	// CORS configuration
	// Comma-separated list of allowed origins (e.g., "https://example.com,https://app.example.com")
	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS" envDefault:"http://localhost:5173"`

	// Request body size limit in bytes (default 1MB)
	MaxRequestBodySize int64 `env:"MAX_REQUEST_BODY_SIZE" envDefault:"1048576"`

	// Stock change events (empty brokers disables publishing)
	KafkaBrokers    []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaStockTopic string   `env:"KAFKA_STOCK_TOPIC" envDefault:"stock-events"`

	// Usage audit worker
	UsageWorkerEnabled bool `env:"USAGE_WORKER_ENABLED" envDefault:"true"`

	// Metrics
	MetricsEnabled bool `env:"METRICS_ENABLED" envDefault:"true"`
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// GetCORSAllowedOrigins parses the comma-separated origins string into a slice.
func (c *Config) GetCORSAllowedOrigins() []string {
	if c.CORSAllowedOrigins == "" {
		return nil
	}

	origins := strings.Split(c.CORSAllowedOrigins, ",")
	result := make([]string, 0, len(origins))

	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

// QuotaLocation returns the time zone that quota windows roll over in.
func (c *Config) QuotaLocation() (*time.Location, error) {
	loc, err := time.LoadLocation(c.QuotaTimezone)
	if err != nil {
		return nil, fmt.Errorf("QUOTA_TIMEZONE: %w", err)
	}
	return loc, nil
}

// Validate checks values that struct tags cannot express.
func (c *Config) Validate() error {
	var errs []error
	if len(c.JWTSecret) < minJWTSecretLength {
		errs = append(errs, fmt.Errorf("JWT_SECRET must be at least %d characters", minJWTSecretLength))
	}
	if c.QuotaEnforcement != QuotaHard && c.QuotaEnforcement != QuotaSoft {
		errs = append(errs, fmt.Errorf("QUOTA_ENFORCEMENT must be %q or %q, got %q", QuotaHard, QuotaSoft, c.QuotaEnforcement))
	}
	if _, err := c.QuotaLocation(); err != nil {
		errs = append(errs, err)
	}
	if c.SessionTTL <= 0 {
		errs = append(errs, errors.New("SESSION_TTL must be positive"))
	}
	if c.RateLimitAuthEnabled && (c.RateLimitAuthRPS <= 0 || c.RateLimitAuthBurst <= 0) {
		errs = append(errs, errors.New("RATE_LIMIT_AUTH_RPS and RATE_LIMIT_AUTH_BURST must be positive"))
	}
	return errors.Join(errs...)
}

// Load reads an optional .env file, parses environment variables and
// returns a validated Config. Variables already set in the environment win
// over the file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
