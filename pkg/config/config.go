// Package config loads engine configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Database drivers supported by the engine.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds application configuration.
type Config struct {
	// Application
	AppEnv    string
	LogLevel  string
	LogFormat string

	// Database
	DatabaseDriver string
	SQLitePath     string
	DatabaseURL    string

	// RabbitMQ. When the URL is empty the worker falls back to the
	// in-process event bus.
	RabbitMQURL   string
	RabbitMQQueue string

	// Queue processor
	PollInterval time.Duration
	BatchSize    int
	Concurrency  int
	RetryBackoff time.Duration

	// Condition cache
	CacheEnabled bool
	CacheTTL     time.Duration
	CacheEntries int

	// Webhook actions
	WebhookTimeout          time.Duration
	WebhookFailureThreshold int
	WebhookRecoveryTimeout  time.Duration

	// Worker
	AdminAddr string
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		AppEnv:    getEnv("APP_ENV", "development"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", ""),

		DatabaseDriver: getEnv("DATABASE_DRIVER", DriverSQLite),
		SQLitePath:     getEnv("SQLITE_PATH", "automation.db"),
		DatabaseURL:    getEnv("DATABASE_URL", ""),

		RabbitMQURL:   getEnv("RABBITMQ_URL", ""),
		RabbitMQQueue: getEnv("RABBITMQ_QUEUE", "leadrail.automation.worker"),

		PollInterval: getDurationEnv("QUEUE_POLL_INTERVAL", 5*time.Second),
		BatchSize:    getIntEnv("QUEUE_BATCH_SIZE", 10),
		Concurrency:  getIntEnv("QUEUE_CONCURRENCY", 3),
		RetryBackoff: getDurationEnv("QUEUE_RETRY_BACKOFF", 60*time.Second),

		CacheEnabled: getBoolEnv("CONDITION_CACHE_ENABLED", true),
		CacheTTL:     getDurationEnv("CONDITION_CACHE_TTL", 5*time.Minute),
		CacheEntries: getIntEnv("CONDITION_CACHE_ENTRIES", 1000),

		WebhookTimeout:          getDurationEnv("WEBHOOK_TIMEOUT", 10*time.Second),
		WebhookFailureThreshold: getIntEnv("WEBHOOK_FAILURE_THRESHOLD", 5),
		WebhookRecoveryTimeout:  getDurationEnv("WEBHOOK_RECOVERY_TIMEOUT", 30*time.Second),

		AdminAddr: getEnv("ADMIN_ADDR", "0.0.0.0:8081"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.DatabaseDriver {
	case DriverSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unsupported DATABASE_DRIVER %q", c.DatabaseDriver)
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("QUEUE_BATCH_SIZE must be positive")
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("QUEUE_CONCURRENCY must be positive")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
