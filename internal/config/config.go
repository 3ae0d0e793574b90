// Package config provides application configuration management.
// It loads settings from environment variables and provides defaults for
// the server, Redis, feed fetching, refresh scheduling and backups.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/voenmeh-bot/timetable-go/internal/fetch"
	"github.com/voenmeh-bot/timetable-go/internal/parity"
)

// Config holds all application configuration
type Config struct {
	// Server Configuration
	Port            string
	LogLevel        string
	ShutdownTimeout time.Duration

	// Redis Configuration
	RedisURL string

	// Data Configuration
	DataDir string // directory for the settings database and fallback file

	// Feed Configuration
	FeedURL        string
	FetchTimeout   time.Duration
	FetchRetries   int
	OutOfSemester  parity.OutOfSemesterPolicy
	FuzzyThreshold float64

	// Refresh Configuration
	RefreshInterval  time.Duration
	LockTTL          time.Duration
	LockWait         time.Duration
	LockPollInterval time.Duration

	// Backup Configuration
	BackupInterval  time.Duration
	BackupMaxAge    time.Duration
	BackupRetention int // number of backups to keep when pruning

	// Rate Limiting
	RateLimitTokens     float64 // Burst capacity per client IP
	RateLimitRefillRate float64 // Tokens refilled per second per client IP

	// Metrics Authentication
	MetricsUsername string // Username for /metrics endpoint Basic Auth
	MetricsPassword string // Password for /metrics endpoint Basic Auth (empty = no auth)

	// Sentry Configuration
	SentryDSN         string
	SentryEnvironment string
}

// Load reads configuration from environment variables
// It attempts to load .env file first, then reads from env vars
func Load() (*Config, error) {
	_ = godotenv.Load()

	policy, err := parity.ParsePolicy(getEnv("OUT_OF_SEMESTER_POLICY", ""))
	if err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	cfg := &Config{
		// Server Configuration
		Port:            getEnv("PORT", "8080"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		ShutdownTimeout: getDurationEnv("SHUTDOWN_TIMEOUT", 30*time.Second),

		// Redis Configuration
		RedisURL: getEnv("REDIS_URL", "redis://localhost:6379/0"),

		// Data Configuration
		DataDir: getEnv("DATA_DIR", "./data"),

		// Feed Configuration
		FeedURL:        getEnv("FEED_URL", fetch.DefaultFeedURL),
		FetchTimeout:   getDurationEnv("FETCH_TIMEOUT", 30*time.Second),
		FetchRetries:   getIntEnv("FETCH_RETRIES", 3),
		OutOfSemester:  policy,
		FuzzyThreshold: getFloatEnv("FUZZY_THRESHOLD", 0.75),

		// Refresh Configuration
		RefreshInterval:  getDurationEnv("REFRESH_INTERVAL", 30*time.Minute),
		LockTTL:          getDurationEnv("LOCK_TTL", 2*time.Minute),
		LockWait:         getDurationEnv("LOCK_WAIT", time.Minute),
		LockPollInterval: getDurationEnv("LOCK_POLL_INTERVAL", 2*time.Second),

		// Backup Configuration
		BackupInterval:  getDurationEnv("BACKUP_INTERVAL", 6*time.Hour),
		BackupMaxAge:    getDurationEnv("BACKUP_MAX_AGE", 7*24*time.Hour),
		BackupRetention: getIntEnv("BACKUP_RETENTION", 28),

		// Rate Limiting
		RateLimitTokens:     getFloatEnv("RATE_LIMIT_TOKENS", 30),
		RateLimitRefillRate: getFloatEnv("RATE_LIMIT_REFILL_RATE", 10),

		// Metrics Authentication
		MetricsUsername: getEnv("METRICS_USERNAME", "prometheus"),
		MetricsPassword: getEnv("METRICS_PASSWORD", ""),

		// Sentry Configuration
		SentryDSN:         getEnv("SENTRY_DSN", ""),
		SentryEnvironment: getEnv("SENTRY_ENVIRONMENT", "production"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if required configuration values are set
func (c *Config) Validate() error {
	var errs []error

	if c.Port == "" {
		errs = append(errs, errors.New("PORT is required"))
	}
	if c.RedisURL == "" {
		errs = append(errs, errors.New("REDIS_URL is required"))
	}
	if c.DataDir == "" {
		errs = append(errs, errors.New("DATA_DIR is required"))
	}
	if c.FeedURL == "" {
		errs = append(errs, errors.New("FEED_URL is required"))
	}
	if c.FetchTimeout <= 0 {
		errs = append(errs, fmt.Errorf("FETCH_TIMEOUT must be positive, got %v", c.FetchTimeout))
	}
	if c.FetchRetries < 0 {
		errs = append(errs, fmt.Errorf("FETCH_RETRIES cannot be negative, got %d", c.FetchRetries))
	}
	if c.FuzzyThreshold <= 0 || c.FuzzyThreshold > 1 {
		errs = append(errs, fmt.Errorf("FUZZY_THRESHOLD must be in (0, 1], got %v", c.FuzzyThreshold))
	}
	if c.RefreshInterval <= 0 {
		errs = append(errs, fmt.Errorf("REFRESH_INTERVAL must be positive, got %v", c.RefreshInterval))
	}
	if c.LockTTL <= 0 {
		errs = append(errs, fmt.Errorf("LOCK_TTL must be positive, got %v", c.LockTTL))
	}
	if c.BackupInterval <= 0 {
		errs = append(errs, fmt.Errorf("BACKUP_INTERVAL must be positive, got %v", c.BackupInterval))
	}
	if c.BackupRetention < 0 {
		errs = append(errs, fmt.Errorf("BACKUP_RETENTION cannot be negative, got %d", c.BackupRetention))
	}
	if c.RateLimitTokens <= 0 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_TOKENS must be positive, got %v", c.RateLimitTokens))
	}
	if c.RateLimitRefillRate <= 0 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_REFILL_RATE must be positive, got %v", c.RateLimitRefillRate))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// SettingsPath returns the full path to the semester settings database
func (c *Config) SettingsPath() string {
	return filepath.Join(c.DataDir, "settings.db")
}

// FallbackPath returns the full path to the local snapshot fallback file
func (c *Config) FallbackPath() string {
	return filepath.Join(c.DataDir, "snapshot.json.zst")
}

// getEnv retrieves environment variable with fallback to default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getIntEnv retrieves integer environment variable with fallback to default value
func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getDurationEnv retrieves duration environment variable with fallback to default value
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getFloatEnv retrieves float64 environment variable with fallback to default value
func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
