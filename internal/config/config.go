package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment variables.
// It is the single source of truth for runtime parameters.
type Config struct {
	Port string
	Env  string

	DB         DatabaseConfig
	Redis      RedisConfig
	Storefront StorefrontConfig
	Tradegate  TradegateConfig
	Sync       SyncConfig
	Worker     WorkerConfig
}

// DatabaseConfig contains PostgreSQL connection parameters.
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

// RedisConfig contains Redis connection parameters.
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// StorefrontConfig contains credentials for the realtime storefront channel.
// One account per deployment; constructed explicitly and passed down, never
// read from ambient globals.
type StorefrontConfig struct {
	BaseURL     string
	AccessToken string
	RateLimit   float64 // requests per second
	Timeout     time.Duration
}

// TradegateConfig contains credentials for the batch-import channel.
type TradegateConfig struct {
	BaseURL   string
	APIKey    string
	RateLimit float64
	Timeout   time.Duration
}

// SyncConfig contains engine tuning parameters.
type SyncConfig struct {
	// GroupingAttribute is the variant attribute used to partition a
	// product into listing groups.
	GroupingAttribute string
	// Concurrency bounds how many listing groups are reconciled in
	// parallel, to respect marketplace rate limits.
	Concurrency int
	// LockTTL caps how long a per-group reconciliation lock is held.
	LockTTL time.Duration
	// LockWait caps how long a second reconciliation of the same group
	// waits for the first to finish.
	LockWait time.Duration
}

// WorkerConfig contains interval configuration for background workers.
type WorkerConfig struct {
	SyncInterval       time.Duration
	ImportPollInterval time.Duration
	ImportPollMaxAge   time.Duration
}

// Load reads configuration from environment variables. If a .env file exists
// in the working directory, it will be loaded first. It returns a populated
// Config or an error with a human-friendly message.
func Load() (*Config, error) {
	// Load .env if present; ignore error if file is missing so that production
	// environments relying solely on real environment variables keep working.
	_ = godotenv.Load()

	cfg := &Config{}

	// Server
	cfg.Port = getEnv("PORT", "8080")
	cfg.Env = getEnv("ENV", "development")

	// Database
	cfg.DB = DatabaseConfig{
		Host:     getEnv("DB_HOST", ""),
		Port:     getEnv("DB_PORT", "5432"),
		User:     getEnv("DB_USER", ""),
		Password: getEnv("DB_PASSWORD", ""),
		Name:     getEnv("DB_NAME", ""),
		SSLMode:  getEnv("DB_SSLMODE", "disable"),
	}

	// Redis
	cfg.Redis = RedisConfig{
		Host:     getEnv("REDIS_HOST", "redis"),
		Port:     getEnv("REDIS_PORT", "6379"),
		Password: getEnv("REDIS_PASSWORD", ""),
		DB:       getEnvInt("REDIS_DB", 0),
	}

	// Marketplace channels
	var err error
	cfg.Storefront = StorefrontConfig{
		BaseURL:     getEnv("STOREFRONT_BASE_URL", ""),
		AccessToken: getEnv("STOREFRONT_ACCESS_TOKEN", ""),
		RateLimit:   getEnvFloat("STOREFRONT_RATE_LIMIT", 2),
	}
	if cfg.Storefront.Timeout, err = parseDurationEnv("STOREFRONT_TIMEOUT", "30s"); err != nil {
		return nil, fmt.Errorf("invalid STOREFRONT_TIMEOUT: %w", err)
	}
	cfg.Tradegate = TradegateConfig{
		BaseURL:   getEnv("TRADEGATE_BASE_URL", ""),
		APIKey:    getEnv("TRADEGATE_API_KEY", ""),
		RateLimit: getEnvFloat("TRADEGATE_RATE_LIMIT", 1),
	}
	if cfg.Tradegate.Timeout, err = parseDurationEnv("TRADEGATE_TIMEOUT", "60s"); err != nil {
		return nil, fmt.Errorf("invalid TRADEGATE_TIMEOUT: %w", err)
	}

	// Sync engine
	cfg.Sync = SyncConfig{
		GroupingAttribute: getEnv("SYNC_GROUPING_ATTRIBUTE", "color"),
		Concurrency:       getEnvInt("SYNC_CONCURRENCY", 4),
	}
	if cfg.Sync.Concurrency < 1 {
		return nil, errors.New("SYNC_CONCURRENCY must be >= 1")
	}
	if cfg.Sync.LockTTL, err = parseDurationEnv("SYNC_LOCK_TTL", "2m"); err != nil {
		return nil, fmt.Errorf("invalid SYNC_LOCK_TTL: %w", err)
	}
	if cfg.Sync.LockWait, err = parseDurationEnv("SYNC_LOCK_WAIT", "30s"); err != nil {
		return nil, fmt.Errorf("invalid SYNC_LOCK_WAIT: %w", err)
	}

	// Workers (durations)
	if cfg.Worker.SyncInterval, err = parseDurationEnv("SYNC_INTERVAL", "30m"); err != nil {
		return nil, fmt.Errorf("invalid SYNC_INTERVAL: %w", err)
	}
	if cfg.Worker.ImportPollInterval, err = parseDurationEnv("IMPORT_POLL_INTERVAL", "30s"); err != nil {
		return nil, fmt.Errorf("invalid IMPORT_POLL_INTERVAL: %w", err)
	}
	if cfg.Worker.ImportPollMaxAge, err = parseDurationEnv("IMPORT_POLL_MAX_AGE", "6h"); err != nil {
		return nil, fmt.Errorf("invalid IMPORT_POLL_MAX_AGE: %w", err)
	}

	// Basic validation for DB parameters — keeps messages concise and helpful.
	if cfg.DB.Host == "" || cfg.DB.User == "" || cfg.DB.Name == "" {
		return nil, errors.New("database configuration incomplete: ensure DB_HOST, DB_USER, and DB_NAME are set")
	}

	return cfg, nil
}

// getEnv returns the value of an environment variable or a default if empty.
func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// getEnvInt returns the value of an environment variable as an integer or a default if empty/invalid.
func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

// getEnvFloat returns the value of an environment variable as a float or a default if empty/invalid.
func getEnvFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

// parseDurationEnv reads an environment variable and parses it as time.Duration.
// If the variable is empty, it falls back to the provided default value.
func parseDurationEnv(key, def string) (time.Duration, error) {
	raw := getEnv(key, def)
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("duration must be >= 0")
	}
	return d, nil
}
