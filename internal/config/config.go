// Package config loads service settings from the environment (optionally a
// .env file) and model parameters from a YAML file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

// Config holds application configuration
type Config struct {
	Port        int
	LogLevel    string
	LogPretty   bool
	CORSOrigins []string

	DatabaseURL string // PostgreSQL; takes precedence over SQLitePath
	SQLitePath  string
	RedisURL    string
	CacheTTL    time.Duration

	// CoverageSource is a file path or s3://bucket/key URI.
	CoverageSource      string
	CoverageRefreshCron string

	ModelConfigPath string
	Model           ModelConfig
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Port:                getEnvAsInt("PORT", 8080),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		LogPretty:           getEnvAsBool("LOG_PRETTY", false),
		CORSOrigins:         getEnvAsList("CORS_ORIGINS", []string{"*"}),
		DatabaseURL:         getEnv("DATABASE_URL", ""),
		SQLitePath:          getEnv("SQLITE_PATH", ""),
		RedisURL:            getEnv("REDIS_URL", ""),
		CacheTTL:            getEnvAsDuration("CACHE_TTL", 30*time.Second),
		CoverageSource:      getEnv("COVERAGE_SOURCE", ""),
		CoverageRefreshCron: getEnv("COVERAGE_REFRESH_CRON", ""),
		ModelConfigPath:     getEnv("MODEL_CONFIG", ""),
		Model:               DefaultModelConfig(),
	}

	if cfg.ModelConfigPath != "" {
		m, err := LoadModelConfig(cfg.ModelConfigPath)
		if err != nil {
			return nil, err
		}
		cfg.Model = *m
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings that would otherwise fail late.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port)
	}
	if c.CacheTTL <= 0 {
		return fmt.Errorf("CACHE_TTL must be positive, got %s", c.CacheTTL)
	}
	if c.CoverageRefreshCron != "" {
		if c.CoverageSource == "" {
			return fmt.Errorf("COVERAGE_REFRESH_CRON requires COVERAGE_SOURCE")
		}
		if _, err := cron.ParseStandard(c.CoverageRefreshCron); err != nil {
			return fmt.Errorf("invalid COVERAGE_REFRESH_CRON %q: %w", c.CoverageRefreshCron, err)
		}
	}
	return c.Model.Validate()
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, v := range strings.Split(value, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
