// Package config loads the worker process configuration from the
// environment, optionally seeded from a .env file.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds everything the worker binary needs to start.
type Config struct {
	BaseDir       string
	DatabaseURL   string
	ASRWorkers    int
	ASRBaseURL    string
	ASRAuthKey    string
	ASRRecognizer string
	LogLevel      string
	LogFile       string
	MetricsAddr   string
}

// Load reads a .env file (if present) and then the process environment,
// failing fast when a required value is missing.
func Load() (*Config, error) {
	// A missing .env file is not an error; system environment variables
	// still apply.
	_ = godotenv.Load()

	cfg := &Config{
		BaseDir:       getEnvOrDefault("BASE_DIR", ""),
		DatabaseURL:   getEnvOrDefault("DATABASE_URL", ""),
		ASRWorkers:    getEnvInt("ASR_WORKERS", 1),
		ASRBaseURL:    getEnvOrDefault("ASR_BASE_URL", ""),
		ASRAuthKey:    getEnvOrDefault("ASR_AUTH_KEY", ""),
		ASRRecognizer: getEnvOrDefault("ASR_RECOGNIZER", "default"),
		LogLevel:      getEnvOrDefault("LOG_LEVEL", "info"),
		LogFile:       getEnvOrDefault("LOG_FILE", "transcriber.log"),
		MetricsAddr:   getEnvOrDefault("METRICS_ADDR", ":9090"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.BaseDir == "" {
		return fmt.Errorf("BASE_DIR is required")
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.ASRBaseURL == "" {
		return fmt.Errorf("ASR_BASE_URL is required")
	}
	if c.ASRWorkers < 1 {
		return fmt.Errorf("ASR_WORKERS must be >= 1, got %d", c.ASRWorkers)
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
