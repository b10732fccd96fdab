// internal/config/config.go
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"
)

type Config struct {
	Database DatabaseConfig
	Session  SessionConfig
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type SessionConfig struct {
	// Token is an optional signed session token. When empty the client
	// falls back to a persisted anonymous session.
	Token string

	// Secret verifies the token signature (HS256).
	Secret string

	// StateDir holds the anonymous session file.
	StateDir string

	// ResolveTimeout bounds session resolution including retries.
	ResolveTimeout time.Duration
}

func Load() (*Config, error) {
	return &Config{
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "taskdeck"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},
		Session: SessionConfig{
			Token:          getEnv("SESSION_TOKEN", ""),
			Secret:         getEnv("SESSION_SECRET", ""),
			StateDir:       getEnv("STATE_DIR", defaultStateDir()),
			ResolveTimeout: getEnvAsDuration("SESSION_RESOLVE_TIMEOUT", 10*time.Second),
		},
	}, nil
}

func defaultStateDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "taskdeck")
	}
	return ".taskdeck"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	if duration, err := time.ParseDuration(valueStr); err == nil {
		return duration
	}
	return defaultValue
}
