package app

import (
	"os"
	"time"

	"github.com/campuskit/portal/internal/portal/domain"
)

type Config struct {
	APIBaseURL  string        // Required-ish: platform API base URL (default: http://localhost:8080)
	SessionFile string        // Optional: path to SQLite session file (default: ./portal-session.db)
	HTTPTimeout time.Duration // Optional: per-request timeout for API calls (default: 10s)

	DefaultRole       domain.RoleID // Optional: skip role selection when set (e.g. "student")
	ConfirmationDelay time.Duration // Optional: how long success feedback lingers before redirect (default: 1s)
	ResendCooldown    time.Duration // Optional: pacing for recovery-email code resends (default: 30s)

	Env       string // Environment (dev, staging, prod) (default: dev)
	LogLevel  string // Log level (debug, info, warn, error) (default: info)
	LogFormat string // Log format (json, text) (default: text)
}

func LoadConfig() Config {
	return Config{
		APIBaseURL:        getEnvOrDefault("PORTAL_API_BASE_URL", "http://localhost:8080"),
		SessionFile:       getEnvOrDefault("PORTAL_SESSION_FILE", "portal-session.db"),
		HTTPTimeout:       getEnvDurationOrDefault("PORTAL_HTTP_TIMEOUT", 10*time.Second),
		DefaultRole:       domain.RoleID(os.Getenv("PORTAL_DEFAULT_ROLE")),
		ConfirmationDelay: getEnvDurationOrDefault("PORTAL_CONFIRMATION_DELAY", 1*time.Second),
		ResendCooldown:    getEnvDurationOrDefault("PORTAL_RESEND_COOLDOWN", 30*time.Second),
		Env:               getEnvOrDefault("ENV", "dev"),
		LogLevel:          getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:         getEnvOrDefault("LOG_FORMAT", "text"),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	return defaultValue
}
