// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	FrontendURL string
	LogLevel    string
	LogFile     string

	StoreDriver string
	DBPath      string
	DatabaseURL string

	RecorderQueueSize  int
	SessionIdleTimeout time.Duration
	PlaybackMaxGap     time.Duration
	DashboardRefresh   time.Duration

	AI      AIConfig
	Sandbox SandboxConfig

	RedisAddr      string
	JWTSecret      string
	MaxRequestBody int64
}

// AIConfig controls the mentor service client.
type AIConfig struct {
	Addr           string
	RequestTimeout time.Duration
	CacheTTL       time.Duration
	CacheSize      int
}

// SandboxConfig controls code execution.
type SandboxConfig struct {
	Enabled   bool
	Image     string
	Runtime   string // Docker runtime: "" = default (runc), "runsc" = gVisor
	TimeLimit time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		FrontendURL: getEnv("FRONTEND_URL", ""),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogFile:     getEnv("LOG_FILE", ""),

		StoreDriver: strings.ToLower(getEnv("STORE_DRIVER", DriverSQLite)),
		DBPath:      getEnv("DB_PATH", "./data/auracode.db"),
		DatabaseURL: getEnv("DATABASE_URL", ""),

		RecorderQueueSize:  getEnvInt("RECORDER_QUEUE_SIZE", 1024),
		SessionIdleTimeout: getEnvDuration("SESSION_IDLE_TIMEOUT", 2*time.Hour),
		PlaybackMaxGap:     getEnvDuration("PLAYBACK_MAX_GAP", 3*time.Second),
		DashboardRefresh:   getEnvDuration("DASHBOARD_REFRESH_INTERVAL", 5*time.Second),

		AI: AIConfig{
			Addr:           getEnv("AI_SERVICE_ADDR", ""),
			RequestTimeout: getEnvDuration("AI_REQUEST_TIMEOUT", 30*time.Second),
			CacheTTL:       getEnvDuration("AI_CACHE_TTL", 90*time.Second),
			CacheSize:      getEnvInt("AI_CACHE_SIZE", 300),
		},
		Sandbox: SandboxConfig{
			Enabled:   getEnvBool("SANDBOX_ENABLED", false),
			Image:     getEnv("SANDBOX_IMAGE", "node:20-alpine"),
			Runtime:   getEnv("CONTAINER_RUNTIME", ""),
			TimeLimit: getEnvDuration("SANDBOX_TIME_LIMIT", 5*time.Second),
		},

		RedisAddr:      getEnv("REDIS_ADDR", ""),
		JWTSecret:      getEnv("JWT_SECRET", ""),
		MaxRequestBody: int64(getEnvInt("MAX_REQUEST_BODY", 1<<20)),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	switch c.StoreDriver {
	case DriverSQLite:
		if c.DBPath == "" {
			return fmt.Errorf("DB_PATH cannot be empty")
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres driver")
		}
	default:
		return fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", DriverSQLite, DriverPostgres, c.StoreDriver)
	}
	if c.RecorderQueueSize <= 0 {
		return fmt.Errorf("RECORDER_QUEUE_SIZE must be > 0")
	}
	if c.SessionIdleTimeout <= 0 {
		return fmt.Errorf("SESSION_IDLE_TIMEOUT must be > 0")
	}
	if c.DashboardRefresh <= 0 {
		return fmt.Errorf("DASHBOARD_REFRESH_INTERVAL must be > 0")
	}
	if c.PlaybackMaxGap < 0 {
		return fmt.Errorf("PLAYBACK_MAX_GAP cannot be negative")
	}
	if c.AI.CacheSize <= 0 {
		return fmt.Errorf("AI_CACHE_SIZE must be > 0")
	}
	if c.MaxRequestBody <= 0 {
		return fmt.Errorf("MAX_REQUEST_BODY must be > 0")
	}
	if c.JWTSecret != "" && len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 bytes")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

// AllowedOrigins returns the CORS origin list.
func (c *Config) AllowedOrigins() []string {
	if c.FrontendURL == "" {
		return []string{"*"}
	}
	origins := strings.Split(c.FrontendURL, ",")
	for i := range origins {
		origins[i] = strings.TrimSpace(origins[i])
	}
	return origins
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}

// IsContainer returns true if running inside a Docker container.
func IsContainer() bool {
	if os.Getenv("CONTAINER") == "true" {
		return true
	}
	if _, err := os.Stat("/.dockerenv"); err == nil {
		return true
	}
	return false
}
