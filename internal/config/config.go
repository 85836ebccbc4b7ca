package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Storage backend configuration
	Storage StorageConfig

	// Database configuration (postgres backend only)
	Database DatabaseConfig

	// Auth configuration
	Auth AuthConfig

	// Rate limiting configuration
	RateLimit RateLimitConfig

	// Logging configuration
	Log LogConfig
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	MaxBodySize     int64 // comment payloads, in bytes
	MaxImportSize   int64 // import payloads, in bytes
}

// StorageConfig selects and configures the comment storage backend
type StorageConfig struct {
	Type    string // "file" or "postgres"
	DataDir string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host         string
	Port         string
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
}

// AuthConfig holds token verification and admin settings.
// SiteSecrets maps a siteId to the HMAC secret its tokens are signed with.
type AuthConfig struct {
	SiteSecrets map[string]string
	AdminSecret string
}

// RateLimitConfig holds per-IP request rate limiting settings
type RateLimitConfig struct {
	Enabled    bool
	PerMinute  int
	Burst      int
	MaxClients int
}

// LogConfig holds logging settings
type LogConfig struct {
	Level  string
	Format string // "json" or "pretty"
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnv("PORT", "4000"),
			ReadTimeout:     getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getDurationEnv("SERVER_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getDurationEnv("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			MaxBodySize:     getInt64Env("MAX_BODY_SIZE", 1024*1024),      // 1MB
			MaxImportSize:   getInt64Env("MAX_IMPORT_SIZE", 50*1024*1024), // 50MB
		},
		Storage: StorageConfig{
			Type:    getEnv("STORAGE_TYPE", "file"),
			DataDir: getEnv("DATA_DIR", "./data"),
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnv("DB_PORT", "5432"),
			User:         getEnv("DB_USER", "postgres"),
			Password:     getEnv("DB_PASSWORD", "postgres"),
			Name:         getEnv("DB_NAME", "para_comments"),
			SSLMode:      getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns: getIntEnv("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getIntEnv("DB_MAX_IDLE_CONNS", 5),
			MaxLifetime:  getDurationEnv("DB_MAX_LIFETIME", 5*time.Minute),
		},
		Auth: AuthConfig{
			SiteSecrets: getJSONMapEnv("SITE_SECRETS"),
			AdminSecret: getEnv("ADMIN_SECRET", ""),
		},
		RateLimit: RateLimitConfig{
			Enabled:    getBoolEnv("RATE_LIMIT", true),
			PerMinute:  getIntEnv("RATE_LIMIT_MAX", 100),
			Burst:      getIntEnv("RATE_LIMIT_BURST", 20),
			MaxClients: getIntEnv("RATE_LIMIT_MAX_CLIENTS", 10000),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	// Validate required configuration
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	switch c.Storage.Type {
	case "file":
		if c.Storage.DataDir == "" {
			return fmt.Errorf("DATA_DIR is required for file storage")
		}
	case "postgres":
		if c.Database.Host == "" {
			return fmt.Errorf("DB_HOST is required for postgres storage")
		}
		if c.Database.Name == "" {
			return fmt.Errorf("DB_NAME is required for postgres storage")
		}
	default:
		return fmt.Errorf("unknown STORAGE_TYPE: %s", c.Storage.Type)
	}
	return nil
}

// GetDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// Helper functions for environment variable parsing

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getInt64Env(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// getJSONMapEnv parses a JSON object env var into a string map.
// A malformed value degrades to an empty map rather than failing startup.
func getJSONMapEnv(key string) map[string]string {
	out := make(map[string]string)
	if value := os.Getenv(key); value != "" {
		if err := json.Unmarshal([]byte(value), &out); err != nil {
			return make(map[string]string)
		}
	}
	return out
}
