package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	applog "expensetracker/internal/log"
)

type Config struct {
	// HTTP Server
	Port string

	// Database
	DBPath string

	// Views
	ListLimit       int
	ChartWindowDays int

	// HTTP protection
	RateLimitPerMinute int
	ShutdownTimeout    time.Duration

	// Logging
	LogLevel  string
	LogFormat string
}

func Load() *Config {
	return &Config{
		Port:   getEnv("PORT", "8081"),
		DBPath: getEnv("EXPENSES_DB_PATH", "./data/expenses.db"),

		ListLimit:       getEnvInt("LIST_LIMIT", 1000),
		ChartWindowDays: getEnvInt("CHART_WINDOW_DAYS", 30),

		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 60),
		ShutdownTimeout:    getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
	}
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.DBPath == "" {
		errors = append(errors, "database path cannot be empty")
	} else {
		dir := filepath.Dir(c.DBPath)
		if dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create database directory '%s': %v", dir, err))
				}
			}
		}
	}

	if c.ListLimit < 1 {
		errors = append(errors, fmt.Sprintf("invalid list limit %d: must be at least 1", c.ListLimit))
	} else if c.ListLimit > 100000 {
		errors = append(errors, fmt.Sprintf("invalid list limit %d: must be at most 100000", c.ListLimit))
	}

	if c.ChartWindowDays < 1 {
		errors = append(errors, fmt.Sprintf("invalid chart window %d: must be at least 1 day", c.ChartWindowDays))
	} else if c.ChartWindowDays > 3660 {
		errors = append(errors, fmt.Sprintf("invalid chart window %d: must be at most 3660 days", c.ChartWindowDays))
	}

	if c.RateLimitPerMinute < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at least 1 request per minute", c.RateLimitPerMinute))
	}

	if c.ShutdownTimeout < time.Second {
		errors = append(errors, fmt.Sprintf("invalid shutdown timeout %v: must be at least 1 second", c.ShutdownTimeout))
	}

	if _, err := applog.ParseLevel(c.LogLevel); err != nil {
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of debug, info, warn, error", c.LogLevel))
	}

	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be 'text' or 'json'", c.LogFormat))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return ":" + c.Port
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
