// Package cli provides common CLI initialization utilities shared by
// cmd/expenses and cmd/expensectl, plus the expensectl subcommands.
package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"

	"expensetracker/internal/config"
	applog "expensetracker/internal/log"
	"expensetracker/internal/storage"
)

// SetupLogger builds the application logger from cfg and installs it as the
// slog default. Records go to out, or stdout when out is nil. Unknown levels
// fall back to info.
func SetupLogger(cfg *config.Config, out io.Writer) *applog.Logger {
	lc := applog.DefaultConfig()
	if out != nil {
		lc.Output = out
	}
	if cfg != nil {
		if level, err := applog.ParseLevel(cfg.LogLevel); err == nil {
			lc.Level = level
		}
		lc.Format = cfg.LogFormat
	}
	logger := applog.New(lc)
	applog.SetDefault(logger)
	return logger
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration and validates it.
// Returns the config or exits the process on validation failure.
func LoadAndValidateConfig() *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	return cfg
}

// OpenStore opens the SQLite expense store at dbPath.
// Returns the store or exits the process on failure.
func OpenStore(logger *applog.Logger, dbPath string) *storage.ExpenseStore {
	store, err := storage.Open(dbPath)
	if err != nil {
		logger.Error("Failed to open expense store",
			applog.FieldError, err,
			applog.FieldDBPath, dbPath)
		os.Exit(1)
	}
	logger.Debug("Expense store ready", applog.FieldDBPath, dbPath)
	return store
}
