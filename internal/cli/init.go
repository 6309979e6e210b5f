// Package cli provides common initialization and terminal helpers for the
// command-line frontend.
package cli

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"contabile/internal/api"
	"contabile/internal/config"
	"contabile/internal/log"
	"contabile/internal/token"
)

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// SetupLogger initializes structured logging according to LOG_LEVEL and sets
// it as the default logger.
func SetupLogger(cfg *config.Config) *log.Logger {
	level, err := config.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	logger := log.New(log.Config{
		Level:     level,
		Component: log.ComponentCLI,
		Handler:   slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}),
	})
	log.SetDefault(logger)
	return logger
}

// LoadAndValidateConfig loads configuration and validates it.
// Returns the config or exits the process on validation failure.
func LoadAndValidateConfig(logger *log.Logger) *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}
	return cfg
}

// OpenTokenStore builds the credential store the config selects. The caller
// owns the returned cleanup function.
func OpenTokenStore(logger *log.Logger, cfg *config.Config) (token.Store, func() error) {
	if cfg.TokenStore == "memory" {
		return token.NewMemoryStore(), func() error { return nil }
	}

	store, err := token.NewSQLiteStore(cfg.TokenDBPath)
	if err != nil {
		logger.Error("failed to open token store",
			log.FieldError, err, log.FieldPath, cfg.TokenDBPath)
		os.Exit(1)
	}
	return store, store.Close
}

// NewAPIClient builds the authenticated request gateway from config.
func NewAPIClient(logger *log.Logger, cfg *config.Config, tokens token.Store) *api.Client {
	client, err := api.New(api.Config{
		BaseURL: cfg.APIBaseURL,
		Timeout: cfg.RequestTimeout,
	}, tokens, logger)
	if err != nil {
		logger.Error("failed to initialize API client",
			log.FieldError, err, log.FieldPath, cfg.APIBaseURL)
		os.Exit(1)
	}
	return client
}
