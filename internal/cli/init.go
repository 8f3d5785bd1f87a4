// Package cli provides common CLI initialization utilities shared by
// cmd/khorcha and cmd/khorcha-worker.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"khorcha/internal/config"
	applog "khorcha/internal/log"
)

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// SetupLogger builds the process logger from a LOG_LEVEL value and makes it
// the slog default. Unknown levels fall back to info.
func SetupLogger(level, component string) *applog.Logger {
	lvl, _ := applog.ParseLevel(level)
	cfg := applog.DefaultConfig()
	cfg.Level = lvl
	cfg.Handler = nil
	cfg.Component = component
	logger := applog.New(cfg)
	applog.SetDefault(logger)
	return logger
}

// LoadAndValidateConfig loads configuration and validates it with check
// (Config.Validate or Config.ValidateWorker).
// Returns the config or exits the process on validation failure.
func LoadAndValidateConfig(logger *applog.Logger, check func(*config.Config) error) *config.Config {
	cfg := config.Load()
	if err := check(cfg); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	return cfg
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext(logger *applog.Logger) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ctx.Done()
		logger.Info("Shutting down")
	}()
	return ctx, stop
}
