// Package cli provides the initialization shared by cmd/kasbook and
// cmd/kasbook-worker.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"kasbook/internal/backend"
	"kasbook/internal/cache"
	"kasbook/internal/config"
	"kasbook/internal/core"
	"kasbook/internal/ledger"
	"kasbook/internal/log"
	"kasbook/internal/services"
)

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// SetupLogger installs a text logger writing to out at the given level as
// the default slog logger. Unknown levels fall back to info.
func SetupLogger(level string, out io.Writer) *log.Logger {
	cfg := log.DefaultConfig()
	cfg.Output = out
	if lvl, err := log.ParseLevel(level); err == nil {
		cfg.Level = lvl
	}
	logger := log.New(cfg)
	log.SetDefault(logger)
	return logger
}

// LoadConfig loads configuration from the environment and validates it.
func LoadConfig() (*config.Config, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadAndValidateConfig loads configuration and validates it.
// Returns the config or exits the process on validation failure.
func LoadAndValidateConfig(logger *log.Logger) *config.Config {
	cfg, err := LoadConfig()
	if err != nil {
		logger.Failure(context.Background(), "Configuration validation failed", log.ErrorTypeConfiguration, err)
		os.Exit(1)
	}
	return cfg
}

// App is a wired cash-book service with the resources behind it.
type App struct {
	Config   *config.Config
	Backend  *backend.Result
	Book     *services.CashbookService
	Archives *cache.LRUCache[[]core.Entry]
}

// Open wires the configured store, publisher, archive cache and ledger
// engine into a CashbookService.
func Open(ctx context.Context, logger *slog.Logger, cfg *config.Config) (*App, error) {
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	res, err := backend.NewFactory(logger.With(log.FieldComponent, log.ComponentBackend)).Create(ctx, bcfg)
	if err != nil {
		return nil, fmt.Errorf("create backend: %w", err)
	}

	archives := cache.NewLRUCache[[]core.Entry](cfg.ArchiveCacheSize, cfg.ArchiveCacheTTL)
	book := services.NewCashbookService(res.Store, ledger.NewEngine(cfg.Classifier()),
		services.WithPublisher(res.Publisher),
		services.WithArchiveCache(archives),
	)
	return &App{Config: cfg, Backend: res, Book: book, Archives: archives}, nil
}

// Close releases the store and the publisher.
func (a *App) Close() error {
	return a.Backend.Cleanup()
}

// GracefulShutdown returns a context cancelled on SIGINT or SIGTERM.
func GracefulShutdown() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
