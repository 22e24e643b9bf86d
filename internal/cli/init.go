// Package cli provides common initialization shared by cmd/kicho,
// cmd/kicho-worker and the kichoctl commands.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"kicho/internal/backend"
	"kicho/internal/cache"
	"kicho/internal/config"
	"kicho/internal/core"
	"kicho/internal/log"
	"kicho/internal/services"
	"kicho/internal/sheets"
	"kicho/internal/storage"
)

// SetupLogger builds a text logger on out at the named level and installs
// it as the slog default. An unknown level falls back to info.
func SetupLogger(out io.Writer, level string) *log.Logger {
	lvl, err := log.ParseLevel(level)
	cfg := log.DefaultConfig()
	cfg.Level = lvl
	if out != nil {
		cfg.Output = out
	}
	logger := log.New(cfg)
	log.SetDefault(logger)
	if err != nil {
		logger.Warn("Falling back to info logging", log.FieldError, err)
	}
	return logger
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration and validates it.
func LoadAndValidateConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// InitSQLite opens the SQLite repository at dbPath, applying migrations.
func InitSQLite(logger *log.Logger, dbPath string) (*storage.SQLiteRepository, error) {
	repo, err := storage.NewSQLiteRepository(dbPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", log.FieldError, err, "path", dbPath)
		return nil, err
	}
	return repo, nil
}

// NewLedgerService wires a ledger service with an LRU summary cache sized
// from cfg. The cache is registered with manager when one is given.
func NewLedgerService(cfg *config.Config, repo services.LedgerStore, manager *cache.Manager) *services.LedgerService {
	lru := cache.NewLRUCache[services.Summary](cfg.LedgerCacheSize, cfg.LedgerCacheTTL.Duration)
	if manager != nil {
		manager.Register(lru)
	}
	return services.NewLedgerService(repo, lru)
}

// Calendar returns the fiscal calendar configured in cfg.
func Calendar(cfg *config.Config) core.FiscalCalendar {
	return core.FiscalCalendar{StartMonth: cfg.FiscalYearStartMonth}
}

// NewExportWriter builds the export backend selected by cfg.
func NewExportWriter(ctx context.Context, cfg *config.Config) (sheets.LedgerWriter, error) {
	bc, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	return backend.NewLedgerWriter(ctx, bc)
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM. The
// returned stop function releases the signal handler.
func SignalContext(logger *log.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("Shutdown signal received", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigChan)
		cancel()
	}
}
