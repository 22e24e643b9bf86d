package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"kicho/internal/amqp"
	"kicho/internal/cache"
	"kicho/internal/cli"
	apphttp "kicho/internal/http"
	"kicho/internal/log"
	"kicho/internal/services"
)

func main() {
	cli.LoadEnvFile()

	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		slog.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	logger := cli.SetupLogger(os.Stdout, cfg.LogLevel)

	tokens, err := cfg.Tokens()
	if err != nil {
		logger.Error("Invalid auth tokens", log.FieldError, err)
		os.Exit(1)
	}

	repo, err := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	if err != nil {
		os.Exit(1)
	}
	defer repo.Close()

	ctx, stop := cli.SignalContext(logger)
	defer stop()

	cacheManager := cache.NewManager()
	ledgers := cli.NewLedgerService(cfg, repo, cacheManager)
	cacheManager.Start(ctx, time.Minute)
	defer cacheManager.Stop()

	// Events are optional; without AMQP the exported ledgers are refreshed
	// with kichoctl export.
	var publisher services.EventPublisher
	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", log.FieldError, err)
			os.Exit(1)
		}
		defer amqpClient.Close()
		publisher = amqpClient
		logger.Info("AMQP publishing enabled", "exchange", cfg.AMQPExchange)
	} else {
		logger.Info("AMQP disabled - no AMQP_URL provided")
	}

	calendar := cli.Calendar(cfg)
	transactions := services.NewTransactionService(repo, calendar, ledgers, publisher)

	srv, err := apphttp.NewServer(":"+cfg.Port, apphttp.Options{
		Transactions:   transactions,
		Ledger:         ledgers,
		Accounts:       repo,
		Ready:          repo.Ping,
		Tokens:         tokens,
		Calendar:       calendar,
		RateLimitRPM:   cfg.RateLimitRPM,
		MetricsEnabled: cfg.MetricsEnabled,
		Logger:         logger.WithComponent(log.ComponentHTTP),
	})
	if err != nil {
		logger.Error("Failed to build HTTP server", log.FieldError, err)
		os.Exit(1)
	}

	// Configure server timeouts and limits
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 10 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Starting kicho server",
			"port", cfg.Port,
			"fiscal_year_start_month", cfg.FiscalYearStartMonth,
			"owners", len(tokens))
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
			os.Exit(1)
		}
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", log.FieldError, err)
	}
	logger.Info("Server stopped gracefully")
}
