package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"keyvault-glow/internal/app"
	"keyvault-glow/internal/cache"
	"keyvault-glow/internal/config"
	"keyvault-glow/internal/handler"
	"keyvault-glow/internal/metrics"
	"keyvault-glow/internal/router"
	"keyvault-glow/internal/service"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const webhookScope = "payment-webhook"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Initialize logger
	logger := config.NewLogger(cfg.Logger, "api")
	logger.Info().Msg("starting keyvault API server")

	// Create context for application lifecycle
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	deps, err := app.New(ctx, cfg, reg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := deps.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to release resources")
		}
	}()

	poller := service.NewPaymentPoller(ctx, deps.Orders, cfg.Payment.PollInterval, cfg.Payment.PollTimeout, logger)

	checks := map[string]handler.Pinger{"database": deps.Pool}
	var guard handler.EventGuard
	if deps.Redis != nil {
		checks["redis"] = deps.Redis
		idem, err := cache.NewIdempotencyGuard(deps.Redis, cfg.Redis.IdempotencyTTL, webhookScope)
		if err != nil {
			return fmt.Errorf("failed to initialize webhook guard: %w", err)
		}
		guard = idem
	}

	// Initialize HTTP handlers
	params := router.Params{
		Config:   cfg,
		Logger:   logger,
		Gatherer: reg,
		HTTP:     metrics.NewHTTP(reg),
		Health:   handler.NewHealthHandler(checks, logger),
		Orders:   handler.NewOrderHandler(deps.Orders, poller, logger),
		Refunds:  handler.NewRefundHandler(deps.Refunds, logger),
		Coupons:  handler.NewCouponHandler(deps.Coupons, logger),
		Balances: handler.NewBalanceHandler(deps.Balances, logger),
		Realtime: handler.NewRealtimeHandler(ctx, deps.Hub, cfg.Server.AllowedOrigins, logger),
		ProofDir: deps.ProofDir,
	}
	if deps.Webhook != nil {
		params.Webhook = handler.NewWebhookHandler(deps.Webhook, guard, deps.Orders, deps.Metrics, logger)
	}

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router.New(params),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Channel to listen for errors from the server
	serverErrors := make(chan error, 1)

	go func() {
		logger.Info().
			Str("address", cfg.Server.Address()).
			Msg("HTTP server started")
		serverErrors <- server.ListenAndServe()
	}()

	// Channel to listen for interrupt signals
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		logger.Info().
			Str("signal", sig.String()).
			Msg("shutdown signal received, starting graceful shutdown")

		// Stop pollers and close realtime streams before draining requests.
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("failed to shutdown server gracefully")
			if closeErr := server.Close(); closeErr != nil {
				logger.Error().Err(closeErr).Msg("failed to close server")
			}
			return fmt.Errorf("server shutdown failed: %w", err)
		}

		poller.Wait()
		logger.Info().Msg("server shutdown completed")
	}

	return nil
}
