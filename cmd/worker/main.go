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
	"keyvault-glow/internal/config"
	"keyvault-glow/internal/metrics"
	"keyvault-glow/internal/scheduler"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := config.NewLogger(cfg.Logger, "worker")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()

	deps, err := app.New(ctx, cfg, reg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := deps.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to release resources")
		}
	}()

	var lock scheduler.Lock = &scheduler.LocalLock{}
	if deps.Redis != nil {
		lock, err = scheduler.NewRedisLock(deps.Redis, cfg.Scheduler.LockKey, cfg.Scheduler.LockTTL)
		if err != nil {
			return fmt.Errorf("failed to create scheduler lock: %w", err)
		}
	} else {
		logger.Warn().Msg("redis disabled, scheduler lock is local to this process")
	}

	deadlineJob, err := scheduler.NewRefundDeadlineJob(deps.Refunds)
	if err != nil {
		return err
	}
	reconcileJob, err := scheduler.NewPaymentReconcileJob(deps.Orders)
	if err != nil {
		return err
	}

	svc, err := scheduler.NewService(scheduler.ServiceParams{
		Logger:   logger,
		Registry: scheduler.NewRegistry(deadlineJob, reconcileJob),
		Lock:     lock,
		Metrics:  metrics.NewJobs(reg),
		Interval: cfg.Scheduler.Interval,
	})
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}

	go serveMetrics(ctx, cfg.Server.Address(), reg, logger)

	logger.Info().Dur("interval", cfg.Scheduler.Interval).Msg("starting scheduler worker")
	if err := svc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("scheduler stopped unexpectedly: %w", err)
	}

	logger.Info().Msg("scheduler worker shutting down gracefully")
	return nil
}

// serveMetrics exposes the job metrics until ctx ends.
func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry, logger zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	server := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		_ = server.Close()
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Str("address", addr).Msg("metrics server failed")
	}
}
