// Package app assembles the shared dependency graph of the api and worker binaries.
package app

import (
	"context"
	"fmt"
	"io"
	"strings"

	"keyvault-glow/internal/cache"
	"keyvault-glow/internal/config"
	"keyvault-glow/internal/coupon"
	"keyvault-glow/internal/database"
	"keyvault-glow/internal/events"
	"keyvault-glow/internal/gateway"
	"keyvault-glow/internal/metrics"
	"keyvault-glow/internal/notify"
	"keyvault-glow/internal/realtime"
	"keyvault-glow/internal/repository"
	"keyvault-glow/internal/service"
	"keyvault-glow/internal/storage"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"go.uber.org/multierr"
)

// App holds the infrastructure clients and services built from a Config.
type App struct {
	Pool    *pgxpool.Pool
	Redis   *cache.Client // nil when redis is disabled
	Hub     *realtime.Hub
	Gateway gateway.Gateway
	Webhook *gateway.StripeGateway // nil unless the stripe gateway is selected
	Metrics *metrics.Domain

	// ProofDir is the local evidence directory, empty when proofs go to S3.
	ProofDir string

	Orders   service.OrderService
	Refunds  service.RefundService
	Coupons  service.CouponService
	Balances service.BalanceService

	closers []io.Closer
	logger  zerolog.Logger
}

// New connects to every configured backend and wires the services. The
// caller must Close the returned App.
func New(ctx context.Context, cfg *config.Config, reg prometheus.Registerer, logger zerolog.Logger) (_ *App, err error) {
	a := &App{logger: logger}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	a.Pool, err = database.NewPool(ctx, cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if cfg.Database.AutoMigrate {
		if err = database.Migrate(ctx, a.Pool, logger); err != nil {
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	if cfg.Redis.Enabled {
		a.Redis, err = cache.New(ctx, cfg.Redis, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize redis: %w", err)
		}
		a.closers = append(a.closers, a.Redis)
	}

	proofStore, err := a.proofStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if err = a.paymentGateway(cfg); err != nil {
		return nil, err
	}

	a.Hub = realtime.NewHub(logger)
	publishers := events.Fanout{a.Hub}
	if cfg.Kafka.Enabled {
		kafka := events.NewKafkaPublisher(cfg.Kafka, logger)
		a.closers = append(a.closers, kafka)
		publishers = append(publishers, kafka)
	}

	var notifier notify.Notifier = notify.NewLogNotifier(logger)
	if cfg.SMTP.Enabled {
		notifier, err = notify.NewSMTPNotifier(cfg.SMTP, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize smtp: %w", err)
		}
	}

	a.Metrics = metrics.NewDomain(reg)

	productRepo := repository.NewProductRepository(a.Pool, logger)
	orderRepo := repository.NewOrderRepository(a.Pool, logger)
	couponRepo := repository.NewCouponRepository(a.Pool, logger)
	refundRepo := repository.NewRefundRepository(a.Pool, logger)
	ledgerRepo := repository.NewLedgerRepository(a.Pool, logger)

	resolver := coupon.NewResolver(couponRepo, logger)

	a.Orders = service.NewOrderService(service.OrderServiceParams{
		Orders:         orderRepo,
		Products:       productRepo,
		Coupons:        couponRepo,
		Ledger:         ledgerRepo,
		Resolver:       resolver,
		Gateway:        a.Gateway,
		Publisher:      publishers,
		Metrics:        a.Metrics,
		ReconcileAfter: cfg.Payment.ReconcileAfter,
		Logger:         logger,
	})
	a.Refunds = service.NewRefundService(service.RefundServiceParams{
		Refunds:              refundRepo,
		Orders:               orderRepo,
		Ledger:               ledgerRepo,
		Proofs:               storage.NewStaging(proofStore, cfg.S3.Prefix, logger),
		Publisher:            publishers,
		Notifier:             notifier,
		Metrics:              a.Metrics,
		AdminEmail:           cfg.SMTP.AdminAddress,
		EligibilityWindow:    cfg.Refund.EligibilityWindow,
		SellerResponseWindow: cfg.Refund.SellerResponseWindow,
		Logger:               logger,
	})
	a.Coupons = service.NewCouponService(couponRepo, productRepo, resolver, logger)
	a.Balances = service.NewBalanceService(ledgerRepo, publishers, logger)

	return a, nil
}

func (a *App) proofStore(ctx context.Context, cfg *config.Config) (storage.ObjectStore, error) {
	if cfg.S3.Enabled {
		store, err := storage.NewS3Store(ctx, storage.S3Config{
			Bucket:        cfg.S3.Bucket,
			Region:        cfg.S3.Region,
			Endpoint:      cfg.S3.Endpoint,
			PublicBaseURL: cfg.S3.PublicBaseURL,
		}, a.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize S3 proof store: %w", err)
		}
		return store, nil
	}

	a.logger.Info().Str("dir", cfg.S3.LocalDir).Msg("using local file system for refund proofs (S3 disabled)")
	store, err := storage.NewLocalStore(cfg.S3.LocalDir, cfg.S3.LocalBaseURL, a.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize local proof store: %w", err)
	}
	a.ProofDir = cfg.S3.LocalDir
	return store, nil
}

func (a *App) paymentGateway(cfg *config.Config) error {
	switch strings.ToLower(cfg.Gateway.Provider) {
	case "stripe":
		stripeGateway, err := gateway.NewStripeGateway(gateway.StripeConfig{
			SecretKey:     cfg.Gateway.StripeSecretKey,
			WebhookSecret: cfg.Gateway.StripeWebhookSecret,
			Currency:      cfg.Gateway.Currency,
		}, a.logger)
		if err != nil {
			return fmt.Errorf("failed to initialize stripe gateway: %w", err)
		}
		a.Gateway = stripeGateway
		a.Webhook = stripeGateway
	default:
		a.logger.Warn().Msg("using sandbox payment gateway")
		a.Gateway = gateway.NewSandboxGateway(cfg.Gateway.SandboxApproveAfter, cfg.Gateway.SandboxTicketBaseURL, a.logger)
	}
	return nil
}

// Close releases every client in reverse creation order.
func (a *App) Close() error {
	var err error
	for i := len(a.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, a.closers[i].Close())
	}
	if a.Pool != nil {
		a.Pool.Close()
	}
	return err
}
