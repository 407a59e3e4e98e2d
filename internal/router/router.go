package router

import (
	"net/http"

	"keyvault-glow/internal/config"
	"keyvault-glow/internal/handler"
	"keyvault-glow/internal/metrics"
	"keyvault-glow/internal/middleware"
	"keyvault-glow/internal/model"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Params holds everything the router mounts. Webhook may be nil when the
// gateway does not push notifications; ProofDir is set when evidence files
// are kept on local disk.
type Params struct {
	Config   *config.Config
	Logger   zerolog.Logger
	Gatherer prometheus.Gatherer
	HTTP     *metrics.HTTP

	Health   *handler.HealthHandler
	Orders   *handler.OrderHandler
	Refunds  *handler.RefundHandler
	Coupons  *handler.CouponHandler
	Balances *handler.BalanceHandler
	Webhook  *handler.WebhookHandler
	Realtime *handler.RealtimeHandler

	ProofDir string
}

// New creates the HTTP router with all routes and middleware configured.
func New(p Params) http.Handler {
	r := chi.NewRouter()

	// Recovery -> Logging -> Metrics -> CORS
	r.Use(
		middleware.Recovery(p.Logger),
		middleware.Logging(p.Logger),
		middleware.Metrics(p.HTTP),
		middleware.CORS(p.Config.Server.AllowedOrigins),
	)

	r.Get("/health", p.Health.Health)
	if p.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(p.Gatherer, promhttp.HandlerOpts{}))
	}
	if p.ProofDir != "" {
		r.Handle("/files/*", http.StripPrefix("/files/", http.FileServer(http.Dir(p.ProofDir))))
	}

	if p.Webhook != nil {
		r.Post("/api/webhooks/payments", p.Webhook.Payment)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Authenticate(p.Config.Auth, p.Logger))

		r.Route("/coupons", func(r chi.Router) {
			r.With(middleware.RequireRole(model.RoleCustomer)).Post("/resolve", p.Coupons.Resolve)
			r.With(middleware.RequireRole(model.RoleAdmin, model.RoleSeller)).Post("/", p.Coupons.Create)
			r.With(middleware.RequireRole(model.RoleAdmin, model.RoleSeller)).Patch("/{id}/active", p.Coupons.SetActive)
		})

		r.Route("/orders", func(r chi.Router) {
			r.With(middleware.RequireRole(model.RoleCustomer)).Post("/", p.Orders.Create)
			r.Get("/{id}", p.Orders.GetByID)
			r.Get("/{id}/payment-status", p.Orders.PaymentStatus)
			r.With(middleware.RequireRole(model.RoleSeller, model.RoleAdmin)).Post("/{id}/deliver", p.Orders.Deliver)
		})

		r.Route("/refunds", func(r chi.Router) {
			r.With(middleware.RequireRole(model.RoleCustomer)).Post("/", p.Refunds.Submit)
			r.Get("/", p.Refunds.List)
			r.Get("/{id}", p.Refunds.GetByID)
			r.With(middleware.RequireRole(model.RoleSeller)).Post("/{id}/seller-response", p.Refunds.SellerRespond)
			r.With(middleware.RequireRole(model.RoleAdmin)).Post("/{id}/decision", p.Refunds.Decide)
			r.Get("/{id}/messages", p.Refunds.ListMessages)
			r.Post("/{id}/messages", p.Refunds.AddMessage)
		})

		r.Route("/sellers/{id}", func(r chi.Router) {
			r.Use(middleware.RequireRole(model.RoleSeller, model.RoleAdmin))
			r.Get("/balance", p.Balances.Balance)
			r.Get("/ledger", p.Balances.Ledger)
			r.With(middleware.RequireRole(model.RoleSeller)).Post("/withdrawals", p.Balances.Withdraw)
		})

		r.Get("/realtime", p.Realtime.Connect)
	})

	return r
}
