// Package metrics holds the prometheus collectors of the api and worker.
// Every recorder is nil-safe so components can run without metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "keyvault"

// Domain records order, payment, refund and coupon activity.
type Domain struct {
	ordersCreated      *prometheus.CounterVec
	paymentTransitions *prometheus.CounterVec
	refundDecisions    *prometheus.CounterVec
	refundsSubmitted   prometheus.Counter
	couponRedemptions  *prometheus.CounterVec
	webhookEvents      *prometheus.CounterVec
	orphanedPayments   *prometheus.CounterVec
}

// NewDomain registers the domain collectors on reg.
func NewDomain(reg prometheus.Registerer) *Domain {
	if reg == nil {
		return &Domain{}
	}
	d := &Domain{
		ordersCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_created_total",
			Help:      "Orders persisted after a successful gateway charge.",
		}, []string{"method", "status"}),
		paymentTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_transitions_total",
			Help:      "Order status changes driven by the payment gateway.",
		}, []string{"source", "status"}),
		refundDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refund_decisions_total",
			Help:      "Admin decisions applied to refund requests.",
		}, []string{"status"}),
		refundsSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refunds_submitted_total",
			Help:      "Refund requests opened by customers.",
		}),
		couponRedemptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "coupon_redemptions_total",
			Help:      "Coupons redeemed at checkout.",
		}, []string{"scope"}),
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_events_total",
			Help:      "Payment webhook deliveries by outcome.",
		}, []string{"result"}),
		orphanedPayments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orphaned_payments_total",
			Help:      "Gateway charges whose order could not be persisted, by compensation outcome.",
		}, []string{"result"}),
	}
	reg.MustRegister(d.ordersCreated, d.paymentTransitions, d.refundDecisions,
		d.refundsSubmitted, d.couponRedemptions, d.webhookEvents, d.orphanedPayments)
	return d
}

func (d *Domain) OrderCreated(method, status string) {
	if d == nil || d.ordersCreated == nil {
		return
	}
	d.ordersCreated.WithLabelValues(normalizeLabel(method), normalizeLabel(status)).Inc()
}

func (d *Domain) PaymentTransition(source, status string) {
	if d == nil || d.paymentTransitions == nil {
		return
	}
	d.paymentTransitions.WithLabelValues(normalizeLabel(source), normalizeLabel(status)).Inc()
}

func (d *Domain) RefundSubmitted() {
	if d == nil || d.refundsSubmitted == nil {
		return
	}
	d.refundsSubmitted.Inc()
}

func (d *Domain) RefundDecision(status string) {
	if d == nil || d.refundDecisions == nil {
		return
	}
	d.refundDecisions.WithLabelValues(normalizeLabel(status)).Inc()
}

func (d *Domain) CouponRedeemed(scope string) {
	if d == nil || d.couponRedemptions == nil {
		return
	}
	d.couponRedemptions.WithLabelValues(normalizeLabel(scope)).Inc()
}

func (d *Domain) WebhookEvent(result string) {
	if d == nil || d.webhookEvents == nil {
		return
	}
	d.webhookEvents.WithLabelValues(normalizeLabel(result)).Inc()
}

// OrphanedPayment counts a charge left without an order. result is
// "cancelled" or "cancel_failed"; the latter needs manual follow-up.
func (d *Domain) OrphanedPayment(result string) {
	if d == nil || d.orphanedPayments == nil {
		return
	}
	d.orphanedPayments.WithLabelValues(normalizeLabel(result)).Inc()
}

// HTTP records request counts and latencies per route pattern.
type HTTP struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewHTTP registers the HTTP collectors on reg.
func NewHTTP(reg prometheus.Registerer) *HTTP {
	if reg == nil {
		return &HTTP{}
	}
	h := &HTTP{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"method", "route", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	reg.MustRegister(h.requests, h.duration)
	return h
}

// Observe records one finished request.
func (h *HTTP) Observe(method, route string, status int, duration time.Duration) {
	if h == nil || h.requests == nil {
		return
	}
	route = normalizeLabel(route)
	h.requests.WithLabelValues(method, route, statusLabel(status)).Inc()
	h.duration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// Jobs records scheduled job runs.
type Jobs struct {
	duration *prometheus.HistogramVec
	success  *prometheus.CounterVec
	failure  *prometheus.CounterVec
}

// NewJobs registers the job collectors on reg.
func NewJobs(reg prometheus.Registerer) *Jobs {
	if reg == nil {
		return &Jobs{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "job_duration_seconds",
		Help:      "Duration of scheduled jobs in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"job"})
	success := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "job_success_total",
		Help:      "Successful scheduled job executions.",
	}, []string{"job"})
	failure := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "job_failure_total",
		Help:      "Failed scheduled job executions.",
	}, []string{"job"})
	reg.MustRegister(duration, success, failure)
	return &Jobs{duration: duration, success: success, failure: failure}
}

func (j *Jobs) ObserveDuration(job string, duration time.Duration) {
	if j == nil || j.duration == nil {
		return
	}
	j.duration.WithLabelValues(normalizeLabel(job)).Observe(duration.Seconds())
}

func (j *Jobs) IncSuccess(job string) {
	if j == nil || j.success == nil {
		return
	}
	j.success.WithLabelValues(normalizeLabel(job)).Inc()
}

func (j *Jobs) IncFailure(job string) {
	if j == nil || j.failure == nil {
		return
	}
	j.failure.WithLabelValues(normalizeLabel(job)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}

func statusLabel(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
