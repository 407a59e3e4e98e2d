package scheduler

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
)

// RefundEscalator flags refund requests the seller did not answer in time.
type RefundEscalator interface {
	EscalateOverdue(ctx context.Context) (int, error)
}

// PaymentReconciler re-checks pending payments against the gateway.
type PaymentReconciler interface {
	ReconcilePending(ctx context.Context) (int, error)
}

type refundDeadlineJob struct {
	escalator RefundEscalator
}

// NewRefundDeadlineJob builds the job escalating unanswered refund requests.
func NewRefundDeadlineJob(escalator RefundEscalator) (Job, error) {
	if escalator == nil {
		return nil, errors.New("refund escalator required")
	}
	return &refundDeadlineJob{escalator: escalator}, nil
}

func (j *refundDeadlineJob) Name() string { return "refund-deadline" }

func (j *refundDeadlineJob) Run(ctx context.Context) error {
	count, err := j.escalator.EscalateOverdue(ctx)
	zerolog.Ctx(ctx).Info().Int("escalated", count).Msg("refund deadline sweep complete")
	return err
}

type paymentReconcileJob struct {
	reconciler PaymentReconciler
}

// NewPaymentReconcileJob builds the job reconciling stale pending payments.
func NewPaymentReconcileJob(reconciler PaymentReconciler) (Job, error) {
	if reconciler == nil {
		return nil, errors.New("payment reconciler required")
	}
	return &paymentReconcileJob{reconciler: reconciler}, nil
}

func (j *paymentReconcileJob) Name() string { return "payment-reconcile" }

func (j *paymentReconcileJob) Run(ctx context.Context) error {
	count, err := j.reconciler.ReconcilePending(ctx)
	zerolog.Ctx(ctx).Info().Int("updated", count).Msg("payment reconcile sweep complete")
	return err
}
