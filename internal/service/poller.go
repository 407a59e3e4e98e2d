package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"keyvault-glow/internal/gateway"
	"keyvault-glow/internal/model"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	defaultPollInterval = 5 * time.Second
	defaultPollTimeout  = 30 * time.Minute
)

// StatusRefresher runs one payment status check.
type StatusRefresher interface {
	RefreshPaymentStatus(ctx context.Context, id uuid.UUID) (*model.PaymentStatusResponse, error)
}

// PaymentPoller drives pending orders to a settled status by polling the
// gateway on a fixed interval. Polls of one order never overlap.
type PaymentPoller struct {
	refresher StatusRefresher
	interval  time.Duration
	timeout   time.Duration
	logger    zerolog.Logger

	root     context.Context
	mu       sync.Mutex
	watching map[uuid.UUID]struct{}
	wg       sync.WaitGroup
}

// NewPaymentPoller creates a poller. Background watches started with Start
// stop when root is cancelled.
func NewPaymentPoller(root context.Context, refresher StatusRefresher, interval, timeout time.Duration, logger zerolog.Logger) *PaymentPoller {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	if timeout <= 0 {
		timeout = defaultPollTimeout
	}
	return &PaymentPoller{
		refresher: refresher,
		interval:  interval,
		timeout:   timeout,
		logger:    logger.With().Str("component", "payment_poller").Logger(),
		root:      root,
		watching:  make(map[uuid.UUID]struct{}),
	}
}

// Watch polls until the order's payment settles, ctx is cancelled or the
// poll timeout elapses. It returns the last observed status.
func (p *PaymentPoller) Watch(ctx context.Context, orderID uuid.UUID) (*model.PaymentStatusResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	timer := time.NewTimer(0)
	defer timer.Stop()

	var last *model.PaymentStatusResponse
	for {
		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case <-timer.C:
		}

		resp, err := p.refresher.RefreshPaymentStatus(ctx, orderID)
		switch {
		case err != nil:
			if !retryable(err) {
				return last, err
			}
			p.logger.Warn().Err(err).Str("order_id", orderID.String()).Msg("payment status check failed, retrying")
		case resp.Settled:
			return resp, nil
		default:
			last = resp
		}

		timer.Reset(p.interval)
	}
}

// retryable reports whether a failed check is worth another poll.
func retryable(err error) bool {
	if errors.Is(err, gateway.ErrUnknownPayment) {
		return false
	}
	if _, ok := model.AsDomainError(err); ok {
		return model.HasCode(err, model.ErrCodeGatewayUnavailable)
	}
	return true
}

// Start watches an order in the background. An order already being watched
// is not watched twice.
func (p *PaymentPoller) Start(orderID uuid.UUID) {
	p.mu.Lock()
	if _, ok := p.watching[orderID]; ok {
		p.mu.Unlock()
		return
	}
	p.watching[orderID] = struct{}{}
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer func() {
			p.mu.Lock()
			delete(p.watching, orderID)
			p.mu.Unlock()
		}()

		resp, err := p.Watch(p.root, orderID)
		if err != nil {
			p.logger.Info().Err(err).Str("order_id", orderID.String()).Msg("stopped watching payment")
			return
		}
		p.logger.Info().Str("order_id", orderID.String()).Str("status", string(resp.Status)).Msg("payment settled")
	}()
}

// Wait blocks until every background watch has returned.
func (p *PaymentPoller) Wait() {
	p.wg.Wait()
}
