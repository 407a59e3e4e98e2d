package service

import (
	"context"
	"fmt"
	"html/template"
	"strings"
	"time"

	"keyvault-glow/internal/events"
	"keyvault-glow/internal/lifecycle"
	"keyvault-glow/internal/metrics"
	"keyvault-glow/internal/model"
	"keyvault-glow/internal/notify"
	"keyvault-glow/internal/repository"
	"keyvault-glow/internal/storage"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"go.uber.org/multierr"
)

const escalationBatchSize = 100

// RefundServiceParams wires the refund service.
type RefundServiceParams struct {
	Refunds              repository.RefundRepository
	Orders               repository.OrderRepository
	Ledger               repository.LedgerRepository
	Proofs               *storage.Staging
	Publisher            events.Publisher
	Notifier             notify.Notifier
	Metrics              *metrics.Domain
	AdminEmail           string
	EligibilityWindow    time.Duration
	SellerResponseWindow time.Duration
	Logger               zerolog.Logger
}

// refundService implements RefundService.
type refundService struct {
	refundRepo     repository.RefundRepository
	orderRepo      repository.OrderRepository
	ledgerRepo     repository.LedgerRepository
	proofs         *storage.Staging
	publisher      events.Publisher
	notifier       notify.Notifier
	metrics        *metrics.Domain
	adminEmail     string
	eligibility    time.Duration
	responseWindow time.Duration
	now            func() time.Time
	logger         zerolog.Logger
}

// NewRefundService creates a new refund service.
func NewRefundService(p RefundServiceParams) RefundService {
	eligibility := p.EligibilityWindow
	if eligibility <= 0 {
		eligibility = lifecycle.DefaultRefundWindow
	}
	responseWindow := p.SellerResponseWindow
	if responseWindow <= 0 {
		responseWindow = lifecycle.DefaultSellerResponseWindow
	}
	publisher := p.Publisher
	if publisher == nil {
		publisher = events.Noop{}
	}
	notifier := p.Notifier
	if notifier == nil {
		notifier = notify.NewLogNotifier(p.Logger)
	}
	return &refundService{
		refundRepo:     p.Refunds,
		orderRepo:      p.Orders,
		ledgerRepo:     p.Ledger,
		proofs:         p.Proofs,
		publisher:      publisher,
		notifier:       notifier,
		metrics:        p.Metrics,
		adminEmail:     p.AdminEmail,
		eligibility:    eligibility,
		responseWindow: responseWindow,
		now:            utcNow,
		logger:         p.Logger.With().Str("service", "refund").Logger(),
	}
}

// Submit validates the request, stores the proofs and opens the refund
// together with the order's move to refund_requested.
func (s *refundService) Submit(ctx context.Context, actor model.Actor, in model.SubmitRefundInput) (*model.RefundView, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	proofs, err := s.validateSubmission(&in)
	if err != nil {
		return nil, err
	}

	order, err := s.loadOrder(ctx, in.OrderID)
	if err != nil {
		return nil, err
	}
	if order.CustomerID != actor.UserID {
		return nil, model.ErrForbidden
	}

	now := s.now()
	if !lifecycle.RefundEligible(order, now, s.eligibility) {
		s.logger.Info().
			Str("order_id", order.ID.String()).
			Str("status", string(order.PaymentStatus)).
			Msg("refund refused, order not eligible")
		return nil, model.ErrRefundNotEligible
	}
	nextOrderStatus, err := lifecycle.NextOrderStatus(order.PaymentStatus, lifecycle.EventRefundOpened)
	if err != nil {
		return nil, err
	}

	open, err := s.refundRepo.GetOpenByOrder(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to check open refund: %w", err)
	}
	if open != nil {
		return nil, model.ErrRefundAlreadyOpen
	}

	refund := &model.RefundRequest{
		ID:          uuid.New(),
		OrderID:     order.ID,
		CustomerID:  actor.UserID,
		SellerID:    order.SellerID,
		Reason:      in.Reason,
		Description: in.Description,
		PixKey:      strings.TrimSpace(in.PixKey),
		PixKeyType:  in.PixKeyType,
		OrderAmount: order.TransactionAmount,
		Status:      model.RefundStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	stored, err := s.proofs.UploadAll(ctx, refund.ID, proofs)
	if err != nil {
		s.logger.Warn().Err(err).Str("order_id", order.ID.String()).Msg("refund proof upload failed")
		return nil, err
	}
	refund.ProofURLs = storage.URLs(stored)

	err = inTx(ctx, s.refundRepo, s.logger, func(tx pgx.Tx) error {
		if err := s.refundRepo.Create(ctx, tx, refund); err != nil {
			return err
		}
		moved, err := s.orderRepo.UpdateStatus(ctx, tx, order.ID, order.PaymentStatus, nextOrderStatus)
		if err != nil {
			return err
		}
		if !moved {
			return model.ErrConcurrentUpdate
		}
		return nil
	})
	if err != nil {
		if rbErr := s.proofs.Rollback(context.WithoutCancel(ctx), stored); rbErr != nil {
			s.logger.Error().Err(rbErr).Str("refund_id", refund.ID.String()).Msg("failed to remove proofs of aborted refund")
		}
		return nil, err
	}

	s.metrics.RefundSubmitted()
	s.logger.Info().
		Str("refund_id", refund.ID.String()).
		Str("order_id", order.ID.String()).
		Str("reason", string(refund.Reason)).
		Int("proofs", len(refund.ProofURLs)).
		Msg("refund request submitted")

	order.PaymentStatus = nextOrderStatus
	view := s.view(refund)
	publish(ctx, s.publisher, s.logger, events.New(events.RefundSubmitted, refund.ID.String(), view, refundChannels(order)...))
	publish(ctx, s.publisher, s.logger, events.New(events.OrderStatusChanged, order.ID.String(), statusPayload(order), orderChannels(order)...))
	s.sendToAdmin(ctx, "New refund request", notify.RefundSubmittedTemplate, s.mailData(refund, order))
	return &view, nil
}

// validateSubmission rejects malformed input before anything is uploaded or written.
func (s *refundService) validateSubmission(in *model.SubmitRefundInput) ([]model.ProofFile, error) {
	if in.Reason == "" || !in.Reason.IsValid() {
		return nil, model.NewFieldError("reason", "refund reason is invalid")
	}
	if err := validatePixKey(in.PixKey, in.PixKeyType); err != nil {
		return nil, err
	}
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	if len(in.Proofs) < model.MinRefundProofs || len(in.Proofs) > model.MaxRefundProofs {
		return nil, model.NewFieldError("proofs",
			fmt.Sprintf("between %d and %d proof files are required", model.MinRefundProofs, model.MaxRefundProofs))
	}

	proofs := make([]model.ProofFile, len(in.Proofs))
	for i, file := range in.Proofs {
		detected, err := storage.DetectProof(file)
		if err != nil {
			return nil, err
		}
		proofs[i] = detected
	}
	return proofs, nil
}

// SellerRespond records the seller's single reply while the request is pending.
func (s *refundService) SellerRespond(ctx context.Context, actor model.Actor, id uuid.UUID, req model.SellerResponseRequest) (*model.RefundView, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if err := validateStruct(&req); err != nil {
		return nil, err
	}

	refund, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	order, err := s.loadOrder(ctx, refund.OrderID)
	if err != nil {
		return nil, err
	}
	if !actor.IsSeller() || !isRefundSeller(actor, refund, order) {
		return nil, model.ErrForbidden
	}
	if refund.SellerResponse != nil {
		return nil, model.ErrSellerAlreadyReplied
	}
	if refund.Status != model.RefundStatusPending {
		return nil, model.NewDomainError(model.ErrCodeStateConflict, "Seller responses are only accepted while the request is pending")
	}

	now := s.now()
	late := lifecycle.SellerResponseExpired(refund, now, s.responseWindow)
	response := strings.TrimSpace(req.Response)

	recorded, err := s.refundRepo.SetSellerResponse(ctx, refund.ID, response, now)
	if err != nil {
		return nil, err
	}
	if !recorded {
		return nil, model.ErrSellerAlreadyReplied
	}

	refund.SellerResponse = &response
	refund.SellerRespondedAt = &now
	refund.UpdatedAt = now

	s.logger.Info().
		Str("refund_id", refund.ID.String()).
		Str("seller_id", actor.UserID.String()).
		Bool("late", late).
		Msg("seller responded to refund request")

	view := s.view(refund)
	publish(ctx, s.publisher, s.logger, events.New(events.RefundSellerReplied, refund.ID.String(),
		map[string]any{"refund": view, "late": late}, refundChannels(order)...))
	return &view, nil
}

// Decide applies an admin decision with a compare-and-set on the refund
// status, adjusting the order and the sellers' balances in the same transaction.
func (s *refundService) Decide(ctx context.Context, actor model.Actor, id uuid.UUID, req model.RefundDecisionRequest) (*model.RefundView, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if !actor.IsAdmin() {
		return nil, model.ErrForbidden
	}
	if err := validateStruct(&req); err != nil {
		return nil, err
	}

	refund, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	next, err := lifecycle.NextRefundStatus(refund.Status, req.Status)
	if err != nil {
		return nil, err
	}
	order, err := s.loadOrder(ctx, refund.OrderID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	var resolvedAt *time.Time
	var resolvedBy *uuid.UUID
	if next.IsTerminal() {
		resolvedAt = &now
		resolvedBy = &actor.UserID
	}

	var orderNext model.OrderStatus
	switch next {
	case model.RefundStatusApproved:
		orderNext, err = lifecycle.NextOrderStatus(order.PaymentStatus, lifecycle.EventRefundApproved)
	case model.RefundStatusRejected:
		orderNext, err = lifecycle.RestoreAfterRefundRejection(order)
	}
	if err != nil {
		return nil, err
	}

	err = inTx(ctx, s.refundRepo, s.logger, func(tx pgx.Tx) error {
		updated, err := s.refundRepo.UpdateDecision(ctx, tx, refund.ID, refund.Status, next, req.AdminNotes, resolvedAt, resolvedBy)
		if err != nil {
			return err
		}
		if !updated {
			return model.ErrConcurrentUpdate
		}
		if orderNext == "" {
			return nil
		}

		moved, err := s.orderRepo.UpdateStatus(ctx, tx, order.ID, order.PaymentStatus, orderNext)
		if err != nil {
			return err
		}
		if !moved {
			return model.ErrConcurrentUpdate
		}

		if next == model.RefundStatusApproved {
			return s.debitSellers(ctx, tx, order, refund.ID, now)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	previous := refund.Status
	refund.Status = next
	refund.ResolvedAt = resolvedAt
	refund.ResolvedBy = resolvedBy
	refund.UpdatedAt = now
	if req.AdminNotes != nil {
		refund.AdminNotes = req.AdminNotes
	}
	if orderNext != "" {
		order.PaymentStatus = orderNext
	}

	s.metrics.RefundDecision(string(next))
	s.logger.Info().
		Str("refund_id", refund.ID.String()).
		Str("admin_id", actor.UserID.String()).
		Str("from", string(previous)).
		Str("to", string(next)).
		Msg("refund decision applied")

	view := s.view(refund)
	publish(ctx, s.publisher, s.logger, events.New(events.RefundDecided, refund.ID.String(), view, refundChannels(order)...))
	if orderNext != "" {
		publish(ctx, s.publisher, s.logger, events.New(events.OrderStatusChanged, order.ID.String(), statusPayload(order), orderChannels(order)...))
	}
	s.notifyDecision(ctx, refund, order)
	return &view, nil
}

// debitSellers reverses what each seller was credited for the order, from
// available balance once the sale settled on delivery, from pending before.
func (s *refundService) debitSellers(ctx context.Context, tx pgx.Tx, order *model.Order, refundID uuid.UUID, at time.Time) error {
	sales, err := s.ledgerRepo.SumByOrder(ctx, tx, order.ID, model.LedgerKindSale)
	if err != nil {
		return err
	}

	bucket := model.BucketPending
	if order.DeliveredAt != nil {
		bucket = model.BucketAvailable
	}

	entries := make([]model.LedgerEntry, 0, len(sales))
	for sellerID, amount := range sales {
		if !amount.IsPositive() {
			continue
		}
		orderID, rid := order.ID, refundID
		entries = append(entries, model.LedgerEntry{
			ID:        uuid.New(),
			SellerID:  sellerID,
			OrderID:   &orderID,
			RefundID:  &rid,
			Kind:      model.LedgerKindRefund,
			Bucket:    bucket,
			Amount:    amount.Neg(),
			CreatedAt: at,
		})
	}
	return s.ledgerRepo.Append(ctx, tx, entries)
}

func (s *refundService) notifyDecision(ctx context.Context, refund *model.RefundRequest, order *model.Order) {
	switch refund.Status {
	case model.RefundStatusMoreInfoRequested:
		s.send(ctx, []string{order.CustomerEmail}, "More information needed for your refund", notify.RefundMoreInfoTemplate, s.mailData(refund, order))
	case model.RefundStatusApproved, model.RefundStatusRejected:
		s.send(ctx, []string{order.CustomerEmail}, "Your refund request was "+string(refund.Status), notify.RefundDecidedTemplate, s.mailData(refund, order))
	}
}

// Get returns a refund visible to the actor.
func (s *refundService) Get(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.RefundView, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	refund, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeParticipant(ctx, actor, refund); err != nil {
		return nil, err
	}
	view := s.view(refund)
	return &view, nil
}

// List returns refunds scoped to the actor's role.
func (s *refundService) List(ctx context.Context, actor model.Actor, filter model.RefundFilter) ([]model.RefundView, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	switch actor.Role {
	case model.RoleCustomer:
		filter.CustomerID = &actor.UserID
		filter.SellerID = nil
	case model.RoleSeller:
		filter.SellerID = &actor.UserID
		filter.CustomerID = nil
	}

	refunds, err := s.refundRepo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	views := make([]model.RefundView, len(refunds))
	for i := range refunds {
		views[i] = s.view(&refunds[i])
	}
	return views, nil
}

// AddMessage appends to the refund's discussion thread.
func (s *refundService) AddMessage(ctx context.Context, actor model.Actor, id uuid.UUID, req model.RefundMessageRequest) (*model.RefundMessage, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if err := validateStruct(&req); err != nil {
		return nil, err
	}
	refund, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	order, err := s.loadOrder(ctx, refund.OrderID)
	if err != nil {
		return nil, err
	}
	if !canAccessRefund(actor, refund, order) {
		return nil, model.ErrForbidden
	}

	msg := &model.RefundMessage{
		ID:         uuid.New(),
		RefundID:   refund.ID,
		SenderID:   actor.UserID,
		SenderRole: actor.Role,
		Body:       strings.TrimSpace(req.Body),
		CreatedAt:  s.now(),
	}
	if err := s.refundRepo.CreateMessage(ctx, msg); err != nil {
		return nil, err
	}

	publish(ctx, s.publisher, s.logger, events.New(events.RefundMessagePosted, refund.ID.String(), msg, refundChannels(order)...))
	return msg, nil
}

// ListMessages returns the refund's discussion thread.
func (s *refundService) ListMessages(ctx context.Context, actor model.Actor, id uuid.UUID) ([]model.RefundMessage, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	refund, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeParticipant(ctx, actor, refund); err != nil {
		return nil, err
	}
	return s.refundRepo.ListMessages(ctx, refund.ID)
}

// EscalateOverdue flags unanswered pending requests for the admins. The
// request status is left unchanged.
func (s *refundService) EscalateOverdue(ctx context.Context) (int, error) {
	now := s.now()
	overdue, err := s.refundRepo.ListUnansweredBefore(ctx, now.Add(-s.responseWindow), escalationBatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to list overdue refunds: %w", err)
	}

	escalated := 0
	var errs error
	for i := range overdue {
		refund := &overdue[i]
		marked, err := s.refundRepo.MarkEscalated(ctx, refund.ID, now)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if !marked {
			continue
		}
		escalated++
		refund.EscalatedAt = &now

		s.logger.Warn().
			Str("refund_id", refund.ID.String()).
			Time("created_at", refund.CreatedAt).
			Msg("seller did not respond in time, refund escalated")

		channels := []string{events.AdminChannel, events.UserChannel(refund.CustomerID)}
		if refund.SellerID != nil {
			channels = append(channels, events.UserChannel(*refund.SellerID))
		}
		publish(ctx, s.publisher, s.logger, events.New(events.RefundEscalated, refund.ID.String(), s.view(refund), channels...))
		s.sendToAdmin(ctx, "Refund escalated: seller did not respond", notify.RefundEscalatedTemplate, s.mailData(refund, nil))
	}
	return escalated, errs
}

func (s *refundService) load(ctx context.Context, id uuid.UUID) (*model.RefundRequest, error) {
	refund, err := s.refundRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get refund request: %w", err)
	}
	if refund == nil {
		return nil, model.ErrRefundNotFound
	}
	return refund, nil
}

func (s *refundService) loadOrder(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	order, err := s.orderRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	if order == nil {
		return nil, model.ErrOrderNotFound
	}
	return order, nil
}

// authorizeParticipant loads the order only when the refund row alone cannot
// decide access.
func (s *refundService) authorizeParticipant(ctx context.Context, actor model.Actor, refund *model.RefundRequest) error {
	if actor.IsAdmin() || refund.CustomerID == actor.UserID {
		return nil
	}
	if !actor.IsSeller() {
		return model.ErrForbidden
	}
	if refund.SellerID != nil && *refund.SellerID == actor.UserID {
		return nil
	}
	order, err := s.loadOrder(ctx, refund.OrderID)
	if err != nil {
		return err
	}
	if !order.InvolvesSeller(actor.UserID) {
		return model.ErrForbidden
	}
	return nil
}

func canAccessRefund(actor model.Actor, refund *model.RefundRequest, order *model.Order) bool {
	if actor.IsAdmin() || refund.CustomerID == actor.UserID {
		return true
	}
	return actor.IsSeller() && isRefundSeller(actor, refund, order)
}

func isRefundSeller(actor model.Actor, refund *model.RefundRequest, order *model.Order) bool {
	if refund.SellerID != nil && *refund.SellerID == actor.UserID {
		return true
	}
	return order.InvolvesSeller(actor.UserID)
}

func refundChannels(order *model.Order) []string {
	return append(orderChannels(order), events.AdminChannel)
}

func (s *refundService) view(refund *model.RefundRequest) model.RefundView {
	return lifecycle.View(refund, s.now(), s.responseWindow)
}

func (s *refundService) mailData(refund *model.RefundRequest, order *model.Order) notify.RefundData {
	data := notify.RefundData{
		RefundID: refund.ID,
		OrderID:  refund.OrderID,
		Amount:   refund.OrderAmount,
		Status:   string(refund.Status),
		Deadline: lifecycle.SellerResponseDeadline(refund.CreatedAt, s.responseWindow),
	}
	if refund.AdminNotes != nil {
		data.AdminNotes = *refund.AdminNotes
	}
	if order != nil {
		data.ProductName = order.ProductName
	}
	return data
}

func (s *refundService) sendToAdmin(ctx context.Context, subject string, tpl *template.Template, data notify.RefundData) {
	if s.adminEmail == "" {
		return
	}
	s.send(ctx, []string{s.adminEmail}, subject, tpl, data)
}

// send delivers an email. Mail failures are logged and never fail the operation.
func (s *refundService) send(ctx context.Context, to []string, subject string, tpl *template.Template, data notify.RefundData) {
	recipients := to[:0:0]
	for _, addr := range to {
		if addr != "" {
			recipients = append(recipients, addr)
		}
	}
	if len(recipients) == 0 {
		return
	}
	err := s.notifier.Send(ctx, notify.Message{To: recipients, Subject: subject, Template: tpl, Data: data})
	if err != nil {
		s.logger.Warn().Err(err).Str("refund_id", data.RefundID.String()).Str("subject", subject).Msg("failed to send refund email")
	}
}
