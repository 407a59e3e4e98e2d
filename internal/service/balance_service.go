package service

import (
	"context"
	"time"

	"keyvault-glow/internal/events"
	"keyvault-glow/internal/model"
	"keyvault-glow/internal/repository"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// balanceService implements BalanceService.
type balanceService struct {
	ledgerRepo repository.LedgerRepository
	publisher  events.Publisher
	now        func() time.Time
	logger     zerolog.Logger
}

// NewBalanceService creates a new balance service.
func NewBalanceService(ledgerRepo repository.LedgerRepository, publisher events.Publisher, logger zerolog.Logger) BalanceService {
	if publisher == nil {
		publisher = events.Noop{}
	}
	return &balanceService{
		ledgerRepo: ledgerRepo,
		publisher:  publisher,
		now:        utcNow,
		logger:     logger.With().Str("service", "balance").Logger(),
	}
}

func authorizeSeller(actor model.Actor, sellerID uuid.UUID) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	if actor.IsAdmin() || (actor.IsSeller() && actor.UserID == sellerID) {
		return nil
	}
	return model.ErrForbidden
}

// Balance returns the seller's available and pending balance.
func (s *balanceService) Balance(ctx context.Context, actor model.Actor, sellerID uuid.UUID) (*model.SellerBalance, error) {
	if err := authorizeSeller(actor, sellerID); err != nil {
		return nil, err
	}
	return s.ledgerRepo.Balance(ctx, sellerID)
}

// Entries returns the seller's ledger, newest first.
func (s *balanceService) Entries(ctx context.Context, actor model.Actor, sellerID uuid.UUID, limit, offset int) ([]model.LedgerEntry, error) {
	if err := authorizeSeller(actor, sellerID); err != nil {
		return nil, err
	}
	return s.ledgerRepo.Entries(ctx, sellerID, limit, offset)
}

// RequestWithdrawal debits available balance under a row lock so concurrent
// withdrawals cannot overdraw it.
func (s *balanceService) RequestWithdrawal(ctx context.Context, actor model.Actor, sellerID uuid.UUID, req *model.WithdrawalRequest) (*model.SellerBalance, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if !actor.IsSeller() || actor.UserID != sellerID {
		return nil, model.ErrForbidden
	}
	if req == nil {
		return nil, model.NewDomainError(model.ErrCodeValidation, "withdrawal request is required")
	}
	if !req.Amount.IsPositive() {
		return nil, model.NewFieldError("amount", "amount must be greater than zero")
	}
	if err := validatePixKey(req.PixKey, req.PixKeyType); err != nil {
		return nil, err
	}

	now := s.now()
	var balance *model.SellerBalance
	err := inTx(ctx, s.ledgerRepo, s.logger, func(tx pgx.Tx) error {
		current, err := s.ledgerRepo.LockBalance(ctx, tx, sellerID)
		if err != nil {
			return err
		}
		if current.AvailableBalance.LessThan(req.Amount) {
			return model.ErrInsufficientFunds
		}

		entry := model.LedgerEntry{
			ID:        uuid.New(),
			SellerID:  sellerID,
			Kind:      model.LedgerKindWithdrawal,
			Bucket:    model.BucketAvailable,
			Amount:    req.Amount.Neg(),
			CreatedAt: now,
		}
		if err := s.ledgerRepo.Append(ctx, tx, []model.LedgerEntry{entry}); err != nil {
			return err
		}

		current.AvailableBalance = current.AvailableBalance.Sub(req.Amount)
		current.UpdatedAt = now
		balance = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("seller_id", sellerID.String()).
		Str("amount", req.Amount.StringFixed(2)).
		Msg("withdrawal requested")

	publish(ctx, s.publisher, s.logger, events.New(events.WithdrawalRequested, sellerID.String(),
		map[string]any{
			"sellerId":   sellerID,
			"amount":     req.Amount,
			"pixKeyType": req.PixKeyType,
		},
		events.AdminChannel, events.UserChannel(sellerID)))
	return balance, nil
}
