package handler

import (
	"net/http"

	"keyvault-glow/internal/model"
	"keyvault-glow/internal/service"

	"github.com/rs/zerolog"
)

// BalanceHandler handles seller balance and ledger requests.
type BalanceHandler struct {
	service service.BalanceService
	logger  zerolog.Logger
}

// NewBalanceHandler creates a new balance handler.
func NewBalanceHandler(service service.BalanceService, logger zerolog.Logger) *BalanceHandler {
	return &BalanceHandler{
		service: service,
		logger:  logger.With().Str("handler", "balance").Logger(),
	}
}

// Balance handles GET /api/sellers/{id}/balance requests.
func (h *BalanceHandler) Balance(w http.ResponseWriter, r *http.Request) {
	sellerID, err := pathUUID(r, "id")
	if err != nil {
		badRequest(w, err.Error(), h.logger)
		return
	}

	balance, err := h.service.Balance(r.Context(), actorFrom(r), sellerID)
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, balance)
}

// Ledger handles GET /api/sellers/{id}/ledger requests.
func (h *BalanceHandler) Ledger(w http.ResponseWriter, r *http.Request) {
	sellerID, err := pathUUID(r, "id")
	if err != nil {
		badRequest(w, err.Error(), h.logger)
		return
	}
	limit, offset, err := pagination(r)
	if err != nil {
		badRequest(w, err.Error(), h.logger)
		return
	}

	entries, err := h.service.Entries(r.Context(), actorFrom(r), sellerID, limit, offset)
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, entries)
}

// Withdraw handles POST /api/sellers/{id}/withdrawals requests.
func (h *BalanceHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	sellerID, err := pathUUID(r, "id")
	if err != nil {
		badRequest(w, err.Error(), h.logger)
		return
	}

	var req model.WithdrawalRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, err.Error(), h.logger)
		return
	}

	balance, err := h.service.RequestWithdrawal(r.Context(), actorFrom(r), sellerID, &req)
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}

	writeJSON(w, http.StatusCreated, balance)
}
