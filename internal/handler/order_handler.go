package handler

import (
	"net/http"

	"keyvault-glow/internal/model"
	"keyvault-glow/internal/service"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// PaymentWatcher follows a pending payment in the background.
type PaymentWatcher interface {
	Start(orderID uuid.UUID)
}

// OrderHandler handles order-related HTTP requests.
type OrderHandler struct {
	service service.OrderService
	watcher PaymentWatcher
	logger  zerolog.Logger
}

// NewOrderHandler creates a new order handler. watcher may be nil.
func NewOrderHandler(service service.OrderService, watcher PaymentWatcher, logger zerolog.Logger) *OrderHandler {
	return &OrderHandler{
		service: service,
		watcher: watcher,
		logger:  logger.With().Str("handler", "order").Logger(),
	}
}

// Create handles POST /api/orders requests.
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req model.CheckoutRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, err.Error(), h.logger)
		return
	}

	order, err := h.service.CreateOrder(r.Context(), actorFrom(r), &req)
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}

	if order.PaymentStatus == model.OrderStatusPending && h.watcher != nil {
		h.watcher.Start(order.ID)
	}

	writeJSON(w, http.StatusCreated, order)
}

// GetByID handles GET /api/orders/{id} requests.
func (h *OrderHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	orderID, err := pathUUID(r, "id")
	if err != nil {
		badRequest(w, err.Error(), h.logger)
		return
	}

	order, err := h.service.GetOrder(r.Context(), actorFrom(r), orderID)
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, order)
}

// PaymentStatus handles GET /api/orders/{id}/payment-status requests.
func (h *OrderHandler) PaymentStatus(w http.ResponseWriter, r *http.Request) {
	orderID, err := pathUUID(r, "id")
	if err != nil {
		badRequest(w, err.Error(), h.logger)
		return
	}

	status, err := h.service.CheckPaymentStatus(r.Context(), actorFrom(r), orderID)
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, status)
}

// Deliver handles POST /api/orders/{id}/deliver requests.
func (h *OrderHandler) Deliver(w http.ResponseWriter, r *http.Request) {
	orderID, err := pathUUID(r, "id")
	if err != nil {
		badRequest(w, err.Error(), h.logger)
		return
	}

	order, err := h.service.MarkDelivered(r.Context(), actorFrom(r), orderID)
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, order)
}
