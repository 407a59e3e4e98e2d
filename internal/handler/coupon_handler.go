package handler

import (
	"net/http"

	"keyvault-glow/internal/model"
	"keyvault-glow/internal/service"

	"github.com/rs/zerolog"
)

// CouponHandler handles coupon preview and administration requests.
type CouponHandler struct {
	service service.CouponService
	logger  zerolog.Logger
}

// NewCouponHandler creates a new coupon handler.
func NewCouponHandler(service service.CouponService, logger zerolog.Logger) *CouponHandler {
	return &CouponHandler{
		service: service,
		logger:  logger.With().Str("handler", "coupon").Logger(),
	}
}

// Resolve handles POST /api/coupons/resolve requests. An unusable code is
// still a 200 with the field message set.
func (h *CouponHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	var req model.CouponResolveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, err.Error(), h.logger)
		return
	}

	resp, err := h.service.Resolve(r.Context(), actorFrom(r), &req)
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// Create handles POST /api/coupons requests. Admins create global coupons,
// sellers create coupons scoped to their own products.
func (h *CouponHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req model.CreateCouponRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, err.Error(), h.logger)
		return
	}

	actor := actorFrom(r)
	var (
		created interface{}
		err     error
	)
	switch actor.Role {
	case model.RoleAdmin:
		created, err = h.service.CreateGlobal(r.Context(), actor, &req)
	case model.RoleSeller:
		created, err = h.service.CreateSeller(r.Context(), actor, &req)
	default:
		err = model.ErrForbidden
	}
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

// SetActive handles PATCH /api/coupons/{id}/active requests.
func (h *CouponHandler) SetActive(w http.ResponseWriter, r *http.Request) {
	couponID, err := pathUUID(r, "id")
	if err != nil {
		badRequest(w, err.Error(), h.logger)
		return
	}

	var req model.SetCouponActiveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, err.Error(), h.logger)
		return
	}

	if err := h.service.SetActive(r.Context(), actorFrom(r), couponID, req.Active); err != nil {
		writeServiceError(w, err, h.logger)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
