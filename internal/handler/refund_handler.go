package handler

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"keyvault-glow/internal/model"
	"keyvault-glow/internal/service"
	"keyvault-glow/internal/storage"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	multipartMemory = 8 << 20
	maxRefundBody   = model.MaxRefundProofs*storage.MaxProofSize + 1<<20
)

// RefundHandler handles refund-related HTTP requests.
type RefundHandler struct {
	service service.RefundService
	logger  zerolog.Logger
}

// NewRefundHandler creates a new refund handler.
func NewRefundHandler(service service.RefundService, logger zerolog.Logger) *RefundHandler {
	return &RefundHandler{
		service: service,
		logger:  logger.With().Str("handler", "refund").Logger(),
	}
}

// Submit handles multipart POST /api/refunds requests. Evidence files are
// sent in the "proofs" field.
func (h *RefundHandler) Submit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRefundBody)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		badRequest(w, "invalid multipart form", h.logger)
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	orderID, err := uuid.Parse(strings.TrimSpace(r.FormValue("orderId")))
	if err != nil {
		writeError(w, http.StatusBadRequest, model.ErrorResponse{
			Error:   model.ErrCodeValidation,
			Message: "invalid order id",
			Field:   "orderId",
		}, h.logger)
		return
	}

	in := model.SubmitRefundInput{
		OrderID:    orderID,
		Reason:     model.RefundReason(strings.TrimSpace(r.FormValue("reason"))),
		PixKey:     strings.TrimSpace(r.FormValue("pixKey")),
		PixKeyType: model.PixKeyType(strings.TrimSpace(r.FormValue("pixKeyType"))),
	}
	if description := strings.TrimSpace(r.FormValue("description")); description != "" {
		in.Description = &description
	}

	in.Proofs, err = readProofs(r.MultipartForm.File["proofs"])
	if err != nil {
		badRequest(w, err.Error(), h.logger)
		return
	}

	refund, err := h.service.Submit(r.Context(), actorFrom(r), in)
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}

	writeJSON(w, http.StatusCreated, refund)
}

func readProofs(headers []*multipart.FileHeader) ([]model.ProofFile, error) {
	proofs := make([]model.ProofFile, 0, len(headers))
	for _, header := range headers {
		file, err := header.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to read %s", header.Filename)
		}
		data, err := io.ReadAll(io.LimitReader(file, storage.MaxProofSize+1))
		file.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read %s", header.Filename)
		}
		proofs = append(proofs, model.ProofFile{
			Name:        header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Data:        data,
		})
	}
	return proofs, nil
}

// List handles GET /api/refunds requests. Results are scoped to the caller.
func (h *RefundHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := pagination(r)
	if err != nil {
		badRequest(w, err.Error(), h.logger)
		return
	}

	filter := model.RefundFilter{Limit: limit, Offset: offset}
	if raw := r.URL.Query().Get("status"); raw != "" {
		status, err := model.ParseRefundStatus(raw)
		if err != nil {
			badRequest(w, err.Error(), h.logger)
			return
		}
		filter.Status = &status
	}

	refunds, err := h.service.List(r.Context(), actorFrom(r), filter)
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, refunds)
}

// GetByID handles GET /api/refunds/{id} requests.
func (h *RefundHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	refundID, err := pathUUID(r, "id")
	if err != nil {
		badRequest(w, err.Error(), h.logger)
		return
	}

	refund, err := h.service.Get(r.Context(), actorFrom(r), refundID)
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, refund)
}

// SellerRespond handles POST /api/refunds/{id}/seller-response requests.
func (h *RefundHandler) SellerRespond(w http.ResponseWriter, r *http.Request) {
	refundID, err := pathUUID(r, "id")
	if err != nil {
		badRequest(w, err.Error(), h.logger)
		return
	}

	var req model.SellerResponseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, err.Error(), h.logger)
		return
	}

	refund, err := h.service.SellerRespond(r.Context(), actorFrom(r), refundID, req)
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, refund)
}

// Decide handles POST /api/refunds/{id}/decision requests.
func (h *RefundHandler) Decide(w http.ResponseWriter, r *http.Request) {
	refundID, err := pathUUID(r, "id")
	if err != nil {
		badRequest(w, err.Error(), h.logger)
		return
	}

	var req model.RefundDecisionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, err.Error(), h.logger)
		return
	}

	refund, err := h.service.Decide(r.Context(), actorFrom(r), refundID, req)
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, refund)
}

// ListMessages handles GET /api/refunds/{id}/messages requests.
func (h *RefundHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	refundID, err := pathUUID(r, "id")
	if err != nil {
		badRequest(w, err.Error(), h.logger)
		return
	}

	messages, err := h.service.ListMessages(r.Context(), actorFrom(r), refundID)
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, messages)
}

// AddMessage handles POST /api/refunds/{id}/messages requests.
func (h *RefundHandler) AddMessage(w http.ResponseWriter, r *http.Request) {
	refundID, err := pathUUID(r, "id")
	if err != nil {
		badRequest(w, err.Error(), h.logger)
		return
	}

	var req model.RefundMessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, err.Error(), h.logger)
		return
	}

	message, err := h.service.AddMessage(r.Context(), actorFrom(r), refundID, req)
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}

	writeJSON(w, http.StatusCreated, message)
}
