package model

import (
	"errors"
	"net/http"
)

// ErrorResponse represents a standardised error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// Standard error codes for API responses
const (
	ErrCodeValidation          = "VALIDATION_ERROR"
	ErrCodeUnauthorised        = "UNAUTHORIZED"
	ErrCodeForbidden           = "FORBIDDEN"
	ErrCodeNotFound            = "NOT_FOUND"
	ErrCodeConflict            = "CONFLICT"
	ErrCodeStateConflict       = "STATE_CONFLICT"
	ErrCodeCouponNotFound      = "COUPON_NOT_FOUND"
	ErrCodeCouponExpired       = "COUPON_EXPIRED"
	ErrCodeCouponLimitReached  = "COUPON_LIMIT_REACHED"
	ErrCodeCouponNotApplicable = "COUPON_NOT_APPLICABLE"
	ErrCodeRefundNotEligible   = "REFUND_NOT_ELIGIBLE"
	ErrCodeProofUploadFailed   = "PROOF_UPLOAD_FAILED"
	ErrCodeGatewayRejected     = "GATEWAY_REJECTED"
	ErrCodeGatewayUnavailable  = "GATEWAY_UNAVAILABLE"
	ErrCodeInsufficientFunds   = "INSUFFICIENT_FUNDS"
	ErrCodeInternalError       = "INTERNAL_ERROR"
)

var httpStatusByCode = map[string]int{
	ErrCodeValidation:          http.StatusBadRequest,
	ErrCodeUnauthorised:        http.StatusUnauthorized,
	ErrCodeForbidden:           http.StatusForbidden,
	ErrCodeNotFound:            http.StatusNotFound,
	ErrCodeConflict:            http.StatusConflict,
	ErrCodeStateConflict:       http.StatusUnprocessableEntity,
	ErrCodeCouponNotFound:      http.StatusUnprocessableEntity,
	ErrCodeCouponExpired:       http.StatusUnprocessableEntity,
	ErrCodeCouponLimitReached:  http.StatusUnprocessableEntity,
	ErrCodeCouponNotApplicable: http.StatusUnprocessableEntity,
	ErrCodeRefundNotEligible:   http.StatusUnprocessableEntity,
	ErrCodeProofUploadFailed:   http.StatusBadGateway,
	ErrCodeGatewayRejected:     http.StatusPaymentRequired,
	ErrCodeGatewayUnavailable:  http.StatusServiceUnavailable,
	ErrCodeInsufficientFunds:   http.StatusUnprocessableEntity,
	ErrCodeInternalError:       http.StatusInternalServerError,
}

// Domain errors for business logic
type DomainError struct {
	Code    string
	Message string
	Field   string
	cause   error
}

func (e *DomainError) Error() string {
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.cause
}

// HTTPStatus returns the status code a handler should answer with.
func (e *DomainError) HTTPStatus() int {
	if status, ok := httpStatusByCode[e.Code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// NewFieldError creates a validation error bound to a request field.
func NewFieldError(field, message string) *DomainError {
	return &DomainError{
		Code:    ErrCodeValidation,
		Message: message,
		Field:   field,
	}
}

// WrapDomainError attaches an underlying cause to a domain error.
func WrapDomainError(code string, cause error, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		cause:   cause,
	}
}

// AsDomainError extracts a DomainError from an error chain.
func AsDomainError(err error) (*DomainError, bool) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr, true
	}
	return nil, false
}

// HasCode reports whether err carries the given domain error code.
func HasCode(err error, code string) bool {
	domainErr, ok := AsDomainError(err)
	return ok && domainErr.Code == code
}

// Common domain errors
var (
	ErrOrderNotFound        = NewDomainError(ErrCodeNotFound, "Order not found")
	ErrRefundNotFound       = NewDomainError(ErrCodeNotFound, "Refund request not found")
	ErrCouponNotFound       = NewDomainError(ErrCodeCouponNotFound, "invalid or not found")
	ErrCouponExpired        = NewDomainError(ErrCodeCouponExpired, "expired")
	ErrCouponLimitReached   = NewDomainError(ErrCodeCouponLimitReached, "limit reached")
	ErrCouponNotApplicable  = NewDomainError(ErrCodeCouponNotApplicable, "not valid for items in cart")
	ErrProductNotFound      = NewDomainError(ErrCodeValidation, "One or more products not found")
	ErrInvalidQuantity      = NewDomainError(ErrCodeValidation, "Quantity must be greater than zero")
	ErrUnauthenticated      = NewDomainError(ErrCodeUnauthorised, "Authentication required")
	ErrForbidden            = NewDomainError(ErrCodeForbidden, "Access denied")
	ErrRefundNotEligible    = NewDomainError(ErrCodeRefundNotEligible, "Order is not eligible for a refund")
	ErrRefundAlreadyOpen    = NewDomainError(ErrCodeConflict, "A refund request is already open for this order")
	ErrRefundTerminal       = NewDomainError(ErrCodeStateConflict, "Refund request is already resolved")
	ErrSellerAlreadyReplied = NewDomainError(ErrCodeConflict, "Seller response already recorded")
	ErrConcurrentUpdate     = NewDomainError(ErrCodeConflict, "Record was modified concurrently, reload and retry")
	ErrInsufficientFunds    = NewDomainError(ErrCodeInsufficientFunds, "Available balance is insufficient")
)
