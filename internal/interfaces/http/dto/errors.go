package dto

import (
	"net/http"

	"github.com/erp/settlement/internal/domain/finance"
)

// Transport-level error codes. Domain codes from the finance package pass
// through unchanged.
const (
	ErrCodeValidation      = "VALIDATION_ERROR"
	ErrCodeBadRequest      = "BAD_REQUEST"
	ErrCodeUnauthorized    = "UNAUTHORIZED"
	ErrCodeNotFound        = "NOT_FOUND"
	ErrCodeRequestTooLarge = "REQUEST_TOO_LARGE"
	ErrCodeInternal        = "INTERNAL_ERROR"
	ErrCodeUnavailable     = "SERVICE_UNAVAILABLE"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeValidation:      http.StatusBadRequest,
	ErrCodeBadRequest:      http.StatusBadRequest,
	ErrCodeUnauthorized:    http.StatusUnauthorized,
	ErrCodeNotFound:        http.StatusNotFound,
	ErrCodeRequestTooLarge: http.StatusRequestEntityTooLarge,
	ErrCodeInternal:        http.StatusInternalServerError,
	ErrCodeUnavailable:     http.StatusServiceUnavailable,

	finance.CodeInsufficientPaymentCapacity: http.StatusUnprocessableEntity,
	finance.CodeObligationOverAllocation:    http.StatusUnprocessableEntity,
	finance.CodeCurrencyRateMissing:         http.StatusUnprocessableEntity,
	finance.CodeCurrencyMismatch:            http.StatusUnprocessableEntity,
	finance.CodeObligationNotFound:          http.StatusNotFound,
	finance.CodePaymentNotFound:             http.StatusNotFound,
	finance.CodeAllocationNotFound:          http.StatusNotFound,
	finance.CodeLoanNotFound:                http.StatusNotFound,
	finance.CodeAllocationConflict:          http.StatusConflict,
	finance.CodeInvalidAmount:               http.StatusBadRequest,
	finance.CodeInvalidObligationType:       http.StatusBadRequest,
	finance.CodeInvalidLoan:                 http.StatusBadRequest,

	"INVALID_INPUT":        http.StatusBadRequest,
	"CONCURRENCY_CONFLICT": http.StatusConflict,
	"INVALID_STATE":        http.StatusUnprocessableEntity,
}

// GetHTTPStatus returns the HTTP status for code, 500 when unknown
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}
