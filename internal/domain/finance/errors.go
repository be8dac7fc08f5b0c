package finance

import (
	"fmt"

	"github.com/erp/settlement/internal/domain/shared"
	"github.com/erp/settlement/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Error codes surfaced by the settlement engine
const (
	CodeInsufficientPaymentCapacity = "INSUFFICIENT_PAYMENT_CAPACITY"
	CodeObligationOverAllocation    = "OBLIGATION_OVER_ALLOCATION"
	CodeObligationNotFound          = "OBLIGATION_NOT_FOUND"
	CodePaymentNotFound             = "PAYMENT_NOT_FOUND"
	CodeAllocationNotFound          = "ALLOCATION_NOT_FOUND"
	CodeAllocationConflict          = "ALLOCATION_CONFLICT"
	CodeCurrencyRateMissing         = "CURRENCY_RATE_MISSING"
	CodeCurrencyMismatch            = "CURRENCY_MISMATCH"
	CodeInvalidAmount               = "INVALID_AMOUNT"
	CodeInvalidObligationType       = "INVALID_OBLIGATION_TYPE"
	CodeLoanNotFound                = "LOAN_NOT_FOUND"
	CodeInvalidLoan                 = "INVALID_LOAN"
)

// Sentinels for errors.Is checks; constructors below add the offending values.
var (
	ErrInsufficientPaymentCapacity = shared.NewDomainError(CodeInsufficientPaymentCapacity, "Payment does not have enough unallocated capacity")
	ErrObligationOverAllocation    = shared.NewDomainError(CodeObligationOverAllocation, "Allocation exceeds the obligation's remaining amount")
	ErrObligationNotFound          = shared.NewDomainError(CodeObligationNotFound, "Obligation not found")
	ErrPaymentNotFound             = shared.NewDomainError(CodePaymentNotFound, "Payment not found")
	ErrAllocationNotFound          = shared.NewDomainError(CodeAllocationNotFound, "Allocation not found")
	ErrAllocationConflict          = shared.NewRetryableError(CodeAllocationConflict, "Allocation conflicted with a concurrent write")
	ErrCurrencyRateMissing         = shared.NewDomainError(CodeCurrencyRateMissing, "No exchange rate available for currency")
	ErrCurrencyMismatch            = shared.NewDomainError(CodeCurrencyMismatch, "Payment and obligation currencies differ")
	ErrInvalidAmount               = shared.NewDomainError(CodeInvalidAmount, "Allocation amount must be positive")
	ErrInvalidObligationType       = shared.NewDomainError(CodeInvalidObligationType, "Invalid obligation type")
	ErrLoanNotFound                = shared.NewDomainError(CodeLoanNotFound, "Loan not found")
	ErrInvalidLoan                 = shared.NewDomainError(CodeInvalidLoan, "Invalid loan terms")
)

// NewInsufficientPaymentCapacityError reports the payment's remaining capacity.
func NewInsufficientPaymentCapacityError(paymentID uuid.UUID, requested, available decimal.Decimal) error {
	return ErrInsufficientPaymentCapacity.
		WithMessage(fmt.Sprintf("Insufficient payment capacity: requested %s, available %s", requested.String(), available.String())).
		WithDetails(map[string]any{
			"payment_id": paymentID.String(),
			"requested":  requested.String(),
			"available":  available.String(),
		})
}

// NewObligationOverAllocationError reports the obligation's remaining amount.
func NewObligationOverAllocationError(key ObligationKey, requested, remaining decimal.Decimal) error {
	return ErrObligationOverAllocation.
		WithMessage(fmt.Sprintf("Obligation over-allocation: requested %s, remaining %s", requested.String(), remaining.String())).
		WithDetails(map[string]any{
			"obligation_id":   key.ID.String(),
			"obligation_type": key.Type.String(),
			"requested":       requested.String(),
			"available":       remaining.String(),
		})
}

func NewObligationNotFoundError(key ObligationKey) error {
	return ErrObligationNotFound.WithDetails(map[string]any{
		"obligation_id":   key.ID.String(),
		"obligation_type": key.Type.String(),
	})
}

func NewPaymentNotFoundError(id uuid.UUID) error {
	return ErrPaymentNotFound.WithDetails(map[string]any{"payment_id": id.String()})
}

func NewAllocationNotFoundError(id uuid.UUID) error {
	return ErrAllocationNotFound.WithDetails(map[string]any{"allocation_id": id.String()})
}

func NewLoanNotFoundError(id uuid.UUID) error {
	return ErrLoanNotFound.WithDetails(map[string]any{"loan_id": id.String()})
}

// NewAllocationConflictError wraps a storage-level serialization failure.
func NewAllocationConflictError(cause error) error {
	return ErrAllocationConflict.WithCause(cause)
}

func NewCurrencyRateMissingError(currency valueobject.Currency) error {
	return ErrCurrencyRateMissing.
		WithMessage(fmt.Sprintf("No exchange rate available for %s", currency)).
		WithDetails(map[string]any{"currency": currency.String()})
}

func NewCurrencyMismatchError(paymentCurrency, obligationCurrency valueobject.Currency) error {
	return ErrCurrencyMismatch.
		WithMessage(fmt.Sprintf("Cannot allocate a %s payment to a %s obligation", paymentCurrency, obligationCurrency)).
		WithDetails(map[string]any{
			"payment_currency":    paymentCurrency.String(),
			"obligation_currency": obligationCurrency.String(),
		})
}
