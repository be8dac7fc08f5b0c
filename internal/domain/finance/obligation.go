package finance

import (
	"strings"
	"time"

	"github.com/erp/settlement/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ObligationType identifies the obligation variant
type ObligationType string

const (
	ObligationTypeSales           ObligationType = "sales"
	ObligationTypePurchase        ObligationType = "purchase"
	ObligationTypeLoanInstallment ObligationType = "loan_installment"
)

// IsValid checks if the obligation type is known
func (t ObligationType) IsValid() bool {
	switch t {
	case ObligationTypeSales, ObligationTypePurchase, ObligationTypeLoanInstallment:
		return true
	}
	return false
}

// IsAllocatable reports whether payments can be allocated to this variant.
// Loan installments are virtual and settled through loan payments instead.
func (t ObligationType) IsAllocatable() bool {
	return t == ObligationTypeSales || t == ObligationTypePurchase
}

// String returns the string representation
func (t ObligationType) String() string {
	return string(t)
}

// CounterpartyKind returns the kind of counterparty that owes (or is owed) this obligation
func (t ObligationType) CounterpartyKind() CounterpartyKind {
	if t == ObligationTypePurchase {
		return CounterpartyKindSupplier
	}
	return CounterpartyKindCustomer
}

// ParseObligationType parses an allocatable obligation type
func ParseObligationType(s string) (ObligationType, error) {
	t := ObligationType(strings.ToLower(strings.TrimSpace(s)))
	switch {
	case !t.IsValid():
		return "", ErrInvalidObligationType.WithDetails(map[string]any{"obligation_type": s})
	case t == ObligationTypeLoanInstallment:
		return "", ErrInvalidObligationType.
			WithMessage("Loan installments are settled through loan payments").
			WithDetails(map[string]any{"obligation_type": s})
	}
	return t, nil
}

// AllocatableObligationTypes returns the obligation types in auto-allocation walk order
func AllocatableObligationTypes() []ObligationType {
	return []ObligationType{ObligationTypeSales, ObligationTypePurchase}
}

// CounterpartyKind distinguishes customers from suppliers
type CounterpartyKind string

const (
	CounterpartyKindCustomer CounterpartyKind = "customer"
	CounterpartyKindSupplier CounterpartyKind = "supplier"
)

// IsValid checks if the counterparty kind is known
func (k CounterpartyKind) IsValid() bool {
	return k == CounterpartyKindCustomer || k == CounterpartyKindSupplier
}

// ObligationType returns the invoice variant a counterparty of this kind settles
func (k CounterpartyKind) ObligationType() ObligationType {
	if k == CounterpartyKindSupplier {
		return ObligationTypePurchase
	}
	return ObligationTypeSales
}

// ObligationKey identifies an obligation across variants
type ObligationKey struct {
	ID   uuid.UUID
	Type ObligationType
}

// Obligation is an amount owed with an optional due date.
// Allocated is the sum of existing allocations as read by the ledger reader.
type Obligation struct {
	ID             uuid.UUID
	TenantID       uuid.UUID
	Type           ObligationType
	Number         string
	CounterpartyID uuid.UUID
	TotalAmount    decimal.Decimal
	Currency       valueobject.Currency
	DueDate        *time.Time
	CreatedAt      time.Time
	Allocated      decimal.Decimal
}

// Key returns the obligation's identity
func (o *Obligation) Key() ObligationKey {
	return ObligationKey{ID: o.ID, Type: o.Type}
}

// Remaining returns total minus allocated, never below zero
func (o *Obligation) Remaining() decimal.Decimal {
	r := o.TotalAmount.Sub(o.Allocated)
	if r.IsNegative() {
		return decimal.Zero
	}
	return r
}

// Status classifies the obligation
func (o *Obligation) Status() PaymentStatus {
	return Classify(o.TotalAmount, o.Allocated)
}

// CheckCapacity fails with ObligationOverAllocation if amount exceeds the remaining amount
func (o *Obligation) CheckCapacity(amount decimal.Decimal) error {
	remaining := o.Remaining()
	if amount.GreaterThan(remaining) {
		return NewObligationOverAllocationError(o.Key(), amount, remaining)
	}
	return nil
}

// OpenObligationFilter narrows the ledger reader's open-obligation query
type OpenObligationFilter struct {
	Type           ObligationType
	CounterpartyID *uuid.UUID
	Currency       *valueobject.Currency
	// RequireDueDate drops obligations without a due date
	RequireDueDate bool
}
