package finance

import (
	"time"

	"github.com/erp/settlement/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Payment is money received from a customer or paid to a supplier.
// Amount and currency are immutable once created. Allocated is derived.
type Payment struct {
	ID                   uuid.UUID
	TenantID             uuid.UUID
	Amount               decimal.Decimal
	Currency             valueobject.Currency
	CounterpartyKind     CounterpartyKind
	CounterpartyID       uuid.UUID
	PaymentDate          time.Time
	AccountTransactionID *uuid.UUID
	Allocated            decimal.Decimal
}

// Available returns the unallocated part of the payment, never below zero
func (p *Payment) Available() decimal.Decimal {
	a := p.Amount.Sub(p.Allocated)
	if a.IsNegative() {
		return decimal.Zero
	}
	return a
}

// IsFullyAllocated reports whether no capacity is left
func (p *Payment) IsFullyAllocated() bool {
	return p.Available().IsZero()
}

// CheckCapacity fails with InsufficientPaymentCapacity if amount exceeds the available capacity
func (p *Payment) CheckCapacity(amount decimal.Decimal) error {
	available := p.Available()
	if amount.GreaterThan(available) {
		return NewInsufficientPaymentCapacityError(p.ID, amount, available)
	}
	return nil
}
