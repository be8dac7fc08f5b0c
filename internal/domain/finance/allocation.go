package finance

import (
	"fmt"
	"time"

	"github.com/erp/settlement/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AllocationType records how an allocation was created
type AllocationType string

const (
	AllocationTypeManual AllocationType = "manual"
	AllocationTypeAuto   AllocationType = "auto"
)

// IsValid checks if the allocation type is known
func (t AllocationType) IsValid() bool {
	return t == AllocationTypeManual || t == AllocationTypeAuto
}

// String returns the string representation
func (t AllocationType) String() string {
	return string(t)
}

// Allocation applies part of a payment to part of an obligation.
// Allocations are never updated in place; removal is the compensating write.
type Allocation struct {
	shared.TenantAggregateRoot
	PaymentID      uuid.UUID
	ObligationID   uuid.UUID
	ObligationType ObligationType
	Amount         decimal.Decimal
	AllocationType AllocationType
	AllocationDate time.Time
	Notes          string
}

// AllocationOptions carries the optional fields of a new allocation
type AllocationOptions struct {
	Type      AllocationType
	Notes     string
	Date      time.Time
	CreatedBy *uuid.UUID
}

// AmountScale is the number of decimal places the ledger stores for amounts
const AmountScale = 4

// ValidateAllocationAmount rejects amounts that are not positive or that
// carry more decimal places than the ledger stores.
func ValidateAllocationAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount.WithDetails(map[string]any{"requested": amount.String()})
	}
	if !amount.Equal(amount.Truncate(AmountScale)) {
		return ErrInvalidAmount.
			WithMessage(fmt.Sprintf("Allocation amount must have at most %d decimal places", AmountScale)).
			WithDetails(map[string]any{"requested": amount.String(), "max_scale": AmountScale})
	}
	return nil
}

// NewAllocation validates and creates an allocation of amount from payment to obligation.
// Both capacities are checked against the in-memory sums and, on success, the
// payment's and obligation's Allocated fields are advanced so a caller walking
// several obligations sees the updated capacity.
func NewAllocation(payment *Payment, obligation *Obligation, amount decimal.Decimal, opts AllocationOptions) (*Allocation, error) {
	if payment == nil {
		return nil, ErrPaymentNotFound
	}
	if obligation == nil {
		return nil, ErrObligationNotFound
	}
	if err := ValidateAllocationAmount(amount); err != nil {
		return nil, err
	}
	if !obligation.Type.IsAllocatable() {
		return nil, ErrInvalidObligationType.WithDetails(map[string]any{"obligation_type": obligation.Type.String()})
	}
	if payment.TenantID != obligation.TenantID {
		return nil, NewObligationNotFoundError(obligation.Key())
	}
	if payment.Currency != obligation.Currency {
		return nil, NewCurrencyMismatchError(payment.Currency, obligation.Currency)
	}
	if err := payment.CheckCapacity(amount); err != nil {
		return nil, err
	}
	if err := obligation.CheckCapacity(amount); err != nil {
		return nil, err
	}

	allocType := opts.Type
	if !allocType.IsValid() {
		allocType = AllocationTypeManual
	}
	date := opts.Date
	if date.IsZero() {
		date = time.Now().UTC()
	}

	a := &Allocation{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(payment.TenantID),
		PaymentID:           payment.ID,
		ObligationID:        obligation.ID,
		ObligationType:      obligation.Type,
		Amount:              amount,
		AllocationType:      allocType,
		AllocationDate:      date,
		Notes:               opts.Notes,
	}
	a.CreatedBy = opts.CreatedBy

	payment.Allocated = payment.Allocated.Add(amount)
	obligation.Allocated = obligation.Allocated.Add(amount)

	a.AddDomainEvent(NewAllocationCreatedEvent(a, obligation.CounterpartyID))
	return a, nil
}

// ObligationKey returns the key of the allocated obligation
func (a *Allocation) ObligationKey() ObligationKey {
	return ObligationKey{ID: a.ObligationID, Type: a.ObligationType}
}

// MarkRemoved records the compensating removal event
func (a *Allocation) MarkRemoved() {
	a.AddDomainEvent(NewAllocationRemovedEvent(a))
}

// SumAllocations totals allocation amounts
func SumAllocations(allocations []Allocation) decimal.Decimal {
	total := decimal.Zero
	for _, a := range allocations {
		total = total.Add(a.Amount)
	}
	return total
}
