package finance

import (
	"time"

	"github.com/erp/settlement/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Aggregate type constant
const AggregateTypeAllocation = "Allocation"

// Event type constants
const (
	EventTypeAllocationCreated = "AllocationCreated"
	EventTypeAllocationRemoved = "AllocationRemoved"
)

// AllocationCreatedEvent is raised when part of a payment is applied to an obligation
type AllocationCreatedEvent struct {
	shared.EventHeader
	AllocationID   uuid.UUID       `json:"allocation_id"`
	PaymentID      uuid.UUID       `json:"payment_id"`
	ObligationID   uuid.UUID       `json:"obligation_id"`
	ObligationType ObligationType  `json:"obligation_type"`
	CounterpartyID uuid.UUID       `json:"counterparty_id"`
	Amount         decimal.Decimal `json:"amount"`
	AllocationType AllocationType  `json:"allocation_type"`
	AllocationDate time.Time       `json:"allocation_date"`
}

// NewAllocationCreatedEvent creates a new AllocationCreatedEvent
func NewAllocationCreatedEvent(a *Allocation, counterpartyID uuid.UUID) *AllocationCreatedEvent {
	return &AllocationCreatedEvent{
		EventHeader:    shared.NewEventHeader(EventTypeAllocationCreated, a.ref(), a.TenantID, a.CreatedAt),
		AllocationID:   a.ID,
		PaymentID:      a.PaymentID,
		ObligationID:   a.ObligationID,
		ObligationType: a.ObligationType,
		CounterpartyID: counterpartyID,
		Amount:         a.Amount,
		AllocationType: a.AllocationType,
		AllocationDate: a.AllocationDate,
	}
}

// AllocationRemovedEvent is raised when an allocation is deleted and capacity restored
type AllocationRemovedEvent struct {
	shared.EventHeader
	AllocationID   uuid.UUID       `json:"allocation_id"`
	PaymentID      uuid.UUID       `json:"payment_id"`
	ObligationID   uuid.UUID       `json:"obligation_id"`
	ObligationType ObligationType  `json:"obligation_type"`
	Amount         decimal.Decimal `json:"amount"`
}

// NewAllocationRemovedEvent creates a new AllocationRemovedEvent
func NewAllocationRemovedEvent(a *Allocation) *AllocationRemovedEvent {
	return &AllocationRemovedEvent{
		EventHeader:    shared.NewEventHeader(EventTypeAllocationRemoved, a.ref(), a.TenantID, time.Time{}),
		AllocationID:   a.ID,
		PaymentID:      a.PaymentID,
		ObligationID:   a.ObligationID,
		ObligationType: a.ObligationType,
		Amount:         a.Amount,
	}
}

func (a *Allocation) ref() shared.AggregateRef {
	return shared.AggregateRef{ID: a.ID, Type: AggregateTypeAllocation}
}
