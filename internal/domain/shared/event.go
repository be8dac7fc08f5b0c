package shared

import (
	"time"

	"github.com/google/uuid"
)

// DomainEvent is the envelope every event exposes to the bus
type DomainEvent interface {
	EventID() uuid.UUID
	EventType() string
	OccurredAt() time.Time
	AggregateID() uuid.UUID
	AggregateType() string
	TenantID() uuid.UUID
}

// AggregateRef names the aggregate that raised an event
type AggregateRef struct {
	ID   uuid.UUID `json:"id"`
	Type string    `json:"type"`
}

// EventHeader implements DomainEvent; concrete events embed it and add
// their payload fields
type EventHeader struct {
	ID        uuid.UUID    `json:"event_id"`
	Type      string       `json:"event_type"`
	At        time.Time    `json:"occurred_at"`
	Aggregate AggregateRef `json:"aggregate"`
	Tenant    uuid.UUID    `json:"tenant_id"`
}

// NewEventHeader stamps a new event ID. A zero at means now.
func NewEventHeader(eventType string, aggregate AggregateRef, tenantID uuid.UUID, at time.Time) EventHeader {
	if at.IsZero() {
		at = time.Now()
	}
	return EventHeader{
		ID:        uuid.New(),
		Type:      eventType,
		At:        at.UTC(),
		Aggregate: aggregate,
		Tenant:    tenantID,
	}
}

func (h EventHeader) EventID() uuid.UUID     { return h.ID }
func (h EventHeader) EventType() string      { return h.Type }
func (h EventHeader) OccurredAt() time.Time  { return h.At }
func (h EventHeader) AggregateID() uuid.UUID { return h.Aggregate.ID }
func (h EventHeader) AggregateType() string  { return h.Aggregate.Type }
func (h EventHeader) TenantID() uuid.UUID    { return h.Tenant }
