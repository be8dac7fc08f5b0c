package shared

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// Entity is anything identified by a UUID
type Entity interface {
	GetID() uuid.UUID
}

// BaseEntity carries identity and creation time. Settlement records are
// append-only, so there is no update timestamp.
type BaseEntity struct {
	ID        uuid.UUID
	CreatedAt time.Time
}

// GetID returns the entity ID
func (e *BaseEntity) GetID() uuid.UUID {
	return e.ID
}

// AggregateRoot buffers the events raised by a mutation until the caller
// has committed it
type AggregateRoot interface {
	Entity
	GetDomainEvents() []DomainEvent
	ClearDomainEvents()
}

// BaseAggregateRoot implements the event buffer
type BaseAggregateRoot struct {
	BaseEntity
	pending []DomainEvent
}

// AddDomainEvent queues an event for publication after commit
func (a *BaseAggregateRoot) AddDomainEvent(event DomainEvent) {
	a.pending = append(a.pending, event)
}

// GetDomainEvents returns a copy of the queued events
func (a *BaseAggregateRoot) GetDomainEvents() []DomainEvent {
	return slices.Clone(a.pending)
}

// ClearDomainEvents drops the queued events
func (a *BaseAggregateRoot) ClearDomainEvents() {
	a.pending = nil
}

// TenantAggregateRoot is an aggregate owned by one tenant
type TenantAggregateRoot struct {
	BaseAggregateRoot
	TenantID  uuid.UUID
	CreatedBy *uuid.UUID
}

// NewTenantAggregateRoot assigns a fresh ID and creation time
func NewTenantAggregateRoot(tenantID uuid.UUID) TenantAggregateRoot {
	return TenantAggregateRoot{
		BaseAggregateRoot: BaseAggregateRoot{
			BaseEntity: BaseEntity{ID: uuid.New(), CreatedAt: time.Now().UTC()},
		},
		TenantID: tenantID,
	}
}
