package finance

import (
	"context"

	"github.com/erp/settlement/internal/domain/finance"
	"github.com/erp/settlement/internal/domain/shared"
	"go.uber.org/zap"
)

// BalanceCacheInvalidator drops cached overdue balances when allocations change
type BalanceCacheInvalidator struct {
	balances *BalanceService
	logger   *zap.Logger
}

// NewBalanceCacheInvalidator creates a new BalanceCacheInvalidator
func NewBalanceCacheInvalidator(balances *BalanceService, logger *zap.Logger) *BalanceCacheInvalidator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BalanceCacheInvalidator{balances: balances, logger: logger}
}

// EventTypes returns the event types this handler is interested in
func (h *BalanceCacheInvalidator) EventTypes() []string {
	return []string{finance.EventTypeAllocationCreated, finance.EventTypeAllocationRemoved}
}

// Handle invalidates the event tenant's cached balances
func (h *BalanceCacheInvalidator) Handle(ctx context.Context, event shared.DomainEvent) error {
	if err := h.balances.InvalidateTenant(ctx, event.TenantID()); err != nil {
		h.logger.Warn("failed to invalidate overdue balance cache",
			zap.String("tenant_id", event.TenantID().String()),
			zap.String("event_type", event.EventType()),
			zap.Error(err),
		)
		return err
	}
	return nil
}

var _ shared.EventHandler = (*BalanceCacheInvalidator)(nil)
