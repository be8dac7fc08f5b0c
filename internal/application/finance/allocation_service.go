package finance

import (
	"context"
	"errors"
	"time"

	"github.com/erp/settlement/internal/domain/finance"
	"github.com/erp/settlement/internal/domain/shared"
	"github.com/erp/settlement/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// DefaultConflictRetries is how many times a conflicting transaction is re-run
const DefaultConflictRetries = 1

// AllocationService applies payments to obligations
type AllocationService struct {
	scope       TransactionScope
	payments    finance.PaymentRepository
	obligations finance.ObligationRepository
	allocations finance.AllocationRepository
	strategy    finance.AllocationStrategy
	publisher   shared.EventPublisher
	metrics     AllocationMetrics
	logger      *zap.Logger
	retries     int
	now         func() time.Time
}

// AllocationServiceOption is a functional option for configuring AllocationService
type AllocationServiceOption func(*AllocationService)

// WithEventPublisher publishes allocation events after commit
func WithEventPublisher(p shared.EventPublisher) AllocationServiceOption {
	return func(s *AllocationService) {
		s.publisher = p
	}
}

// WithAllocationStrategy overrides the FIFO auto-allocation strategy
func WithAllocationStrategy(st finance.AllocationStrategy) AllocationServiceOption {
	return func(s *AllocationService) {
		s.strategy = st
	}
}

// WithConflictRetries sets how many times ALLOCATION_CONFLICT is retried
func WithConflictRetries(n int) AllocationServiceOption {
	return func(s *AllocationService) {
		if n >= 0 {
			s.retries = n
		}
	}
}

// WithAllocationMetrics records allocation outcomes
func WithAllocationMetrics(m AllocationMetrics) AllocationServiceOption {
	return func(s *AllocationService) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithAllocationLogger sets the service logger
func WithAllocationLogger(l *zap.Logger) AllocationServiceOption {
	return func(s *AllocationService) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithAllocationClock overrides the clock used for allocation dates
func WithAllocationClock(now func() time.Time) AllocationServiceOption {
	return func(s *AllocationService) {
		s.now = now
	}
}

// NewAllocationService creates a new AllocationService.
// The plain repositories serve read-only queries; writes go through scope.
func NewAllocationService(
	scope TransactionScope,
	payments finance.PaymentRepository,
	obligations finance.ObligationRepository,
	allocations finance.AllocationRepository,
	opts ...AllocationServiceOption,
) *AllocationService {
	s := &AllocationService{
		scope:       scope,
		payments:    payments,
		obligations: obligations,
		allocations: allocations,
		strategy:    finance.NewFIFOAllocationStrategy(),
		metrics:     noopAllocationMetrics{},
		logger:      zap.NewNop(),
		retries:     DefaultConflictRetries,
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AllocateManual allocates amount of a payment to one obligation.
// Capacity checks and the insert run in one transaction with both rows locked.
func (s *AllocationService) AllocateManual(ctx context.Context, tenantID uuid.UUID, req AllocateManualRequest) (*AllocationResponse, error) {
	var response *AllocationResponse
	var operationErr error
	ctx, span := telemetry.StartServiceSpan(ctx, "allocation", "manual",
		attribute.String(telemetry.SpanAttrTenantID, tenantID.String()),
		attribute.String(telemetry.SpanAttrPaymentID, req.PaymentID.String()),
		attribute.String(telemetry.SpanAttrObligationID, req.ObligationID.String()),
	)
	defer func() { telemetry.EndSpan(span, operationErr) }()
	telemetry.WithProfilingLabels(ctx, telemetry.SettlementOperationLabels(telemetry.OperationAllocateManual, tenantID.String()), func(c context.Context) {
		if !req.ObligationType.IsAllocatable() {
			operationErr = finance.ErrInvalidObligationType.WithDetails(map[string]any{"obligation_type": req.ObligationType.String()})
			return
		}
		if err := finance.ValidateAllocationAmount(req.Amount); err != nil {
			operationErr = err
			return
		}

		var created *finance.Allocation
		operationErr = s.runInTransaction(c, tenantID, func(repos TransactionalRepositories) error {
			payment, err := repos.Payments().FindByIDForUpdate(c, tenantID, req.PaymentID)
			if err != nil {
				return err
			}
			if payment == nil {
				return finance.NewPaymentNotFoundError(req.PaymentID)
			}
			if err := payment.CheckCapacity(req.Amount); err != nil {
				return err
			}

			key := finance.ObligationKey{ID: req.ObligationID, Type: req.ObligationType}
			obligation, err := repos.Obligations().FindByKeyForUpdate(c, tenantID, key)
			if err != nil {
				return err
			}
			if obligation == nil {
				return finance.NewObligationNotFoundError(key)
			}

			allocation, err := finance.NewAllocation(payment, obligation, req.Amount, finance.AllocationOptions{
				Type:      finance.AllocationTypeManual,
				Notes:     req.Notes,
				Date:      s.now(),
				CreatedBy: req.CreatedBy,
			})
			if err != nil {
				return err
			}
			if err := repos.Allocations().Create(c, allocation); err != nil {
				return err
			}
			created = allocation
			return nil
		})
		if operationErr != nil {
			s.recordRejection(c, tenantID, operationErr)
			return
		}

		s.metrics.RecordAllocation(c, tenantID, created.AllocationType, created.Amount)
		s.publish(c, created.GetDomainEvents()...)
		created.ClearDomainEvents()

		s.logger.Info("allocation created",
			zap.String("tenant_id", tenantID.String()),
			zap.String("allocation_id", created.ID.String()),
			zap.String("payment_id", created.PaymentID.String()),
			zap.String("obligation_id", created.ObligationID.String()),
			zap.String("amount", created.Amount.String()),
		)
		resp := ToAllocationResponse(created)
		response = &resp
	})
	return response, operationErr
}

// AllocateAuto distributes the payment's unallocated amount over the
// counterparty's open obligations, oldest due date first. Leftover capacity is
// reported back, never dropped.
func (s *AllocationService) AllocateAuto(ctx context.Context, tenantID uuid.UUID, req AllocateAutoRequest) (*AutoAllocationResult, error) {
	var response *AutoAllocationResult
	var operationErr error
	ctx, span := telemetry.StartServiceSpan(ctx, "allocation", "auto",
		attribute.String(telemetry.SpanAttrTenantID, tenantID.String()),
		attribute.String(telemetry.SpanAttrPaymentID, req.PaymentID.String()),
	)
	defer func() { telemetry.EndSpan(span, operationErr) }()
	telemetry.WithProfilingLabels(ctx, telemetry.SettlementOperationLabels(telemetry.OperationAllocateAuto, tenantID.String()), func(c context.Context) {
		if req.ObligationType != nil && !req.ObligationType.IsAllocatable() {
			operationErr = finance.ErrInvalidObligationType.WithDetails(map[string]any{"obligation_type": req.ObligationType.String()})
			return
		}

		var created []*finance.Allocation
		var remaining decimal.Decimal
		var alreadyFull bool
		operationErr = s.runInTransaction(c, tenantID, func(repos TransactionalRepositories) error {
			created = nil
			alreadyFull = false

			payment, err := repos.Payments().FindByIDForUpdate(c, tenantID, req.PaymentID)
			if err != nil {
				return err
			}
			if payment == nil {
				return finance.NewPaymentNotFoundError(req.PaymentID)
			}
			if payment.IsFullyAllocated() {
				alreadyFull = true
				remaining = decimal.Zero
				return nil
			}

			counterpartyID := payment.CounterpartyID
			if req.CounterpartyID != nil {
				counterpartyID = *req.CounterpartyID
			}

			for _, obligationType := range s.walkOrder(payment, req) {
				if payment.IsFullyAllocated() {
					break
				}
				batch, err := s.allocateAcross(c, repos, payment, counterpartyID, obligationType, req.CreatedBy)
				if err != nil {
					return err
				}
				created = append(created, batch...)
			}
			remaining = payment.Available()
			return nil
		})
		if operationErr != nil {
			s.recordRejection(c, tenantID, operationErr)
			return
		}

		result := &AutoAllocationResult{
			AllocationsCreated:   make([]AllocationResponse, 0, len(created)),
			TotalAllocated:       decimal.Zero,
			RemainingUnallocated: remaining,
			FullyAllocated:       remaining.IsZero(),
		}
		if alreadyFull {
			result.Message = "Payment is already fully allocated"
		}
		for _, a := range created {
			result.AllocationsCreated = append(result.AllocationsCreated, ToAllocationResponse(a))
			result.TotalAllocated = result.TotalAllocated.Add(a.Amount)
			s.metrics.RecordAllocation(c, tenantID, a.AllocationType, a.Amount)
			s.publish(c, a.GetDomainEvents()...)
			a.ClearDomainEvents()
		}

		s.logger.Info("auto allocation completed",
			zap.String("tenant_id", tenantID.String()),
			zap.String("payment_id", req.PaymentID.String()),
			zap.Int("allocations", len(created)),
			zap.String("total_allocated", result.TotalAllocated.String()),
			zap.String("remaining", remaining.String()),
		)
		response = result
	})
	return response, operationErr
}

// walkOrder decides which obligation variants the auto walk visits.
// An explicit filter wins; otherwise the payment's own counterparty kind
// decides, and an explicit counterparty without a filter walks sales then purchase.
func (s *AllocationService) walkOrder(payment *finance.Payment, req AllocateAutoRequest) []finance.ObligationType {
	if req.ObligationType != nil {
		return []finance.ObligationType{*req.ObligationType}
	}
	if req.CounterpartyID == nil && payment.CounterpartyKind.IsValid() {
		return []finance.ObligationType{payment.CounterpartyKind.ObligationType()}
	}
	return finance.AllocatableObligationTypes()
}

func (s *AllocationService) allocateAcross(
	ctx context.Context,
	repos TransactionalRepositories,
	payment *finance.Payment,
	counterpartyID uuid.UUID,
	obligationType finance.ObligationType,
	createdBy *uuid.UUID,
) ([]*finance.Allocation, error) {
	currency := payment.Currency
	open, err := repos.Obligations().ListOpenForUpdate(ctx, payment.TenantID, finance.OpenObligationFilter{
		Type:           obligationType,
		CounterpartyID: &counterpartyID,
		Currency:       &currency,
	})
	if err != nil {
		return nil, err
	}
	if len(open) == 0 {
		return nil, nil
	}

	byKey := make(map[finance.ObligationKey]*finance.Obligation, len(open))
	targets := make([]finance.AllocationTarget, 0, len(open))
	for i := range open {
		o := &open[i]
		byKey[o.Key()] = o
		targets = append(targets, finance.TargetFromObligation(o))
	}

	plan, err := s.strategy.Plan(payment.Available(), targets)
	if err != nil {
		return nil, err
	}

	created := make([]*finance.Allocation, 0, len(plan.Steps))
	for _, step := range plan.Steps {
		allocation, err := finance.NewAllocation(payment, byKey[step.Target.Key], step.Amount, finance.AllocationOptions{
			Type:      finance.AllocationTypeAuto,
			Date:      s.now(),
			CreatedBy: createdBy,
		})
		if err != nil {
			return nil, err
		}
		if err := repos.Allocations().Create(ctx, allocation); err != nil {
			return nil, err
		}
		created = append(created, allocation)
	}
	return created, nil
}

// RemoveAllocation deletes one allocation, restoring capacity to its payment and obligation
func (s *AllocationService) RemoveAllocation(ctx context.Context, tenantID, allocationID uuid.UUID) error {
	var operationErr error
	ctx, span := telemetry.StartServiceSpan(ctx, "allocation", "remove",
		attribute.String(telemetry.SpanAttrTenantID, tenantID.String()),
		attribute.String(telemetry.SpanAttrAllocationID, allocationID.String()),
	)
	defer func() { telemetry.EndSpan(span, operationErr) }()
	telemetry.WithProfilingLabels(ctx, telemetry.SettlementOperationLabels(telemetry.OperationRemoveAllocation, tenantID.String()), func(c context.Context) {
		var removed *finance.Allocation
		operationErr = s.runInTransaction(c, tenantID, func(repos TransactionalRepositories) error {
			allocation, err := repos.Allocations().FindByID(c, tenantID, allocationID)
			if err != nil {
				return err
			}
			if allocation == nil {
				return finance.NewAllocationNotFoundError(allocationID)
			}
			deleted, err := repos.Allocations().Delete(c, tenantID, allocationID)
			if err != nil {
				return err
			}
			if !deleted {
				return finance.NewAllocationNotFoundError(allocationID)
			}
			removed = allocation
			return nil
		})
		if operationErr != nil {
			return
		}

		removed.MarkRemoved()
		s.metrics.RecordAllocationRemoved(c, tenantID)
		s.publish(c, removed.GetDomainEvents()...)
		s.logger.Info("allocation removed",
			zap.String("tenant_id", tenantID.String()),
			zap.String("allocation_id", allocationID.String()),
			zap.String("amount", removed.Amount.String()),
		)
	})
	return operationErr
}

// GetObligationStatus returns the derived settlement state of one obligation
func (s *AllocationService) GetObligationStatus(ctx context.Context, tenantID uuid.UUID, key finance.ObligationKey) (*ObligationStatusResponse, error) {
	if !key.Type.IsAllocatable() {
		return nil, finance.ErrInvalidObligationType.WithDetails(map[string]any{"obligation_type": key.Type.String()})
	}
	obligation, err := s.obligations.FindByKey(ctx, tenantID, key)
	if err != nil {
		return nil, err
	}
	if obligation == nil {
		return nil, finance.NewObligationNotFoundError(key)
	}
	allocations, err := s.allocations.ListByObligation(ctx, tenantID, key)
	if err != nil {
		return nil, err
	}
	status := toObligationStatus(obligation, allocations)
	return &status, nil
}

// GetObligationStatuses returns statuses for many obligations of one type.
// Unknown ids are omitted from the result.
func (s *AllocationService) GetObligationStatuses(ctx context.Context, tenantID uuid.UUID, obligationType finance.ObligationType, ids []uuid.UUID) ([]ObligationStatusResponse, error) {
	if !obligationType.IsAllocatable() {
		return nil, finance.ErrInvalidObligationType.WithDetails(map[string]any{"obligation_type": obligationType.String()})
	}
	obligations, err := s.obligations.FindByIDs(ctx, tenantID, obligationType, ids)
	if err != nil {
		return nil, err
	}
	out := make([]ObligationStatusResponse, 0, len(obligations))
	for i := range obligations {
		o := &obligations[i]
		allocations, err := s.allocations.ListByObligation(ctx, tenantID, o.Key())
		if err != nil {
			return nil, err
		}
		out = append(out, toObligationStatus(o, allocations))
	}
	return out, nil
}

// GetPaymentAllocations returns a payment's allocations and remaining capacity
func (s *AllocationService) GetPaymentAllocations(ctx context.Context, tenantID, paymentID uuid.UUID) (*PaymentAllocationsResponse, error) {
	payment, err := s.payments.FindByID(ctx, tenantID, paymentID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, finance.NewPaymentNotFoundError(paymentID)
	}
	allocations, err := s.allocations.ListByPayment(ctx, tenantID, paymentID)
	if err != nil {
		return nil, err
	}
	payment.Allocated = finance.SumAllocations(allocations)
	return &PaymentAllocationsResponse{
		PaymentID:        payment.ID,
		CounterpartyKind: string(payment.CounterpartyKind),
		CounterpartyID:   payment.CounterpartyID,
		Currency:         payment.Currency.String(),
		Amount:           payment.Amount,
		Allocated:        payment.Allocated,
		Available:        payment.Available(),
		Allocations:      toAllocationResponses(allocations),
	}, nil
}

// runInTransaction executes fn, re-running it when the store reports a
// serialization conflict, up to the configured retry budget.
func (s *AllocationService) runInTransaction(ctx context.Context, tenantID uuid.UUID, fn func(repos TransactionalRepositories) error) error {
	for attempt := 0; ; attempt++ {
		err := s.scope.Execute(ctx, fn)
		if err == nil {
			return nil
		}
		if !errors.Is(err, finance.ErrAllocationConflict) || attempt >= s.retries {
			return err
		}
		s.metrics.RecordConflictRetry(ctx, tenantID)
		telemetry.AddEvent(ctx, "conflict_retry", attribute.Int(telemetry.SpanAttrAttempt, attempt+1))
		s.logger.Warn("allocation conflict, retrying",
			zap.String("tenant_id", tenantID.String()),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
	}
}

func (s *AllocationService) publish(ctx context.Context, events ...shared.DomainEvent) {
	if s.publisher == nil || len(events) == 0 {
		return
	}
	if err := s.publisher.Publish(ctx, events...); err != nil {
		s.logger.Error("failed to publish allocation events", zap.Error(err))
	}
}

func (s *AllocationService) recordRejection(ctx context.Context, tenantID uuid.UUID, err error) {
	var de *shared.DomainError
	if errors.As(err, &de) {
		s.metrics.RecordAllocationRejected(ctx, tenantID, de.Code)
	}
}
