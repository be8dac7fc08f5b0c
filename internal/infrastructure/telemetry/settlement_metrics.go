package telemetry

import (
	"context"

	"github.com/erp/settlement/internal/domain/finance"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// SettlementMetrics records allocation activity and overdue exposure.
type SettlementMetrics struct {
	logger *zap.Logger

	allocationsTotal   *Counter
	allocationsRemoved *Counter
	allocationsReject  *Counter
	conflictRetries    *Counter
	allocatedAmount    *Histogram

	overdueBalance        *FloatGauge
	overdueCounterparties *Gauge
}

// SettlementMetricsConfig holds configuration for settlement metrics.
type SettlementMetricsConfig struct {
	Meter  metric.Meter
	Logger *zap.Logger
}

// AllocationAmountBuckets are bucket boundaries for allocated amounts in base currency units.
var AllocationAmountBuckets = []float64{10, 100, 1000, 10000, 100000, 1000000}

// NewSettlementMetrics creates the settlement instruments on the given meter.
func NewSettlementMetrics(cfg SettlementMetricsConfig) (*SettlementMetrics, error) {
	if cfg.Meter == nil {
		return nil, ErrMeterNil
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	sm := &SettlementMetrics{logger: logger}
	var err error

	if sm.allocationsTotal, err = NewCounter(cfg.Meter,
		"settlement.allocations.created",
		"Number of allocations created",
		"{allocations}",
	); err != nil {
		return nil, err
	}
	if sm.allocationsRemoved, err = NewCounter(cfg.Meter,
		"settlement.allocations.removed",
		"Number of allocations removed",
		"{allocations}",
	); err != nil {
		return nil, err
	}
	if sm.allocationsReject, err = NewCounter(cfg.Meter,
		"settlement.allocations.rejected",
		"Number of allocation requests rejected, by error code",
		"{requests}",
	); err != nil {
		return nil, err
	}
	if sm.conflictRetries, err = NewCounter(cfg.Meter,
		"settlement.allocations.conflict_retries",
		"Number of allocation transactions retried after a serialization conflict",
		"{retries}",
	); err != nil {
		return nil, err
	}
	if sm.allocatedAmount, err = NewHistogram(cfg.Meter, HistogramOpts{
		Name:        "settlement.allocations.amount",
		Description: "Distribution of allocated amounts",
		Unit:        "{amount}",
		Boundaries:  AllocationAmountBuckets,
	}); err != nil {
		return nil, err
	}
	if sm.overdueBalance, err = NewFloatGauge(cfg.Meter,
		"settlement.overdue.balance",
		"Total overdue balance in base currency",
		"{amount}",
	); err != nil {
		return nil, err
	}
	if sm.overdueCounterparties, err = NewGauge(cfg.Meter,
		"settlement.overdue.counterparties",
		"Number of counterparties with an overdue balance",
		"{counterparties}",
	); err != nil {
		return nil, err
	}
	return sm, nil
}

// RecordAllocation records one created allocation.
func (sm *SettlementMetrics) RecordAllocation(ctx context.Context, tenantID uuid.UUID, allocationType finance.AllocationType, amount decimal.Decimal) {
	attrs := []attribute.KeyValue{
		AttrTenantID.String(tenantID.String()),
		AttrAllocationType.String(allocationType.String()),
	}
	sm.allocationsTotal.Inc(ctx, attrs...)
	sm.allocatedAmount.Record(ctx, amount.InexactFloat64(), attrs...)
}

// RecordAllocationRemoved records a removed allocation.
func (sm *SettlementMetrics) RecordAllocationRemoved(ctx context.Context, tenantID uuid.UUID) {
	sm.allocationsRemoved.Inc(ctx, AttrTenantID.String(tenantID.String()))
}

// RecordAllocationRejected records a rejected allocation request.
func (sm *SettlementMetrics) RecordAllocationRejected(ctx context.Context, tenantID uuid.UUID, code string) {
	sm.allocationsReject.Inc(ctx,
		AttrTenantID.String(tenantID.String()),
		AttrErrorCode.String(code),
	)
}

// RecordConflictRetry records a retried transaction.
func (sm *SettlementMetrics) RecordConflictRetry(ctx context.Context, tenantID uuid.UUID) {
	sm.conflictRetries.Inc(ctx, AttrTenantID.String(tenantID.String()))
}

// RecordOverdueExposure records the result of an overdue sweep for one tenant.
func (sm *SettlementMetrics) RecordOverdueExposure(ctx context.Context, tenantID uuid.UUID, total decimal.Decimal, counterparties int) {
	attr := AttrTenantID.String(tenantID.String())
	sm.overdueBalance.Record(ctx, total.InexactFloat64(), attr)
	sm.overdueCounterparties.Record(ctx, int64(counterparties), attr)
	sm.logger.Debug("Recorded overdue exposure",
		zap.String("tenant_id", tenantID.String()),
		zap.String("total", total.String()),
		zap.Int("counterparties", counterparties),
	)
}

// ErrMeterNil is returned when meter is nil.
var ErrMeterNil = &MetricsError{Op: "NewSettlementMetrics", Err: "meter cannot be nil"}

// MetricsError represents a metrics-related error.
type MetricsError struct {
	Op  string
	Err string
}

func (e *MetricsError) Error() string {
	return e.Op + ": " + e.Err
}
