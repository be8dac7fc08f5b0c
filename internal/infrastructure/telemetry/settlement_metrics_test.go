package telemetry_test

import (
	"context"
	"testing"

	"github.com/erp/settlement/internal/domain/finance"
	"github.com/erp/settlement/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestNewSettlementMetrics_NilMeter(t *testing.T) {
	sm, err := telemetry.NewSettlementMetrics(telemetry.SettlementMetricsConfig{})
	require.Error(t, err)
	assert.Nil(t, sm)
	assert.Equal(t, "NewSettlementMetrics: meter cannot be nil", err.Error())
}

func TestSettlementMetrics_NoopMeter(t *testing.T) {
	sm, err := telemetry.NewSettlementMetrics(telemetry.SettlementMetricsConfig{
		Meter: noop.NewMeterProvider().Meter("test"),
	})
	require.NoError(t, err)

	ctx := context.Background()
	tenantID := uuid.New()

	// Should not panic
	sm.RecordAllocation(ctx, tenantID, finance.AllocationTypeManual, decimal.NewFromInt(100))
	sm.RecordAllocationRemoved(ctx, tenantID)
	sm.RecordAllocationRejected(ctx, tenantID, finance.CodeInsufficientPaymentCapacity)
	sm.RecordConflictRetry(ctx, tenantID)
	sm.RecordOverdueExposure(ctx, tenantID, decimal.NewFromInt(500), 2)
}

func TestSettlementMetrics_CollectsValues(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	sm, err := telemetry.NewSettlementMetrics(telemetry.SettlementMetricsConfig{
		Meter: provider.Meter("settlement-test"),
	})
	require.NoError(t, err)

	ctx := context.Background()
	tenantID := uuid.New()
	sm.RecordAllocation(ctx, tenantID, finance.AllocationTypeAuto, decimal.NewFromInt(30))
	sm.RecordAllocation(ctx, tenantID, finance.AllocationTypeAuto, decimal.NewFromInt(80))
	sm.RecordOverdueExposure(ctx, tenantID, decimal.NewFromFloat(1250.5), 3)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	found := map[string]metricdata.Metrics{}
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			found[m.Name] = m
		}
	}

	created, ok := found["settlement.allocations.created"]
	require.True(t, ok)
	sum, ok := created.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 1)
	assert.Equal(t, int64(2), sum.DataPoints[0].Value)

	balance, ok := found["settlement.overdue.balance"]
	require.True(t, ok)
	gauge, ok := balance.Data.(metricdata.Gauge[float64])
	require.True(t, ok)
	require.Len(t, gauge.DataPoints, 1)
	assert.InDelta(t, 1250.5, gauge.DataPoints[0].Value, 0.001)

	counterparties, ok := found["settlement.overdue.counterparties"]
	require.True(t, ok)
	intGauge, ok := counterparties.Data.(metricdata.Gauge[int64])
	require.True(t, ok)
	require.Len(t, intGauge.DataPoints, 1)
	assert.Equal(t, int64(3), intGauge.DataPoints[0].Value)
}
