package finance

import (
	"context"
	"io"
	"time"

	"github.com/erp/settlement/internal/domain/finance"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ConverterProvider builds the currency converter for a tenant's rate table
type ConverterProvider interface {
	Converter(ctx context.Context, tenantID uuid.UUID) (finance.CurrencyConverter, error)
}

// BalanceCache caches aggregated overdue balances per tenant.
//
// Every InvalidateTenant advances the tenant's generation. Readers take the
// generation before loading the ledger and hand it back to Set, which drops
// the write when the tenant was invalidated in between.
type BalanceCache interface {
	Generation(ctx context.Context, tenantID uuid.UUID) (int64, error)
	Get(ctx context.Context, tenantID uuid.UUID, key string) ([]finance.CounterpartyBalance, bool, error)
	Set(ctx context.Context, tenantID uuid.UUID, generation int64, key string, balances []finance.CounterpartyBalance, ttl time.Duration) error
	InvalidateTenant(ctx context.Context, tenantID uuid.UUID) error
}

// AllocationMetrics records allocation outcomes
type AllocationMetrics interface {
	RecordAllocation(ctx context.Context, tenantID uuid.UUID, allocationType finance.AllocationType, amount decimal.Decimal)
	RecordAllocationRemoved(ctx context.Context, tenantID uuid.UUID)
	RecordAllocationRejected(ctx context.Context, tenantID uuid.UUID, code string)
	RecordConflictRetry(ctx context.Context, tenantID uuid.UUID)
}

// OverdueMetrics records the overdue sweep results
type OverdueMetrics interface {
	RecordOverdueExposure(ctx context.Context, tenantID uuid.UUID, total decimal.Decimal, counterparties int)
}

// ReportRenderer renders overdue balances into a downloadable document
type ReportRenderer interface {
	RenderOverdue(w io.Writer, balances []CounterpartyBalanceResponse, asOf time.Time) error
	ContentType() string
	Extension() string
}

// ReportArchive stores rendered reports
type ReportArchive interface {
	Put(ctx context.Context, key, contentType string, body []byte) error
}

type noopAllocationMetrics struct{}

func (noopAllocationMetrics) RecordAllocation(context.Context, uuid.UUID, finance.AllocationType, decimal.Decimal) {
}
func (noopAllocationMetrics) RecordAllocationRemoved(context.Context, uuid.UUID)          {}
func (noopAllocationMetrics) RecordAllocationRejected(context.Context, uuid.UUID, string) {}
func (noopAllocationMetrics) RecordConflictRetry(context.Context, uuid.UUID)              {}

type noopOverdueMetrics struct{}

func (noopOverdueMetrics) RecordOverdueExposure(context.Context, uuid.UUID, decimal.Decimal, int) {}
