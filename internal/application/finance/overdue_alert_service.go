package finance

import (
	"context"
	"time"

	"github.com/erp/settlement/internal/domain/finance"
	"github.com/erp/settlement/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// alertTopN is how many worst offenders are logged per tenant
const alertTopN = 5

// SweepResult summarizes one tenant's overdue exposure
type SweepResult struct {
	TenantID       uuid.UUID
	Counterparties int
	TotalOverdue   string
	Err            error
}

// OverdueAlertService computes overdue exposure for every tenant with open obligations
type OverdueAlertService struct {
	obligations finance.ObligationRepository
	balances    *BalanceService
	metrics     OverdueMetrics
	logger      *zap.Logger
}

// NewOverdueAlertService creates a new OverdueAlertService
func NewOverdueAlertService(obligations finance.ObligationRepository, balances *BalanceService, metrics OverdueMetrics, logger *zap.Logger) *OverdueAlertService {
	if metrics == nil {
		metrics = noopOverdueMetrics{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OverdueAlertService{
		obligations: obligations,
		balances:    balances,
		metrics:     metrics,
		logger:      logger,
	}
}

// Sweep aggregates overdue balances per tenant, records the exposure gauges and
// logs the worst offenders. A failing tenant does not stop the sweep.
func (s *OverdueAlertService) Sweep(ctx context.Context) ([]SweepResult, error) {
	var results []SweepResult
	var operationErr error
	telemetry.WithProfilingLabels(ctx, telemetry.SettlementOperationLabels(telemetry.OperationOverdueSweep, ""), func(c context.Context) {
		started := time.Now()
		tenants, err := s.obligations.ListTenantsWithOpenObligations(c)
		if err != nil {
			operationErr = err
			return
		}
		results = make([]SweepResult, 0, len(tenants))
		for _, tenantID := range tenants {
			results = append(results, s.sweepTenant(c, tenantID))
		}
		s.logger.Info("overdue sweep completed",
			zap.Int("tenants", len(tenants)),
			zap.Duration("duration", time.Since(started)),
		)
	})
	return results, operationErr
}

func (s *OverdueAlertService) sweepTenant(ctx context.Context, tenantID uuid.UUID) SweepResult {
	result := SweepResult{TenantID: tenantID}

	balances, err := s.balances.overdueBalances(ctx, tenantID, OverdueBalanceScope{})
	if err != nil {
		s.logger.Error("overdue sweep failed for tenant",
			zap.String("tenant_id", tenantID.String()),
			zap.Error(err),
		)
		result.Err = err
		return result
	}

	total := finance.SumOverdue(balances)
	result.Counterparties = len(balances)
	result.TotalOverdue = total.String()
	s.metrics.RecordOverdueExposure(ctx, tenantID, total, len(balances))

	if len(balances) == 0 {
		return result
	}
	top := balances
	if len(top) > alertTopN {
		top = top[:alertTopN]
	}
	for i, b := range top {
		fields := []zap.Field{
			zap.String("tenant_id", tenantID.String()),
			zap.Int("rank", i+1),
			zap.String("counterparty_kind", string(b.CounterpartyKind)),
			zap.String("counterparty_id", b.CounterpartyID.String()),
			zap.String("overdue_balance", b.OverdueBalance.String()),
			zap.Int("overdue_count", b.OverdueCount),
		}
		if b.OldestOverdueDate != nil {
			fields = append(fields, zap.String("oldest_overdue_date", b.OldestOverdueDate.Format("2006-01-02")))
		}
		s.logger.Info("overdue counterparty", fields...)
	}
	return result
}
