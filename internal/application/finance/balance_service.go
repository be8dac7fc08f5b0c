package finance

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/erp/settlement/internal/domain/finance"
	"github.com/erp/settlement/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultBalanceCacheTTL is how long aggregated overdue balances stay cached
const DefaultBalanceCacheTTL = 5 * time.Minute

// BalanceService aggregates overdue exposure per counterparty
type BalanceService struct {
	obligations finance.ObligationRepository
	converters  ConverterProvider
	cache       BalanceCache
	renderer    ReportRenderer
	archive     ReportArchive
	cacheTTL    time.Duration
	logger      *zap.Logger
	now         func() time.Time
}

// BalanceServiceOption is a functional option for configuring BalanceService
type BalanceServiceOption func(*BalanceService)

// WithBalanceCache enables read-through caching of aggregated balances
func WithBalanceCache(cache BalanceCache, ttl time.Duration) BalanceServiceOption {
	return func(s *BalanceService) {
		s.cache = cache
		if ttl > 0 {
			s.cacheTTL = ttl
		}
	}
}

// WithReportRenderer sets the renderer used by ExportOverdueBalances
func WithReportRenderer(r ReportRenderer) BalanceServiceOption {
	return func(s *BalanceService) {
		s.renderer = r
	}
}

// WithReportArchive stores exported reports
func WithReportArchive(a ReportArchive) BalanceServiceOption {
	return func(s *BalanceService) {
		s.archive = a
	}
}

// WithBalanceLogger sets the service logger
func WithBalanceLogger(l *zap.Logger) BalanceServiceOption {
	return func(s *BalanceService) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithBalanceClock overrides the clock that decides what "today" is
func WithBalanceClock(now func() time.Time) BalanceServiceOption {
	return func(s *BalanceService) {
		s.now = now
	}
}

// NewBalanceService creates a new BalanceService
func NewBalanceService(obligations finance.ObligationRepository, converters ConverterProvider, opts ...BalanceServiceOption) *BalanceService {
	s := &BalanceService{
		obligations: obligations,
		converters:  converters,
		cacheTTL:    DefaultBalanceCacheTTL,
		logger:      zap.NewNop(),
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetOverdueBalances returns counterparties with overdue exposure, worst first.
// Amounts are normalized to the base currency.
func (s *BalanceService) GetOverdueBalances(ctx context.Context, tenantID uuid.UUID, scope OverdueBalanceScope) ([]CounterpartyBalanceResponse, error) {
	var result []CounterpartyBalanceResponse
	var operationErr error
	telemetry.WithProfilingLabels(ctx, telemetry.SettlementOperationLabels(telemetry.OperationOverdueBalances, tenantID.String()), func(c context.Context) {
		balances, err := s.overdueBalances(c, tenantID, scope)
		if err != nil {
			operationErr = err
			return
		}
		result = ToCounterpartyBalanceResponses(balances)
	})
	return result, operationErr
}

func (s *BalanceService) overdueBalances(ctx context.Context, tenantID uuid.UUID, scope OverdueBalanceScope) ([]finance.CounterpartyBalance, error) {
	types, err := scopeTypes(scope)
	if err != nil {
		return nil, err
	}
	today := finance.DateOf(s.now())
	key := cacheKey(scope, today)

	// The generation must be read before the ledger so that an allocation
	// committing during the load cannot be cached over.
	cacheable := false
	var generation int64
	if s.cache != nil {
		generation, err = s.cache.Generation(ctx, tenantID)
		if err != nil {
			s.logger.Warn("overdue balance cache read failed", zap.String("tenant_id", tenantID.String()), zap.Error(err))
		} else {
			cached, ok, err := s.cache.Get(ctx, tenantID, key)
			if err != nil {
				s.logger.Warn("overdue balance cache read failed", zap.String("tenant_id", tenantID.String()), zap.Error(err))
			} else if ok {
				return cached, nil
			}
			cacheable = err == nil
		}
	}

	converter, err := s.converters.Converter(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	var open []finance.Obligation
	for _, t := range types {
		rows, err := s.obligations.ListOpen(ctx, tenantID, finance.OpenObligationFilter{
			Type:           t,
			CounterpartyID: scope.CounterpartyID,
			RequireDueDate: true,
		})
		if err != nil {
			return nil, err
		}
		open = append(open, rows...)
	}

	balances, err := finance.AggregateOverdueBalances(open, converter, today)
	if err != nil {
		return nil, err
	}

	if cacheable {
		if err := s.cache.Set(ctx, tenantID, generation, key, balances, s.cacheTTL); err != nil {
			s.logger.Warn("overdue balance cache write failed", zap.String("tenant_id", tenantID.String()), zap.Error(err))
		}
	}
	return balances, nil
}

// ExportOverdueBalances renders the overdue report and, when an archive is
// configured and archive is true, stores a copy under reports/<tenant>/.
func (s *BalanceService) ExportOverdueBalances(ctx context.Context, tenantID uuid.UUID, scope OverdueBalanceScope, archive bool) (*ExportedReport, error) {
	if s.renderer == nil {
		return nil, fmt.Errorf("overdue report export is not configured")
	}
	var report *ExportedReport
	var operationErr error
	telemetry.WithProfilingLabels(ctx, telemetry.SettlementOperationLabels(telemetry.OperationExportOverdue, tenantID.String()), func(c context.Context) {
		balances, err := s.overdueBalances(c, tenantID, scope)
		if err != nil {
			operationErr = err
			return
		}
		asOf := finance.DateOf(s.now())

		var buf bytes.Buffer
		if err := s.renderer.RenderOverdue(&buf, ToCounterpartyBalanceResponses(balances), asOf); err != nil {
			operationErr = fmt.Errorf("render overdue report: %w", err)
			return
		}

		fileName := fmt.Sprintf("overdue-%s%s", asOf.Format("2006-01-02"), s.renderer.Extension())
		report = &ExportedReport{
			FileName:    fileName,
			ContentType: s.renderer.ContentType(),
			Body:        buf.Bytes(),
		}

		if archive && s.archive != nil {
			key := fmt.Sprintf("reports/%s/%s", tenantID.String(), fileName)
			if err := s.archive.Put(c, key, report.ContentType, report.Body); err != nil {
				operationErr = fmt.Errorf("archive overdue report: %w", err)
				return
			}
			report.ArchiveKey = key
			s.logger.Info("overdue report archived",
				zap.String("tenant_id", tenantID.String()),
				zap.String("key", key),
				zap.Int("counterparties", len(balances)),
			)
		}
	})
	return report, operationErr
}

// InvalidateTenant drops the tenant's cached balances
func (s *BalanceService) InvalidateTenant(ctx context.Context, tenantID uuid.UUID) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.InvalidateTenant(ctx, tenantID)
}

func scopeTypes(scope OverdueBalanceScope) ([]finance.ObligationType, error) {
	if scope.CounterpartyKind == "" {
		return finance.AllocatableObligationTypes(), nil
	}
	if !scope.CounterpartyKind.IsValid() {
		return nil, finance.ErrInvalidObligationType.WithDetails(map[string]any{"counterparty_kind": string(scope.CounterpartyKind)})
	}
	return []finance.ObligationType{scope.CounterpartyKind.ObligationType()}, nil
}

func cacheKey(scope OverdueBalanceScope, today time.Time) string {
	kind := string(scope.CounterpartyKind)
	if kind == "" {
		kind = "all"
	}
	counterparty := "all"
	if scope.CounterpartyID != nil {
		counterparty = scope.CounterpartyID.String()
	}
	return fmt.Sprintf("%s:%s:%s", kind, counterparty, today.Format("2006-01-02"))
}
