package currency

import (
	"context"
	"fmt"

	appfinance "github.com/erp/settlement/internal/application/finance"
	"github.com/erp/settlement/internal/domain/finance"
	"github.com/erp/settlement/internal/domain/shared/valueobject"
	"github.com/erp/settlement/internal/infrastructure/logger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// RateProvider builds a tenant's converter from the latest stored rates,
// optionally backed by a fallback table.
type RateProvider struct {
	rates    finance.ExchangeRateRepository
	base     valueobject.Currency
	fallback *FallbackTable
	logger   *zap.Logger
}

// ProviderOption configures a RateProvider
type ProviderOption func(*RateProvider)

// WithFallbackTable serves currencies missing from the database from table.
// Every such lookup is logged at warn.
func WithFallbackTable(table *FallbackTable) ProviderOption {
	return func(p *RateProvider) {
		p.fallback = table
	}
}

// WithLogger sets the provider logger
func WithLogger(l *zap.Logger) ProviderOption {
	return func(p *RateProvider) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewRateProvider creates a RateProvider for base
func NewRateProvider(rates finance.ExchangeRateRepository, base valueobject.Currency, opts ...ProviderOption) (*RateProvider, error) {
	p := &RateProvider{
		rates:  rates,
		base:   valueobject.NormalizeCurrency(base.String()),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.fallback != nil && p.fallback.Base != p.base {
		return nil, fmt.Errorf("fallback rates are quoted in %s but the base currency is %s", p.fallback.Base, p.base)
	}
	return p, nil
}

// Converter snapshots the tenant's latest rates into a RateTable
func (p *RateProvider) Converter(ctx context.Context, tenantID uuid.UUID) (finance.CurrencyConverter, error) {
	rates, err := p.rates.LatestRates(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("load exchange rates: %w", err)
	}

	var opts []finance.RateTableOption
	if p.fallback != nil {
		log := p.logger.With(zap.String("tenant_id", tenantID.String())).With(logger.TraceFields(ctx)...)
		opts = append(opts,
			finance.WithFallbackRates(p.fallback.Rates),
			finance.WithFallbackObserver(func(c valueobject.Currency, rate decimal.Decimal) {
				log.Warn("exchange rate served from fallback table",
					zap.String("currency", c.String()),
					zap.String("rate", rate.String()),
				)
			}),
		)
	}
	return finance.NewRateTable(p.base, rates, opts...), nil
}

var _ appfinance.ConverterProvider = (*RateProvider)(nil)
