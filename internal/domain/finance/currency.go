package finance

import (
	"time"

	"github.com/erp/settlement/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// ExchangeRate is one row of the daily rate table, relative to the base currency
type ExchangeRate struct {
	Currency  valueobject.Currency
	Selling   decimal.Decimal
	UpdatedAt time.Time
}

// CurrencyConverter converts amounts between currencies
type CurrencyConverter interface {
	Base() valueobject.Currency
	Convert(amount decimal.Decimal, from, to valueobject.Currency) (decimal.Decimal, error)
}

// FallbackObserver is told whenever a rate is served from the fallback table
type FallbackObserver func(currency valueobject.Currency, rate decimal.Decimal)

// RateTable is an immutable rate snapshot implementing CurrencyConverter.
// A currency absent from both the primary and fallback tables fails with
// CurrencyRateMissing; there is no implicit rate of 1.
type RateTable struct {
	base       valueobject.Currency
	rates      map[valueobject.Currency]decimal.Decimal
	fallback   map[valueobject.Currency]decimal.Decimal
	onFallback FallbackObserver
}

// RateTableOption configures a RateTable
type RateTableOption func(*RateTable)

// WithFallbackRates supplies an explicit fallback table for currencies missing from the primary rates
func WithFallbackRates(rates map[valueobject.Currency]decimal.Decimal) RateTableOption {
	return func(t *RateTable) {
		for c, r := range rates {
			if r.IsPositive() {
				t.fallback[valueobject.NormalizeCurrency(c.String())] = r
			}
		}
	}
}

// WithFallbackObserver registers a callback invoked on every fallback lookup
func WithFallbackObserver(fn FallbackObserver) RateTableOption {
	return func(t *RateTable) {
		t.onFallback = fn
	}
}

// NewRateTable builds a rate table. Non-positive rates are ignored and the
// base currency always resolves to 1.
func NewRateTable(base valueobject.Currency, rates []ExchangeRate, opts ...RateTableOption) *RateTable {
	t := &RateTable{
		base:     valueobject.NormalizeCurrency(base.String()),
		rates:    make(map[valueobject.Currency]decimal.Decimal, len(rates)+1),
		fallback: make(map[valueobject.Currency]decimal.Decimal),
	}
	for _, r := range rates {
		if r.Selling.IsPositive() {
			t.rates[valueobject.NormalizeCurrency(r.Currency.String())] = r.Selling
		}
	}
	t.rates[t.base] = decimal.NewFromInt(1)
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Base returns the reference currency
func (t *RateTable) Base() valueobject.Currency {
	return t.base
}

// Rate returns the selling rate of currency against the base currency
func (t *RateTable) Rate(currency valueobject.Currency) (decimal.Decimal, error) {
	c := valueobject.NormalizeCurrency(currency.String())
	if r, ok := t.rates[c]; ok {
		return r, nil
	}
	if r, ok := t.fallback[c]; ok {
		if t.onFallback != nil {
			t.onFallback(c, r)
		}
		return r, nil
	}
	return decimal.Zero, NewCurrencyRateMissingError(c)
}

// Convert converts amount from one currency to another, routing through the base currency
func (t *RateTable) Convert(amount decimal.Decimal, from, to valueobject.Currency) (decimal.Decimal, error) {
	from = valueobject.NormalizeCurrency(from.String())
	to = valueobject.NormalizeCurrency(to.String())
	if from == to {
		return amount, nil
	}

	inBase := amount
	if from != t.base {
		rate, err := t.Rate(from)
		if err != nil {
			return decimal.Zero, err
		}
		inBase = amount.Mul(rate)
	}
	if to == t.base {
		return inBase, nil
	}

	rate, err := t.Rate(to)
	if err != nil {
		return decimal.Zero, err
	}
	return inBase.Div(rate), nil
}
