package valueobject

import (
	"fmt"
	"strings"

	"golang.org/x/text/currency"
)

// Currency represents a currency code (ISO 4217)
type Currency string

// Supported currencies
const (
	TRY Currency = "TRY" // Turkish Lira (base)
	USD Currency = "USD" // US Dollar
	EUR Currency = "EUR" // Euro
	GBP Currency = "GBP" // British Pound
)

// BaseCurrency is the reference currency all cross-currency aggregates normalize into
const BaseCurrency = TRY

// ParseCurrency normalizes a raw currency code.
// Empty input resolves to BaseCurrency; codes are trimmed and uppercased
// and must be a known ISO 4217 unit.
func ParseCurrency(code string) (Currency, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return BaseCurrency, nil
	}
	unit, err := currency.ParseISO(code)
	if err != nil {
		return "", fmt.Errorf("invalid currency code %q: %w", code, err)
	}
	return Currency(unit.String()), nil
}

// NormalizeCurrency is ParseCurrency without validation, for values read
// back from storage that were validated on the way in.
func NormalizeCurrency(code string) Currency {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return BaseCurrency
	}
	return Currency(code)
}

// String returns the currency code
func (c Currency) String() string {
	return string(c)
}
