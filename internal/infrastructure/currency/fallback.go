package currency

import (
	"fmt"
	"os"
	"sort"

	"github.com/erp/settlement/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// fallbackFile is the on-disk layout of the fallback rate table:
//
//	base: TRY
//	rates:
//	  - currency: USD
//	    selling: "32.50"
type fallbackFile struct {
	Base  string         `yaml:"base"`
	Rates []fallbackRate `yaml:"rates"`
}

type fallbackRate struct {
	Currency string `yaml:"currency"`
	Selling  string `yaml:"selling"`
}

// FallbackTable holds operator-supplied rates used only when the database
// has no rate for a currency.
type FallbackTable struct {
	Base  valueobject.Currency
	Rates map[valueobject.Currency]decimal.Decimal
}

// Currencies returns the covered currency codes in sorted order
func (t *FallbackTable) Currencies() []string {
	out := make([]string, 0, len(t.Rates))
	for c := range t.Rates {
		out = append(out, c.String())
	}
	sort.Strings(out)
	return out
}

// LoadFallbackTable reads and validates the YAML table at path
func LoadFallbackTable(path string) (*FallbackTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fallback rates: %w", err)
	}
	return ParseFallbackTable(data)
}

// ParseFallbackTable decodes a YAML rate table. Every rate must be a positive
// decimal and every currency a valid ISO 4217 code; a currency listed twice
// is rejected.
func ParseFallbackTable(data []byte) (*FallbackTable, error) {
	var f fallbackFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fallback rates: %w", err)
	}

	base, err := valueobject.ParseCurrency(f.Base)
	if err != nil {
		return nil, fmt.Errorf("fallback rates base: %w", err)
	}
	table := &FallbackTable{
		Base:  base,
		Rates: make(map[valueobject.Currency]decimal.Decimal, len(f.Rates)),
	}
	for i, r := range f.Rates {
		code, err := valueobject.ParseCurrency(r.Currency)
		if err != nil || r.Currency == "" {
			return nil, fmt.Errorf("fallback rate %d: invalid currency %q", i, r.Currency)
		}
		rate, err := decimal.NewFromString(r.Selling)
		if err != nil {
			return nil, fmt.Errorf("fallback rate %s: %w", code, err)
		}
		if !rate.IsPositive() {
			return nil, fmt.Errorf("fallback rate %s must be positive, got %s", code, rate)
		}
		if _, dup := table.Rates[code]; dup {
			return nil, fmt.Errorf("fallback rate %s listed twice", code)
		}
		table.Rates[code] = rate
	}
	return table, nil
}
