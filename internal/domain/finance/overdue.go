package finance

import (
	"sort"
	"time"

	"github.com/erp/settlement/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CounterpartyBalance is the per-counterparty exposure, normalized to the base currency
type CounterpartyBalance struct {
	CounterpartyKind  CounterpartyKind
	CounterpartyID    uuid.UUID
	OverdueBalance    decimal.Decimal
	UpcomingBalance   decimal.Decimal
	TotalBalance      decimal.Decimal
	OldestOverdueDate *time.Time
	OverdueCount      int
	UpcomingCount     int
	Currency          valueobject.Currency
}

type balanceKey struct {
	kind CounterpartyKind
	id   uuid.UUID
}

// AggregateOverdueBalances rolls obligations up into per-counterparty balances.
//
// Obligations with nothing remaining or without a due date are skipped. An
// obligation is overdue when its due date falls before today's calendar date.
// Only counterparties with a positive overdue balance are returned, worst first.
func AggregateOverdueBalances(obligations []Obligation, converter CurrencyConverter, today time.Time) ([]CounterpartyBalance, error) {
	todayDate := DateOf(today)
	base := converter.Base()

	byCounterparty := make(map[balanceKey]*CounterpartyBalance)
	for i := range obligations {
		o := &obligations[i]
		if o.DueDate == nil {
			continue
		}
		remaining := o.TotalAmount.Sub(o.Allocated)
		if remaining.LessThanOrEqual(decimal.Zero) {
			continue
		}
		normalized, err := converter.Convert(remaining, o.Currency, base)
		if err != nil {
			return nil, err
		}

		key := balanceKey{kind: o.Type.CounterpartyKind(), id: o.CounterpartyID}
		b, ok := byCounterparty[key]
		if !ok {
			b = &CounterpartyBalance{
				CounterpartyKind: key.kind,
				CounterpartyID:   key.id,
				OverdueBalance:   decimal.Zero,
				UpcomingBalance:  decimal.Zero,
				Currency:         base,
			}
			byCounterparty[key] = b
		}

		due := DateOf(*o.DueDate)
		if due.Before(todayDate) {
			b.OverdueBalance = b.OverdueBalance.Add(normalized)
			b.OverdueCount++
			if b.OldestOverdueDate == nil || due.Before(*b.OldestOverdueDate) {
				d := due
				b.OldestOverdueDate = &d
			}
		} else {
			b.UpcomingBalance = b.UpcomingBalance.Add(normalized)
			b.UpcomingCount++
		}
	}

	result := make([]CounterpartyBalance, 0, len(byCounterparty))
	for _, b := range byCounterparty {
		if !b.OverdueBalance.IsPositive() {
			continue
		}
		b.TotalBalance = b.OverdueBalance.Add(b.UpcomingBalance)
		result = append(result, *b)
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].OverdueBalance.Equal(result[j].OverdueBalance) {
			return result[i].OverdueBalance.GreaterThan(result[j].OverdueBalance)
		}
		return result[i].CounterpartyID.String() < result[j].CounterpartyID.String()
	})
	return result, nil
}

// SumOverdue totals the overdue balance across counterparties
func SumOverdue(balances []CounterpartyBalance) decimal.Decimal {
	total := decimal.Zero
	for _, b := range balances {
		total = total.Add(b.OverdueBalance)
	}
	return total
}

// DateOf truncates t to its UTC calendar date
func DateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
