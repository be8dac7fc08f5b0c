package finance

import (
	"sort"
	"time"

	"github.com/erp/settlement/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Loan holds the terms an installment schedule is derived from
type Loan struct {
	ID                uuid.UUID
	TenantID          uuid.UUID
	Name              string
	Bank              string
	Principal         decimal.Decimal
	InstallmentAmount decimal.Decimal
	InstallmentCount  int
	StartDate         time.Time
	EndDate           *time.Time
	InterestRate      decimal.Decimal
	Currency          valueobject.Currency
}

// EffectiveInstallmentCount returns InstallmentCount, or the whole months
// between start and end date when no count was stored (minimum 1).
func (l *Loan) EffectiveInstallmentCount() int {
	if l.InstallmentCount > 0 {
		return l.InstallmentCount
	}
	if l.EndDate == nil {
		return 1
	}
	months := (l.EndDate.Year()-l.StartDate.Year())*12 + int(l.EndDate.Month()) - int(l.StartDate.Month())
	if months <= 0 {
		return 1
	}
	return months
}

// Validate checks the terms needed to project a schedule
func (l *Loan) Validate() error {
	if !l.InstallmentAmount.IsPositive() {
		return ErrInvalidLoan.WithMessage("Installment amount must be positive")
	}
	if l.StartDate.IsZero() {
		return ErrInvalidLoan.WithMessage("Loan start date is required")
	}
	if l.InstallmentCount < 0 {
		return ErrInvalidLoan.WithMessage("Installment count cannot be negative")
	}
	return nil
}

// LoanPayment is a repayment made against a loan
type LoanPayment struct {
	ID     uuid.UUID
	LoanID uuid.UUID
	Amount decimal.Decimal
	Date   time.Time
}

// Installment is a derived, never persisted, schedule entry
type Installment struct {
	Number     int
	DueDate    time.Time
	Amount     decimal.Decimal
	PaidAmount decimal.Decimal
	Status     PaymentStatus
	PaymentID  *uuid.UUID
	PaidDate   *time.Time
}

// Remaining returns the unpaid part of the installment
func (i *Installment) Remaining() decimal.Decimal {
	return i.Amount.Sub(i.PaidAmount)
}

// IsPaid reports whether the installment is fully paid
func (i *Installment) IsPaid() bool {
	return i.Status == PaymentStatusPaid
}

// ProjectInstallments derives the schedule for loan and replays payments against it.
// It also returns the part of the payments the schedule could not absorb.
//
// Payments are applied in date order. A payment retires installments in number
// order while it covers the whole remaining amount; the first installment it
// cannot fully retire receives the rest and the payment stops there.
func ProjectInstallments(loan Loan, payments []LoanPayment) ([]Installment, decimal.Decimal) {
	count := loan.EffectiveInstallmentCount()
	schedule := make([]Installment, count)
	for i := 0; i < count; i++ {
		schedule[i] = Installment{
			Number:     i + 1,
			DueDate:    AddMonthsClamped(loan.StartDate, i),
			Amount:     loan.InstallmentAmount,
			PaidAmount: decimal.Zero,
			Status:     PaymentStatusUnpaid,
		}
	}

	ordered := make([]LoanPayment, len(payments))
	copy(ordered, payments)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Date.Before(ordered[j].Date)
	})

	leftover := decimal.Zero
	for _, p := range ordered {
		remainder := p.Amount
		if !remainder.IsPositive() {
			continue
		}
		for i := range schedule {
			if !remainder.IsPositive() {
				break
			}
			inst := &schedule[i]
			if inst.IsPaid() {
				continue
			}
			paymentID, paidDate := p.ID, p.Date
			inst.PaymentID = &paymentID
			inst.PaidDate = &paidDate

			due := inst.Remaining()
			if remainder.GreaterThanOrEqual(due) {
				inst.PaidAmount = inst.Amount
				inst.Status = PaymentStatusPaid
				remainder = remainder.Sub(due)
				continue
			}
			inst.PaidAmount = inst.PaidAmount.Add(remainder)
			inst.Status = PaymentStatusPartiallyPaid
			remainder = decimal.Zero
		}
		leftover = leftover.Add(remainder)
	}
	return schedule, leftover
}

// LoanProjection is the projected schedule plus summary figures
type LoanProjection struct {
	Loan                Loan
	Installments        []Installment
	TotalScheduled      decimal.Decimal
	TotalPaid           decimal.Decimal
	RemainingDebt       decimal.Decimal
	LeftoverPayment     decimal.Decimal
	NextDueInstallment  *Installment
	OverdueInstallments int
}

// ProjectLoan projects the schedule and summarizes it as of today
func ProjectLoan(loan Loan, payments []LoanPayment, today time.Time) LoanProjection {
	schedule, leftover := ProjectInstallments(loan, payments)
	todayDate := DateOf(today)

	proj := LoanProjection{
		Loan:            loan,
		Installments:    schedule,
		TotalScheduled:  decimal.Zero,
		TotalPaid:       decimal.Zero,
		LeftoverPayment: leftover,
	}
	for i := range schedule {
		inst := &schedule[i]
		proj.TotalScheduled = proj.TotalScheduled.Add(inst.Amount)
		proj.TotalPaid = proj.TotalPaid.Add(inst.PaidAmount)
		if inst.IsPaid() {
			continue
		}
		if proj.NextDueInstallment == nil {
			next := *inst
			proj.NextDueInstallment = &next
		}
		if DateOf(inst.DueDate).Before(todayDate) {
			proj.OverdueInstallments++
		}
	}
	proj.RemainingDebt = proj.TotalScheduled.Sub(proj.TotalPaid)
	return proj
}

// AddMonthsClamped adds months to t, clamping the day to the target month's
// last day (Jan 31 + 1 month is Feb 28/29).
func AddMonthsClamped(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(months), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	lastDay := first.AddDate(0, 1, -1).Day()
	if d > lastDay {
		d = lastDay
	}
	return time.Date(first.Year(), first.Month(), d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}
