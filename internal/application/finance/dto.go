package finance

import (
	"time"

	"github.com/erp/settlement/internal/domain/finance"
	"github.com/erp/settlement/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ===================== Allocation =====================

// AllocateManualRequest allocates part of a payment to one obligation
type AllocateManualRequest struct {
	PaymentID      uuid.UUID
	ObligationID   uuid.UUID
	ObligationType finance.ObligationType
	Amount         decimal.Decimal
	Notes          string
	CreatedBy      *uuid.UUID
}

// AllocateAutoRequest distributes a payment over a counterparty's open obligations
type AllocateAutoRequest struct {
	PaymentID uuid.UUID
	// CounterpartyID defaults to the payment's own counterparty
	CounterpartyID *uuid.UUID
	// ObligationType restricts the walk to one variant
	ObligationType *finance.ObligationType
	CreatedBy      *uuid.UUID
}

// AllocationResponse represents an allocation in API responses
type AllocationResponse struct {
	ID             uuid.UUID       `json:"id"`
	PaymentID      uuid.UUID       `json:"payment_id"`
	ObligationID   uuid.UUID       `json:"obligation_id"`
	ObligationType string          `json:"obligation_type"`
	Amount         decimal.Decimal `json:"allocated_amount"`
	AllocationType string          `json:"allocation_type"`
	AllocationDate time.Time       `json:"allocation_date"`
	Notes          string          `json:"notes,omitempty"`
	CreatedBy      *uuid.UUID      `json:"created_by,omitempty"`
}

// AutoAllocationResult is the outcome of an automatic allocation walk
type AutoAllocationResult struct {
	AllocationsCreated   []AllocationResponse `json:"allocations_created"`
	TotalAllocated       decimal.Decimal      `json:"total_allocated"`
	RemainingUnallocated decimal.Decimal      `json:"remaining_unallocated"`
	FullyAllocated       bool                 `json:"fully_allocated"`
	Message              string               `json:"message,omitempty"`
}

// ObligationStatusResponse is the derived settlement state of one obligation
type ObligationStatusResponse struct {
	ObligationID   uuid.UUID            `json:"obligation_id"`
	ObligationType string               `json:"obligation_type"`
	Number         string               `json:"number,omitempty"`
	CounterpartyID uuid.UUID            `json:"counterparty_id"`
	Currency       string               `json:"currency"`
	DueDate        *time.Time           `json:"due_date,omitempty"`
	Total          decimal.Decimal      `json:"total"`
	Allocated      decimal.Decimal      `json:"allocated"`
	Remaining      decimal.Decimal      `json:"remaining"`
	Status         string               `json:"status"`
	Allocations    []AllocationResponse `json:"allocations"`
}

// PaymentAllocationsResponse summarizes how a payment has been applied
type PaymentAllocationsResponse struct {
	PaymentID        uuid.UUID            `json:"payment_id"`
	CounterpartyKind string               `json:"counterparty_kind"`
	CounterpartyID   uuid.UUID            `json:"counterparty_id"`
	Currency         string               `json:"currency"`
	Amount           decimal.Decimal      `json:"amount"`
	Allocated        decimal.Decimal      `json:"allocated"`
	Available        decimal.Decimal      `json:"available"`
	Allocations      []AllocationResponse `json:"allocations"`
}

// ===================== Balances =====================

// OverdueBalanceScope selects which counterparties to aggregate
type OverdueBalanceScope struct {
	// CounterpartyKind restricts the report to customers or suppliers; empty means both
	CounterpartyKind finance.CounterpartyKind
	CounterpartyID   *uuid.UUID
}

// CounterpartyBalanceResponse is one row of the overdue balance report
type CounterpartyBalanceResponse struct {
	CounterpartyKind  string          `json:"counterparty_kind"`
	CounterpartyID    uuid.UUID       `json:"counterparty_id"`
	OverdueBalance    decimal.Decimal `json:"overdue_balance"`
	UpcomingBalance   decimal.Decimal `json:"upcoming_balance"`
	TotalBalance      decimal.Decimal `json:"total_balance"`
	OldestOverdueDate *time.Time      `json:"oldest_overdue_date,omitempty"`
	OverdueCount      int             `json:"overdue_count"`
	UpcomingCount     int             `json:"upcoming_count"`
	Currency          string          `json:"currency"`
}

// ExportedReport is a rendered overdue report
type ExportedReport struct {
	FileName    string
	ContentType string
	Body        []byte
	// ArchiveKey is set when the report was also archived
	ArchiveKey string
}

// ===================== Loans =====================

// LoanTerms describes a loan supplied by the caller for an ad-hoc projection
type LoanTerms struct {
	ID                uuid.UUID
	InstallmentAmount decimal.Decimal
	InstallmentCount  int
	StartDate         time.Time
	EndDate           *time.Time
	Currency          string
}

// LoanPaymentInput is a repayment supplied for an ad-hoc projection
type LoanPaymentInput struct {
	ID     uuid.UUID
	Amount decimal.Decimal
	Date   time.Time
}

// ProjectInstallmentsRequest projects a schedule without touching storage
type ProjectInstallmentsRequest struct {
	Loan     LoanTerms
	Payments []LoanPaymentInput
}

// InstallmentResponse is one derived installment
type InstallmentResponse struct {
	Number     int             `json:"number"`
	DueDate    time.Time       `json:"due_date"`
	Amount     decimal.Decimal `json:"amount"`
	PaidAmount decimal.Decimal `json:"paid_amount"`
	Remaining  decimal.Decimal `json:"remaining"`
	Status     string          `json:"status"`
	IsPaid     bool            `json:"is_paid"`
	PaymentID  *uuid.UUID      `json:"payment_id,omitempty"`
	PaidDate   *time.Time      `json:"paid_date,omitempty"`
}

// LoanProjectionResponse is a loan's projected schedule and summary
type LoanProjectionResponse struct {
	LoanID              uuid.UUID             `json:"loan_id"`
	Name                string                `json:"name,omitempty"`
	Bank                string                `json:"bank,omitempty"`
	Currency            string                `json:"currency"`
	InstallmentCount    int                   `json:"installment_count"`
	Installments        []InstallmentResponse `json:"installments"`
	TotalScheduled      decimal.Decimal       `json:"total_scheduled"`
	TotalPaid           decimal.Decimal       `json:"total_paid"`
	RemainingDebt       decimal.Decimal       `json:"remaining_debt"`
	LeftoverPayment     decimal.Decimal       `json:"leftover_payment"`
	NextDueInstallment  *InstallmentResponse  `json:"next_due_installment,omitempty"`
	OverdueInstallments int                   `json:"overdue_installments"`
}

// ===================== Converters =====================

// ToAllocationResponse converts a domain allocation
func ToAllocationResponse(a *finance.Allocation) AllocationResponse {
	return AllocationResponse{
		ID:             a.ID,
		PaymentID:      a.PaymentID,
		ObligationID:   a.ObligationID,
		ObligationType: a.ObligationType.String(),
		Amount:         a.Amount,
		AllocationType: a.AllocationType.String(),
		AllocationDate: a.AllocationDate,
		Notes:          a.Notes,
		CreatedBy:      a.CreatedBy,
	}
}

func toAllocationResponses(allocations []finance.Allocation) []AllocationResponse {
	out := make([]AllocationResponse, len(allocations))
	for i := range allocations {
		out[i] = ToAllocationResponse(&allocations[i])
	}
	return out
}

func toObligationStatus(o *finance.Obligation, allocations []finance.Allocation) ObligationStatusResponse {
	view := *o
	view.Allocated = finance.SumAllocations(allocations)
	return ObligationStatusResponse{
		ObligationID:   o.ID,
		ObligationType: o.Type.String(),
		Number:         o.Number,
		CounterpartyID: o.CounterpartyID,
		Currency:       o.Currency.String(),
		DueDate:        o.DueDate,
		Total:          o.TotalAmount,
		Allocated:      view.Allocated,
		Remaining:      view.Remaining(),
		Status:         view.Status().String(),
		Allocations:    toAllocationResponses(allocations),
	}
}

// ToCounterpartyBalanceResponses converts aggregated balances
func ToCounterpartyBalanceResponses(balances []finance.CounterpartyBalance) []CounterpartyBalanceResponse {
	out := make([]CounterpartyBalanceResponse, len(balances))
	for i, b := range balances {
		out[i] = CounterpartyBalanceResponse{
			CounterpartyKind:  string(b.CounterpartyKind),
			CounterpartyID:    b.CounterpartyID,
			OverdueBalance:    b.OverdueBalance,
			UpcomingBalance:   b.UpcomingBalance,
			TotalBalance:      b.TotalBalance,
			OldestOverdueDate: b.OldestOverdueDate,
			OverdueCount:      b.OverdueCount,
			UpcomingCount:     b.UpcomingCount,
			Currency:          b.Currency.String(),
		}
	}
	return out
}

func toInstallmentResponse(i finance.Installment) InstallmentResponse {
	return InstallmentResponse{
		Number:     i.Number,
		DueDate:    i.DueDate,
		Amount:     i.Amount,
		PaidAmount: i.PaidAmount,
		Remaining:  i.Remaining(),
		Status:     i.Status.String(),
		IsPaid:     i.IsPaid(),
		PaymentID:  i.PaymentID,
		PaidDate:   i.PaidDate,
	}
}

func toLoanProjectionResponse(p finance.LoanProjection) *LoanProjectionResponse {
	resp := &LoanProjectionResponse{
		LoanID:              p.Loan.ID,
		Name:                p.Loan.Name,
		Bank:                p.Loan.Bank,
		Currency:            valueobject.NormalizeCurrency(p.Loan.Currency.String()).String(),
		InstallmentCount:    len(p.Installments),
		Installments:        make([]InstallmentResponse, len(p.Installments)),
		TotalScheduled:      p.TotalScheduled,
		TotalPaid:           p.TotalPaid,
		RemainingDebt:       p.RemainingDebt,
		LeftoverPayment:     p.LeftoverPayment,
		OverdueInstallments: p.OverdueInstallments,
	}
	for i, inst := range p.Installments {
		resp.Installments[i] = toInstallmentResponse(inst)
	}
	if p.NextDueInstallment != nil {
		next := toInstallmentResponse(*p.NextDueInstallment)
		resp.NextDueInstallment = &next
	}
	return resp
}
