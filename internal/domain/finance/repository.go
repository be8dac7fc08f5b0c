package finance

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Lookups return (nil, nil) when the record does not exist for the tenant.

// PaymentRepository reads payments together with their allocated sums
type PaymentRepository interface {
	// FindByID loads a payment with Allocated filled from committed allocations
	FindByID(ctx context.Context, tenantID, id uuid.UUID) (*Payment, error)
	// FindByIDForUpdate row-locks the payment before summing its allocations
	FindByIDForUpdate(ctx context.Context, tenantID, id uuid.UUID) (*Payment, error)
}

// ObligationRepository is the obligation ledger reader
type ObligationRepository interface {
	// FindByKey loads one obligation with Allocated filled
	FindByKey(ctx context.Context, tenantID uuid.UUID, key ObligationKey) (*Obligation, error)
	// FindByKeyForUpdate row-locks the obligation before summing its allocations
	FindByKeyForUpdate(ctx context.Context, tenantID uuid.UUID, key ObligationKey) (*Obligation, error)
	// FindByIDs loads many obligations of one type; missing ids are omitted
	FindByIDs(ctx context.Context, tenantID uuid.UUID, obligationType ObligationType, ids []uuid.UUID) ([]Obligation, error)
	// ListOpen returns obligations with a positive remaining amount,
	// ordered by due date ascending (nulls last), then creation time, then id
	ListOpen(ctx context.Context, tenantID uuid.UUID, filter OpenObligationFilter) ([]Obligation, error)
	// ListOpenForUpdate is ListOpen with every returned row locked in the same order
	ListOpenForUpdate(ctx context.Context, tenantID uuid.UUID, filter OpenObligationFilter) ([]Obligation, error)
	// ListTenantsWithOpenObligations returns tenants that have any open dated obligation
	ListTenantsWithOpenObligations(ctx context.Context) ([]uuid.UUID, error)
}

// AllocationRepository persists allocation rows
type AllocationRepository interface {
	Create(ctx context.Context, allocation *Allocation) error
	FindByID(ctx context.Context, tenantID, id uuid.UUID) (*Allocation, error)
	// Delete removes the allocation; it reports whether a row was deleted
	Delete(ctx context.Context, tenantID, id uuid.UUID) (bool, error)
	ListByPayment(ctx context.Context, tenantID, paymentID uuid.UUID) ([]Allocation, error)
	ListByObligation(ctx context.Context, tenantID uuid.UUID, key ObligationKey) ([]Allocation, error)
	SumByPayment(ctx context.Context, tenantID, paymentID uuid.UUID) (decimal.Decimal, error)
	SumByObligation(ctx context.Context, tenantID uuid.UUID, key ObligationKey) (decimal.Decimal, error)
}

// LoanRepository reads loans and their repayments
type LoanRepository interface {
	FindByID(ctx context.Context, tenantID, id uuid.UUID) (*Loan, error)
	ListPayments(ctx context.Context, tenantID, loanID uuid.UUID) ([]LoanPayment, error)
}

// ExchangeRateRepository reads the latest rate per currency
type ExchangeRateRepository interface {
	LatestRates(ctx context.Context, tenantID uuid.UUID) ([]ExchangeRate, error)
}
