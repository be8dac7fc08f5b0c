package finance

import (
	"context"

	"github.com/erp/settlement/internal/domain/finance"
)

// TransactionScope provides transactional access to the settlement repositories.
// All repository operations inside fn share one database transaction and are
// committed or rolled back atomically.
type TransactionScope interface {
	// Execute runs fn within a database transaction.
	// If fn returns an error, the transaction is rolled back.
	Execute(ctx context.Context, fn func(repos TransactionalRepositories) error) error
}

// TransactionalRepositories provides access to repositories bound to the current transaction.
//
// Allocation writes must lock the payment row first and the obligation rows
// second, in FIFO order, so concurrent writers acquire locks in the same order.
type TransactionalRepositories interface {
	Payments() finance.PaymentRepository
	Obligations() finance.ObligationRepository
	Allocations() finance.AllocationRepository
}
