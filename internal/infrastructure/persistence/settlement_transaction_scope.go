package persistence

import (
	"context"
	"database/sql"

	appfinance "github.com/erp/settlement/internal/application/finance"
	"github.com/erp/settlement/internal/domain/finance"
	"gorm.io/gorm"
)

// SettlementTransactionScope implements TransactionScope using GORM transactions.
// With serializable isolation Postgres aborts one of two overlapping
// allocators; with read committed the row locks taken by the repositories
// serialize them instead. Either way the loser surfaces ALLOCATION_CONFLICT
// or waits.
type SettlementTransactionScope struct {
	db   *gorm.DB
	opts *sql.TxOptions
}

// TransactionScopeOption configures a SettlementTransactionScope
type TransactionScopeOption func(*SettlementTransactionScope)

// WithSerializableIsolation runs every transaction at SERIALIZABLE
func WithSerializableIsolation() TransactionScopeOption {
	return func(s *SettlementTransactionScope) {
		s.opts = &sql.TxOptions{Isolation: sql.LevelSerializable}
	}
}

// NewSettlementTransactionScope creates a new SettlementTransactionScope
func NewSettlementTransactionScope(db *gorm.DB, opts ...TransactionScopeOption) *SettlementTransactionScope {
	s := &SettlementTransactionScope{db: db}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Execute runs fn within a database transaction. Commit-time serialization
// failures are reported as ALLOCATION_CONFLICT.
func (s *SettlementTransactionScope) Execute(ctx context.Context, fn func(repos appfinance.TransactionalRepositories) error) error {
	var txOpts []*sql.TxOptions
	if s.opts != nil {
		txOpts = append(txOpts, s.opts)
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&settlementRepositories{tx: tx})
	}, txOpts...)
	return translateError(err)
}

type settlementRepositories struct {
	tx *gorm.DB
}

func (r *settlementRepositories) Payments() finance.PaymentRepository {
	return NewGormPaymentRepository(r.tx)
}

func (r *settlementRepositories) Obligations() finance.ObligationRepository {
	return NewGormObligationRepository(r.tx)
}

func (r *settlementRepositories) Allocations() finance.AllocationRepository {
	return NewGormAllocationRepository(r.tx)
}

var (
	_ appfinance.TransactionScope          = (*SettlementTransactionScope)(nil)
	_ appfinance.TransactionalRepositories = (*settlementRepositories)(nil)
)
