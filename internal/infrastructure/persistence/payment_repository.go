package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/erp/settlement/internal/domain/finance"
	"github.com/erp/settlement/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormPaymentRepository implements finance.PaymentRepository using GORM
type GormPaymentRepository struct {
	db *gorm.DB
}

// NewGormPaymentRepository creates a new GormPaymentRepository
func NewGormPaymentRepository(db *gorm.DB) *GormPaymentRepository {
	return &GormPaymentRepository{db: db}
}

// FindByID loads the payment and sums its committed allocations
func (r *GormPaymentRepository) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*finance.Payment, error) {
	return r.find(ctx, tenantID, id, false)
}

// FindByIDForUpdate locks the payment row, then sums its allocations.
// Concurrent allocators against the same payment serialize on this lock.
func (r *GormPaymentRepository) FindByIDForUpdate(ctx context.Context, tenantID, id uuid.UUID) (*finance.Payment, error) {
	return r.find(ctx, tenantID, id, true)
}

func (r *GormPaymentRepository) find(ctx context.Context, tenantID, id uuid.UUID, lock bool) (*finance.Payment, error) {
	q := r.db.WithContext(ctx).Where("tenant_id = ? AND id = ?", tenantID, id)
	if lock {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var model models.PaymentModel
	if err := q.Take(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load payment %s: %w", id, translateError(err))
	}

	payment := model.ToDomain()
	allocated, err := NewGormAllocationRepository(r.db).SumByPayment(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	payment.Allocated = allocated
	return payment, nil
}

// Save inserts or replaces a payment. Payments are created upstream; this
// exists for fixtures and imports.
func (r *GormPaymentRepository) Save(ctx context.Context, payment *finance.Payment) error {
	var model models.PaymentModel
	model.FromDomain(payment)
	if err := r.db.WithContext(ctx).Save(&model).Error; err != nil {
		return fmt.Errorf("failed to save payment: %w", err)
	}
	return nil
}

var _ finance.PaymentRepository = (*GormPaymentRepository)(nil)
