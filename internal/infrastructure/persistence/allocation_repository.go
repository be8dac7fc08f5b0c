package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/erp/settlement/internal/domain/finance"
	"github.com/erp/settlement/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// GormAllocationRepository implements finance.AllocationRepository using GORM
type GormAllocationRepository struct {
	db *gorm.DB
}

// NewGormAllocationRepository creates a new GormAllocationRepository
func NewGormAllocationRepository(db *gorm.DB) *GormAllocationRepository {
	return &GormAllocationRepository{db: db}
}

// Create inserts a new allocation row
func (r *GormAllocationRepository) Create(ctx context.Context, allocation *finance.Allocation) error {
	var model models.AllocationModel
	model.FromDomain(allocation)
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return fmt.Errorf("failed to create allocation: %w", translateError(err))
	}
	return nil
}

// FindByID finds an allocation within the tenant
func (r *GormAllocationRepository) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*finance.Allocation, error) {
	var model models.AllocationModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load allocation %s: %w", id, translateError(err))
	}
	return model.ToDomain(), nil
}

// Delete removes the allocation and reports whether a row was deleted
func (r *GormAllocationRepository) Delete(ctx context.Context, tenantID, id uuid.UUID) (bool, error) {
	result := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		Delete(&models.AllocationModel{})
	if result.Error != nil {
		return false, fmt.Errorf("failed to delete allocation %s: %w", id, translateError(result.Error))
	}
	return result.RowsAffected > 0, nil
}

// ListByPayment returns a payment's allocations, oldest first
func (r *GormAllocationRepository) ListByPayment(ctx context.Context, tenantID, paymentID uuid.UUID) ([]finance.Allocation, error) {
	return r.list(ctx, r.db.Where("tenant_id = ? AND payment_id = ?", tenantID, paymentID))
}

// ListByObligation returns an obligation's allocations, oldest first
func (r *GormAllocationRepository) ListByObligation(ctx context.Context, tenantID uuid.UUID, key finance.ObligationKey) ([]finance.Allocation, error) {
	return r.list(ctx, r.db.Where("tenant_id = ? AND invoice_id = ? AND invoice_type = ?", tenantID, key.ID, key.Type))
}

func (r *GormAllocationRepository) list(ctx context.Context, q *gorm.DB) ([]finance.Allocation, error) {
	var rows []models.AllocationModel
	if err := q.WithContext(ctx).Order("allocation_date ASC, created_at ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list allocations: %w", translateError(err))
	}
	out := make([]finance.Allocation, len(rows))
	for i := range rows {
		out[i] = *rows[i].ToDomain()
	}
	return out, nil
}

// SumByPayment sums committed allocations against a payment
func (r *GormAllocationRepository) SumByPayment(ctx context.Context, tenantID, paymentID uuid.UUID) (decimal.Decimal, error) {
	return r.sum(ctx, r.db.Where("tenant_id = ? AND payment_id = ?", tenantID, paymentID))
}

// SumByObligation sums committed allocations against an obligation
func (r *GormAllocationRepository) SumByObligation(ctx context.Context, tenantID uuid.UUID, key finance.ObligationKey) (decimal.Decimal, error) {
	return r.sum(ctx, r.db.Where("tenant_id = ? AND invoice_id = ? AND invoice_type = ?", tenantID, key.ID, key.Type))
}

func (r *GormAllocationRepository) sum(ctx context.Context, q *gorm.DB) (decimal.Decimal, error) {
	var total decimal.NullDecimal
	err := q.WithContext(ctx).
		Model(&models.AllocationModel{}).
		Select("SUM(allocated_amount)").
		Row().
		Scan(&total)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum allocations: %w", translateError(err))
	}
	if !total.Valid {
		return decimal.Zero, nil
	}
	return total.Decimal, nil
}

// sumByInvoices sums allocations for many invoices of one type in one query
func (r *GormAllocationRepository) sumByInvoices(ctx context.Context, tenantID uuid.UUID, t finance.ObligationType, ids []uuid.UUID) (map[uuid.UUID]decimal.Decimal, error) {
	sums := make(map[uuid.UUID]decimal.Decimal, len(ids))
	if len(ids) == 0 {
		return sums, nil
	}
	var rows []struct {
		InvoiceID uuid.UUID
		Allocated decimal.Decimal
	}
	err := r.db.WithContext(ctx).
		Model(&models.AllocationModel{}).
		Select("invoice_id, SUM(allocated_amount) AS allocated").
		Where("tenant_id = ? AND invoice_type = ? AND invoice_id IN ?", tenantID, t, ids).
		Group("invoice_id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to sum allocations by invoice: %w", translateError(err))
	}
	for _, row := range rows {
		sums[row.InvoiceID] = row.Allocated
	}
	return sums, nil
}

var _ finance.AllocationRepository = (*GormAllocationRepository)(nil)
