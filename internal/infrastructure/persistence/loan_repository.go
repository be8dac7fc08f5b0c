package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/erp/settlement/internal/domain/finance"
	"github.com/erp/settlement/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormLoanRepository implements finance.LoanRepository using GORM
type GormLoanRepository struct {
	db *gorm.DB
}

// NewGormLoanRepository creates a new GormLoanRepository
func NewGormLoanRepository(db *gorm.DB) *GormLoanRepository {
	return &GormLoanRepository{db: db}
}

func (r *GormLoanRepository) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*finance.Loan, error) {
	var model models.LoanModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load loan %s: %w", id, err)
	}
	return model.ToDomain(), nil
}

// ListPayments returns repayments in date order
func (r *GormLoanRepository) ListPayments(ctx context.Context, tenantID, loanID uuid.UUID) ([]finance.LoanPayment, error) {
	var rows []models.LoanPaymentModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND loan_id = ?", tenantID, loanID).
		Order("payment_date ASC, created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list loan payments: %w", err)
	}
	out := make([]finance.LoanPayment, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out, nil
}

var _ finance.LoanRepository = (*GormLoanRepository)(nil)

// GormExchangeRateRepository implements finance.ExchangeRateRepository using GORM
type GormExchangeRateRepository struct {
	db *gorm.DB
}

// NewGormExchangeRateRepository creates a new GormExchangeRateRepository
func NewGormExchangeRateRepository(db *gorm.DB) *GormExchangeRateRepository {
	return &GormExchangeRateRepository{db: db}
}

// LatestRates returns one rate per currency from its most recent update date.
// When a currency has several rows on that date the last inserted wins.
func (r *GormExchangeRateRepository) LatestRates(ctx context.Context, tenantID uuid.UUID) ([]finance.ExchangeRate, error) {
	var rows []models.ExchangeRateModel
	err := r.db.WithContext(ctx).
		Table("exchange_rates AS r").
		Select("r.*").
		Where("r.tenant_id = ?", tenantID).
		Where(`r.update_date = (
			SELECT MAX(r2.update_date) FROM exchange_rates r2
			WHERE r2.tenant_id = r.tenant_id AND r2.currency_code = r.currency_code)`).
		Order("r.currency_code ASC, r.created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load exchange rates: %w", err)
	}

	out := make([]finance.ExchangeRate, 0, len(rows))
	seen := make(map[string]bool, len(rows))
	for i := range rows {
		rate := rows[i].ToDomain()
		if seen[string(rate.Currency)] {
			continue
		}
		seen[string(rate.Currency)] = true
		out = append(out, rate)
	}
	return out, nil
}

var _ finance.ExchangeRateRepository = (*GormExchangeRateRepository)(nil)
