package models

import (
	"time"

	"github.com/erp/settlement/internal/domain/finance"
	"github.com/erp/settlement/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LoanModel maps the loans table.
type LoanModel struct {
	TenantModel
	LoanName          string          `gorm:"type:varchar(200);not null"`
	Bank              string          `gorm:"type:varchar(200)"`
	Principal         decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	InstallmentAmount decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	InstallmentCount  int             `gorm:"not null;default:0"`
	StartDate         time.Time       `gorm:"type:date;not null"`
	EndDate           *time.Time      `gorm:"type:date"`
	InterestRate      decimal.Decimal `gorm:"type:decimal(9,4);not null;default:0"`
	Currency          string          `gorm:"type:varchar(3);not null"`
}

func (LoanModel) TableName() string {
	return "loans"
}

func (m *LoanModel) ToDomain() *finance.Loan {
	return &finance.Loan{
		ID:                m.ID,
		TenantID:          m.TenantID,
		Name:              m.LoanName,
		Bank:              m.Bank,
		Principal:         m.Principal,
		InstallmentAmount: m.InstallmentAmount,
		InstallmentCount:  m.InstallmentCount,
		StartDate:         m.StartDate,
		EndDate:           m.EndDate,
		InterestRate:      m.InterestRate,
		Currency:          valueobject.NormalizeCurrency(m.Currency),
	}
}

// LoanPaymentModel maps loan_payments.
type LoanPaymentModel struct {
	TenantModel
	LoanID      uuid.UUID       `gorm:"type:uuid;not null;index"`
	Amount      decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	PaymentDate time.Time       `gorm:"type:date;not null"`
}

func (LoanPaymentModel) TableName() string {
	return "loan_payments"
}

func (m *LoanPaymentModel) ToDomain() finance.LoanPayment {
	return finance.LoanPayment{
		ID:     m.ID,
		LoanID: m.LoanID,
		Amount: m.Amount,
		Date:   m.PaymentDate,
	}
}

// ExchangeRateModel maps exchange_rates. One row per currency per day.
type ExchangeRateModel struct {
	TenantModel
	CurrencyCode    string          `gorm:"type:varchar(3);not null;index:idx_rate_currency_date,priority:1"`
	ForexSelling    decimal.Decimal `gorm:"type:decimal(18,6);not null;default:0"`
	BanknoteSelling decimal.Decimal `gorm:"type:decimal(18,6);not null;default:0"`
	UpdateDate      time.Time       `gorm:"type:date;not null;index:idx_rate_currency_date,priority:2"`
}

func (ExchangeRateModel) TableName() string {
	return "exchange_rates"
}

// ToDomain prefers the forex selling rate and falls back to the banknote
// selling rate when forex is zero.
func (m *ExchangeRateModel) ToDomain() finance.ExchangeRate {
	rate := m.ForexSelling
	if rate.IsZero() {
		rate = m.BanknoteSelling
	}
	return finance.ExchangeRate{
		Currency:  valueobject.NormalizeCurrency(m.CurrencyCode),
		Selling:   rate,
		UpdatedAt: m.UpdateDate,
	}
}
