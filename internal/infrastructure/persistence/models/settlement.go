package models

import (
	"time"

	"github.com/erp/settlement/internal/domain/finance"
	"github.com/erp/settlement/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentModel maps the payments table. Exactly one of CustomerID and
// SupplierID is set, which determines the counterparty kind.
type PaymentModel struct {
	TenantModel
	Amount               decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	Currency             string          `gorm:"type:varchar(3);not null"`
	CustomerID           *uuid.UUID      `gorm:"type:uuid;index"`
	SupplierID           *uuid.UUID      `gorm:"type:uuid;index"`
	PaymentDate          time.Time       `gorm:"type:date;not null"`
	AccountTransactionID *uuid.UUID      `gorm:"type:uuid"`
}

func (PaymentModel) TableName() string {
	return "payments"
}

// ToDomain converts the row into a Payment with Allocated left at zero.
func (m *PaymentModel) ToDomain() *finance.Payment {
	p := &finance.Payment{
		ID:                   m.ID,
		TenantID:             m.TenantID,
		Amount:               m.Amount,
		Currency:             valueobject.NormalizeCurrency(m.Currency),
		PaymentDate:          m.PaymentDate,
		AccountTransactionID: m.AccountTransactionID,
		Allocated:            decimal.Zero,
	}
	switch {
	case m.SupplierID != nil:
		p.CounterpartyKind = finance.CounterpartyKindSupplier
		p.CounterpartyID = *m.SupplierID
	case m.CustomerID != nil:
		p.CounterpartyKind = finance.CounterpartyKindCustomer
		p.CounterpartyID = *m.CustomerID
	}
	return p
}

// FromDomain populates the row from a Payment.
func (m *PaymentModel) FromDomain(p *finance.Payment) {
	m.ID = p.ID
	m.TenantID = p.TenantID
	m.Amount = p.Amount
	m.Currency = string(p.Currency)
	m.PaymentDate = p.PaymentDate
	m.AccountTransactionID = p.AccountTransactionID
	m.CustomerID, m.SupplierID = nil, nil
	cp := p.CounterpartyID
	if p.CounterpartyKind == finance.CounterpartyKindSupplier {
		m.SupplierID = &cp
	} else {
		m.CustomerID = &cp
	}
}

// InvoiceModel holds the columns shared by sales and purchase invoices.
type InvoiceModel struct {
	TenantModel
	InvoiceNumber string          `gorm:"type:varchar(50);not null"`
	TotalAmount   decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	Currency      string          `gorm:"type:varchar(3);not null"`
	DueDate       *time.Time      `gorm:"type:date;index"`
}

// InvoiceRow is the read shape shared by both invoice tables, with the
// customer or supplier column selected as counterparty_id.
type InvoiceRow struct {
	InvoiceModel
	CounterpartyID uuid.UUID
}

func (m *InvoiceRow) ToDomain(t finance.ObligationType) finance.Obligation {
	return finance.Obligation{
		ID:             m.ID,
		TenantID:       m.TenantID,
		Type:           t,
		Number:         m.InvoiceNumber,
		CounterpartyID: m.CounterpartyID,
		TotalAmount:    m.TotalAmount,
		Currency:       valueobject.NormalizeCurrency(m.Currency),
		DueDate:        m.DueDate,
		CreatedAt:      m.CreatedAt,
		Allocated:      decimal.Zero,
	}
}

func (m *InvoiceModel) fromObligation(o *finance.Obligation) {
	m.ID = o.ID
	m.TenantID = o.TenantID
	m.InvoiceNumber = o.Number
	m.TotalAmount = o.TotalAmount
	m.Currency = string(o.Currency)
	m.DueDate = o.DueDate
	m.CreatedAt = o.CreatedAt
}

// SalesInvoiceModel maps sales_invoices; the counterparty is a customer.
type SalesInvoiceModel struct {
	InvoiceModel
	CustomerID uuid.UUID `gorm:"type:uuid;not null;index"`
}

func (SalesInvoiceModel) TableName() string {
	return "sales_invoices"
}

func (m *SalesInvoiceModel) FromDomain(o *finance.Obligation) {
	m.fromObligation(o)
	m.CustomerID = o.CounterpartyID
}

// PurchaseInvoiceModel maps purchase_invoices; the counterparty is a supplier.
type PurchaseInvoiceModel struct {
	InvoiceModel
	SupplierID uuid.UUID `gorm:"type:uuid;not null;index"`
}

func (PurchaseInvoiceModel) TableName() string {
	return "purchase_invoices"
}

func (m *PurchaseInvoiceModel) FromDomain(o *finance.Obligation) {
	m.fromObligation(o)
	m.SupplierID = o.CounterpartyID
}

// AllocationModel maps invoice_payment_allocations.
type AllocationModel struct {
	TenantModel
	PaymentID       uuid.UUID              `gorm:"type:uuid;not null;index"`
	InvoiceID       uuid.UUID              `gorm:"type:uuid;not null;index:idx_allocation_invoice,priority:1"`
	InvoiceType     finance.ObligationType `gorm:"type:varchar(20);not null;index:idx_allocation_invoice,priority:2"`
	AllocatedAmount decimal.Decimal        `gorm:"type:decimal(18,4);not null"`
	AllocationType  finance.AllocationType `gorm:"type:varchar(10);not null"`
	AllocationDate  time.Time              `gorm:"not null"`
	Notes           string                 `gorm:"type:text"`
	CreatedBy       *uuid.UUID             `gorm:"type:uuid"`
}

func (AllocationModel) TableName() string {
	return "invoice_payment_allocations"
}

func (m *AllocationModel) ToDomain() *finance.Allocation {
	return &finance.Allocation{
		TenantAggregateRoot: m.toTenantAggregateRoot(m.CreatedBy),
		PaymentID:           m.PaymentID,
		ObligationID:        m.InvoiceID,
		ObligationType:      m.InvoiceType,
		Amount:              m.AllocatedAmount,
		AllocationType:      m.AllocationType,
		AllocationDate:      m.AllocationDate,
		Notes:               m.Notes,
	}
}

func (m *AllocationModel) FromDomain(a *finance.Allocation) {
	m.FromDomainTenantAggregateRoot(a.TenantAggregateRoot)
	m.PaymentID = a.PaymentID
	m.InvoiceID = a.ObligationID
	m.InvoiceType = a.ObligationType
	m.AllocatedAmount = a.Amount
	m.AllocationType = a.AllocationType
	m.AllocationDate = a.AllocationDate
	m.Notes = a.Notes
	m.CreatedBy = a.CreatedBy
}
