package dto

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// AllocateManualRequest is the body of POST /allocations
type AllocateManualRequest struct {
	PaymentID      string          `json:"payment_id" binding:"required,uuid"`
	ObligationID   string          `json:"obligation_id" binding:"required,uuid"`
	ObligationType string          `json:"obligation_type" binding:"required,oneof=sales purchase"`
	Amount         decimal.Decimal `json:"amount"`
	Notes          string          `json:"notes" binding:"max=500"`
}

// AllocateAutoRequest is the body of POST /allocations/auto
type AllocateAutoRequest struct {
	PaymentID      string `json:"payment_id" binding:"required,uuid"`
	CounterpartyID string `json:"counterparty_id" binding:"omitempty,uuid"`
	ObligationType string `json:"obligation_type" binding:"omitempty,oneof=sales purchase"`
}

// ObligationStatusesRequest is the body of POST /obligations/:type/status
type ObligationStatusesRequest struct {
	IDs []string `json:"ids" binding:"required,min=1,max=200,dive,uuid"`
}

// OverdueBalancesQuery holds the query of GET /balances/overdue[/export]
type OverdueBalancesQuery struct {
	CounterpartyKind string `form:"counterparty_kind" binding:"omitempty,oneof=customer supplier"`
	CounterpartyID   string `form:"counterparty_id" binding:"omitempty,uuid"`
	Archive          bool   `form:"archive"`
}

// ProjectInstallmentsRequest is the body of POST /loans/installments/projection
type ProjectInstallmentsRequest struct {
	Loan     LoanTermsRequest     `json:"loan"`
	Payments []LoanPaymentRequest `json:"payments" binding:"omitempty,dive"`
}

// LoanTermsRequest describes the loan to project
type LoanTermsRequest struct {
	ID                string          `json:"id" binding:"omitempty,uuid"`
	InstallmentAmount decimal.Decimal `json:"installment_amount"`
	InstallmentCount  int             `json:"installment_count" binding:"min=0,max=600"`
	StartDate         Date            `json:"start_date"`
	EndDate           *Date           `json:"end_date"`
	Currency          string          `json:"currency" binding:"omitempty,len=3,alpha"`
}

// LoanPaymentRequest is one repayment to apply
type LoanPaymentRequest struct {
	ID     string          `json:"id" binding:"omitempty,uuid"`
	Amount decimal.Decimal `json:"amount"`
	Date   Date            `json:"date"`
}

// Date accepts either a calendar date ("2024-01-31") or an RFC 3339 timestamp.
// Values are normalized to midnight UTC.
type Date struct {
	time.Time
}

const dateLayout = "2006-01-02"

// UnmarshalJSON implements json.Unmarshaler
func (d *Date) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("date must be a string: %w", err)
	}
	if s == "" {
		return nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		if t, err = time.Parse(time.RFC3339, s); err != nil {
			return fmt.Errorf("invalid date %q: expected YYYY-MM-DD", s)
		}
	}
	t = t.UTC()
	d.Time = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return nil
}

// MarshalJSON implements json.Marshaler
func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.Format(dateLayout))
}

// Ptr returns nil for a nil receiver, else the underlying time
func (d *Date) Ptr() *time.Time {
	if d == nil || d.IsZero() {
		return nil
	}
	t := d.Time
	return &t
}
