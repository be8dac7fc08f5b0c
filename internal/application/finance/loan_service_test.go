package finance

import (
	"context"
	"testing"
	"time"

	"github.com/erp/settlement/internal/domain/finance"
	"github.com/erp/settlement/internal/domain/shared"
	"github.com/erp/settlement/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoanService_ProjectLoan(t *testing.T) {
	store := newMemStore()
	tenantID := uuid.New()
	loan := finance.Loan{
		ID:                uuid.New(),
		TenantID:          tenantID,
		Name:              "Equipment loan",
		Bank:              "Ziraat",
		Principal:         dec("300"),
		InstallmentAmount: dec("100"),
		InstallmentCount:  3,
		StartDate:         time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC),
		Currency:          valueobject.TRY,
	}
	store.loans[loan.ID] = loan
	store.loanPays[loan.ID] = []finance.LoanPayment{
		{ID: uuid.New(), LoanID: loan.ID, Amount: dec("250"), Date: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)},
	}

	svc := NewLoanService(memLoans{store}, nil)
	svc.SetClock(func() time.Time { return time.Date(2024, 4, 15, 0, 0, 0, 0, time.UTC) })

	proj, err := svc.ProjectLoan(context.Background(), tenantID, loan.ID)
	require.NoError(t, err)
	require.Len(t, proj.Installments, 3)

	assert.Equal(t, "paid", proj.Installments[0].Status)
	assert.Equal(t, "paid", proj.Installments[1].Status)
	assert.Equal(t, "partially_paid", proj.Installments[2].Status)
	assert.True(t, proj.Installments[2].PaidAmount.Equal(dec("50")))
	assert.Equal(t, "2024-02-29", proj.Installments[1].DueDate.Format("2006-01-02"))
	assert.Equal(t, "2024-03-31", proj.Installments[2].DueDate.Format("2006-01-02"))

	assert.True(t, proj.TotalPaid.Equal(dec("250")))
	assert.True(t, proj.RemainingDebt.Equal(dec("50")))
	assert.True(t, proj.LeftoverPayment.IsZero())
	require.NotNil(t, proj.NextDueInstallment)
	assert.Equal(t, 3, proj.NextDueInstallment.Number)
	assert.Equal(t, 1, proj.OverdueInstallments)

	_, err = svc.ProjectLoan(context.Background(), tenantID, uuid.New())
	requireDomainCode(t, err, finance.CodeLoanNotFound)

	_, err = svc.ProjectLoan(context.Background(), uuid.New(), loan.ID)
	requireDomainCode(t, err, finance.CodeLoanNotFound)
}

func TestLoanService_ProjectInstallments(t *testing.T) {
	svc := NewLoanService(memLoans{newMemStore()}, nil)
	start := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

	t.Run("single small payment stays on the first installment", func(t *testing.T) {
		proj, err := svc.ProjectInstallments(context.Background(), ProjectInstallmentsRequest{
			Loan: LoanTerms{InstallmentAmount: dec("100"), InstallmentCount: 3, StartDate: start, Currency: "usd"},
			Payments: []LoanPaymentInput{
				{ID: uuid.New(), Amount: dec("50"), Date: start},
			},
		})
		require.NoError(t, err)
		assert.Equal(t, "USD", proj.Currency)
		assert.Equal(t, "partially_paid", proj.Installments[0].Status)
		assert.Equal(t, "unpaid", proj.Installments[1].Status)
		assert.Equal(t, "unpaid", proj.Installments[2].Status)
	})

	t.Run("count derived from end date", func(t *testing.T) {
		end := time.Date(2024, 7, 15, 0, 0, 0, 0, time.UTC)
		proj, err := svc.ProjectInstallments(context.Background(), ProjectInstallmentsRequest{
			Loan: LoanTerms{InstallmentAmount: dec("10"), StartDate: start, EndDate: &end},
		})
		require.NoError(t, err)
		assert.Equal(t, 6, proj.InstallmentCount)
		assert.Equal(t, "TRY", proj.Currency)
	})

	t.Run("invalid terms", func(t *testing.T) {
		_, err := svc.ProjectInstallments(context.Background(), ProjectInstallmentsRequest{
			Loan: LoanTerms{InstallmentAmount: dec("0"), InstallmentCount: 3, StartDate: start},
		})
		requireDomainCode(t, err, finance.CodeInvalidLoan)
	})

	t.Run("invalid currency", func(t *testing.T) {
		_, err := svc.ProjectInstallments(context.Background(), ProjectInstallmentsRequest{
			Loan: LoanTerms{InstallmentAmount: dec("10"), InstallmentCount: 1, StartDate: start, Currency: "XX1"},
		})
		requireDomainCode(t, err, shared.ErrInvalidInput.Code)
	})
}
