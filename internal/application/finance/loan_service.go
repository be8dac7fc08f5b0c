package finance

import (
	"context"
	"time"

	"github.com/erp/settlement/internal/domain/finance"
	"github.com/erp/settlement/internal/domain/shared"
	"github.com/erp/settlement/internal/domain/shared/valueobject"
	"github.com/erp/settlement/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LoanService projects loan installment schedules from stored or supplied terms
type LoanService struct {
	loans  finance.LoanRepository
	logger *zap.Logger
	now    func() time.Time
}

// NewLoanService creates a new LoanService
func NewLoanService(loans finance.LoanRepository, logger *zap.Logger) *LoanService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoanService{
		loans:  loans,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the clock used to count overdue installments
func (s *LoanService) SetClock(now func() time.Time) {
	s.now = now
}

// ProjectLoan projects a stored loan's installments against its recorded repayments
func (s *LoanService) ProjectLoan(ctx context.Context, tenantID, loanID uuid.UUID) (*LoanProjectionResponse, error) {
	var response *LoanProjectionResponse
	var operationErr error
	telemetry.WithProfilingLabels(ctx, telemetry.SettlementOperationLabels(telemetry.OperationProjectInstallments, tenantID.String()), func(c context.Context) {
		loan, err := s.loans.FindByID(c, tenantID, loanID)
		if err != nil {
			operationErr = err
			return
		}
		if loan == nil {
			operationErr = finance.NewLoanNotFoundError(loanID)
			return
		}
		if err := loan.Validate(); err != nil {
			operationErr = err
			return
		}
		payments, err := s.loans.ListPayments(c, tenantID, loanID)
		if err != nil {
			operationErr = err
			return
		}
		response = toLoanProjectionResponse(finance.ProjectLoan(*loan, payments, s.now()))
	})
	return response, operationErr
}

// ProjectInstallments projects caller-supplied terms without reading storage
func (s *LoanService) ProjectInstallments(ctx context.Context, req ProjectInstallmentsRequest) (*LoanProjectionResponse, error) {
	currency, err := valueobject.ParseCurrency(req.Loan.Currency)
	if err != nil {
		return nil, shared.ErrInvalidInput.WithMessage(err.Error())
	}
	loan := finance.Loan{
		ID:                req.Loan.ID,
		InstallmentAmount: req.Loan.InstallmentAmount,
		InstallmentCount:  req.Loan.InstallmentCount,
		StartDate:         req.Loan.StartDate,
		EndDate:           req.Loan.EndDate,
		Currency:          currency,
	}
	if err := loan.Validate(); err != nil {
		return nil, err
	}

	payments := make([]finance.LoanPayment, len(req.Payments))
	for i, p := range req.Payments {
		payments[i] = finance.LoanPayment{ID: p.ID, LoanID: loan.ID, Amount: p.Amount, Date: p.Date}
	}

	var response *LoanProjectionResponse
	telemetry.WithProfilingLabels(ctx, telemetry.OperationLabels(telemetry.OperationProjectInstallments, nil), func(context.Context) {
		response = toLoanProjectionResponse(finance.ProjectLoan(loan, payments, s.now()))
	})
	return response, nil
}
