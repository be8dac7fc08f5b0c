package handler

import (
	"context"

	appfinance "github.com/erp/settlement/internal/application/finance"
	"github.com/erp/settlement/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// LoanUseCases is the part of the loan service the handler drives
type LoanUseCases interface {
	ProjectLoan(ctx context.Context, tenantID, loanID uuid.UUID) (*appfinance.LoanProjectionResponse, error)
	ProjectInstallments(ctx context.Context, req appfinance.ProjectInstallmentsRequest) (*appfinance.LoanProjectionResponse, error)
}

// LoanHandler exposes loan installment projection
type LoanHandler struct {
	BaseHandler
	loans LoanUseCases
}

// NewLoanHandler creates a new LoanHandler
func NewLoanHandler(loans LoanUseCases) *LoanHandler {
	return &LoanHandler{loans: loans}
}

// ProjectLoan godoc
// @Summary      Installment schedule of a stored loan with its payments applied
// @Tags         loans
// @Produce      json
// @Param        id path string true "Loan ID"
// @Success      200 {object} dto.Response
// @Failure      404 {object} dto.Response
// @Router       /settlement/loans/{id}/installments [get]
func (h *LoanHandler) ProjectLoan(c *gin.Context) {
	tenantID, ok := h.tenant(c)
	if !ok {
		return
	}
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	result, err := h.loans.ProjectLoan(c.Request.Context(), tenantID, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// ProjectInstallments godoc
// @Summary      Project an installment schedule from loan terms and payments in the body
// @Tags         loans
// @Accept       json
// @Produce      json
// @Param        request body dto.ProjectInstallmentsRequest true "Loan and payments"
// @Success      200 {object} dto.Response
// @Failure      400 {object} dto.Response "INVALID_LOAN"
// @Router       /settlement/loans/installments/projection [post]
func (h *LoanHandler) ProjectInstallments(c *gin.Context) {
	var req dto.ProjectInstallmentsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	loanID := uuid.Nil
	if id := optionalUUID(req.Loan.ID); id != nil {
		loanID = *id
	}
	input := appfinance.ProjectInstallmentsRequest{
		Loan: appfinance.LoanTerms{
			ID:                loanID,
			InstallmentAmount: req.Loan.InstallmentAmount,
			InstallmentCount:  req.Loan.InstallmentCount,
			StartDate:         req.Loan.StartDate.Time,
			EndDate:           req.Loan.EndDate.Ptr(),
			Currency:          req.Loan.Currency,
		},
		Payments: make([]appfinance.LoanPaymentInput, len(req.Payments)),
	}
	for i, p := range req.Payments {
		paymentID := uuid.Nil
		if id := optionalUUID(p.ID); id != nil {
			paymentID = *id
		}
		input.Payments[i] = appfinance.LoanPaymentInput{ID: paymentID, Amount: p.Amount, Date: p.Date.Time}
	}

	result, err := h.loans.ProjectInstallments(c.Request.Context(), input)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}
