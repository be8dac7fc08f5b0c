package handler

import (
	"context"

	appfinance "github.com/erp/settlement/internal/application/finance"
	"github.com/erp/settlement/internal/domain/finance"
	"github.com/erp/settlement/internal/interfaces/http/dto"
	"github.com/erp/settlement/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// AllocationUseCases is the part of the allocation service the handler drives
type AllocationUseCases interface {
	AllocateManual(ctx context.Context, tenantID uuid.UUID, req appfinance.AllocateManualRequest) (*appfinance.AllocationResponse, error)
	AllocateAuto(ctx context.Context, tenantID uuid.UUID, req appfinance.AllocateAutoRequest) (*appfinance.AutoAllocationResult, error)
	RemoveAllocation(ctx context.Context, tenantID, allocationID uuid.UUID) error
	GetObligationStatus(ctx context.Context, tenantID uuid.UUID, key finance.ObligationKey) (*appfinance.ObligationStatusResponse, error)
	GetObligationStatuses(ctx context.Context, tenantID uuid.UUID, obligationType finance.ObligationType, ids []uuid.UUID) ([]appfinance.ObligationStatusResponse, error)
	GetPaymentAllocations(ctx context.Context, tenantID, paymentID uuid.UUID) (*appfinance.PaymentAllocationsResponse, error)
}

// AllocationHandler exposes payment allocation and obligation status
type AllocationHandler struct {
	BaseHandler
	allocations AllocationUseCases
}

// NewAllocationHandler creates a new AllocationHandler
func NewAllocationHandler(allocations AllocationUseCases) *AllocationHandler {
	return &AllocationHandler{allocations: allocations}
}

// AllocateManual godoc
// @Summary      Allocate part of a payment to one obligation
// @Tags         allocations
// @Accept       json
// @Produce      json
// @Param        request body dto.AllocateManualRequest true "Allocation"
// @Success      201 {object} dto.Response
// @Failure      404 {object} dto.Response
// @Failure      409 {object} dto.Response
// @Failure      422 {object} dto.Response
// @Router       /settlement/allocations [post]
func (h *AllocationHandler) AllocateManual(c *gin.Context) {
	tenantID, ok := h.tenant(c)
	if !ok {
		return
	}
	var req dto.AllocateManualRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}
	obligationType, err := finance.ParseObligationType(req.ObligationType)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if err := finance.ValidateAllocationAmount(req.Amount); err != nil {
		h.HandleError(c, err)
		return
	}

	result, err := h.allocations.AllocateManual(c.Request.Context(), tenantID, appfinance.AllocateManualRequest{
		PaymentID:      uuid.MustParse(req.PaymentID),
		ObligationID:   uuid.MustParse(req.ObligationID),
		ObligationType: obligationType,
		Amount:         req.Amount,
		Notes:          req.Notes,
		CreatedBy:      middleware.GetUserID(c),
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, result)
}

// AllocateAuto godoc
// @Summary      Distribute a payment over open obligations, earliest due first
// @Tags         allocations
// @Accept       json
// @Produce      json
// @Param        request body dto.AllocateAutoRequest true "Auto allocation"
// @Success      200 {object} dto.Response
// @Router       /settlement/allocations/auto [post]
func (h *AllocationHandler) AllocateAuto(c *gin.Context) {
	tenantID, ok := h.tenant(c)
	if !ok {
		return
	}
	var req dto.AllocateAutoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	input := appfinance.AllocateAutoRequest{
		PaymentID:      uuid.MustParse(req.PaymentID),
		CounterpartyID: optionalUUID(req.CounterpartyID),
		CreatedBy:      middleware.GetUserID(c),
	}
	if req.ObligationType != "" {
		obligationType, err := finance.ParseObligationType(req.ObligationType)
		if err != nil {
			h.HandleError(c, err)
			return
		}
		input.ObligationType = &obligationType
	}

	result, err := h.allocations.AllocateAuto(c.Request.Context(), tenantID, input)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// RemoveAllocation godoc
// @Summary      Delete an allocation, releasing payment and obligation capacity
// @Tags         allocations
// @Param        id path string true "Allocation ID"
// @Success      204
// @Failure      404 {object} dto.Response
// @Router       /settlement/allocations/{id} [delete]
func (h *AllocationHandler) RemoveAllocation(c *gin.Context) {
	tenantID, ok := h.tenant(c)
	if !ok {
		return
	}
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	if err := h.allocations.RemoveAllocation(c.Request.Context(), tenantID, id); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}

// GetPaymentAllocations godoc
// @Summary      Payment amount, allocated and available capacity
// @Tags         allocations
// @Produce      json
// @Param        id path string true "Payment ID"
// @Success      200 {object} dto.Response
// @Router       /settlement/payments/{id}/allocations [get]
func (h *AllocationHandler) GetPaymentAllocations(c *gin.Context) {
	tenantID, ok := h.tenant(c)
	if !ok {
		return
	}
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	result, err := h.allocations.GetPaymentAllocations(c.Request.Context(), tenantID, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// GetObligationStatus godoc
// @Summary      Settlement status of one obligation
// @Tags         obligations
// @Produce      json
// @Param        type path string true "sales or purchase"
// @Param        id path string true "Obligation ID"
// @Success      200 {object} dto.Response
// @Router       /settlement/obligations/{type}/{id}/status [get]
func (h *AllocationHandler) GetObligationStatus(c *gin.Context) {
	tenantID, ok := h.tenant(c)
	if !ok {
		return
	}
	obligationType, err := finance.ParseObligationType(c.Param("type"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	result, err := h.allocations.GetObligationStatus(c.Request.Context(), tenantID,
		finance.ObligationKey{ID: id, Type: obligationType})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// GetObligationStatuses godoc
// @Summary      Settlement status of many obligations of one type
// @Tags         obligations
// @Accept       json
// @Produce      json
// @Param        type path string true "sales or purchase"
// @Param        request body dto.ObligationStatusesRequest true "Obligation IDs"
// @Success      200 {object} dto.Response
// @Router       /settlement/obligations/{type}/status [post]
func (h *AllocationHandler) GetObligationStatuses(c *gin.Context) {
	tenantID, ok := h.tenant(c)
	if !ok {
		return
	}
	obligationType, err := finance.ParseObligationType(c.Param("type"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	var req dto.ObligationStatusesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}
	ids := make([]uuid.UUID, len(req.IDs))
	for i, raw := range req.IDs {
		ids[i] = uuid.MustParse(raw)
	}

	result, err := h.allocations.GetObligationStatuses(c.Request.Context(), tenantID, obligationType, ids)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}
