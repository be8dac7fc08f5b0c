package handler

import (
	"context"
	"fmt"
	"net/http"

	appfinance "github.com/erp/settlement/internal/application/finance"
	"github.com/erp/settlement/internal/domain/finance"
	"github.com/erp/settlement/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// BalanceUseCases is the part of the balance service the handler drives
type BalanceUseCases interface {
	GetOverdueBalances(ctx context.Context, tenantID uuid.UUID, scope appfinance.OverdueBalanceScope) ([]appfinance.CounterpartyBalanceResponse, error)
	ExportOverdueBalances(ctx context.Context, tenantID uuid.UUID, scope appfinance.OverdueBalanceScope, archive bool) (*appfinance.ExportedReport, error)
}

// ArchiveKeyHeader reports where an exported report was archived
const ArchiveKeyHeader = "X-Archive-Key"

// BalanceHandler exposes overdue balance aggregation
type BalanceHandler struct {
	BaseHandler
	balances BalanceUseCases
}

// NewBalanceHandler creates a new BalanceHandler
func NewBalanceHandler(balances BalanceUseCases) *BalanceHandler {
	return &BalanceHandler{balances: balances}
}

// GetOverdueBalances godoc
// @Summary      Overdue and upcoming balances per counterparty
// @Tags         balances
// @Produce      json
// @Param        counterparty_kind query string false "customer or supplier"
// @Param        counterparty_id query string false "Counterparty ID"
// @Success      200 {object} dto.Response
// @Failure      422 {object} dto.Response "CURRENCY_RATE_MISSING"
// @Router       /settlement/balances/overdue [get]
func (h *BalanceHandler) GetOverdueBalances(c *gin.Context) {
	tenantID, ok := h.tenant(c)
	if !ok {
		return
	}
	scope, _, ok := h.bindScope(c)
	if !ok {
		return
	}
	result, err := h.balances.GetOverdueBalances(c.Request.Context(), tenantID, scope)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// ExportOverdueBalances godoc
// @Summary      Overdue balance report as an XLSX workbook
// @Tags         balances
// @Produce      application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param        counterparty_kind query string false "customer or supplier"
// @Param        counterparty_id query string false "Counterparty ID"
// @Param        archive query bool false "Also archive the report to object storage"
// @Success      200 {file} file
// @Router       /settlement/balances/overdue/export [get]
func (h *BalanceHandler) ExportOverdueBalances(c *gin.Context) {
	tenantID, ok := h.tenant(c)
	if !ok {
		return
	}
	scope, archive, ok := h.bindScope(c)
	if !ok {
		return
	}
	report, err := h.balances.ExportOverdueBalances(c.Request.Context(), tenantID, scope, archive)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	if report.ArchiveKey != "" {
		c.Header(ArchiveKeyHeader, report.ArchiveKey)
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", report.FileName))
	c.Data(http.StatusOK, report.ContentType, report.Body)
}

func (h *BalanceHandler) bindScope(c *gin.Context) (appfinance.OverdueBalanceScope, bool, bool) {
	var q dto.OverdueBalancesQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.BindError(c, err)
		return appfinance.OverdueBalanceScope{}, false, false
	}
	return appfinance.OverdueBalanceScope{
		CounterpartyKind: finance.CounterpartyKind(q.CounterpartyKind),
		CounterpartyID:   optionalUUID(q.CounterpartyID),
	}, q.Archive, true
}
