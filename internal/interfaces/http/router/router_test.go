package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	appfinance "github.com/erp/settlement/internal/application/finance"
	"github.com/erp/settlement/internal/domain/finance"
	"github.com/erp/settlement/internal/infrastructure/auth"
	"github.com/erp/settlement/internal/infrastructure/config"
	"github.com/erp/settlement/internal/interfaces/http/handler"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// stubServices records the tenant each call was made for
type stubServices struct {
	lastTenant uuid.UUID
}

func (s *stubServices) AllocateManual(_ context.Context, tenantID uuid.UUID, _ appfinance.AllocateManualRequest) (*appfinance.AllocationResponse, error) {
	s.lastTenant = tenantID
	return &appfinance.AllocationResponse{}, nil
}

func (s *stubServices) AllocateAuto(_ context.Context, tenantID uuid.UUID, _ appfinance.AllocateAutoRequest) (*appfinance.AutoAllocationResult, error) {
	s.lastTenant = tenantID
	return &appfinance.AutoAllocationResult{}, nil
}

func (s *stubServices) RemoveAllocation(_ context.Context, tenantID, _ uuid.UUID) error {
	s.lastTenant = tenantID
	return nil
}

func (s *stubServices) GetObligationStatus(_ context.Context, tenantID uuid.UUID, _ finance.ObligationKey) (*appfinance.ObligationStatusResponse, error) {
	s.lastTenant = tenantID
	return &appfinance.ObligationStatusResponse{}, nil
}

func (s *stubServices) GetObligationStatuses(_ context.Context, tenantID uuid.UUID, _ finance.ObligationType, _ []uuid.UUID) ([]appfinance.ObligationStatusResponse, error) {
	s.lastTenant = tenantID
	return nil, nil
}

func (s *stubServices) GetPaymentAllocations(_ context.Context, tenantID, _ uuid.UUID) (*appfinance.PaymentAllocationsResponse, error) {
	s.lastTenant = tenantID
	return &appfinance.PaymentAllocationsResponse{}, nil
}

func (s *stubServices) GetOverdueBalances(_ context.Context, tenantID uuid.UUID, _ appfinance.OverdueBalanceScope) ([]appfinance.CounterpartyBalanceResponse, error) {
	s.lastTenant = tenantID
	return []appfinance.CounterpartyBalanceResponse{}, nil
}

func (s *stubServices) ExportOverdueBalances(_ context.Context, tenantID uuid.UUID, _ appfinance.OverdueBalanceScope, _ bool) (*appfinance.ExportedReport, error) {
	s.lastTenant = tenantID
	return &appfinance.ExportedReport{FileName: "r.xlsx", ContentType: "application/octet-stream"}, nil
}

func (s *stubServices) ProjectLoan(_ context.Context, tenantID, _ uuid.UUID) (*appfinance.LoanProjectionResponse, error) {
	s.lastTenant = tenantID
	return &appfinance.LoanProjectionResponse{}, nil
}

func (s *stubServices) ProjectInstallments(context.Context, appfinance.ProjectInstallmentsRequest) (*appfinance.LoanProjectionResponse, error) {
	return &appfinance.LoanProjectionResponse{}, nil
}

type okPinger struct{}

func (okPinger) PingContext(context.Context) error { return nil }

func newTestEngine(cfg EngineConfig) (*gin.Engine, *stubServices) {
	stub := &stubServices{}
	return NewEngine(cfg, Handlers{
		Allocation: handler.NewAllocationHandler(stub),
		Balance:    handler.NewBalanceHandler(stub),
		Loan:       handler.NewLoanHandler(stub),
		Health:     handler.NewHealthHandler(okPinger{}),
	}), stub
}

func TestNewEngine_Routes(t *testing.T) {
	engine, _ := newTestEngine(EngineConfig{ServiceName: "settlement"})

	registered := make(map[string]bool)
	for _, r := range engine.Routes() {
		registered[r.Method+" "+r.Path] = true
	}
	for _, want := range []string{
		"POST /api/v1/settlement/allocations",
		"POST /api/v1/settlement/allocations/auto",
		"DELETE /api/v1/settlement/allocations/:id",
		"GET /api/v1/settlement/payments/:id/allocations",
		"GET /api/v1/settlement/obligations/:type/:id/status",
		"POST /api/v1/settlement/obligations/:type/status",
		"GET /api/v1/settlement/balances/overdue",
		"GET /api/v1/settlement/balances/overdue/export",
		"GET /api/v1/settlement/loans/:id/installments",
		"POST /api/v1/settlement/loans/installments/projection",
		"GET /health",
	} {
		assert.True(t, registered[want], "missing route %s", want)
	}
}

func TestNewEngine_HealthAndNotFound(t *testing.T) {
	engine, _ := newTestEngine(EngineConfig{})

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, HealthPath, nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))

	w = httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/nowhere", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "NOT_FOUND", body["error"].(map[string]any)["code"])
}

func TestNewEngine_TenantResolution(t *testing.T) {
	defaultTenant := uuid.New()
	verifier := auth.NewTokenVerifier(config.JWTConfig{Secret: "router-test-secret"})
	engine, stub := newTestEngine(EngineConfig{DefaultTenantID: defaultTenant.String(), Verifier: verifier})

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/settlement/balances/overdue", nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, defaultTenant, stub.lastTenant)

	jwtTenant := uuid.New()
	token, err := verifier.Sign(jwtTenant, nil, time.Minute)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/settlement/loans/"+uuid.NewString()+"/installments", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w = httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, jwtTenant, stub.lastTenant)
}

func TestNewEngine_NoTenant(t *testing.T) {
	engine, _ := newTestEngine(EngineConfig{})

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/v1/settlement/allocations/"+uuid.NewString(), nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestDomainGroup(t *testing.T) {
	dg := NewDomainGroup("probe", "/probe")
	called := false
	dg.Use(func(c *gin.Context) { called = true; c.Next() }).
		GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	assert.Equal(t, "probe", dg.Name())
	assert.Equal(t, "/probe", dg.Prefix())

	engine := gin.New()
	NewRouter(engine, WithAPIVersion("v2")).Register(dg).Setup()

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v2/probe/ping", nil))
	assert.Equal(t, "pong", w.Body.String())
	assert.True(t, called)
}
