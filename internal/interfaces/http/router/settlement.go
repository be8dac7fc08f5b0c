package router

import (
	"net/http"

	"github.com/erp/settlement/internal/infrastructure/auth"
	"github.com/erp/settlement/internal/infrastructure/logger"
	"github.com/erp/settlement/internal/infrastructure/telemetry"
	"github.com/erp/settlement/internal/interfaces/http/dto"
	"github.com/erp/settlement/internal/interfaces/http/handler"
	"github.com/erp/settlement/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// HealthPath is served outside the tenant-scoped API
const HealthPath = "/health"

// Handlers are the settlement HTTP handlers
type Handlers struct {
	Allocation *handler.AllocationHandler
	Balance    *handler.BalanceHandler
	Loan       *handler.LoanHandler
	Health     *handler.HealthHandler
}

// EngineConfig configures the middleware chain
type EngineConfig struct {
	ServiceName     string
	DefaultTenantID string
	// Verifier enables bearer token parsing; nil disables JWT
	Verifier    *auth.TokenVerifier
	JWTRequired bool
	Tracing     bool
	Profiling   bool
	Meter       *telemetry.MeterProvider
	BodyLimit   int64
	Logger      *zap.Logger
}

// NewSettlementRoutes maps the settlement operations onto /settlement
func NewSettlementRoutes(h Handlers) *DomainGroup {
	return NewDomainGroup("settlement", "/settlement").
		POST("/allocations", h.Allocation.AllocateManual).
		POST("/allocations/auto", h.Allocation.AllocateAuto).
		DELETE("/allocations/:id", h.Allocation.RemoveAllocation).
		GET("/payments/:id/allocations", h.Allocation.GetPaymentAllocations).
		GET("/obligations/:type/:id/status", h.Allocation.GetObligationStatus).
		POST("/obligations/:type/status", h.Allocation.GetObligationStatuses).
		GET("/balances/overdue", h.Balance.GetOverdueBalances).
		GET("/balances/overdue/export", h.Balance.ExportOverdueBalances).
		GET("/loans/:id/installments", h.Loan.ProjectLoan).
		POST("/loans/installments/projection", h.Loan.ProjectInstallments)
}

// NewEngine builds the gin engine: global middleware, the health probe, and
// the tenant-scoped settlement API under /api/v1.
func NewEngine(cfg EngineConfig, h Handlers) *gin.Engine {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.BodyLimit <= 0 {
		cfg.BodyLimit = middleware.DefaultBodyLimit
	}
	middleware.SetupValidator()

	engine := gin.New()
	engine.Use(
		middleware.Tracing(middleware.TracingConfig{
			ServiceName: cfg.ServiceName,
			Enabled:     cfg.Tracing,
			Filter:      func(r *http.Request) bool { return r.URL.Path == HealthPath },
		}),
		middleware.RequestID(),
		logger.GinMiddleware(log),
		logger.Recovery(log),
		middleware.Secure(),
		middleware.HTTPMetrics(cfg.Meter, log),
	)
	engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, dto.NewErrorResponseWithRequestID(
			dto.ErrCodeNotFound, "Route not found", middleware.GetRequestID(c)))
	})
	engine.GET(HealthPath, h.Health.Health)

	settlement := NewSettlementRoutes(h).Use(middleware.BodyLimit(cfg.BodyLimit))
	if cfg.Verifier != nil {
		settlement.Use(middleware.JWTTenant(middleware.JWTConfig{
			Verifier: cfg.Verifier,
			Required: cfg.JWTRequired,
			Logger:   log,
		}))
	}
	settlement.Use(
		middleware.Tenant(middleware.TenantConfig{DefaultTenantID: cfg.DefaultTenantID, Logger: log}),
		middleware.SpanEnricher(),
		middleware.Profiling(cfg.Profiling),
	)

	NewRouter(engine).Register(settlement).Setup()
	return engine
}
