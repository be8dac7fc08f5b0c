package handler

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/erp/settlement/internal/infrastructure/logger"
	"github.com/erp/settlement/internal/interfaces/http/dto"
	"github.com/erp/settlement/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Pinger is satisfied by *sql.DB
type Pinger interface {
	PingContext(ctx context.Context) error
}

// HealthHandler reports liveness and database reachability
type HealthHandler struct {
	BaseHandler
	db          Pinger
	name        string
	startTime   time.Time
	pingTimeout time.Duration
	components  map[string]func() any
}

// HealthOption configures a HealthHandler
type HealthOption func(*HealthHandler)

// WithComponentStatus adds a named status section, e.g. the alert scheduler
func WithComponentStatus(name string, status func() any) HealthOption {
	return func(h *HealthHandler) {
		h.components[name] = status
	}
}

// WithServiceName sets the name reported by the health endpoint
func WithServiceName(name string) HealthOption {
	return func(h *HealthHandler) {
		h.name = name
	}
}

// NewHealthHandler creates a new HealthHandler
func NewHealthHandler(db Pinger, opts ...HealthOption) *HealthHandler {
	h := &HealthHandler{
		db:          db,
		name:        "settlement",
		startTime:   time.Now(),
		pingTimeout: 2 * time.Second,
		components:  make(map[string]func() any),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status     string         `json:"status"`
	Service    string         `json:"service"`
	Database   string         `json:"database"`
	Uptime     string         `json:"uptime"`
	GoVersion  string         `json:"go_version"`
	Components map[string]any `json:"components,omitempty"`
}

// Health godoc
// @Summary      Liveness and database reachability
// @Tags         system
// @Produce      json
// @Success      200 {object} dto.Response
// @Failure      503 {object} dto.Response
// @Router       /health [get]
func (h *HealthHandler) Health(c *gin.Context) {
	resp := HealthResponse{
		Status:    "ok",
		Service:   h.name,
		Database:  "ok",
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
		GoVersion: runtime.Version(),
	}
	if len(h.components) > 0 {
		resp.Components = make(map[string]any, len(h.components))
		for name, status := range h.components {
			resp.Components[name] = status()
		}
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.pingTimeout)
	defer cancel()
	if err := h.db.PingContext(ctx); err != nil {
		logger.L(c.Request.Context()).Warn("health check: database unreachable", zap.Error(err))
		resp.Status = "degraded"
		resp.Database = "unreachable"
		c.JSON(http.StatusServiceUnavailable, dto.Response{
			Success: false,
			Data:    resp,
			Error: &dto.ErrorInfo{
				Code:      dto.ErrCodeUnavailable,
				Message:   "database unreachable",
				RequestID: middleware.GetRequestID(c),
			},
		})
		return
	}
	h.Success(c, resp)
}
