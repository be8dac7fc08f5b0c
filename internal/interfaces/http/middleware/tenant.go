package middleware

import (
	"net/http"

	"github.com/erp/settlement/internal/infrastructure/logger"
	"github.com/erp/settlement/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Tenant context keys
const (
	TenantIDKey     = "tenant_id"
	TenantHeaderKey = "X-Tenant-ID"
)

// TenantConfig configures tenant resolution
type TenantConfig struct {
	// DefaultTenantID is used when neither a token nor the header names a tenant.
	// Empty means such requests are rejected.
	DefaultTenantID string
	SkipPaths       []string
	Logger          *zap.Logger
}

// Tenant resolves the request's tenant from, in order, the JWT claim, the
// X-Tenant-ID header, and the configured default.
func Tenant(cfg TenantConfig) gin.HandlerFunc {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	skip := make(map[string]struct{}, len(cfg.SkipPaths))
	for _, p := range cfg.SkipPaths {
		skip[p] = struct{}{}
	}

	return func(c *gin.Context) {
		if _, ok := skip[c.Request.URL.Path]; ok {
			c.Next()
			return
		}

		raw, method := GetJWTTenantID(c), "jwt"
		if raw == "" {
			raw, method = c.GetHeader(TenantHeaderKey), "header"
		}
		if raw == "" {
			raw, method = cfg.DefaultTenantID, "default"
		}
		if raw == "" {
			respondUnauthorized(c, "Tenant identification required")
			return
		}

		tenantID, err := uuid.Parse(raw)
		if err != nil || tenantID == uuid.Nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, dto.NewErrorResponseWithRequestID(
				dto.ErrCodeBadRequest, "Invalid tenant ID format", GetRequestID(c)))
			return
		}

		c.Set(TenantIDKey, tenantID)
		ctx := c.Request.Context()
		ctx, _ = logger.WithTenantID(ctx, logger.FromContext(ctx), tenantID.String())
		c.Request = c.Request.WithContext(ctx)

		log.Debug("Tenant identified",
			zap.String("tenant_id", tenantID.String()),
			zap.String("method", method),
		)
		c.Next()
	}
}

// GetTenantID returns the tenant resolved by Tenant
func GetTenantID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(TenantIDKey)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok && id != uuid.Nil
}

// GetUserID returns the acting user from the JWT, if any
func GetUserID(c *gin.Context) *uuid.UUID {
	v, ok := c.Get(JWTUserIDKey)
	if !ok {
		return nil
	}
	id, ok := v.(uuid.UUID)
	if !ok {
		return nil
	}
	return &id
}
