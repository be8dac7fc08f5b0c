package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/erp/settlement/internal/infrastructure/auth"
	"github.com/erp/settlement/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// JWT context keys
const (
	JWTClaimsKey   = "jwt_claims"
	JWTTenantIDKey = "jwt_tenant_id"
	JWTUserIDKey   = "jwt_user_id"
	AuthHeaderKey  = "Authorization"
	BearerPrefix   = "Bearer "
)

// JWTConfig configures JWTTenant
type JWTConfig struct {
	Verifier *auth.TokenVerifier
	// Required rejects requests without a bearer token. When false, a missing
	// token falls through to header-based tenant resolution; an invalid one
	// is still rejected.
	Required  bool
	SkipPaths []string
	Logger    *zap.Logger
}

// JWTTenant validates the bearer token and stores its tenant and user claims
// for the tenant middleware and handlers.
func JWTTenant(cfg JWTConfig) gin.HandlerFunc {
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

		header := c.GetHeader(AuthHeaderKey)
		if header == "" {
			if cfg.Required {
				respondUnauthorized(c, "Missing authorization header")
				return
			}
			c.Next()
			return
		}
		tokenString, ok := strings.CutPrefix(header, BearerPrefix)
		if !ok || tokenString == "" {
			respondUnauthorized(c, "Invalid authorization header format")
			return
		}

		claims, err := cfg.Verifier.Verify(tokenString)
		if err != nil {
			log.Warn("JWT authentication failed",
				zap.Error(err),
				zap.String("path", c.Request.URL.Path),
				zap.String("request_id", GetRequestID(c)),
			)
			respondUnauthorized(c, tokenErrorMessage(err))
			return
		}

		c.Set(JWTClaimsKey, claims)
		c.Set(JWTTenantIDKey, claims.TenantID)
		if user := claims.UserUUID(); user != nil {
			c.Set(JWTUserIDKey, *user)
		}
		c.Next()
	}
}

func tokenErrorMessage(err error) string {
	switch {
	case errors.Is(err, auth.ErrExpiredToken):
		return "Token has expired"
	case errors.Is(err, auth.ErrTokenNotYetValid):
		return "Token is not yet valid"
	case errors.Is(err, auth.ErrMissingTenantID):
		return "Token carries no tenant"
	default:
		return "Invalid token"
	}
}

func respondUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized,
		dto.NewErrorResponseWithRequestID(dto.ErrCodeUnauthorized, message, GetRequestID(c)))
}

// GetJWTTenantID returns the tenant claim, if a token was presented
func GetJWTTenantID(c *gin.Context) string {
	return c.GetString(JWTTenantIDKey)
}
