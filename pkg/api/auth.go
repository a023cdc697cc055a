package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/dpmorgan-gotribe/agentflow/pkg/models"
)

// Caller identity headers, set by the fronting proxy.
const (
	headerTenantID = "X-Tenant-ID"
	headerUserID   = "X-User-ID"
)

// anonymousUser is the fallback identity for callers without a user header.
const anonymousUser = "api-client"

// authContextKey is the gin context key holding the models.AuthContext.
const authContextKey = "auth_context"

// authContext extracts the caller identity from proxy headers. The tenant is
// mandatory; requests without one are rejected before any handler runs. A
// missing user falls back to the shared API identity. Every request gets a
// freshly generated session ID: creation adopts it as the new session's ID,
// the other endpoints address sessions by path parameter instead.
func (s *Server) authContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID := strings.TrimSpace(c.GetHeader(headerTenantID))
		if tenantID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				ErrorResponse{Error: "X-Tenant-ID header is required"})
			return
		}

		userID := strings.TrimSpace(c.GetHeader(headerUserID))
		if userID == "" {
			userID = anonymousUser
		}

		c.Set(authContextKey, models.AuthContext{
			TenantID:  tenantID,
			UserID:    userID,
			SessionID: uuid.NewString(),
		})
		c.Next()
	}
}

// authFrom returns the AuthContext stored by the authContext middleware.
func authFrom(c *gin.Context) models.AuthContext {
	v, ok := c.Get(authContextKey)
	if !ok {
		return models.AuthContext{}
	}
	auth, _ := v.(models.AuthContext)
	return auth
}
