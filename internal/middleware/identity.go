package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"lab-device-hub/internal/config"
	"lab-device-hub/pkg/utils"
)

const (
	RequesterIDKey = "requester_id"
	RoleKey        = "role"
)

// IdentityMiddleware validates the bearer token issued by the platform
// and places the requester identity in the request context. Token
// issuance lives elsewhere; this service only verifies.
func IdentityMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			utils.ErrorResponse(c, http.StatusUnauthorized, "Authorization header required")
			c.Abort()
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			utils.ErrorResponse(c, http.StatusUnauthorized, "Invalid authorization header format")
			c.Abort()
			return
		}

		token := parts[1]

		claims, err := utils.ValidateToken(token, cfg.JWT.Secret)
		if err != nil {
			utils.ErrorResponse(c, http.StatusUnauthorized, "Invalid or expired token")
			c.Abort()
			return
		}

		c.Set(RequesterIDKey, claims.UserID)
		c.Set("email", claims.Email)
		c.Set(RoleKey, claims.Role)

		c.Next()
	}
}

// GetRequesterID retrieves the authenticated requester from the context.
func GetRequesterID(c *gin.Context) string {
	if v, exists := c.Get(RequesterIDKey); exists {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}
