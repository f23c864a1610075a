package middleware

import (
	"net/http"

	"rillnet/internal/core/ports"

	"github.com/gin-gonic/gin"
)

// AuthMiddleware rejects any request whose Authorization header does
// not satisfy the configured accounts/tokens. Authorization is a
// single go/no-go gate shared by every endpoint; there is no
// per-stream permission tier.
func AuthMiddleware(authService ports.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !authService.Authorize(c.GetHeader("Authorization")) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}
		c.Next()
	}
}
