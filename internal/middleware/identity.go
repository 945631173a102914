package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// IdentityMiddleware binds the gateway-validated user identity to the
// request context. The gateway authenticates upstream and forwards the
// subject in X-User-ID; requests without it never reach the chat core in a
// correct deployment.
func IdentityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader("X-User-ID")
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing identity"})
			return
		}

		c.Set("userID", userID)
		c.Next()
	}
}
