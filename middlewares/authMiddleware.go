package middlewares

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mmdatafocus/recon_backend/utils"
)

// BearerTokenMiddleware requires an Authorization bearer header and stores
// its value in the request context. The token itself is opaque here; it is
// forwarded as-is to the acquirer API, which is the party that validates
// it.
func BearerTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.Request.Header.Get("Authorization")

		bearer := "Bearer "
		if !strings.HasPrefix(auth, bearer) || strings.TrimSpace(auth[len(bearer):]) == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid authentication token"})
			c.Abort()
			return
		}

		ctx := utils.SetTokenInContext(c.Request.Context(), strings.TrimSpace(auth[len(bearer):]))
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
