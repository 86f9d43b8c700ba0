package middleware

import (
	"crypto/subtle"

	"github.com/gin-gonic/gin"

	"github.com/prooflab/cardproof-backend/internal/http/response"
	"github.com/prooflab/cardproof-backend/internal/platform/apierr"
)

// RequireAPIKey gates every job route behind the shared secret in X-API-Key,
// compared in constant time.
func RequireAPIKey(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		got := c.GetHeader("X-API-Key")
		if apiKey == "" || subtle.ConstantTimeCompare([]byte(got), []byte(apiKey)) != 1 {
			response.RespondKind(c, apierr.KindUnauthorized, "missing or invalid api key")
			c.Abort()
			return
		}
		c.Next()
	}
}
