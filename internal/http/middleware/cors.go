package middleware

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// CORS allows browser viewers to poll status and pull assets cross-origin.
func CORS() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{
			"Content-Type", "X-API-Key", "X-Signature", "If-None-Match",
		},
		ExposeHeaders: []string{"ETag", "Cache-Control"},
		MaxAge:        12 * time.Hour,
	})
}
