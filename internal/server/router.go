package server

import (
	"github.com/gin-gonic/gin"

	"github.com/prooflab/cardproof-backend/internal/http/handlers"
	"github.com/prooflab/cardproof-backend/internal/http/middleware"
	"github.com/prooflab/cardproof-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log           *logger.Logger
	APIKey        string
	JobHandler    *handlers.JobHandler
	HealthHandler *handlers.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(cfg.Log))
	router.Use(middleware.CORS())

	// Public
	router.GET("/health", cfg.HealthHandler.Health)

	// Protected
	protected := router.Group("/")
	protected.Use(middleware.RequireAPIKey(cfg.APIKey))
	protected.POST("/jobs", cfg.JobHandler.Submit)
	protected.GET("/status/:id", cfg.JobHandler.Status)
	protected.GET("/jobs/:id/result.json", cfg.JobHandler.Result)
	protected.GET("/jobs/:id/assets/:name", cfg.JobHandler.Asset)
	protected.POST("/jobs/:id/cancel", cfg.JobHandler.Cancel)
	protected.GET("/jobs/:id/events", cfg.JobHandler.Events)

	return router
}
