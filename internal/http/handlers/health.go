package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/prooflab/cardproof-backend/internal/config"
	"github.com/prooflab/cardproof-backend/internal/http/response"
	"github.com/prooflab/cardproof-backend/internal/jobs"
)

type HealthHandler struct {
	cfg      *config.Config
	registry *jobs.Registry
}

func NewHealthHandler(cfg *config.Config, registry *jobs.Registry) *HealthHandler {
	return &HealthHandler{cfg: cfg, registry: registry}
}

type queueInfo struct {
	Capacity int `json:"capacity"`
	Depth    int `json:"depth"`
}

type healthResponse struct {
	Status  string    `json:"status"`
	URL     string    `json:"url"`
	Workers int       `json:"workers"`
	Queue   queueInfo `json:"queue"`
	Warning string    `json:"warning,omitempty"`
}

func (h *HealthHandler) Health(c *gin.Context) {
	warn := ""
	if free, err := freeBytes(h.cfg.IntakeDir); err == nil && free < h.cfg.MinFreeDiskBytes {
		warn = "low disk"
	}
	response.RespondOK(c, healthResponse{
		Status:  "ok",
		URL:     h.cfg.PublicURL,
		Workers: h.cfg.Workers,
		Queue: queueInfo{
			Capacity: h.registry.QueueCapacity(),
			Depth:    h.registry.QueueDepth(),
		},
		Warning: warn,
	})
}
