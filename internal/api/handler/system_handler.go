package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/cuongbtq/media-fetcher/internal/api/dto"
	"github.com/cuongbtq/media-fetcher/internal/converter/domain"
	"github.com/gin-gonic/gin"
)

const serviceName = "media-fetcher-api"

// Health handles GET /health.
// A missing converter is reported but is not unhealthy; it is fetched on first use.
func (h *SystemHandler) Health(c *gin.Context) {
	status := http.StatusOK
	body := gin.H{
		"status":        "healthy",
		"service":       serviceName,
		"delivery_mode": string(h.converter.Mode()),
	}

	converterInfo := gin.H{
		"path":    h.executable.Path(),
		"present": false,
	}
	exe, err := h.executable.Status()
	if err != nil {
		h.logger.Warn("Failed to inspect converter executable", slog.String("error", err.Error()))
		converterInfo["error"] = err.Error()
	} else if exe != nil {
		converterInfo["present"] = true
		converterInfo["size_bytes"] = exe.SizeBytes
	}
	body["converter"] = converterInfo

	if h.database != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()
		if err := h.database.HealthCheck(ctx); err != nil {
			h.logger.Error("Database health check failed", slog.String("error", err.Error()))
			status = http.StatusServiceUnavailable
			body["status"] = "unhealthy"
			body["database"] = "unreachable"
		} else {
			body["database"] = "ok"
		}
	}

	c.JSON(status, body)
}

// Kinds handles GET /api/v1/kinds
func (h *SystemHandler) Kinds(c *gin.Context) {
	c.JSON(http.StatusOK, dto.KindsResponse{
		Kinds:        domain.Kinds(),
		DeliveryMode: string(h.converter.Mode()),
	})
}
