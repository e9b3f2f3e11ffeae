package router

import (
	"net/http"

	"github.com/cuongbtq/media-fetcher/internal/api/handler"
	"github.com/gin-gonic/gin"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true

	// Middleware
	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(deps.Logger))
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	r.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{
			"error": "Method not allowed",
		})
	})
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Not found",
		})
	})

	systemHandler := handler.NewSystemHandler(deps)
	downloadHandler := handler.NewDownloadHandler(deps)

	// Health check endpoint
	r.GET("/health", systemHandler.Health)

	// POST /api/download - legacy path used by the original web client
	r.POST("/api/download", downloadHandler.Download)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		// POST /api/v1/downloads - Convert a source and stream the artifact back
		v1.POST("/downloads", downloadHandler.Download)

		// GET /api/v1/kinds - Supported output kinds
		v1.GET("/kinds", systemHandler.Kinds)

		if deps.Conversions != nil {
			conversionHandler := handler.NewConversionHandler(deps)
			conversions := v1.Group("/conversions")
			{
				// GET /api/v1/conversions - List recorded conversions
				conversions.GET("", conversionHandler.ListConversions)

				// GET /api/v1/conversions/:job_id - Get one recorded conversion
				conversions.GET("/:job_id", conversionHandler.GetConversion)
			}
		}
	}

	return r
}
