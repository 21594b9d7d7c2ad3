package http

import (
	"github.com/VictoriaMetrics/metrics"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"go.ngs.io/raster-pyramid/internal/usecase"
)

// SetupRouter creates and configures the Gin router.
// An empty allowedOrigins list allows every origin.
func SetupRouter(tileUC *usecase.TileUseCase, allowedOrigins []string) *gin.Engine {
	router := gin.Default()

	// Setup CORS middleware.
	corsConfig := cors.DefaultConfig()
	if len(allowedOrigins) == 0 || (len(allowedOrigins) == 1 && allowedOrigins[0] == "*") {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = allowedOrigins
	}
	router.Use(cors.New(corsConfig))

	// Create handler.
	handler := NewHandler(tileUC)

	// API v1 routes.
	v1 := router.Group("/v1")
	v1.GET("/levels", handler.GetLevels)
	v1.GET("/tiles", handler.GetTiles)

	// Health check and metrics.
	router.GET("/health", handler.HealthCheck)
	router.GET("/metrics", func(c *gin.Context) {
		c.Header("Content-Type", "text/plain; version=0.0.4")
		metrics.WritePrometheus(c.Writer, true)
	})

	return router
}
