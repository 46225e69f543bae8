package api

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/kurihiro0119/github-social-relay/internal/metrics"
)

// SetupRoutes sets up the API routes
func SetupRoutes(handler *Handler, m *metrics.Collector, logger logrus.FieldLogger) *gin.Engine {
	router := gin.New()

	// Middleware
	router.Use(Recovery(logger))
	router.Use(CORS())
	router.Use(Logger(logger))

	// GitHub deliveries
	router.POST("/webhook", handler.Webhook)

	// Health check and stats
	router.GET("/health", handler.HealthCheck)
	router.GET("/stats", handler.GetStats)
	if m != nil {
		router.GET("/metrics", m.Handler())
	}

	// API v1
	v1 := router.Group("/api/v1")
	{
		v1.GET("/stats/range", handler.GetRangeStats)
	}

	return router
}
