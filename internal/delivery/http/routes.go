package http

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/pricelens/backend/config"
)

// SetupRouter creates and configures the Gin router
func SetupRouter(cfg *config.Config, handler *Handler, logger *zap.Logger) *gin.Engine {
	// Set Gin mode based on environment
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()

	// Global middleware
	router.Use(RequestIDMiddleware())
	router.Use(RecoveryMiddleware(logger))
	router.Use(LoggerMiddleware(logger.Named("access")))
	router.Use(CORSMiddleware(cfg.Server.AllowedOrigins))

	router.GET("/health", handler.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		v1.POST("/search", handler.Search)
		v1.POST("/detect", handler.Detect)

		v1.POST("/watch", handler.Watch)
		v1.DELETE("/watch", handler.Unwatch)

		alerts := v1.Group("/alerts")
		{
			alerts.GET("", handler.ListAlerts)
			alerts.POST("", handler.SetAlert)
			alerts.POST("/check", handler.CheckAlerts)
			alerts.DELETE("/:id", handler.RemoveAlert)
		}

		history := v1.Group("/history")
		{
			history.GET("/:region/:id", handler.GetHistory)
			history.DELETE("", handler.ClearHistory)
		}

		vision := v1.Group("/vision")
		{
			vision.POST("/classify", handler.ClassifyImages)
			vision.POST("/queue", handler.QueueImages)
			vision.POST("/rescan", handler.RescanImages)
			vision.POST("/verify", handler.VerifyVisionKey)
		}

		v1.GET("/settings", handler.GetSettings)
		v1.PUT("/settings", handler.UpdateSettings)
		v1.GET("/regions", handler.ListRegions)
		v1.GET("/stats", handler.Stats)
		v1.GET("/events", handler.Events)
	}

	return router
}
