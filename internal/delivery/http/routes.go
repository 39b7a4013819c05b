package http

import (
	"github.com/gin-gonic/gin"
	"github.com/pricelens/gateway/config"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// SetupRouter creates and configures the Gin router
func SetupRouter(cfg *config.Config, handler *Handler, logger *zap.Logger) *gin.Engine {
	if logger == nil {
		logger = zap.NewNop()
	}

	// Set Gin mode based on environment
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Global middleware
	router.Use(RequestIDMiddleware())
	router.Use(RecoveryMiddleware(logger))
	router.Use(LoggerMiddleware(logger))
	router.Use(CORSMiddleware(cfg.Server.AllowedOrigins))

	router.GET("/health", handler.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1 routes
	v1 := router.Group("/api/v1")
	v1.Use(RateLimitMiddleware(cfg.RateLimit.PerIP))
	v1.Use(BearerTokenMiddleware())
	{
		deals := v1.Group("/deals")
		{
			deals.GET("", handler.GetDeals)
			deals.GET("/latest", handler.LatestDeals)
		}

		search := v1.Group("/search")
		{
			search.POST("/image", handler.SearchImage)
			search.POST("/manual", handler.SearchManual)
		}
	}

	return router
}
