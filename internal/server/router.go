package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/formlens/formlens-backend/internal/handlers"
	"github.com/formlens/formlens-backend/internal/middleware"
)

type RouterConfig struct {
	ServiceName       string
	AllowOrigins      []string
	ComparisonHandler *handlers.ComparisonHandler
	AuthMiddleware    *middleware.AuthMiddleware
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()
	router.Use(otelgin.Middleware(cfg.ServiceName))

	allowOrigins := cfg.AllowOrigins
	if len(allowOrigins) == 0 {
		allowOrigins = []string{"http://localhost:3000", "http://localhost:5173"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     allowOrigins,
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	router.GET("/healthcheck", handlers.HealthCheck)

	api := router.Group("/api")
	{
		// Read paths
		api.GET("/comparisons", cfg.ComparisonHandler.List)
		api.GET("/comparisons/check", cfg.ComparisonHandler.Check)
		api.GET("/comparisons/:id", cfg.ComparisonHandler.Get)

		// Write paths
		protected := api.Group("/")
		protected.Use(cfg.AuthMiddleware.RequireAuth())
		protected.POST("/comparisons/analyze", cfg.ComparisonHandler.Analyze)
		protected.POST("/comparisons/ingest", cfg.ComparisonHandler.Ingest)
		protected.DELETE("/comparisons/:id", cfg.ComparisonHandler.Delete)
	}

	return router
}
