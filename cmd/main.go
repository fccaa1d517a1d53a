package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/formlens/formlens-backend/internal/db"
	"github.com/formlens/formlens-backend/internal/handlers"
	"github.com/formlens/formlens-backend/internal/logger"
	"github.com/formlens/formlens-backend/internal/middleware"
	"github.com/formlens/formlens-backend/internal/observability"
	"github.com/formlens/formlens-backend/internal/repos"
	"github.com/formlens/formlens-backend/internal/server"
	"github.com/formlens/formlens-backend/internal/services"
	"github.com/formlens/formlens-backend/internal/utils"
)

func main() {
	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Env
	log.Info("Loading environment variables from main...")
	httpAddr := utils.GetEnv("HTTP_ADDR", ":8080", log)
	jwtSecretKey := utils.GetEnv("JWT_SECRET_KEY", "defaultsecret", log)
	redisAddr := utils.GetEnv("REDIS_ADDR", "", log)
	cacheTTLSeconds := utils.GetEnvAsInt("COMPARISON_CACHE_TTL", 300, log)
	corsOrigins := utils.GetEnv("CORS_ALLOW_ORIGINS", "", log)

	// Tracing
	otelShutdown := observability.InitOTel(context.Background(), log, observability.OtelConfig{
		ServiceName: "formlens-backend",
		Environment: logMode,
	})
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = otelShutdown(shutdownCtx)
	}()

	// Postgres
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Error("Postgres init failed", "error", err)
		os.Exit(1)
	}
	if err = postgresService.AutoMigrateAll(); err != nil {
		log.Error("Postgres auto migration failed", "error", err)
		os.Exit(1)
	}
	thePG := postgresService.DB()

	// Repos
	log.Info("Setting up Repos from main...")
	templateVersionRepo := repos.NewTemplateVersionRepo(thePG, log)
	comparisonRepo := repos.NewComparisonRepo(thePG, log)
	userRepo := repos.NewUserRepo(thePG, log)
	_ = userRepo

	// Services
	log.Info("Setting up Services from main...")
	var comparisonCache services.ComparisonCache
	if redisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: redisAddr})
		comparisonCache = services.NewRedisComparisonCache(redisClient, time.Duration(cacheTTLSeconds)*time.Second, log)
	}
	authService := services.NewAuthService(log, jwtSecretKey)
	comparisonService := services.NewComparisonService(thePG, log, templateVersionRepo, comparisonRepo, comparisonCache)

	// Handlers
	comparisonHandler := handlers.NewComparisonHandler(log, comparisonService)

	// Middleware
	authMiddleware := middleware.NewAuthMiddleware(log, authService)

	// Router
	var allowOrigins []string
	if corsOrigins != "" {
		allowOrigins = strings.Split(corsOrigins, ",")
	}
	router := server.NewRouter(server.RouterConfig{
		ServiceName:       "formlens-backend",
		AllowOrigins:      allowOrigins,
		ComparisonHandler: comparisonHandler,
		AuthMiddleware:    authMiddleware,
	})

	log.Info("Starting HTTP server", "addr", httpAddr)
	if err := router.Run(httpAddr); err != nil {
		log.Error("HTTP server exited", "error", err)
		os.Exit(1)
	}
}
