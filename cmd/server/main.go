package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/Baaaki/resource-hub/internal/audit"
	"github.com/Baaaki/resource-hub/internal/config"
	"github.com/Baaaki/resource-hub/internal/database"
	"github.com/Baaaki/resource-hub/internal/events"
	"github.com/Baaaki/resource-hub/internal/handler"
	"github.com/Baaaki/resource-hub/internal/middleware"
	"github.com/Baaaki/resource-hub/internal/repository"
	"github.com/Baaaki/resource-hub/internal/router"
	"github.com/Baaaki/resource-hub/internal/service"
	"github.com/Baaaki/resource-hub/pkg/logger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()

	if err := logger.Init(!cfg.IsProduction()); err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	if cfg.JWTSecret == "" {
		logger.Log.Fatal("JWT_SECRET must be set")
	}
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	database.Connect(cfg)
	database.Migrate()

	// Initialize audit journal
	journal, err := audit.Open(cfg.AuditLogPath)
	if err != nil {
		logger.Log.Fatal("Failed to open audit journal",
			zap.String("path", cfg.AuditLogPath),
			zap.Error(err),
		)
	}
	defer journal.Close()

	// Redis is optional: it adds rate limiting and live events
	var (
		publisher   events.Publisher = events.NopPublisher{}
		subscriber  events.Subscriber
		rateLimiter *middleware.RateLimiter
	)

	// Initialize repositories
	userRepo := repository.NewUserRepository(database.DB)
	resourceRepo := repository.NewResourceRepository(database.DB)

	if cfg.RedisURL != "" {
		redisClient, err := database.ConnectRedis(cfg.RedisURL)
		if err != nil {
			logger.Log.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer redisClient.Close()

		broker := events.NewRedisBroker(redisClient, events.DefaultChannel)
		publisher = broker
		subscriber = broker

		rateLimiter = middleware.NewRateLimiter(redisClient, middleware.RateLimiterConfig{
			MaxRequests: cfg.RateLimitMaxRequests,
			Window:      cfg.RateLimitWindow,
			BlockTime:   cfg.RateLimitBlockTime,
		})

		logger.Log.Info("Redis connected: rate limiting and live events enabled")
	} else {
		logger.Log.Info("REDIS_URL not set: rate limiting and live events disabled")
	}

	// Initialize services
	authService := service.NewAuthService(userRepo, cfg.JWTSecret, cfg.JWTExpiry, cfg.Environment)
	resourceService := service.NewResourceService(resourceRepo, journal, publisher)

	var eventsHandler *handler.EventsHandler
	if subscriber != nil {
		eventsHandler = handler.NewEventsHandler(resourceService, subscriber)
	}

	engine, err := router.New(router.Deps{
		JWTSecret:      cfg.JWTSecret,
		IsProduction:   cfg.IsProduction(),
		AllowedOrigins: cfg.CORSAllowedOrigins,
		TrustedProxies: cfg.TrustedProxies,
		Users:          authService,
		RateLimiter:    rateLimiter,
		Auth:           handler.NewAuthHandler(authService),
		Resources:      handler.NewResourceHandler(resourceService),
		Admin:          handler.NewAdminHandler(authService, journal, rateLimiter),
		Events:         eventsHandler,
	})
	if err != nil {
		logger.Log.Fatal("Failed to build router", zap.Error(err))
	}

	srv := &http.Server{
		Addr:              cfg.ServerPort,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Log.Info("Server starting",
			zap.String("addr", cfg.ServerPort),
			zap.String("environment", cfg.Environment),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Log.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log.Error("Server shutdown failed", zap.Error(err))
	}
}
