package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"academy/api/routes"
	"academy/internal/shared/config"
	"academy/internal/shared/database"
	"academy/internal/waitlist"
	"academy/pkg/logger"
	"academy/pkg/ratelimit"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// @title        Academy Waitlist API
// @version      1.0
// @description  Session waitlists for the golf academy: join, offers, responses and expiry.
// @BasePath     /api/v1
// @securityDefinitions.apikey BearerAuth
// @in   header
// @name Authorization
func main() {
	appLogger := logger.GetDefault()

	if err := godotenv.Load(); err != nil {
		if os.Getenv("GIN_MODE") == "release" || os.Getenv("DOCKER_CONTAINER") == "true" {
			appLogger.Info("Production environment: using container environment variables")
		} else {
			appLogger.Info("No .env file found, using system environment variables")
		}
	} else {
		appLogger.Info("Development environment: loaded .env file")
	}

	cfg := config.Load()
	gin.SetMode(cfg.GinMode)

	appLogger = logger.NewWithWriter(os.Stdout, cfg.LogLevel, !cfg.IsDevelopment())
	logger.SetDefault(appLogger)
	appLogger.Info("Starting academy waitlist service",
		slog.String("version", Version),
		slog.String("build_time", BuildTime),
		slog.String("commit", GitCommit),
	)

	db, err := database.InitDB(cfg)
	if err != nil {
		appLogger.Error("Failed to connect to databases", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	appRouter, err := routes.NewRouter(cfg, db, appLogger)
	if err != nil {
		appLogger.Error("Failed to wire application", slog.Any("error", err))
		os.Exit(1)
	}

	var rateLimiter *ratelimit.RateLimiter
	if cfg.RateLimit.Enabled && db.GetRedisClient() != nil {
		rateLimiter = ratelimit.NewRateLimiter(db.GetRedisClient(), &ratelimit.Config{
			Enabled:          cfg.RateLimit.Enabled,
			WindowDuration:   cfg.RateLimit.WindowDuration,
			DefaultRequests:  cfg.RateLimit.DefaultRequests,
			PublicRequests:   cfg.RateLimit.PublicRequests,
			WaitlistRequests: cfg.RateLimit.WaitlistRequests,
			RespondRequests:  cfg.RateLimit.RespondRequests,
			WebhookRequests:  cfg.RateLimit.WebhookRequests,
			AdminRequests:    cfg.RateLimit.AdminRequests,
			HealthRequests:   cfg.RateLimit.HealthRequests,
			WhitelistedIPs:   cfg.RateLimit.WhitelistedIPs,
		})
		appLogger.Info("Rate limiter initialized",
			slog.Duration("window", cfg.RateLimit.WindowDuration),
			slog.Int("default_requests", cfg.RateLimit.DefaultRequests),
		)
	} else {
		appLogger.Info("Rate limiting disabled")
	}

	backgroundCtx, backgroundCancel := context.WithCancel(context.Background())
	defer backgroundCancel()

	notificationService := appRouter.Notifications()
	notificationService.Start(backgroundCtx)
	defer func() {
		appLogger.Info("Stopping notification service...")
		notificationService.Stop()
	}()

	var jobProcessor *waitlist.JobProcessor
	if cfg.Waitlist.SweepEnabled {
		retention := appRouter.LogRetention()
		jobProcessor = waitlist.NewJobProcessor(appRouter.Manager(), &waitlist.JobConfig{
			SweepInterval: cfg.Waitlist.SweepInterval,
			RunOnStart:    true,
		}, appLogger, waitlist.Job{
			Name:     "delivery_log_retention",
			Interval: 24 * time.Hour,
			Run:      retention.Run,
		})
		jobProcessor.Start(backgroundCtx)
	} else {
		appLogger.Info("Expiry sweep disabled, run cmd/sweep from an external scheduler")
	}

	srv := &http.Server{
		Addr:           cfg.GetServerAddress(),
		Handler:        setupRouter(appRouter, rateLimiter, appLogger),
		ReadTimeout:    cfg.ReadTimeout,
		WriteTimeout:   cfg.WriteTimeout,
		IdleTimeout:    cfg.IdleTimeout,
		MaxHeaderBytes: cfg.MaxHeaderBytes,
	}

	go func() {
		appLogger.Info("Server running",
			slog.String("address", cfg.GetServerAddress()),
			slog.String("health_check", fmt.Sprintf("http://localhost:%s/health", cfg.Port)),
			slog.String("swagger", fmt.Sprintf("http://localhost:%s/swagger/index.html", cfg.Port)),
			slog.String("capacity_backend", cfg.Waitlist.CapacityBackend),
			slog.String("lock_backend", cfg.Waitlist.LockBackend),
			slog.String("notification_transport", cfg.Notifications.Transport),
			slog.Bool("rate_limiting", rateLimiter != nil),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error("Server failed", slog.Any("error", err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error("Forced shutdown", slog.Any("error", err))
	}

	if jobProcessor != nil {
		jobProcessor.Stop()
	}
	backgroundCancel()

	appLogger.Info("Server exited gracefully")
}

func setupRouter(appRouter *routes.Router, rateLimiter *ratelimit.RateLimiter, appLogger *logger.Logger) *gin.Engine {
	engine := gin.New()

	engine.Use(RequestLoggerMiddleware(appLogger), gin.Recovery())

	engine.Use(cors.New(cors.Config{
		AllowOriginFunc: func(origin string) bool {
			return true
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "Retry-After", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	if rateLimiter != nil {
		engine.Use(ratelimit.Middleware(rateLimiter))
	}

	appRouter.SetupRoutes(engine)
	return engine
}

func RequestLoggerMiddleware(l *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		l.LogHTTPRequest(c, time.Since(start))
	}
}
