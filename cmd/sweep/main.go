package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"academy/api/routes"
	"academy/internal/shared/config"
	"academy/internal/shared/database"
	"academy/pkg/logger"

	"github.com/joho/godotenv"
)

// sweep runs one expiry pass and exits, for deployments that schedule it externally
func main() {
	appLogger := logger.GetDefault()
	if err := godotenv.Load(); err != nil {
		appLogger.Info("No .env file found, using system environment variables")
	}

	cfg := config.Load()
	appLogger = logger.NewWithWriter(os.Stdout, cfg.LogLevel, !cfg.IsDevelopment())
	logger.SetDefault(appLogger)

	db, err := database.InitDB(cfg)
	if err != nil {
		appLogger.Error("Failed to initialize database", slog.Any("error", err))
		os.Exit(1)
	}

	code := run(cfg, db, appLogger)
	if err := db.Close(); err != nil {
		appLogger.Warn("Failed to close connections", slog.Any("error", err))
	}
	os.Exit(code)
}

func run(cfg *config.Config, db *database.DB, appLogger *logger.Logger) int {
	appRouter, err := routes.NewRouter(cfg, db, appLogger)
	if err != nil {
		appLogger.Error("Failed to wire application", slog.Any("error", err))
		return 1
	}
	notificationService := appRouter.Notifications()
	defer notificationService.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	manager := appRouter.Manager()
	start := time.Now()
	expired, err := manager.ExpireStale(ctx, manager.Now())
	appLogger.LogSweep(ctx, expired, time.Since(start))
	if err != nil {
		appLogger.ErrorWithContext(ctx, "Expiry sweep finished with errors", err, map[string]interface{}{"expired": expired})
		return 1
	}

	if err := appRouter.LogRetention().Run(ctx); err != nil {
		appLogger.ErrorWithContext(ctx, "Delivery log retention failed", err, nil)
		return 1
	}
	return 0
}
