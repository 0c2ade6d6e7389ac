package routes

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"academy/docs"
	"academy/internal/notifications"
	"academy/internal/sessions"
	"academy/internal/shared/config"
	"academy/internal/shared/database"
	"academy/internal/shared/middleware"
	"academy/internal/waitlist"
	"academy/pkg/cache"
	"academy/pkg/logger"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

const capacityViewTTL = 5 * time.Second

// Router owns the wired application components
type Router struct {
	config *config.Config
	db     *database.DB
	logger *logger.Logger

	capacity      sessions.Store
	manager       *waitlist.Manager
	notifications *notifications.Service
	deliveryLogs  notifications.DeliveryLogRepository
	deadLetters   notifications.DeadLetterRepository
}

// NewRouter builds stores, the notification pipeline and the waitlist manager from config
func NewRouter(cfg *config.Config, db *database.DB, log *logger.Logger) (*Router, error) {
	if log == nil {
		log = logger.GetDefault()
	}
	r := &Router{config: cfg, db: db, logger: log}

	capacity, err := NewCapacityStore(cfg, db, log)
	if err != nil {
		return nil, err
	}
	r.capacity = capacity

	pg := db.GetPostgreSQL()
	r.deliveryLogs = notifications.NewGormDeliveryLogRepository(pg)
	r.deadLetters = notifications.NewGormDeadLetterRepository(pg)

	notificationService, err := notifications.NewService(cfg.Notifications, r.deliveryLogs, r.deadLetters, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize notifications: %w", err)
	}
	r.notifications = notificationService

	r.manager = waitlist.NewManager(
		waitlist.NewGormRepository(pg),
		capacity,
		notificationService.Gateway,
		NewLocker(cfg, db, log),
		waitlist.SystemClock{},
		NewManagerConfig(cfg),
		log,
	)
	return r, nil
}

// NewManagerConfig maps the waitlist section of the config
func NewManagerConfig(cfg *config.Config) *waitlist.ManagerConfig {
	mc := waitlist.DefaultManagerConfig()
	mc.ResponseWindow = cfg.Waitlist.ResponseWindow
	mc.MaxQueueLength = cfg.Waitlist.MaxQueueLength
	mc.NotificationTimeout = cfg.Waitlist.NotificationTimeout
	mc.SweepBatchSize = cfg.Waitlist.SweepBatchSize
	mc.SenderName = cfg.Notifications.SenderName
	return mc
}

// NewCapacityStore picks the capacity backend named by CAPACITY_BACKEND
func NewCapacityStore(cfg *config.Config, db *database.DB, log *logger.Logger) (sessions.Store, error) {
	switch cfg.Waitlist.CapacityBackend {
	case "postgres", "":
		return sessions.NewPostgresStore(db.GetPostgreSQL()), nil
	case "redis":
		if db.GetRedisClient() == nil {
			return nil, fmt.Errorf("CAPACITY_BACKEND=redis requires REDIS_ENABLED")
		}
		store := sessions.NewRedisStore(db.GetRedisClient())
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := store.PreloadScripts(ctx); err != nil {
			// scripts are loaded on first use anyway
			log.Warn("Failed to preload capacity scripts", "error", err.Error())
		}
		return store, nil
	case "memory":
		log.Warn("Using in-memory capacity store, counters are lost on restart")
		return sessions.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown CAPACITY_BACKEND %q", cfg.Waitlist.CapacityBackend)
	}
}

// NewLocker picks the per-session lock. Redis locks are required when several instances run.
func NewLocker(cfg *config.Config, db *database.DB, log *logger.Logger) waitlist.Locker {
	if cfg.Waitlist.LockBackend == "redis" {
		if client := db.GetRedisClient(); client != nil {
			return waitlist.NewRedisLocker(client, cfg.Waitlist.LockTTL, cfg.Waitlist.LockWait, log)
		}
		log.Warn("LOCK_BACKEND=redis but Redis is disabled, falling back to in-process locks")
	}
	return waitlist.NewLocalLocker(cfg.Waitlist.LockWait)
}

// Manager returns the waitlist manager for background jobs
func (r *Router) Manager() *waitlist.Manager {
	return r.manager
}

// Notifications returns the delivery pipeline so the caller can start and stop it
func (r *Router) Notifications() *notifications.Service {
	return r.notifications
}

// LogRetention returns the delivery log purge job
func (r *Router) LogRetention() *notifications.LogRetention {
	return notifications.NewLogRetention(r.deliveryLogs, r.config.Notifications.LogRetention, r.logger)
}

// SetupRoutes configures all application routes
func (r *Router) SetupRoutes(engine *gin.Engine) {
	r.setupHealthRoutes(engine)

	docs.SwaggerInfo.BasePath = r.config.GetAPIBasePath()
	engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	auth := middleware.JWTAuthWithConfig(r.config)

	api := engine.Group(r.config.GetAPIBasePath())
	{
		sessions.SetupSessionRoutes(api, r.sessionController(), auth)
		waitlist.SetupWaitlistRoutes(api, waitlist.NewController(r.manager, r.logger), auth, r.smsGuard())
		notifications.SetupNotificationRoutes(api,
			notifications.NewController(r.notifications.Dispatcher, r.deadLetters, r.logger), auth)
	}
}

func (r *Router) sessionController() *sessions.Controller {
	controller := sessions.NewController(r.capacity, r.manager, r.logger)
	if client := r.db.GetRedisClient(); client != nil {
		controller.WithCache(cache.NewService(client, r.logger), capacityViewTTL)
	}
	return controller
}

func (r *Router) smsGuard() gin.HandlerFunc {
	twilio := r.config.Notifications.Twilio
	if !twilio.ValidateWebhooks {
		r.logger.Warn("Twilio webhook signatures are not validated")
		return nil
	}
	return middleware.TwilioSignature(twilio.AuthToken, twilio.WebhookURL)
}

func (r *Router) setupHealthRoutes(engine *gin.Engine) {
	engine.GET("/health", func(c *gin.Context) {
		if err := r.db.HealthCheck(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":    "unhealthy",
				"error":     err.Error(),
				"timestamp": time.Now(),
				"service":   "academy-waitlist",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": time.Now(),
			"service":   "academy-waitlist",
		})
	})

	engine.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
			"version": r.config.APIVersion,
		})
	})
}
