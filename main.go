package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/sirupsen/logrus"

	"funnelcrm/config"
	controller "funnelcrm/controllers"
	"funnelcrm/events"
	"funnelcrm/middleware"
	"funnelcrm/models"
	"funnelcrm/repository"
	"funnelcrm/routes"
	"funnelcrm/utils"
	"funnelcrm/worker"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}
	log := cfg.NewLogger()
	cfg.LogSummary(log)

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			Environment:      cfg.Environment,
			AttachStacktrace: true,
		}); err != nil {
			log.WithError(err).Warn("Sentry disabled")
		}
		defer sentry.Flush(2 * time.Second)
	}

	// Initialize database connection
	db, err := config.ConnectDB(cfg, log)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if cfg.BootstrapAdminEmail != "" {
		hash, err := controller.HashPassword(cfg.BootstrapAdminPassword)
		if err != nil {
			log.Fatalf("Failed to hash bootstrap password: %v", err)
		}
		if err := models.SeedAdmin(db, cfg.BootstrapAdminEmail, cfg.BootstrapAdminName, hash); err != nil {
			log.Fatalf("Failed to seed admin: %v", err)
		}
	}

	deps := routes.Deps{
		DB:     db,
		Config: cfg,
		Logger: log,
		Tokens: utils.NewTokenManager(cfg.JWTSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL),
		Store:  repository.NewLeadStore(db),
		Users:  repository.NewUserStore(db),
		Hub:    controller.NewHub(log.WithField("component", "hub")),
	}

	redisClient, err := config.ConnectRedis(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to redis: %v", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
		deps.Limiter = middleware.NewRedisStorage(redisClient, "login:")
		deps.Cache = repository.NewRedisReportCache(redisClient)
	}

	bus, err := newBus(cfg, log)
	if err != nil {
		log.Fatalf("Failed to connect to the event bus: %v", err)
	}
	deps.Events = bus

	// Create Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "funnelcrm",
		BodyLimit:    int(cfg.ImportMaxBytes) + 1<<20,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		ErrorHandler: errorHandler(log),
	})
	app.Use(recover.New(recover.Config{EnableStackTrace: !cfg.IsProduction()}))
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(middleware.CORS(middleware.DefaultCORSConfig(cfg.CORSOrigins...)))
	app.Use(middleware.Metrics())

	// Setup routes
	routes.SetupSystemRoutes(app, db)
	routes.SetupAuthRoutes(app, deps)
	routes.SetupAPIRoutes(app, deps)

	// Background workers
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	notifications := repository.NewNotificationStore(db)
	var mailer utils.MailSender
	if cfg.SMTP.Enabled() {
		mailer = utils.NewMailer(cfg.SMTP)
	}
	reminderWorker := worker.NewTaskReminderWorker(notifications, deps.Hub, mailer, cfg.AppURL,
		cfg.TaskReminderWindow, cfg.TaskReminderTick, cfg.Location, log.WithField("component", "task_reminder"))
	notificationWorker := worker.NewNotificationWorker(bus, notifications, deps.Hub, log.WithField("component", "notification_worker"))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); reminderWorker.Start(ctx) }()
	go func() { defer wg.Done(); notificationWorker.Start(ctx) }()

	// Start server
	go func() {
		log.WithField("port", cfg.ServerPort).Info("Server starting")
		if err := app.Listen(":" + cfg.ServerPort); err != nil {
			log.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.WithError(err).Error("Server forced to shutdown")
	}
	cancel()
	wg.Wait()
	if err := bus.Close(); err != nil {
		log.WithError(err).Warn("Event bus close failed")
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
	log.Info("Server exited")
}

// newBus connects to RabbitMQ when enabled and falls back to an in-process
// channel otherwise.
func newBus(cfg *config.Config, log *logrus.Logger) (events.Bus, error) {
	if !cfg.RabbitMQ.Enabled {
		log.Info("RabbitMQ disabled, using in-process event bus")
		return events.NewChannelBus(256), nil
	}
	return events.NewRabbitMQ(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange, cfg.RabbitMQ.Queue, log.WithField("component", "rabbitmq"))
}

// errorHandler renders errors that escape the handlers in the response envelope.
func errorHandler(log *logrus.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
		}
		if code >= fiber.StatusInternalServerError {
			utils.LogError(log, "unhandled_error", err, map[string]interface{}{
				"method": c.Method(),
				"path":   c.Path(),
			})
			return utils.ErrorResponse(c, code, "Internal server error", nil)
		}
		return utils.ErrorResponse(c, code, err.Error(), nil)
	}
}
