package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"go.uber.org/zap"

	"github.com/expresso-itaporanga/tracking-api/internal/config"
	"github.com/expresso-itaporanga/tracking-api/internal/handler"
	"github.com/expresso-itaporanga/tracking-api/internal/infra/postgresql"
	"github.com/expresso-itaporanga/tracking-api/internal/infra/postgresql/migrations"
	infraredis "github.com/expresso-itaporanga/tracking-api/internal/infra/redis"
	"github.com/expresso-itaporanga/tracking-api/internal/observability"
	"github.com/expresso-itaporanga/tracking-api/internal/queue"
	"github.com/expresso-itaporanga/tracking-api/internal/repository"
	"github.com/expresso-itaporanga/tracking-api/internal/service"
	"github.com/expresso-itaporanga/tracking-api/internal/transport"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config: ", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatal("failed to initialize logger: ", err)
	}
	defer logger.Sync() //nolint:errcheck

	db, err := postgresql.NewPostgres(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("postgres initialization failed", zap.Error(err))
	}

	if err := migrations.Migrate(db); err != nil {
		logger.Fatal("database migrations failed", zap.Error(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("postgres underlying db init failed", zap.Error(err))
	}
	defer sqlDB.Close()

	rdb, err := infraredis.NewRedis(cfg.RedisURL)
	if err != nil {
		logger.Fatal("redis initialization failed", zap.Error(err))
	}
	defer rdb.Close()

	rabbit, err := queue.NewRabbitMQ(cfg.RabbitMQURL)
	if err != nil {
		logger.Fatal("rabbitmq initialization failed", zap.Error(err))
	}
	defer rabbit.Close()

	publisher := queue.NewRabbitMQPublisher(rabbit)
	metrics := observability.NewMetrics()

	deliveryRepo := repository.NewGormDeliveryRepo(db)
	userRepo := repository.NewGormUserRepo(db)

	deliveryService, err := service.NewDeliveryService(deliveryRepo, userRepo, publisher, logger)
	if err != nil {
		logger.Fatal("delivery service init failed", zap.Error(err))
	}
	deliveryService.SetMetrics(metrics)

	reportService, err := service.NewReportService(deliveryRepo, logger)
	if err != nil {
		logger.Fatal("report service init failed", zap.Error(err))
	}
	reportService.SetMetrics(metrics)

	userService, err := service.NewUserService(userRepo, logger)
	if err != nil {
		logger.Fatal("user service init failed", zap.Error(err))
	}

	app := fiber.New(fiber.Config{
		AppName:      "tracking-api",
		ErrorHandler: transport.ErrorHandler(logger),
	})
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(metrics.HTTPMiddleware())

	handler.RegisterHealthRoutes(app, sqlDB, rdb)
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	if err := handler.RegisterDeliveryRoutes(app, deliveryService); err != nil {
		logger.Fatal("delivery routes init failed", zap.Error(err))
	}
	if err := handler.RegisterReportRoutes(app, reportService); err != nil {
		logger.Fatal("report routes init failed", zap.Error(err))
	}
	if err := handler.RegisterUserRoutes(app, userService); err != nil {
		logger.Fatal("user routes init failed", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		logger.Info("shutting down api")
		if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
			logger.Error("shutdown failed", zap.Error(err))
		}
	}()

	logger.Info("tracking api started", zap.Int("port", cfg.APIPort))
	if err := app.Listen(fmt.Sprintf(":%d", cfg.APIPort)); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}
