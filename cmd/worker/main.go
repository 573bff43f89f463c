package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/expresso-itaporanga/tracking-api/internal/config"
	infraredis "github.com/expresso-itaporanga/tracking-api/internal/infra/redis"
	"github.com/expresso-itaporanga/tracking-api/internal/observability"
	"github.com/expresso-itaporanga/tracking-api/internal/provider"
	"github.com/expresso-itaporanga/tracking-api/internal/queue"
	"github.com/expresso-itaporanga/tracking-api/internal/service"
)

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

	if cfg.WebhookURL == "" {
		logger.Fatal("WEBHOOK_URL is required for the worker")
	}

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

	limiter, err := infraredis.NewRedisRateLimiter(rdb, cfg.WebhookRatePerSec)
	if err != nil {
		logger.Fatal("rate limiter init failed", zap.Error(err))
	}

	forwarder, err := provider.NewWebhookForwarder(cfg.WebhookURL)
	if err != nil {
		logger.Fatal("webhook forwarder init failed", zap.Error(err))
	}

	consumer := queue.NewRabbitMQConsumer(rabbit, cfg.WorkerConcurrency, logger)
	defer consumer.Close()

	eventForwarder, err := service.NewEventForwarder(consumer, forwarder, limiter, cfg.WorkerConcurrency, logger)
	if err != nil {
		logger.Fatal("event forwarder init failed", zap.Error(err))
	}
	eventForwarder.SetMetrics(observability.NewMetrics())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("tracking worker started",
		zap.Int("concurrency", cfg.WorkerConcurrency),
		zap.Int("ratePerSec", cfg.WebhookRatePerSec),
	)

	if err := eventForwarder.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("worker stopped", zap.Error(err))
	}

	logger.Info("tracking worker stopped")
}
