package service

import (
	"context"
	"fmt"
	"time"

	"github.com/expresso-itaporanga/tracking-api/internal/observability"
	"github.com/expresso-itaporanga/tracking-api/internal/provider"
	"github.com/expresso-itaporanga/tracking-api/internal/queue"
	"github.com/expresso-itaporanga/tracking-api/internal/ratelimit"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	minForwarderConcurrency = 1
	webhookRateKey          = "webhook"
)

// EventForwarder consumes delivery status-change events and posts them to
// the configured webhook endpoint. Transient failures requeue the event;
// permanent failures are logged and dropped.
type EventForwarder struct {
	consumer    queue.Consumer
	forwarder   provider.Forwarder
	rateLimiter ratelimit.RateLimiter
	logger      *zap.Logger
	metrics     *observability.Metrics
	concurrency int
	now         func() time.Time
}

func NewEventForwarder(
	consumer queue.Consumer,
	forwarder provider.Forwarder,
	rateLimiter ratelimit.RateLimiter,
	concurrency int,
	logger *zap.Logger,
) (*EventForwarder, error) {
	if consumer == nil {
		return nil, fmt.Errorf("consumer is required")
	}
	if forwarder == nil {
		return nil, fmt.Errorf("forwarder is required")
	}
	if concurrency < minForwarderConcurrency {
		concurrency = minForwarderConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &EventForwarder{
		consumer:    consumer,
		forwarder:   forwarder,
		rateLimiter: rateLimiter,
		logger:      logger,
		concurrency: concurrency,
		now:         time.Now,
	}, nil
}

func (s *EventForwarder) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

// Start consumes the events queue until context cancellation.
func (s *EventForwarder) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	g, groupCtx := errgroup.WithContext(ctx)
	for i := 0; i < s.concurrency; i++ {
		workerID := i + 1

		g.Go(func() error {
			s.logger.Info("event forwarder started",
				zap.Int("workerId", workerID),
				zap.String("queue", queue.EventsQueueName),
			)

			err := s.consumer.Consume(groupCtx, queue.EventsQueueName, s.processEvent)
			if err != nil {
				s.logger.Error("event forwarder stopped with error",
					zap.Int("workerId", workerID),
					zap.Error(err),
				)
				return err
			}

			s.logger.Info("event forwarder stopped",
				zap.Int("workerId", workerID),
			)
			return nil
		})
	}

	return g.Wait()
}

func (s *EventForwarder) processEvent(ctx context.Context, msg queue.DeliveryEventMessage) error {
	if s.rateLimiter != nil {
		if err := s.rateLimiter.Wait(ctx, webhookRateKey); err != nil {
			return fmt.Errorf("rate limiter wait failed: %w", err)
		}
	}

	forwardStart := s.now()
	_, err := s.forwarder.Forward(ctx, msg)
	if s.metrics != nil {
		s.metrics.ObserveEventForwardDuration(s.now().Sub(forwardStart))
	}

	if err == nil {
		if s.metrics != nil {
			s.metrics.IncEventForwarded()
		}
		return nil
	}

	if provider.IsTransient(err) {
		s.logger.Warn("transient webhook failure, requeueing event",
			zap.String("trackingCode", msg.TrackingCode),
			zap.Error(err),
		)
		return err
	}

	s.logger.Warn("dropping event after permanent webhook failure",
		zap.String("trackingCode", msg.TrackingCode),
		zap.String("status", msg.Status.String()),
		zap.Error(err),
	)
	if s.metrics != nil {
		s.metrics.IncEventDropped("permanent_error")
	}
	return nil
}
