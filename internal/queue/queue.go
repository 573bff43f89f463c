package queue

import "context"

const (
	// EventsQueueName is the work queue carrying delivery status-change events.
	EventsQueueName = "delivery-events"
	// EventsDLQName receives events rejected as unprocessable.
	EventsDLQName = "dlq.delivery-events"
)

// Publisher publishes delivery events to a queue.
type Publisher interface {
	Publish(ctx context.Context, queue string, msg DeliveryEventMessage) error
	Close() error
}

// MessageHandler handles a consumed event message.
type MessageHandler func(ctx context.Context, msg DeliveryEventMessage) error

// Consumer consumes delivery events from a queue.
type Consumer interface {
	Consume(ctx context.Context, queue string, handler MessageHandler) error
	Close() error
}
