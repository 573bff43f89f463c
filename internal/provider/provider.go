package provider

import (
	"context"

	"github.com/expresso-itaporanga/tracking-api/internal/queue"
)

// Forwarder is the outbound port delivering status-change events to an
// external endpoint.
type Forwarder interface {
	Forward(ctx context.Context, event queue.DeliveryEventMessage) (*ForwardResponse, error)
}

// ForwardResponse stores call metadata for logging and metrics.
type ForwardResponse struct {
	StatusCode int
	Body       string
}
