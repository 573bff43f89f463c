package queue

import (
	"fmt"
	"strings"
	"time"

	"github.com/expresso-itaporanga/tracking-api/internal/domain"
)

// DeliveryEventMessage is the broker payload for one status change.
type DeliveryEventMessage struct {
	DeliveryID   string        `json:"deliveryId"`
	TrackingCode string        `json:"trackingCode"`
	Status       domain.Status `json:"status"`
	Location     *string       `json:"location,omitempty"`
	OccurredAt   time.Time     `json:"occurredAt"`
}

func (m DeliveryEventMessage) Validate() error {
	if strings.TrimSpace(m.DeliveryID) == "" {
		return fmt.Errorf("deliveryId is required")
	}
	if strings.TrimSpace(m.TrackingCode) == "" {
		return fmt.Errorf("trackingCode is required")
	}
	if !m.Status.IsValid() {
		return fmt.Errorf("invalid status %q", m.Status)
	}
	if m.OccurredAt.IsZero() {
		return fmt.Errorf("occurredAt is required")
	}
	return nil
}
