package domain

import (
	"fmt"
	"strings"
	"time"
)

// Status represents the lifecycle state of a delivery.
type Status string

const (
	StatusRegistered        Status = "REGISTERED"
	StatusPending           Status = "PENDING"
	StatusInTransit         Status = "IN_TRANSIT"
	StatusDelivered         Status = "DELIVERED"
	StatusDelayed           Status = "DELAYED"
	StatusAwaitingPickup    Status = "AWAITING_PICKUP"
	StatusProblemInDelivery Status = "PROBLEM_IN_DELIVERY"
	StatusReturned          Status = "RETURNED"
)

func (s Status) String() string { return string(s) }

func (s Status) IsValid() bool {
	switch s {
	case StatusRegistered, StatusPending, StatusInTransit, StatusDelivered,
		StatusDelayed, StatusAwaitingPickup, StatusProblemInDelivery, StatusReturned:
		return true
	}
	return false
}

// IsTerminal reports whether the aggregation engine treats the status as
// final. Transitions out of a terminal status are not blocked.
func (s Status) IsTerminal() bool {
	return s == StatusDelivered || s == StatusReturned
}

func ParseStatusFromString(s string) (Status, error) {
	normalized := strings.ToUpper(strings.TrimSpace(s))
	normalized = strings.ReplaceAll(normalized, " ", "_")
	st := Status(normalized)
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid status %q", ErrValidation, s)
	}
	return st, nil
}

// Delivery is the core domain entity representing one shipment.
type Delivery struct {
	ID                 string
	TrackingCode       string
	Sender             string
	Recipient          string
	Origin             string
	Destination        string
	Status             Status
	ExpectedDeliveryAt *time.Time
	CompletedAt        *time.Time
	DelayReason        *string
	ReturnReason       *string
	DistanceKM         *float64
	WeightKG           *float64
	Price              *float64
	DriverID           *string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (d *Delivery) Validate() error {
	if d.TrackingCode == "" {
		return fmt.Errorf("%w: tracking code is required", ErrValidation)
	}
	if d.Sender == "" {
		return fmt.Errorf("%w: sender is required", ErrValidation)
	}
	if d.Recipient == "" {
		return fmt.Errorf("%w: recipient is required", ErrValidation)
	}
	if d.Origin == "" {
		return fmt.Errorf("%w: origin is required", ErrValidation)
	}
	if d.Destination == "" {
		return fmt.Errorf("%w: destination is required", ErrValidation)
	}
	if !d.Status.IsValid() {
		return fmt.Errorf("%w: invalid status %q", ErrValidation, d.Status)
	}
	return nil
}

// Region derives a coarse geographic grouping key from the destination:
// the substring after the last comma, or the whole destination when it has
// no comma.
func (d *Delivery) Region() string {
	dest := strings.TrimSpace(d.Destination)
	idx := strings.LastIndex(dest, ",")
	if idx < 0 {
		return dest
	}
	return strings.TrimSpace(dest[idx+1:])
}
