package domain

import "time"

// StatusUpdate is one immutable audit record of a delivery's status at a
// point in time. Entries are append-only; ordered by timestamp they form the
// delivery's full status history.
type StatusUpdate struct {
	ID         string
	DeliveryID string
	Status     Status
	Timestamp  time.Time
	Location   *string
	Notes      *string
}
