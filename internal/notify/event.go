// README: Domain events emitted after booking and trip state changes commit.
package notify

import (
	"context"
	"time"

	"carpool/internal/types"
)

type EventType string

const (
	BookingRequested          EventType = "booking.requested"
	BookingAccepted           EventType = "booking.accepted"
	BookingDeclined           EventType = "booking.declined"
	BookingCanceled           EventType = "booking.canceled"
	BookingDeclinedAuto       EventType = "booking.declined_auto"
	BookingCanceledByPlatform EventType = "booking.canceled_by_platform"
	TripCanceled              EventType = "trip.canceled"
)

// Event carries enough for a consumer to notify the recipient or open a
// refund without reading the primary database.
type Event struct {
	Type         EventType `json:"type"`
	RecipientID  types.ID  `json:"recipient_id"`
	TripID       types.ID  `json:"trip_id"`
	BookingID    types.ID  `json:"booking_id,omitempty"`
	Seats        int       `json:"seats,omitempty"`
	Reason       string    `json:"reason,omitempty"`
	RefundNeeded bool      `json:"refund_needed,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// Notifier delivers events. Callers treat delivery as best effort: a failure
// is logged and never undoes the committed change.
type Notifier interface {
	Notify(ctx context.Context, e Event) error
}

// Send delivers events in order and logs failures.
func Send(ctx context.Context, n Notifier, events ...Event) {
	if n == nil {
		return
	}
	for _, e := range events {
		if err := n.Notify(ctx, e); err != nil {
			logf("notify: %s to %s: %v", e.Type, e.RecipientID, err)
		}
	}
}
