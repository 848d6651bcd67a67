// README: Booking request aggregate, status definitions and transition functions.
package booking

import (
	"time"

	"carpool/internal/apperrors"
	"carpool/internal/types"
)

type Status string

const (
	StatusPending             Status = "pending"
	StatusAccepted            Status = "accepted"
	StatusDeclined            Status = "declined"
	StatusDeclinedAuto        Status = "declined_auto"
	StatusCanceledByPassenger Status = "canceled_by_passenger"
	StatusCanceledByPlatform  Status = "canceled_by_platform"
	StatusExpired             Status = "expired"
)

const (
	DefaultSeats  = 1
	MaxNoteLength = 300

	ReasonTripCanceled = "trip_canceled"
	ReasonExpired      = "pending_ttl_elapsed"
)

type Booking struct {
	ID                 types.ID   `json:"id"`
	TripID             types.ID   `json:"trip_id"`
	PassengerID        types.ID   `json:"passenger_id"`
	Status             Status     `json:"status"`
	Seats              int        `json:"seats"`
	Note               string     `json:"note,omitempty"`
	AcceptedAt         *time.Time `json:"accepted_at,omitempty"`
	AcceptedBy         *types.ID  `json:"accepted_by,omitempty"`
	DeclinedAt         *time.Time `json:"declined_at,omitempty"`
	DeclinedBy         *types.ID  `json:"declined_by,omitempty"`
	DeclineReason      *string    `json:"decline_reason,omitempty"`
	CanceledAt         *time.Time `json:"canceled_at,omitempty"`
	CancellationReason *string    `json:"cancellation_reason,omitempty"`
	ExpiredAt          *time.Time `json:"expired_at,omitempty"`
	RefundNeeded       bool       `json:"-"`
	IsPaid             bool       `json:"is_paid"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// AllowedTransitions represents the booking state flow as code.
var AllowedTransitions = map[Status][]Status{
	StatusPending: {
		StatusAccepted,
		StatusDeclined,
		StatusDeclinedAuto,
		StatusCanceledByPassenger,
		StatusExpired,
	},
	StatusAccepted: {StatusCanceledByPassenger, StatusCanceledByPlatform},
}

func CanTransition(from, to Status) bool {
	for _, s := range AllowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsActive reports whether a booking in this status blocks another request
// by the same passenger on the same trip.
func (s Status) IsActive() bool {
	return s == StatusPending || s == StatusAccepted
}

func (s Status) IsTerminal() bool {
	return len(AllowedTransitions[s]) == 0
}

// New builds a pending booking. seats <= 0 falls back to DefaultSeats.
func New(tripID, passengerID types.ID, seats int, note string, now time.Time) (Booking, error) {
	if seats <= 0 {
		seats = DefaultSeats
	}
	if len([]rune(note)) > MaxNoteLength {
		return Booking{}, apperrors.BadRequest("note exceeds 300 characters")
	}
	return Booking{
		ID:          types.NewID(),
		TripID:      tripID,
		PassengerID: passengerID,
		Status:      StatusPending,
		Seats:       seats,
		Note:        note,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

func (b Booking) transition(to Status, now time.Time) (Booking, error) {
	if !CanTransition(b.Status, to) {
		return b, apperrors.Transition("booking", string(b.Status), string(to))
	}
	next := b
	next.Status = to
	next.UpdatedAt = now
	return next, nil
}

// idempotent returns (b, false, nil) when b is already in status to, so a
// repeated command succeeds without effects.
func (b Booking) idempotent(to Status, now time.Time) (Booking, bool, error) {
	if b.Status == to {
		return b, false, nil
	}
	next, err := b.transition(to, now)
	if err != nil {
		return b, false, err
	}
	return next, true, nil
}

func (b Booking) Accept(driverID types.ID, now time.Time) (Booking, error) {
	next, err := b.transition(StatusAccepted, now)
	if err != nil {
		return b, err
	}
	next.AcceptedAt = &now
	next.AcceptedBy = &driverID
	return next, nil
}

func (b Booking) Decline(driverID types.ID, reason string, now time.Time) (Booking, bool, error) {
	next, changed, err := b.idempotent(StatusDeclined, now)
	if err != nil || !changed {
		return next, changed, err
	}
	next.DeclinedAt = &now
	next.DeclinedBy = &driverID
	next.DeclineReason = optional(reason)
	return next, true, nil
}

// DeclineAuto is the system decline used when the trip goes away.
func (b Booking) DeclineAuto(now time.Time) (Booking, bool, error) {
	next, changed, err := b.idempotent(StatusDeclinedAuto, now)
	if err != nil || !changed {
		return next, changed, err
	}
	reason := ReasonTripCanceled
	next.DeclinedAt = &now
	next.DeclineReason = &reason
	return next, true, nil
}

// CancelByPassenger is legal from pending or accepted. Canceling an accepted
// booking flags it for refund; releasing its seats is the caller's job.
func (b Booking) CancelByPassenger(reason string, now time.Time) (Booking, bool, error) {
	next, changed, err := b.idempotent(StatusCanceledByPassenger, now)
	if err != nil || !changed {
		return next, changed, err
	}
	next.CanceledAt = &now
	next.CancellationReason = optional(reason)
	if b.Status == StatusAccepted {
		next.RefundNeeded = true
	}
	return next, true, nil
}

// CancelByPlatform always flags a refund.
func (b Booking) CancelByPlatform(reason string, now time.Time) (Booking, bool, error) {
	next, changed, err := b.idempotent(StatusCanceledByPlatform, now)
	if err != nil || !changed {
		return next, changed, err
	}
	next.CanceledAt = &now
	next.CancellationReason = optional(reason)
	next.RefundNeeded = true
	return next, true, nil
}

func (b Booking) Expire(now time.Time) (Booking, bool, error) {
	next, changed, err := b.idempotent(StatusExpired, now)
	if err != nil || !changed {
		return next, changed, err
	}
	next.ExpiredAt = &now
	return next, true, nil
}

// HoldsSeats reports whether the booking currently counts toward the ledger.
func (b Booking) HoldsSeats() bool {
	return b.Status == StatusAccepted
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
