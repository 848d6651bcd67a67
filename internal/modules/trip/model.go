// README: Trip offer aggregate, status definitions and transition functions.
package trip

import (
	"time"

	"carpool/internal/apperrors"
	"carpool/internal/types"
)

type Status string

const (
	StatusDraft      Status = "draft"
	StatusPublished  Status = "published"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCanceled   Status = "canceled"
)

const MaxNotesLength = 1000

type Trip struct {
	ID                 types.ID    `json:"id"`
	DriverID           types.ID    `json:"driver_id"`
	VehicleID          types.ID    `json:"vehicle_id,omitempty"`
	VehicleSeats       int         `json:"vehicle_seats,omitempty"`
	Origin             types.Place `json:"origin"`
	Destination        types.Place `json:"destination"`
	DepartureAt        time.Time   `json:"departure_at"`
	EstimatedArrivalAt time.Time   `json:"estimated_arrival_at"`
	PricePerSeat       types.Money `json:"price_per_seat"`
	TotalSeats         int         `json:"total_seats"`
	Status             Status      `json:"status"`
	Notes              string      `json:"notes,omitempty"`
	CreatedAt          time.Time   `json:"created_at"`
	UpdatedAt          time.Time   `json:"updated_at"`
	StartedAt          *time.Time  `json:"started_at,omitempty"`
	CompletedAt        *time.Time  `json:"completed_at,omitempty"`
	CanceledAt         *time.Time  `json:"canceled_at,omitempty"`
}

// AllowedTransitions represents the trip state flow as code.
var AllowedTransitions = map[Status][]Status{
	StatusDraft:      {StatusPublished, StatusCanceled},
	StatusPublished:  {StatusCanceled, StatusInProgress},
	StatusInProgress: {StatusCompleted},
}

func CanTransition(from, to Status) bool {
	for _, s := range AllowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// CanAutoComplete reports whether the lifecycle job may complete a trip in
// this status once its arrival time has passed.
func CanAutoComplete(s Status) bool {
	return s == StatusPublished
}

// IsActive reports whether the trip still occupies the driver's schedule.
func (s Status) IsActive() bool {
	return s == StatusDraft || s == StatusPublished || s == StatusInProgress
}

func (t Trip) IsDepartureInFuture(now time.Time) bool {
	return t.DepartureAt.After(now)
}

// FitsVehicle reports whether the offered seats fit the trip's vehicle.
// Zero VehicleSeats means the vehicle is unknown.
func (t Trip) FitsVehicle() bool {
	return t.VehicleSeats <= 0 || t.TotalSeats <= t.VehicleSeats
}

// Overlaps reports whether the trip's time window intersects [start, end).
func (t Trip) Overlaps(start, end time.Time) bool {
	return t.DepartureAt.Before(end) && start.Before(t.EstimatedArrivalAt)
}

// Validate checks the field invariants a stored trip must satisfy.
func (t Trip) Validate() error {
	switch {
	case t.DriverID == "":
		return apperrors.BadRequest("driver id is required")
	case t.TotalSeats <= 0:
		return apperrors.BadRequest("total seats must be positive")
	case t.VehicleSeats < 0:
		return apperrors.BadRequest("vehicle seats must not be negative")
	case !t.FitsVehicle():
		return apperrors.BadRequest("total seats exceed the vehicle's seats")
	case !t.DepartureAt.Before(t.EstimatedArrivalAt):
		return apperrors.BadRequest("departure must be before estimated arrival")
	case t.PricePerSeat.IsNegative():
		return apperrors.BadRequest("price per seat must not be negative")
	case len(t.Notes) > MaxNotesLength:
		return apperrors.BadRequest("notes too long")
	}
	return nil
}

func (t Trip) transition(to Status, now time.Time) (Trip, error) {
	if !CanTransition(t.Status, to) {
		return t, apperrors.Transition("trip", string(t.Status), string(to))
	}
	next := t
	next.Status = to
	next.UpdatedAt = now
	return next, nil
}

func (t Trip) Publish(now time.Time) (Trip, error) {
	if !t.IsDepartureInFuture(now) {
		return t, &apperrors.TransitionError{
			Entity: "trip", Current: string(t.Status), Attempted: string(StatusPublished),
			Reason: "departure is not in the future",
		}
	}
	return t.transition(StatusPublished, now)
}

// Cancel moves the trip to canceled. Canceling a canceled trip is a no-op
// and reports changed == false.
func (t Trip) Cancel(now time.Time) (next Trip, changed bool, err error) {
	if t.Status == StatusCanceled {
		return t, false, nil
	}
	next, err = t.transition(StatusCanceled, now)
	if err != nil {
		return t, false, err
	}
	next.CanceledAt = &now
	return next, true, nil
}

func (t Trip) Start(now time.Time) (Trip, error) {
	next, err := t.transition(StatusInProgress, now)
	if err != nil {
		return t, err
	}
	next.StartedAt = &now
	return next, nil
}

func (t Trip) Complete(now time.Time) (Trip, error) {
	next, err := t.transition(StatusCompleted, now)
	if err != nil {
		return t, err
	}
	next.CompletedAt = &now
	return next, nil
}

// Patch carries the owner-editable fields of a trip; nil fields are left
// unchanged.
type Patch struct {
	VehicleID          *types.ID
	VehicleSeats       *int
	Origin             *types.Place
	Destination        *types.Place
	DepartureAt        *time.Time
	EstimatedArrivalAt *time.Time
	PricePerSeat       *types.Money
	TotalSeats         *int
	Notes              *string

	// Set by transitions only.
	Status      *Status
	StartedAt   *time.Time
	CompletedAt *time.Time
	CanceledAt  *time.Time
}

// Apply returns t with p applied.
func (p Patch) Apply(t Trip, now time.Time) Trip {
	if p.VehicleID != nil {
		t.VehicleID = *p.VehicleID
	}
	if p.VehicleSeats != nil {
		t.VehicleSeats = *p.VehicleSeats
	}
	if p.Origin != nil {
		t.Origin = *p.Origin
	}
	if p.Destination != nil {
		t.Destination = *p.Destination
	}
	if p.DepartureAt != nil {
		t.DepartureAt = *p.DepartureAt
	}
	if p.EstimatedArrivalAt != nil {
		t.EstimatedArrivalAt = *p.EstimatedArrivalAt
	}
	if p.PricePerSeat != nil {
		t.PricePerSeat = *p.PricePerSeat
	}
	if p.TotalSeats != nil {
		t.TotalSeats = *p.TotalSeats
	}
	if p.Notes != nil {
		t.Notes = *p.Notes
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
	if p.StartedAt != nil {
		t.StartedAt = p.StartedAt
	}
	if p.CompletedAt != nil {
		t.CompletedAt = p.CompletedAt
	}
	if p.CanceledAt != nil {
		t.CanceledAt = p.CanceledAt
	}
	t.UpdatedAt = now
	return t
}

// StatusPatch builds the patch that persists a transition result.
func StatusPatch(next Trip) Patch {
	return Patch{
		Status:      &next.Status,
		StartedAt:   next.StartedAt,
		CompletedAt: next.CompletedAt,
		CanceledAt:  next.CanceledAt,
	}
}

// ChangesSchedule reports whether the patch moves the trip in time.
func (p Patch) ChangesSchedule() bool {
	return p.DepartureAt != nil || p.EstimatedArrivalAt != nil
}
