// README: Trip management: create, publish, edit, start and complete a driver's offer.
package service

import (
	"context"
	"log"
	"time"

	"carpool/internal/apperrors"
	"carpool/internal/modules/trip"
	"carpool/internal/storage"
	"carpool/internal/types"
)

// RouteEstimator resolves places and driving time for new trips.
type RouteEstimator interface {
	EstimateArrival(ctx context.Context, origin, destination types.Place, departAt time.Time) (time.Time, error)
	Geocode(ctx context.Context, p types.Place) (types.Place, error)
}

type TripService struct {
	uow    storage.UnitOfWork
	routes RouteEstimator
	now    Clock
}

// NewTripService accepts a nil routes; callers must then supply the
// estimated arrival themselves.
func NewTripService(uow storage.UnitOfWork, routes RouteEstimator) *TripService {
	return &TripService{uow: uow, routes: routes, now: systemClock}
}

func (s *TripService) WithClock(c Clock) *TripService {
	s.now = c
	return s
}

type CreateTripCommand struct {
	DriverID           types.ID
	VehicleID          types.ID
	VehicleSeats       int
	Origin             types.Place
	Destination        types.Place
	DepartureAt        time.Time
	EstimatedArrivalAt time.Time
	PricePerSeat       types.Money
	TotalSeats         int
	Notes              string
	Publish            bool
}

func (s *TripService) CreateTrip(ctx context.Context, cmd CreateTripCommand) (*trip.Trip, error) {
	now := s.now()
	origin, destination := cmd.Origin, cmd.Destination
	arrival := cmd.EstimatedArrivalAt
	if s.routes != nil {
		origin = s.geocode(ctx, origin)
		destination = s.geocode(ctx, destination)
		if arrival.IsZero() && !cmd.DepartureAt.IsZero() {
			eta, err := s.routes.EstimateArrival(ctx, origin, destination, cmd.DepartureAt)
			if err != nil {
				log.Printf("trip: estimate arrival: %v", err)
			} else {
				arrival = eta
			}
		}
	}
	if arrival.IsZero() {
		return nil, apperrors.BadRequest("estimated arrival is required")
	}
	price := cmd.PricePerSeat
	if price.Currency == "" {
		price.Currency = types.DefaultCurrency
	}

	t := trip.Trip{
		ID:                 types.NewID(),
		DriverID:           cmd.DriverID,
		VehicleID:          cmd.VehicleID,
		VehicleSeats:       cmd.VehicleSeats,
		Origin:             origin,
		Destination:        destination,
		DepartureAt:        cmd.DepartureAt,
		EstimatedArrivalAt: arrival,
		PricePerSeat:       price,
		TotalSeats:         cmd.TotalSeats,
		Status:             trip.StatusDraft,
		Notes:              cmd.Notes,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if !t.IsDepartureInFuture(now) {
		return nil, apperrors.BadRequest("departure must be in the future")
	}
	if err := s.checkOverlap(ctx, s.uow, t, ""); err != nil {
		return nil, err
	}
	if cmd.Publish {
		published, err := t.Publish(now)
		if err != nil {
			return nil, err
		}
		t = published
	}
	if err := s.uow.Trips().Create(ctx, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *TripService) geocode(ctx context.Context, p types.Place) types.Place {
	out, err := s.routes.Geocode(ctx, p)
	if err != nil {
		log.Printf("trip: %v", err)
		return p
	}
	return out
}

func (s *TripService) checkOverlap(ctx context.Context, repos storage.Repositories, t trip.Trip, exclude types.ID) error {
	others, err := repos.Trips().FindOverlappingTrips(ctx, t.DriverID, t.DepartureAt, t.EstimatedArrivalAt, exclude)
	if err != nil {
		return err
	}
	if len(others) > 0 {
		return ErrOverlappingTrip
	}
	return nil
}

func (s *TripService) GetTrip(ctx context.Context, id types.ID) (*trip.Trip, error) {
	return s.uow.Trips().FindByID(ctx, id)
}

func (s *TripService) PublishTrip(ctx context.Context, tripID, driverID types.ID) (*trip.Trip, error) {
	return s.move(ctx, tripID, driverID, trip.StatusPublished, trip.Trip.Publish)
}

func (s *TripService) StartTrip(ctx context.Context, tripID, driverID types.ID) (*trip.Trip, error) {
	return s.move(ctx, tripID, driverID, trip.StatusInProgress, trip.Trip.Start)
}

func (s *TripService) CompleteTrip(ctx context.Context, tripID, driverID types.ID) (*trip.Trip, error) {
	return s.move(ctx, tripID, driverID, trip.StatusCompleted, trip.Trip.Complete)
}

// move applies an owner-only transition with a status-guarded write.
func (s *TripService) move(ctx context.Context, tripID, driverID types.ID, to trip.Status, fn func(trip.Trip, time.Time) (trip.Trip, error)) (*trip.Trip, error) {
	t, err := s.uow.Trips().FindByID(ctx, tripID)
	if err != nil {
		return nil, err
	}
	if t.DriverID != driverID {
		return nil, apperrors.ErrForbiddenOwner
	}
	next, err := fn(*t, s.now())
	if err != nil {
		return nil, err
	}
	ok, err := s.uow.Trips().Update(ctx, t.ID, t.Status, trip.StatusPatch(next))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, lostTripRace(ctx, s.uow, t.ID, to)
	}
	return &next, nil
}

// UpdateTrip edits a draft or published trip. A seat change is written
// through the ledger in the same unit of work, so it fails with
// ErrCapacityExceeded if accepted bookings already hold more seats.
func (s *TripService) UpdateTrip(ctx context.Context, tripID, driverID types.ID, p trip.Patch) (*trip.Trip, error) {
	if p.Status != nil || p.StartedAt != nil || p.CompletedAt != nil || p.CanceledAt != nil {
		return nil, apperrors.BadRequest("status fields cannot be patched")
	}
	now := s.now()
	var out trip.Trip
	err := storage.WithinTx(ctx, s.uow, "update trip", func(repos storage.Repositories) error {
		t, err := repos.Trips().FindByID(ctx, tripID)
		if err != nil {
			return err
		}
		if t.DriverID != driverID {
			return apperrors.ErrForbiddenOwner
		}
		if t.Status != trip.StatusDraft && t.Status != trip.StatusPublished {
			return &apperrors.TransitionError{
				Entity: "trip", Current: string(t.Status), Attempted: string(t.Status),
				Reason: "only draft or published trips can be edited",
			}
		}
		next := p.Apply(*t, now)
		if err := next.Validate(); err != nil {
			return err
		}
		if p.ChangesSchedule() {
			if !next.IsDepartureInFuture(now) {
				return apperrors.BadRequest("departure must be in the future")
			}
			if err := s.checkOverlap(ctx, repos, next, t.ID); err != nil {
				return err
			}
		}
		if p.TotalSeats != nil && *p.TotalSeats != t.TotalSeats {
			if _, err := repos.Ledgers().Resize(ctx, t.ID, *p.TotalSeats); err != nil {
				return err
			}
		}
		ok, err := repos.Trips().Update(ctx, t.ID, t.Status, p)
		if err != nil {
			return err
		}
		if !ok {
			return lostTripRace(ctx, repos, t.ID, t.Status)
		}
		out = next
		return nil
	})
	if err != nil {
		return nil, txErr("update trip", err)
	}
	return &out, nil
}
