// README: Booking lifecycle coordinator: request, accept, decline and passenger cancel.
package service

import (
	"context"
	"errors"
	"log"

	"carpool/internal/apperrors"
	"carpool/internal/metrics"
	"carpool/internal/modules/booking"
	"carpool/internal/modules/trip"
	"carpool/internal/notify"
	"carpool/internal/storage"
	"carpool/internal/types"
)

type BookingService struct {
	uow      storage.UnitOfWork
	notifier notify.Notifier
	now      Clock
}

func NewBookingService(uow storage.UnitOfWork, notifier notify.Notifier) *BookingService {
	return &BookingService{uow: uow, notifier: notifier, now: systemClock}
}

// WithClock replaces the time source.
func (s *BookingService) WithClock(c Clock) *BookingService {
	s.now = c
	return s
}

type CreateBookingCommand struct {
	TripID      types.ID
	PassengerID types.ID
	Seats       int
	Note        string
}

type AcceptBookingCommand struct {
	BookingID types.ID
	DriverID  types.ID
}

type DeclineBookingCommand struct {
	BookingID types.ID
	DriverID  types.ID
	Reason    string
}

type CancelBookingCommand struct {
	BookingID   types.ID
	PassengerID types.ID
	Reason      string
}

// BookingResult is the outcome of a booking command. Changed is false when
// the command found the booking already in its target status and did nothing.
type BookingResult struct {
	Booking        *booking.Booking `json:"booking"`
	Changed        bool             `json:"changed"`
	SeatsAllocated int              `json:"seats_allocated"`
	SeatsReleased  int              `json:"seats_released"`
	RefundNeeded   bool             `json:"-"`
}

func (s *BookingService) CreateBooking(ctx context.Context, cmd CreateBookingCommand) (*BookingResult, error) {
	if cmd.TripID == "" || cmd.PassengerID == "" {
		return nil, apperrors.BadRequest("trip id and passenger id are required")
	}
	if cmd.Seats < 0 {
		return nil, apperrors.BadRequest("seats must be positive")
	}
	now := s.now()
	var (
		t *trip.Trip
		b booking.Booking
	)
	// The share lock on the trip row keeps a cascade from canceling the trip
	// between the status check and the insert.
	err := storage.WithinTx(ctx, s.uow, "create booking", func(repos storage.Repositories) error {
		var err error
		if t, err = repos.Trips().FindByIDForShare(ctx, cmd.TripID); err != nil {
			return err
		}
		if t.DriverID == cmd.PassengerID {
			return ErrSelfBooking
		}
		if err := bookable(t, booking.StatusPending, now); err != nil {
			return err
		}
		if cmd.Seats > t.TotalSeats {
			return apperrors.BadRequest("seats exceed the trip's total seats")
		}

		if _, err := repos.Bookings().FindActiveBooking(ctx, cmd.PassengerID, cmd.TripID); err == nil {
			return apperrors.ErrDuplicateRequest
		} else if !errors.Is(err, apperrors.ErrNotFound) {
			return err
		}

		if b, err = booking.New(cmd.TripID, cmd.PassengerID, cmd.Seats, cmd.Note, now); err != nil {
			return err
		}
		// The store rejects a concurrent duplicate with ErrDuplicateRequest.
		return repos.Bookings().Create(ctx, &b)
	})
	if err != nil {
		return nil, txErr("create booking", err)
	}
	metrics.IncBookingTransition(string(b.Status))
	notify.Send(ctx, s.notifier, notify.Event{
		Type:        notify.BookingRequested,
		RecipientID: t.DriverID,
		TripID:      t.ID,
		BookingID:   b.ID,
		Seats:       b.Seats,
		OccurredAt:  now,
	})
	return &BookingResult{Booking: &b, Changed: true}, nil
}

// AcceptBooking allocates the booking's seats and marks it accepted in one
// unit of work. If the seats do not fit the booking stays pending.
func (s *BookingService) AcceptBooking(ctx context.Context, cmd AcceptBookingCommand) (*BookingResult, error) {
	now := s.now()
	var res BookingResult
	err := storage.WithinTx(ctx, s.uow, "accept booking", func(repos storage.Repositories) error {
		b, err := repos.Bookings().FindByID(ctx, cmd.BookingID)
		if err != nil {
			return err
		}
		t, err := repos.Trips().FindByID(ctx, b.TripID)
		if err != nil {
			return err
		}
		if t.DriverID != cmd.DriverID {
			return apperrors.ErrForbiddenOwner
		}
		next, err := b.Accept(cmd.DriverID, now)
		if err != nil {
			return err
		}
		if err := bookable(t, booking.StatusAccepted, now); err != nil {
			return err
		}
		if _, err := repos.Ledgers().Allocate(ctx, t.ID, t.TotalSeats, b.Seats); err != nil {
			if errors.Is(err, apperrors.ErrCapacityExceeded) {
				metrics.IncCapacityRejection()
			}
			return err
		}
		ok, err := repos.Bookings().Transition(ctx, booking.StatusPending, &next)
		if err != nil {
			return err
		}
		if !ok {
			return lostBookingRace(ctx, repos, b.ID, booking.StatusAccepted)
		}
		res = BookingResult{Booking: &next, Changed: true, SeatsAllocated: next.Seats}
		return nil
	})
	if err != nil {
		return nil, txErr("accept booking", err)
	}
	metrics.IncBookingTransition(string(booking.StatusAccepted))
	notify.Send(ctx, s.notifier, notify.Event{
		Type:        notify.BookingAccepted,
		RecipientID: res.Booking.PassengerID,
		TripID:      res.Booking.TripID,
		BookingID:   res.Booking.ID,
		Seats:       res.Booking.Seats,
		OccurredAt:  now,
	})
	return &res, nil
}

func (s *BookingService) DeclineBooking(ctx context.Context, cmd DeclineBookingCommand) (*BookingResult, error) {
	now := s.now()
	var res BookingResult
	err := storage.WithinTx(ctx, s.uow, "decline booking", func(repos storage.Repositories) error {
		b, err := repos.Bookings().FindByID(ctx, cmd.BookingID)
		if err != nil {
			return err
		}
		t, err := repos.Trips().FindByID(ctx, b.TripID)
		if err != nil {
			return err
		}
		if t.DriverID != cmd.DriverID {
			return apperrors.ErrForbiddenOwner
		}
		next, changed, err := b.Decline(cmd.DriverID, cmd.Reason, now)
		if err != nil {
			return err
		}
		if !changed {
			res = BookingResult{Booking: b}
			return nil
		}
		ok, err := repos.Bookings().Transition(ctx, booking.StatusPending, &next)
		if err != nil {
			return err
		}
		if !ok {
			return lostBookingRace(ctx, repos, b.ID, booking.StatusDeclined)
		}
		res = BookingResult{Booking: &next, Changed: true}
		return nil
	})
	if err != nil {
		return nil, txErr("decline booking", err)
	}
	if res.Changed {
		metrics.IncBookingTransition(string(booking.StatusDeclined))
		notify.Send(ctx, s.notifier, notify.Event{
			Type:        notify.BookingDeclined,
			RecipientID: res.Booking.PassengerID,
			TripID:      res.Booking.TripID,
			BookingID:   res.Booking.ID,
			Reason:      cmd.Reason,
			OccurredAt:  now,
		})
	}
	return &res, nil
}

// CancelByPassenger withdraws a pending or accepted booking. Canceling an
// accepted booking releases its seats and flags it for refund in the same
// unit of work.
func (s *BookingService) CancelByPassenger(ctx context.Context, cmd CancelBookingCommand) (*BookingResult, error) {
	now := s.now()
	var res BookingResult
	var driverID types.ID
	err := storage.WithinTx(ctx, s.uow, "cancel booking", func(repos storage.Repositories) error {
		b, err := repos.Bookings().FindByID(ctx, cmd.BookingID)
		if err != nil {
			return err
		}
		if b.PassengerID != cmd.PassengerID {
			return apperrors.ErrForbiddenOwner
		}
		next, changed, err := b.CancelByPassenger(cmd.Reason, now)
		if err != nil {
			return err
		}
		if !changed {
			res = BookingResult{Booking: b}
			return nil
		}
		released := 0
		if b.HoldsSeats() {
			if _, err := repos.Ledgers().Deallocate(ctx, b.TripID, b.Seats); err != nil {
				return err
			}
			released = b.Seats
		}
		ok, err := repos.Bookings().Transition(ctx, b.Status, &next)
		if err != nil {
			return err
		}
		if !ok {
			return lostBookingRace(ctx, repos, b.ID, booking.StatusCanceledByPassenger)
		}
		if t, err := repos.Trips().FindByID(ctx, b.TripID); err == nil {
			driverID = t.DriverID
		}
		res = BookingResult{Booking: &next, Changed: true, SeatsReleased: released, RefundNeeded: next.RefundNeeded}
		return nil
	})
	if err != nil {
		return nil, txErr("cancel booking", err)
	}
	if res.Changed {
		metrics.IncBookingTransition(string(booking.StatusCanceledByPassenger))
		if driverID != "" {
			notify.Send(ctx, s.notifier, notify.Event{
				Type:         notify.BookingCanceled,
				RecipientID:  driverID,
				TripID:       res.Booking.TripID,
				BookingID:    res.Booking.ID,
				Seats:        res.SeatsReleased,
				Reason:       cmd.Reason,
				RefundNeeded: res.RefundNeeded,
				OccurredAt:   now,
			})
		}
		if res.RefundNeeded {
			log.Printf("booking: %s canceled after accept, refund flagged", res.Booking.ID)
		}
	}
	return &res, nil
}

// GetBooking returns the booking to its passenger or the trip's driver.
func (s *BookingService) GetBooking(ctx context.Context, bookingID, callerID types.ID) (*booking.Booking, error) {
	b, err := s.uow.Bookings().FindByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.PassengerID == callerID {
		return b, nil
	}
	t, err := s.uow.Trips().FindByID(ctx, b.TripID)
	if err != nil {
		return nil, err
	}
	if t.DriverID != callerID {
		return nil, apperrors.ErrForbiddenOwner
	}
	return b, nil
}

func (s *BookingService) ListTripBookings(ctx context.Context, tripID, driverID types.ID) ([]*booking.Booking, error) {
	t, err := s.uow.Trips().FindByID(ctx, tripID)
	if err != nil {
		return nil, err
	}
	if t.DriverID != driverID {
		return nil, apperrors.ErrForbiddenOwner
	}
	return s.uow.Bookings().ListByTrip(ctx, tripID)
}

func (s *BookingService) ListPassengerBookings(ctx context.Context, passengerID types.ID) ([]*booking.Booking, error) {
	return s.uow.Bookings().ListByPassenger(ctx, passengerID)
}

// SeatsLeft reports the free seats of a trip as seen by the ledger.
func (s *BookingService) SeatsLeft(ctx context.Context, t *trip.Trip) (int, error) {
	l, err := s.uow.Ledgers().GetByTripID(ctx, t.ID)
	if errors.Is(err, apperrors.ErrNotFound) {
		return t.TotalSeats, nil
	}
	if err != nil {
		return 0, err
	}
	return l.Available(t.TotalSeats), nil
}
