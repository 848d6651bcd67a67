// README: Trip cancellation that carries every booking and the seat ledger with it, all or nothing.
package service

import (
	"context"
	"log"
	"time"

	"carpool/internal/apperrors"
	"carpool/internal/metrics"
	"carpool/internal/modules/booking"
	"carpool/internal/modules/trip"
	"carpool/internal/notify"
	"carpool/internal/storage"
	"carpool/internal/types"
)

type CascadeService struct {
	uow      storage.UnitOfWork
	notifier notify.Notifier
	now      Clock
}

func NewCascadeService(uow storage.UnitOfWork, notifier notify.Notifier) *CascadeService {
	return &CascadeService{uow: uow, notifier: notifier, now: systemClock}
}

func (s *CascadeService) WithClock(c Clock) *CascadeService {
	s.now = c
	return s
}

// CascadeEffects counts what a trip cancellation touched. All zero means the
// trip was already canceled.
type CascadeEffects struct {
	DeclinedAuto       int64 `json:"declined_auto"`
	CanceledByPlatform int64 `json:"canceled_by_platform"`
	LedgerReleased     int64 `json:"ledger_released"`
	RefundsCreated     int64 `json:"refunds_created"`
	SeatsReleased      int   `json:"seats_released"`
}

type CascadeResult struct {
	Trip    *trip.Trip     `json:"trip"`
	Effects CascadeEffects `json:"effects"`
}

// CancelTripWithCascade cancels the trip, auto-declines its pending bookings,
// cancels its accepted bookings with a refund flag and releases their seats.
// Any failure rolls every step back and surfaces as ErrTransactionFailed.
func (s *CascadeService) CancelTripWithCascade(ctx context.Context, tripID, driverID types.ID) (*CascadeResult, error) {
	now := s.now()
	var (
		res      CascadeResult
		canceled bool
		pending  []*booking.Booking
		accepted []*booking.Booking
	)
	err := storage.WithinTx(ctx, s.uow, "cancel trip", func(repos storage.Repositories) error {
		// Ledger row first, then trip, then bookings: the order accept and
		// cancel use.
		if err := repos.Ledgers().Lock(ctx, tripID); err != nil {
			return err
		}
		t, err := repos.Trips().FindByID(ctx, tripID)
		if err != nil {
			return err
		}
		if t.DriverID != driverID {
			return apperrors.ErrForbiddenOwner
		}
		next, changed, err := t.Cancel(now)
		if err != nil {
			return err
		}
		if !changed {
			res.Trip = t
			return nil
		}

		ok, err := repos.Trips().Update(ctx, t.ID, t.Status, trip.StatusPatch(next))
		if err != nil {
			return err
		}
		if !ok {
			return lostTripRace(ctx, repos, t.ID, trip.StatusCanceled)
		}

		if pending, err = repos.Bookings().FindAllPendingByTrip(ctx, t.ID); err != nil {
			return err
		}
		if accepted, err = repos.Bookings().FindAllAcceptedByTrip(ctx, t.ID); err != nil {
			return err
		}

		declined, err := repos.Bookings().BulkDeclineAuto(ctx, t.ID, now)
		if err != nil {
			return err
		}
		platform, err := repos.Bookings().BulkCancelByPlatform(ctx, t.ID, now)
		if err != nil {
			return err
		}
		var released int64
		if platform.Seats > 0 {
			if _, err := repos.Ledgers().Deallocate(ctx, t.ID, platform.Seats); err != nil {
				return err
			}
			released = platform.Count
		}

		canceled = true
		res.Trip = &next
		res.Effects = CascadeEffects{
			DeclinedAuto:       declined,
			CanceledByPlatform: platform.Count,
			LedgerReleased:     released,
			RefundsCreated:     platform.Count,
			SeatsReleased:      platform.Seats,
		}
		return nil
	})
	if err != nil {
		err = txErr("cancel trip", err)
		log.Printf("cascade: cancel trip %s: %v", tripID, err)
		return nil, err
	}
	if !canceled {
		return &res, nil
	}

	metrics.IncTripCascade()
	metrics.AddBookingTransitions(string(booking.StatusDeclinedAuto), res.Effects.DeclinedAuto)
	metrics.AddBookingTransitions(string(booking.StatusCanceledByPlatform), res.Effects.CanceledByPlatform)
	s.notifyPassengers(ctx, res.Trip.ID, pending, accepted, now)
	return &res, nil
}

func (s *CascadeService) notifyPassengers(ctx context.Context, tripID types.ID, pending, accepted []*booking.Booking, now time.Time) {
	events := make([]notify.Event, 0, len(pending)+len(accepted))
	for _, b := range pending {
		events = append(events, notify.Event{
			Type:        notify.BookingDeclinedAuto,
			RecipientID: b.PassengerID,
			TripID:      tripID,
			BookingID:   b.ID,
			Seats:       b.Seats,
			Reason:      booking.ReasonTripCanceled,
			OccurredAt:  now,
		})
	}
	for _, b := range accepted {
		events = append(events, notify.Event{
			Type:         notify.BookingCanceledByPlatform,
			RecipientID:  b.PassengerID,
			TripID:       tripID,
			BookingID:    b.ID,
			Seats:        b.Seats,
			Reason:       booking.ReasonTripCanceled,
			RefundNeeded: true,
			OccurredAt:   now,
		})
	}
	notify.Send(ctx, s.notifier, events...)
}
