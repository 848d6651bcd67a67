// README: Shared helpers for the booking, trip, cascade and lifecycle coordinators.
package service

import (
	"context"
	"fmt"
	"time"

	"carpool/internal/apperrors"
	"carpool/internal/modules/booking"
	"carpool/internal/modules/trip"
	"carpool/internal/storage"
	"carpool/internal/types"
)

// Clock returns the current time; tests pin it.
type Clock func() time.Time

func systemClock() time.Time { return time.Now().UTC() }

var (
	ErrSelfBooking     = fmt.Errorf("%w: driver cannot book own trip", apperrors.ErrBadRequest)
	ErrOverlappingTrip = fmt.Errorf("%w: driver already has a trip in this time window", apperrors.ErrScheduleConflict)
)

// txErr keeps client-facing kinds as they are and reports anything else
// raised inside a unit of work as an aborted transaction.
func txErr(op string, err error) error {
	if err == nil || apperrors.IsDomain(err) {
		return err
	}
	return apperrors.TxFailed(op, err)
}

// lostBookingRace is returned when a guarded booking write matched no row:
// someone else moved the booking after it was read.
func lostBookingRace(ctx context.Context, repos storage.Repositories, id types.ID, attempted booking.Status) error {
	cur, err := repos.Bookings().FindByID(ctx, id)
	if err != nil {
		return err
	}
	return &apperrors.TransitionError{
		Entity: "booking", Current: string(cur.Status), Attempted: string(attempted),
		Reason: "booking changed concurrently",
	}
}

func lostTripRace(ctx context.Context, repos storage.Repositories, id types.ID, attempted trip.Status) error {
	cur, err := repos.Trips().FindByID(ctx, id)
	if err != nil {
		return err
	}
	return &apperrors.TransitionError{
		Entity: "trip", Current: string(cur.Status), Attempted: string(attempted),
		Reason: "trip changed concurrently",
	}
}

// bookable rejects trips that cannot take or confirm bookings right now.
func bookable(t *trip.Trip, attempted booking.Status, now time.Time) error {
	if t.Status != trip.StatusPublished {
		return &apperrors.TransitionError{
			Entity: "booking", Current: string(t.Status), Attempted: string(attempted),
			Reason: "trip is not published",
		}
	}
	if !t.IsDepartureInFuture(now) {
		return &apperrors.TransitionError{
			Entity: "booking", Current: string(t.Status), Attempted: string(attempted),
			Reason: "trip departure is not in the future",
		}
	}
	return nil
}
