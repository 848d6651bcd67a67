// README: Repository contracts and the unit of work the coordinators run against.
package storage

import (
	"context"
	"errors"
	"log"
	"time"

	"carpool/internal/apperrors"
	"carpool/internal/modules/booking"
	"carpool/internal/modules/ledger"
	"carpool/internal/modules/trip"
	"carpool/internal/types"
)

type TripRepository interface {
	FindByID(ctx context.Context, id types.ID) (*trip.Trip, error)
	FindByIDForShare(ctx context.Context, id types.ID) (*trip.Trip, error)
	Create(ctx context.Context, t *trip.Trip) error
	Update(ctx context.Context, id types.ID, from trip.Status, p trip.Patch) (bool, error)
	FindOverlappingTrips(ctx context.Context, driverID types.ID, start, end time.Time, excludeID types.ID) ([]*trip.Trip, error)
	FindPublishedPastArrival(ctx context.Context, now time.Time) ([]types.ID, error)
	BulkSetCompleted(ctx context.Context, ids []types.ID, now time.Time) (int64, error)
}

type BookingRepository interface {
	FindByID(ctx context.Context, id types.ID) (*booking.Booking, error)
	FindActiveBooking(ctx context.Context, passengerID, tripID types.ID) (*booking.Booking, error)
	Create(ctx context.Context, b *booking.Booking) error
	Transition(ctx context.Context, from booking.Status, next *booking.Booking) (bool, error)
	FindAllPendingByTrip(ctx context.Context, tripID types.ID) ([]*booking.Booking, error)
	FindAllAcceptedByTrip(ctx context.Context, tripID types.ID) ([]*booking.Booking, error)
	ListByTrip(ctx context.Context, tripID types.ID) ([]*booking.Booking, error)
	ListByPassenger(ctx context.Context, passengerID types.ID) ([]*booking.Booking, error)
	BulkDeclineAuto(ctx context.Context, tripID types.ID, at time.Time) (int64, error)
	BulkCancelByPlatform(ctx context.Context, tripID types.ID, at time.Time) (booking.BulkResult, error)
	BulkExpireOlderThan(ctx context.Context, cutoff, at time.Time) (int64, error)
}

// SeatLedgerRepository mutates the per-trip seat counter. Transactions that
// touch a ledger row and booking or trip rows lock the ledger row first
// (Lock, Allocate, Deallocate or Resize), so row lock waits never form a
// cycle.
type SeatLedgerRepository interface {
	Lock(ctx context.Context, tripID types.ID) error
	Allocate(ctx context.Context, tripID types.ID, totalSeats, seats int) (*ledger.Ledger, error)
	Deallocate(ctx context.Context, tripID types.ID, seats int) (*ledger.Ledger, error)
	Resize(ctx context.Context, tripID types.ID, totalSeats int) (*ledger.Ledger, error)
	GetByTripID(ctx context.Context, tripID types.ID) (*ledger.Ledger, error)
	GetOrCreate(ctx context.Context, tripID types.ID, totalSeats int) (*ledger.Ledger, error)
}

// Repositories groups the three repositories bound to one connection or
// transaction.
type Repositories interface {
	Trips() TripRepository
	Bookings() BookingRepository
	Ledgers() SeatLedgerRepository
}

// Tx is an open unit of work. Rollback after Commit is a no-op.
type Tx interface {
	Repositories
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// UnitOfWork hands out auto-commit repositories and transactions.
type UnitOfWork interface {
	Repositories
	Begin(ctx context.Context) (Tx, error)
}

// WithinTx runs fn in a transaction. fn's error is returned unchanged after
// rollback; failures to begin or commit are reported as ErrTransactionFailed.
func WithinTx(ctx context.Context, uow UnitOfWork, op string, fn func(repos Repositories) error) error {
	tx, err := uow.Begin(ctx)
	if err != nil {
		return apperrors.TxFailed(op+": begin", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, ErrTxClosed) {
			log.Printf("storage: %s rollback: %v", op, rbErr)
		}
	}()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return apperrors.TxFailed(op+": commit", err)
	}
	return nil
}

// ErrTxClosed is returned by Rollback/Commit on a finished transaction.
var ErrTxClosed = errors.New("transaction already closed")
