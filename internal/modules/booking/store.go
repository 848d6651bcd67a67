// README: Booking store backed by PostgreSQL (guarded single-row transitions and bulk jobs).
package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"carpool/internal/apperrors"
	"carpool/internal/infra"
	"carpool/internal/types"
)

// BulkResult summarizes a bulk transition.
type BulkResult struct {
	Count int64
	Seats int
}

type Store struct {
	db infra.DBTX
}

func NewStore(db infra.DBTX) *Store {
	return &Store{db: db}
}

const bookingColumns = `
	id, trip_id, passenger_id, status, seats, note,
	accepted_at, accepted_by, declined_at, declined_by, decline_reason,
	canceled_at, cancellation_reason, expired_at,
	refund_needed, is_paid, created_at, updated_at`

func (s *Store) Create(ctx context.Context, b *Booking) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO bookings (`+bookingColumns+`) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11,
			$12, $13, $14,
			$15, $16, $17, $18
		)`,
		string(b.ID), string(b.TripID), string(b.PassengerID), string(b.Status), b.Seats, b.Note,
		b.AcceptedAt, idPtr(b.AcceptedBy), b.DeclinedAt, idPtr(b.DeclinedBy), b.DeclineReason,
		b.CanceledAt, b.CancellationReason, b.ExpiredAt,
		b.RefundNeeded, b.IsPaid, b.CreatedAt, b.UpdatedAt,
	)
	if infra.IsUniqueViolation(err) {
		return apperrors.ErrDuplicateRequest
	}
	if err != nil {
		return fmt.Errorf("insert booking: %w", err)
	}
	return nil
}

func (s *Store) FindByID(ctx context.Context, id types.ID) (*Booking, error) {
	row := s.db.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, string(id))
	b, err := scanBooking(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFound("booking")
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (s *Store) FindActiveBooking(ctx context.Context, passengerID, tripID types.ID) (*Booking, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE passenger_id = $1 AND trip_id = $2 AND status IN ('pending', 'accepted')
		LIMIT 1`,
		string(passengerID), string(tripID),
	)
	b, err := scanBooking(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFound("active booking")
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

// Transition persists next only while the stored row is still in status from.
// Accept, decline and cancel all go through here with the fields the
// transition function produced.
func (s *Store) Transition(ctx context.Context, from Status, next *Booking) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE bookings
		SET status = $3,
		    accepted_at = $4,
		    accepted_by = $5,
		    declined_at = $6,
		    declined_by = $7,
		    decline_reason = $8,
		    canceled_at = $9,
		    cancellation_reason = $10,
		    expired_at = $11,
		    refund_needed = $12,
		    updated_at = $13
		WHERE id = $1 AND status = $2`,
		string(next.ID), string(from), string(next.Status),
		next.AcceptedAt, idPtr(next.AcceptedBy),
		next.DeclinedAt, idPtr(next.DeclinedBy), next.DeclineReason,
		next.CanceledAt, next.CancellationReason,
		next.ExpiredAt, next.RefundNeeded, next.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("transition booking: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) FindAllPendingByTrip(ctx context.Context, tripID types.ID) ([]*Booking, error) {
	return s.list(ctx, `WHERE trip_id = $1 AND status = 'pending' ORDER BY created_at`, string(tripID))
}

func (s *Store) FindAllAcceptedByTrip(ctx context.Context, tripID types.ID) ([]*Booking, error) {
	return s.list(ctx, `WHERE trip_id = $1 AND status = 'accepted' ORDER BY created_at`, string(tripID))
}

func (s *Store) ListByTrip(ctx context.Context, tripID types.ID) ([]*Booking, error) {
	return s.list(ctx, `WHERE trip_id = $1 ORDER BY created_at`, string(tripID))
}

func (s *Store) ListByPassenger(ctx context.Context, passengerID types.ID) ([]*Booking, error) {
	return s.list(ctx, `WHERE passenger_id = $1 ORDER BY created_at DESC`, string(passengerID))
}

func (s *Store) BulkDeclineAuto(ctx context.Context, tripID types.ID, at time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE bookings
		SET status = 'declined_auto', declined_at = $2, decline_reason = $3, updated_at = $2
		WHERE trip_id = $1 AND status = 'pending'`,
		string(tripID), at, ReasonTripCanceled,
	)
	if err != nil {
		return 0, fmt.Errorf("bulk decline auto: %w", err)
	}
	return tag.RowsAffected(), nil
}

// BulkCancelByPlatform cancels every accepted booking of the trip, flags each
// for refund and returns how many seats they held.
func (s *Store) BulkCancelByPlatform(ctx context.Context, tripID types.ID, at time.Time) (BulkResult, error) {
	rows, err := s.db.Query(ctx, `
		UPDATE bookings
		SET status = 'canceled_by_platform', canceled_at = $2, cancellation_reason = $3,
		    refund_needed = TRUE, updated_at = $2
		WHERE trip_id = $1 AND status = 'accepted'
		RETURNING seats`,
		string(tripID), at, ReasonTripCanceled,
	)
	if err != nil {
		return BulkResult{}, fmt.Errorf("bulk cancel by platform: %w", err)
	}
	defer rows.Close()
	var res BulkResult
	for rows.Next() {
		var seats int
		if err := rows.Scan(&seats); err != nil {
			return BulkResult{}, err
		}
		res.Count++
		res.Seats += seats
	}
	if err := rows.Err(); err != nil {
		return BulkResult{}, fmt.Errorf("bulk cancel by platform: %w", err)
	}
	return res, nil
}

// BulkExpireOlderThan expires pending bookings created before cutoff. A
// booking accepted between selection and write is excluded by the guard.
func (s *Store) BulkExpireOlderThan(ctx context.Context, cutoff, at time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE bookings
		SET status = 'expired', expired_at = $2, updated_at = $2
		WHERE status = 'pending' AND created_at < $1`,
		cutoff, at,
	)
	if err != nil {
		return 0, fmt.Errorf("bulk expire bookings: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *Store) list(ctx context.Context, where string, args ...any) ([]*Booking, error) {
	rows, err := s.db.Query(ctx, `SELECT `+bookingColumns+` FROM bookings `+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func scanBooking(row pgx.Row) (*Booking, error) {
	var b Booking
	var id, tripID, passengerID, status string
	var acceptedBy, declinedBy *string
	err := row.Scan(
		&id, &tripID, &passengerID, &status, &b.Seats, &b.Note,
		&b.AcceptedAt, &acceptedBy, &b.DeclinedAt, &declinedBy, &b.DeclineReason,
		&b.CanceledAt, &b.CancellationReason, &b.ExpiredAt,
		&b.RefundNeeded, &b.IsPaid, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	b.ID = types.ID(id)
	b.TripID = types.ID(tripID)
	b.PassengerID = types.ID(passengerID)
	b.Status = Status(status)
	b.AcceptedBy = toIDPtr(acceptedBy)
	b.DeclinedBy = toIDPtr(declinedBy)
	return &b, nil
}

func idPtr(v *types.ID) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}

func toIDPtr(v *string) *types.ID {
	if v == nil {
		return nil
	}
	id := types.ID(*v)
	return &id
}
