// README: Seat ledger store backed by PostgreSQL; all mutations are single conditional updates.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"carpool/internal/apperrors"
	"carpool/internal/infra"
	"carpool/internal/types"
)

type Store struct {
	db infra.DBTX
}

func NewStore(db infra.DBTX) *Store {
	return &Store{db: db}
}

const ledgerColumns = `trip_id, allocated_seats, capacity, created_at, updated_at`

// ensure creates the ledger row if it is missing. A concurrent creator wins
// silently (ON CONFLICT DO NOTHING).
func (s *Store) ensure(ctx context.Context, tripID types.ID, totalSeats int) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO seat_ledgers (trip_id, allocated_seats, capacity, created_at, updated_at)
		VALUES ($1, 0, $2, NOW(), NOW())
		ON CONFLICT (trip_id) DO NOTHING`,
		string(tripID), totalSeats,
	)
	return err
}

// Allocate adds seats to the ledger only if the result stays within both the
// caller's totalSeats and the ledger's recorded capacity. The guard and the
// increment are one UPDATE, so concurrent allocators are serialized by the row.
func (s *Store) Allocate(ctx context.Context, tripID types.ID, totalSeats, seats int) (*Ledger, error) {
	if seats <= 0 {
		return nil, apperrors.BadRequest("seats must be positive")
	}
	if err := s.ensure(ctx, tripID, totalSeats); err != nil {
		return nil, fmt.Errorf("ledger ensure: %w", err)
	}
	row := s.db.QueryRow(ctx, `
		UPDATE seat_ledgers
		SET allocated_seats = allocated_seats + $2,
		    updated_at = NOW()
		WHERE trip_id = $1
		  AND allocated_seats + $2 <= LEAST(NULLIF(capacity, 0), $3)
		RETURNING `+ledgerColumns,
		string(tripID), seats, totalSeats,
	)
	l, err := scanLedger(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrCapacityExceeded
	}
	if err != nil {
		return nil, fmt.Errorf("ledger allocate: %w", err)
	}
	return l, nil
}

// Deallocate releases seats only if the ledger exists and holds at least that
// many; otherwise it returns ErrInsufficientAllocation without writing.
func (s *Store) Deallocate(ctx context.Context, tripID types.ID, seats int) (*Ledger, error) {
	row := s.db.QueryRow(ctx, `
		UPDATE seat_ledgers
		SET allocated_seats = allocated_seats - $2,
		    updated_at = NOW()
		WHERE trip_id = $1
		  AND $2 > 0
		  AND allocated_seats >= $2
		RETURNING `+ledgerColumns,
		string(tripID), seats,
	)
	l, err := scanLedger(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrInsufficientAllocation
	}
	if err != nil {
		return nil, fmt.Errorf("ledger deallocate: %w", err)
	}
	return l, nil
}

// Resize records a new capacity unless seats already allocated exceed it.
func (s *Store) Resize(ctx context.Context, tripID types.ID, totalSeats int) (*Ledger, error) {
	if totalSeats <= 0 {
		return nil, apperrors.BadRequest("total seats must be positive")
	}
	if err := s.ensure(ctx, tripID, totalSeats); err != nil {
		return nil, fmt.Errorf("ledger ensure: %w", err)
	}
	row := s.db.QueryRow(ctx, `
		UPDATE seat_ledgers
		SET capacity = $2,
		    updated_at = NOW()
		WHERE trip_id = $1
		  AND allocated_seats <= $2
		RETURNING `+ledgerColumns,
		string(tripID), totalSeats,
	)
	l, err := scanLedger(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: total seats below allocated seats", apperrors.ErrCapacityExceeded)
	}
	if err != nil {
		return nil, fmt.Errorf("ledger resize: %w", err)
	}
	return l, nil
}

// Lock holds the ledger row until the transaction ends. A missing row is
// created with no recorded capacity first, so a trip without allocations is
// still locked. An unknown trip locks nothing.
func (s *Store) Lock(ctx context.Context, tripID types.ID) error {
	if _, err := s.db.Exec(ctx, `
		INSERT INTO seat_ledgers (trip_id, allocated_seats, capacity, created_at, updated_at)
		SELECT id, 0, 0, NOW(), NOW() FROM trips WHERE id = $1
		ON CONFLICT (trip_id) DO NOTHING`,
		string(tripID),
	); err != nil {
		return fmt.Errorf("ledger ensure: %w", err)
	}
	var id string
	err := s.db.QueryRow(ctx, `SELECT trip_id FROM seat_ledgers WHERE trip_id = $1 FOR UPDATE`, string(tripID)).Scan(&id)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("ledger lock: %w", err)
	}
	return nil
}

func (s *Store) GetByTripID(ctx context.Context, tripID types.ID) (*Ledger, error) {
	row := s.db.QueryRow(ctx, `SELECT `+ledgerColumns+` FROM seat_ledgers WHERE trip_id = $1`, string(tripID))
	l, err := scanLedger(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFound("seat ledger")
	}
	if err != nil {
		return nil, err
	}
	return l, nil
}

func (s *Store) GetOrCreate(ctx context.Context, tripID types.ID, totalSeats int) (*Ledger, error) {
	if err := s.ensure(ctx, tripID, totalSeats); err != nil {
		return nil, fmt.Errorf("ledger ensure: %w", err)
	}
	return s.GetByTripID(ctx, tripID)
}

func scanLedger(row pgx.Row) (*Ledger, error) {
	var l Ledger
	var tripID string
	if err := row.Scan(&tripID, &l.AllocatedSeats, &l.Capacity, &l.CreatedAt, &l.UpdatedAt); err != nil {
		return nil, err
	}
	l.TripID = types.ID(tripID)
	return &l, nil
}
