// README: Trip store backed by PostgreSQL.
package trip

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

type Store struct {
	db infra.DBTX
}

func NewStore(db infra.DBTX) *Store {
	return &Store{db: db}
}

const tripColumns = `
	id, driver_id, vehicle_id, vehicle_seats,
	origin_text, origin_lat, origin_lng,
	destination_text, destination_lat, destination_lng,
	departure_at, estimated_arrival_at,
	price_per_seat, currency, total_seats, status, notes,
	created_at, updated_at, started_at, completed_at, canceled_at`

func (s *Store) Create(ctx context.Context, t *Trip) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO trips (`+tripColumns+`) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7,
			$8, $9, $10,
			$11, $12,
			$13, $14, $15, $16, $17,
			$18, $19, $20, $21, $22
		)`,
		string(t.ID), string(t.DriverID), string(t.VehicleID), t.VehicleSeats,
		t.Origin.Text, t.Origin.Point.Lat, t.Origin.Point.Lng,
		t.Destination.Text, t.Destination.Point.Lat, t.Destination.Point.Lng,
		t.DepartureAt, t.EstimatedArrivalAt,
		t.PricePerSeat.Amount, t.PricePerSeat.Currency, t.TotalSeats, string(t.Status), t.Notes,
		t.CreatedAt, t.UpdatedAt, t.StartedAt, t.CompletedAt, t.CanceledAt,
	)
	if err != nil {
		return fmt.Errorf("insert trip: %w", err)
	}
	return nil
}

func (s *Store) FindByID(ctx context.Context, id types.ID) (*Trip, error) {
	row := s.db.QueryRow(ctx, `SELECT `+tripColumns+` FROM trips WHERE id = $1`, string(id))
	t, err := scanTrip(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFound("trip")
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

// FindByIDForShare reads the trip and keeps a share lock on its row until
// the transaction ends, so a concurrent status change waits for the caller.
func (s *Store) FindByIDForShare(ctx context.Context, id types.ID) (*Trip, error) {
	row := s.db.QueryRow(ctx, `SELECT `+tripColumns+` FROM trips WHERE id = $1 FOR SHARE`, string(id))
	t, err := scanTrip(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFound("trip")
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

// Update applies p to the trip only while it is still in status from. It
// reports false when the guard did not match (concurrent change).
func (s *Store) Update(ctx context.Context, id types.ID, from Status, p Patch) (bool, error) {
	var vehicleID, status *string
	if p.VehicleID != nil {
		v := string(*p.VehicleID)
		vehicleID = &v
	}
	if p.Status != nil {
		v := string(*p.Status)
		status = &v
	}
	var originText, destText *string
	var originLat, originLng, destLat, destLng *float64
	if p.Origin != nil {
		originText, originLat, originLng = &p.Origin.Text, &p.Origin.Point.Lat, &p.Origin.Point.Lng
	}
	if p.Destination != nil {
		destText, destLat, destLng = &p.Destination.Text, &p.Destination.Point.Lat, &p.Destination.Point.Lng
	}
	var price *int64
	var currency *string
	if p.PricePerSeat != nil {
		price, currency = &p.PricePerSeat.Amount, &p.PricePerSeat.Currency
	}

	tag, err := s.db.Exec(ctx, `
		UPDATE trips
		SET vehicle_id = COALESCE($3, vehicle_id),
		    origin_text = COALESCE($4, origin_text),
		    origin_lat = COALESCE($5, origin_lat),
		    origin_lng = COALESCE($6, origin_lng),
		    destination_text = COALESCE($7, destination_text),
		    destination_lat = COALESCE($8, destination_lat),
		    destination_lng = COALESCE($9, destination_lng),
		    departure_at = COALESCE($10, departure_at),
		    estimated_arrival_at = COALESCE($11, estimated_arrival_at),
		    price_per_seat = COALESCE($12, price_per_seat),
		    currency = COALESCE($13, currency),
		    total_seats = COALESCE($14, total_seats),
		    notes = COALESCE($15, notes),
		    status = COALESCE($16, status),
		    started_at = COALESCE($17, started_at),
		    completed_at = COALESCE($18, completed_at),
		    canceled_at = COALESCE($19, canceled_at),
		    vehicle_seats = COALESCE($20, vehicle_seats),
		    updated_at = NOW()
		WHERE id = $1 AND status = $2`,
		string(id), string(from),
		vehicleID,
		originText, originLat, originLng,
		destText, destLat, destLng,
		p.DepartureAt, p.EstimatedArrivalAt,
		price, currency,
		p.TotalSeats, p.Notes, status,
		p.StartedAt, p.CompletedAt, p.CanceledAt,
		p.VehicleSeats,
	)
	if err != nil {
		return false, fmt.Errorf("update trip: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// FindOverlappingTrips returns the driver's non-terminal trips whose window
// intersects [start, end). excludeID may be empty.
func (s *Store) FindOverlappingTrips(ctx context.Context, driverID types.ID, start, end time.Time, excludeID types.ID) ([]*Trip, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+tripColumns+`
		FROM trips
		WHERE driver_id = $1
		  AND status IN ('draft', 'published', 'in_progress')
		  AND departure_at < $3
		  AND estimated_arrival_at > $2
		  AND id <> $4
		ORDER BY departure_at`,
		string(driverID), start, end, string(excludeID),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Trip
	for rows.Next() {
		t, err := scanTrip(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) FindPublishedPastArrival(ctx context.Context, now time.Time) ([]types.ID, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id FROM trips
		WHERE status = 'published' AND estimated_arrival_at < $1`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []types.ID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, types.ID(id))
	}
	return ids, rows.Err()
}

// BulkSetCompleted completes the given trips that are still published. Trips
// that moved on since they were selected are skipped by the status guard.
func (s *Store) BulkSetCompleted(ctx context.Context, ids []types.ID, now time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	raw := make([]string, len(ids))
	for i, id := range ids {
		raw[i] = string(id)
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE trips
		SET status = 'completed', completed_at = $2, updated_at = $2
		WHERE id = ANY($1) AND status = 'published'`,
		raw, now,
	)
	if err != nil {
		return 0, fmt.Errorf("bulk complete trips: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanTrip(row pgx.Row) (*Trip, error) {
	var t Trip
	var id, driverID, vehicleID, status string
	err := row.Scan(
		&id, &driverID, &vehicleID, &t.VehicleSeats,
		&t.Origin.Text, &t.Origin.Point.Lat, &t.Origin.Point.Lng,
		&t.Destination.Text, &t.Destination.Point.Lat, &t.Destination.Point.Lng,
		&t.DepartureAt, &t.EstimatedArrivalAt,
		&t.PricePerSeat.Amount, &t.PricePerSeat.Currency, &t.TotalSeats, &status, &t.Notes,
		&t.CreatedAt, &t.UpdatedAt, &t.StartedAt, &t.CompletedAt, &t.CanceledAt,
	)
	if err != nil {
		return nil, err
	}
	t.ID = types.ID(id)
	t.DriverID = types.ID(driverID)
	t.VehicleID = types.ID(vehicleID)
	t.Status = Status(status)
	if t.PricePerSeat.Currency == "" {
		t.PricePerSeat.Currency = types.DefaultCurrency
	}
	return &t, nil
}
