// README: In-memory unit of work used by tests and the memory storage mode.
package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"carpool/internal/apperrors"
	"carpool/internal/modules/booking"
	"carpool/internal/modules/ledger"
	"carpool/internal/modules/trip"
	"carpool/internal/types"
)

type memState struct {
	trips    map[types.ID]trip.Trip
	bookings map[types.ID]booking.Booking
	ledgers  map[types.ID]ledger.Ledger
}

func newMemState() *memState {
	return &memState{
		trips:    map[types.ID]trip.Trip{},
		bookings: map[types.ID]booking.Booking{},
		ledgers:  map[types.ID]ledger.Ledger{},
	}
}

func (s *memState) clone() *memState {
	c := &memState{
		trips:    make(map[types.ID]trip.Trip, len(s.trips)),
		bookings: make(map[types.ID]booking.Booking, len(s.bookings)),
		ledgers:  make(map[types.ID]ledger.Ledger, len(s.ledgers)),
	}
	for k, v := range s.trips {
		c.trips[k] = v
	}
	for k, v := range s.bookings {
		c.bookings[k] = v
	}
	for k, v := range s.ledgers {
		c.ledgers[k] = v
	}
	return c
}

// Memory keeps all state behind one mutex. A transaction holds the mutex
// from Begin until Commit or Rollback and works on a private copy, so other
// callers never observe a half-applied unit of work. Code running inside a
// transaction must only use the transaction's repositories.
type Memory struct {
	mu    sync.Mutex
	state *memState
}

func NewMemory() *Memory {
	return &Memory{state: newMemState()}
}

func (m *Memory) Trips() TripRepository { return memTrips{m} }

func (m *Memory) Bookings() BookingRepository { return memBookings{m} }

func (m *Memory) Ledgers() SeatLedgerRepository { return memLedgers{m} }

func (m *Memory) with(fn func(st *memState) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(m.state)
}

func (m *Memory) Begin(ctx context.Context) (Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	return &memTx{m: m, state: m.state.clone()}, nil
}

type memTx struct {
	m     *Memory
	state *memState
	done  bool
}

func (t *memTx) Trips() TripRepository { return memTrips{t} }

func (t *memTx) Bookings() BookingRepository { return memBookings{t} }

func (t *memTx) Ledgers() SeatLedgerRepository { return memLedgers{t} }

func (t *memTx) with(fn func(st *memState) error) error {
	if t.done {
		return ErrTxClosed
	}
	return fn(t.state)
}

func (t *memTx) Commit(ctx context.Context) error {
	if t.done {
		return ErrTxClosed
	}
	t.done = true
	t.m.state = t.state
	t.m.mu.Unlock()
	return nil
}

func (t *memTx) Rollback(ctx context.Context) error {
	if t.done {
		return ErrTxClosed
	}
	t.done = true
	t.m.mu.Unlock()
	return nil
}

type memView interface {
	with(fn func(st *memState) error) error
}

// trips

type memTrips struct{ v memView }

func (r memTrips) FindByID(ctx context.Context, id types.ID) (*trip.Trip, error) {
	var out *trip.Trip
	err := r.v.with(func(st *memState) error {
		t, ok := st.trips[id]
		if !ok {
			return apperrors.NotFound("trip")
		}
		out = &t
		return nil
	})
	return out, err
}

// FindByIDForShare needs no extra locking: a transaction already holds the
// store mutex.
func (r memTrips) FindByIDForShare(ctx context.Context, id types.ID) (*trip.Trip, error) {
	return r.FindByID(ctx, id)
}

func (r memTrips) Create(ctx context.Context, t *trip.Trip) error {
	return r.v.with(func(st *memState) error {
		if _, ok := st.trips[t.ID]; ok {
			return fmt.Errorf("insert trip: id %s already exists", t.ID)
		}
		st.trips[t.ID] = *t
		return nil
	})
}

func (r memTrips) Update(ctx context.Context, id types.ID, from trip.Status, p trip.Patch) (bool, error) {
	var updated bool
	err := r.v.with(func(st *memState) error {
		t, ok := st.trips[id]
		if !ok || t.Status != from {
			return nil
		}
		st.trips[id] = p.Apply(t, time.Now())
		updated = true
		return nil
	})
	return updated, err
}

func (r memTrips) FindOverlappingTrips(ctx context.Context, driverID types.ID, start, end time.Time, excludeID types.ID) ([]*trip.Trip, error) {
	var out []*trip.Trip
	err := r.v.with(func(st *memState) error {
		for id, t := range st.trips {
			if id == excludeID || t.DriverID != driverID || !t.Status.IsActive() || !t.Overlaps(start, end) {
				continue
			}
			t := t
			out = append(out, &t)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].DepartureAt.Before(out[j].DepartureAt) })
	return out, err
}

func (r memTrips) FindPublishedPastArrival(ctx context.Context, now time.Time) ([]types.ID, error) {
	var ids []types.ID
	err := r.v.with(func(st *memState) error {
		for id, t := range st.trips {
			if t.Status == trip.StatusPublished && t.EstimatedArrivalAt.Before(now) {
				ids = append(ids, id)
			}
		}
		return nil
	})
	return ids, err
}

func (r memTrips) BulkSetCompleted(ctx context.Context, ids []types.ID, now time.Time) (int64, error) {
	var n int64
	err := r.v.with(func(st *memState) error {
		for _, id := range ids {
			t, ok := st.trips[id]
			if !ok || t.Status != trip.StatusPublished {
				continue
			}
			at := now
			t.Status = trip.StatusCompleted
			t.CompletedAt = &at
			t.UpdatedAt = now
			st.trips[id] = t
			n++
		}
		return nil
	})
	return n, err
}

// bookings

type memBookings struct{ v memView }

func (r memBookings) FindByID(ctx context.Context, id types.ID) (*booking.Booking, error) {
	var out *booking.Booking
	err := r.v.with(func(st *memState) error {
		b, ok := st.bookings[id]
		if !ok {
			return apperrors.NotFound("booking")
		}
		out = &b
		return nil
	})
	return out, err
}

func (r memBookings) FindActiveBooking(ctx context.Context, passengerID, tripID types.ID) (*booking.Booking, error) {
	var out *booking.Booking
	err := r.v.with(func(st *memState) error {
		if b, ok := activeBooking(st, passengerID, tripID); ok {
			out = &b
			return nil
		}
		return apperrors.NotFound("active booking")
	})
	return out, err
}

func activeBooking(st *memState, passengerID, tripID types.ID) (booking.Booking, bool) {
	for _, b := range st.bookings {
		if b.PassengerID == passengerID && b.TripID == tripID && b.Status.IsActive() {
			return b, true
		}
	}
	return booking.Booking{}, false
}

func (r memBookings) Create(ctx context.Context, b *booking.Booking) error {
	return r.v.with(func(st *memState) error {
		if _, ok := st.bookings[b.ID]; ok {
			return fmt.Errorf("insert booking: id %s already exists", b.ID)
		}
		if b.Status.IsActive() {
			if _, ok := activeBooking(st, b.PassengerID, b.TripID); ok {
				return apperrors.ErrDuplicateRequest
			}
		}
		st.bookings[b.ID] = *b
		return nil
	})
}

func (r memBookings) Transition(ctx context.Context, from booking.Status, next *booking.Booking) (bool, error) {
	var updated bool
	err := r.v.with(func(st *memState) error {
		cur, ok := st.bookings[next.ID]
		if !ok || cur.Status != from {
			return nil
		}
		st.bookings[next.ID] = *next
		updated = true
		return nil
	})
	return updated, err
}

func (r memBookings) FindAllPendingByTrip(ctx context.Context, tripID types.ID) ([]*booking.Booking, error) {
	return r.list(func(b booking.Booking) bool {
		return b.TripID == tripID && b.Status == booking.StatusPending
	}, false)
}

func (r memBookings) FindAllAcceptedByTrip(ctx context.Context, tripID types.ID) ([]*booking.Booking, error) {
	return r.list(func(b booking.Booking) bool {
		return b.TripID == tripID && b.Status == booking.StatusAccepted
	}, false)
}

func (r memBookings) ListByTrip(ctx context.Context, tripID types.ID) ([]*booking.Booking, error) {
	return r.list(func(b booking.Booking) bool { return b.TripID == tripID }, false)
}

func (r memBookings) ListByPassenger(ctx context.Context, passengerID types.ID) ([]*booking.Booking, error) {
	return r.list(func(b booking.Booking) bool { return b.PassengerID == passengerID }, true)
}

func (r memBookings) BulkDeclineAuto(ctx context.Context, tripID types.ID, at time.Time) (int64, error) {
	var n int64
	err := r.v.with(func(st *memState) error {
		for id, b := range st.bookings {
			if b.TripID != tripID || b.Status != booking.StatusPending {
				continue
			}
			next, _, err := b.DeclineAuto(at)
			if err != nil {
				return err
			}
			st.bookings[id] = next
			n++
		}
		return nil
	})
	return n, err
}

func (r memBookings) BulkCancelByPlatform(ctx context.Context, tripID types.ID, at time.Time) (booking.BulkResult, error) {
	var res booking.BulkResult
	err := r.v.with(func(st *memState) error {
		for id, b := range st.bookings {
			if b.TripID != tripID || b.Status != booking.StatusAccepted {
				continue
			}
			next, _, err := b.CancelByPlatform(booking.ReasonTripCanceled, at)
			if err != nil {
				return err
			}
			st.bookings[id] = next
			res.Count++
			res.Seats += b.Seats
		}
		return nil
	})
	return res, err
}

func (r memBookings) BulkExpireOlderThan(ctx context.Context, cutoff, at time.Time) (int64, error) {
	var n int64
	err := r.v.with(func(st *memState) error {
		for id, b := range st.bookings {
			if b.Status != booking.StatusPending || !b.CreatedAt.Before(cutoff) {
				continue
			}
			next, _, err := b.Expire(at)
			if err != nil {
				return err
			}
			st.bookings[id] = next
			n++
		}
		return nil
	})
	return n, err
}

func (r memBookings) list(match func(booking.Booking) bool, newestFirst bool) ([]*booking.Booking, error) {
	var out []*booking.Booking
	err := r.v.with(func(st *memState) error {
		for _, b := range st.bookings {
			if match(b) {
				b := b
				out = append(out, &b)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		if newestFirst {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, err
}

// ledgers

type memLedgers struct{ v memView }

func ensureLedger(st *memState, tripID types.ID, totalSeats int) ledger.Ledger {
	l, ok := st.ledgers[tripID]
	if !ok {
		now := time.Now()
		l = ledger.Ledger{TripID: tripID, Capacity: totalSeats, CreatedAt: now, UpdatedAt: now}
		st.ledgers[tripID] = l
	}
	return l
}

func (r memLedgers) Lock(ctx context.Context, tripID types.ID) error {
	return r.v.with(func(st *memState) error { return nil })
}

func (r memLedgers) Allocate(ctx context.Context, tripID types.ID, totalSeats, seats int) (*ledger.Ledger, error) {
	if seats <= 0 {
		return nil, apperrors.BadRequest("seats must be positive")
	}
	var out *ledger.Ledger
	err := r.v.with(func(st *memState) error {
		l := ensureLedger(st, tripID, totalSeats)
		if !l.CanAllocate(totalSeats, seats) {
			return apperrors.ErrCapacityExceeded
		}
		l.AllocatedSeats += seats
		l.UpdatedAt = time.Now()
		st.ledgers[tripID] = l
		out = &l
		return nil
	})
	return out, err
}

func (r memLedgers) Deallocate(ctx context.Context, tripID types.ID, seats int) (*ledger.Ledger, error) {
	var out *ledger.Ledger
	err := r.v.with(func(st *memState) error {
		l, ok := st.ledgers[tripID]
		if !ok || !l.CanDeallocate(seats) {
			return ledger.ErrInsufficientAllocation
		}
		l.AllocatedSeats -= seats
		l.UpdatedAt = time.Now()
		st.ledgers[tripID] = l
		out = &l
		return nil
	})
	return out, err
}

func (r memLedgers) Resize(ctx context.Context, tripID types.ID, totalSeats int) (*ledger.Ledger, error) {
	if totalSeats <= 0 {
		return nil, apperrors.BadRequest("total seats must be positive")
	}
	var out *ledger.Ledger
	err := r.v.with(func(st *memState) error {
		l := ensureLedger(st, tripID, totalSeats)
		if !l.CanResize(totalSeats) {
			return fmt.Errorf("%w: total seats below allocated seats", apperrors.ErrCapacityExceeded)
		}
		l.Capacity = totalSeats
		l.UpdatedAt = time.Now()
		st.ledgers[tripID] = l
		out = &l
		return nil
	})
	return out, err
}

func (r memLedgers) GetByTripID(ctx context.Context, tripID types.ID) (*ledger.Ledger, error) {
	var out *ledger.Ledger
	err := r.v.with(func(st *memState) error {
		l, ok := st.ledgers[tripID]
		if !ok {
			return apperrors.NotFound("seat ledger")
		}
		out = &l
		return nil
	})
	return out, err
}

func (r memLedgers) GetOrCreate(ctx context.Context, tripID types.ID, totalSeats int) (*ledger.Ledger, error) {
	var out *ledger.Ledger
	err := r.v.with(func(st *memState) error {
		l := ensureLedger(st, tripID, totalSeats)
		out = &l
		return nil
	})
	return out, err
}
