// README: Shared fixtures for coordinator tests (in-memory storage, pinned clock).
package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"carpool/internal/modules/booking"
	"carpool/internal/modules/trip"
	"carpool/internal/notify"
	"carpool/internal/storage"
	"carpool/internal/types"
)

var baseTime = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	mem       *storage.Memory
	events    *notify.Recorder
	clock     *testClock
	trips     *TripService
	bookings  *BookingService
	cascade   *CascadeService
	lifecycle *LifecycleService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWith(t, storage.NewMemory())
}

func newTestEnvWith(t *testing.T, mem *storage.Memory) *testEnv {
	t.Helper()
	return newTestEnvUoW(t, mem, mem)
}

func newTestEnvUoW(t *testing.T, mem *storage.Memory, uow storage.UnitOfWork) *testEnv {
	t.Helper()
	clock := &testClock{now: baseTime}
	events := &notify.Recorder{}
	return &testEnv{
		mem:       mem,
		events:    events,
		clock:     clock,
		trips:     NewTripService(uow, nil).WithClock(clock.Now),
		bookings:  NewBookingService(uow, events).WithClock(clock.Now),
		cascade:   NewCascadeService(uow, events).WithClock(clock.Now),
		lifecycle: NewLifecycleService(uow, nil, 24).WithClock(clock.Now),
	}
}

// publishedTrip creates a published trip departing in two hours.
func (e *testEnv) publishedTrip(t *testing.T, driverID types.ID, seats int) *trip.Trip {
	t.Helper()
	return e.newTrip(t, driverID, seats, true)
}

func (e *testEnv) newTrip(t *testing.T, driverID types.ID, seats int, publish bool) *trip.Trip {
	t.Helper()
	now := e.clock.Now()
	tr, err := e.trips.CreateTrip(context.Background(), CreateTripCommand{
		DriverID:           driverID,
		Origin:             types.Place{Text: "Taipei Main Station", Point: types.Point{Lat: 25.0478, Lng: 121.5170}},
		Destination:        types.Place{Text: "Hsinchu", Point: types.Point{Lat: 24.8138, Lng: 120.9675}},
		DepartureAt:        now.Add(2 * time.Hour),
		EstimatedArrivalAt: now.Add(3 * time.Hour),
		PricePerSeat:       types.Money{Amount: 250},
		TotalSeats:         seats,
		Publish:            publish,
	})
	if err != nil {
		t.Fatalf("create trip: %v", err)
	}
	return tr
}

func (e *testEnv) request(t *testing.T, tripID, passengerID types.ID, seats int) *booking.Booking {
	t.Helper()
	res, err := e.bookings.CreateBooking(context.Background(), CreateBookingCommand{
		TripID: tripID, PassengerID: passengerID, Seats: seats,
	})
	if err != nil {
		t.Fatalf("create booking for %s: %v", passengerID, err)
	}
	return res.Booking
}

func (e *testEnv) accept(t *testing.T, bookingID, driverID types.ID) {
	t.Helper()
	if _, err := e.bookings.AcceptBooking(context.Background(), AcceptBookingCommand{BookingID: bookingID, DriverID: driverID}); err != nil {
		t.Fatalf("accept %s: %v", bookingID, err)
	}
}

func (e *testEnv) allocated(t *testing.T, tripID types.ID) int {
	t.Helper()
	l, err := e.mem.Ledgers().GetByTripID(context.Background(), tripID)
	if err != nil {
		return 0
	}
	return l.AllocatedSeats
}

func (e *testEnv) bookingStatus(t *testing.T, id types.ID) booking.Status {
	t.Helper()
	b, err := e.mem.Bookings().FindByID(context.Background(), id)
	if err != nil {
		t.Fatalf("find booking %s: %v", id, err)
	}
	return b.Status
}

var errInjected = errors.New("injected storage failure")

// faultyUoW wraps the memory store and fails BulkCancelByPlatform inside
// transactions.
type faultyUoW struct {
	*storage.Memory
}

func (f faultyUoW) Begin(ctx context.Context) (storage.Tx, error) {
	tx, err := f.Memory.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return faultyTx{Tx: tx}, nil
}

type faultyTx struct {
	storage.Tx
}

func (t faultyTx) Bookings() storage.BookingRepository {
	return faultyBookings{BookingRepository: t.Tx.Bookings()}
}

type faultyBookings struct {
	storage.BookingRepository
}

func (faultyBookings) BulkCancelByPlatform(ctx context.Context, tripID types.ID, at time.Time) (booking.BulkResult, error) {
	return booking.BulkResult{}, errInjected
}

type fakeLeaser struct {
	held  bool
	calls int
}

func (f *fakeLeaser) Do(ctx context.Context, name string, ttl time.Duration, fn func(context.Context) error) (bool, error) {
	f.calls++
	if f.held {
		return false, nil
	}
	return true, fn(ctx)
}
