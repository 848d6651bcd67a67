// README: Seat ledger record: the per-trip counter of allocated seats.
package ledger

import (
	"errors"
	"time"

	"carpool/internal/types"
)

// ErrInsufficientAllocation is returned by Deallocate when the ledger is
// missing or holds fewer seats than requested. Nothing is changed.
var ErrInsufficientAllocation = errors.New("ledger holds fewer seats than requested")

type Ledger struct {
	TripID         types.ID
	AllocatedSeats int
	// Capacity is the trip's total seat count as last written through the
	// ledger; zero means it has not been set yet.
	Capacity  int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CanAllocate is the guard every allocator applies in one atomic step.
func (l Ledger) CanAllocate(totalSeats, seats int) bool {
	limit := totalSeats
	if l.Capacity > 0 && l.Capacity < limit {
		limit = l.Capacity
	}
	return seats > 0 && l.AllocatedSeats+seats <= limit
}

func (l Ledger) CanDeallocate(seats int) bool {
	return seats > 0 && l.AllocatedSeats >= seats
}

// CanResize reports whether capacity may be set to totalSeats.
func (l Ledger) CanResize(totalSeats int) bool {
	return totalSeats > 0 && l.AllocatedSeats <= totalSeats
}

// Available returns the free seats left against totalSeats.
func (l Ledger) Available(totalSeats int) int {
	if n := totalSeats - l.AllocatedSeats; n > 0 {
		return n
	}
	return 0
}
