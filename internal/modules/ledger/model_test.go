// README: Tests for the pure seat ledger guards.
package ledger

import "testing"

func TestCanAllocate(t *testing.T) {
	cases := []struct {
		name        string
		l           Ledger
		total, want int
		ok          bool
	}{
		{"fits", Ledger{AllocatedSeats: 1}, 3, 2, true},
		{"exactly full", Ledger{AllocatedSeats: 1}, 3, 2, true},
		{"overflow", Ledger{AllocatedSeats: 2}, 3, 2, false},
		{"zero seats", Ledger{}, 3, 0, false},
		{"capacity lower than caller total", Ledger{AllocatedSeats: 1, Capacity: 2}, 4, 2, false},
		{"capacity unset", Ledger{AllocatedSeats: 1}, 4, 3, true},
	}
	for _, tc := range cases {
		if got := tc.l.CanAllocate(tc.total, tc.want); got != tc.ok {
			t.Errorf("%s: CanAllocate(%d, %d) = %v, want %v", tc.name, tc.total, tc.want, got, tc.ok)
		}
	}
}

func TestCanDeallocateAndResize(t *testing.T) {
	l := Ledger{AllocatedSeats: 2}
	if !l.CanDeallocate(2) || l.CanDeallocate(3) || l.CanDeallocate(0) {
		t.Fatal("CanDeallocate mismatch")
	}
	if !l.CanResize(2) || l.CanResize(1) || l.CanResize(0) {
		t.Fatal("CanResize mismatch")
	}
	if l.Available(3) != 1 || l.Available(1) != 0 {
		t.Fatal("Available mismatch")
	}
}
