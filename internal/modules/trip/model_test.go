// README: Trip state machine tests (pure, no database).
package trip

import (
	"errors"
	"testing"
	"time"

	"carpool/internal/apperrors"
)

// TestCanTransition verifies the transition table.
func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusDraft, StatusPublished, true},
		{StatusDraft, StatusCanceled, true},
		{StatusPublished, StatusCanceled, true},
		{StatusPublished, StatusInProgress, true},
		{StatusInProgress, StatusCompleted, true},
		// terminal states
		{StatusCanceled, StatusPublished, false},
		{StatusCompleted, StatusCanceled, false},
		// skipping states
		{StatusDraft, StatusInProgress, false},
		{StatusDraft, StatusCompleted, false},
		{StatusPublished, StatusCompleted, false},
		{StatusInProgress, StatusCanceled, false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func sampleTrip(status Status, now time.Time) Trip {
	return Trip{
		ID:                 "t1",
		DriverID:           "d1",
		DepartureAt:        now.Add(2 * time.Hour),
		EstimatedArrivalAt: now.Add(4 * time.Hour),
		TotalSeats:         3,
		Status:             status,
	}
}

func TestCancelIsIdempotent(t *testing.T) {
	now := time.Now()
	tr := sampleTrip(StatusPublished, now)

	next, changed, err := tr.Cancel(now)
	if err != nil || !changed {
		t.Fatalf("first cancel: changed=%v err=%v", changed, err)
	}
	if next.Status != StatusCanceled || next.CanceledAt == nil {
		t.Fatalf("expected canceled with timestamp, got %+v", next)
	}
	if tr.Status != StatusPublished {
		t.Fatalf("original value mutated: %s", tr.Status)
	}

	again, changed, err := next.Cancel(now.Add(time.Minute))
	if err != nil || changed {
		t.Fatalf("second cancel: changed=%v err=%v", changed, err)
	}
	if !again.CanceledAt.Equal(now) {
		t.Fatalf("no-op cancel must keep the original timestamp")
	}
}

func TestCancelRejectedAfterStart(t *testing.T) {
	now := time.Now()
	for _, s := range []Status{StatusInProgress, StatusCompleted} {
		_, _, err := sampleTrip(s, now).Cancel(now)
		var te *apperrors.TransitionError
		if !errors.As(err, &te) {
			t.Fatalf("cancel from %s: expected TransitionError, got %v", s, err)
		}
		if te.Current != string(s) || te.Attempted != string(StatusCanceled) {
			t.Fatalf("unexpected transition error %+v", te)
		}
	}
}

func TestPublishRequiresFutureDeparture(t *testing.T) {
	now := time.Now()
	tr := sampleTrip(StatusDraft, now)
	tr.DepartureAt = now.Add(-time.Minute)
	if _, err := tr.Publish(now); !errors.Is(err, apperrors.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}

	tr = sampleTrip(StatusDraft, now)
	next, err := tr.Publish(now)
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if next.Status != StatusPublished {
		t.Fatalf("expected published, got %s", next.Status)
	}
}

func TestStartAndComplete(t *testing.T) {
	now := time.Now()
	tr := sampleTrip(StatusPublished, now)
	started, err := tr.Start(now)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if started.StartedAt == nil {
		t.Fatal("expected started_at")
	}
	done, err := started.Complete(now)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.Status != StatusCompleted || done.CompletedAt == nil {
		t.Fatalf("unexpected completed trip %+v", done)
	}
	if _, err := tr.Complete(now); !errors.Is(err, apperrors.ErrInvalidTransition) {
		t.Fatalf("complete from published: expected ErrInvalidTransition, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	now := time.Now()
	good := sampleTrip(StatusDraft, now)
	if err := good.Validate(); err != nil {
		t.Fatalf("valid trip rejected: %v", err)
	}

	bad := good
	bad.EstimatedArrivalAt = bad.DepartureAt
	if err := bad.Validate(); !errors.Is(err, apperrors.ErrBadRequest) {
		t.Fatalf("arrival == departure: expected ErrBadRequest, got %v", err)
	}

	bad = good
	bad.TotalSeats = 0
	if err := bad.Validate(); !errors.Is(err, apperrors.ErrBadRequest) {
		t.Fatalf("zero seats: expected ErrBadRequest, got %v", err)
	}
}

func TestPredicates(t *testing.T) {
	now := time.Now()
	tr := sampleTrip(StatusPublished, now)
	if !tr.IsDepartureInFuture(now) {
		t.Fatal("expected departure in future")
	}
	for seats, want := range map[int]bool{4: true, 0: true, 2: false} {
		v := tr
		v.VehicleSeats = seats
		if v.FitsVehicle() != want {
			t.Fatalf("FitsVehicle with %d vehicle seats = %v, want %v", seats, !want, want)
		}
	}
	if !tr.Overlaps(now.Add(3*time.Hour), now.Add(5*time.Hour)) {
		t.Fatal("expected overlap")
	}
	if tr.Overlaps(now.Add(4*time.Hour), now.Add(5*time.Hour)) {
		t.Fatal("touching windows must not overlap")
	}
	if !CanAutoComplete(StatusPublished) || CanAutoComplete(StatusInProgress) {
		t.Fatal("CanAutoComplete mismatch")
	}
}
