// README: Booking state machine tests (pure, no database).
package booking

import (
	"errors"
	"strings"
	"testing"
	"time"

	"carpool/internal/apperrors"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusAccepted, true},
		{StatusPending, StatusDeclined, true},
		{StatusPending, StatusDeclinedAuto, true},
		{StatusPending, StatusCanceledByPassenger, true},
		{StatusPending, StatusExpired, true},
		{StatusAccepted, StatusCanceledByPassenger, true},
		{StatusAccepted, StatusCanceledByPlatform, true},
		// not from accepted
		{StatusAccepted, StatusDeclined, false},
		{StatusAccepted, StatusExpired, false},
		{StatusAccepted, StatusDeclinedAuto, false},
		// platform cancel only for accepted
		{StatusPending, StatusCanceledByPlatform, false},
		// terminal states
		{StatusDeclined, StatusAccepted, false},
		{StatusExpired, StatusAccepted, false},
		{StatusCanceledByPassenger, StatusAccepted, false},
		{StatusCanceledByPlatform, StatusCanceledByPassenger, false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func mustNew(t *testing.T) Booking {
	t.Helper()
	b, err := New("t1", "p1", 0, "window seat please", time.Now())
	if err != nil {
		t.Fatalf("new booking: %v", err)
	}
	return b
}

func TestNewDefaults(t *testing.T) {
	b := mustNew(t)
	if b.Status != StatusPending || b.Seats != DefaultSeats || b.ID == "" {
		t.Fatalf("unexpected booking %+v", b)
	}
	if _, err := New("t1", "p1", 1, strings.Repeat("x", MaxNoteLength+1), time.Now()); !errors.Is(err, apperrors.ErrBadRequest) {
		t.Fatalf("long note: expected ErrBadRequest, got %v", err)
	}
}

func TestAcceptOnlyFromPending(t *testing.T) {
	now := time.Now()
	b := mustNew(t)
	acc, err := b.Accept("d1", now)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if acc.AcceptedAt == nil || acc.AcceptedBy == nil || *acc.AcceptedBy != "d1" {
		t.Fatalf("accept fields not set: %+v", acc)
	}
	if !acc.HoldsSeats() {
		t.Fatal("accepted booking must hold seats")
	}
	_, err = acc.Accept("d1", now)
	var te *apperrors.TransitionError
	if !errors.As(err, &te) || te.Current != string(StatusAccepted) || te.Attempted != string(StatusAccepted) {
		t.Fatalf("double accept: expected TransitionError, got %v", err)
	}
}

func TestDeclineIdempotent(t *testing.T) {
	now := time.Now()
	b := mustNew(t)
	dec, changed, err := b.Decline("d1", "full car", now)
	if err != nil || !changed {
		t.Fatalf("decline: changed=%v err=%v", changed, err)
	}
	if dec.DeclineReason == nil || *dec.DeclineReason != "full car" {
		t.Fatalf("decline reason not recorded")
	}
	again, changed, err := dec.Decline("d1", "other", now.Add(time.Second))
	if err != nil || changed {
		t.Fatalf("repeat decline: changed=%v err=%v", changed, err)
	}
	if *again.DeclineReason != "full car" {
		t.Fatal("repeat decline must not rewrite fields")
	}

	acc, _ := mustNew(t).Accept("d1", now)
	if _, _, err := acc.Decline("d1", "", now); !errors.Is(err, apperrors.ErrInvalidTransition) {
		t.Fatalf("decline accepted: expected ErrInvalidTransition, got %v", err)
	}
}

func TestCancelByPassenger(t *testing.T) {
	now := time.Now()

	pending := mustNew(t)
	c, changed, err := pending.CancelByPassenger("", now)
	if err != nil || !changed {
		t.Fatalf("cancel pending: %v", err)
	}
	if c.RefundNeeded {
		t.Fatal("pending cancel must not flag refund")
	}

	acc, _ := mustNew(t).Accept("d1", now)
	c, changed, err = acc.CancelByPassenger("plans changed", now)
	if err != nil || !changed {
		t.Fatalf("cancel accepted: %v", err)
	}
	if !c.RefundNeeded || c.CanceledAt == nil {
		t.Fatalf("accepted cancel must flag refund and stamp canceled_at: %+v", c)
	}

	again, changed, err := c.CancelByPassenger("again", now.Add(time.Minute))
	if err != nil || changed {
		t.Fatalf("repeat cancel: changed=%v err=%v", changed, err)
	}
	if *again.CancellationReason != "plans changed" {
		t.Fatal("repeat cancel must not rewrite fields")
	}

	dec, _, _ := mustNew(t).Decline("d1", "", now)
	if _, _, err := dec.CancelByPassenger("", now); !errors.Is(err, apperrors.ErrInvalidTransition) {
		t.Fatalf("cancel declined: expected ErrInvalidTransition, got %v", err)
	}
}

func TestSystemTransitions(t *testing.T) {
	now := time.Now()

	auto, changed, err := mustNew(t).DeclineAuto(now)
	if err != nil || !changed || auto.Status != StatusDeclinedAuto {
		t.Fatalf("decline auto: %+v %v", auto, err)
	}
	if _, changed, err := auto.DeclineAuto(now); err != nil || changed {
		t.Fatalf("repeat decline auto: changed=%v err=%v", changed, err)
	}

	acc, _ := mustNew(t).Accept("d1", now)
	plat, changed, err := acc.CancelByPlatform(ReasonTripCanceled, now)
	if err != nil || !changed || !plat.RefundNeeded {
		t.Fatalf("platform cancel: %+v %v", plat, err)
	}
	if _, _, err := mustNew(t).CancelByPlatform("", now); !errors.Is(err, apperrors.ErrInvalidTransition) {
		t.Fatalf("platform cancel pending: expected ErrInvalidTransition, got %v", err)
	}

	exp, changed, err := mustNew(t).Expire(now)
	if err != nil || !changed || exp.ExpiredAt == nil {
		t.Fatalf("expire: %+v %v", exp, err)
	}
	if _, _, err := acc.Expire(now); !errors.Is(err, apperrors.ErrInvalidTransition) {
		t.Fatalf("expire accepted: expected ErrInvalidTransition, got %v", err)
	}
}
