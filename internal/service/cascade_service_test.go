// README: Cascade cancellation tests, including rollback on an injected storage failure.
package service

import (
	"context"
	"errors"
	"testing"

	"carpool/internal/apperrors"
	"carpool/internal/modules/booking"
	"carpool/internal/modules/trip"
	"carpool/internal/notify"
	"carpool/internal/storage"
)

func TestCascadeTwoPendingOneAccepted(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	tr := env.publishedTrip(t, "driver", 3)
	p1 := env.request(t, tr.ID, "p1", 1)
	p2 := env.request(t, tr.ID, "p2", 1)
	acc := env.request(t, tr.ID, "p3", 2)
	env.accept(t, acc.ID, "driver")

	res, err := env.cascade.CancelTripWithCascade(ctx, tr.ID, "driver")
	if err != nil {
		t.Fatalf("cascade: %v", err)
	}
	want := CascadeEffects{DeclinedAuto: 2, CanceledByPlatform: 1, LedgerReleased: 1, RefundsCreated: 1, SeatsReleased: 2}
	if res.Effects != want {
		t.Fatalf("effects = %+v, want %+v", res.Effects, want)
	}
	if res.Trip.Status != trip.StatusCanceled || res.Trip.CanceledAt == nil {
		t.Fatalf("trip not canceled: %+v", res.Trip)
	}

	for _, p := range []*booking.Booking{p1, p2} {
		b, _ := env.mem.Bookings().FindByID(ctx, p.ID)
		if b.Status != booking.StatusDeclinedAuto || b.DeclineReason == nil || *b.DeclineReason != booking.ReasonTripCanceled {
			t.Fatalf("pending booking not auto-declined: %+v", b)
		}
	}
	got, _ := env.mem.Bookings().FindByID(ctx, acc.ID)
	if got.Status != booking.StatusCanceledByPlatform || !got.RefundNeeded {
		t.Fatalf("accepted booking not canceled with refund: %+v", got)
	}
	if n := env.allocated(t, tr.ID); n != 0 {
		t.Fatalf("ledger should be empty, got %d", n)
	}
	if n := len(env.events.OfType(notify.BookingDeclinedAuto)); n != 2 {
		t.Fatalf("expected 2 auto-decline notifications, got %d", n)
	}
	refunds := env.events.OfType(notify.BookingCanceledByPlatform)
	if len(refunds) != 1 || !refunds[0].RefundNeeded || refunds[0].RecipientID != "p3" {
		t.Fatalf("unexpected platform cancel notifications: %+v", refunds)
	}
}

func TestCascadeOnCanceledTripIsNoop(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	tr := env.publishedTrip(t, "driver", 2)
	if _, err := env.cascade.CancelTripWithCascade(ctx, tr.ID, "driver"); err != nil {
		t.Fatalf("first cancel: %v", err)
	}
	before := len(env.events.Events())

	res, err := env.cascade.CancelTripWithCascade(ctx, tr.ID, "driver")
	if err != nil {
		t.Fatalf("second cancel: %v", err)
	}
	if res.Effects != (CascadeEffects{}) {
		t.Fatalf("second cancel should have no effects, got %+v", res.Effects)
	}
	if len(env.events.Events()) != before {
		t.Fatal("second cancel should not notify anyone")
	}
}

func TestCascadeRejections(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	tr := env.publishedTrip(t, "driver", 2)

	if _, err := env.cascade.CancelTripWithCascade(ctx, tr.ID, "other"); !errors.Is(err, apperrors.ErrForbiddenOwner) {
		t.Fatalf("expected ErrForbiddenOwner, got %v", err)
	}
	if _, err := env.cascade.CancelTripWithCascade(ctx, "missing", "driver"); !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := env.trips.StartTrip(ctx, tr.ID, "driver"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := env.cascade.CancelTripWithCascade(ctx, tr.ID, "driver"); !errors.Is(err, apperrors.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition for in-progress trip, got %v", err)
	}
}

func TestCascadeFailureLeavesEverythingUnchanged(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemory()
	env := newTestEnvUoW(t, mem, faultyUoW{Memory: mem})
	tr := env.publishedTrip(t, "driver", 3)
	pending := env.request(t, tr.ID, "p1", 1)
	acc := env.request(t, tr.ID, "p2", 2)
	env.accept(t, acc.ID, "driver")
	before := len(env.events.Events())

	_, err := env.cascade.CancelTripWithCascade(ctx, tr.ID, "driver")
	if !errors.Is(err, apperrors.ErrTransactionFailed) {
		t.Fatalf("expected ErrTransactionFailed, got %v", err)
	}

	stored, _ := mem.Trips().FindByID(ctx, tr.ID)
	if stored.Status != trip.StatusPublished || stored.CanceledAt != nil {
		t.Fatalf("trip should still be published: %+v", stored)
	}
	if got := env.bookingStatus(t, pending.ID); got != booking.StatusPending {
		t.Fatalf("pending booking changed to %s", got)
	}
	if got := env.bookingStatus(t, acc.ID); got != booking.StatusAccepted {
		t.Fatalf("accepted booking changed to %s", got)
	}
	if n := env.allocated(t, tr.ID); n != 2 {
		t.Fatalf("ledger changed to %d", n)
	}
	if len(env.events.Events()) != before {
		t.Fatal("no notification may be sent for an aborted cascade")
	}
}
