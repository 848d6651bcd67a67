// README: Tests for error kinds, transition errors and HTTP status mapping.
package apperrors

import (
	"errors"
	"net/http"
	"testing"
)

func TestTransitionErrorMatchesKind(t *testing.T) {
	err := Transition("booking", "declined", "accepted")
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	var te *TransitionError
	if !errors.As(err, &te) {
		t.Fatalf("expected *TransitionError")
	}
	if te.Current != "declined" || te.Attempted != "accepted" {
		t.Fatalf("unexpected states: %+v", te)
	}
}

func TestTxFailedWrapsOnce(t *testing.T) {
	err := TxFailed("cascade", errors.New("boom"))
	if !errors.Is(err, ErrTransactionFailed) {
		t.Fatalf("expected ErrTransactionFailed, got %v", err)
	}
	if again := TxFailed("outer", err); again != err {
		t.Fatalf("expected already-wrapped error to pass through, got %v", again)
	}
}

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{NotFound("trip"), http.StatusNotFound},
		{ErrForbiddenOwner, http.StatusForbidden},
		{Transition("trip", "completed", "canceled"), http.StatusConflict},
		{ErrDuplicateRequest, http.StatusConflict},
		{ErrCapacityExceeded, http.StatusConflict},
		{TxFailed("x", errors.New("y")), http.StatusServiceUnavailable},
		{BadRequest("seats"), http.StatusBadRequest},
		{errors.New("driver exploded"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := HTTPStatus(tc.err); got != tc.want {
			t.Errorf("HTTPStatus(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}
