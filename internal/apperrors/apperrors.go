// README: Error taxonomy shared by the booking engine and its transport.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error kinds. Callers match them with errors.Is.
var (
	ErrNotFound          = errors.New("not found")
	ErrForbiddenOwner    = errors.New("caller does not own the resource")
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrDuplicateRequest  = errors.New("duplicate active request")
	ErrCapacityExceeded  = errors.New("seat capacity exceeded")
	ErrTransactionFailed = errors.New("transaction failed")
	ErrBadRequest        = errors.New("bad request")
	ErrScheduleConflict  = errors.New("schedule conflict")
)

// TransitionError is returned when a state machine rejects a move.
type TransitionError struct {
	Entity    string
	Current   string
	Attempted string
	Reason    string
}

func (e *TransitionError) Error() string {
	msg := fmt.Sprintf("%s: cannot move from %q to %q", e.Entity, e.Current, e.Attempted)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// Transition builds a TransitionError for entity.
func Transition(entity, current, attempted string) error {
	return &TransitionError{Entity: entity, Current: current, Attempted: attempted}
}

func NotFound(resource string) error {
	return fmt.Errorf("%s %w", resource, ErrNotFound)
}

func BadRequest(msg string) error {
	return fmt.Errorf("%w: %s", ErrBadRequest, msg)
}

// TxFailed marks err as an aborted unit of work. Nothing was applied.
func TxFailed(op string, err error) error {
	if errors.Is(err, ErrTransactionFailed) {
		return err
	}
	return fmt.Errorf("%s: %w: %v", op, ErrTransactionFailed, err)
}

// IsDomain reports whether err is one of the client-facing kinds, as opposed to
// an infrastructure failure.
func IsDomain(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrForbiddenOwner),
		errors.Is(err, ErrInvalidTransition),
		errors.Is(err, ErrDuplicateRequest),
		errors.Is(err, ErrCapacityExceeded),
		errors.Is(err, ErrScheduleConflict),
		errors.Is(err, ErrBadRequest):
		return true
	}
	return false
}

func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrForbiddenOwner):
		return http.StatusForbidden
	case errors.Is(err, ErrInvalidTransition),
		errors.Is(err, ErrDuplicateRequest),
		errors.Is(err, ErrCapacityExceeded),
		errors.Is(err, ErrScheduleConflict):
		return http.StatusConflict
	case errors.Is(err, ErrTransactionFailed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
