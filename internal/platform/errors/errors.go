package apperrors

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrInvalidState        = errors.New("operation not valid in current state")
	ErrNotFound            = errors.New("not found")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrConflict            = errors.New("conflict")
	ErrNoActiveSession     = errors.New("no active session")
	ErrActiveSessionExists = errors.New("active session already exists")
)

// RemoteError describes a failed call to the remote API.
type RemoteError struct {
	Op     string
	Status int
	Err    error
}

func (e *RemoteError) Error() string {
	if e == nil {
		return ""
	}
	if e.Status > 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *RemoteError) Unwrap() error { return e.Err }

// Invalid wraps ErrInvalidInput with a reason.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// Message maps an error to the text shown next to the last known state.
func Message(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidInput):
		return err.Error()
	case errors.Is(err, ErrInvalidState):
		return "That action is not available right now."
	case errors.Is(err, ErrNoActiveSession):
		return "There is no active focus session."
	case errors.Is(err, ErrActiveSessionExists), errors.Is(err, ErrConflict):
		return "A focus session is already active."
	case errors.Is(err, ErrUnauthorized):
		return "Your session has expired. Please sign in again."
	case errors.Is(err, ErrNotFound):
		return "The focus session no longer exists."
	default:
		return "Could not reach the server. Showing the last known state."
	}
}
