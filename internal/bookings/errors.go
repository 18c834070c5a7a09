package bookings

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a booking does not exist.
	ErrNotFound = errors.New("booking not found")

	// ErrSlotConflict is returned when the requested slot is no longer free at
	// commit time. Handlers surface it distinctly from validation failures so
	// clients re-run the search instead of correcting input.
	ErrSlotConflict = errors.New("slot no longer available")

	// ErrUnauthorized is returned when the actor lacks ownership of the booking.
	ErrUnauthorized = errors.New("not authorized for this booking")

	// ErrInvalidRequest marks booking input the caller can correct and resubmit.
	ErrInvalidRequest = errors.New("invalid booking request")
)

// StateError reports a transition attempted from a status that does not allow it.
type StateError struct {
	From Status
	To   Status
}

func (e *StateError) Error() string {
	return fmt.Sprintf("bookings: invalid transition %s -> %s", e.From, e.To)
}

// IsStateError reports whether err is a StateError.
func IsStateError(err error) bool {
	var se *StateError
	return errors.As(err, &se)
}
