package authz

import (
	"github.com/google/uuid"

	"github.com/smartfuturesg/telehealth-platform/internal/bookings"
)

// Role is the authenticated caller's role.
type Role string

const (
	RoleClient       Role = "client"
	RolePractitioner Role = "practitioner"
	RoleAdmin        Role = "admin"
)

// Action is a booking capability.
type Action string

const (
	ActionView     Action = "booking.view"
	ActionAccept   Action = "booking.accept"
	ActionCancel   Action = "booking.cancel"
	ActionStart    Action = "booking.start"
	ActionComplete Action = "booking.complete"
)

// Actor is the authenticated caller. Authorization is decided by asking the
// actor what it can do to a booking, not by status-column checks scattered
// through handlers.
type Actor struct {
	ID   uuid.UUID
	Role Role
}

// Can reports whether the actor may perform the action on the booking.
// Practitioner-side transitions belong to the booked practitioner; cancel is
// open to both parties; admins can do everything.
func (a Actor) Can(action Action, b *bookings.Booking) bool {
	if b == nil {
		return false
	}
	if a.Role == RoleAdmin {
		return true
	}

	isStaff := a.Role == RolePractitioner && a.ID == b.StaffUserID
	isClient := a.Role == RoleClient && a.ID == b.ClientUserID

	switch action {
	case ActionView:
		return isStaff || isClient
	case ActionCancel:
		return isStaff || isClient
	case ActionAccept, ActionStart, ActionComplete:
		return isStaff
	default:
		return false
	}
}

// Reporter converts the actor to the identity recorded in status history.
func (a Actor) Reporter() bookings.Reporter {
	role := bookings.RoleClient
	if a.Role == RolePractitioner || a.Role == RoleAdmin {
		role = bookings.RolePractitioner
	}
	return bookings.Reporter{ID: a.ID, Role: role}
}
