package bookings

import (
	"time"

	"github.com/google/uuid"

	"github.com/smartfuturesg/telehealth-platform/internal/staff"
	"github.com/smartfuturesg/telehealth-platform/internal/timeslot"
)

// Status tracks the booking lifecycle.
type Status string

const (
	StatusPending    Status = "pending"
	StatusAccepted   Status = "accepted"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCanceled   Status = "canceled"
)

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCanceled
}

// validNext lists the allowed transitions out of each status.
var validNext = map[Status][]Status{
	StatusPending:    {StatusAccepted, StatusCanceled},
	StatusAccepted:   {StatusInProgress, StatusCanceled},
	StatusInProgress: {StatusCompleted},
}

// CanTransition reports whether from→to is a legal lifecycle step.
func CanTransition(from, to Status) bool {
	if from.Terminal() {
		return false
	}
	for _, next := range validNext[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ReporterRole identifies who drove a status transition.
type ReporterRole string

const (
	RoleClient       ReporterRole = "client"
	RolePractitioner ReporterRole = "practitioner"
	RoleSystem       ReporterRole = "system"
)

// Reporter is the audited actor of a transition. System transitions carry a
// nil reporter ID.
type Reporter struct {
	ID   uuid.UUID
	Role ReporterRole
}

// SystemReporter is the actor recorded for scheduler-driven transitions.
var SystemReporter = Reporter{Role: RoleSystem}

// Booking is the central scheduling entity. Local coordinates (TargetDate,
// StartIndex, EndIndex) are what the client saw when booking; the UTC slot
// columns are the only coordinates consulted for overlap queries.
type Booking struct {
	ID                   uuid.UUID
	ClientUserID         uuid.UUID
	StaffUserID          uuid.UUID
	Profession           staff.Profession
	TargetDate           time.Time // client-local calendar day
	TargetDateUTC        time.Time
	StartIndex           int // client-local increment coordinates
	EndIndex             int
	StartIndexUTC        int
	EndIndexUTC          int
	StartSlotUTC         timeslot.AbsSlot // absolute increments, overlap coordinate
	EndSlotUTC           timeslot.AbsSlot // exclusive
	DurationMinutes      int
	Status               Status
	ClientTimezone       string
	StaffTimezone        string
	ConsultRateCents     int32
	Charged              bool
	PaymentMethodID      string
	PaymentTransactionID string
	Notified             bool // reminder sent
	PaymentNotified      bool // charge-ahead notice sent
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// SlotRange returns the booking's occupied UTC increment range.
func (b *Booking) SlotRange() timeslot.Range {
	return timeslot.Range{Start: b.StartSlotUTC, End: b.EndSlotUTC}
}

// StartAt returns the UTC instant the booking begins.
func (b *Booking) StartAt() time.Time {
	return b.StartSlotUTC.StartTime()
}

// EndAt returns the UTC instant the booking ends.
func (b *Booking) EndAt() time.Time {
	return b.EndSlotUTC.StartTime()
}

// StatusHistoryEntry is one append-only record of a status the booking held.
type StatusHistoryEntry struct {
	ID           uuid.UUID
	BookingID    uuid.UUID
	Status       Status
	ReporterID   uuid.UUID // Nil for system transitions
	ReporterRole ReporterRole
	CreatedAt    time.Time
}

// Rooms holds the external conversation/video identifiers owned by a booking.
// Rows exist only between Accept and transcript archival.
type Rooms struct {
	BookingID      uuid.UUID
	ConversationID string
	VideoRoomID    string
	CreatedAt      time.Time
}

// ConsultRateCents computes the display rate for a candidate practitioner:
// the hourly rate prorated over the booking duration, rounded to the cent.
func ConsultRateCents(hourlyRateCents int32, durationMinutes int) int32 {
	return int32((int64(hourlyRateCents)*int64(durationMinutes) + 30) / 60)
}
