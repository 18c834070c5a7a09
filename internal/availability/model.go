package availability

import (
	"time"

	"github.com/google/uuid"
)

// WeeklySlot is one atomic availability grant: a practitioner is bookable for
// the given increment on the given UTC weekday, every week. Availability is a
// sparse set of these rows, not ranges; a schedule submission replaces the
// whole set.
type WeeklySlot struct {
	UserID  uuid.UUID
	Weekday time.Weekday
	Index   int // 1-based increment within the UTC day
}

// Exception is a one-off, date-specific override of the weekly schedule.
// Busy removes an increment for that date; otherwise the row adds one.
type Exception struct {
	ID     uuid.UUID
	UserID uuid.UUID
	Date   time.Time // UTC calendar day
	Index  int
	Busy   bool
}
