package availability

import (
	"time"

	"github.com/smartfuturesg/telehealth-platform/internal/timeslot"
)

// NormalizeWeekly converts a schedule submitted in the practitioner's local
// timezone into the UTC weekday/index coordinates the store keeps. The
// conversion is anchored on the next occurrence of each weekday after ref, so
// the stored rows reflect the zone's current UTC offset.
func NormalizeWeekly(local []WeeklySlot, loc *time.Location, ref time.Time) []WeeklySlot {
	out := make([]WeeklySlot, 0, len(local))
	for _, slot := range local {
		day := nextWeekday(ref.In(loc), slot.Weekday)
		start := timeslot.LocalStart(day.Year(), day.Month(), day.Day(), slot.Index, loc)
		abs := timeslot.AbsAt(start)
		out = append(out, WeeklySlot{
			UserID:  slot.UserID,
			Weekday: abs.UTCDate().Weekday(),
			Index:   abs.DayIndex(),
		})
	}
	return out
}

func nextWeekday(from time.Time, day time.Weekday) time.Time {
	delta := (int(day) - int(from.Weekday()) + 7) % 7
	return from.AddDate(0, 0, delta)
}
