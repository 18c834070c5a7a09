package timeslot

import (
	"time"
)

// AbsSlot is the absolute increment number since the Unix epoch. All booking
// overlap math compares AbsSlot values, never wall-clock times, so day
// wraparound and DST ambiguity never enter the comparison.
type AbsSlot int64

// AbsAt returns the absolute increment containing the instant t.
func AbsAt(t time.Time) AbsSlot {
	return AbsSlot(t.UTC().Unix() / int64(Width.Seconds()))
}

// StartTime returns the UTC instant at which the increment begins.
func (s AbsSlot) StartTime() time.Time {
	return time.Unix(int64(s)*int64(Width.Seconds()), 0).UTC()
}

// DayIndex returns the 1-based index of the increment within its UTC day.
func (s AbsSlot) DayIndex() int {
	idx := int(int64(s) % Count)
	if idx < 0 {
		idx += Count
	}
	return idx + 1
}

// UTCDate returns midnight of the increment's UTC calendar day.
func (s AbsSlot) UTCDate() time.Time {
	return s.StartTime().Truncate(24 * time.Hour)
}

// Range is a half-open span of absolute increments [Start, End).
type Range struct {
	Start AbsSlot
	End   AbsSlot
}

// RangeFrom builds a Range covering nslots increments from the given instant.
func RangeFrom(start time.Time, nslots int) Range {
	s := AbsAt(start)
	return Range{Start: s, End: s + AbsSlot(nslots)}
}

// Slots returns the number of increments in the range.
func (r Range) Slots() int {
	return int(r.End - r.Start)
}

// Buffered expands the range by n increments on both ends.
func (r Range) Buffered(n int) Range {
	return Range{Start: r.Start - AbsSlot(n), End: r.End + AbsSlot(n)}
}

// Overlaps reports whether two half-open ranges share any increment.
func (r Range) Overlaps(other Range) bool {
	return r.Start < other.End && other.Start < r.End
}

// EndIndex returns the day index of the last occupied increment.
func (r Range) EndIndex() int {
	return (r.End - 1).DayIndex()
}

// DayRange is the projection of part of a Range onto a single UTC calendar
// day: the day, its weekday, and the inclusive index span occupied.
type DayRange struct {
	Date       time.Time // UTC midnight
	Weekday    time.Weekday
	StartIndex int
	EndIndex   int
}

// Slots returns the number of increments covered on this day.
func (d DayRange) Slots() int {
	return d.EndIndex - d.StartIndex + 1
}

// SplitByDay projects the range onto UTC calendar days. A range entirely
// inside one UTC day yields one DayRange; a range straddling UTC midnight
// yields two. Ranges never exceed a day, so the result has at most two
// elements.
func (r Range) SplitByDay() []DayRange {
	if r.End <= r.Start {
		return nil
	}
	first := DayRange{
		Date:       r.Start.UTCDate(),
		Weekday:    r.Start.UTCDate().Weekday(),
		StartIndex: r.Start.DayIndex(),
	}
	lastSlot := r.End - 1
	if lastSlot.UTCDate().Equal(first.Date) {
		first.EndIndex = lastSlot.DayIndex()
		return []DayRange{first}
	}
	first.EndIndex = Count
	second := DayRange{
		Date:       lastSlot.UTCDate(),
		Weekday:    lastSlot.UTCDate().Weekday(),
		StartIndex: 1,
		EndIndex:   lastSlot.DayIndex(),
	}
	return []DayRange{first, second}
}
