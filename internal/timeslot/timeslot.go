package timeslot

import (
	"fmt"
	"sync"
	"time"
)

// Width is the duration of one booking increment.
const Width = 5 * time.Minute

// Count is the number of increments in one day.
const Count = 288

// AlignStep is the increment stride for candidate booking starts (15 minutes).
const AlignStep = 3

// Increment is one fixed slot of a day, 1-indexed. Start and End are offsets
// from midnight; End of slot n equals Start of slot n+1, wrapping at Count.
type Increment struct {
	Index int
	Start time.Duration
	End   time.Duration
}

// Table is the read-only increment table. Every instant of a day maps to
// exactly one increment; all scheduling arithmetic happens on indices.
type Table struct {
	increments []Increment
}

var (
	defaultOnce  sync.Once
	defaultTable *Table
)

// Default returns the process-wide table, built on first use.
func Default() *Table {
	defaultOnce.Do(func() {
		defaultTable = NewTable()
	})
	return defaultTable
}

// NewTable builds the full increment table.
func NewTable() *Table {
	increments := make([]Increment, Count)
	for i := 0; i < Count; i++ {
		start := time.Duration(i) * Width
		end := start + Width
		if i == Count-1 {
			end = 0 // wraps to midnight
		}
		increments[i] = Increment{Index: i + 1, Start: start, End: end}
	}
	return &Table{increments: increments}
}

// Bounds returns the wall-clock start/end offsets of an increment.
func (t *Table) Bounds(index int) (start, end time.Duration, err error) {
	if index < 1 || index > Count {
		return 0, 0, fmt.Errorf("timeslot: index %d out of range [1,%d]", index, Count)
	}
	inc := t.increments[index-1]
	return inc.Start, inc.End, nil
}

// All returns every increment in index order.
func (t *Table) All() []Increment {
	out := make([]Increment, len(t.increments))
	copy(out, t.increments)
	return out
}

// IndexAt returns the 1-based increment containing t's wall-clock time.
func IndexAt(t time.Time) int {
	return (t.Hour()*60+t.Minute())/int(Width.Minutes()) + 1
}

// SlotsIn returns how many increments a duration occupies, rounding up.
func SlotsIn(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + Width - 1) / Width)
}

// LocalStart returns the instant at which the given increment begins on the
// given calendar day in loc. Built through time.Date so DST transitions
// resolve the way the local clock does.
func LocalStart(year int, month time.Month, day int, index int, loc *time.Location) time.Time {
	minutes := (index - 1) * int(Width.Minutes())
	return time.Date(year, month, day, 0, minutes, 0, 0, loc)
}

// CeilToAlignment rounds t up to the next candidate-start boundary
// (AlignStep increments, i.e. 15 minutes). Already-aligned times are returned
// unchanged.
func CeilToAlignment(t time.Time) time.Time {
	step := time.Duration(AlignStep) * Width
	rounded := t.Truncate(step)
	if rounded.Before(t) {
		rounded = rounded.Add(step)
	}
	return rounded
}
