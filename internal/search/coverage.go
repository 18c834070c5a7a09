package search

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/smartfuturesg/telehealth-platform/internal/timeslot"
)

type weeklyKey struct {
	id      uuid.UUID
	weekday time.Weekday
}

type dateKey struct {
	id       uuid.UUID
	epochDay int64
}

// coverage is the in-memory availability index for one search: weekly grants
// keyed by UTC weekday plus date-specific overrides. A slot is covered when a
// weekly grant exists and no busy exception removes it, or when a one-off
// exception adds it.
type coverage struct {
	weekly map[weeklyKey]map[int]bool
	busyEx map[dateKey]map[int]bool
	addEx  map[dateKey]map[int]bool
}

func (c *coverage) covers(id uuid.UUID, r timeslot.Range) bool {
	for s := r.Start; s < r.End; s++ {
		idx := s.DayIndex()
		day := dateKey{id: id, epochDay: int64(s) / timeslot.Count}
		if c.addEx[day][idx] {
			continue
		}
		wk := weeklyKey{id: id, weekday: s.UTCDate().Weekday()}
		if c.weekly[wk][idx] && !c.busyEx[day][idx] {
			continue
		}
		return false
	}
	return true
}

// loadCoverage fetches weekly grants and exceptions for every UTC day the
// outer window touches. The window is at most a couple of days, so each day
// is one query pair.
func (e *Engine) loadCoverage(ctx context.Context, ids []uuid.UUID, outer timeslot.Range) (*coverage, error) {
	cov := &coverage{
		weekly: make(map[weeklyKey]map[int]bool),
		busyEx: make(map[dateKey]map[int]bool),
		addEx:  make(map[dateKey]map[int]bool),
	}

	lastDay := int64(outer.End-1) / timeslot.Count
	for epochDay := int64(outer.Start) / timeslot.Count; epochDay <= lastDay; epochDay++ {
		dayStart := timeslot.AbsSlot(epochDay * timeslot.Count)
		date := dayStart.UTCDate()

		startIdx := 1
		if outer.Start > dayStart {
			startIdx = outer.Start.DayIndex()
		}
		endIdx := timeslot.Count
		if lastSlot := outer.End - 1; int64(lastSlot)/timeslot.Count == epochDay {
			endIdx = lastSlot.DayIndex()
		}

		slots, err := e.availability.ListWeekdaySlots(ctx, ids, date.Weekday(), startIdx, endIdx)
		if err != nil {
			return nil, err
		}
		for _, slot := range slots {
			key := weeklyKey{id: slot.UserID, weekday: slot.Weekday}
			if cov.weekly[key] == nil {
				cov.weekly[key] = make(map[int]bool)
			}
			cov.weekly[key][slot.Index] = true
		}

		exceptions, err := e.availability.ListExceptions(ctx, ids, date, startIdx, endIdx)
		if err != nil {
			return nil, err
		}
		for _, ex := range exceptions {
			key := dateKey{id: ex.UserID, epochDay: epochDay}
			target := cov.addEx
			if ex.Busy {
				target = cov.busyEx
			}
			if target[key] == nil {
				target[key] = make(map[int]bool)
			}
			target[key][ex.Index] = true
		}
	}
	return cov, nil
}
