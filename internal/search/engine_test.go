package search

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartfuturesg/telehealth-platform/internal/availability"
	"github.com/smartfuturesg/telehealth-platform/internal/bookings"
	"github.com/smartfuturesg/telehealth-platform/internal/staff"
	"github.com/smartfuturesg/telehealth-platform/internal/timeslot"
)

type fakeStaff struct {
	profiles   []staff.Profile
	lastFilter staff.CandidateFilter
}

func (f *fakeStaff) Candidates(_ context.Context, filter staff.CandidateFilter) ([]staff.Profile, error) {
	f.lastFilter = filter
	var out []staff.Profile
	for _, p := range f.profiles {
		if p.Profession != filter.Profession {
			continue
		}
		if filter.Sex != nil && p.Sex != *filter.Sex {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

type fakeAvail struct {
	weekly     []availability.WeeklySlot
	exceptions []availability.Exception
}

func (f *fakeAvail) ListWeekdaySlots(_ context.Context, ids []uuid.UUID, weekday time.Weekday, startIdx, endIdx int) ([]availability.WeeklySlot, error) {
	var out []availability.WeeklySlot
	for _, s := range f.weekly {
		if s.Weekday == weekday && s.Index >= startIdx && s.Index <= endIdx && containsID(ids, s.UserID) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeAvail) ListExceptions(_ context.Context, ids []uuid.UUID, date time.Time, startIdx, endIdx int) ([]availability.Exception, error) {
	var out []availability.Exception
	for _, e := range f.exceptions {
		if e.Date.Equal(date) && e.Index >= startIdx && e.Index <= endIdx && containsID(ids, e.UserID) {
			out = append(out, e)
		}
	}
	return out, nil
}

type fakeBookings struct {
	busy []bookings.BusyInterval
}

func (f *fakeBookings) ListBusyIntervals(_ context.Context, ids []uuid.UUID, window timeslot.Range) ([]bookings.BusyInterval, error) {
	var out []bookings.BusyInterval
	for _, iv := range f.busy {
		if containsID(ids, iv.StaffUserID) && iv.Range.Overlaps(window) {
			out = append(out, iv)
		}
	}
	return out, nil
}

func containsID(ids []uuid.UUID, id uuid.UUID) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}

// grantRange appends weekly grants for the inclusive index span.
func grantRange(av *fakeAvail, id uuid.UUID, weekday time.Weekday, from, to int) {
	for i := from; i <= to; i++ {
		av.weekly = append(av.weekly, availability.WeeklySlot{UserID: id, Weekday: weekday, Index: i})
	}
}

func newTestEngine(dir *fakeStaff, av *fakeAvail, bk *fakeBookings, now time.Time) *Engine {
	e := NewEngine(dir, av, bk, Policy{LeadTime: 2 * time.Hour, StartEndBuffer: 1}, nil, nil)
	e.now = func() time.Time { return now }
	return e
}

func slotIndices(slots []Slot) []int {
	out := make([]int, len(slots))
	for i, s := range slots {
		out[i] = s.StartIndex
	}
	return out
}

func TestSearchReturnsCoveredAlignedSlots(t *testing.T) {
	docID := uuid.New()
	dir := &fakeStaff{profiles: []staff.Profile{{
		UserID: docID, Profession: staff.ProfessionNutritionist,
		Sex: staff.SexFemale, HourlyRateCents: 10000,
	}}}
	av := &fakeAvail{}
	// Monday 09:55–12:30 UTC (indices 120..150), one buffer slot on each side
	// of a booking must also be granted.
	grantRange(av, docID, time.Monday, 120, 150)

	now := time.Date(2024, 6, 10, 7, 0, 0, 0, time.UTC) // Monday
	e := newTestEngine(dir, av, &fakeBookings{}, now)

	slots, err := e.Search(context.Background(), Request{
		Year: 2024, Month: time.June, Day: 10, Timezone: "UTC",
		DurationMinutes: 20, Profession: staff.ProfessionNutritionist,
	})
	require.NoError(t, err)

	// Earliest bookable start is 10:00 (index 121, lead time clamps 09:00 up);
	// last start whose buffered range fits inside the grant is 12:00 (145).
	require.NotEmpty(t, slots)
	assert.Equal(t, 121, slots[0].StartIndex)
	assert.Equal(t, 145, slots[len(slots)-1].StartIndex)
	for _, s := range slots {
		assert.Len(t, s.Practitioners, 1)
		assert.Equal(t, int32(3333), s.Practitioners[0].ConsultRateCents) // 100.00/h for 20min
	}
}

func TestSearchExcludesPartialCoverage(t *testing.T) {
	docID := uuid.New()
	dir := &fakeStaff{profiles: []staff.Profile{{
		UserID: docID, Profession: staff.ProfessionNutritionist, HourlyRateCents: 9000,
	}}}
	av := &fakeAvail{}
	grantRange(av, docID, time.Monday, 120, 150)
	// Knock a hole in the middle of the morning: index 130 (10:45) missing.
	filtered := av.weekly[:0]
	for _, s := range av.weekly {
		if s.Index != 130 {
			filtered = append(filtered, s)
		}
	}
	av.weekly = filtered

	now := time.Date(2024, 6, 10, 7, 0, 0, 0, time.UTC)
	e := newTestEngine(dir, av, &fakeBookings{}, now)

	slots, err := e.Search(context.Background(), Request{
		Year: 2024, Month: time.June, Day: 10, Timezone: "UTC",
		DurationMinutes: 20, Profession: staff.ProfessionNutritionist,
	})
	require.NoError(t, err)

	// Any candidate whose buffered range touches 130 is disqualified: starts
	// 126..130 would occupy it, and buffers extend the exclusion by one slot.
	for _, s := range slots {
		buffered := timeslot.RangeFrom(s.StartLocal, 4).Buffered(1)
		for abs := buffered.Start; abs < buffered.End; abs++ {
			assert.NotEqual(t, 130, abs.DayIndex(), "slot starting at index %d admits uncovered increment", s.StartIndex)
		}
	}
	assert.NotContains(t, slotIndices(slots), 127)
	assert.NotContains(t, slotIndices(slots), 130)
}

func TestSearchSubtractsExistingBookings(t *testing.T) {
	docID := uuid.New()
	dir := &fakeStaff{profiles: []staff.Profile{{
		UserID: docID, Profession: staff.ProfessionNutritionist, HourlyRateCents: 9000,
	}}}
	av := &fakeAvail{}
	grantRange(av, docID, time.Monday, 120, 150)

	// Existing booking 10:30–10:50 UTC.
	booked := timeslot.RangeFrom(time.Date(2024, 6, 10, 10, 30, 0, 0, time.UTC), 4)
	bk := &fakeBookings{busy: []bookings.BusyInterval{{StaffUserID: docID, Range: booked}}}

	now := time.Date(2024, 6, 10, 7, 0, 0, 0, time.UTC)
	e := newTestEngine(dir, av, bk, now)

	slots, err := e.Search(context.Background(), Request{
		Year: 2024, Month: time.June, Day: 10, Timezone: "UTC",
		DurationMinutes: 20, Profession: staff.ProfessionNutritionist,
	})
	require.NoError(t, err)

	// Every returned slot's buffered range must avoid the booked interval.
	for _, s := range slots {
		buffered := timeslot.RangeFrom(s.StartLocal, 4).Buffered(1)
		assert.False(t, buffered.Overlaps(booked), "slot %d overlaps existing booking", s.StartIndex)
	}
	assert.Contains(t, slotIndices(slots), 121) // 10:00 still free
	assert.NotContains(t, slotIndices(slots), 127)
}

func TestSearchLaterSlotWhenLeadTimeExcludesMorning(t *testing.T) {
	docID := uuid.New()
	dir := &fakeStaff{profiles: []staff.Profile{{
		UserID: docID, Profession: staff.ProfessionNutritionist, HourlyRateCents: 12000,
	}}}
	av := &fakeAvail{}
	// Only a block two hours past the earliest bookable time.
	grantRange(av, docID, time.Monday, 168, 180) // 13:55–15:00 UTC

	// Requested "today" at 11:30; lead time pushes earliest to 13:30, and the
	// grant starts at 14:00. Search must return the later block, not nothing.
	now := time.Date(2024, 6, 10, 11, 30, 0, 0, time.UTC)
	e := newTestEngine(dir, av, &fakeBookings{}, now)

	slots, err := e.Search(context.Background(), Request{
		Year: 2024, Month: time.June, Day: 10, Timezone: "UTC",
		DurationMinutes: 20, Profession: staff.ProfessionNutritionist,
	})
	require.NoError(t, err)
	require.NotEmpty(t, slots)
	assert.Equal(t, 169, slots[0].StartIndex) // 14:00
}

func TestSearchAcrossUTCMidnight(t *testing.T) {
	docID := uuid.New()
	dir := &fakeStaff{profiles: []staff.Profile{{
		UserID: docID, Profession: staff.ProfessionNutritionist, HourlyRateCents: 9000,
	}}}
	av := &fakeAvail{}
	// Los Angeles evening spills into the next UTC day: grants on both UTC
	// weekdays around midnight.
	grantRange(av, docID, time.Monday, 280, 288) // 23:15–00:00 UTC Monday
	grantRange(av, docID, time.Tuesday, 1, 24)   // 00:00–02:00 UTC Tuesday

	now := time.Date(2024, 6, 10, 10, 0, 0, 0, time.UTC)
	e := newTestEngine(dir, av, &fakeBookings{}, now)

	slots, err := e.Search(context.Background(), Request{
		Year: 2024, Month: time.June, Day: 10, Timezone: "America/Los_Angeles",
		DurationMinutes: 20, Profession: staff.ProfessionNutritionist,
	})
	require.NoError(t, err)
	require.NotEmpty(t, slots)

	// 16:45 local = 23:45 UTC; the 20-minute block straddles UTC midnight.
	var found bool
	for _, s := range slots {
		if s.StartLocal.Hour() == 16 && s.StartLocal.Minute() == 45 {
			found = true
		}
	}
	assert.True(t, found, "expected a bookable slot straddling UTC midnight")
}

func TestSearchLongDurationReachesEndOfDay(t *testing.T) {
	docID := uuid.New()
	dir := &fakeStaff{profiles: []staff.Profile{{
		UserID: docID, Profession: staff.ProfessionNutritionist, HourlyRateCents: 9000,
	}}}
	av := &fakeAvail{}
	// Around-the-clock grants on the target day and the next, so a late block
	// spilling past midnight stays covered.
	grantRange(av, docID, time.Monday, 1, 288)
	grantRange(av, docID, time.Tuesday, 1, 288)

	now := time.Date(2024, 6, 10, 7, 0, 0, 0, time.UTC) // Monday
	e := newTestEngine(dir, av, &fakeBookings{}, now)

	slots, err := e.Search(context.Background(), Request{
		Year: 2024, Month: time.June, Day: 10, Timezone: "UTC",
		DurationMinutes: 30, Profession: staff.ProfessionNutritionist,
	})
	require.NoError(t, err)
	require.NotEmpty(t, slots)

	// The last aligned start of the day is 23:45 (index 286); its 30-minute
	// block runs into Tuesday and must still be offered.
	assert.Contains(t, slotIndices(slots), 286)
	assert.Equal(t, 286, slots[len(slots)-1].StartIndex)
}

func TestSearchBusyExceptionRemovesSlot(t *testing.T) {
	docID := uuid.New()
	dir := &fakeStaff{profiles: []staff.Profile{{
		UserID: docID, Profession: staff.ProfessionNutritionist, HourlyRateCents: 9000,
	}}}
	av := &fakeAvail{}
	grantRange(av, docID, time.Monday, 120, 150)
	date := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	for i := 126; i <= 131; i++ {
		av.exceptions = append(av.exceptions, availability.Exception{
			UserID: docID, Date: date, Index: i, Busy: true,
		})
	}

	now := time.Date(2024, 6, 10, 7, 0, 0, 0, time.UTC)
	e := newTestEngine(dir, av, &fakeBookings{}, now)

	slots, err := e.Search(context.Background(), Request{
		Year: 2024, Month: time.June, Day: 10, Timezone: "UTC",
		DurationMinutes: 20, Profession: staff.ProfessionNutritionist,
	})
	require.NoError(t, err)
	assert.NotContains(t, slotIndices(slots), 127)
	assert.Contains(t, slotIndices(slots), 133) // past the exception + buffer
}

func TestSearchAddExceptionGrantsOneOffSlot(t *testing.T) {
	docID := uuid.New()
	dir := &fakeStaff{profiles: []staff.Profile{{
		UserID: docID, Profession: staff.ProfessionNutritionist, HourlyRateCents: 9000,
	}}}
	av := &fakeAvail{}
	// No weekly grants at all; one-off additions cover 10:00–10:30.
	date := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	for i := 120; i <= 127; i++ {
		av.exceptions = append(av.exceptions, availability.Exception{
			UserID: docID, Date: date, Index: i, Busy: false,
		})
	}

	now := time.Date(2024, 6, 10, 7, 0, 0, 0, time.UTC)
	e := newTestEngine(dir, av, &fakeBookings{}, now)

	slots, err := e.Search(context.Background(), Request{
		Year: 2024, Month: time.June, Day: 10, Timezone: "UTC",
		DurationMinutes: 20, Profession: staff.ProfessionNutritionist,
	})
	require.NoError(t, err)
	assert.Equal(t, []int{121}, slotIndices(slots))
}

func TestSearchGenderPreferencePushedToPool(t *testing.T) {
	female := staff.SexFemale
	dir := &fakeStaff{profiles: []staff.Profile{
		{UserID: uuid.New(), Profession: staff.ProfessionNutritionist, Sex: staff.SexMale, HourlyRateCents: 9000},
	}}
	now := time.Date(2024, 6, 10, 7, 0, 0, 0, time.UTC)
	e := newTestEngine(dir, &fakeAvail{}, &fakeBookings{}, now)

	slots, err := e.Search(context.Background(), Request{
		Year: 2024, Month: time.June, Day: 10, Timezone: "UTC",
		DurationMinutes: 20, Profession: staff.ProfessionNutritionist,
		GenderPreference: &female,
	})
	require.NoError(t, err)
	assert.Empty(t, slots)
	require.NotNil(t, dir.lastFilter.Sex)
	assert.Equal(t, female, *dir.lastFilter.Sex)
}

func TestSearchValidation(t *testing.T) {
	now := time.Date(2024, 6, 10, 7, 0, 0, 0, time.UTC)
	e := newTestEngine(&fakeStaff{}, &fakeAvail{}, &fakeBookings{}, now)

	_, err := e.Search(context.Background(), Request{
		Year: 2024, Month: time.June, Day: 10, Timezone: "UTC",
		DurationMinutes: 0, Profession: staff.ProfessionNutritionist,
	})
	assert.Error(t, err)

	_, err = e.Search(context.Background(), Request{
		Year: 2024, Month: time.June, Day: 10, Timezone: "Mars/Olympus",
		DurationMinutes: 20, Profession: staff.ProfessionNutritionist,
	})
	assert.Error(t, err)

	_, err = e.Search(context.Background(), Request{
		Year: 2024, Month: time.June, Day: 10, Timezone: "UTC",
		DurationMinutes: 20, Profession: staff.Profession("astrologer"),
	})
	assert.Error(t, err)
}

func TestSearchPastDayReturnsEmpty(t *testing.T) {
	docID := uuid.New()
	dir := &fakeStaff{profiles: []staff.Profile{{
		UserID: docID, Profession: staff.ProfessionNutritionist, HourlyRateCents: 9000,
	}}}
	av := &fakeAvail{}
	grantRange(av, docID, time.Sunday, 1, 288)

	now := time.Date(2024, 6, 10, 7, 0, 0, 0, time.UTC) // Monday
	e := newTestEngine(dir, av, &fakeBookings{}, now)

	slots, err := e.Search(context.Background(), Request{
		Year: 2024, Month: time.June, Day: 9, Timezone: "UTC", // yesterday
		DurationMinutes: 20, Profession: staff.ProfessionNutritionist,
	})
	require.NoError(t, err)
	assert.Empty(t, slots)
}
