package availability

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeWeeklyShiftsToUTC(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	userID := uuid.New()
	ref := time.Date(2026, time.March, 2, 12, 0, 0, 0, time.UTC) // Monday, EST (UTC-5)

	// Monday 09:00 local = index 109. In EST that is 14:00 UTC = index 169.
	out := NormalizeWeekly([]WeeklySlot{
		{UserID: userID, Weekday: time.Monday, Index: 109},
	}, loc, ref)

	require.Len(t, out, 1)
	assert.Equal(t, time.Monday, out[0].Weekday)
	assert.Equal(t, 169, out[0].Index)
	assert.Equal(t, userID, out[0].UserID)
}

func TestNormalizeWeeklyCrossesUTCMidnight(t *testing.T) {
	loc, err := time.LoadLocation("America/Los_Angeles")
	require.NoError(t, err)

	ref := time.Date(2026, time.January, 5, 12, 0, 0, 0, time.UTC) // PST (UTC-8)

	// Monday 22:00 local = index 265. In PST that is 06:00 UTC Tuesday.
	out := NormalizeWeekly([]WeeklySlot{
		{Weekday: time.Monday, Index: 265},
	}, loc, ref)

	require.Len(t, out, 1)
	assert.Equal(t, time.Tuesday, out[0].Weekday)
	assert.Equal(t, 73, out[0].Index) // 06:00 UTC
}

func TestNormalizeWeeklyUTCPassthrough(t *testing.T) {
	ref := time.Date(2026, time.June, 1, 0, 0, 0, 0, time.UTC)

	in := []WeeklySlot{
		{Weekday: time.Wednesday, Index: 1},
		{Weekday: time.Sunday, Index: 288},
	}
	out := NormalizeWeekly(in, time.UTC, ref)

	require.Len(t, out, 2)
	assert.Equal(t, in[0].Weekday, out[0].Weekday)
	assert.Equal(t, in[0].Index, out[0].Index)
	assert.Equal(t, in[1].Weekday, out[1].Weekday)
	assert.Equal(t, in[1].Index, out[1].Index)
}
