package flow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonthCalendarLayout(t *testing.T) {
	// 1 октября 2026 - четверг
	m := MonthCalendar(2026, time.October)

	require.Len(t, m.Rows, 7)
	assert.Equal(t, "cal:prev:2026-10", m.Rows[0][0].Data)
	assert.Equal(t, "Oct 2026", m.Rows[0][1].Text)
	assert.Equal(t, "cal:next:2026-10", m.Rows[0][2].Data)
	assert.Equal(t, "Mo", m.Rows[1][0].Text)

	first := m.Rows[2]
	require.Len(t, first, 7)
	for i := 0; i < 3; i++ {
		assert.Equal(t, calIgnore, first[i].Data)
	}
	assert.Equal(t, "1", first[3].Text)
	assert.Equal(t, "cal:day:2026-10-01", first[3].Data)

	last := m.Rows[6]
	require.Len(t, last, 7)
	assert.Equal(t, "cal:day:2026-10-31", last[5].Data)
	assert.Equal(t, calIgnore, last[6].Data)
}

func TestShiftMonth(t *testing.T) {
	y, m, err := shiftMonth("2026-12", 1)
	require.NoError(t, err)
	assert.Equal(t, 2027, y)
	assert.Equal(t, time.January, m)

	y, m, err = shiftMonth("2026-01", -1)
	require.NoError(t, err)
	assert.Equal(t, 2025, y)
	assert.Equal(t, time.December, m)

	_, _, err = shiftMonth("2026-13", 1)
	assert.Error(t, err)
}

func TestIsPast(t *testing.T) {
	now := time.Date(2026, time.October, 16, 23, 59, 0, 0, time.UTC)
	day := func(d int) time.Time { return time.Date(2026, time.October, d, 0, 0, 0, 0, time.UTC) }

	assert.True(t, isPast(day(15), now))
	assert.False(t, isPast(day(16), now), "today is allowed")
	assert.False(t, isPast(day(17), now))
}
