package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func weeklyRequest(until Date) Request {
	return Request{Title: "Seminar", DurationMinutes: 60, Recurring: true, RecurringUntil: &until}
}

func scheduleWeekly(t *testing.T, busy []Interval) Result {
	t.Helper()
	e := newTestEngine(Options{})
	res, err := e.Schedule(Input{
		Requests:    []Request{weeklyRequest(dateAt(14))},
		Busy:        busy,
		Preferences: utc(),
		WindowStart: at(0, 8, 0),
		WindowEnd:   at(0, 12, 0),
	})
	require.NoError(t, err)
	require.Len(t, res.Events, 3)
	assert.False(t, res.Events[0].Recurrence)
	assert.Equal(t, at(0, 8, 0), res.Events[0].Start)
	return res
}

func TestWeeklyDates(t *testing.T) {
	assert.Equal(t, []Date{dateAt(7), dateAt(14)}, weeklyDates(dateAt(0), dateAt(14), DefaultMaxOccurrences))
	assert.Equal(t, []Date{dateAt(7)}, weeklyDates(dateAt(0), dateAt(13), DefaultMaxOccurrences))
	assert.Empty(t, weeklyDates(dateAt(0), dateAt(6), DefaultMaxOccurrences))
	assert.Empty(t, weeklyDates(dateAt(3), dateAt(0), DefaultMaxOccurrences))
	assert.Len(t, weeklyDates(dateAt(0), dateAt(700), 4), 4)
}

func TestRecurSameClockTime(t *testing.T) {
	res := scheduleWeekly(t, nil)

	for i, week := range []int{7, 14} {
		ev := res.Events[i+1]
		assert.True(t, ev.Recurrence)
		assert.False(t, ev.Unscheduled)
		assert.Equal(t, at(week, 8, 0), ev.Start)
		require.NotNil(t, ev.OccurrenceDate)
		assert.Equal(t, dateAt(week), *ev.OccurrenceDate)
	}
	assert.Equal(t, 3, res.Busy.Len())
}

func TestRecurFallsBackToSameDay(t *testing.T) {
	res := scheduleWeekly(t, []Interval{span(7, 8, 0, 7, 9, 0)})

	assert.Equal(t, at(7, 0, 0), res.Events[1].Start)
	assert.Equal(t, at(14, 8, 0), res.Events[2].Start)
}

func TestRecurFallsBackToNearbyDays(t *testing.T) {
	res := scheduleWeekly(t, []Interval{span(7, 0, 0, 8, 0, 0)})

	ev := res.Events[1]
	assert.False(t, ev.Unscheduled)
	assert.Equal(t, at(4, 0, 0), ev.Start)
	assert.Equal(t, dateAt(7), *ev.OccurrenceDate)
}

func TestRecurEmitsPlaceholder(t *testing.T) {
	res := scheduleWeekly(t, []Interval{span(4, 0, 0, 11, 0, 0)})

	ev := res.Events[1]
	assert.True(t, ev.Unscheduled)
	assert.True(t, ev.Recurrence)
	assert.Equal(t, 60, ev.RequestedMinutes)
	require.NotNil(t, ev.OccurrenceDate)
	assert.Equal(t, "2025-12-08", ev.Record().OccurrenceDate)

	assert.False(t, res.Events[2].Unscheduled)
	assert.Equal(t, at(14, 8, 0), res.Events[2].Start)
}

func TestRecurNearbyDaysSkipBlackout(t *testing.T) {
	prefs := utc()
	prefs.Blackout[dateAt(4).Weekday()] = true // Friday

	e := newTestEngine(Options{})
	res, err := e.Schedule(Input{
		Requests:    []Request{weeklyRequest(dateAt(7))},
		Busy:        []Interval{span(7, 0, 0, 8, 0, 0)},
		Preferences: prefs,
		WindowStart: at(0, 8, 0),
		WindowEnd:   at(0, 12, 0),
	})
	require.NoError(t, err)
	require.Len(t, res.Events, 2)
	assert.Equal(t, at(5, 0, 0), res.Events[1].Start)
}
