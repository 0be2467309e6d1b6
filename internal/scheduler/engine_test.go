package scheduler

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(opts Options) *Engine {
	n := 0
	opts.NewUID = func() string {
		n++
		return fmt.Sprintf("uid-%d", n)
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(1))
	}
	return New(opts)
}

func utc() Preferences { return DefaultPreferences(time.UTC) }

func TestScheduleAfterBusyBlock(t *testing.T) {
	e := newTestEngine(Options{})
	res, err := e.Schedule(Input{
		Requests:    []Request{{Title: "A", DurationMinutes: 60, Priority: PriorityMedium}},
		Busy:        []Interval{span(0, 9, 0, 0, 10, 0)},
		Preferences: utc(),
		WindowStart: at(0, 9, 0),
		WindowEnd:   at(0, 23, 59),
	})
	require.NoError(t, err)
	require.Len(t, res.Events, 1)

	ev := res.Events[0]
	assert.False(t, ev.Unscheduled)
	assert.Equal(t, at(0, 10, 0), ev.Start)
	assert.Equal(t, at(0, 11, 0), ev.End)
	assert.Equal(t, "uid-1", ev.UID)
	assert.Equal(t, []Interval{span(0, 9, 0, 0, 11, 0)}, res.Busy.Intervals())
}

func TestScheduleEarliestFitFromMidnight(t *testing.T) {
	e := newTestEngine(Options{})
	res, err := e.Schedule(Input{
		Requests:    []Request{{Title: "A", DurationMinutes: 60}},
		Busy:        []Interval{span(0, 9, 0, 0, 10, 0)},
		Preferences: utc(),
		WindowStart: at(0, 0, 0),
		WindowEnd:   at(0, 23, 59),
	})
	require.NoError(t, err)
	require.Len(t, res.Placed(), 1)
	assert.Equal(t, at(0, 0, 0), res.Events[0].Start)
}

func TestScheduleSplitChunksAscending(t *testing.T) {
	e := newTestEngine(Options{})
	res, err := e.Schedule(Input{
		Requests:    []Request{{Title: "Essay", DurationMinutes: 90, Split: true, SplitMinutes: 30}},
		Preferences: utc(),
		WindowStart: at(0, 0, 0),
		WindowEnd:   at(1, 0, 0),
	})
	require.NoError(t, err)
	require.Len(t, res.Events, 3)

	for i, ev := range res.Events {
		assert.Equal(t, i, ev.Chunk)
		assert.Equal(t, 30, ev.Minutes())
		if i > 0 {
			assert.True(t, ev.Start.After(res.Events[i-1].Start))
			assert.False(t, ev.Start.Before(res.Events[i-1].End))
		}
	}
	assert.Equal(t, at(0, 0, 0), res.Events[0].Start)
	assert.Equal(t, at(0, 1, 30), res.Events[2].End)
}

func TestSchedulePreferredBand(t *testing.T) {
	e := newTestEngine(Options{})
	res, err := e.Schedule(Input{
		Requests:    []Request{{Title: "Read", DurationMinutes: 60}},
		Preferences: rankedPrefs(t, map[string]int{"evening": 1}),
		WindowStart: at(0, 9, 0),
		WindowEnd:   at(0, 22, 0),
	})
	require.NoError(t, err)
	require.Len(t, res.Placed(), 1)
	assert.Equal(t, at(0, 16, 0), res.Events[0].Start)
	assert.Equal(t, at(0, 17, 0), res.Events[0].End)
}

func TestScheduleTooLongForTimeSpan(t *testing.T) {
	day := dateAt(0)
	e := newTestEngine(Options{})
	res, err := e.Schedule(Input{
		Requests: []Request{{
			Title: "Lab", DurationMinutes: 90,
			DateStart: &day, DateEnd: &day,
			TimeStart: clockPtr(8, 0), TimeEnd: clockPtr(9, 0),
		}},
		Preferences: utc(),
		WindowStart: at(-1, 0, 0),
		WindowEnd:   at(4, 0, 0),
	})
	require.NoError(t, err)
	require.Len(t, res.Events, 1)

	ev := res.Events[0]
	assert.True(t, ev.Unscheduled)
	assert.Equal(t, 90, ev.RequestedMinutes)
	assert.True(t, ev.Start.IsZero())
	assert.Empty(t, res.Busy.Intervals())

	rec := ev.Record()
	assert.Empty(t, rec.Start)
	assert.Equal(t, 90, rec.RequestedMinutes)
}

func TestSchedulePriorityWins(t *testing.T) {
	e := newTestEngine(Options{})
	res, err := e.Schedule(Input{
		Requests: []Request{
			{Index: 0, Title: "low", DurationMinutes: 60, Priority: PriorityLow},
			{Index: 1, Title: "high", DurationMinutes: 60, Priority: PriorityHigh},
		},
		Preferences: utc(),
		WindowStart: at(0, 9, 0),
		WindowEnd:   at(0, 10, 0),
	})
	require.NoError(t, err)
	require.Len(t, res.Events, 2)

	assert.Equal(t, "high", res.Events[0].Title)
	assert.False(t, res.Events[0].Unscheduled)
	assert.Equal(t, "low", res.Events[1].Title)
	assert.True(t, res.Events[1].Unscheduled)
	assert.Equal(t, 0, res.Events[1].RequestIndex)
}

func TestScheduleLongerFirstWithinPriority(t *testing.T) {
	e := newTestEngine(Options{})
	res, err := e.Schedule(Input{
		Requests: []Request{
			{Title: "short", DurationMinutes: 60, Priority: PriorityMedium},
			{Title: "long", DurationMinutes: 120, Priority: PriorityMedium},
		},
		Preferences: utc(),
		WindowStart: at(0, 9, 0),
		WindowEnd:   at(0, 11, 0),
	})
	require.NoError(t, err)
	require.Len(t, res.Unscheduled(), 1)
	assert.Equal(t, "short", res.Unscheduled()[0].Title)
	assert.Equal(t, "long", res.Placed()[0].Title)
}

func TestScheduleSkipsBlackoutDays(t *testing.T) {
	prefs := utc()
	prefs.Blackout[time.Monday] = true

	e := newTestEngine(Options{})
	res, err := e.Schedule(Input{
		Requests:    []Request{{Title: "A", DurationMinutes: 60}},
		Preferences: prefs,
		WindowStart: at(0, 0, 0), // Monday
		WindowEnd:   at(2, 0, 0),
	})
	require.NoError(t, err)
	require.Len(t, res.Placed(), 1)
	assert.Equal(t, at(1, 0, 0), res.Events[0].Start)
}

func TestScheduleRolloverStopsAtBlackoutMidnight(t *testing.T) {
	prefs := utc()
	prefs.Blackout[time.Monday] = true

	e := newTestEngine(Options{})
	res, err := e.Schedule(Input{
		Requests: []Request{{
			Title: "night", DurationMinutes: 180,
			TimeStart: clockPtr(22, 0), TimeEnd: clockPtr(2, 0),
		}},
		Preferences: prefs,
		WindowStart: at(-1, 0, 0), // Sunday
		WindowEnd:   at(1, 0, 0),
	})
	require.NoError(t, err)
	require.Len(t, res.Events, 1)
	assert.True(t, res.Events[0].Unscheduled, "Sunday evening has two hours before Monday")
}

func TestScheduleWakeAndBed(t *testing.T) {
	prefs := utc()
	prefs.Wake = clockPtr(8, 0)
	prefs.Bed = clockPtr(22, 0)

	e := newTestEngine(Options{})
	res, err := e.Schedule(Input{
		Requests:    []Request{{Title: "A", DurationMinutes: 60}, {Title: "B", DurationMinutes: 14 * 60}},
		Preferences: prefs,
		WindowStart: at(0, 0, 0),
		WindowEnd:   at(1, 0, 0),
	})
	require.NoError(t, err)
	require.Len(t, res.Events, 2)

	assert.Equal(t, "B", res.Events[0].Title)
	assert.Equal(t, at(0, 8, 0), res.Events[0].Start)
	assert.True(t, res.Events[1].Unscheduled, "no waking time is left")
}

func TestScheduleNoOverlapAndConservation(t *testing.T) {
	busy := []Interval{
		span(0, 9, 0, 0, 12, 0),
		span(0, 14, 0, 0, 15, 30),
		span(1, 0, 0, 1, 8, 0),
		span(1, 18, 0, 1, 20, 0),
	}
	reqs := []Request{
		{Index: 0, Title: "essay", DurationMinutes: 150, Split: true, SplitMinutes: 45, Priority: PriorityHigh},
		{Index: 1, Title: "gym", DurationMinutes: 60, Priority: PriorityLow},
		{Index: 2, Title: "reading", DurationMinutes: 240, Priority: PriorityMedium},
		{Index: 3, Title: "huge", DurationMinutes: 2000, Priority: PriorityMedium},
		{Index: 4, Title: "review", DurationMinutes: 100, Split: true, SplitMinutes: 30},
	}

	e := newTestEngine(Options{})
	res, err := e.Schedule(Input{
		Requests:    reqs,
		Busy:        busy,
		Preferences: rankedPrefs(t, map[string]int{"afternoon": 1, "evening": 2}),
		WindowStart: at(0, 8, 0),
		WindowEnd:   at(2, 0, 0),
	})
	require.NoError(t, err)

	placed := res.Placed()
	for i, a := range placed {
		ai, _ := a.Interval()
		assert.False(t, ai.Start.Before(at(0, 8, 0)))
		assert.False(t, ai.End.After(at(2, 0, 0)))
		for _, b := range busy {
			assert.False(t, ai.Overlaps(b), "%s overlaps busy %v", a.Title, b)
		}
		for _, other := range placed[i+1:] {
			bi, _ := other.Interval()
			assert.False(t, ai.Overlaps(bi), "%s overlaps %s", a.Title, other.Title)
		}
	}

	minutes := map[int]int{}
	for _, ev := range res.Events {
		minutes[ev.RequestIndex] += ev.Minutes()
	}
	for _, r := range reqs {
		assert.Equal(t, r.DurationMinutes, minutes[r.Index], r.Title)
	}

	var hugeUnscheduled bool
	for _, ev := range res.Unscheduled() {
		if ev.Title == "huge" {
			hugeUnscheduled = ev.RequestedMinutes == 2000
		}
	}
	assert.True(t, hugeUnscheduled)
}

func TestScheduleRandomizeIsSeeded(t *testing.T) {
	prefs := utc()
	prefs.Randomize = true
	in := Input{
		Requests: []Request{
			{Title: "a", DurationMinutes: 30},
			{Title: "b", DurationMinutes: 45},
			{Title: "c", DurationMinutes: 60},
		},
		Busy:        []Interval{span(0, 10, 0, 0, 11, 0), span(0, 13, 0, 0, 14, 0), span(0, 16, 0, 0, 17, 0)},
		Preferences: prefs,
		WindowStart: at(0, 8, 0),
		WindowEnd:   at(0, 20, 0),
	}

	first, err := newTestEngine(Options{Rand: rand.New(rand.NewSource(42))}).Schedule(in)
	require.NoError(t, err)
	second, err := newTestEngine(Options{Rand: rand.New(rand.NewSource(42))}).Schedule(in)
	require.NoError(t, err)
	assert.Equal(t, first.Events, second.Events)
}

func TestScheduleWindowDefaults(t *testing.T) {
	now := at(0, 7, 30)
	e := newTestEngine(Options{Now: func() time.Time { return now }, Horizon: 2 * time.Hour})
	res, err := e.Schedule(Input{
		Requests:    []Request{{Title: "A", DurationMinutes: 60}},
		Preferences: utc(),
	})
	require.NoError(t, err)
	assert.Equal(t, now, res.WindowStart)
	assert.Equal(t, at(0, 9, 30), res.WindowEnd)
	assert.Equal(t, now, res.Events[0].Start)

	_, err = e.Schedule(Input{WindowStart: at(0, 9, 0), WindowEnd: at(0, 9, 0)})
	assert.Error(t, err)
}

func TestScheduleRawRejectsBeforePlacing(t *testing.T) {
	e := newTestEngine(Options{})
	res, err := e.ScheduleRaw(
		[]RawRequest{{Title: "fine", DurationMinutes: "30"}, {Title: "bad", DurationMinutes: "zero"}},
		nil, RawPreferences{Timezone: "UTC"}, at(0, 0, 0), at(1, 0, 0),
	)
	require.ErrorIs(t, err, ErrValidation)
	assert.Empty(t, res.Events)

	res, err = e.ScheduleRaw(
		[]RawRequest{{Title: "fine", DurationMinutes: "30", Priority: "High"}},
		[]Interval{span(0, 0, 0, 0, 1, 0)}, RawPreferences{Timezone: "UTC"}, at(0, 0, 0), at(1, 0, 0),
	)
	require.NoError(t, err)
	require.Len(t, res.Events, 1)
	assert.Equal(t, at(0, 1, 0), res.Events[0].Start)
	assert.Equal(t, PriorityHigh, res.Events[0].Priority)
}

func TestScheduleRejectsMalformedTypedRequest(t *testing.T) {
	e := newTestEngine(Options{})
	_, err := e.Schedule(Input{
		Requests:    []Request{{Title: "split", DurationMinutes: 60, Split: true}},
		Preferences: utc(),
		WindowStart: at(0, 0, 0),
		WindowEnd:   at(1, 0, 0),
	})
	assert.ErrorIs(t, err, ErrValidation)
}
