package stats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studycal/internal/model"
	"studycal/internal/scheduler"
)

func TestTimeByEventType(t *testing.T) {
	t0 := time.Date(2025, 12, 1, 9, 0, 0, 0, time.UTC)
	entries := []Entry{
		{EventType: "Class", Start: t0, End: t0.Add(90 * time.Minute)},
		{EventType: "Class", Start: t0.Add(2 * time.Hour), End: t0.Add(2*time.Hour + 20*time.Second)},
		{EventType: "", Start: t0, End: t0.Add(30 * time.Minute)},
		{EventType: "Work", Start: t0, End: t0.Add(-time.Hour)},
		{EventType: "Leisure", Start: t0, End: t0.Add(30 * time.Minute)},
	}

	assert.Equal(t, []TypeTotal{
		{EventType: "Class", Minutes: 90.3},
		{EventType: "Leisure", Minutes: 30},
		{EventType: "Other", Minutes: 30},
	}, TimeByEventType(entries))
	assert.Empty(t, TimeByEventType(nil))
}

func TestFromScheduledSkipsPlaceholders(t *testing.T) {
	t0 := time.Date(2025, 12, 1, 9, 0, 0, 0, time.UTC)
	entries := FromScheduled([]scheduler.ScheduledEvent{
		{Title: "a", EventType: "Study Session", Start: t0, End: t0.Add(time.Hour)},
		{Title: "b", Unscheduled: true, RequestedMinutes: 60},
	})
	require.Len(t, entries, 1)
	assert.Equal(t, "Study Session", entries[0].EventType)

	occ := FromOccurrences([]model.Occurrence{{EventType: model.EventTypeWork, Start: t0, End: t0.Add(time.Hour)}})
	assert.Equal(t, "Work", occ[0].EventType)
}

func TestMonthlyHeatmap(t *testing.T) {
	loc := time.UTC
	entries := []Entry{
		{Start: time.Date(2026, 2, 1, 9, 0, 0, 0, loc), End: time.Date(2026, 2, 1, 10, 0, 0, 0, loc)},
		{Start: time.Date(2026, 2, 1, 23, 0, 0, 0, loc), End: time.Date(2026, 2, 2, 1, 30, 0, 0, loc)},
		{Start: time.Date(2026, 3, 1, 9, 0, 0, 0, loc), End: time.Date(2026, 3, 1, 10, 0, 0, 0, loc)},
	}

	days := MonthlyHeatmap(entries, 2026, time.February, loc)
	require.Len(t, days, 28)
	assert.Equal(t, DayTotal{Date: "2026-02-01", Minutes: 120}, days[0])
	assert.Equal(t, DayTotal{Date: "2026-02-02", Minutes: 90}, days[1])
	assert.Equal(t, DayTotal{Date: "2026-02-28", Minutes: 0}, days[27])
}
