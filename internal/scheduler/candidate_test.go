package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clockPtr(h, m int) *Clock { return &Clock{Hour: h, Minute: m} }

func dateAt(offset int) Date { return DateOf(at(offset, 12, 0)) }

func TestGenerateCandidatesTimeOfDay(t *testing.T) {
	prefs := DefaultPreferences(time.UTC)
	req := Request{Title: "lab", DurationMinutes: 60, TimeStart: clockPtr(8, 0), TimeEnd: clockPtr(9, 0)}

	cands := GenerateCandidates(req, span(0, 0, 0, 3, 0, 0), prefs)
	require.Len(t, cands, 3)
	for i, c := range cands {
		assert.Equal(t, span(i, 8, 0, i, 9, 0), c.Interval)
		assert.Equal(t, dateAt(i), c.Date)
	}
}

func TestGenerateCandidatesDateRange(t *testing.T) {
	prefs := DefaultPreferences(time.UTC)
	first, last := dateAt(1), dateAt(2)
	req := Request{Title: "review", DurationMinutes: 30, DateStart: &first, DateEnd: &last}

	cands := GenerateCandidates(req, span(0, 6, 0, 5, 0, 0), prefs)
	require.Len(t, cands, 2)
	assert.Equal(t, span(1, 0, 0, 2, 0, 0), cands[0].Interval)
	assert.Equal(t, span(2, 0, 0, 3, 0, 0), cands[1].Interval)
}

func TestGenerateCandidatesMidnightRollover(t *testing.T) {
	prefs := DefaultPreferences(time.UTC)
	req := Request{Title: "night", DurationMinutes: 60, TimeStart: clockPtr(22, 0), TimeEnd: clockPtr(2, 0)}

	// The free slot begins after midnight; the previous evening's span
	// still reaches into it.
	cands := GenerateCandidates(req, span(1, 0, 0, 1, 23, 0), prefs)
	require.Len(t, cands, 2)
	assert.Equal(t, span(1, 0, 0, 1, 2, 0), cands[0].Interval)
	assert.Equal(t, dateAt(0), cands[0].Date)
	assert.Equal(t, span(1, 22, 0, 1, 23, 0), cands[1].Interval)
}

func TestGenerateCandidatesWakeBed(t *testing.T) {
	prefs := DefaultPreferences(time.UTC)
	prefs.Wake = clockPtr(8, 0)
	prefs.Bed = clockPtr(22, 0)
	req := Request{Title: "gym", DurationMinutes: 60}

	cands := GenerateCandidates(req, span(0, 0, 0, 1, 0, 0), prefs)
	require.Len(t, cands, 1)
	assert.Equal(t, span(0, 8, 0, 0, 22, 0), cands[0].Interval)

	// Requested span outside waking hours yields nothing.
	req.TimeStart = clockPtr(23, 0)
	req.TimeEnd = clockPtr(23, 30)
	assert.Empty(t, GenerateCandidates(req, span(0, 0, 0, 1, 0, 0), prefs))
}

func TestWithoutBlackout(t *testing.T) {
	prefs := DefaultPreferences(time.UTC)
	prefs.Blackout[time.Monday] = true

	cands := []Candidate{
		{Interval: span(0, 9, 0, 0, 10, 0), Date: dateAt(0)},
		{Interval: span(1, 9, 0, 1, 10, 0), Date: dateAt(1)},
	}
	kept := withoutBlackout(cands, prefs)
	require.Len(t, kept, 1)
	assert.Equal(t, dateAt(1), kept[0].Date)
	assert.Len(t, cands, 2, "input is not modified")
}

func TestWithoutBlackoutClipsRollover(t *testing.T) {
	prefs := DefaultPreferences(time.UTC)
	prefs.Blackout[time.Monday] = true

	cands := []Candidate{
		// Sunday 22:00 to Monday 02:00.
		{Interval: span(-1, 22, 0, 0, 2, 0), Date: dateAt(-1)},
		// Sunday's span, but only the part after midnight is free.
		{Interval: span(0, 0, 0, 0, 2, 0), Date: dateAt(-1)},
		// Monday 22:00 to Tuesday 02:00.
		{Interval: span(0, 22, 0, 1, 2, 0), Date: dateAt(0)},
		// Tuesday 22:00 to Wednesday 02:00.
		{Interval: span(1, 22, 0, 2, 2, 0), Date: dateAt(1)},
	}
	kept := withoutBlackout(cands, prefs)
	require.Len(t, kept, 2)
	assert.Equal(t, span(-1, 22, 0, 0, 0, 0), kept[0].Interval)
	assert.Equal(t, span(1, 22, 0, 2, 2, 0), kept[1].Interval)
}
