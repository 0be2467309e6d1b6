package stats

import (
	"math"
	"sort"
	"time"

	"studycal/internal/model"
	"studycal/internal/scheduler"
)

// Entry is one timed block counted by the aggregations.
type Entry struct {
	EventType string
	Start     time.Time
	End       time.Time
}

// FromScheduled keeps the placed rows of a schedule.
func FromScheduled(events []scheduler.ScheduledEvent) []Entry {
	out := make([]Entry, 0, len(events))
	for _, ev := range events {
		if ev.Unscheduled {
			continue
		}
		out = append(out, Entry{EventType: ev.EventType, Start: ev.Start, End: ev.End})
	}
	return out
}

func FromOccurrences(occs []model.Occurrence) []Entry {
	out := make([]Entry, 0, len(occs))
	for _, o := range occs {
		out = append(out, Entry{EventType: string(o.EventType), Start: o.Start, End: o.End})
	}
	return out
}

// TypeTotal is the time spent on one event type.
type TypeTotal struct {
	EventType string  `json:"event_type" yaml:"event_type"`
	Minutes   float64 `json:"minutes" yaml:"minutes"`
}

// TimeByEventType sums minutes per event type, most time first. Entries
// without a type count as Other; non-positive spans are ignored. Minutes
// are rounded to one decimal.
func TimeByEventType(entries []Entry) []TypeTotal {
	totals := map[string]float64{}
	for _, e := range entries {
		d := e.End.Sub(e.Start)
		if d <= 0 {
			continue
		}
		kind := e.EventType
		if kind == "" {
			kind = string(model.EventTypeOther)
		}
		totals[kind] += d.Minutes()
	}

	out := make([]TypeTotal, 0, len(totals))
	for kind, m := range totals {
		out = append(out, TypeTotal{EventType: kind, Minutes: round1(m)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Minutes != out[j].Minutes {
			return out[i].Minutes > out[j].Minutes
		}
		return out[i].EventType < out[j].EventType
	})
	return out
}

// DayTotal is the busy time of one local calendar day.
type DayTotal struct {
	Date    string  `json:"date" yaml:"date"`
	Minutes float64 `json:"minutes" yaml:"minutes"`
}

// MonthlyHeatmap returns one row per day of the month in loc, with the
// minutes of every entry falling on that day. Entries spanning midnight
// are split between the days they touch.
func MonthlyHeatmap(entries []Entry, year int, month time.Month, loc *time.Location) []DayTotal {
	if loc == nil {
		loc = time.Local
	}
	first := scheduler.Date{Year: year, Month: month, Day: 1}
	days := first.AddDays(32)
	days = scheduler.Date{Year: days.Year, Month: days.Month, Day: 1}

	var out []DayTotal
	for d := first; d.Before(days); d = d.AddDays(1) {
		day := scheduler.Interval{Start: d.Midnight(loc), End: d.AddDays(1).Midnight(loc)}
		var minutes float64
		for _, e := range entries {
			if ov, ok := day.Intersect(scheduler.Interval{Start: e.Start, End: e.End}); ok {
				minutes += ov.Duration().Minutes()
			}
		}
		out = append(out, DayTotal{Date: d.String(), Minutes: round1(minutes)})
	}
	return out
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
