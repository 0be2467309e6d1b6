package scheduler

import (
	"errors"
	"strings"
	"time"

	appLog "studycal/internal/log"
)

// RawBusyEvent is an existing commitment as handed over by an importer.
// Start and End are ISO-8601 instants or naive local timestamps.
type RawBusyEvent struct {
	Name  string `json:"name" yaml:"name"`
	Start string `json:"start" yaml:"start"`
	End   string `json:"end" yaml:"end"`
}

var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// ParseInstant parses an RFC 3339 instant, or a timestamp without offset
// interpreted in loc. The result is in UTC.
func ParseInstant(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.New("empty timestamp")
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	if loc == nil {
		loc = time.Local
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, errors.New("unrecognized timestamp " + s)
}

// BusyFromEvents converts imported events into merged busy intervals.
// Rows with missing or unparsable bounds, or with End <= Start, are
// skipped and logged.
func BusyFromEvents(events []RawBusyEvent, loc *time.Location, tolerance time.Duration) []Interval {
	busy := make([]Interval, 0, len(events))
	for _, ev := range events {
		s, serr := ParseInstant(ev.Start, loc)
		e, eerr := ParseInstant(ev.End, loc)
		if serr != nil || eerr != nil || !e.After(s) {
			appLog.Warn("skipping imported event with unusable bounds",
				"name", ev.Name, "start", ev.Start, "end", ev.End)
			continue
		}
		busy = append(busy, Interval{Start: s, End: e})
	}
	appLog.Debug("busy intervals imported", "events_in", len(events), "intervals", len(busy))
	return Merge(busy, tolerance)
}
