package scheduler

import "time"

// ScheduledEvent is one result row of a run: either a placed block with a
// start and end, or an unscheduled placeholder carrying the minutes that
// could not be placed.
type ScheduledEvent struct {
	UID         string
	Title       string
	Description string
	EventType   string
	Priority    Priority

	Start time.Time
	End   time.Time

	Unscheduled      bool
	RequestedMinutes int

	// Recurrence marks weekly repeats of a placed block; OccurrenceDate is
	// the local date the repeat was meant for.
	Recurrence     bool
	OccurrenceDate *Date

	// RequestIndex and Chunk tie the row back to its request and chunk.
	RequestIndex int
	Chunk        int
}

// Interval returns the placed span; ok is false for placeholders.
func (e ScheduledEvent) Interval() (Interval, bool) {
	if e.Unscheduled {
		return Interval{}, false
	}
	return Interval{Start: e.Start, End: e.End}, true
}

// Minutes is the placed or requested length of the row.
func (e ScheduledEvent) Minutes() int {
	if e.Unscheduled {
		return e.RequestedMinutes
	}
	return int(e.End.Sub(e.Start) / time.Minute)
}

// Record is the plain, serializable shape of a ScheduledEvent, with
// RFC 3339 UTC instants.
type Record struct {
	UID              string `json:"uid" yaml:"uid"`
	Title            string `json:"title" yaml:"title"`
	Description      string `json:"description" yaml:"description"`
	Start            string `json:"start,omitempty" yaml:"start,omitempty"`
	End              string `json:"end,omitempty" yaml:"end,omitempty"`
	EventType        string `json:"event_type" yaml:"event_type"`
	Priority         string `json:"priority" yaml:"priority"`
	Unscheduled      bool   `json:"unscheduled,omitempty" yaml:"unscheduled,omitempty"`
	RequestedMinutes int    `json:"requested_minutes,omitempty" yaml:"requested_minutes,omitempty"`
	Recurrence       bool   `json:"recurrence,omitempty" yaml:"recurrence,omitempty"`
	OccurrenceDate   string `json:"occurrence_date,omitempty" yaml:"occurrence_date,omitempty"`
}

func (e ScheduledEvent) Record() Record {
	r := Record{
		UID:         e.UID,
		Title:       e.Title,
		Description: e.Description,
		EventType:   e.EventType,
		Priority:    string(e.Priority),
		Unscheduled: e.Unscheduled,
		Recurrence:  e.Recurrence,
	}
	if e.Unscheduled {
		r.RequestedMinutes = e.RequestedMinutes
	} else {
		r.Start = e.Start.UTC().Format(time.RFC3339)
		r.End = e.End.UTC().Format(time.RFC3339)
	}
	if e.OccurrenceDate != nil {
		r.OccurrenceDate = e.OccurrenceDate.String()
	}
	return r
}

// Records converts a result list in order.
func Records(events []ScheduledEvent) []Record {
	out := make([]Record, len(events))
	for i, e := range events {
		out[i] = e.Record()
	}
	return out
}
