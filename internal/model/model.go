package model

import "time"

// EventType is the category label attached to imported and scheduled
// events. Request payloads may carry any free-form label; these are the
// ones the importer assigns.
type EventType string

const (
	EventTypeClass   EventType = "Class"
	EventTypeStudy   EventType = "Study Session"
	EventTypeLeisure EventType = "Leisure"
	EventTypeWork    EventType = "Work"
	EventTypeOther   EventType = "Other"
)

// EventTypes lists the importer labels in display order.
var EventTypes = []EventType{EventTypeClass, EventTypeStudy, EventTypeLeisure, EventTypeWork, EventTypeOther}

// Occurrence is a single concrete instance of an imported calendar event,
// after recurrence expansion. Imported occurrences are the busy time the
// scheduler plans around.
type Occurrence struct {
	SourceID string `json:"source_id"` // calendar source ID
	UID      string `json:"uid"`       // iCalendar UID

	// InstanceKey identifies one occurrence of a recurring event; it is
	// the local start time in RFC 3339.
	InstanceKey string `json:"instance_key"`

	Summary     string    `json:"summary"`
	Description string    `json:"description,omitempty"`
	Location    string    `json:"location,omitempty"`
	EventType   EventType `json:"event_type"`

	AllDay    bool `json:"all_day"`
	Recurring bool `json:"recurring"`

	// Start / End are in the configured display timezone.
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Duration returns End - Start, or zero for inverted rows.
func (o Occurrence) Duration() time.Duration {
	if !o.End.After(o.Start) {
		return 0
	}
	return o.End.Sub(o.Start)
}
