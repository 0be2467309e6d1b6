package ics

import (
	"io"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "studycal/internal/log"
	"studycal/internal/model"
	"studycal/internal/scheduler"
)

const (
	productID = "-//studycal//Study Planner//EN"

	propPriority  = ical.ComponentProperty("X-STUDYCAL-PRIORITY")
	propScheduled = ical.ComponentProperty("X-STUDYCAL-SCHEDULED")
)

// ExportOptions names the calendar and stamps its events.
type ExportOptions struct {
	Name string
	// Now is written as DTSTAMP; zero means time.Now.
	Now time.Time
}

// Export writes imported occurrences and placed schedule rows as one
// VCALENDAR. Unscheduled rows have no time span and are left out.
func Export(w io.Writer, imported []model.Occurrence, scheduled []scheduler.ScheduledEvent, opts ExportOptions) error {
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	cal := ical.NewCalendar()
	cal.SetProductId(productID)
	cal.SetMethod(ical.MethodPublish)
	if opts.Name != "" {
		cal.SetName(opts.Name)
		cal.SetXWRCalName(opts.Name)
	}

	for _, occ := range imported {
		ev := cal.AddEvent(occ.UID + "/" + occ.InstanceKey)
		ev.SetDtStampTime(now)
		ev.SetSummary(occ.Summary)
		if occ.AllDay {
			ev.SetAllDayStartAt(occ.Start)
			ev.SetAllDayEndAt(occ.End)
		} else {
			ev.SetStartAt(occ.Start)
			ev.SetEndAt(occ.End)
		}
		if occ.Description != "" {
			ev.SetDescription(occ.Description)
		}
		if occ.Location != "" {
			ev.SetLocation(occ.Location)
		}
		if occ.EventType != "" {
			ev.AddCategory(string(occ.EventType))
		}
	}

	skipped := 0
	for _, se := range scheduled {
		if se.Unscheduled {
			skipped++
			continue
		}
		ev := cal.AddEvent(se.UID)
		ev.SetDtStampTime(now)
		ev.SetSummary(se.Title)
		ev.SetStartAt(se.Start)
		ev.SetEndAt(se.End)
		if se.Description != "" {
			ev.SetDescription(se.Description)
		}
		if se.EventType != "" {
			ev.AddCategory(se.EventType)
		}
		ev.SetProperty(propPriority, string(se.Priority))
		ev.SetProperty(propScheduled, "TRUE")
	}

	appLog.Debug("calendar exported",
		"imported", len(imported), "scheduled", len(scheduled)-skipped, "skipped_unscheduled", skipped)
	return cal.SerializeTo(w)
}
