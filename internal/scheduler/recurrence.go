package scheduler

import (
	"time"

	"github.com/teambition/rrule-go"

	appLog "studycal/internal/log"
)

// occurrence is one weekly repeat of a placed block.
type occurrence struct {
	req    Request
	chunk  int
	date   Date
	base   Interval
	needed time.Duration
}

// recurrenceStrategy tries to place an occurrence against busy. It has no
// side effects; the caller commits the interval it returns.
type recurrenceStrategy struct {
	name string
	try  func(e *Engine, occ occurrence, busy BusySet, prefs Preferences) (Interval, bool)
}

// recurrenceLadder is tried in order; the first success wins.
var recurrenceLadder = []recurrenceStrategy{
	{name: "same_clock_time", try: sameClockTime},
	{name: "same_day", try: sameDay},
	{name: "nearby_days", try: nearbyDays},
}

// recur places the weekly repeats of a block placed at base, up to the
// request's recurring_until date. Every repeat either lands in the
// returned busy set or comes back as a placeholder.
func (e *Engine) recur(req Request, chunk int, base Interval, busy BusySet, prefs Preferences) (BusySet, []ScheduledEvent) {
	loc := prefs.location()
	baseDate := DateOf(base.Start.In(loc))
	dates := weeklyDates(baseDate, *req.RecurringUntil, e.opts.MaxOccurrences)

	events := make([]ScheduledEvent, 0, len(dates))
	for _, d := range dates {
		occ := occurrence{req: req, chunk: chunk, date: d, base: base, needed: base.Duration()}
		iv, step, ok := placeOccurrence(e, occ, busy, prefs)
		if !ok {
			appLog.Warn("recurring occurrence unscheduled",
				"title", req.Title, "chunk", chunk, "date", d.String())
			date := d
			events = append(events, e.placeholder(req, chunk, int(occ.needed/time.Minute), &date))
			continue
		}
		busy = busy.With(iv)
		ev := e.placed(req, chunk, iv, true)
		date := d
		ev.OccurrenceDate = &date
		events = append(events, ev)
		appLog.Debug("recurring occurrence placed",
			"title", req.Title, "date", d.String(), "strategy", step,
			"start", iv.Start.Format(time.RFC3339))
	}
	return busy, events
}

// placeOccurrence walks the strategy ladder.
func placeOccurrence(e *Engine, occ occurrence, busy BusySet, prefs Preferences) (Interval, string, bool) {
	for _, s := range recurrenceLadder {
		if iv, ok := s.try(e, occ, busy, prefs); ok {
			return iv, s.name, true
		}
	}
	return Interval{}, "", false
}

// sameClockTime keeps the base block's local start time on the new date.
func sameClockTime(_ *Engine, occ occurrence, busy BusySet, prefs Preferences) (Interval, bool) {
	if prefs.IsBlackout(occ.date) {
		return Interval{}, false
	}
	loc := prefs.location()
	local := occ.base.Start.In(loc)
	start := time.Date(occ.date.Year, occ.date.Month, occ.date.Day,
		local.Hour(), local.Minute(), local.Second(), local.Nanosecond(), loc)
	iv := Interval{Start: start.UTC(), End: start.Add(occ.needed).UTC()}
	if clipped, ok := clipBlackout(iv, occ.date, prefs); !ok || !clipped.End.Equal(iv.End) {
		return Interval{}, false
	}
	if busy.Conflicts(iv) {
		return Interval{}, false
	}
	return iv, true
}

// sameDay searches anywhere on the occurrence's local calendar day.
func sameDay(e *Engine, occ occurrence, busy BusySet, prefs Preferences) (Interval, bool) {
	return e.searchDays(occ, occ.date, occ.date, busy, prefs)
}

// nearbyDays searches the days within the spread around the occurrence.
func nearbyDays(e *Engine, occ occurrence, busy BusySet, prefs Preferences) (Interval, bool) {
	spread := e.opts.RecurrenceSpreadDays
	return e.searchDays(occ, occ.date.AddDays(-spread), occ.date.AddDays(spread), busy, prefs)
}

func (e *Engine) searchDays(occ occurrence, first, last Date, busy BusySet, prefs Preferences) (Interval, bool) {
	req := occ.req
	req.DateStart = &first
	req.DateEnd = &last
	ws, we := dayWindow(first, last, prefs.location())
	return e.search(req, int(occ.needed/time.Minute), busy, prefs, ws.UTC(), we.UTC())
}

// weeklyDates lists the dates one, two, ... weeks after base up to and
// including until.
func weeklyDates(base, until Date, limit int) []Date {
	if until.Before(base) {
		return nil
	}
	r, err := rrule.NewRRule(rrule.ROption{
		Freq:    rrule.WEEKLY,
		Dtstart: time.Date(base.Year, base.Month, base.Day, 12, 0, 0, 0, time.UTC),
		Until:   time.Date(until.Year, until.Month, until.Day, 12, 0, 0, 0, time.UTC),
		Count:   limit + 1,
	})
	if err != nil {
		appLog.Error("weekly recurrence rule rejected", err, "base", base.String(), "until", until.String())
		return nil
	}

	all := r.All()
	out := make([]Date, 0, len(all))
	for _, t := range all {
		d := DateOf(t)
		if d == base {
			continue
		}
		out = append(out, d)
	}
	return out
}
