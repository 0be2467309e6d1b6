package scheduler

import "time"

// Candidate is a free span restricted by one request's date and
// time-of-day constraints. Date is the local calendar day it was built for.
type Candidate struct {
	Interval
	Date Date
}

// GenerateCandidates walks the request's date range one local day at a
// time and emits, per day, the request's allowed clock span clamped to the
// wake/bed window and intersected with free. Blackout days are not
// filtered here.
func GenerateCandidates(req Request, free Interval, prefs Preferences) []Candidate {
	loc := prefs.location()

	// A span may start on the previous day when it rolls past midnight, so
	// the walk begins one day before the free interval.
	reach := DateOf(free.Start.In(loc)).AddDays(-1)
	limit := DateOf(free.End.In(loc))

	first, last := reach, limit
	if req.DateStart != nil && req.DateStart.After(first) {
		first = *req.DateStart
	}
	if req.DateEnd != nil && req.DateEnd.Before(last) {
		last = *req.DateEnd
	}

	from := Clock{}
	to := Clock{Hour: 24}
	if req.TimeStart != nil {
		from = *req.TimeStart
	}
	if req.TimeEnd != nil {
		to = *req.TimeEnd
	}

	var out []Candidate
	for d := first; !d.After(last); d = d.AddDays(1) {
		span := dailySpan(d, from, to, loc)
		if clamp, ok := prefs.DayClamp(d); ok {
			var hit bool
			if span, hit = span.Intersect(clamp); !hit {
				continue
			}
		}
		slot, ok := span.Intersect(free)
		if !ok {
			continue
		}
		out = append(out, Candidate{Interval: slot.UTC(), Date: d})
	}
	return out
}

// generateAll builds candidates over every free slot.
func generateAll(req Request, free []Interval, prefs Preferences) []Candidate {
	var out []Candidate
	for _, f := range free {
		out = append(out, GenerateCandidates(req, f, prefs)...)
	}
	return out
}

// withoutBlackout drops candidates built for blackout days and cuts spans
// that roll past midnight at the start of a blackout day.
func withoutBlackout(cands []Candidate, prefs Preferences) []Candidate {
	if len(prefs.Blackout) == 0 {
		return cands
	}
	kept := cands[:0:0]
	for _, c := range cands {
		if prefs.IsBlackout(c.Date) {
			continue
		}
		iv, ok := clipBlackout(c.Interval, c.Date, prefs)
		if !ok {
			continue
		}
		c.Interval = iv
		kept = append(kept, c)
	}
	return kept
}

// clipBlackout ends iv at the first blackout midnight after day d. ok is
// false when nothing is left.
func clipBlackout(iv Interval, d Date, prefs Preferences) (Interval, bool) {
	loc := prefs.location()
	last := DateOf(iv.End.Add(-time.Nanosecond).In(loc))
	for next := d.AddDays(1); !next.After(last); next = next.AddDays(1) {
		if prefs.IsBlackout(next) {
			iv.End = earlierOf(iv.End, next.Midnight(loc).UTC())
			break
		}
	}
	return iv, iv.Valid()
}

// dayWindow is [midnight of first, midnight after last) in loc.
func dayWindow(first, last Date, loc *time.Location) (time.Time, time.Time) {
	return first.Midnight(loc), last.AddDays(1).Midnight(loc)
}
