package ics

import (
	"errors"
	"sort"
	"time"

	"github.com/teambition/rrule-go"

	appLog "studycal/internal/log"
	"studycal/internal/model"
)

const defaultMaxOccurrencesPerEvent = 5000

// ExpandConfig bounds recurrence expansion.
type ExpandConfig struct {
	// Location is the zone occurrences are reported in. Nil means time.Local.
	Location *time.Location

	// RangeStart / RangeEnd select occurrences that overlap the range.
	RangeStart time.Time
	RangeEnd   time.Time

	// MaxOccurrencesPerEvent caps expansion of a single RRULE.
	MaxOccurrencesPerEvent int
}

type ExpandResult struct {
	Occurrences []model.Occurrence
	// Truncated lists UIDs whose expansion hit MaxOccurrencesPerEvent.
	Truncated []string
}

// ExpandOccurrences turns parsed events into concrete, categorized
// occurrences inside the configured range, applying RRULE, EXDATE and
// RECURRENCE-ID overrides. The result is ordered by start time.
func ExpandOccurrences(events []ParsedEvent, cfg ExpandConfig) (ExpandResult, error) {
	var result ExpandResult
	if cfg.RangeEnd.Before(cfg.RangeStart) {
		return result, errors.New("expand: range end is before range start")
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.MaxOccurrencesPerEvent <= 0 {
		cfg.MaxOccurrencesPerEvent = defaultMaxOccurrencesPerEvent
	}

	bases := make(map[string][]ParsedEvent)
	overrides := make(map[string][]ParsedEvent)
	var uids []string
	for _, ev := range events {
		if ev.IsOverride() {
			overrides[ev.UID] = append(overrides[ev.UID], ev)
			continue
		}
		if _, seen := bases[ev.UID]; !seen {
			uids = append(uids, ev.UID)
		}
		bases[ev.UID] = append(bases[ev.UID], ev)
	}

	occs := make([]model.Occurrence, 0, len(events))
	for _, uid := range uids {
		for _, ev := range bases[uid] {
			var (
				got    []model.Occurrence
				capped bool
			)
			if ev.Recurring() {
				got, capped = expandRecurring(ev, overrides[uid], cfg)
			} else {
				got = expandSingle(ev, overrides[uid], cfg)
			}
			occs = append(occs, got...)
			if capped {
				result.Truncated = append(result.Truncated, uid)
				appLog.Warn("recurrence expansion truncated", "uid", uid, "cap", cfg.MaxOccurrencesPerEvent)
			}
		}
	}

	sort.SliceStable(occs, func(i, j int) bool {
		if !occs[i].Start.Equal(occs[j].Start) {
			return occs[i].Start.Before(occs[j].Start)
		}
		return occs[i].UID < occs[j].UID
	})
	result.Occurrences = occs

	appLog.Debug("calendar expanded", "events", len(events), "occurrences", len(occs))
	return result, nil
}

func expandSingle(ev ParsedEvent, overrides []ParsedEvent, cfg ExpandConfig) []model.Occurrence {
	if o, ok := overrideFor(overrides, ev.Start); ok {
		ev = o
	}
	if !overlapsRange(ev.Start, ev.End, cfg) {
		return nil
	}
	return []model.Occurrence{occurrenceOf(ev, ev.Start, ev.End, false, cfg.Location)}
}

func expandRecurring(ev ParsedEvent, overrides []ParsedEvent, cfg ExpandConfig) ([]model.Occurrence, bool) {
	r, err := rrule.StrToRRule(ev.RawRRule)
	if err != nil {
		appLog.Error("unreadable RRULE; event skipped", err, "uid", ev.UID, "rrule", ev.RawRRule)
		return nil, false
	}
	r.DTStart(ev.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(ev.Start.Location()))
	}

	length := ev.End.Sub(ev.Start)
	// Instances starting before the range can still run into it.
	from := cfg.RangeStart.Add(-length).In(ev.Start.Location())
	to := cfg.RangeEnd.In(ev.Start.Location())
	starts := set.Between(from, to, true)

	capped := false
	if len(starts) > cfg.MaxOccurrencesPerEvent {
		starts = starts[:cfg.MaxOccurrencesPerEvent]
		capped = true
	}

	out := make([]model.Occurrence, 0, len(starts))
	for _, s := range starts {
		e := s.Add(length)
		if ev.AllDay {
			s = time.Date(s.Year(), s.Month(), s.Day(), 0, 0, 0, 0, s.Location())
			e = s.AddDate(0, 0, max(1, int(length/(24*time.Hour))))
		}

		inst := ev
		if o, ok := overrideFor(overrides, s); ok {
			inst, s, e = o, o.Start, o.End
		}
		if !overlapsRange(s, e, cfg) {
			continue
		}
		out = append(out, occurrenceOf(inst, s, e, true, cfg.Location))
	}
	return out, capped
}

// overrideFor returns the override whose RECURRENCE-ID equals start.
func overrideFor(overrides []ParsedEvent, start time.Time) (ParsedEvent, bool) {
	for _, o := range overrides {
		if o.RecurrenceID != nil && o.RecurrenceID.Equal(start) {
			return o, true
		}
	}
	return ParsedEvent{}, false
}

func overlapsRange(start, end time.Time, cfg ExpandConfig) bool {
	if !end.After(start) {
		end = start
	}
	return start.Before(cfg.RangeEnd) && end.After(cfg.RangeStart)
}

func occurrenceOf(ev ParsedEvent, start, end time.Time, recurring bool, loc *time.Location) model.Occurrence {
	occ := model.Occurrence{
		SourceID:    ev.Source.ID,
		UID:         ev.UID,
		Summary:     ev.Summary,
		Description: ev.Description,
		Location:    ev.Location,
		AllDay:      ev.AllDay,
		Recurring:   recurring,
		Start:       start.In(loc),
		End:         end.In(loc),
	}
	occ.InstanceKey = occ.Start.Format(time.RFC3339Nano)
	occ.EventType = Categorize(occ, ev.Categories)
	return occ
}
