package scheduler

import (
	"sort"
	"time"
)

// Score weighs the candidate's overlap with each ranked band on the
// candidate's local start date. With total bands in the table the best band
// weighs total, the next one total-1, and so on, whether or not every band
// was ranked. The score is the sum of weight × overlap minutes.
func Score(c Interval, ranked []Band, total int, loc *time.Location) float64 {
	if loc == nil {
		loc = time.Local
	}
	d := DateOf(c.Start.In(loc))
	total = max(total, len(ranked))

	var score float64
	for i, band := range ranked {
		weight := float64(total - i)
		if ov, ok := c.Intersect(band.On(d, loc)); ok {
			score += weight * ov.Duration().Minutes()
		}
	}
	return score
}

// RankCandidates orders candidates by descending score, earliest start
// first on ties. The input slice is not modified.
func RankCandidates(cands []Candidate, ranked []Band, total int, loc *time.Location) []Candidate {
	type scored struct {
		c     Candidate
		score float64
	}
	list := make([]scored, len(cands))
	for i, c := range cands {
		list[i] = scored{c: c, score: Score(c.Interval, ranked, total, loc)}
	}
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].score != list[j].score {
			return list[i].score > list[j].score
		}
		return list[i].c.Start.Before(list[j].c.Start)
	})

	out := make([]Candidate, len(list))
	for i, s := range list {
		out[i] = s.c
	}
	return out
}

// SortChronological orders candidates by start in place.
func SortChronological(cands []Candidate) {
	sort.SliceStable(cands, func(i, j int) bool {
		return cands[i].Start.Before(cands[j].Start)
	})
}

// FindPreferredSubwindow looks for the first needed-long span of c that
// lies inside a ranked band. Dates are scanned in order and, within a date,
// bands best first; the first band/date whose intersection with c (clamped
// to wake/bed) is long enough wins.
func FindPreferredSubwindow(c Interval, needed time.Duration, prefs Preferences) (Interval, bool) {
	loc := prefs.location()
	last := DateOf(c.End.In(loc))
	for d := DateOf(c.Start.In(loc)); !d.After(last); d = d.AddDays(1) {
		clamp, clamped := prefs.DayClamp(d)
		for _, band := range prefs.Ranked {
			span := band.On(d, loc)
			if clamped {
				var ok bool
				if span, ok = span.Intersect(clamp); !ok {
					continue
				}
			}
			hit, ok := span.Intersect(c)
			if !ok {
				continue
			}
			if iv, ok := hit.Leading(needed); ok {
				return iv.UTC(), true
			}
		}
	}
	return Interval{}, false
}
