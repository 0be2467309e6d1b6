package scheduler

import (
	"sort"
	"time"
)

// DefaultMergeTolerance is the largest gap between two busy intervals that
// Merge still treats as contiguous. It absorbs sub-second boundary noise in
// imported calendar data.
const DefaultMergeTolerance = time.Second

// Interval is a half-open span [Start, End) of absolute time.
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func NewInterval(start, end time.Time) Interval {
	return Interval{Start: start, End: end}
}

func (iv Interval) Duration() time.Duration {
	return iv.End.Sub(iv.Start)
}

// Valid reports whether End is strictly after Start.
func (iv Interval) Valid() bool {
	return iv.End.After(iv.Start)
}

// Overlaps reports whether the two intervals share any instant.
// Touching intervals do not overlap.
func (iv Interval) Overlaps(o Interval) bool {
	return iv.Start.Before(o.End) && o.Start.Before(iv.End)
}

// Intersect returns the common part of both intervals. ok is false when
// the result would be empty.
func (iv Interval) Intersect(o Interval) (Interval, bool) {
	s := laterOf(iv.Start, o.Start)
	e := earlierOf(iv.End, o.End)
	if !s.Before(e) {
		return Interval{}, false
	}
	return Interval{Start: s, End: e}, true
}

// Contains reports whether o lies completely inside iv.
func (iv Interval) Contains(o Interval) bool {
	return !o.Start.Before(iv.Start) && !o.End.After(iv.End)
}

// Leading returns the first d-long part of iv, if iv is long enough and d
// is positive.
func (iv Interval) Leading(d time.Duration) (Interval, bool) {
	if d <= 0 || iv.Duration() < d {
		return Interval{}, false
	}
	return Interval{Start: iv.Start, End: iv.Start.Add(d)}, true
}

func (iv Interval) UTC() Interval {
	return Interval{Start: iv.Start.UTC(), End: iv.End.UTC()}
}

// Merge sorts intervals by start and folds every pair whose gap is at most
// tolerance into one. The input slice is not modified.
func Merge(intervals []Interval, tolerance time.Duration) []Interval {
	if len(intervals) == 0 {
		return []Interval{}
	}

	sorted := make([]Interval, len(intervals))
	copy(sorted, intervals)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Start.Before(sorted[j].Start)
	})

	merged := make([]Interval, 0, len(sorted))
	cur := sorted[0]
	for _, iv := range sorted[1:] {
		if !iv.Start.After(cur.End.Add(tolerance)) {
			cur.End = laterOf(cur.End, iv.End)
			continue
		}
		merged = append(merged, cur)
		cur = iv
	}
	merged = append(merged, cur)
	return merged
}

// Invert returns the free parts of [windowStart, windowEnd) not covered by
// busy. busy must already be merged; busy intervals partially outside the
// window are clipped and those wholly outside are ignored.
func Invert(busy []Interval, windowStart, windowEnd time.Time) []Interval {
	free := make([]Interval, 0, len(busy)+1)
	if !windowStart.Before(windowEnd) {
		return free
	}

	cur := windowStart
	for _, b := range busy {
		if !b.End.After(windowStart) || !b.Start.Before(windowEnd) {
			continue
		}
		s := laterOf(b.Start, windowStart)
		e := earlierOf(b.End, windowEnd)
		if s.After(cur) {
			free = append(free, Interval{Start: cur, End: s})
		}
		cur = laterOf(cur, e)
	}
	if cur.Before(windowEnd) {
		free = append(free, Interval{Start: cur, End: windowEnd})
	}
	return free
}

func laterOf(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func earlierOf(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
