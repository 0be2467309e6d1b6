package scheduler

import "time"

// BusySet is the working collection of busy intervals owned by one
// scheduling run. It is a value: With returns a new set and leaves the
// receiver untouched, so every placement step takes a set and hands back
// its successor. Entries are always merged.
type BusySet struct {
	intervals []Interval
	tolerance time.Duration
	version   int
}

// NewBusySet merges intervals into a fresh set at version 0. Invalid
// intervals (End <= Start) are dropped.
func NewBusySet(intervals []Interval, tolerance time.Duration) BusySet {
	valid := make([]Interval, 0, len(intervals))
	for _, iv := range intervals {
		if iv.Valid() {
			valid = append(valid, iv.UTC())
		}
	}
	return BusySet{
		intervals: Merge(valid, tolerance),
		tolerance: tolerance,
	}
}

// With returns a successor set containing iv, re-merged, one version later.
func (b BusySet) With(iv Interval) BusySet {
	next := make([]Interval, len(b.intervals), len(b.intervals)+1)
	copy(next, b.intervals)
	next = append(next, iv.UTC())
	return BusySet{
		intervals: Merge(next, b.tolerance),
		tolerance: b.tolerance,
		version:   b.version + 1,
	}
}

// Free returns the gaps of the set inside [start, end).
func (b BusySet) Free(start, end time.Time) []Interval {
	return Invert(b.intervals, start, end)
}

// Conflicts reports whether iv overlaps any busy interval.
func (b BusySet) Conflicts(iv Interval) bool {
	for _, busy := range b.intervals {
		if busy.Start.After(iv.End) {
			return false
		}
		if busy.Overlaps(iv) {
			return true
		}
	}
	return false
}

// Intervals returns a copy of the merged busy intervals.
func (b BusySet) Intervals() []Interval {
	out := make([]Interval, len(b.intervals))
	copy(out, b.intervals)
	return out
}

func (b BusySet) Len() int { return len(b.intervals) }

// Version counts the insertions made since the set was created.
func (b BusySet) Version() int { return b.version }
