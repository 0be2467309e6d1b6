package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// at returns 2025-12-01 hh:mm UTC plus dayOffset days.
func at(dayOffset, hh, mm int) time.Time {
	return time.Date(2025, 12, 1+dayOffset, hh, mm, 0, 0, time.UTC)
}

func span(d1, h1, m1, d2, h2, m2 int) Interval {
	return Interval{Start: at(d1, h1, m1), End: at(d2, h2, m2)}
}

func TestMerge(t *testing.T) {
	tests := []struct {
		name string
		in   []Interval
		out  []Interval
	}{
		{name: "empty", in: nil, out: []Interval{}},
		{
			name: "disjoint unsorted",
			in:   []Interval{span(0, 13, 0, 0, 14, 0), span(0, 9, 0, 0, 10, 0)},
			out:  []Interval{span(0, 9, 0, 0, 10, 0), span(0, 13, 0, 0, 14, 0)},
		},
		{
			name: "overlapping",
			in:   []Interval{span(0, 9, 0, 0, 11, 0), span(0, 10, 0, 0, 12, 0)},
			out:  []Interval{span(0, 9, 0, 0, 12, 0)},
		},
		{
			name: "touching",
			in:   []Interval{span(0, 9, 0, 0, 10, 0), span(0, 10, 0, 0, 11, 0)},
			out:  []Interval{span(0, 9, 0, 0, 11, 0)},
		},
		{
			name: "contained",
			in:   []Interval{span(0, 8, 0, 0, 18, 0), span(0, 9, 0, 0, 10, 0)},
			out:  []Interval{span(0, 8, 0, 0, 18, 0)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.out, Merge(tt.in, DefaultMergeTolerance))
		})
	}
}

func TestMergeTolerance(t *testing.T) {
	a := span(0, 9, 0, 0, 10, 0)

	withinTolerance := Interval{Start: at(0, 10, 0).Add(500 * time.Millisecond), End: at(0, 11, 0)}
	merged := Merge([]Interval{a, withinTolerance}, DefaultMergeTolerance)
	require.Len(t, merged, 1)
	assert.Equal(t, at(0, 11, 0), merged[0].End)

	beyond := Interval{Start: at(0, 10, 0).Add(2 * time.Second), End: at(0, 11, 0)}
	assert.Len(t, Merge([]Interval{a, beyond}, DefaultMergeTolerance), 2)
	assert.Len(t, Merge([]Interval{a, beyond}, 5*time.Second), 1)
}

func TestMergeIdempotent(t *testing.T) {
	in := []Interval{
		span(0, 13, 0, 0, 15, 0),
		span(0, 9, 0, 0, 10, 0),
		span(0, 9, 30, 0, 9, 45),
		span(0, 14, 0, 0, 16, 0),
		span(1, 0, 0, 1, 1, 0),
		span(0, 23, 0, 1, 0, 0),
		span(0, 10, 0, 0, 10, 30),
	}
	once := Merge(in, DefaultMergeTolerance)
	assert.Equal(t, once, Merge(once, DefaultMergeTolerance))

	for i := 1; i < len(once); i++ {
		assert.True(t, once[i].Start.Sub(once[i-1].End) > DefaultMergeTolerance)
	}
}

func TestInvert(t *testing.T) {
	busy := Merge([]Interval{
		span(0, 6, 0, 0, 9, 0), // clipped at window start
		span(0, 12, 0, 0, 13, 0),
		span(0, 22, 0, 1, 2, 0), // clipped at window end
		span(2, 9, 0, 2, 10, 0), // outside
	}, DefaultMergeTolerance)

	free := Invert(busy, at(0, 8, 0), at(0, 23, 0))
	assert.Equal(t, []Interval{span(0, 9, 0, 0, 12, 0), span(0, 13, 0, 0, 22, 0)}, free)

	assert.Equal(t, []Interval{span(0, 8, 0, 0, 9, 0)}, Invert(nil, at(0, 8, 0), at(0, 9, 0)))
	assert.Empty(t, Invert(busy, at(0, 9, 0), at(0, 9, 0)))
	assert.Empty(t, Invert([]Interval{span(0, 0, 0, 1, 0, 0)}, at(0, 8, 0), at(0, 9, 0)))
}

func TestInvertAndBusyTileWindow(t *testing.T) {
	windowStart, windowEnd := at(0, 7, 0), at(1, 7, 0)
	busy := Merge([]Interval{
		span(0, 5, 0, 0, 8, 0),
		span(0, 10, 0, 0, 11, 30),
		span(0, 11, 0, 0, 12, 0),
		span(0, 20, 0, 0, 21, 0),
		span(1, 6, 0, 1, 9, 0),
	}, DefaultMergeTolerance)

	window := Interval{Start: windowStart, End: windowEnd}
	var tiles []Interval
	for _, b := range busy {
		if clipped, ok := b.Intersect(window); ok {
			tiles = append(tiles, clipped)
		}
	}
	tiles = append(tiles, Invert(busy, windowStart, windowEnd)...)
	tiles = Merge(tiles, 0)

	require.Len(t, tiles, 1)
	assert.Equal(t, window, tiles[0])

	var total time.Duration
	for _, b := range busy {
		if clipped, ok := b.Intersect(window); ok {
			total += clipped.Duration()
		}
	}
	for _, f := range Invert(busy, windowStart, windowEnd) {
		total += f.Duration()
	}
	assert.Equal(t, window.Duration(), total, "busy and free parts must not overlap")
}

func TestBusySetWith(t *testing.T) {
	base := NewBusySet([]Interval{span(0, 9, 0, 0, 10, 0), {Start: at(0, 12, 0), End: at(0, 11, 0)}}, DefaultMergeTolerance)
	require.Equal(t, 1, base.Len(), "invalid intervals are dropped")
	assert.Equal(t, 0, base.Version())

	next := base.With(span(0, 10, 0, 0, 11, 0))
	assert.Equal(t, 1, next.Version())
	assert.Equal(t, []Interval{span(0, 9, 0, 0, 11, 0)}, next.Intervals())
	assert.Equal(t, []Interval{span(0, 9, 0, 0, 10, 0)}, base.Intervals(), "receiver is unchanged")

	assert.True(t, next.Conflicts(span(0, 10, 30, 0, 12, 0)))
	assert.False(t, next.Conflicts(span(0, 11, 0, 0, 12, 0)))
	assert.Equal(t, []Interval{span(0, 8, 0, 0, 9, 0), span(0, 11, 0, 0, 12, 0)}, next.Free(at(0, 8, 0), at(0, 12, 0)))
}

func TestLeading(t *testing.T) {
	iv := span(0, 9, 0, 0, 11, 0)

	got, ok := iv.Leading(time.Hour)
	require.True(t, ok)
	assert.Equal(t, span(0, 9, 0, 0, 10, 0), got)

	_, ok = iv.Leading(3 * time.Hour)
	assert.False(t, ok, "too short")
	_, ok = iv.Leading(0)
	assert.False(t, ok, "empty duration")
	minutes := 200000000
	_, ok = iv.Leading(time.Duration(minutes) * time.Minute)
	assert.False(t, ok, "overflowed duration is negative")
}
