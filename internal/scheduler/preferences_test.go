package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePreferencesRanks(t *testing.T) {
	prefs, err := ParsePreferences(RawPreferences{
		TimeOfDayRanks: map[string]int{
			"evening_rank":  1,
			"afternoon":     2,
			"early_morning": 3,
		},
		Timezone: "UTC",
	})
	require.NoError(t, err)

	names := make([]string, len(prefs.Ranked))
	for i, b := range prefs.Ranked {
		names[i] = b.Name
	}
	assert.Equal(t, []string{BandEvening, BandAfternoon, BandEarlyMorning}, names)
	assert.Equal(t, time.UTC, prefs.Location)
}

func TestParsePreferencesRejects(t *testing.T) {
	tests := []struct {
		name  string
		raw   RawPreferences
		field string
	}{
		{name: "duplicate rank", raw: RawPreferences{TimeOfDayRanks: map[string]int{"evening": 1, "night": 1}}, field: "time_of_day_ranks"},
		{name: "rank out of range", raw: RawPreferences{TimeOfDayRanks: map[string]int{"evening": 7}}, field: "time_of_day_ranks"},
		{name: "unknown band", raw: RawPreferences{TimeOfDayRanks: map[string]int{"brunch": 1}}, field: "time_of_day_ranks"},
		{name: "bad wake time", raw: RawPreferences{WakeTime: "seven"}, field: "wake_time"},
		{name: "unknown weekday", raw: RawPreferences{BlackoutDays: []string{"funday"}}, field: "blackout_days"},
		{name: "bad weekends rule", raw: RawPreferences{Weekends: "sometimes"}, field: "weekends"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePreferences(tt.raw)
			require.ErrorIs(t, err, ErrValidation)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
			assert.Equal(t, -1, verr.Index)
		})
	}
}

func TestParsePreferencesBlackout(t *testing.T) {
	prefs, err := ParsePreferences(RawPreferences{BlackoutDays: []string{"Mon", "wednesday"}, Weekends: "sunday_only"})
	require.NoError(t, err)

	assert.True(t, prefs.IsBlackout(Date{2025, time.December, 1}))  // Monday
	assert.False(t, prefs.IsBlackout(Date{2025, time.December, 2})) // Tuesday
	assert.True(t, prefs.IsBlackout(Date{2025, time.December, 3}))  // Wednesday
	assert.True(t, prefs.IsBlackout(Date{2025, time.December, 6}))  // Saturday
	assert.False(t, prefs.IsBlackout(Date{2025, time.December, 7})) // Sunday

	noWeekends, err := ParsePreferences(RawPreferences{Weekends: "no"})
	require.NoError(t, err)
	assert.True(t, noWeekends.IsBlackout(Date{2025, time.December, 6}))
	assert.True(t, noWeekends.IsBlackout(Date{2025, time.December, 7}))
}

func TestResolveLocationFallsBack(t *testing.T) {
	assert.Equal(t, time.Local, ResolveLocation(""))
	assert.Equal(t, time.Local, ResolveLocation("Mars/Olympus_Mons"))

	prefs, err := ParsePreferences(RawPreferences{Timezone: "Not/AZone"})
	require.NoError(t, err)
	assert.Equal(t, time.Local, prefs.Location)
}

func TestDayClamp(t *testing.T) {
	wake := Clock{Hour: 10}
	bed := Clock{Hour: 2}
	prefs := DefaultPreferences(time.UTC)
	prefs.Wake = &wake
	prefs.Bed = &bed

	clamp, ok := prefs.DayClamp(Date{2025, time.December, 1})
	require.True(t, ok)
	assert.Equal(t, span(0, 10, 0, 1, 2, 0), clamp, "bed before wake ends the next day")

	prefs.Bed = nil
	clamp, ok = prefs.DayClamp(Date{2025, time.December, 1})
	require.True(t, ok)
	assert.Equal(t, span(0, 10, 0, 1, 0, 0), clamp)

	_, ok = DefaultPreferences(time.UTC).DayClamp(Date{2025, time.December, 1})
	assert.False(t, ok)
}
