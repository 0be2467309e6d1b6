package scheduler

import (
	"fmt"
	"sort"
	"strings"
	"time"

	appLog "studycal/internal/log"
)

// Band is a named daily clock range users rank by preference. A band whose
// To is not after From ends on the following day.
type Band struct {
	Name string
	From Clock
	To   Clock
}

// On returns the band's absolute span on date d in loc.
func (b Band) On(d Date, loc *time.Location) Interval {
	return dailySpan(d, b.From, b.To, loc)
}

const (
	BandEarlyMorning = "early_morning"
	BandLateMorning  = "late_morning"
	BandAfternoon    = "afternoon"
	BandEvening      = "evening"
	BandNight        = "night"
	BandLateNight    = "late_night"
)

// DefaultBands are the six fixed preference bands.
var DefaultBands = []Band{
	{Name: BandEarlyMorning, From: Clock{Hour: 5}, To: Clock{Hour: 9}},
	{Name: BandLateMorning, From: Clock{Hour: 9}, To: Clock{Hour: 12}},
	{Name: BandAfternoon, From: Clock{Hour: 12}, To: Clock{Hour: 16}},
	{Name: BandEvening, From: Clock{Hour: 16}, To: Clock{Hour: 20}},
	{Name: BandNight, From: Clock{Hour: 20}, To: Clock{Hour: 24}},
	{Name: BandLateNight, From: Clock{Hour: 0}, To: Clock{Hour: 5}},
}

// RawPreferences is the serialized preference set of one user.
type RawPreferences struct {
	// TimeOfDayRanks maps a band name to its rank (1 = best).
	TimeOfDayRanks map[string]int `json:"time_of_day_ranks" yaml:"time_of_day_ranks"`
	WakeTime       string         `json:"wake_time" yaml:"wake_time"`
	BedTime        string         `json:"bed_time" yaml:"bed_time"`
	BlackoutDays   []string       `json:"blackout_days" yaml:"blackout_days"`
	// Weekends is "yes", "no" or "sunday_only".
	Weekends  string `json:"weekends" yaml:"weekends" validate:"omitempty,oneof=yes no sunday_only"`
	Timezone  string `json:"timezone" yaml:"timezone"`
	Randomize bool   `json:"randomize" yaml:"randomize"`
}

// Preferences is the parsed preference set.
type Preferences struct {
	// Ranked lists bands best first.
	Ranked []Band
	// BandCount is the size of the band table Ranked was drawn from.
	BandCount int
	Wake      *Clock
	Bed       *Clock
	Blackout  map[time.Weekday]bool
	Location  *time.Location
	Randomize bool
}

// DefaultPreferences has no ranking, clamp or blackout and uses loc
// (time.Local when nil).
func DefaultPreferences(loc *time.Location) Preferences {
	if loc == nil {
		loc = time.Local
	}
	return Preferences{Blackout: map[time.Weekday]bool{}, Location: loc, BandCount: len(DefaultBands)}
}

// ParsePreferences validates raw preferences against the default bands.
// An unknown or invalid timezone is not an error: it is logged and the
// process-local zone is used instead.
func ParsePreferences(raw RawPreferences) (Preferences, error) {
	return ParsePreferencesWithBands(raw, DefaultBands)
}

func ParsePreferencesWithBands(raw RawPreferences, bands []Band) (Preferences, error) {
	if err := validate.Struct(raw); err != nil {
		return Preferences{}, fromValidator(-1, "", err)
	}

	prefs := DefaultPreferences(ResolveLocation(raw.Timezone))
	prefs.Randomize = raw.Randomize
	prefs.BandCount = len(bands)

	ranked, err := rankBands(raw.TimeOfDayRanks, bands)
	if err != nil {
		return Preferences{}, err
	}
	prefs.Ranked = ranked

	if strings.TrimSpace(raw.WakeTime) != "" {
		c, err := ParseClock(raw.WakeTime)
		if err != nil {
			return Preferences{}, invalid(-1, "", "wake_time", "must be HH:MM", err)
		}
		prefs.Wake = &c
	}
	if strings.TrimSpace(raw.BedTime) != "" {
		c, err := ParseClock(raw.BedTime)
		if err != nil {
			return Preferences{}, invalid(-1, "", "bed_time", "must be HH:MM", err)
		}
		prefs.Bed = &c
	}

	for _, name := range raw.BlackoutDays {
		wd, err := ParseWeekday(name)
		if err != nil {
			return Preferences{}, invalid(-1, "", "blackout_days", "unknown weekday", err)
		}
		prefs.Blackout[wd] = true
	}
	switch raw.Weekends {
	case "no":
		prefs.Blackout[time.Saturday] = true
		prefs.Blackout[time.Sunday] = true
	case "sunday_only":
		prefs.Blackout[time.Saturday] = true
	}

	return prefs, nil
}

// ResolveLocation loads an IANA zone, falling back to time.Local.
func ResolveLocation(name string) *time.Location {
	name = strings.TrimSpace(name)
	if name == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		appLog.Warn("invalid timezone in preferences; falling back to local", "timezone", name, "err", err)
		return time.Local
	}
	return loc
}

// IsBlackout reports whether nothing may be scheduled on d.
func (p Preferences) IsBlackout(d Date) bool {
	return p.Blackout[d.Weekday()]
}

// DayClamp returns the wake/bed span that starts on d. ok is false when
// neither bound is set.
func (p Preferences) DayClamp(d Date) (Interval, bool) {
	if p.Wake == nil && p.Bed == nil {
		return Interval{}, false
	}
	wake := Clock{}
	bed := Clock{Hour: 24}
	if p.Wake != nil {
		wake = *p.Wake
	}
	if p.Bed != nil {
		bed = *p.Bed
	}
	return dailySpan(d, wake, bed, p.location()), true
}

func (p Preferences) location() *time.Location {
	if p.Location == nil {
		return time.Local
	}
	return p.Location
}

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday, "sunday": time.Sunday,
	"mon": time.Monday, "monday": time.Monday,
	"tue": time.Tuesday, "tuesday": time.Tuesday,
	"wed": time.Wednesday, "wednesday": time.Wednesday,
	"thu": time.Thursday, "thursday": time.Thursday,
	"fri": time.Friday, "friday": time.Friday,
	"sat": time.Saturday, "saturday": time.Saturday,
}

// ParseWeekday accepts short ("mon") or full ("monday") names in any case.
func ParseWeekday(s string) (time.Weekday, error) {
	wd, ok := weekdayNames[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return 0, fmt.Errorf("unknown weekday %q", s)
	}
	return wd, nil
}

func rankBands(ranks map[string]int, bands []Band) ([]Band, error) {
	if len(ranks) == 0 {
		return nil, nil
	}
	byName := make(map[string]Band, len(bands))
	for _, b := range bands {
		byName[b.Name] = b
	}

	type rankedBand struct {
		band Band
		rank int
	}
	seen := make(map[int]string, len(ranks))
	list := make([]rankedBand, 0, len(ranks))
	for name, rank := range ranks {
		key := strings.ToLower(strings.TrimSpace(name))
		key = strings.TrimSuffix(key, "_rank")
		b, ok := byName[key]
		if !ok {
			return nil, invalid(-1, "", "time_of_day_ranks", "unknown band "+name, nil)
		}
		if rank < 1 || rank > len(bands) {
			return nil, invalid(-1, "", "time_of_day_ranks", fmt.Sprintf("rank for %s must be between 1 and %d", key, len(bands)), nil)
		}
		if other, dup := seen[rank]; dup {
			return nil, invalid(-1, "", "time_of_day_ranks", fmt.Sprintf("rank %d assigned to both %s and %s", rank, other, key), nil)
		}
		seen[rank] = key
		list = append(list, rankedBand{band: b, rank: rank})
	}

	sort.Slice(list, func(i, j int) bool { return list[i].rank < list[j].rank })
	out := make([]Band, len(list))
	for i, rb := range list {
		out[i] = rb.band
	}
	return out, nil
}
