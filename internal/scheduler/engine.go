package scheduler

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/google/uuid"

	appLog "studycal/internal/log"
)

const (
	// DefaultHorizon is the scheduling window length when none is given.
	DefaultHorizon = 31 * 24 * time.Hour
	// DefaultRecurrenceSpreadDays is the half-width, in days, of the last
	// recurrence fallback window.
	DefaultRecurrenceSpreadDays = 3
	// DefaultMaxOccurrences caps weekly repeats per placed block.
	DefaultMaxOccurrences = 520
)

// Options tunes an Engine. Zero values select the defaults.
type Options struct {
	MergeTolerance       time.Duration
	RecurrenceSpreadDays int
	MaxOccurrences       int
	Horizon              time.Duration

	// Now supplies the default window start.
	Now func() time.Time
	// Rand drives candidate shuffling when preferences ask for it.
	Rand *rand.Rand
	// NewUID names each result row.
	NewUID func() string
}

// Engine places event requests into free time. It holds no state between
// runs; concurrent runs need separate Engines only when they share a Rand.
type Engine struct {
	opts Options
}

func New(opts Options) *Engine {
	if opts.MergeTolerance <= 0 {
		opts.MergeTolerance = DefaultMergeTolerance
	}
	if opts.RecurrenceSpreadDays <= 0 {
		opts.RecurrenceSpreadDays = DefaultRecurrenceSpreadDays
	}
	if opts.MaxOccurrences <= 0 {
		opts.MaxOccurrences = DefaultMaxOccurrences
	}
	if opts.Horizon <= 0 {
		opts.Horizon = DefaultHorizon
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if opts.NewUID == nil {
		opts.NewUID = uuid.NewString
	}
	return &Engine{opts: opts}
}

func (e *Engine) MergeTolerance() time.Duration { return e.opts.MergeTolerance }

// RecurrenceSpreadDays is how far a weekly repeat may move off its date.
func (e *Engine) RecurrenceSpreadDays() int { return e.opts.RecurrenceSpreadDays }

func (e *Engine) MaxOccurrences() int { return e.opts.MaxOccurrences }

// Input is one scheduling run. A zero WindowStart means now, a zero
// WindowEnd means WindowStart plus the horizon.
type Input struct {
	Requests    []Request
	Busy        []Interval
	Preferences Preferences
	WindowStart time.Time
	WindowEnd   time.Time
}

// Result is the output of a run: rows in placement order and the final
// busy set.
type Result struct {
	Events      []ScheduledEvent
	Busy        BusySet
	WindowStart time.Time
	WindowEnd   time.Time
}

// Placed returns only rows with a start and end.
func (r Result) Placed() []ScheduledEvent {
	out := make([]ScheduledEvent, 0, len(r.Events))
	for _, ev := range r.Events {
		if !ev.Unscheduled {
			out = append(out, ev)
		}
	}
	return out
}

// Unscheduled returns only placeholder rows.
func (r Result) Unscheduled() []ScheduledEvent {
	out := make([]ScheduledEvent, 0)
	for _, ev := range r.Events {
		if ev.Unscheduled {
			out = append(out, ev)
		}
	}
	return out
}

// ScheduleRaw normalizes raw requests and preferences and runs Schedule.
// A malformed request or preference set aborts the run before anything
// is placed.
func (e *Engine) ScheduleRaw(raws []RawRequest, busy []Interval, raw RawPreferences, windowStart, windowEnd time.Time) (Result, error) {
	prefs, err := ParsePreferences(raw)
	if err != nil {
		return Result{}, err
	}
	reqs, err := NormalizeAll(raws)
	if err != nil {
		return Result{}, err
	}
	return e.Schedule(Input{
		Requests:    reqs,
		Busy:        busy,
		Preferences: prefs,
		WindowStart: windowStart,
		WindowEnd:   windowEnd,
	})
}

// Schedule places every chunk of every request greedily: requests go in
// priority order (longer first within a priority), each chunk takes the
// best candidate available at that moment, and nothing is revisited.
func (e *Engine) Schedule(in Input) (Result, error) {
	ws, we := in.WindowStart, in.WindowEnd
	if ws.IsZero() {
		ws = e.opts.Now()
	}
	if we.IsZero() {
		we = ws.Add(e.opts.Horizon)
	}
	ws, we = ws.UTC(), we.UTC()
	if !we.After(ws) {
		return Result{}, errors.New("scheduling window end must be after its start")
	}

	prefs := in.Preferences
	if prefs.Location == nil {
		prefs.Location = time.Local
	}

	chunksByRequest := make(map[int][]int, len(in.Requests))
	for i, req := range in.Requests {
		if req.DurationMinutes <= 0 || req.DurationMinutes > MaxDurationMinutes {
			return Result{}, invalid(req.Index, req.Title, "duration_minutes", fmt.Sprintf("must be between 1 and %d", MaxDurationMinutes), nil)
		}
		chunks, err := req.Chunks()
		if err != nil {
			return Result{}, invalid(req.Index, req.Title, "split_minutes", err.Error(), err)
		}
		if req.Recurring && req.RecurringUntil == nil {
			return Result{}, invalid(req.Index, req.Title, "recurring_until", "required when recurring is set", nil)
		}
		chunksByRequest[i] = chunks
	}

	order := sortedOrder(in.Requests)
	busy := NewBusySet(in.Busy, e.opts.MergeTolerance)
	events := make([]ScheduledEvent, 0, len(in.Requests))

	appLog.Info("scheduling run started",
		"requests", len(in.Requests),
		"busy", busy.Len(),
		"window_start", ws.Format(time.RFC3339),
		"window_end", we.Format(time.RFC3339),
		"timezone", prefs.Location.String(),
	)

	for _, i := range order {
		req := in.Requests[i]
		for ci, minutes := range chunksByRequest[i] {
			iv, ok := e.search(req, minutes, busy, prefs, ws, we)
			if !ok {
				appLog.Warn("chunk unscheduled: no window fits",
					"title", req.Title, "chunk", ci, "minutes", minutes)
				events = append(events, e.placeholder(req, ci, minutes, nil))
				continue
			}

			events = append(events, e.placed(req, ci, iv, false))
			busy = busy.With(iv)
			appLog.Debug("chunk placed",
				"title", req.Title, "chunk", ci,
				"start", iv.Start.Format(time.RFC3339), "end", iv.End.Format(time.RFC3339),
				"busy_version", busy.Version())

			if req.Recurring {
				var repeats []ScheduledEvent
				busy, repeats = e.recur(req, ci, iv, busy, prefs)
				events = append(events, repeats...)
			}
		}
	}

	res := Result{Events: events, Busy: busy, WindowStart: ws, WindowEnd: we}
	appLog.Info("scheduling run finished",
		"rows", len(events),
		"placed", len(res.Placed()),
		"unscheduled", len(events)-len(res.Placed()),
	)
	return res, nil
}

// sortedOrder returns request indexes ordered by (priority rank, longest
// duration first), keeping submission order on ties.
func sortedOrder(reqs []Request) []int {
	order := make([]int, len(reqs))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ra, rb := reqs[order[a]], reqs[order[b]]
		if ra.Priority.Rank() != rb.Priority.Rank() {
			return ra.Priority.Rank() < rb.Priority.Rank()
		}
		return ra.DurationMinutes > rb.DurationMinutes
	})
	return order
}

// search finds the placement of one chunk inside [ws, we) against busy.
func (e *Engine) search(req Request, minutes int, busy BusySet, prefs Preferences, ws, we time.Time) (Interval, bool) {
	needed := durationOf(minutes)

	cands := generateAll(req, busy.Free(ws, we), prefs)
	cands = withoutBlackout(cands, prefs)
	if len(prefs.Ranked) > 0 {
		cands = RankCandidates(cands, prefs.Ranked, prefs.BandCount, prefs.Location)
	} else {
		SortChronological(cands)
	}
	if prefs.Randomize {
		e.opts.Rand.Shuffle(len(cands), func(i, j int) { cands[i], cands[j] = cands[j], cands[i] })
	}

	appLog.Debug("chunk search", "title", req.Title, "minutes", minutes, "candidates", len(cands))

	for _, c := range cands {
		if len(prefs.Ranked) > 0 {
			if iv, ok := FindPreferredSubwindow(c.Interval, needed, prefs); ok {
				return iv, true
			}
		}
		if iv, ok := c.Leading(needed); ok {
			return iv, true
		}
	}
	return Interval{}, false
}

func (e *Engine) placed(req Request, chunk int, iv Interval, recurrence bool) ScheduledEvent {
	return ScheduledEvent{
		UID:          e.opts.NewUID(),
		Title:        req.Title,
		Description:  req.Description,
		EventType:    req.EventType,
		Priority:     req.Priority,
		Start:        iv.Start.UTC(),
		End:          iv.End.UTC(),
		Recurrence:   recurrence,
		RequestIndex: req.Index,
		Chunk:        chunk,
	}
}

func (e *Engine) placeholder(req Request, chunk, minutes int, occurrence *Date) ScheduledEvent {
	return ScheduledEvent{
		UID:              e.opts.NewUID(),
		Title:            req.Title,
		Description:      req.Description,
		EventType:        req.EventType,
		Priority:         req.Priority,
		Unscheduled:      true,
		RequestedMinutes: minutes,
		Recurrence:       occurrence != nil,
		OccurrenceDate:   occurrence,
		RequestIndex:     req.Index,
		Chunk:            chunk,
	}
}
