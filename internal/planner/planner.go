// Package planner runs scheduling end to end: it gathers busy time from
// calendar feeds, stored calendars and the caller, runs the engine, and
// records the outcome in the store, the session history and metrics.
package planner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"studycal/internal/history"
	"studycal/internal/ics"
	appLog "studycal/internal/log"
	"studycal/internal/metrics"
	"studycal/internal/model"
	"studycal/internal/scheduler"
	"studycal/internal/store"
)

// EventStore is the persistence the planner needs. *store.Store satisfies it.
type EventStore interface {
	EnsureCalendar(ctx context.Context, owner, name string) (store.Calendar, error)
	Between(ctx context.Context, calendarID string, start, end time.Time) ([]store.Event, error)
	ReplaceScheduled(ctx context.Context, calendarID string, start, end time.Time, events []scheduler.ScheduledEvent) (int64, int, error)
}

// Feeds fetches calendar sources. *ics.Fetcher satisfies it.
type Feeds interface {
	FetchAll(ctx context.Context, sources []ics.Source) ([]ics.FetchResult, []error)
}

type Options struct {
	Engine   *scheduler.Engine
	Feeds    Feeds
	Sources  []ics.Source
	Location *time.Location
	// Preferences apply when a run brings none of its own.
	Preferences scheduler.RawPreferences
	// Horizon bounds feed expansion and defaults the scheduling window.
	Horizon        time.Duration
	MaxOccurrences int

	Store   EventStore
	History history.Store
	Metrics *metrics.Metrics
	Now     func() time.Time
}

// Service is safe for concurrent use; runs through the engine are
// serialized because the engine shares its random source, and history
// updates are serialized per session.
type Service struct {
	opts     Options
	runMu    sync.Mutex
	sessions sessionLocks
}

func New(opts Options) *Service {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Horizon <= 0 {
		opts.Horizon = scheduler.DefaultHorizon
	}
	if opts.Engine == nil {
		opts.Engine = scheduler.New(scheduler.Options{Now: opts.Now, Horizon: opts.Horizon})
	}
	if opts.History == nil {
		opts.History = history.NewMemoryStore()
	}
	return &Service{opts: opts, sessions: sessionLocks{locks: map[string]*sessionLock{}}}
}

func (s *Service) Location() *time.Location { return s.opts.Location }

// ScheduleRequest is one planning run as submitted by the API or the CLI.
type ScheduleRequest struct {
	Requests    []scheduler.RawRequest    `json:"requests" yaml:"requests"`
	Preferences *scheduler.RawPreferences `json:"preferences,omitempty" yaml:"preferences,omitempty"`
	// Busy lists extra commitments with ISO-8601 or naive local bounds.
	Busy        []scheduler.RawBusyEvent `json:"busy,omitempty" yaml:"busy,omitempty"`
	WindowStart string                   `json:"window_start,omitempty" yaml:"window_start,omitempty"`
	WindowEnd   string                   `json:"window_end,omitempty" yaml:"window_end,omitempty"`

	// UseFeeds adds the configured calendar feeds to the busy time.
	UseFeeds bool `json:"use_feeds,omitempty" yaml:"use_feeds,omitempty"`

	// Owner and Calendar select a stored calendar whose events are busy
	// time and which receives the placed rows.
	Owner    string `json:"owner,omitempty" yaml:"owner,omitempty"`
	Calendar string `json:"calendar,omitempty" yaml:"calendar,omitempty"`

	// Session, when set, records the run in that session's history.
	Session string `json:"session,omitempty" yaml:"session,omitempty"`
	Label   string `json:"label,omitempty" yaml:"label,omitempty"`
}

// Outcome is a finished run.
type Outcome struct {
	Result   scheduler.Result
	Imported []model.Occurrence
	Snapshot *history.Snapshot
	Stored   int
}

// Schedule runs one planning request. Occurrences passed in imported are
// busy time in addition to whatever the request selects.
func (s *Service) Schedule(ctx context.Context, req ScheduleRequest, imported []model.Occurrence) (Outcome, error) {
	start := time.Now()
	out, err := s.schedule(ctx, req, imported)
	outcome := metrics.OutcomeOK
	switch {
	case errors.Is(err, scheduler.ErrValidation):
		outcome = metrics.OutcomeInvalid
	case err != nil:
		outcome = metrics.OutcomeError
	}
	s.opts.Metrics.ObserveRun(outcome, time.Since(start), countRows(out.Result.Events))
	return out, err
}

func (s *Service) schedule(ctx context.Context, req ScheduleRequest, imported []model.Occurrence) (Outcome, error) {
	var out Outcome

	loc := s.opts.Location
	raw := s.opts.Preferences
	if req.Preferences != nil {
		raw = *req.Preferences
	}
	if raw.Timezone == "" {
		raw.Timezone = loc.String()
	}

	ws, we, err := s.window(req, loc)
	if err != nil {
		return out, err
	}
	// Weekly repeats land after the window, so busy time is collected
	// up to the last date they can reach.
	until := s.busyUntil(req.Requests, we, scheduler.ResolveLocation(raw.Timezone))

	out.Imported = append(out.Imported, imported...)
	if req.UseFeeds {
		occs, err := s.Import(ctx, ws, until)
		if err != nil {
			return out, err
		}
		out.Imported = append(out.Imported, occs...)
	}

	tolerance := s.opts.Engine.MergeTolerance()
	busy := scheduler.BusyFromEvents(req.Busy, loc, tolerance)
	busy = append(busy, occurrenceIntervals(out.Imported)...)

	var calendarID string
	if req.Calendar != "" {
		if s.opts.Store == nil {
			return out, errors.New("no event store configured")
		}
		cal, err := s.opts.Store.EnsureCalendar(ctx, req.Owner, req.Calendar)
		if err != nil {
			return out, fmt.Errorf("calendar %s/%s: %w", req.Owner, req.Calendar, err)
		}
		calendarID = cal.ID
		stored, err := s.opts.Store.Between(ctx, calendarID, ws, until)
		if err != nil {
			return out, fmt.Errorf("load stored events: %w", err)
		}
		for _, ev := range stored {
			// Earlier plans in this range are replaced by this run.
			if ev.Source == store.SourceScheduled {
				continue
			}
			busy = append(busy, ev.Interval())
		}
	}

	s.runMu.Lock()
	res, err := s.opts.Engine.ScheduleRaw(req.Requests, busy, raw, ws, we)
	s.runMu.Unlock()
	if err != nil {
		return out, err
	}
	out.Result = res

	if calendarID != "" {
		end := until
		for _, ev := range res.Placed() {
			if ev.End.After(end) {
				end = ev.End
			}
		}
		_, n, err := s.opts.Store.ReplaceScheduled(ctx, calendarID, res.WindowStart, end, res.Events)
		if err != nil {
			return out, fmt.Errorf("save plan: %w", err)
		}
		out.Stored = n
	}

	if req.Session != "" {
		snap, err := s.record(ctx, req.Session, req.Label, res.Events)
		if err != nil {
			return out, err
		}
		out.Snapshot = &snap
	}

	appLog.Info("planning run finished",
		"requests", len(req.Requests),
		"busy", len(busy),
		"imported", len(out.Imported),
		"placed", len(res.Placed()),
		"unscheduled", len(res.Unscheduled()),
		"stored", out.Stored,
		"session", req.Session,
	)
	return out, nil
}

// busyUntil is the end of the range busy time is gathered over: we, or
// later when a recurring request can repeat past it. Repeats may move
// RecurrenceSpreadDays off their date and run their full length.
func (s *Service) busyUntil(reqs []scheduler.RawRequest, we time.Time, loc *time.Location) time.Time {
	spread := s.opts.Engine.RecurrenceSpreadDays()
	limit := we.AddDate(0, 0, 7*(s.opts.Engine.MaxOccurrences()+1)+spread+1)
	until := we
	for _, r := range reqs {
		if !r.Recurring || r.RecurringUntil == nil {
			continue
		}
		d, err := scheduler.ParseDate(*r.RecurringUntil)
		if err != nil {
			continue
		}
		end := d.AddDays(spread + 1).Midnight(loc)
		if minutes, err := r.DurationMinutes.Int(); err == nil && minutes > 0 && minutes <= scheduler.MaxDurationMinutes {
			end = end.Add(time.Duration(minutes) * time.Minute)
		}
		if end.After(until) {
			until = end
		}
	}
	if until.After(limit) {
		until = limit
	}
	return until.UTC()
}

// window resolves the run's bounds. Missing bounds are left zero for the
// engine to default, except that feed expansion needs a concrete range.
func (s *Service) window(req ScheduleRequest, loc *time.Location) (time.Time, time.Time, error) {
	var ws, we time.Time
	var err error
	if req.WindowStart != "" {
		if ws, err = scheduler.ParseInstant(req.WindowStart, loc); err != nil {
			return ws, we, fmt.Errorf("%w: window_start: %v", scheduler.ErrValidation, err)
		}
	}
	if req.WindowEnd != "" {
		if we, err = scheduler.ParseInstant(req.WindowEnd, loc); err != nil {
			return ws, we, fmt.Errorf("%w: window_end: %v", scheduler.ErrValidation, err)
		}
	}
	if ws.IsZero() {
		ws = s.opts.Now().UTC()
	}
	if we.IsZero() {
		we = ws.Add(s.opts.Horizon)
	}
	if !we.After(ws) {
		return ws, we, fmt.Errorf("%w: window_end must be after window_start", scheduler.ErrValidation)
	}
	return ws, we, nil
}

func (s *Service) record(ctx context.Context, session, label string, events []scheduler.ScheduledEvent) (history.Snapshot, error) {
	unlock := s.sessions.lock(session)
	defer unlock()

	h, err := s.opts.History.Load(ctx, session)
	if err != nil {
		return history.Snapshot{}, fmt.Errorf("load history: %w", err)
	}
	snap := history.Snapshot{
		ID:        uuid.NewString(),
		Label:     label,
		CreatedAt: s.opts.Now().UTC(),
		Events:    scheduler.Records(events),
	}
	h.Push(snap)
	if err := s.opts.History.Save(ctx, session, h); err != nil {
		return history.Snapshot{}, fmt.Errorf("save history: %w", err)
	}
	return snap, nil
}

// Undo moves the session back one snapshot and returns the restored one.
func (s *Service) Undo(ctx context.Context, session string) (history.Snapshot, error) {
	return s.step(ctx, session, (*history.History).StepBack)
}

// Redo re-applies the most recently undone snapshot.
func (s *Service) Redo(ctx context.Context, session string) (history.Snapshot, error) {
	return s.step(ctx, session, (*history.History).StepForward)
}

func (s *Service) step(ctx context.Context, session string, move func(*history.History) (history.Snapshot, error)) (history.Snapshot, error) {
	unlock := s.sessions.lock(session)
	defer unlock()

	h, err := s.opts.History.Load(ctx, session)
	if err != nil {
		return history.Snapshot{}, fmt.Errorf("load history: %w", err)
	}
	snap, err := move(&h)
	if err != nil {
		return history.Snapshot{}, err
	}
	if err := s.opts.History.Save(ctx, session, h); err != nil {
		return history.Snapshot{}, fmt.Errorf("save history: %w", err)
	}
	return snap, nil
}

// sessionLocks hands out one mutex per session while it is in use.
type sessionLocks struct {
	mu    sync.Mutex
	locks map[string]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

func (l *sessionLocks) lock(session string) func() {
	l.mu.Lock()
	sl, ok := l.locks[session]
	if !ok {
		sl = &sessionLock{}
		l.locks[session] = sl
	}
	sl.refs++
	l.mu.Unlock()

	sl.mu.Lock()
	return func() {
		sl.mu.Unlock()
		l.mu.Lock()
		if sl.refs--; sl.refs == 0 {
			delete(l.locks, session)
		}
		l.mu.Unlock()
	}
}

func occurrenceIntervals(occs []model.Occurrence) []scheduler.Interval {
	out := make([]scheduler.Interval, 0, len(occs))
	for _, o := range occs {
		iv := scheduler.NewInterval(o.Start, o.End)
		if iv.Valid() {
			out = append(out, iv)
		}
	}
	return out
}

func countRows(events []scheduler.ScheduledEvent) metrics.RunCounts {
	var c metrics.RunCounts
	for _, ev := range events {
		switch {
		case ev.Recurrence && ev.Unscheduled:
			c.RecurrenceUnscheduled++
		case ev.Recurrence:
			c.RecurrencePlaced++
		case ev.Unscheduled:
			c.Unscheduled++
		default:
			c.Placed++
		}
	}
	return c
}
