package planner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"studycal/internal/ics"
	appLog "studycal/internal/log"
	"studycal/internal/model"
	"studycal/internal/scheduler"
	"studycal/internal/stats"
)

// Import fetches the configured feeds and expands their events into
// occurrences overlapping [from, to). A feed that fails is skipped; the
// call fails only when every feed failed.
func (s *Service) Import(ctx context.Context, from, to time.Time) ([]model.Occurrence, error) {
	if len(s.opts.Sources) == 0 {
		return nil, nil
	}
	if s.opts.Feeds == nil {
		return nil, errors.New("no calendar fetcher configured")
	}
	results, errs := s.opts.Feeds.FetchAll(ctx, s.opts.Sources)
	s.opts.Metrics.ObserveFeedRefresh(len(errs) == 0)
	if len(results) == 0 && len(errs) > 0 {
		return nil, fmt.Errorf("all calendar feeds failed: %w", errors.Join(errs...))
	}
	return s.Expand(results, from, to)
}

// Expand parses fetched bodies and expands them into [from, to).
func (s *Service) Expand(results []ics.FetchResult, from, to time.Time) ([]model.Occurrence, error) {
	var parsed []ics.ParsedEvent
	for _, r := range results {
		evs, err := ics.ParseICS(r.Source, r.Body, s.opts.Location)
		if err != nil {
			appLog.Error("calendar parse failed", err, "source", r.Source.ID)
			continue
		}
		parsed = append(parsed, evs...)
	}
	res, err := ics.ExpandOccurrences(parsed, ics.ExpandConfig{
		Location:               s.opts.Location,
		RangeStart:             from,
		RangeEnd:               to,
		MaxOccurrencesPerEvent: s.opts.MaxOccurrences,
	})
	if err != nil {
		return nil, err
	}
	return res.Occurrences, nil
}

// Upcoming returns feed occurrences from now over the horizon.
func (s *Service) Upcoming(ctx context.Context) ([]model.Occurrence, error) {
	from := s.opts.Now().UTC()
	return s.Import(ctx, from, from.Add(s.opts.Horizon))
}

// StatsRequest asks for aggregates over schedule rows and, optionally,
// imported occurrences.
type StatsRequest struct {
	Events   []scheduler.Record `json:"events" yaml:"events"`
	UseFeeds bool               `json:"use_feeds,omitempty" yaml:"use_feeds,omitempty"`
	// Year and Month select the heatmap; zero means the current month.
	Year  int `json:"year,omitempty" yaml:"year,omitempty"`
	Month int `json:"month,omitempty" yaml:"month,omitempty"`
}

type StatsReport struct {
	ByType  []stats.TypeTotal `json:"by_type"`
	Heatmap []stats.DayTotal  `json:"heatmap"`
	Year    int               `json:"year"`
	Month   int               `json:"month"`
}

func (s *Service) Stats(ctx context.Context, req StatsRequest, imported []model.Occurrence) (StatsReport, error) {
	loc := s.opts.Location
	now := s.opts.Now().In(loc)
	year, month := req.Year, time.Month(req.Month)
	if year == 0 {
		year = now.Year()
	}
	if month == 0 {
		month = now.Month()
	}
	if month < time.January || month > time.December {
		return StatsReport{}, fmt.Errorf("%w: month %d out of range", scheduler.ErrValidation, req.Month)
	}

	entries, err := EntriesFromRecords(req.Events)
	if err != nil {
		return StatsReport{}, err
	}
	if req.UseFeeds {
		first := time.Date(year, month, 1, 0, 0, 0, 0, loc)
		occs, err := s.Import(ctx, first, first.AddDate(0, 1, 0))
		if err != nil {
			return StatsReport{}, err
		}
		imported = append(imported, occs...)
	}
	entries = append(entries, stats.FromOccurrences(imported)...)

	return StatsReport{
		ByType:  stats.TimeByEventType(entries),
		Heatmap: stats.MonthlyHeatmap(entries, year, month, loc),
		Year:    year,
		Month:   int(month),
	}, nil
}

// EntriesFromRecords converts serialized schedule rows back into timed
// entries. Placeholders are skipped.
func EntriesFromRecords(records []scheduler.Record) ([]stats.Entry, error) {
	out := make([]stats.Entry, 0, len(records))
	for i, r := range records {
		if r.Unscheduled {
			continue
		}
		start, err := time.Parse(time.RFC3339, r.Start)
		if err != nil {
			return nil, fmt.Errorf("%w: events[%d].start: %v", scheduler.ErrValidation, i, err)
		}
		end, err := time.Parse(time.RFC3339, r.End)
		if err != nil {
			return nil, fmt.Errorf("%w: events[%d].end: %v", scheduler.ErrValidation, i, err)
		}
		out = append(out, stats.Entry{EventType: r.EventType, Start: start, End: end})
	}
	return out, nil
}

// Export writes a run's imported and placed events as an iCalendar file.
func (s *Service) Export(w io.Writer, out Outcome, name string) error {
	if name == "" {
		name = "Study plan"
	}
	return ics.Export(w, out.Imported, out.Result.Events, ics.ExportOptions{Name: name, Now: s.opts.Now()})
}
