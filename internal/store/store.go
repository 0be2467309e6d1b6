package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	appLog "studycal/internal/log"
	"studycal/internal/model"
	"studycal/internal/scheduler"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

const (
	SourceImported  = "imported"
	SourceScheduled = "scheduled"
)

// Options configures the connection pool.
type Options struct {
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
}

// Open connects to PostgreSQL and verifies the connection.
func Open(ctx context.Context, opts Options) (*sqlx.DB, error) {
	if opts.DSN == "" {
		return nil, errors.New("database dsn is empty")
	}
	db, err := sqlx.Open("postgres", opts.DSN)
	if err != nil {
		return nil, err
	}
	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	}
	db.SetConnMaxLifetime(time.Hour)
	db.SetConnMaxIdleTime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS calendars (
	id         TEXT PRIMARY KEY,
	owner      TEXT NOT NULL,
	name       TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	UNIQUE (owner, name)
);
CREATE TABLE IF NOT EXISTS events (
	id          TEXT PRIMARY KEY,
	calendar_id TEXT NOT NULL REFERENCES calendars(id) ON DELETE CASCADE,
	uid         TEXT NOT NULL,
	title       TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	event_type  TEXT NOT NULL DEFAULT '',
	priority    TEXT NOT NULL DEFAULT '',
	source      TEXT NOT NULL,
	start_at    TIMESTAMPTZ NOT NULL,
	end_at      TIMESTAMPTZ NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL,
	CHECK (end_at > start_at)
);
CREATE INDEX IF NOT EXISTS events_calendar_span ON events (calendar_id, start_at, end_at);
`

// Migrate creates the tables when missing.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Calendar groups one owner's events under a name unique per owner.
type Calendar struct {
	ID        string    `db:"id" json:"id"`
	Owner     string    `db:"owner" json:"owner"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Event is a stored imported or scheduled block.
type Event struct {
	ID          string    `db:"id" json:"id"`
	CalendarID  string    `db:"calendar_id" json:"calendar_id"`
	UID         string    `db:"uid" json:"uid"`
	Title       string    `db:"title" json:"title"`
	Description string    `db:"description" json:"description"`
	EventType   string    `db:"event_type" json:"event_type"`
	Priority    string    `db:"priority" json:"priority"`
	Source      string    `db:"source" json:"source"`
	StartAt     time.Time `db:"start_at" json:"start"`
	EndAt       time.Time `db:"end_at" json:"end"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Interval returns the event span for the scheduler.
func (e Event) Interval() scheduler.Interval {
	return scheduler.Interval{Start: e.StartAt.UTC(), End: e.EndAt.UTC()}
}

type Store struct {
	db  *sqlx.DB
	now func() time.Time
}

func New(db *sqlx.DB) *Store {
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// EnsureCalendar returns the owner's calendar with that name, creating it
// on first use.
func (s *Store) EnsureCalendar(ctx context.Context, owner, name string) (Calendar, error) {
	const query = `INSERT INTO calendars (id, owner, name, created_at) VALUES ($1, $2, $3, $4)
		ON CONFLICT (owner, name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id, owner, name, created_at`
	var cal Calendar
	if err := s.db.GetContext(ctx, &cal, query, uuid.NewString(), owner, name, s.now()); err != nil {
		return Calendar{}, fmt.Errorf("ensure calendar %s/%s: %w", owner, name, err)
	}
	return cal, nil
}

func (s *Store) GetCalendar(ctx context.Context, owner, name string) (Calendar, error) {
	const query = `SELECT id, owner, name, created_at FROM calendars WHERE owner = $1 AND name = $2`
	var cal Calendar
	if err := s.db.GetContext(ctx, &cal, query, owner, name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Calendar{}, ErrNotFound
		}
		return Calendar{}, err
	}
	return cal, nil
}

const eventColumns = `id, calendar_id, uid, title, description, event_type, priority, source, start_at, end_at, created_at`

// Between lists events overlapping [start, end), earliest first. Events
// that only touch the range are excluded.
func (s *Store) Between(ctx context.Context, calendarID string, start, end time.Time) ([]Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events
		WHERE calendar_id = $1 AND start_at < $3 AND end_at > $2
		ORDER BY start_at, id`
	events := []Event{}
	if err := s.db.SelectContext(ctx, &events, query, calendarID, start.UTC(), end.UTC()); err != nil {
		return nil, fmt.Errorf("events between: %w", err)
	}
	return events, nil
}

// HasConflict reports whether any stored event overlaps [start, end).
func (s *Store) HasConflict(ctx context.Context, calendarID string, start, end time.Time) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM events WHERE calendar_id = $1 AND start_at < $3 AND end_at > $2)`
	var found bool
	if err := s.db.GetContext(ctx, &found, query, calendarID, start.UTC(), end.UTC()); err != nil {
		return false, fmt.Errorf("conflict check: %w", err)
	}
	return found, nil
}

const deleteScheduled = `DELETE FROM events WHERE calendar_id = $1 AND source = $2 AND start_at < $4 AND end_at > $3`

// DeleteBetween removes scheduled (not imported) events overlapping the
// range, so a run can replace its previous output.
func (s *Store) DeleteBetween(ctx context.Context, calendarID string, start, end time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, deleteScheduled, calendarID, SourceScheduled, start.UTC(), end.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete scheduled events: %w", err)
	}
	return res.RowsAffected()
}

const insertEvent = `INSERT INTO events (` + eventColumns + `)
	VALUES (:id, :calendar_id, :uid, :title, :description, :event_type, :priority, :source, :start_at, :end_at, :created_at)`

// SaveScheduled stores the placed rows of a run in one transaction and
// returns how many were written. Placeholders have no span and are skipped.
func (s *Store) SaveScheduled(ctx context.Context, calendarID string, events []scheduler.ScheduledEvent) (int, error) {
	return s.insertAll(ctx, scheduledRows(calendarID, events))
}

// ReplaceScheduled deletes the scheduled events overlapping [start, end)
// and stores the placed rows of a run, all in one transaction. On any
// failure the previous rows stay in place.
func (s *Store) ReplaceScheduled(ctx context.Context, calendarID string, start, end time.Time, events []scheduler.ScheduledEvent) (deleted int64, stored int, err error) {
	rows := scheduledRows(calendarID, events)

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, 0, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, deleteScheduled, calendarID, SourceScheduled, start.UTC(), end.UTC())
	if err != nil {
		return 0, 0, fmt.Errorf("delete scheduled events: %w", err)
	}
	if deleted, err = res.RowsAffected(); err != nil {
		return 0, 0, err
	}
	if err := s.insertTx(ctx, tx, rows); err != nil {
		return 0, 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, 0, err
	}
	appLog.Debug("scheduled events replaced", "calendar", calendarID, "deleted", deleted, "stored", len(rows))
	return deleted, len(rows), nil
}

func scheduledRows(calendarID string, events []scheduler.ScheduledEvent) []Event {
	rows := make([]Event, 0, len(events))
	for _, ev := range events {
		if ev.Unscheduled {
			continue
		}
		rows = append(rows, Event{
			CalendarID:  calendarID,
			UID:         ev.UID,
			Title:       ev.Title,
			Description: ev.Description,
			EventType:   ev.EventType,
			Priority:    string(ev.Priority),
			Source:      SourceScheduled,
			StartAt:     ev.Start.UTC(),
			EndAt:       ev.End.UTC(),
		})
	}
	return rows
}

// SaveImported stores imported occurrences.
func (s *Store) SaveImported(ctx context.Context, calendarID string, occs []model.Occurrence) (int, error) {
	rows := make([]Event, 0, len(occs))
	for _, o := range occs {
		if !o.End.After(o.Start) {
			continue
		}
		rows = append(rows, Event{
			CalendarID:  calendarID,
			UID:         o.UID,
			Title:       o.Summary,
			Description: o.Description,
			EventType:   string(o.EventType),
			Source:      SourceImported,
			StartAt:     o.Start.UTC(),
			EndAt:       o.End.UTC(),
		})
	}
	return s.insertAll(ctx, rows)
}

func (s *Store) insertAll(ctx context.Context, rows []Event) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.insertTx(ctx, tx, rows); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	appLog.Debug("events stored", "calendar", rows[0].CalendarID, "count", len(rows), "source", rows[0].Source)
	return len(rows), nil
}

func (s *Store) insertTx(ctx context.Context, tx *sqlx.Tx, rows []Event) error {
	now := s.now()
	for i := range rows {
		rows[i].ID = uuid.NewString()
		rows[i].CreatedAt = now
		if _, err := tx.NamedExecContext(ctx, insertEvent, rows[i]); err != nil {
			return fmt.Errorf("insert event %q: %w", rows[i].Title, err)
		}
	}
	return nil
}
