// Package sqlstore implements storage.Storage on database/sql with the MySQL
// dialect. Recurrence rules are persisted as their string form.
//
// Expected schema:
//
//	CREATE TABLE calendars (
//		id VARCHAR(64) NOT NULL, site_id VARCHAR(64) NOT NULL,
//		uid CHAR(36) NOT NULL, summary VARCHAR(255) NOT NULL,
//		created_at DATETIME(6) NOT NULL, updated_at DATETIME(6) NOT NULL,
//		PRIMARY KEY (site_id, id)
//	);
//	CREATE TABLE events (
//		id VARCHAR(64) NOT NULL, site_id VARCHAR(64) NOT NULL,
//		calendar_id VARCHAR(64) NOT NULL, uid CHAR(36) NOT NULL,
//		summary VARCHAR(255) NOT NULL, description TEXT NOT NULL,
//		starts_at DATETIME(6) NOT NULL, ends_at DATETIME(6) NOT NULL,
//		tzid VARCHAR(64) NOT NULL, tz_offset INT NOT NULL,
//		status VARCHAR(16) NOT NULL,
//		sequence INT NOT NULL,
//		created_at DATETIME(6) NOT NULL, updated_at DATETIME(6) NOT NULL,
//		PRIMARY KEY (site_id, id),
//		FOREIGN KEY (site_id, calendar_id) REFERENCES calendars (site_id, id) ON DELETE CASCADE
//	);
//	CREATE TABLE recurrence_rules (
//		site_id VARCHAR(64) NOT NULL, event_id VARCHAR(64) NOT NULL,
//		rrule VARCHAR(255) NOT NULL,
//		PRIMARY KEY (site_id, event_id),
//		FOREIGN KEY (site_id, event_id) REFERENCES events (site_id, id) ON DELETE CASCADE
//	);
//	CREATE TABLE exception_dates (
//		id VARCHAR(64) NOT NULL, site_id VARCHAR(64) NOT NULL,
//		event_id VARCHAR(64) NOT NULL, exception_date DATETIME(6) NOT NULL,
//		PRIMARY KEY (site_id, id),
//		UNIQUE KEY (site_id, event_id, exception_date),
//		FOREIGN KEY (site_id, event_id) REFERENCES events (site_id, id) ON DELETE CASCADE
//	);
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/cyp0633/librecur/recurrence"
	"github.com/cyp0633/librecur/storage"
	"github.com/go-sql-driver/mysql"
	"github.com/samber/mo"
)

// MySQL server error numbers mapped to storage errors.
const (
	mysqlDuplicateEntry  = 1062
	mysqlNoReferencedRow = 1452
)

// Store implements storage.Storage on a *sql.DB.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock replaces time.Now for created/updated stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New wraps an open database handle.
func New(db *sql.DB, opts ...Option) *Store {
	s := &Store{
		db:     db,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ storage.Storage = (*Store)(nil)

// Config builds a MySQL driver configuration. Times are exchanged in UTC.
func Config(host string, port int, user, password, dbName string) *mysql.Config {
	cfg := mysql.NewConfig()
	cfg.User = user
	cfg.Passwd = password
	cfg.Net = "tcp"
	cfg.Addr = fmt.Sprintf("%s:%d", host, port)
	cfg.DBName = dbName
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	return cfg
}

// Open connects to MySQL, tunes the pool and checks the connection.
func Open(ctx context.Context, cfg *mysql.Config) (*sql.DB, error) {
	db, err := sql.Open("mysql", cfg.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// wrap converts driver errors into storage errors.
func (s *Store) wrap(op string, err error) error {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case mysqlDuplicateEntry:
			return &storage.Error{Type: storage.ErrAlreadyExists, Message: op, Err: err}
		case mysqlNoReferencedRow:
			return &storage.Error{Type: storage.ErrNotFound, Message: op + ": referenced row missing", Err: err}
		}
	}
	s.logger.Error("query failed", "op", op, "error", err)
	return &storage.Error{Type: storage.ErrUnavailable, Message: op, Err: err}
}

func notFound(what string) error {
	return &storage.Error{Type: storage.ErrNotFound, Message: what + " not found"}
}

// expectOne reports ErrNotFound when an update or delete touched no row.
func (s *Store) expectOne(op, what string, res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return s.wrap(op, err)
	}
	if n == 0 {
		return notFound(what)
	}
	return nil
}

// Calendar operations

const calendarColumns = "id, site_id, uid, summary, created_at, updated_at"

func (s *Store) CreateCalendar(ctx context.Context, cal *storage.Calendar) error {
	if err := storage.Validate(cal); err != nil {
		return err
	}

	now := s.now().UTC()
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO calendars ("+calendarColumns+") VALUES (?, ?, ?, ?, ?, ?)",
		cal.ID, cal.SiteID, cal.UID, cal.Summary, now, now)
	if err != nil {
		return s.wrap("create calendar", err)
	}
	cal.Created = now
	cal.Modified = now
	return nil
}

func scanCalendar(row interface{ Scan(...any) error }) (*storage.Calendar, error) {
	var cal storage.Calendar
	err := row.Scan(&cal.ID, &cal.SiteID, &cal.UID, &cal.Summary, &cal.Created, &cal.Modified)
	return &cal, err
}

func (s *Store) GetCalendar(ctx context.Context, siteID, calendarID string) (*storage.Calendar, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+calendarColumns+" FROM calendars WHERE site_id = ? AND id = ?",
		siteID, calendarID)
	cal, err := scanCalendar(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("calendar")
	}
	if err != nil {
		return nil, s.wrap("get calendar", err)
	}
	return cal, nil
}

func (s *Store) ListCalendars(ctx context.Context, siteID string) ([]*storage.Calendar, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+calendarColumns+" FROM calendars WHERE site_id = ? ORDER BY created_at, id",
		siteID)
	if err != nil {
		return nil, s.wrap("list calendars", err)
	}
	defer rows.Close()

	var calendars []*storage.Calendar
	for rows.Next() {
		cal, err := scanCalendar(rows)
		if err != nil {
			return nil, s.wrap("scan calendar", err)
		}
		calendars = append(calendars, cal)
	}
	if err := rows.Err(); err != nil {
		return nil, s.wrap("list calendars", err)
	}
	return calendars, nil
}

func (s *Store) DeleteCalendar(ctx context.Context, siteID, calendarID string) error {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM calendars WHERE site_id = ? AND id = ?",
		siteID, calendarID)
	if err != nil {
		return s.wrap("delete calendar", err)
	}
	return s.expectOne("delete calendar", "calendar", res)
}

// Event operations

const eventColumns = "id, site_id, calendar_id, uid, summary, description, starts_at, ends_at, tzid, tz_offset, status, sequence, created_at, updated_at"

// zoneColumns returns the zone name of the event start and its UTC offset in
// seconds at that instant.
func zoneColumns(ev *storage.Event) (string, int) {
	_, offset := ev.Start.Zone()
	return ev.Start.Location().String(), offset
}

// zoneFrom rebuilds the location stored by zoneColumns. Names the tz
// database does not know, and unnamed fixed zones, become a fixed zone with
// the stored offset.
func zoneFrom(tzid string, offset int, start time.Time) *time.Location {
	if tzid != "" {
		if loc, err := time.LoadLocation(tzid); err == nil {
			if _, off := start.In(loc).Zone(); off == offset {
				return loc
			}
		}
	}
	return time.FixedZone(tzid, offset)
}

func scanEvent(row interface{ Scan(...any) error }) (*storage.Event, error) {
	var (
		ev     storage.Event
		tzid   string
		offset int
		status string
	)
	if err := row.Scan(&ev.ID, &ev.SiteID, &ev.CalendarID, &ev.UID, &ev.Summary, &ev.Description,
		&ev.Start, &ev.End, &tzid, &offset, &status, &ev.Sequence, &ev.Created, &ev.Modified); err != nil {
		return nil, err
	}
	loc := zoneFrom(tzid, offset, ev.Start)
	ev.Start = ev.Start.In(loc)
	ev.End = ev.End.In(loc)
	ev.Status = storage.Status(status)
	return &ev, nil
}

func (s *Store) ListEvents(ctx context.Context, siteID, calendarID string) ([]*storage.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+eventColumns+" FROM events WHERE site_id = ? AND calendar_id = ? ORDER BY starts_at, id",
		siteID, calendarID)
	if err != nil {
		return nil, s.wrap("list events", err)
	}
	defer rows.Close()

	var events []*storage.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, s.wrap("scan event", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, s.wrap("list events", err)
	}
	return events, nil
}

func (s *Store) CreateEvent(ctx context.Context, ev *storage.Event) error {
	if ev.Status == "" {
		ev.Status = storage.DefaultStatus
	}
	if err := storage.Validate(ev); err != nil {
		return err
	}

	now := s.now().UTC()
	tzid, offset := zoneColumns(ev)
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO events ("+eventColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		ev.ID, ev.SiteID, ev.CalendarID, ev.UID, ev.Summary, ev.Description,
		ev.Start.UTC(), ev.End.UTC(), tzid, offset, string(ev.Status), ev.Sequence, now, now)
	if err != nil {
		return s.wrap("create event", err)
	}
	ev.Created = now
	ev.Modified = now

	s.logger.Debug("event created", "site_id", ev.SiteID, "event_id", ev.ID, "start", ev.Start)
	return nil
}

func (s *Store) GetEvent(ctx context.Context, siteID, eventID string) (*storage.Event, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+eventColumns+" FROM events WHERE site_id = ? AND id = ?",
		siteID, eventID)
	ev, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("event")
	}
	if err != nil {
		return nil, s.wrap("get event", err)
	}
	return ev, nil
}

func (s *Store) UpdateEvent(ctx context.Context, ev *storage.Event) error {
	if err := storage.Validate(ev); err != nil {
		return err
	}

	now := s.now().UTC()
	tzid, offset := zoneColumns(ev)
	res, err := s.db.ExecContext(ctx,
		"UPDATE events SET calendar_id = ?, summary = ?, description = ?, starts_at = ?, ends_at = ?, tzid = ?, tz_offset = ?, status = ?, sequence = ?, updated_at = ? WHERE site_id = ? AND id = ?",
		ev.CalendarID, ev.Summary, ev.Description, ev.Start.UTC(), ev.End.UTC(), tzid, offset,
		string(ev.Status), ev.Sequence, now, ev.SiteID, ev.ID)
	if err != nil {
		return s.wrap("update event", err)
	}
	if err := s.expectOne("update event", "event", res); err != nil {
		return err
	}
	ev.Modified = now
	return nil
}

func (s *Store) DeleteEvent(ctx context.Context, siteID, eventID string) error {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM events WHERE site_id = ? AND id = ?",
		siteID, eventID)
	if err != nil {
		return s.wrap("delete event", err)
	}
	return s.expectOne("delete event", "event", res)
}

// Rule operations

func (s *Store) GetRule(ctx context.Context, siteID, eventID string) (mo.Option[recurrence.Rule], error) {
	none := mo.None[recurrence.Rule]()

	var raw sql.NullString
	err := s.db.QueryRowContext(ctx,
		"SELECT r.rrule FROM events e LEFT JOIN recurrence_rules r ON r.site_id = e.site_id AND r.event_id = e.id WHERE e.site_id = ? AND e.id = ?",
		siteID, eventID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return none, notFound("event")
	}
	if err != nil {
		return none, s.wrap("get rule", err)
	}
	if !raw.Valid {
		return none, nil
	}

	rule, err := recurrence.Parse(raw.String)
	if err != nil {
		s.logger.Warn("stored rule does not parse", "site_id", siteID, "event_id", eventID, "rrule", raw.String, "error", err)
		return none, &storage.Error{Type: storage.ErrInvalidInput, Message: "stored recurrence rule", Err: err}
	}
	return mo.Some(rule), nil
}

func (s *Store) SetRule(ctx context.Context, siteID, eventID string, rule mo.Option[recurrence.Rule]) error {
	r, ok := rule.Get()
	if !ok {
		if _, err := s.db.ExecContext(ctx,
			"DELETE FROM recurrence_rules WHERE site_id = ? AND event_id = ?",
			siteID, eventID); err != nil {
			return s.wrap("clear rule", err)
		}
		return nil
	}

	if err := r.Validate(); err != nil {
		return &storage.Error{Type: storage.ErrInvalidInput, Message: "invalid recurrence rule", Err: err}
	}
	if _, err := s.db.ExecContext(ctx,
		"INSERT INTO recurrence_rules (site_id, event_id, rrule) VALUES (?, ?, ?) ON DUPLICATE KEY UPDATE rrule = VALUES(rrule)",
		siteID, eventID, r.String()); err != nil {
		return s.wrap("set rule", err)
	}
	return nil
}

// Exception operations

func (s *Store) ListExceptions(ctx context.Context, siteID, eventID string) ([]time.Time, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT exception_date FROM exception_dates WHERE site_id = ? AND event_id = ? ORDER BY exception_date",
		siteID, eventID)
	if err != nil {
		return nil, s.wrap("list exceptions", err)
	}
	defer rows.Close()

	var dates []time.Time
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, s.wrap("scan exception", err)
		}
		dates = append(dates, d.UTC())
	}
	if err := rows.Err(); err != nil {
		return nil, s.wrap("list exceptions", err)
	}
	return dates, nil
}

func (s *Store) AddException(ctx context.Context, ex *storage.ExceptionDate) error {
	if err := storage.Validate(ex); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx,
		"INSERT INTO exception_dates (id, site_id, event_id, exception_date) VALUES (?, ?, ?, ?)",
		ex.ID, ex.SiteID, ex.EventID, ex.Date.UTC()); err != nil {
		return s.wrap("add exception", err)
	}
	return nil
}

func (s *Store) DeleteException(ctx context.Context, siteID, eventID string, date time.Time) error {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM exception_dates WHERE site_id = ? AND event_id = ? AND exception_date = ?",
		siteID, eventID, date.UTC())
	if err != nil {
		return s.wrap("delete exception", err)
	}
	return s.expectOne("delete exception", "exception", res)
}
