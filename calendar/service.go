package calendar

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/cyp0633/librecur/icalendar"
	"github.com/cyp0633/librecur/recurrence"
	"github.com/cyp0633/librecur/storage"
	"github.com/google/uuid"
	"github.com/samber/mo"
)

// Service is the write path over a store: it creates calendars and events,
// attaches rules and exceptions, and keeps event sequences current. Reads go
// through its Resolver.
type Service struct {
	store    storage.Storage
	resolver *Resolver
	logger   *slog.Logger
}

// NewService creates a Service on store.
func NewService(store storage.Storage, opts ...Option) *Service {
	o := buildOptions(opts)
	return &Service{
		store: store,
		resolver: &Resolver{
			store:   store,
			matcher: NewMatcher(o.engine),
			engine:  o.engine,
			logger:  o.logger,
		},
		logger: o.logger,
	}
}

// Resolver returns the resolver reading from the service's store.
func (s *Service) Resolver() *Resolver {
	return s.resolver
}

// CreateCalendar stores a new calendar for siteID.
func (s *Service) CreateCalendar(ctx context.Context, siteID, summary string) (*storage.Calendar, error) {
	cal := &storage.Calendar{
		ID:      uuid.NewString(),
		SiteID:  siteID,
		UID:     uuid.New(),
		Summary: summary,
	}
	if err := s.store.CreateCalendar(ctx, cal); err != nil {
		return nil, err
	}
	s.logger.Info("calendar created", "site_id", siteID, "calendar_id", cal.ID)
	return cal, nil
}

// CreateEvent stores ev, assigning an ID and UID when they are empty.
func (s *Service) CreateEvent(ctx context.Context, ev *storage.Event) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.UID == uuid.Nil {
		ev.UID = uuid.New()
	}
	if ev.Status == "" {
		ev.Status = storage.DefaultStatus
	}
	return s.store.CreateEvent(ctx, ev)
}

// AttachRule parses rrule and makes it the rule of the event, replacing any
// previous one. The rule must not end before the event starts.
func (s *Service) AttachRule(ctx context.Context, siteID, eventID, rrule string) (recurrence.Rule, error) {
	rule, err := recurrence.Parse(rrule)
	if err != nil {
		return recurrence.Rule{}, err
	}

	ev, err := s.store.GetEvent(ctx, siteID, eventID)
	if err != nil {
		return recurrence.Rule{}, err
	}
	if err := rule.ValidateFor(ev.Start); err != nil {
		return recurrence.Rule{}, err
	}

	if err := s.replaceRule(ctx, ev, mo.Some(rule)); err != nil {
		return recurrence.Rule{}, err
	}

	s.logger.Debug("rule attached", "site_id", siteID, "event_id", eventID, "rrule", rule.String())
	return rule, nil
}

// DetachRule turns the event back into a one-off.
func (s *Service) DetachRule(ctx context.Context, siteID, eventID string) error {
	ev, err := s.store.GetEvent(ctx, siteID, eventID)
	if err != nil {
		return err
	}
	return s.replaceRule(ctx, ev, mo.None[recurrence.Rule]())
}

// replaceRule stores rule for ev and bumps its sequence. When the bump
// fails the previous rule is put back.
func (s *Service) replaceRule(ctx context.Context, ev *storage.Event, rule mo.Option[recurrence.Rule]) error {
	previous, err := s.store.GetRule(ctx, ev.SiteID, ev.ID)
	if err != nil {
		return err
	}
	if err := s.store.SetRule(ctx, ev.SiteID, ev.ID, rule); err != nil {
		return err
	}
	if err := s.bump(ctx, ev); err != nil {
		if rerr := s.store.SetRule(ctx, ev.SiteID, ev.ID, previous); rerr != nil {
			s.logger.Error("failed to restore rule", "site_id", ev.SiteID, "event_id", ev.ID, "error", rerr)
		}
		return err
	}
	return nil
}

// Reschedule moves the event to [start, end).
func (s *Service) Reschedule(ctx context.Context, siteID, eventID string, start, end time.Time) (*storage.Event, error) {
	ev, err := s.store.GetEvent(ctx, siteID, eventID)
	if err != nil {
		return nil, err
	}

	rule, err := s.store.GetRule(ctx, siteID, eventID)
	if err != nil {
		return nil, err
	}
	if r, ok := rule.Get(); ok {
		if err := r.ValidateFor(start); err != nil {
			return nil, err
		}
	}

	ev.Start = start
	ev.End = end
	if err := s.bump(ctx, ev); err != nil {
		return nil, err
	}
	return ev, nil
}

// SetStatus changes the status of the event. A change bumps the sequence,
// as it does for times and rules.
func (s *Service) SetStatus(ctx context.Context, siteID, eventID string, status storage.Status) error {
	if !status.Valid() {
		return &storage.Error{Type: storage.ErrInvalidInput, Message: fmt.Sprintf("unknown status %q", status)}
	}
	ev, err := s.store.GetEvent(ctx, siteID, eventID)
	if err != nil {
		return err
	}
	if ev.Status == status {
		return nil
	}
	ev.Status = status
	return s.bump(ctx, ev)
}

// AddException removes the calendar date of date from the event's
// occurrences. The date is stored as midnight UTC.
func (s *Service) AddException(ctx context.Context, siteID, eventID string, date time.Time) error {
	ex := &storage.ExceptionDate{
		ID:      uuid.NewString(),
		SiteID:  siteID,
		EventID: eventID,
		Date:    dateOnly(date),
	}
	return s.store.AddException(ctx, ex)
}

// RemoveException restores an occurrence removed by AddException.
func (s *Service) RemoveException(ctx context.Context, siteID, eventID string, date time.Time) error {
	return s.store.DeleteException(ctx, siteID, eventID, dateOnly(date))
}

// ListByDate is Resolver.ListByDate.
func (s *Service) ListByDate(ctx context.Context, siteID, calendarID string, day time.Time) ([]Entry, error) {
	return s.resolver.ListByDate(ctx, siteID, calendarID, day)
}

// ListBetween is Resolver.ListBetween.
func (s *Service) ListBetween(ctx context.Context, siteID, calendarID string, from, to time.Time) ([]Entry, error) {
	return s.resolver.ListBetween(ctx, siteID, calendarID, from, to)
}

// ImportICS creates an event for every VEVENT read from r, with its rule and
// exceptions. Events the store rejects as invalid are skipped. It returns the
// number of events imported.
func (s *Service) ImportICS(ctx context.Context, siteID, calendarID string, r io.Reader) (int, error) {
	entries, err := icalendar.Decode(r)
	if err != nil {
		return 0, &storage.Error{Type: storage.ErrInvalidInput, Message: "import calendar", Err: err}
	}

	imported := 0
	for _, entry := range entries {
		ev := entry.Event
		ev.SiteID = siteID
		ev.CalendarID = calendarID

		if rule, ok := entry.Rule.Get(); ok {
			if err := rule.ValidateFor(ev.Start); err != nil {
				s.logger.Warn("skipping imported event", "uid", ev.UID, "error", err)
				continue
			}
		}
		if err := s.CreateEvent(ctx, ev); err != nil {
			if storage.IsType(err, storage.ErrInvalidInput) {
				s.logger.Warn("skipping imported event", "uid", ev.UID, "error", err)
				continue
			}
			return imported, err
		}
		if entry.Rule.IsPresent() {
			if err := s.store.SetRule(ctx, siteID, ev.ID, entry.Rule); err != nil {
				return imported, err
			}
		}
		for _, date := range entry.Exceptions {
			ex := &storage.ExceptionDate{ID: uuid.NewString(), SiteID: siteID, EventID: ev.ID, Date: date}
			if err := s.store.AddException(ctx, ex); err != nil && !storage.IsType(err, storage.ErrAlreadyExists) {
				return imported, err
			}
		}
		imported++
	}

	s.logger.Info("calendar imported", "site_id", siteID, "calendar_id", calendarID, "events", imported, "skipped", len(entries)-imported)
	return imported, nil
}

// ExportICS writes the calendar with all its events, rules and exceptions
// to w.
func (s *Service) ExportICS(ctx context.Context, siteID, calendarID string, w io.Writer) error {
	cal, err := s.store.GetCalendar(ctx, siteID, calendarID)
	if err != nil {
		return err
	}
	loaded, err := s.resolver.load(ctx, siteID, calendarID)
	if err != nil {
		return err
	}

	entries := make([]icalendar.Entry, 0, len(loaded))
	for _, re := range loaded {
		entries = append(entries, icalendar.Entry{Event: re.event, Rule: re.rule, Exceptions: re.exceptions})
	}
	return icalendar.Write(w, cal, entries)
}

// bump increments the sequence of ev and stores it.
func (s *Service) bump(ctx context.Context, ev *storage.Event) error {
	ev.Sequence++
	return s.store.UpdateEvent(ctx, ev)
}

// dateOnly returns the calendar date of t as midnight UTC.
func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
