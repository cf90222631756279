// memory based implementation for testing purposes
package memory

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/cyp0633/librecur/recurrence"
	"github.com/cyp0633/librecur/storage"
	"github.com/samber/mo"
)

// Store implements storage.Storage interface using in-memory maps
type Store struct {
	mu         sync.RWMutex
	calendars  map[string]*storage.Calendar        // key: siteID/calendarID
	events     map[string]*storage.Event           // key: siteID/eventID
	rules      map[string]recurrence.Rule          // key: siteID/eventID
	exceptions map[string][]*storage.ExceptionDate // key: siteID/eventID
	logger     *slog.Logger
	now        func() time.Time
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

// WithClock replaces time.Now for Created/Modified stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New creates a new in-memory storage
func New(opts ...Option) *Store {
	s := &Store{
		calendars:  make(map[string]*storage.Calendar),
		events:     make(map[string]*storage.Event),
		rules:      make(map[string]recurrence.Rule),
		exceptions: make(map[string][]*storage.ExceptionDate),
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ storage.Storage = (*Store)(nil)

func key(siteID, id string) string {
	return fmt.Sprintf("%s/%s", siteID, id)
}

func notFound(what string) error {
	return &storage.Error{Type: storage.ErrNotFound, Message: what + " not found"}
}

func cloneRule(r recurrence.Rule) recurrence.Rule {
	r.Ordinals = slices.Clone(r.Ordinals)
	return r
}

// Calendar operations

func (s *Store) CreateCalendar(_ context.Context, cal *storage.Calendar) error {
	if err := storage.Validate(cal); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(cal.SiteID, cal.ID)
	if _, exists := s.calendars[k]; exists {
		return &storage.Error{
			Type:    storage.ErrAlreadyExists,
			Message: "calendar already exists",
		}
	}

	now := s.now()
	cal.Created = now
	cal.Modified = now
	stored := *cal
	s.calendars[k] = &stored

	s.logger.Debug("calendar created", "site_id", cal.SiteID, "calendar_id", cal.ID)
	return nil
}

func (s *Store) GetCalendar(_ context.Context, siteID, calendarID string) (*storage.Calendar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cal, ok := s.calendars[key(siteID, calendarID)]
	if !ok {
		return nil, notFound("calendar")
	}
	out := *cal
	return &out, nil
}

func (s *Store) ListCalendars(_ context.Context, siteID string) ([]*storage.Calendar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var calendars []*storage.Calendar
	for _, cal := range s.calendars {
		if cal.SiteID == siteID {
			out := *cal
			calendars = append(calendars, &out)
		}
	}
	slices.SortFunc(calendars, func(a, b *storage.Calendar) int {
		if c := a.Created.Compare(b.Created); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return calendars, nil
}

func (s *Store) DeleteCalendar(_ context.Context, siteID, calendarID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(siteID, calendarID)
	if _, exists := s.calendars[k]; !exists {
		return notFound("calendar")
	}
	delete(s.calendars, k)

	// Delete all events in this calendar
	for evKey, ev := range s.events {
		if ev.SiteID == siteID && ev.CalendarID == calendarID {
			delete(s.events, evKey)
			delete(s.rules, evKey)
			delete(s.exceptions, evKey)
		}
	}
	return nil
}

// Event operations

func (s *Store) ListEvents(_ context.Context, siteID, calendarID string) ([]*storage.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.calendars[key(siteID, calendarID)]; !ok {
		return nil, notFound("calendar")
	}

	var events []*storage.Event
	for _, ev := range s.events {
		if ev.SiteID == siteID && ev.CalendarID == calendarID {
			out := *ev
			events = append(events, &out)
		}
	}
	slices.SortFunc(events, func(a, b *storage.Event) int {
		if c := a.Start.Compare(b.Start); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return events, nil
}

func (s *Store) CreateEvent(_ context.Context, ev *storage.Event) error {
	if ev.Status == "" {
		ev.Status = storage.DefaultStatus
	}
	if err := storage.Validate(ev); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(ev.SiteID, ev.ID)
	if _, exists := s.events[k]; exists {
		return &storage.Error{
			Type:    storage.ErrAlreadyExists,
			Message: "event already exists",
		}
	}
	// Verify calendar exists
	if _, exists := s.calendars[key(ev.SiteID, ev.CalendarID)]; !exists {
		return notFound("calendar")
	}

	now := s.now()
	ev.Created = now
	ev.Modified = now
	stored := *ev
	s.events[k] = &stored

	s.logger.Debug("event created", "site_id", ev.SiteID, "event_id", ev.ID, "start", ev.Start)
	return nil
}

func (s *Store) GetEvent(_ context.Context, siteID, eventID string) (*storage.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ev, ok := s.events[key(siteID, eventID)]
	if !ok {
		return nil, notFound("event")
	}
	out := *ev
	return &out, nil
}

func (s *Store) UpdateEvent(_ context.Context, ev *storage.Event) error {
	if err := storage.Validate(ev); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(ev.SiteID, ev.ID)
	existing, exists := s.events[k]
	if !exists {
		return notFound("event")
	}
	if existing.CalendarID != ev.CalendarID {
		if _, ok := s.calendars[key(ev.SiteID, ev.CalendarID)]; !ok {
			return notFound("calendar")
		}
	}

	ev.Created = existing.Created
	ev.Modified = s.now()
	stored := *ev
	s.events[k] = &stored
	return nil
}

func (s *Store) DeleteEvent(_ context.Context, siteID, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(siteID, eventID)
	if _, exists := s.events[k]; !exists {
		return notFound("event")
	}
	delete(s.events, k)
	delete(s.rules, k)
	delete(s.exceptions, k)
	return nil
}

// Rule operations

func (s *Store) GetRule(_ context.Context, siteID, eventID string) (mo.Option[recurrence.Rule], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	k := key(siteID, eventID)
	if _, ok := s.events[k]; !ok {
		return mo.None[recurrence.Rule](), notFound("event")
	}
	rule, ok := s.rules[k]
	if !ok {
		return mo.None[recurrence.Rule](), nil
	}
	return mo.Some(cloneRule(rule)), nil
}

func (s *Store) SetRule(_ context.Context, siteID, eventID string, rule mo.Option[recurrence.Rule]) error {
	if r, ok := rule.Get(); ok {
		if err := r.Validate(); err != nil {
			return &storage.Error{Type: storage.ErrInvalidInput, Message: "invalid recurrence rule", Err: err}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(siteID, eventID)
	ev, ok := s.events[k]
	if !ok {
		return notFound("event")
	}

	if r, ok := rule.Get(); ok {
		s.rules[k] = cloneRule(r)
	} else {
		delete(s.rules, k)
	}
	ev.Modified = s.now()
	return nil
}

// Exception operations

func (s *Store) ListExceptions(_ context.Context, siteID, eventID string) ([]time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	k := key(siteID, eventID)
	if _, ok := s.events[k]; !ok {
		return nil, notFound("event")
	}
	dates := make([]time.Time, 0, len(s.exceptions[k]))
	for _, ex := range s.exceptions[k] {
		dates = append(dates, ex.Date)
	}
	return dates, nil
}

func (s *Store) AddException(_ context.Context, ex *storage.ExceptionDate) error {
	if err := storage.Validate(ex); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(ex.SiteID, ex.EventID)
	if _, ok := s.events[k]; !ok {
		return notFound("event")
	}
	for _, existing := range s.exceptions[k] {
		if existing.ID == ex.ID || existing.Date.Equal(ex.Date) {
			return &storage.Error{
				Type:    storage.ErrAlreadyExists,
				Message: "exception already exists",
			}
		}
	}

	stored := *ex
	s.exceptions[k] = append(s.exceptions[k], &stored)
	return nil
}

func (s *Store) DeleteException(_ context.Context, siteID, eventID string, date time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(siteID, eventID)
	if _, ok := s.events[k]; !ok {
		return notFound("event")
	}
	exceptions, ok := s.exceptions[k]
	if !ok {
		return notFound("exception")
	}
	before := len(exceptions)
	exceptions = slices.DeleteFunc(exceptions, func(ex *storage.ExceptionDate) bool {
		return ex.Date.Equal(date)
	})
	if len(exceptions) == before {
		return notFound("exception")
	}
	s.exceptions[k] = exceptions
	return nil
}
