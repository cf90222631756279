package storage

import (
	"context"
	"time"

	"github.com/cyp0633/librecur/recurrence"
	"github.com/samber/mo"
)

// EventReader is the read side the occurrence resolver needs. Every call is
// scoped to a site. Please use the error types provided.
type EventReader interface {
	// ListEvents returns the events of a calendar ordered by start.
	ListEvents(ctx context.Context, siteID, calendarID string) ([]*Event, error)
	// GetRule returns the recurrence rule of an event, None for a one-off
	// event.
	GetRule(ctx context.Context, siteID, eventID string) (mo.Option[recurrence.Rule], error)
	// ListExceptions returns the exception dates of an event.
	ListExceptions(ctx context.Context, siteID, eventID string) ([]time.Time, error)
}

// Storage is the interface that must be implemented by storage backends.
// Implementations set Created and Modified themselves.
type Storage interface {
	EventReader

	// Calendar operations
	CreateCalendar(ctx context.Context, cal *Calendar) error
	GetCalendar(ctx context.Context, siteID, calendarID string) (*Calendar, error)
	ListCalendars(ctx context.Context, siteID string) ([]*Calendar, error)
	// DeleteCalendar removes the calendar with its events, rules and
	// exceptions.
	DeleteCalendar(ctx context.Context, siteID, calendarID string) error

	// Event operations
	CreateEvent(ctx context.Context, ev *Event) error
	GetEvent(ctx context.Context, siteID, eventID string) (*Event, error)
	UpdateEvent(ctx context.Context, ev *Event) error
	DeleteEvent(ctx context.Context, siteID, eventID string) error

	// SetRule attaches a rule to an event, or detaches it when rule is None.
	SetRule(ctx context.Context, siteID, eventID string, rule mo.Option[recurrence.Rule]) error

	// Exception operations
	AddException(ctx context.Context, ex *ExceptionDate) error
	// DeleteException removes the exceptions of an event stored at date.
	DeleteException(ctx context.Context, siteID, eventID string, date time.Time) error
}
