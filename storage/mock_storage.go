package storage

import (
	"context"
	"time"

	"github.com/cyp0633/librecur/recurrence"
	"github.com/google/uuid"
	"github.com/samber/mo"
	"github.com/stretchr/testify/mock"
)

// MockStorage implements the Storage interface for testing
type MockStorage struct {
	mock.Mock
}

var _ Storage = (*MockStorage)(nil)

// ListEvents implements the Storage interface
func (m *MockStorage) ListEvents(ctx context.Context, siteID, calendarID string) ([]*Event, error) {
	args := m.Called(ctx, siteID, calendarID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*Event), args.Error(1)
}

// GetRule implements the Storage interface
func (m *MockStorage) GetRule(ctx context.Context, siteID, eventID string) (mo.Option[recurrence.Rule], error) {
	args := m.Called(ctx, siteID, eventID)
	if args.Get(0) == nil {
		return mo.None[recurrence.Rule](), args.Error(1)
	}
	return args.Get(0).(mo.Option[recurrence.Rule]), args.Error(1)
}

// ListExceptions implements the Storage interface
func (m *MockStorage) ListExceptions(ctx context.Context, siteID, eventID string) ([]time.Time, error) {
	args := m.Called(ctx, siteID, eventID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]time.Time), args.Error(1)
}

func (m *MockStorage) CreateCalendar(ctx context.Context, cal *Calendar) error {
	args := m.Called(ctx, cal)
	return args.Error(0)
}

func (m *MockStorage) GetCalendar(ctx context.Context, siteID, calendarID string) (*Calendar, error) {
	args := m.Called(ctx, siteID, calendarID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Calendar), args.Error(1)
}

func (m *MockStorage) ListCalendars(ctx context.Context, siteID string) ([]*Calendar, error) {
	args := m.Called(ctx, siteID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*Calendar), args.Error(1)
}

func (m *MockStorage) DeleteCalendar(ctx context.Context, siteID, calendarID string) error {
	args := m.Called(ctx, siteID, calendarID)
	return args.Error(0)
}

func (m *MockStorage) CreateEvent(ctx context.Context, ev *Event) error {
	args := m.Called(ctx, ev)
	return args.Error(0)
}

func (m *MockStorage) GetEvent(ctx context.Context, siteID, eventID string) (*Event, error) {
	args := m.Called(ctx, siteID, eventID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Event), args.Error(1)
}

func (m *MockStorage) UpdateEvent(ctx context.Context, ev *Event) error {
	args := m.Called(ctx, ev)
	return args.Error(0)
}

func (m *MockStorage) DeleteEvent(ctx context.Context, siteID, eventID string) error {
	args := m.Called(ctx, siteID, eventID)
	return args.Error(0)
}

func (m *MockStorage) SetRule(ctx context.Context, siteID, eventID string, rule mo.Option[recurrence.Rule]) error {
	args := m.Called(ctx, siteID, eventID, rule)
	return args.Error(0)
}

func (m *MockStorage) AddException(ctx context.Context, ex *ExceptionDate) error {
	args := m.Called(ctx, ex)
	return args.Error(0)
}

func (m *MockStorage) DeleteException(ctx context.Context, siteID, eventID string, date time.Time) error {
	args := m.Called(ctx, siteID, eventID, date)
	return args.Error(0)
}

// --- Helper methods for creating test data ---

// NewMockCalendar creates a test Calendar with basic properties
func NewMockCalendar(siteID, id, summary string) *Calendar {
	now := time.Now()
	return &Calendar{
		ID:       id,
		SiteID:   siteID,
		UID:      uuid.New(),
		Summary:  summary,
		Created:  now,
		Modified: now,
	}
}

// NewMockEvent creates a confirmed test Event
func NewMockEvent(siteID, calendarID, id, summary string, start, end time.Time) *Event {
	now := time.Now()
	return &Event{
		ID:         id,
		SiteID:     siteID,
		CalendarID: calendarID,
		UID:        uuid.New(),
		Summary:    summary,
		Start:      start,
		End:        end,
		Status:     DefaultStatus,
		Created:    now,
		Modified:   now,
	}
}

// --- Convenience methods for setting up common test scenarios ---

// SetupEvent registers the read expectations the resolver issues for ev.
// A nil rule stands for a one-off event.
func (m *MockStorage) SetupEvent(ev *Event, rule *recurrence.Rule, exceptions ...time.Time) {
	opt := mo.None[recurrence.Rule]()
	if rule != nil {
		opt = mo.Some(*rule)
	}
	m.On("GetRule", mock.Anything, ev.SiteID, ev.ID).Return(opt, nil)
	m.On("ListExceptions", mock.Anything, ev.SiteID, ev.ID).Return(exceptions, nil)
}

// SetupCalendar registers a calendar and the ordered events it lists.
func (m *MockStorage) SetupCalendar(cal *Calendar, events ...*Event) {
	m.On("GetCalendar", mock.Anything, cal.SiteID, cal.ID).Return(cal, nil)
	m.On("ListEvents", mock.Anything, cal.SiteID, cal.ID).Return(events, nil)
}
