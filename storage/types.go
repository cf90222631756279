package storage

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Error types
type ErrorType string

const (
	ErrNotFound      ErrorType = "not_found"
	ErrAlreadyExists ErrorType = "already_exists"
	ErrInvalidInput  ErrorType = "invalid_input"
	ErrUnavailable   ErrorType = "unavailable"
)

// Error represents a storage-related error
type Error struct {
	Type    ErrorType
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsType reports whether err is, or wraps, a storage error of type t.
func IsType(err error, t ErrorType) bool {
	var se *Error
	return errors.As(err, &se) && se.Type == t
}

// IsNotFound reports whether err is, or wraps, an ErrNotFound storage error.
func IsNotFound(err error) bool {
	return IsType(err, ErrNotFound)
}

// Status is the lifecycle state of an event.
type Status string

const (
	StatusTentative Status = "TENTATIVE"
	StatusConfirmed Status = "CONFIRMED"
	StatusCancelled Status = "CANCELLED"
)

// DefaultStatus is assigned to events created without a status.
const DefaultStatus = StatusConfirmed

// ParseStatus reads a status name case-insensitively.
func ParseStatus(s string) (Status, error) {
	status := Status(strings.ToUpper(strings.TrimSpace(s)))
	if !status.Valid() {
		return "", &Error{Type: ErrInvalidInput, Message: fmt.Sprintf("unknown status %q", s)}
	}
	return status, nil
}

func (s Status) Valid() bool {
	switch s {
	case StatusTentative, StatusConfirmed, StatusCancelled:
		return true
	}
	return false
}

// Color is the presentation hint for the status.
func (s Status) Color() string {
	switch s {
	case StatusTentative:
		return "warning"
	case StatusCancelled:
		return "danger"
	default:
		return "primary"
	}
}

// Calendar groups the events of a site.
type Calendar struct {
	ID       string    `validate:"required"`
	SiteID   string    `validate:"required"`
	UID      uuid.UUID `validate:"required"`
	Summary  string    `validate:"required,max=255"`
	Created  time.Time
	Modified time.Time
}

// Event is a single or recurring calendar entry. Its recurrence rule and
// exception dates are stored alongside it and read through EventReader.
type Event struct {
	ID          string    `validate:"required"`
	SiteID      string    `validate:"required"`
	CalendarID  string    `validate:"required"`
	UID         uuid.UUID `validate:"required"`
	Summary     string    `validate:"max=255"`
	Description string
	// Start is the anchor of the recurrence. Its location is the event's
	// time zone.
	Start    time.Time `validate:"required"`
	End      time.Time `validate:"required,gtfield=Start"`
	Status   Status    `validate:"event_status"`
	Sequence int       `validate:"min=0"`
	Created  time.Time
	Modified time.Time
}

// Duration is End minus Start.
func (e *Event) Duration() time.Duration {
	return e.End.Sub(e.Start)
}

// ExceptionDate removes one date from the occurrences of an event. A date
// stored at midnight UTC is a plain date; any other instant is read in the
// event's location.
type ExceptionDate struct {
	ID      string    `validate:"required"`
	SiteID  string    `validate:"required"`
	EventID string    `validate:"required"`
	Date    time.Time `validate:"required"`
}
