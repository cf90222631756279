package recurrence

import (
	"time"
)

// IsDateOnly reports whether t is stored as a plain date, i.e. midnight UTC.
func IsDateOnly(t time.Time) bool {
	if t.Location() != time.UTC {
		return false
	}
	hh, mm, ss := t.Clock()
	return hh == 0 && mm == 0 && ss == 0 && t.Nanosecond() == 0
}

// ExceptionDay returns the calendar date an exception removes, in loc. A
// date-only exception names its date directly. Any other instant is read in
// loc.
func ExceptionDay(exception time.Time, loc *time.Location) (int, time.Month, int) {
	if IsDateOnly(exception) || loc == nil {
		return exception.Date()
	}
	return exception.In(loc).Date()
}

// Excluded reports whether the calendar date of occurrence, in its own
// location, is listed in exceptions.
func Excluded(occurrence time.Time, exceptions []time.Time) bool {
	y, m, d := occurrence.Date()
	for _, ex := range exceptions {
		ey, em, ed := ExceptionDay(ex, occurrence.Location())
		if ey == y && em == m && ed == d {
			return true
		}
	}
	return false
}
