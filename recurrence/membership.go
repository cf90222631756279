package recurrence

import (
	"slices"
	"time"
)

// OccursOn reports whether the event anchored at anchor has an occurrence on
// the calendar date of day. Only day's year, month and day are used; the
// candidate occurrence is that date at the anchor's wall-clock time in the
// anchor's location.
//
// Rules ending after a count are checked by walking at most Count
// occurrences. All other rules are decided arithmetically.
func (r Rule) OccursOn(anchor, day time.Time) bool {
	return r.occursOn(anchor, day, resolveOrdinals)
}

func (r Rule) occursOn(anchor, day time.Time, resolve ordinalResolver) bool {
	y, m, d := day.Date()
	hh, mm, ss := anchor.Clock()
	candidate := time.Date(y, m, d, hh, mm, ss, anchor.Nanosecond(), anchor.Location())

	if candidate.Before(anchor) {
		return false
	}
	switch r.Terminator.Kind {
	case EndUntil:
		if candidate.After(r.Terminator.Until) {
			return false
		}
	case EndCount:
		if r.Terminator.Count == 0 {
			return false
		}
	}

	if !r.matchesPattern(anchor, candidate, resolve) {
		return false
	}
	if r.Terminator.Kind != EndCount {
		return true
	}

	for t := range r.sequence(anchor, resolve) {
		if !t.Before(candidate) {
			return t.Equal(candidate)
		}
	}
	return false
}

// matchesPattern ignores the terminator. candidate must not precede anchor.
func (r Rule) matchesPattern(anchor, candidate time.Time, resolve ordinalResolver) bool {
	interval := max(r.Interval, 1)
	cy, cm, cd := candidate.Date()
	ay, am, _ := anchor.Date()

	switch r.Frequency {
	case FreqDaily:
		return (civilDay(candidate)-civilDay(anchor))%int64(interval) == 0

	case FreqWeekly:
		if !r.weekdaysOr(anchor).Has(candidate.Weekday()) {
			return false
		}
		weeks := (weekStart(candidate) - weekStart(anchor)) / 7
		return weeks%int64(interval) == 0

	case FreqMonthly:
		months := (cy*12 + int(cm)) - (ay*12 + int(am))
		return months%interval == 0 && cd == r.monthDayOr(anchor)

	case FreqMonthlyByOrdinalWeekday:
		months := (cy*12 + int(cm)) - (ay*12 + int(am))
		return months%interval == 0 && slices.Contains(resolve(cy, cm, r.Ordinals), cd)

	case FreqYearly:
		return (cy-ay)%interval == 0 &&
			r.monthsOr(anchor).Has(cm) &&
			cd == r.monthDayOr(anchor)

	case FreqYearlyByOrdinalWeekday:
		return (cy-ay)%interval == 0 &&
			r.monthsOr(anchor).Has(cm) &&
			slices.Contains(resolve(cy, cm, r.Ordinals), cd)
	}
	return false
}

// civilDay numbers calendar dates consecutively, independent of location and
// DST.
func civilDay(t time.Time) int64 {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix() / 86400
}

// weekStart is the civil day of the Sunday opening t's week.
func weekStart(t time.Time) int64 {
	return civilDay(t) - int64(t.Weekday())
}
