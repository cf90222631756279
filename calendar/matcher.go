package calendar

import (
	"time"

	"github.com/cyp0633/librecur/recurrence"
	"github.com/cyp0633/librecur/storage"
	"github.com/google/uuid"
	"github.com/samber/mo"
)

// Occurrence is one materialised instance of an event. Recurring is set for
// instances produced by a recurrence rule.
type Occurrence struct {
	UID         uuid.UUID
	Summary     string
	Description string
	Start       time.Time
	End         time.Time
	Status      storage.Status
	Sequence    int
	Recurring   bool
}

// Duration returns End - Start.
func (o Occurrence) Duration() time.Duration {
	return o.End.Sub(o.Start)
}

// Matcher decides whether an event occurs on a given date.
type Matcher struct {
	engine *recurrence.Engine
}

// NewMatcher returns a Matcher evaluating rules through engine. A nil engine
// evaluates rules directly without memoisation.
func NewMatcher(engine *recurrence.Engine) *Matcher {
	return &Matcher{engine: engine}
}

// Match reports the occurrence of ev on the calendar date of day, if any.
//
// Without a rule the event occurs only on the date of its own start, read in
// the start's location. With a rule, membership is decided for the sequence
// anchored at midnight of the start date, and dates listed in exceptions are
// skipped. Only the year, month and day of day are used.
func (m *Matcher) Match(ev *storage.Event, rule mo.Option[recurrence.Rule], exceptions []time.Time, day time.Time) mo.Option[Occurrence] {
	y, month, d := day.Date()
	r, recurring := rule.Get()
	if !recurring {
		sy, sm, sd := ev.Start.Date()
		if sy != y || sm != month || sd != d {
			return mo.None[Occurrence]()
		}
		return mo.Some(materialize(ev, y, month, d))
	}

	anchor := midnight(ev.Start)
	if !m.occursOn(r, anchor, day) {
		return mo.None[Occurrence]()
	}
	occ := materialize(ev, y, month, d)
	if recurrence.Excluded(occ.Start, exceptions) {
		return mo.None[Occurrence]()
	}
	occ.Recurring = true
	return mo.Some(occ)
}

func (m *Matcher) occursOn(rule recurrence.Rule, anchor, day time.Time) bool {
	if m == nil || m.engine == nil {
		return rule.OccursOn(anchor, day)
	}
	return m.engine.OccursOn(rule, anchor, day)
}

// midnight returns the start of t's calendar date in t's location.
func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// materialize moves ev to the given date. Start takes the date directly and
// End moves by the same number of calendar days, so both keep their
// wall-clock times.
func materialize(ev *storage.Event, y int, m time.Month, d int) Occurrence {
	sy, sm, sd := ev.Start.Date()
	shift := daysBetween(sy, sm, sd, y, m, d)

	sh, smin, ss := ev.Start.Clock()
	start := time.Date(y, m, d, sh, smin, ss, ev.Start.Nanosecond(), ev.Start.Location())

	ey, em, ed := ev.End.Date()
	eh, emin, es := ev.End.Clock()
	end := time.Date(ey, em, ed+shift, eh, emin, es, ev.End.Nanosecond(), ev.End.Location())

	return Occurrence{
		UID:         ev.UID,
		Summary:     ev.Summary,
		Description: ev.Description,
		Start:       start,
		End:         end,
		Status:      ev.Status,
		Sequence:    ev.Sequence,
	}
}

// daysBetween counts calendar days from the first date to the second.
func daysBetween(y1 int, m1 time.Month, d1 int, y2 int, m2 time.Month, d2 int) int {
	a := time.Date(y1, m1, d1, 0, 0, 0, 0, time.UTC)
	b := time.Date(y2, m2, d2, 0, 0, 0, 0, time.UTC)
	return int(b.Sub(a) / (24 * time.Hour))
}
