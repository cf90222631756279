package recurrence

import (
	"iter"
	"slices"
	"time"
)

// The days a period selects depend only on its month and its year modulo
// the 400-year Gregorian cycle, so a sequence with this many consecutive
// empty periods never produces again, e.g. BYMONTHDAY=30 with BYMONTH=2.
const (
	idleYearLimit  = 400
	idleMonthLimit = idleYearLimit * 12
)

// ordinalResolver returns the sorted, distinct days of year/month selected
// by ords.
type ordinalResolver func(year int, month time.Month, ords []OrdinalWeekday) []int

// Generate returns the occurrences of rule for an event anchored at anchor.
// See Rule.Occurrences.
func Generate(rule Rule, anchor time.Time) iter.Seq[time.Time] {
	return rule.Occurrences(anchor)
}

// Occurrences yields, in increasing order, every instant at or after anchor
// that matches r, honouring the terminator. Each occurrence carries the
// anchor's wall-clock time and location. The sequence is lazy and may be
// ranged over any number of times.
func (r Rule) Occurrences(anchor time.Time) iter.Seq[time.Time] {
	return r.sequence(anchor, resolveOrdinals)
}

func (r Rule) sequence(anchor time.Time, resolve ordinalResolver) iter.Seq[time.Time] {
	return func(yield func(time.Time) bool) {
		r.generate(anchor, resolve, yield)
	}
}

func (r Rule) generate(anchor time.Time, resolve ordinalResolver, yield func(time.Time) bool) {
	if r.Terminator.Kind == EndCount && r.Terminator.Count == 0 {
		return
	}
	if resolve == nil {
		resolve = resolveOrdinals
	}

	emitted := 0
	// emit reports whether the walk should go on.
	emit := func(t time.Time) bool {
		if t.Before(anchor) {
			return true
		}
		if r.Terminator.Kind == EndUntil && t.After(r.Terminator.Until) {
			return false
		}
		if !yield(t) {
			return false
		}
		emitted++
		return r.Terminator.Kind != EndCount || emitted < r.Terminator.Count
	}

	w := walker{anchor: anchor, interval: max(r.Interval, 1)}
	switch r.Frequency {
	case FreqDaily:
		w.daily(emit)
	case FreqWeekly:
		w.weekly(r.weekdaysOr(anchor), emit)
	case FreqMonthly:
		w.monthly(func(y int, m time.Month) []int { return fixedDay(y, m, r.monthDayOr(anchor)) }, emit)
	case FreqMonthlyByOrdinalWeekday:
		w.monthly(func(y int, m time.Month) []int { return resolve(y, m, r.Ordinals) }, emit)
	case FreqYearly:
		w.yearly(r.monthsOr(anchor), func(y int, m time.Month) []int { return fixedDay(y, m, r.monthDayOr(anchor)) }, emit)
	case FreqYearlyByOrdinalWeekday:
		w.yearly(r.monthsOr(anchor), func(y int, m time.Month) []int { return resolve(y, m, r.Ordinals) }, emit)
	}
}

// walker steps through the periods of a rule starting at the anchor's period.
type walker struct {
	anchor   time.Time
	interval int
}

// at builds the occurrence on y-m-d at the anchor's wall-clock time. Day
// overflow is normalized by time.Date.
func (w walker) at(y int, m time.Month, d int) time.Time {
	hh, mm, ss := w.anchor.Clock()
	return time.Date(y, m, d, hh, mm, ss, w.anchor.Nanosecond(), w.anchor.Location())
}

func (w walker) daily(emit func(time.Time) bool) {
	y, m, d := w.anchor.Date()
	for k := 0; ; k++ {
		if !emit(w.at(y, m, d+k*w.interval)) {
			return
		}
	}
}

func (w walker) weekly(days WeekdaySet, emit func(time.Time) bool) {
	y, m, d := w.anchor.Date()
	sunday := d - int(w.anchor.Weekday())
	weekdays := days.Days()
	for k := 0; ; k++ {
		base := sunday + 7*k*w.interval
		for _, wd := range weekdays {
			if !emit(w.at(y, m, base+int(wd))) {
				return
			}
		}
	}
}

func (w walker) monthly(daysOf func(int, time.Month) []int, emit func(time.Time) bool) {
	ay, am, _ := w.anchor.Date()
	idle := 0
	for k := 0; idle < idleMonthLimit; k++ {
		y, m := addMonths(ay, am, k*w.interval)
		days := daysOf(y, m)
		if len(days) == 0 {
			idle++
			continue
		}
		idle = 0
		for _, d := range days {
			if !emit(w.at(y, m, d)) {
				return
			}
		}
	}
}

func (w walker) yearly(months MonthSet, daysOf func(int, time.Month) []int, emit func(time.Time) bool) {
	ay := w.anchor.Year()
	list := months.Months()
	idle := 0
	for k := 0; idle < idleYearLimit; k++ {
		y := ay + k*w.interval
		found := false
		for _, m := range list {
			for _, d := range daysOf(y, m) {
				found = true
				if !emit(w.at(y, m, d)) {
					return
				}
			}
		}
		if found {
			idle = 0
		} else {
			idle++
		}
	}
}

func (r Rule) weekdaysOr(anchor time.Time) WeekdaySet {
	if r.Weekdays.Empty() {
		return NewWeekdaySet(anchor.Weekday())
	}
	return r.Weekdays
}

func (r Rule) monthsOr(anchor time.Time) MonthSet {
	if r.Months.Empty() {
		return NewMonthSet(anchor.Month())
	}
	return r.Months
}

func (r Rule) monthDayOr(anchor time.Time) int {
	if r.MonthDay == 0 {
		return anchor.Day()
	}
	return r.MonthDay
}

func fixedDay(year int, month time.Month, day int) []int {
	if day > daysIn(year, month) {
		return nil
	}
	return []int{day}
}

// resolveOrdinals maps ordinal weekdays to days of year/month. Ordinals that
// do not exist in the month (a 5th Monday in a four-Monday month) are
// dropped.
func resolveOrdinals(year int, month time.Month, ords []OrdinalWeekday) []int {
	n := daysIn(year, month)
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC).Weekday()
	days := make([]int, 0, len(ords))
	for _, o := range ords {
		d := 1 + (int(o.Weekday)-int(first)+7)%7
		if o.Ordinal == -1 {
			d += 7 * ((n - d) / 7)
		} else {
			d += 7 * (o.Ordinal - 1)
		}
		if d <= n {
			days = append(days, d)
		}
	}
	slices.Sort(days)
	return slices.Compact(days)
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func addMonths(year int, month time.Month, n int) (int, time.Month) {
	total := year*12 + int(month) - 1 + n
	return total / 12, time.Month(total%12 + 1)
}
