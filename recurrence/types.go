package recurrence

import (
	"slices"
	"strconv"
	"time"
)

// Frequency selects the rule variant. Each variant decides which of the
// payload fields of a Rule are meaningful.
type Frequency int

const (
	FreqDaily Frequency = iota + 1
	FreqWeekly
	FreqMonthly                 // fixed day of month
	FreqMonthlyByOrdinalWeekday // e.g. "2nd Monday"
	FreqYearly                  // fixed day in the selected months
	FreqYearlyByOrdinalWeekday  // ordinal weekdays in the selected months
)

// String provides a human-readable representation of the Frequency.
func (f Frequency) String() string {
	switch f {
	case FreqDaily:
		return "Daily"
	case FreqWeekly:
		return "Weekly"
	case FreqMonthly:
		return "Monthly"
	case FreqMonthlyByOrdinalWeekday:
		return "MonthlyByOrdinalWeekday"
	case FreqYearly:
		return "Yearly"
	case FreqYearlyByOrdinalWeekday:
		return "YearlyByOrdinalWeekday"
	default:
		return "Unknown"
	}
}

// keyword is the FREQ value the variant serializes to.
func (f Frequency) keyword() string {
	switch f {
	case FreqDaily:
		return "DAILY"
	case FreqWeekly:
		return "WEEKLY"
	case FreqMonthly, FreqMonthlyByOrdinalWeekday:
		return "MONTHLY"
	case FreqYearly, FreqYearlyByOrdinalWeekday:
		return "YEARLY"
	default:
		return ""
	}
}

// WeekdaySet is a set of weekdays, one bit per time.Weekday.
type WeekdaySet uint8

const allWeekdays WeekdaySet = 1<<7 - 1

// NewWeekdaySet builds a set from the given weekdays.
func NewWeekdaySet(days ...time.Weekday) WeekdaySet {
	var s WeekdaySet
	for _, d := range days {
		s = s.Add(d)
	}
	return s
}

func (s WeekdaySet) Add(d time.Weekday) WeekdaySet { return s | 1<<uint(d) }
func (s WeekdaySet) Has(d time.Weekday) bool      { return s&(1<<uint(d)) != 0 }
func (s WeekdaySet) Empty() bool                  { return s == 0 }

// Days lists the members in Sunday..Saturday order.
func (s WeekdaySet) Days() []time.Weekday {
	days := make([]time.Weekday, 0, 7)
	for d := time.Sunday; d <= time.Saturday; d++ {
		if s.Has(d) {
			days = append(days, d)
		}
	}
	return days
}

// MonthSet is a set of months, bit n standing for month n (1..12).
type MonthSet uint16

const allMonths MonthSet = (1<<13 - 1) &^ 1

// NewMonthSet builds a set from the given months.
func NewMonthSet(months ...time.Month) MonthSet {
	var s MonthSet
	for _, m := range months {
		s = s.Add(m)
	}
	return s
}

func (s MonthSet) Add(m time.Month) MonthSet { return s | 1<<uint(m) }
func (s MonthSet) Has(m time.Month) bool     { return s&(1<<uint(m)) != 0 }
func (s MonthSet) Empty() bool               { return s == 0 }

// Months lists the members in calendar order.
func (s MonthSet) Months() []time.Month {
	months := make([]time.Month, 0, 12)
	for m := time.January; m <= time.December; m++ {
		if s.Has(m) {
			months = append(months, m)
		}
	}
	return months
}

// OrdinalWeekday is the n-th given weekday of a month. Ordinal -1 means the
// last one.
type OrdinalWeekday struct {
	Ordinal int
	Weekday time.Weekday
}

// Nth returns the n-th weekday d of a month.
func Nth(n int, d time.Weekday) OrdinalWeekday {
	return OrdinalWeekday{Ordinal: n, Weekday: d}
}

// Last returns the last weekday d of a month.
func Last(d time.Weekday) OrdinalWeekday {
	return OrdinalWeekday{Ordinal: -1, Weekday: d}
}

func (o OrdinalWeekday) valid() bool {
	if o.Weekday < time.Sunday || o.Weekday > time.Saturday {
		return false
	}
	return o.Ordinal == -1 || (o.Ordinal >= 1 && o.Ordinal <= 5)
}

// String renders the BYDAY token, e.g. "2MO" or "-1SA".
func (o OrdinalWeekday) String() string {
	return strconv.Itoa(o.Ordinal) + weekdayCodes[o.Weekday]
}

// TerminatorKind says how a sequence ends.
type TerminatorKind int

const (
	EndForever TerminatorKind = iota
	EndUntil
	EndCount
)

// Terminator bounds an occurrence sequence. The zero value never ends.
type Terminator struct {
	Kind  TerminatorKind
	Until time.Time // EndUntil: last instant an occurrence may start at
	Count int       // EndCount: number of occurrences
}

// Forever returns a terminator that never ends the sequence.
func Forever() Terminator { return Terminator{} }

// Until ends the sequence after t. The timestamp is kept in UTC at second
// precision, the precision of the string form.
func Until(t time.Time) Terminator {
	return Terminator{Kind: EndUntil, Until: t.UTC().Truncate(time.Second)}
}

// Count ends the sequence after n occurrences.
func Count(n int) Terminator { return Terminator{Kind: EndCount, Count: n} }

// Rule is a validated recurrence rule. Which payload fields apply depends on
// Frequency; the variant constructors below fill them consistently.
type Rule struct {
	Frequency  Frequency
	Interval   int
	Terminator Terminator

	// Weekdays applies to FreqWeekly. Empty means the anchor's weekday.
	Weekdays WeekdaySet
	// Ordinals applies to the ordinal variants, in the order given.
	Ordinals []OrdinalWeekday
	// Months applies to the yearly variants. Empty means the anchor's month.
	Months MonthSet
	// MonthDay applies to FreqMonthly and FreqYearly. Zero means the
	// anchor's day of month.
	MonthDay int
}

func Daily(interval int) Rule {
	return Rule{Frequency: FreqDaily, Interval: interval}
}

func Weekly(interval int, days ...time.Weekday) Rule {
	return Rule{Frequency: FreqWeekly, Interval: interval, Weekdays: NewWeekdaySet(days...)}
}

func MonthlyOnDay(interval, day int) Rule {
	return Rule{Frequency: FreqMonthly, Interval: interval, MonthDay: day}
}

func MonthlyOnOrdinal(interval int, ordinals ...OrdinalWeekday) Rule {
	return Rule{Frequency: FreqMonthlyByOrdinalWeekday, Interval: interval, Ordinals: ordinals}
}

func YearlyOnDay(interval int, months MonthSet, day int) Rule {
	return Rule{Frequency: FreqYearly, Interval: interval, Months: months, MonthDay: day}
}

func YearlyOnOrdinal(interval int, months MonthSet, ordinals ...OrdinalWeekday) Rule {
	return Rule{Frequency: FreqYearlyByOrdinalWeekday, Interval: interval, Months: months, Ordinals: ordinals}
}

// WithUntil returns a copy of r ending after t.
func (r Rule) WithUntil(t time.Time) Rule {
	r.Terminator = Until(t)
	return r
}

// WithCount returns a copy of r ending after n occurrences.
func (r Rule) WithCount(n int) Rule {
	r.Terminator = Count(n)
	return r
}

// MaxInterval is the largest accepted INTERVAL. Period offsets stay far
// below integer overflow for every frequency.
const MaxInterval = 10000

var intervalReason = "must be an integer in 1.." + strconv.Itoa(MaxInterval)

// Validate checks the interval, the terminator and that only the payload
// fields of r's variant are set.
func (r Rule) Validate() error {
	if r.Interval < 1 || r.Interval > MaxInterval {
		return &ParseError{Kind: ErrMalformedInterval, Key: keyInterval, Value: strconv.Itoa(r.Interval), Reason: intervalReason}
	}

	switch r.Terminator.Kind {
	case EndForever:
	case EndUntil:
		if r.Terminator.Until.IsZero() {
			return &ParseError{Kind: ErrMalformedTimestamp, Key: keyUntil, Reason: "zero timestamp"}
		}
	case EndCount:
		if r.Terminator.Count < 0 {
			return outOfRange(keyCount, strconv.Itoa(r.Terminator.Count), "must not be negative")
		}
	default:
		return malformed("", "", "unknown terminator")
	}

	if r.Weekdays&^allWeekdays != 0 {
		return outOfRange(keyByDay, "", "weekday outside SU..SA")
	}
	if r.Months&^allMonths != 0 {
		return outOfRange(keyByMonth, "", "month outside 1..12")
	}
	if r.MonthDay < 0 || r.MonthDay > 31 {
		return outOfRange(keyByMonthDay, strconv.Itoa(r.MonthDay), "day outside 1..31")
	}
	for _, o := range r.Ordinals {
		if !o.valid() {
			return outOfRange(keyByDay, strconv.Itoa(o.Ordinal), "ordinal outside 1..5 or -1")
		}
	}

	hasWeekdays := !r.Weekdays.Empty()
	hasOrdinals := len(r.Ordinals) > 0
	hasMonths := !r.Months.Empty()
	hasMonthDay := r.MonthDay != 0

	switch r.Frequency {
	case FreqDaily:
		if hasWeekdays || hasOrdinals {
			return combination(keyByDay, "not allowed with FREQ=DAILY")
		}
		if hasMonths {
			return combination(keyByMonth, "not allowed with FREQ=DAILY")
		}
		if hasMonthDay {
			return combination(keyByMonthDay, "not allowed with FREQ=DAILY")
		}
	case FreqWeekly:
		if hasOrdinals {
			return combination(keyByDay, "ordinal weekdays not allowed with FREQ=WEEKLY")
		}
		if hasMonths {
			return combination(keyByMonth, "not allowed with FREQ=WEEKLY")
		}
		if hasMonthDay {
			return combination(keyByMonthDay, "not allowed with FREQ=WEEKLY")
		}
	case FreqMonthly:
		if hasWeekdays || hasOrdinals {
			return combination(keyByDay, "not allowed with a fixed month day")
		}
		if hasMonths {
			return combination(keyByMonth, "not allowed with FREQ=MONTHLY")
		}
	case FreqMonthlyByOrdinalWeekday:
		if !hasOrdinals {
			return combination(keyByDay, "ordinal weekdays required")
		}
		if hasWeekdays {
			return combination(keyByDay, "plain weekdays not allowed with FREQ=MONTHLY")
		}
		if hasMonths {
			return combination(keyByMonth, "not allowed with FREQ=MONTHLY")
		}
		if hasMonthDay {
			return combination(keyByMonthDay, "not allowed together with BYDAY")
		}
	case FreqYearly:
		if hasWeekdays || hasOrdinals {
			return combination(keyByDay, "not allowed with a fixed month day")
		}
	case FreqYearlyByOrdinalWeekday:
		if !hasOrdinals {
			return combination(keyByDay, "ordinal weekdays required")
		}
		if hasWeekdays {
			return combination(keyByDay, "plain weekdays not allowed with FREQ=YEARLY")
		}
		if hasMonthDay {
			return combination(keyByMonthDay, "not allowed together with BYDAY")
		}
	default:
		return malformed(keyFreq, r.Frequency.String(), "unknown frequency")
	}
	return nil
}

// ValidateFor validates r as the rule of an event starting at start.
func (r Rule) ValidateFor(start time.Time) error {
	if err := r.Validate(); err != nil {
		return err
	}
	if r.Terminator.Kind == EndUntil && r.Terminator.Until.Before(start.Truncate(time.Second)) {
		return &ParseError{
			Kind:   ErrUntilBeforeStart,
			Key:    keyUntil,
			Value:  r.Terminator.Until.Format(untilLayout),
			Reason: "event starts at " + start.UTC().Format(untilLayout),
		}
	}
	return nil
}

// Equal reports whether r and other describe the same rule.
func (r Rule) Equal(other Rule) bool {
	return r.Frequency == other.Frequency &&
		r.Interval == other.Interval &&
		r.Terminator.Kind == other.Terminator.Kind &&
		r.Terminator.Until.Equal(other.Terminator.Until) &&
		r.Terminator.Count == other.Terminator.Count &&
		r.Weekdays == other.Weekdays &&
		slices.Equal(r.Ordinals, other.Ordinals) &&
		r.Months == other.Months &&
		r.MonthDay == other.MonthDay
}
