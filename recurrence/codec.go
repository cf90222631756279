package recurrence

import (
	"strconv"
	"strings"
	"time"
)

const (
	keyFreq       = "FREQ"
	keyInterval   = "INTERVAL"
	keyUntil      = "UNTIL"
	keyCount      = "COUNT"
	keyByDay      = "BYDAY"
	keyByMonth    = "BYMONTH"
	keyByMonthDay = "BYMONTHDAY"
)

const untilLayout = "20060102T150405Z"

// UNTIL layouts accepted on input, most specific first. Floating and
// date-only values are taken as UTC.
var untilLayouts = []string{untilLayout, "20060102T150405", "20060102"}

var weekdayCodes = [...]string{"SU", "MO", "TU", "WE", "TH", "FR", "SA"}

func weekdayFromCode(code string) (time.Weekday, bool) {
	for i, c := range weekdayCodes {
		if c == code {
			return time.Weekday(i), true
		}
	}
	return 0, false
}

// Parse reads a rule of the form "FREQ=...;INTERVAL=...;BYDAY=...". Keys and
// weekday codes are case-insensitive and an "RRULE:" prefix is accepted.
// Every error returned unwraps to ErrMalformedRule.
func Parse(input string) (Rule, error) {
	fields, err := splitFields(input)
	if err != nil {
		return Rule{}, err
	}

	freq, ok := fields[keyFreq]
	if !ok {
		return Rule{}, &ParseError{Kind: ErrMissingFrequency, Reason: "FREQ is required"}
	}

	rule := Rule{Interval: 1}
	if v, ok := fields[keyInterval]; ok {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > MaxInterval {
			return Rule{}, &ParseError{Kind: ErrMalformedInterval, Key: keyInterval, Value: v, Reason: intervalReason}
		}
		rule.Interval = n
	}

	if rule.Terminator, err = parseTerminator(fields); err != nil {
		return Rule{}, err
	}

	byDay, hasByDay := fields[keyByDay]
	byMonth, hasByMonth := fields[keyByMonth]
	byMonthDay, hasByMonthDay := fields[keyByMonthDay]

	switch freq {
	case "DAILY":
		rule.Frequency = FreqDaily
		switch {
		case hasByDay:
			return Rule{}, combination(keyByDay, "not allowed with FREQ=DAILY")
		case hasByMonth:
			return Rule{}, combination(keyByMonth, "not allowed with FREQ=DAILY")
		case hasByMonthDay:
			return Rule{}, combination(keyByMonthDay, "not allowed with FREQ=DAILY")
		}

	case "WEEKLY":
		rule.Frequency = FreqWeekly
		switch {
		case hasByMonth:
			return Rule{}, combination(keyByMonth, "not allowed with FREQ=WEEKLY")
		case hasByMonthDay:
			return Rule{}, combination(keyByMonthDay, "not allowed with FREQ=WEEKLY")
		}
		if hasByDay {
			if rule.Weekdays, err = parseWeekdays(byDay); err != nil {
				return Rule{}, err
			}
		}

	case "MONTHLY":
		switch {
		case hasByMonth:
			return Rule{}, combination(keyByMonth, "not allowed with FREQ=MONTHLY")
		case hasByDay && hasByMonthDay:
			return Rule{}, combination(keyByMonthDay, "not allowed together with BYDAY")
		}
		if hasByDay {
			rule.Frequency = FreqMonthlyByOrdinalWeekday
			if rule.Ordinals, err = parseOrdinals(byDay, "MONTHLY"); err != nil {
				return Rule{}, err
			}
			break
		}
		rule.Frequency = FreqMonthly
		if hasByMonthDay {
			if rule.MonthDay, err = parseMonthDay(byMonthDay); err != nil {
				return Rule{}, err
			}
		}

	case "YEARLY":
		if hasByDay && hasByMonthDay {
			return Rule{}, combination(keyByMonthDay, "not allowed together with BYDAY")
		}
		if hasByMonth {
			if rule.Months, err = parseMonths(byMonth); err != nil {
				return Rule{}, err
			}
		}
		if hasByDay {
			rule.Frequency = FreqYearlyByOrdinalWeekday
			if rule.Ordinals, err = parseOrdinals(byDay, "YEARLY"); err != nil {
				return Rule{}, err
			}
			break
		}
		rule.Frequency = FreqYearly
		if hasByMonthDay {
			if rule.MonthDay, err = parseMonthDay(byMonthDay); err != nil {
				return Rule{}, err
			}
		}

	default:
		return Rule{}, malformed(keyFreq, freq, "unsupported frequency")
	}

	if err := rule.Validate(); err != nil {
		return Rule{}, err
	}
	return rule, nil
}

// MustParse is like Parse but panics on error. It simplifies safe
// initialization of rules known at compile time.
func MustParse(input string) Rule {
	rule, err := Parse(input)
	if err != nil {
		panic(err)
	}
	return rule
}

// splitFields breaks the input into upper-cased key/value pairs.
func splitFields(input string) (map[string]string, error) {
	s := strings.TrimSpace(input)
	if len(s) >= 6 && strings.EqualFold(s[:6], "RRULE:") {
		s = s[6:]
	}

	fields := make(map[string]string)
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, value, ok := strings.Cut(part, "=")
		if !ok {
			return nil, malformed("", part, "expected KEY=VALUE")
		}
		key := strings.ToUpper(strings.TrimSpace(name))
		value = strings.ToUpper(strings.TrimSpace(value))

		switch key {
		case keyFreq, keyInterval, keyUntil, keyCount, keyByDay, keyByMonth, keyByMonthDay:
		default:
			return nil, malformed(key, value, "unknown field")
		}
		if _, dup := fields[key]; dup {
			return nil, malformed(key, value, "repeated field")
		}
		fields[key] = value
	}
	return fields, nil
}

// parseTerminator reads UNTIL and COUNT. Both are checked; UNTIL wins when
// both are present.
func parseTerminator(fields map[string]string) (Terminator, error) {
	term := Forever()

	if v, ok := fields[keyCount]; ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Terminator{}, malformed(keyCount, v, "must be an integer")
		}
		if n < 0 {
			return Terminator{}, outOfRange(keyCount, v, "must not be negative")
		}
		term = Count(n)
	}

	if v, ok := fields[keyUntil]; ok {
		t, err := parseUntil(v)
		if err != nil {
			return Terminator{}, &ParseError{Kind: ErrMalformedTimestamp, Key: keyUntil, Value: v, Reason: "expected YYYYMMDDTHHMMSSZ"}
		}
		term = Until(t)
	}
	return term, nil
}

func parseUntil(value string) (time.Time, error) {
	var err error
	for _, layout := range untilLayouts {
		var t time.Time
		if t, err = time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, err
}

// parseDay reads a BYDAY token such as "MO", "2MO" or "-1SA".
func parseDay(token string) (day time.Weekday, ordinal int, hasOrdinal bool, err error) {
	token = strings.TrimSpace(token)
	if len(token) < 2 {
		return 0, 0, false, malformed(keyByDay, token, "unknown weekday")
	}
	code, prefix := token[len(token)-2:], token[:len(token)-2]
	day, ok := weekdayFromCode(code)
	if !ok {
		return 0, 0, false, malformed(keyByDay, token, "unknown weekday")
	}
	if prefix == "" {
		return day, 0, false, nil
	}
	ordinal, err = strconv.Atoi(prefix)
	if err != nil {
		return 0, 0, false, malformed(keyByDay, token, "bad ordinal")
	}
	if o := Nth(ordinal, day); !o.valid() {
		return 0, 0, false, outOfRange(keyByDay, token, "ordinal outside 1..5 or -1")
	}
	return day, ordinal, true, nil
}

func parseWeekdays(value string) (WeekdaySet, error) {
	var set WeekdaySet
	for _, token := range strings.Split(value, ",") {
		day, _, hasOrdinal, err := parseDay(token)
		if err != nil {
			return 0, err
		}
		if hasOrdinal {
			return 0, combination(keyByDay, "ordinal weekdays not allowed with FREQ=WEEKLY")
		}
		set = set.Add(day)
	}
	return set, nil
}

func parseOrdinals(value, freq string) ([]OrdinalWeekday, error) {
	tokens := strings.Split(value, ",")
	ordinals := make([]OrdinalWeekday, 0, len(tokens))
	for _, token := range tokens {
		day, ordinal, hasOrdinal, err := parseDay(token)
		if err != nil {
			return nil, err
		}
		if !hasOrdinal {
			return nil, combination(keyByDay, "plain weekdays not allowed with FREQ="+freq)
		}
		ordinals = append(ordinals, Nth(ordinal, day))
	}
	return ordinals, nil
}

func parseMonths(value string) (MonthSet, error) {
	var set MonthSet
	for _, token := range strings.Split(value, ",") {
		token = strings.TrimSpace(token)
		n, err := strconv.Atoi(token)
		if err != nil {
			return 0, malformed(keyByMonth, token, "month must be a number")
		}
		if n < 1 || n > 12 {
			return 0, outOfRange(keyByMonth, token, "month outside 1..12")
		}
		set = set.Add(time.Month(n))
	}
	return set, nil
}

func parseMonthDay(value string) (int, error) {
	if strings.Contains(value, ",") {
		return 0, malformed(keyByMonthDay, value, "a single day is expected")
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, malformed(keyByMonthDay, value, "day must be a number")
	}
	if n < 1 || n > 31 {
		return 0, outOfRange(keyByMonthDay, value, "day outside 1..31")
	}
	return n, nil
}

// String serializes r in canonical field order:
// FREQ;INTERVAL;BYMONTH;BYDAY|BYMONTHDAY;UNTIL|COUNT.
func (r Rule) String() string {
	var b strings.Builder
	b.WriteString(keyFreq + "=" + r.Frequency.keyword())
	b.WriteString(";" + keyInterval + "=" + strconv.Itoa(r.Interval))

	if !r.Months.Empty() {
		months := r.Months.Months()
		parts := make([]string, len(months))
		for i, m := range months {
			parts[i] = strconv.Itoa(int(m))
		}
		b.WriteString(";" + keyByMonth + "=" + strings.Join(parts, ","))
	}

	switch {
	case !r.Weekdays.Empty():
		days := r.Weekdays.Days()
		parts := make([]string, len(days))
		for i, d := range days {
			parts[i] = weekdayCodes[d]
		}
		b.WriteString(";" + keyByDay + "=" + strings.Join(parts, ","))
	case len(r.Ordinals) > 0:
		parts := make([]string, len(r.Ordinals))
		for i, o := range r.Ordinals {
			parts[i] = o.String()
		}
		b.WriteString(";" + keyByDay + "=" + strings.Join(parts, ","))
	case r.MonthDay > 0:
		b.WriteString(";" + keyByMonthDay + "=" + strconv.Itoa(r.MonthDay))
	}

	switch r.Terminator.Kind {
	case EndUntil:
		b.WriteString(";" + keyUntil + "=" + r.Terminator.Until.UTC().Format(untilLayout))
	case EndCount:
		b.WriteString(";" + keyCount + "=" + strconv.Itoa(r.Terminator.Count))
	}
	return b.String()
}
