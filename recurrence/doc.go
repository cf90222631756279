/*
Package recurrence models recurrence rules for calendar events and evaluates
them against calendar dates.

# Rule Strings

Rules use a constrained subset of the RFC 5545 RRULE grammar:

	FREQ=DAILY;INTERVAL=2;UNTIL=20240927T130000Z
	FREQ=WEEKLY;BYDAY=MO,WE,FR;COUNT=10
	FREQ=MONTHLY;BYDAY=1SA
	FREQ=YEARLY;INTERVAL=10;BYMONTH=12;BYMONTHDAY=7

Parse turns a string into a validated Rule and Rule.String writes it back in
canonical field order:

	rule, err := recurrence.Parse("FREQ=MONTHLY;BYDAY=-1FR")
	if errors.Is(err, recurrence.ErrMalformedRule) {
		// reject input
	}

# Evaluation

Occurrences are computed relative to an anchor, the start instant of the
event. They keep the anchor's wall-clock time and location:

	for t := range recurrence.Generate(rule, start) {
		fmt.Println(t)
	}

	if rule.OccursOn(start, day) {
		// the event happens on day
	}

An Engine adds a month cache for ordinal weekday resolution and range
expansion through rrule-go.
*/
package recurrence
