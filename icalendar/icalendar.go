// Package icalendar converts events, their recurrence rules and exception
// dates to and from iCalendar (RFC 5545) data.
package icalendar

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/cyp0633/librecur/recurrence"
	"github.com/cyp0633/librecur/storage"
	"github.com/emersion/go-ical"
	"github.com/google/uuid"
	"github.com/samber/mo"
)

// ProductID is written as PRODID of every encoded calendar.
const ProductID = "-//librecur//Recurring Agenda//EN"

// propCalendarName carries the calendar summary, as most clients expect.
const propCalendarName = "X-WR-CALNAME"

const (
	paramValue = "VALUE"
	paramTZID  = "TZID"
	valueDate  = "DATE"

	dateFormat        = "20060102"
	dateTimeFormat    = "20060102T150405"
	dateTimeFormatUTC = "20060102T150405Z"
)

// Entry is one VEVENT: an event with its optional rule and exception dates.
type Entry struct {
	Event      *storage.Event
	Rule       mo.Option[recurrence.Rule]
	Exceptions []time.Time
}

// Encode builds a VCALENDAR holding one VEVENT per entry.
func Encode(cal *storage.Calendar, entries []Entry) *ical.Calendar {
	out := ical.NewCalendar()
	out.Props.SetText(ical.PropVersion, "2.0")
	out.Props.SetText(ical.PropProductID, ProductID)
	if cal != nil && cal.Summary != "" {
		name := ical.NewProp(propCalendarName)
		name.Value = cal.Summary
		out.Props.Set(name)
	}

	for _, entry := range entries {
		out.Children = append(out.Children, EncodeEvent(entry).Component)
	}
	return out
}

// Write encodes the calendar to w.
func Write(w io.Writer, cal *storage.Calendar, entries []Entry) error {
	if err := ical.NewEncoder(w).Encode(Encode(cal, entries)); err != nil {
		return fmt.Errorf("failed to encode calendar: %w", err)
	}
	return nil
}

// EncodeEvent converts one entry into a VEVENT.
func EncodeEvent(entry Entry) *ical.Event {
	ev := entry.Event
	out := ical.NewEvent()

	out.Props.SetText(ical.PropUID, ev.UID.String())
	stamp := ev.Modified
	if stamp.IsZero() {
		stamp = time.Now()
	}
	out.Props.SetDateTime(ical.PropDateTimeStamp, stamp.UTC())
	out.Props.SetDateTime(ical.PropDateTimeStart, ev.Start)
	out.Props.SetDateTime(ical.PropDateTimeEnd, ev.End)
	out.Props.SetText(ical.PropSummary, ev.Summary)
	if ev.Description != "" {
		out.Props.SetText(ical.PropDescription, ev.Description)
	}
	if ev.Status != "" {
		out.Props.SetText(ical.PropStatus, string(ev.Status))
	}
	if ev.Sequence > 0 {
		seq := ical.NewProp(ical.PropSequence)
		seq.Value = strconv.Itoa(ev.Sequence)
		out.Props.Set(seq)
	}

	if rule, ok := entry.Rule.Get(); ok {
		rrule := ical.NewProp(ical.PropRecurrenceRule)
		rrule.Value = rule.String()
		out.Props.Set(rrule)
	}

	// Date-only exceptions go in a VALUE=DATE list, instants in a UTC list.
	var dates, instants []string
	for _, ex := range entry.Exceptions {
		if recurrence.IsDateOnly(ex) {
			dates = append(dates, ex.Format(dateFormat))
		} else {
			instants = append(instants, ex.UTC().Format(dateTimeFormatUTC))
		}
	}
	if len(dates) > 0 {
		prop := ical.NewProp(ical.PropExceptionDates)
		prop.Params.Set(paramValue, valueDate)
		prop.Value = strings.Join(dates, ",")
		out.Props.Add(prop)
	}
	if len(instants) > 0 {
		prop := ical.NewProp(ical.PropExceptionDates)
		prop.Value = strings.Join(instants, ",")
		out.Props.Add(prop)
	}

	return out
}

// Decode reads a VCALENDAR and returns its events. Event and calendar IDs are
// left empty for the caller to assign.
func Decode(r io.Reader) ([]Entry, error) {
	cal, err := ical.NewDecoder(r).Decode()
	if err != nil {
		return nil, fmt.Errorf("failed to decode calendar: %w", err)
	}

	var entries []Entry
	for _, ev := range cal.Events() {
		entry, err := DecodeEvent(ev)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// CalendarName returns the X-WR-CALNAME of cal, if any.
func CalendarName(cal *ical.Calendar) string {
	name, _ := cal.Props.Text(propCalendarName)
	return name
}

// DecodeEvent converts a VEVENT into an entry.
func DecodeEvent(comp ical.Event) (Entry, error) {
	uidText, err := comp.Props.Text(ical.PropUID)
	if err != nil || uidText == "" {
		return Entry{}, fmt.Errorf("event without UID")
	}

	start, end, ok := timeSpan(comp.Component)
	if !ok {
		return Entry{}, fmt.Errorf("event %s: missing or invalid DTSTART", uidText)
	}

	ev := &storage.Event{
		UID:    parseUID(uidText),
		Start:  start,
		End:    end,
		Status: storage.DefaultStatus,
	}
	ev.Summary, _ = comp.Props.Text(ical.PropSummary)
	ev.Description, _ = comp.Props.Text(ical.PropDescription)

	if text, _ := comp.Props.Text(ical.PropStatus); text != "" {
		status, err := storage.ParseStatus(text)
		if err != nil {
			return Entry{}, fmt.Errorf("event %s: %w", uidText, err)
		}
		ev.Status = status
	}
	if prop := comp.Props.Get(ical.PropSequence); prop != nil {
		seq, err := strconv.Atoi(strings.TrimSpace(prop.Value))
		if err != nil {
			return Entry{}, fmt.Errorf("event %s: invalid SEQUENCE: %w", uidText, err)
		}
		ev.Sequence = seq
	}

	entry := Entry{Event: ev, Rule: mo.None[recurrence.Rule]()}

	if prop := comp.Props.Get(ical.PropRecurrenceRule); prop != nil && prop.Value != "" {
		rule, err := recurrence.Parse(prop.Value)
		if err != nil {
			return Entry{}, fmt.Errorf("event %s: %w", uidText, err)
		}
		entry.Rule = mo.Some(rule)
	}

	for _, prop := range comp.Props.Values(ical.PropExceptionDates) {
		entry.Exceptions = append(entry.Exceptions, parseExceptionDates(prop, start.Location())...)
	}

	return entry, nil
}

// parseUID keeps UUID identifiers and derives a stable name-based UUID from
// any other UID text.
func parseUID(text string) uuid.UUID {
	if id, err := uuid.Parse(text); err == nil {
		return id
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(text))
}

// timeSpan reads DTSTART and DTEND or DURATION. An event without either ends
// at its start, or a day later for all-day events.
func timeSpan(comp *ical.Component) (start, end time.Time, ok bool) {
	startProp := comp.Props.Get(ical.PropDateTimeStart)
	if startProp == nil {
		return start, end, false
	}
	start, err := startProp.DateTime(time.UTC)
	if err != nil {
		return start, end, false
	}
	allDay := isDateValue(startProp)

	if endProp := comp.Props.Get(ical.PropDateTimeEnd); endProp != nil {
		end, err = endProp.DateTime(time.UTC)
		if err != nil {
			return start, end, false
		}
		if allDay && !end.After(start) {
			end = start.AddDate(0, 0, 1)
		}
		return start, end, true
	}
	if durProp := comp.Props.Get(ical.PropDuration); durProp != nil {
		dur, err := durProp.Duration()
		if err != nil {
			return start, end, false
		}
		return start, start.Add(dur), true
	}
	if allDay {
		return start, start.AddDate(0, 0, 1), true
	}
	return start, start, true
}

func isDateValue(prop *ical.Prop) bool {
	return strings.EqualFold(prop.Params.Get(paramValue), valueDate)
}

// parseExceptionDates reads one EXDATE property as date-only values
// (midnight UTC). Date-time entries are reduced to their calendar date in
// loc, the location of DTSTART; TZID is honoured and floating entries are
// read in loc. Unparsable entries are skipped.
func parseExceptionDates(prop ical.Prop, loc *time.Location) []time.Time {
	if prop.Value == "" {
		return nil
	}

	dateOnly := isDateValue(&prop)
	source := loc
	if tzid := prop.Params.Get(paramTZID); tzid != "" {
		if l, err := time.LoadLocation(tzid); err == nil {
			source = l
		}
	}

	var exdates []time.Time
	for _, s := range strings.Split(prop.Value, ",") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}

		if dateOnly || len(s) == len(dateFormat) {
			if t, err := time.Parse(dateFormat, s); err == nil {
				exdates = append(exdates, time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC))
			}
			continue
		}
		t, err := time.Parse(dateTimeFormatUTC, s)
		if err != nil {
			if t, err = time.ParseInLocation(dateTimeFormat, s, source); err != nil {
				continue
			}
		}
		y, m, d := t.In(loc).Date()
		exdates = append(exdates, time.Date(y, m, d, 0, 0, 0, 0, time.UTC))
	}
	return exdates
}
