package icalendar

import (
	"bytes"
	"strings"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/cyp0633/librecur/recurrence"
	"github.com/cyp0633/librecur/storage"
	"github.com/emersion/go-ical"
	"github.com/google/uuid"
	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)

	start := time.Date(2024, 9, 7, 10, 0, 0, 0, berlin)
	ev := storage.NewMockEvent("site1", "cal1", "evt1", "Club; monthly", start, start.Add(2*time.Hour))
	ev.Description = "Bring snacks, drinks"
	ev.Status = storage.StatusTentative
	ev.Sequence = 4

	rule := recurrence.YearlyOnOrdinal(3, recurrence.NewMonthSet(time.June), recurrence.Nth(2, time.Monday), recurrence.Nth(1, time.Friday))
	exceptions := []time.Time{
		time.Date(2025, 6, 9, 0, 0, 0, 0, time.UTC),
		time.Date(2027, 6, 4, 8, 0, 0, 0, time.UTC),
	}

	var buf bytes.Buffer
	cal := storage.NewMockCalendar("site1", "cal1", "Club")
	require.NoError(t, Write(&buf, cal, []Entry{{Event: ev, Rule: mo.Some(rule), Exceptions: exceptions}}))

	ics := buf.String()
	assert.Contains(t, ics, "PRODID:"+ProductID)
	assert.Contains(t, ics, "DTSTART;TZID=Europe/Berlin:20240907T100000")
	assert.Contains(t, ics, "RRULE:FREQ=YEARLY;INTERVAL=3;BYMONTH=6;BYDAY=2MO,1FR")
	assert.Contains(t, ics, "EXDATE;VALUE=DATE:20250609")
	assert.Contains(t, ics, "EXDATE:20270604T080000Z")

	entries, err := Decode(strings.NewReader(ics))
	require.NoError(t, err)
	require.Len(t, entries, 1)

	got := entries[0]
	assert.Equal(t, ev.UID, got.Event.UID)
	assert.Equal(t, ev.Summary, got.Event.Summary)
	assert.Equal(t, ev.Description, got.Event.Description)
	assert.Equal(t, storage.StatusTentative, got.Event.Status)
	assert.Equal(t, 4, got.Event.Sequence)
	assert.True(t, got.Event.Start.Equal(start))
	assert.Equal(t, "Europe/Berlin", got.Event.Start.Location().String())
	assert.True(t, got.Event.End.Equal(ev.End))

	decoded, ok := got.Rule.Get()
	require.True(t, ok)
	assert.True(t, decoded.Equal(rule))

	// Exceptions come back as dates; the instant is read in Berlin.
	require.Len(t, got.Exceptions, 2)
	assert.True(t, got.Exceptions[0].Equal(exceptions[0]))
	assert.True(t, got.Exceptions[1].Equal(time.Date(2027, 6, 4, 0, 0, 0, 0, time.UTC)))
	for _, ex := range got.Exceptions {
		assert.True(t, recurrence.IsDateOnly(ex))
	}
	assert.Contains(t, ics, "X-WR-CALNAME:Club\r\n")
}

func TestEncodeEvent_OneOff(t *testing.T) {
	start := time.Date(2024, 9, 1, 10, 0, 0, 0, time.UTC)
	ev := storage.NewMockEvent("site1", "cal1", "evt1", "Dentist", start, start.Add(time.Hour))

	out := EncodeEvent(Entry{Event: ev, Rule: mo.None[recurrence.Rule]()})
	assert.Nil(t, out.Props.Get(ical.PropRecurrenceRule))
	assert.Nil(t, out.Props.Get(ical.PropExceptionDates))
	assert.Nil(t, out.Props.Get(ical.PropSequence))

	dtstart, err := out.Props.DateTime(ical.PropDateTimeStart, nil)
	require.NoError(t, err)
	assert.True(t, dtstart.Equal(start))
}

func TestDecodeEvent(t *testing.T) {
	wrap := func(lines ...string) string {
		all := append([]string{"BEGIN:VCALENDAR", "VERSION:2.0", "PRODID:-//test//EN", "BEGIN:VEVENT", "DTSTAMP:20240901T000000Z"}, lines...)
		all = append(all, "END:VEVENT", "END:VCALENDAR", "")
		return strings.Join(all, "\r\n")
	}

	tests := []struct {
		name    string
		ics     string
		wantErr bool
		check   func(t *testing.T, e Entry)
	}{
		{
			name: "All-day without end",
			ics:  wrap("UID:holiday@example.com", "DTSTART;VALUE=DATE:20241225", "SUMMARY:Holiday"),
			check: func(t *testing.T, e Entry) {
				assert.True(t, e.Event.Start.Equal(time.Date(2024, 12, 25, 0, 0, 0, 0, time.UTC)))
				assert.True(t, e.Event.End.Equal(time.Date(2024, 12, 26, 0, 0, 0, 0, time.UTC)))
				assert.Equal(t, uuid.NewSHA1(uuid.NameSpaceURL, []byte("holiday@example.com")), e.Event.UID)
				assert.Equal(t, storage.DefaultStatus, e.Event.Status)
				assert.True(t, e.Rule.IsAbsent())
			},
		},
		{
			name: "Duration",
			ics:  wrap("UID:a@example.com", "DTSTART:20240901T100000Z", "DURATION:PT90M"),
			check: func(t *testing.T, e Entry) {
				assert.Equal(t, 90*time.Minute, e.Event.Duration())
			},
		},
		{
			name: "Exception dates in a zone",
			ics: wrap("UID:b@example.com", "DTSTART:20240901T100000Z", "DTEND:20240901T110000Z",
				"RRULE:FREQ=DAILY", "EXDATE;TZID=America/New_York:20240903T060000,20240904T060000"),
			check: func(t *testing.T, e Entry) {
				require.Len(t, e.Exceptions, 2)
				assert.True(t, e.Exceptions[0].Equal(time.Date(2024, 9, 3, 0, 0, 0, 0, time.UTC)))
				assert.True(t, e.Exceptions[1].Equal(time.Date(2024, 9, 4, 0, 0, 0, 0, time.UTC)))
			},
		},
		{
			name: "UTC exception read in the event zone",
			ics: wrap("UID:e@example.com", "DTSTART;TZID=America/New_York:20240901T200000",
				"DTEND;TZID=America/New_York:20240901T210000", "RRULE:FREQ=DAILY", "EXDATE:20240910T000000Z"),
			check: func(t *testing.T, e Entry) {
				require.Len(t, e.Exceptions, 1)
				assert.True(t, e.Exceptions[0].Equal(time.Date(2024, 9, 9, 0, 0, 0, 0, time.UTC)))

				loc := e.Event.Start.Location()
				assert.True(t, recurrence.Excluded(time.Date(2024, 9, 9, 20, 0, 0, 0, loc), e.Exceptions))
				assert.False(t, recurrence.Excluded(time.Date(2024, 9, 10, 20, 0, 0, 0, loc), e.Exceptions))
			},
		},
		{
			name: "Floating exception read in the event zone",
			ics: wrap("UID:f@example.com", "DTSTART;TZID=Asia/Tokyo:20240901T080000",
				"RRULE:FREQ=DAILY", "EXDATE:20240905T080000"),
			check: func(t *testing.T, e Entry) {
				require.Len(t, e.Exceptions, 1)
				assert.True(t, e.Exceptions[0].Equal(time.Date(2024, 9, 5, 0, 0, 0, 0, time.UTC)))
			},
		},
		{
			name:    "Missing UID",
			ics:     wrap("DTSTART:20240901T100000Z"),
			wantErr: true,
		},
		{
			name:    "Unsupported rule",
			ics:     wrap("UID:c@example.com", "DTSTART:20240901T100000Z", "RRULE:FREQ=HOURLY"),
			wantErr: true,
		},
		{
			name:    "Unknown status",
			ics:     wrap("UID:d@example.com", "DTSTART:20240901T100000Z", "STATUS:POSTPONED"),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, err := Decode(strings.NewReader(tt.ics))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Len(t, entries, 1)
			tt.check(t, entries[0])
		})
	}
}

func TestCalendarName(t *testing.T) {
	cal := Encode(storage.NewMockCalendar("site1", "cal1", "Team"), nil)
	assert.Equal(t, "Team", CalendarName(cal))
	assert.Empty(t, CalendarName(Encode(nil, nil)))
}
