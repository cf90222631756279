package xcal

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/beevik/etree"
	"github.com/cyp0633/librecur/calendar"
	"github.com/cyp0633/librecur/storage"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)

	uid := uuid.MustParse("6f1c1a3e-8f0b-4d57-9a43-0d5f2a6d8b11")
	entries := []calendar.Entry{
		{
			EventID: "evt1",
			Occurrence: calendar.Occurrence{
				UID:       uid,
				Summary:   "Club",
				Start:     time.Date(2024, 10, 5, 10, 0, 0, 0, time.UTC),
				End:       time.Date(2024, 10, 5, 12, 0, 0, 0, time.UTC),
				Status:    storage.StatusConfirmed,
				Sequence:  2,
				Recurring: true,
			},
		},
		{
			EventID: "evt2",
			Occurrence: calendar.Occurrence{
				UID:     uuid.New(),
				Summary: "Standup",
				Start:   time.Date(2024, 10, 5, 9, 0, 0, 0, berlin),
				End:     time.Date(2024, 10, 5, 9, 15, 0, 0, berlin),
				Status:  storage.StatusTentative,
			},
		},
	}

	doc := Render("Team", entries)
	out, err := doc.WriteToString()
	require.NoError(t, err)

	parsed := etree.NewDocument()
	require.NoError(t, parsed.ReadFromString(out))

	root := parsed.Root()
	require.NotNil(t, root)
	assert.Equal(t, TagICalendar, root.Tag)
	assert.Equal(t, Namespace, root.SelectAttrValue("xmlns", ""))

	name := root.FindElement("./vcalendar/properties/x-wr-calname/text")
	require.NotNil(t, name)
	assert.Equal(t, "Team", name.Text())

	events := root.FindElements("./vcalendar/components/vevent")
	require.Len(t, events, 2)

	first := events[0]
	assert.Equal(t, uid.String(), first.FindElement("./properties/uid/text").Text())
	assert.Equal(t, "2024-10-05T10:00:00Z", first.FindElement("./properties/dtstart/date-time").Text())
	assert.Equal(t, "2024-10-05T12:00:00Z", first.FindElement("./properties/dtend/date-time").Text())
	assert.Equal(t, "2", first.FindElement("./properties/sequence/integer").Text())
	assert.Equal(t, "primary", first.FindElement("./properties/color/text").Text())
	assert.Nil(t, first.FindElement("./properties/dtstart/parameters"))
	assert.Equal(t, "2024-10-05T10:00:00Z", first.FindElement("./properties/recurrence-id/date-time").Text())

	second := events[1]
	assert.Equal(t, "2024-10-05T09:00:00", second.FindElement("./properties/dtstart/date-time").Text())
	assert.Equal(t, "Europe/Berlin", second.FindElement("./properties/dtstart/parameters/tzid/text").Text())
	assert.Equal(t, "TENTATIVE", second.FindElement("./properties/status/text").Text())
	assert.Equal(t, "warning", second.FindElement("./properties/color/text").Text())
	assert.Equal(t, "evt2", second.FindElement("./properties/x-event-id/text").Text())
	assert.Nil(t, second.FindElement("./properties/recurrence-id"))
}

func TestRender_Empty(t *testing.T) {
	doc := Render("", nil)
	root := doc.Root()
	require.NotNil(t, root)
	assert.NotNil(t, root.FindElement("./vcalendar/components"))
	assert.Empty(t, root.FindElements("./vcalendar/components/vevent"))
	assert.Nil(t, root.FindElement("./vcalendar/properties/x-wr-calname"))
}
