/*
Package calendar answers which events of a calendar occur on a given date and
manages the events, rules and exceptions behind that answer.

# Basic Usage

	store := memory.New()
	svc := calendar.NewService(store)

	cal, _ := svc.CreateCalendar(ctx, "site1", "Club")
	ev := &storage.Event{
		SiteID:     "site1",
		CalendarID: cal.ID,
		Summary:    "Saturday meetup",
		Start:      time.Date(2024, 9, 7, 10, 0, 0, 0, time.UTC),
		End:        time.Date(2024, 9, 7, 12, 0, 0, 0, time.UTC),
	}
	_ = svc.CreateEvent(ctx, ev)
	_, _ = svc.AttachRule(ctx, "site1", ev.ID, "FREQ=MONTHLY;BYDAY=1SA")

	entries, err := svc.ListByDate(ctx, "site1", cal.ID, time.Date(2024, 10, 5, 0, 0, 0, 0, time.UTC))

Each Entry carries the occurrence moved to the requested date, with the
event's wall-clock start and end times.

A Resolver only needs a storage.EventReader and never writes.
*/
package calendar
