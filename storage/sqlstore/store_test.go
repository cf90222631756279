package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/cyp0633/librecur/recurrence"
	"github.com/cyp0633/librecur/storage"
	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 9, 1, 8, 0, 0, 0, time.UTC)

func newStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db, WithClock(func() time.Time { return fixedNow })), mock
}

var eventRowColumns = []string{
	"id", "site_id", "calendar_id", "uid", "summary", "description",
	"starts_at", "ends_at", "tzid", "tz_offset", "status", "sequence", "created_at", "updated_at",
}

func TestStore_CreateCalendar(t *testing.T) {
	store, mock := newStore(t)
	ctx := context.Background()
	cal := storage.NewMockCalendar("site1", "cal1", "Work")

	t.Run("success", func(t *testing.T) {
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO calendars (id, site_id, uid, summary, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)")).
			WithArgs("cal1", "site1", cal.UID, "Work", fixedNow, fixedNow).
			WillReturnResult(sqlmock.NewResult(1, 1))

		require.NoError(t, store.CreateCalendar(ctx, cal))
		assert.Equal(t, fixedNow, cal.Created)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate", func(t *testing.T) {
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO calendars")).
			WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'site1-cal1'"})

		err := store.CreateCalendar(ctx, cal)
		assert.True(t, storage.IsType(err, storage.ErrAlreadyExists), "got %v", err)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("invalid input never reaches the database", func(t *testing.T) {
		err := store.CreateCalendar(ctx, &storage.Calendar{ID: "cal2"})
		assert.True(t, storage.IsType(err, storage.ErrInvalidInput))
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestStore_GetCalendar(t *testing.T) {
	store, mock := newStore(t)
	ctx := context.Background()
	uid := uuid.New()

	t.Run("found", func(t *testing.T) {
		rows := sqlmock.NewRows([]string{"id", "site_id", "uid", "summary", "created_at", "updated_at"}).
			AddRow("cal1", "site1", uid.String(), "Work", fixedNow, fixedNow)
		mock.ExpectQuery(regexp.QuoteMeta("SELECT id, site_id, uid, summary, created_at, updated_at FROM calendars WHERE site_id = ? AND id = ?")).
			WithArgs("site1", "cal1").
			WillReturnRows(rows)

		cal, err := store.GetCalendar(ctx, "site1", "cal1")
		require.NoError(t, err)
		assert.Equal(t, uid, cal.UID)
		assert.Equal(t, "Work", cal.Summary)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("FROM calendars WHERE site_id = ? AND id = ?")).
			WithArgs("site1", "missing").
			WillReturnError(sql.ErrNoRows)

		_, err := store.GetCalendar(ctx, "site1", "missing")
		assert.True(t, storage.IsNotFound(err))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("connection failure", func(t *testing.T) {
		cause := errors.New("connection refused")
		mock.ExpectQuery(regexp.QuoteMeta("FROM calendars")).WillReturnError(cause)

		_, err := store.GetCalendar(ctx, "site1", "cal1")
		assert.True(t, storage.IsType(err, storage.ErrUnavailable))
		assert.ErrorIs(t, err, cause)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestStore_ListEvents(t *testing.T) {
	store, mock := newStore(t)
	ctx := context.Background()

	// 09:00 Berlin summer time is 07:00 UTC
	rows := sqlmock.NewRows(eventRowColumns).
		AddRow("evt1", "site1", "cal1", uuid.New().String(), "Standup", "",
			time.Date(2024, 9, 2, 7, 0, 0, 0, time.UTC), time.Date(2024, 9, 2, 7, 15, 0, 0, time.UTC),
			"Europe/Berlin", 7200, "CONFIRMED", 0, fixedNow, fixedNow).
		AddRow("evt2", "site1", "cal1", uuid.New().String(), "Review", "weekly",
			time.Date(2024, 9, 2, 12, 0, 0, 0, time.UTC), time.Date(2024, 9, 2, 13, 0, 0, 0, time.UTC),
			"Not/AZone", 0, "TENTATIVE", 2, fixedNow, fixedNow)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT " + eventColumns + " FROM events WHERE site_id = ? AND calendar_id = ? ORDER BY starts_at, id")).
		WithArgs("site1", "cal1").
		WillReturnRows(rows)

	events, err := store.ListEvents(ctx, "site1", "cal1")
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, "Europe/Berlin", events[0].Start.Location().String())
	assert.Equal(t, 9, events[0].Start.Hour())
	assert.Equal(t, storage.StatusConfirmed, events[0].Status)

	name, offset := events[1].Start.Zone()
	assert.Equal(t, "Not/AZone", name)
	assert.Equal(t, 0, offset)
	assert.Equal(t, 12, events[1].Start.Hour())
	assert.Equal(t, storage.StatusTentative, events[1].Status)
	assert.Equal(t, 2, events[1].Sequence)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_CreateEvent(t *testing.T) {
	store, mock := newStore(t)
	ctx := context.Background()

	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	start := time.Date(2024, 9, 2, 9, 0, 0, 0, loc)
	ev := storage.NewMockEvent("site1", "cal1", "evt1", "Standup", start, start.Add(time.Hour))
	ev.Status = ""

	t.Run("stores UTC instants with the zone name", func(t *testing.T) {
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO events")).
			WithArgs("evt1", "site1", "cal1", ev.UID, "Standup", "",
				start.UTC(), start.Add(time.Hour).UTC(), "America/New_York", -4*3600, "CONFIRMED", 0, fixedNow, fixedNow).
			WillReturnResult(sqlmock.NewResult(1, 1))

		require.NoError(t, store.CreateEvent(ctx, ev))
		assert.Equal(t, storage.StatusConfirmed, ev.Status)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing calendar", func(t *testing.T) {
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO events")).
			WillReturnError(&mysql.MySQLError{Number: 1452, Message: "Cannot add or update a child row"})

		err := store.CreateEvent(ctx, ev)
		assert.True(t, storage.IsNotFound(err), "got %v", err)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestStore_FixedOffsetEvent(t *testing.T) {
	store, mock := newStore(t)
	ctx := context.Background()

	// 22:00 at -05:00 is 03:00 UTC on the next day
	zone := time.FixedZone("", -5*3600)
	start := time.Date(2024, 9, 1, 22, 0, 0, 0, zone)
	ev := storage.NewMockEvent("site1", "cal1", "evt1", "Late call", start, start.Add(time.Hour))

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO events")).
		WithArgs("evt1", "site1", "cal1", ev.UID, "Late call", "",
			start.UTC(), start.Add(time.Hour).UTC(), "", -5*3600, "CONFIRMED", 0, fixedNow, fixedNow).
		WillReturnResult(sqlmock.NewResult(1, 1))
	require.NoError(t, store.CreateEvent(ctx, ev))

	mock.ExpectQuery(regexp.QuoteMeta("SELECT " + eventColumns + " FROM events WHERE site_id = ? AND id = ?")).
		WithArgs("site1", "evt1").
		WillReturnRows(sqlmock.NewRows(eventRowColumns).
			AddRow("evt1", "site1", "cal1", ev.UID.String(), "Late call", "",
				start.UTC(), start.Add(time.Hour).UTC(), "", -5*3600, "CONFIRMED", 0, fixedNow, fixedNow))

	got, err := store.GetEvent(ctx, "site1", "evt1")
	require.NoError(t, err)
	y, m, d := got.Start.Date()
	assert.Equal(t, []int{2024, 9, 1}, []int{y, int(m), d})
	assert.Equal(t, 22, got.Start.Hour())
	_, offset := got.End.Zone()
	assert.Equal(t, -5*3600, offset)
	assert.True(t, got.Start.Equal(start))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_UpdateAndDeleteEvent(t *testing.T) {
	store, mock := newStore(t)
	ctx := context.Background()

	start := time.Date(2024, 9, 2, 9, 0, 0, 0, time.UTC)
	ev := storage.NewMockEvent("site1", "cal1", "evt1", "Standup", start, start.Add(time.Hour))

	mock.ExpectExec(regexp.QuoteMeta("UPDATE events SET")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, store.UpdateEvent(ctx, ev))
	assert.Equal(t, fixedNow, ev.Modified)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE events SET")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.True(t, storage.IsNotFound(store.UpdateEvent(ctx, ev)))

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM events WHERE site_id = ? AND id = ?")).
		WithArgs("site1", "evt1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, store.DeleteEvent(ctx, "site1", "evt1"))

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM events")).
		WithArgs("site1", "evt1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.True(t, storage.IsNotFound(store.DeleteEvent(ctx, "site1", "evt1")))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Rules(t *testing.T) {
	store, mock := newStore(t)
	ctx := context.Background()
	query := regexp.QuoteMeta("SELECT r.rrule FROM events e LEFT JOIN recurrence_rules r")

	t.Run("stored rule", func(t *testing.T) {
		mock.ExpectQuery(query).
			WithArgs("site1", "evt1").
			WillReturnRows(sqlmock.NewRows([]string{"rrule"}).AddRow("FREQ=MONTHLY;BYDAY=1SA"))

		rule, err := store.GetRule(ctx, "site1", "evt1")
		require.NoError(t, err)
		got, ok := rule.Get()
		require.True(t, ok)
		assert.True(t, got.Equal(recurrence.MonthlyOnOrdinal(1, recurrence.Nth(1, time.Saturday))))
	})

	t.Run("one-off event", func(t *testing.T) {
		mock.ExpectQuery(query).
			WithArgs("site1", "evt2").
			WillReturnRows(sqlmock.NewRows([]string{"rrule"}).AddRow(nil))

		rule, err := store.GetRule(ctx, "site1", "evt2")
		require.NoError(t, err)
		assert.False(t, rule.IsPresent())
	})

	t.Run("unknown event", func(t *testing.T) {
		mock.ExpectQuery(query).
			WithArgs("site1", "missing").
			WillReturnError(sql.ErrNoRows)

		_, err := store.GetRule(ctx, "site1", "missing")
		assert.True(t, storage.IsNotFound(err))
	})

	t.Run("corrupt rule", func(t *testing.T) {
		mock.ExpectQuery(query).
			WithArgs("site1", "evt3").
			WillReturnRows(sqlmock.NewRows([]string{"rrule"}).AddRow("FREQ=HOURLY"))

		_, err := store.GetRule(ctx, "site1", "evt3")
		assert.True(t, storage.IsType(err, storage.ErrInvalidInput))
		assert.ErrorIs(t, err, recurrence.ErrMalformedRule)
	})

	t.Run("set rule", func(t *testing.T) {
		rule := recurrence.Weekly(2, time.Monday, time.Wednesday).WithCount(10)
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO recurrence_rules (site_id, event_id, rrule) VALUES (?, ?, ?) ON DUPLICATE KEY UPDATE")).
			WithArgs("site1", "evt1", rule.String()).
			WillReturnResult(sqlmock.NewResult(1, 1))

		require.NoError(t, store.SetRule(ctx, "site1", "evt1", mo.Some(rule)))
	})

	t.Run("clear rule", func(t *testing.T) {
		mock.ExpectExec(regexp.QuoteMeta("DELETE FROM recurrence_rules WHERE site_id = ? AND event_id = ?")).
			WithArgs("site1", "evt1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, store.SetRule(ctx, "site1", "evt1", mo.None[recurrence.Rule]()))
	})

	t.Run("invalid rule is rejected before the database", func(t *testing.T) {
		err := store.SetRule(ctx, "site1", "evt1", mo.Some(recurrence.Rule{}))
		assert.True(t, storage.IsType(err, storage.ErrInvalidInput))
	})

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Exceptions(t *testing.T) {
	store, mock := newStore(t)
	ctx := context.Background()
	exDate := time.Date(2024, 10, 5, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO exception_dates (id, site_id, event_id, exception_date) VALUES (?, ?, ?, ?)")).
		WithArgs("ex1", "site1", "evt1", exDate).
		WillReturnResult(sqlmock.NewResult(1, 1))
	require.NoError(t, store.AddException(ctx, &storage.ExceptionDate{ID: "ex1", SiteID: "site1", EventID: "evt1", Date: exDate}))

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO exception_dates")).
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})
	err := store.AddException(ctx, &storage.ExceptionDate{ID: "ex2", SiteID: "site1", EventID: "evt1", Date: exDate})
	assert.True(t, storage.IsType(err, storage.ErrAlreadyExists))

	mock.ExpectQuery(regexp.QuoteMeta("SELECT exception_date FROM exception_dates WHERE site_id = ? AND event_id = ? ORDER BY exception_date")).
		WithArgs("site1", "evt1").
		WillReturnRows(sqlmock.NewRows([]string{"exception_date"}).AddRow(exDate))
	dates, err := store.ListExceptions(ctx, "site1", "evt1")
	require.NoError(t, err)
	require.Len(t, dates, 1)
	assert.True(t, dates[0].Equal(exDate))
	assert.True(t, recurrence.IsDateOnly(dates[0]))

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM exception_dates")).
		WithArgs("site1", "evt1", exDate).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, store.DeleteException(ctx, "site1", "evt1", exDate))

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM exception_dates")).
		WithArgs("site1", "evt1", exDate).
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.True(t, storage.IsNotFound(store.DeleteException(ctx, "site1", "evt1", exDate)))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestConfig(t *testing.T) {
	cfg := Config("db.internal", 3306, "agenda", "secret", "librecur")
	dsn := cfg.FormatDSN()
	assert.Contains(t, dsn, "agenda:secret@tcp(db.internal:3306)/librecur")
	assert.Contains(t, dsn, "parseTime=true")
}
