package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/cyp0633/librecur/calendar"
	"github.com/cyp0633/librecur/internal/config"
	"github.com/cyp0633/librecur/internal/xcal"
	"github.com/cyp0633/librecur/recurrence"
	"github.com/cyp0633/librecur/storage"
	"github.com/cyp0633/librecur/storage/memory"
	"github.com/cyp0633/librecur/storage/sqlstore"
)

const usage = "usage: agenda [YYYY-MM-DD]"

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		log.Fatalf("agenda: %v", err)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) > 1 {
		return fmt.Errorf("%s", usage)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))

	day := time.Now().In(cfg.Location)
	if len(args) == 1 {
		day, err = time.ParseInLocation(time.DateOnly, args[0], cfg.Location)
		if err != nil {
			return fmt.Errorf("invalid date %q: %s", args[0], usage)
		}
	}
	y, m, d := day.Date()
	day = time.Date(y, m, d, 0, 0, 0, 0, cfg.Location)

	engineConfig, ok := recurrence.ConfigByName(cfg.Engine)
	if !ok {
		logger.Warn("unknown engine preset, using default", "engine", cfg.Engine)
		engineConfig = recurrence.DefaultEngineConfig
	}
	engine := recurrence.NewEngineWithConfig(engineConfig, recurrence.WithLogger(logger))
	defer engine.Close()

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	svc := calendar.NewService(store, calendar.WithEngine(engine), calendar.WithLogger(logger))

	cal, err := selectCalendar(ctx, cfg, svc, store, day)
	if err != nil {
		return err
	}

	if cfg.Format == config.FormatICS {
		return svc.ExportICS(ctx, cfg.SiteID, cal.ID, out)
	}

	var entries []calendar.Entry
	if cfg.Days == 1 {
		entries, err = svc.ListByDate(ctx, cfg.SiteID, cal.ID, day)
	} else {
		entries, err = svc.ListBetween(ctx, cfg.SiteID, cal.ID, day, day.AddDate(0, 0, cfg.Days))
	}
	if err != nil {
		return err
	}
	logger.Debug("agenda resolved", "calendar_id", cal.ID, "date", day.Format(time.DateOnly), "entries", len(entries))

	if cfg.Format == config.FormatXCal {
		doc := xcal.Render(cal.Summary, entries)
		doc.Indent(2)
		_, err := doc.WriteTo(out)
		return err
	}
	return printAgenda(out, cal, day, entries)
}

func openStore(ctx context.Context, cfg config.Runtime, logger *slog.Logger) (storage.Storage, func(), error) {
	if cfg.Store != config.StoreMySQL {
		return memory.New(memory.WithLogger(logger)), func() {}, nil
	}

	db := cfg.Database
	conn, err := sqlstore.Open(ctx, sqlstore.Config(db.Host, db.Port, db.User, db.Password, db.Name))
	if err != nil {
		return nil, nil, err
	}
	logger.Info("connected to database", "host", db.Host, "database", db.Name)
	return sqlstore.New(conn, sqlstore.WithLogger(logger)), func() { conn.Close() }, nil
}

// selectCalendar returns the configured calendar. Without one, a calendar is
// created and filled from the import file, or with sample events.
func selectCalendar(ctx context.Context, cfg config.Runtime, svc *calendar.Service, store storage.Storage, day time.Time) (*storage.Calendar, error) {
	if cfg.CalendarID != "" {
		return store.GetCalendar(ctx, cfg.SiteID, cfg.CalendarID)
	}

	if cfg.ImportFile != "" {
		f, err := os.Open(cfg.ImportFile)
		if err != nil {
			return nil, fmt.Errorf("open import file: %w", err)
		}
		defer f.Close()

		cal, err := svc.CreateCalendar(ctx, cfg.SiteID, cfg.ImportFile)
		if err != nil {
			return nil, err
		}
		if _, err := svc.ImportICS(ctx, cfg.SiteID, cal.ID, f); err != nil {
			return nil, err
		}
		return cal, nil
	}

	return setupSample(ctx, svc, cfg.SiteID, day)
}

// setupSample creates a calendar with a few recurring events around day.
func setupSample(ctx context.Context, svc *calendar.Service, siteID string, day time.Time) (*storage.Calendar, error) {
	cal, err := svc.CreateCalendar(ctx, siteID, "Sample")
	if err != nil {
		return nil, err
	}

	at := func(offsetDays, hour, minute int) time.Time {
		y, m, d := day.AddDate(0, 0, offsetDays).Date()
		return time.Date(y, m, d, hour, minute, 0, 0, day.Location())
	}

	samples := []struct {
		summary    string
		start, end time.Time
		rrule      string
		status     storage.Status
	}{
		{"Standup", at(-30, 9, 0), at(-30, 9, 15), "FREQ=WEEKLY;BYDAY=MO,TU,WE,TH,FR", storage.StatusConfirmed},
		{"Gym", at(-7, 18, 30), at(-7, 20, 0), "FREQ=DAILY;INTERVAL=2", storage.StatusTentative},
		{"Book club", at(-60, 19, 0), at(-60, 21, 0), "FREQ=MONTHLY;BYDAY=1SA", storage.StatusConfirmed},
		{"Rent", at(-90, 8, 0), at(-90, 8, 30), "FREQ=MONTHLY;BYMONTHDAY=1", storage.StatusConfirmed},
		{"Dentist", at(0, 14, 0), at(0, 15, 0), "", storage.StatusConfirmed},
	}

	for _, s := range samples {
		ev := &storage.Event{
			SiteID:     siteID,
			CalendarID: cal.ID,
			Summary:    s.summary,
			Start:      s.start,
			End:        s.end,
			Status:     s.status,
		}
		if err := svc.CreateEvent(ctx, ev); err != nil {
			return nil, err
		}
		if s.rrule == "" {
			continue
		}
		if _, err := svc.AttachRule(ctx, siteID, ev.ID, s.rrule); err != nil {
			return nil, err
		}
	}
	return cal, nil
}

func printAgenda(out io.Writer, cal *storage.Calendar, day time.Time, entries []calendar.Entry) error {
	if _, err := fmt.Fprintf(out, "%s, %s\n", cal.Summary, day.Format("Monday 2 January 2006")); err != nil {
		return err
	}
	if len(entries) == 0 {
		_, err := fmt.Fprintln(out, "  nothing scheduled")
		return err
	}
	for _, e := range entries {
		if _, err := fmt.Fprintf(out, "  %s  %s-%s  %-9s  %s\n",
			e.Start.Format(time.DateOnly), e.Start.Format("15:04"), e.End.Format("15:04"), e.Status, e.Summary); err != nil {
			return err
		}
	}
	return nil
}
