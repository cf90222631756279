package calendar

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/cyp0633/librecur/recurrence"
	"github.com/cyp0633/librecur/storage"
	"github.com/samber/mo"
)

// Entry is an occurrence together with the event it belongs to.
type Entry struct {
	EventID string
	Occurrence
}

// Option configures a Resolver or a Service.
type Option func(*options)

type options struct {
	engine *recurrence.Engine
	logger *slog.Logger
}

// WithEngine evaluates rules through engine instead of a default one.
func WithEngine(engine *recurrence.Engine) Option {
	return func(o *options) {
		o.engine = engine
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(&o)
	}
	if o.engine == nil {
		o.engine = recurrence.NewEngine(recurrence.WithLogger(o.logger))
	}
	return o
}

// Resolver lists the occurrences of a calendar's events. It only reads from
// the store.
type Resolver struct {
	store   storage.EventReader
	matcher *Matcher
	engine  *recurrence.Engine
	logger  *slog.Logger
}

// NewResolver creates a Resolver reading from store.
func NewResolver(store storage.EventReader, opts ...Option) *Resolver {
	o := buildOptions(opts)
	return &Resolver{
		store:   store,
		matcher: NewMatcher(o.engine),
		engine:  o.engine,
		logger:  o.logger,
	}
}

// recurringEvent is an event with its rule and exceptions loaded.
type recurringEvent struct {
	event      *storage.Event
	rule       mo.Option[recurrence.Rule]
	exceptions []time.Time
}

func (r *Resolver) load(ctx context.Context, siteID, calendarID string) ([]recurringEvent, error) {
	events, err := r.store.ListEvents(ctx, siteID, calendarID)
	if err != nil {
		return nil, err
	}

	loaded := make([]recurringEvent, 0, len(events))
	for _, ev := range events {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rule, err := r.store.GetRule(ctx, siteID, ev.ID)
		if err != nil {
			return nil, err
		}
		exceptions, err := r.store.ListExceptions(ctx, siteID, ev.ID)
		if err != nil {
			return nil, err
		}
		loaded = append(loaded, recurringEvent{event: ev, rule: rule, exceptions: exceptions})
	}
	return loaded, nil
}

// ListByDate returns the occurrences of the calendar's events on the calendar
// date of day, ordered by start instant and then event ID. Store errors are
// returned unchanged.
func (r *Resolver) ListByDate(ctx context.Context, siteID, calendarID string, day time.Time) ([]Entry, error) {
	events, err := r.load(ctx, siteID, calendarID)
	if err != nil {
		return nil, err
	}

	var entries []Entry
	for _, re := range events {
		occ, ok := r.matcher.Match(re.event, re.rule, re.exceptions, day).Get()
		if !ok {
			continue
		}
		r.logger.Debug("event occurs on date",
			"site_id", siteID,
			"event_id", re.event.ID,
			"date", day.Format(time.DateOnly),
			"start", occ.Start)
		entries = append(entries, Entry{EventID: re.event.ID, Occurrence: occ})
	}
	sortEntries(entries)
	return entries, nil
}

// ListBetween returns every occurrence overlapping [from, to), ordered like
// ListByDate. Recurring events are expanded through the engine, so the
// engine's span and occurrence limits apply per event.
func (r *Resolver) ListBetween(ctx context.Context, siteID, calendarID string, from, to time.Time) ([]Entry, error) {
	if !from.Before(to) {
		return nil, nil
	}
	events, err := r.load(ctx, siteID, calendarID)
	if err != nil {
		return nil, err
	}

	var entries []Entry
	for _, re := range events {
		occs, err := r.expand(re, from, to)
		if err != nil {
			return nil, err
		}
		for _, occ := range occs {
			entries = append(entries, Entry{EventID: re.event.ID, Occurrence: occ})
		}
	}
	sortEntries(entries)
	return entries, nil
}

func (r *Resolver) expand(re recurringEvent, from, to time.Time) ([]Occurrence, error) {
	ev := re.event
	overlaps := func(o Occurrence) bool {
		return o.Start.Before(to) && o.End.After(from)
	}

	rule, ok := re.rule.Get()
	if !ok {
		y, m, d := ev.Start.Date()
		if occ := materialize(ev, y, m, d); overlaps(occ) {
			return []Occurrence{occ}, nil
		}
		return nil, nil
	}

	// An occurrence starting before from can still overlap it.
	lookback := ev.End.Sub(midnight(ev.Start)) + 24*time.Hour
	days, err := r.engine.Expand(rule, midnight(ev.Start), re.exceptions, from.Add(-lookback), to)
	if err != nil {
		return nil, fmt.Errorf("failed to expand event %s: %w", ev.ID, err)
	}

	var occs []Occurrence
	for _, day := range days {
		y, m, d := day.Date()
		if occ := materialize(ev, y, m, d); overlaps(occ) {
			occ.Recurring = true
			occs = append(occs, occ)
		}
	}
	return occs, nil
}

func sortEntries(entries []Entry) {
	slices.SortStableFunc(entries, func(a, b Entry) int {
		if c := a.Start.Compare(b.Start); c != 0 {
			return c
		}
		return strings.Compare(a.EventID, b.EventID)
	})
}
