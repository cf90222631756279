package recurrence

import (
	"fmt"
	"io"
	"iter"
	"log/slog"
	"time"

	"github.com/teambition/rrule-go"
)

// Engine evaluates rules with an optional month cache and expands them over
// ranges. An Engine is safe for concurrent use.
type Engine struct {
	cache  *MonthCache
	config EngineConfig
	logger *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func defaultLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// NewEngine creates a new recurrence engine with DefaultEngineConfig
func NewEngine(opts ...Option) *Engine {
	return NewEngineWithConfig(DefaultEngineConfig, opts...)
}

// Config returns the configuration the engine was built with.
func (e *Engine) Config() EngineConfig {
	return e.config
}

// CacheStats reports month cache usage. It is zero when caching is off.
func (e *Engine) CacheStats() CacheStats {
	if e.cache == nil {
		return CacheStats{}
	}
	return e.cache.Stats()
}

// Close releases the month cache.
func (e *Engine) Close() {
	if e.cache != nil {
		e.cache.Close()
	}
}

func (e *Engine) resolver() ordinalResolver {
	if e.cache == nil {
		return resolveOrdinals
	}
	return e.cache.Resolve
}

// OccursOn is Rule.OccursOn with ordinal resolution served from the cache.
func (e *Engine) OccursOn(rule Rule, anchor, day time.Time) bool {
	return rule.occursOn(anchor, day, e.resolver())
}

// Occurrences is Rule.Occurrences with ordinal resolution served from the
// cache.
func (e *Engine) Occurrences(rule Rule, anchor time.Time) iter.Seq[time.Time] {
	return rule.sequence(anchor, e.resolver())
}

// Expand returns the occurrences of rule anchored at start whose start falls
// in [from, to), skipping the dates listed in exceptions. The range is cut to
// MaxExpansionSpan and the result to MaxExpansionOccurrences.
func (e *Engine) Expand(rule Rule, start time.Time, exceptions []time.Time, from, to time.Time) ([]time.Time, error) {
	if err := rule.Validate(); err != nil {
		return nil, fmt.Errorf("failed to expand rule %q: %w", rule, err)
	}
	if !from.Before(to) {
		return nil, nil
	}
	if rule.Terminator.Kind == EndCount && rule.Terminator.Count == 0 {
		return nil, nil
	}

	if span := e.config.MaxExpansionSpan; span > 0 && to.Sub(from) > span {
		e.logger.Debug("expansion range limited",
			"rule", rule.String(),
			"from", from,
			"to", to,
			"span", span)
		to = from.Add(span)
	}

	rr, err := rrule.NewRRule(rule.ROption(start))
	if err != nil {
		return nil, fmt.Errorf("failed to build rrule for %q: %w", rule, err)
	}
	set := &rrule.Set{}
	set.RRule(rr)

	var occurrences []time.Time
	for _, occ := range set.Between(from, to, true) {
		if !occ.Before(to) || Excluded(occ, exceptions) {
			continue
		}
		occurrences = append(occurrences, occ)
		if limit := e.config.MaxExpansionOccurrences; limit > 0 && len(occurrences) >= limit {
			e.logger.Warn("expansion truncated",
				"rule", rule.String(),
				"limit", limit)
			break
		}
	}
	return occurrences, nil
}

var rruleWeekdays = [...]rrule.Weekday{rrule.SU, rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA}

// ROption translates r into rrule-go options anchored at anchor. Defaults
// taken from the anchor are spelled out so both evaluators agree.
func (r Rule) ROption(anchor time.Time) rrule.ROption {
	opt := rrule.ROption{
		Dtstart:  anchor,
		Interval: r.Interval,
		Wkst:     rrule.SU,
	}

	switch r.Frequency {
	case FreqDaily:
		opt.Freq = rrule.DAILY
	case FreqWeekly:
		opt.Freq = rrule.WEEKLY
		for _, d := range r.weekdaysOr(anchor).Days() {
			opt.Byweekday = append(opt.Byweekday, rruleWeekdays[d])
		}
	case FreqMonthly:
		opt.Freq = rrule.MONTHLY
		opt.Bymonthday = []int{r.monthDayOr(anchor)}
	case FreqMonthlyByOrdinalWeekday:
		opt.Freq = rrule.MONTHLY
		opt.Byweekday = r.rruleOrdinals()
	case FreqYearly:
		opt.Freq = rrule.YEARLY
		opt.Bymonth = r.rruleMonths(anchor)
		opt.Bymonthday = []int{r.monthDayOr(anchor)}
	case FreqYearlyByOrdinalWeekday:
		opt.Freq = rrule.YEARLY
		opt.Bymonth = r.rruleMonths(anchor)
		opt.Byweekday = r.rruleOrdinals()
	}

	switch r.Terminator.Kind {
	case EndUntil:
		opt.Until = r.Terminator.Until
	case EndCount:
		opt.Count = r.Terminator.Count
	}
	return opt
}

func (r Rule) rruleOrdinals() []rrule.Weekday {
	days := make([]rrule.Weekday, len(r.Ordinals))
	for i, o := range r.Ordinals {
		days[i] = rruleWeekdays[o.Weekday].Nth(o.Ordinal)
	}
	return days
}

func (r Rule) rruleMonths(anchor time.Time) []int {
	months := r.monthsOr(anchor).Months()
	out := make([]int, len(months))
	for i, m := range months {
		out[i] = int(m)
	}
	return out
}
