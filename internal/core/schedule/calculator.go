// Package schedule computes run dates for recurring journal definitions.
package schedule

import (
	"fmt"
	"time"

	"github.com/SscSPs/recurring_journal_engine/internal/apperrors"
	"github.com/SscSPs/recurring_journal_engine/internal/core/domain"
)

// Advancer moves a date one scheduling step forward for a definition.
// The returned date must be strictly after from.
type Advancer interface {
	Advance(def *domain.RecurringJournalDefinition, from time.Time) (time.Time, error)
}

// AdvancerFunc adapts a function to the Advancer interface.
type AdvancerFunc func(def *domain.RecurringJournalDefinition, from time.Time) (time.Time, error)

// Advance implements Advancer.
func (f AdvancerFunc) Advance(def *domain.RecurringJournalDefinition, from time.Time) (time.Time, error) {
	return f(def, from)
}

// Calculator dispatches date arithmetic to a strategy per frequency.
type Calculator struct {
	strategies map[domain.Frequency]Advancer
}

// Option configures a Calculator.
type Option func(*Calculator)

// WithStrategy replaces the advancer used for a frequency.
func WithStrategy(freq domain.Frequency, a Advancer) Option {
	return func(c *Calculator) {
		c.strategies[freq] = a
	}
}

// WithCustomAdvancer replaces the strategy behind the custom frequency.
func WithCustomAdvancer(a Advancer) Option {
	return WithStrategy(domain.Custom, a)
}

// NewCalculator builds a calculator with the standard strategy table. Custom frequencies
// are driven by the definition's cron expression unless another advancer is supplied.
func NewCalculator(opts ...Option) *Calculator {
	c := &Calculator{
		strategies: map[domain.Frequency]Advancer{
			domain.Daily:        dayStep(1),
			domain.Weekly:       dayStep(7),
			domain.Biweekly:     dayStep(14),
			domain.Monthly:      monthStep(1),
			domain.Quarterly:    monthStep(3),
			domain.SemiAnnually: monthStep(6),
			domain.Annually:     monthStep(12),
			domain.Custom:       NewCronAdvancer(),
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Validate checks a definition's recurrence configuration, including anything the
// frequency strategy itself needs. Called when a definition is created or updated.
func (c *Calculator) Validate(def *domain.RecurringJournalDefinition) error {
	if err := def.ValidateConfig(); err != nil {
		return err
	}
	strategy, ok := c.strategies[def.Frequency]
	if !ok {
		return fmt.Errorf("%w: no strategy registered for frequency '%s'", apperrors.ErrConfiguration, def.Frequency)
	}
	if v, ok := strategy.(interface {
		Validate(def *domain.RecurringJournalDefinition) error
	}); ok {
		return v.Validate(def)
	}
	return nil
}

// Advance returns the date one step after from, ignoring end conditions.
func (c *Calculator) Advance(def *domain.RecurringJournalDefinition, from time.Time) (time.Time, error) {
	if def.Interval <= 0 {
		return time.Time{}, fmt.Errorf("%w: interval must be positive, got %d", apperrors.ErrConfiguration, def.Interval)
	}
	strategy, ok := c.strategies[def.Frequency]
	if !ok {
		return time.Time{}, fmt.Errorf("%w: no strategy registered for frequency '%s'", apperrors.ErrConfiguration, def.Frequency)
	}
	from = domain.DateOf(from)
	next, err := strategy.Advance(def, from)
	if err != nil {
		return time.Time{}, err
	}
	next = domain.DateOf(next)
	if !next.After(from) {
		return time.Time{}, fmt.Errorf("%w: %s strategy did not move past %s", apperrors.ErrConfiguration,
			def.Frequency, domain.FormatDate(from))
	}
	return next, nil
}

// NextRunDate computes the run date after from. It returns nil when the candidate falls
// after an on_date end condition, in which case the caller completes the definition.
// The after_occurrences condition is the caller's to check against the run count.
//
// Month-based frequencies land on the start date's day of month, not on from's day.
// With a start on the 31st, NextRunDate(def, Jan 15) is Feb 29 (clamped), not Feb 15.
func (c *Calculator) NextRunDate(def *domain.RecurringJournalDefinition, from time.Time) (*time.Time, error) {
	next, err := c.Advance(def, from)
	if err != nil {
		return nil, err
	}
	if def.BeyondEndDate(next) {
		return nil, nil
	}
	return &next, nil
}

// FirstRunDate derives the initial next run date of a new definition from its start date.
func (c *Calculator) FirstRunDate(def *domain.RecurringJournalDefinition) (*time.Time, error) {
	first := domain.DateOf(def.StartDate)
	if def.Frequency == domain.Custom {
		// the start date need not match the expression; take the first matching day on or after it
		single := *def
		single.Interval = 1
		next, err := c.Advance(&single, first.AddDate(0, 0, -1))
		if err != nil {
			return nil, err
		}
		first = next
	}
	if def.BeyondEndDate(first) {
		return nil, nil
	}
	return &first, nil
}

// FirstOnOrAfter walks the schedule from the definition's anchor to the first date that is
// not before target. Used to re-anchor a resumed definition.
func (c *Calculator) FirstOnOrAfter(def *domain.RecurringJournalDefinition, target time.Time) (*time.Time, error) {
	target = domain.DateOf(target)
	current := def.ScheduleAnchor()
	for current.Before(target) {
		next, err := c.Advance(def, current)
		if err != nil {
			return nil, err
		}
		current = next
	}
	if def.BeyondEndDate(current) {
		return nil, nil
	}
	return &current, nil
}

func dayStep(days int) Advancer {
	return AdvancerFunc(func(def *domain.RecurringJournalDefinition, from time.Time) (time.Time, error) {
		return from.AddDate(0, 0, days*def.Interval), nil
	})
}

// monthStep anchors on the start date's day of month so a clamped date (Jan 31 -> Feb 29)
// returns to the anchor day once the month is long enough (-> Mar 31).
func monthStep(months int) Advancer {
	return AdvancerFunc(func(def *domain.RecurringJournalDefinition, from time.Time) (time.Time, error) {
		anchorDay := def.StartDate.Day()
		return AddMonthsClamped(from, months*def.Interval, anchorDay), nil
	})
}

// AddMonthsClamped adds months to from and places the result on anchorDay, clamped to the
// last day of the target month.
func AddMonthsClamped(from time.Time, months int, anchorDay int) time.Time {
	total := int(from.Month()) - 1 + months
	year := from.Year() + total/12
	month := time.Month(total%12 + 1)
	if total < 0 {
		year = from.Year() + (total-11)/12
		month = time.Month((total%12+12)%12 + 1)
	}
	day := anchorDay
	if last := DaysIn(year, month); day > last {
		day = last
	}
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// DaysIn returns the number of days in the given month.
func DaysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
