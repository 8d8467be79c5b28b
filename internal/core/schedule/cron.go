package schedule

import (
	"fmt"
	"time"

	"github.com/SscSPs/recurring_journal_engine/internal/apperrors"
	"github.com/SscSPs/recurring_journal_engine/internal/core/domain"
	"github.com/robfig/cron/v3"
)

// CronAdvancer drives the custom frequency from a standard 5-field cron expression
// (minute hour day-of-month month day-of-week) or a descriptor such as @monthly.
// Only the day of a match matters; interval counts matching days.
type CronAdvancer struct {
	parser cron.Parser
}

// NewCronAdvancer creates a CronAdvancer with the standard parser.
func NewCronAdvancer() *CronAdvancer {
	return &CronAdvancer{
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

// Validate checks that the definition's expression parses.
func (a *CronAdvancer) Validate(def *domain.RecurringJournalDefinition) error {
	if _, err := a.parser.Parse(def.CustomSchedule); err != nil {
		return fmt.Errorf("%w: invalid custom schedule '%s': %v", apperrors.ErrConfiguration, def.CustomSchedule, err)
	}
	return nil
}

// Advance returns the interval-th matching day after from.
func (a *CronAdvancer) Advance(def *domain.RecurringJournalDefinition, from time.Time) (time.Time, error) {
	sched, err := a.parser.Parse(def.CustomSchedule)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid custom schedule '%s': %v", apperrors.ErrConfiguration, def.CustomSchedule, err)
	}
	current := domain.DateOf(from)
	for i := 0; i < def.Interval; i++ {
		// search from the last instant of the current day so the next match lands on a later day
		next := sched.Next(current.Add(24*time.Hour - time.Nanosecond))
		if next.IsZero() {
			return time.Time{}, fmt.Errorf("%w: custom schedule '%s' has no occurrence after %s",
				apperrors.ErrConfiguration, def.CustomSchedule, domain.FormatDate(current))
		}
		current = domain.DateOf(next)
	}
	return current, nil
}
