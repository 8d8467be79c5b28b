package schedule

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/SscSPs/recurring_journal_engine/internal/apperrors"
	"github.com/SscSPs/recurring_journal_engine/internal/core/domain"
	"github.com/SscSPs/recurring_journal_engine/internal/core/ports/gateways"
)

// PreviewItem is one projected run date.
type PreviewItem struct {
	Date      time.Time `json:"date"`
	IsWeekend bool      `json:"isWeekend"`
	IsHoliday bool      `json:"isHoliday"`
}

// Previewer projects future run dates without touching any state.
type Previewer struct {
	calc     *Calculator
	holidays gateways.HolidayCalendar
}

// NewPreviewer creates a Previewer. A nil calendar reports no holidays.
func NewPreviewer(calc *Calculator, holidays gateways.HolidayCalendar) *Previewer {
	return &Previewer{calc: calc, holidays: holidays}
}

// Dates yields the remaining schedule of def, starting at its next run date (or start date)
// and skipping dates before from. The sequence ends at the end condition. It is finite only
// when the definition has an end condition, so callers bound it. Each range starts over.
func (p *Previewer) Dates(def domain.RecurringJournalDefinition, from *time.Time) iter.Seq2[time.Time, error] {
	return func(yield func(time.Time, error) bool) {
		if def.Status.IsTerminal() {
			return
		}
		current := def.ScheduleAnchor()
		if def.NextRunDate == nil {
			first, err := p.calc.FirstRunDate(&def)
			if err != nil {
				yield(time.Time{}, err)
				return
			}
			if first == nil {
				return
			}
			current = *first
		}

		remaining := def.RemainingOccurrences()
		for remaining != 0 && !def.BeyondEndDate(current) {
			// dates before from still use up the occurrence budget
			if from == nil || !current.Before(domain.DateOf(*from)) {
				if !yield(current, nil) {
					return
				}
			}
			if remaining > 0 {
				remaining--
			}
			next, err := p.calc.Advance(&def, current)
			if err != nil {
				yield(time.Time{}, err)
				return
			}
			current = next
		}
	}
}

// Preview returns at most limit projected dates, flagged for weekends and holidays.
func (p *Previewer) Preview(ctx context.Context, def domain.RecurringJournalDefinition, limit int, from *time.Time) ([]PreviewItem, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: preview limit must be positive", apperrors.ErrValidation)
	}
	items := make([]PreviewItem, 0, limit)
	for date, err := range p.Dates(def, from) {
		if err != nil {
			return nil, err
		}
		holiday, err := p.isHoliday(ctx, date)
		if err != nil {
			return nil, fmt.Errorf("failed to check holiday calendar for %s: %w", domain.FormatDate(date), err)
		}
		items = append(items, PreviewItem{
			Date:      date,
			IsWeekend: domain.IsWeekend(date),
			IsHoliday: holiday,
		})
		if len(items) == limit {
			break
		}
	}
	return items, nil
}

func (p *Previewer) isHoliday(ctx context.Context, date time.Time) (bool, error) {
	if p.holidays == nil {
		return false, nil
	}
	return p.holidays.IsHoliday(ctx, date)
}
