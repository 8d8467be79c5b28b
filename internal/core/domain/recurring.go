package domain

import (
	"fmt"
	"time"

	"github.com/SscSPs/recurring_journal_engine/internal/apperrors"
)

// Frequency is the cadence unit of a recurring journal definition.
type Frequency string

const (
	Daily        Frequency = "daily"
	Weekly       Frequency = "weekly"
	Biweekly     Frequency = "biweekly"
	Monthly      Frequency = "monthly"
	Quarterly    Frequency = "quarterly"
	SemiAnnually Frequency = "semi_annually"
	Annually     Frequency = "annually"
	Custom       Frequency = "custom"
)

// Frequencies lists every supported frequency in display order.
var Frequencies = []Frequency{Daily, Weekly, Biweekly, Monthly, Quarterly, SemiAnnually, Annually, Custom}

// IsValid reports whether f is a known frequency.
func (f Frequency) IsValid() bool {
	for _, known := range Frequencies {
		if f == known {
			return true
		}
	}
	return false
}

// EndType decides when a definition stops producing occurrences.
type EndType string

const (
	EndNever            EndType = "never"
	EndAfterOccurrences EndType = "after_occurrences"
	EndOnDate           EndType = "on_date"
)

// IsValid reports whether e is a known end type.
func (e EndType) IsValid() bool {
	switch e {
	case EndNever, EndAfterOccurrences, EndOnDate:
		return true
	}
	return false
}

// RecurringJournalDefinition describes a journal entry that is posted on a schedule.
// The template is owned exclusively by the definition.
type RecurringJournalDefinition struct {
	DefinitionID        string           `json:"definitionID"`
	WorkplaceID         string           `json:"workplaceID"`
	Name                string           `json:"name"`
	Description         string           `json:"description"`
	Frequency           Frequency        `json:"frequency"`
	Interval            int              `json:"interval"`
	CustomSchedule      string           `json:"customSchedule,omitempty"` // cron spec, only for custom frequency
	StartDate           time.Time        `json:"startDate"`
	EndType             EndType          `json:"endType"`
	EndAfterOccurrences *int             `json:"endAfterOccurrences,omitempty"`
	EndDate             *time.Time       `json:"endDate,omitempty"`
	Status              DefinitionStatus `json:"status"`
	LastRunDate         *time.Time       `json:"lastRunDate,omitempty"`
	NextRunDate         *time.Time       `json:"nextRunDate,omitempty"`
	TotalOccurrences    int              `json:"totalOccurrences"`
	Template            EntryTemplate    `json:"template"`
	AuditFields
}

// ValidateConfig checks the recurrence configuration. It runs on create and update only.
func (d *RecurringJournalDefinition) ValidateConfig() error {
	if !d.Frequency.IsValid() {
		return fmt.Errorf("%w: unknown frequency '%s'", apperrors.ErrConfiguration, d.Frequency)
	}
	if d.Interval <= 0 {
		return fmt.Errorf("%w: interval must be positive, got %d", apperrors.ErrConfiguration, d.Interval)
	}
	if d.StartDate.IsZero() {
		return fmt.Errorf("%w: start date is required", apperrors.ErrConfiguration)
	}
	if d.Frequency == Custom && d.CustomSchedule == "" {
		return fmt.Errorf("%w: custom frequency requires a schedule expression", apperrors.ErrConfiguration)
	}
	if !d.EndType.IsValid() {
		return fmt.Errorf("%w: unknown end type '%s'", apperrors.ErrConfiguration, d.EndType)
	}
	switch d.EndType {
	case EndAfterOccurrences:
		if d.EndAfterOccurrences == nil || *d.EndAfterOccurrences <= 0 {
			return fmt.Errorf("%w: end after occurrences must be a positive number", apperrors.ErrConfiguration)
		}
	case EndOnDate:
		if d.EndDate == nil {
			return fmt.Errorf("%w: end date is required for end type on_date", apperrors.ErrConfiguration)
		}
	}
	if d.EndDate != nil && DateOf(d.StartDate).After(DateOf(*d.EndDate)) {
		return fmt.Errorf("%w: start date %s is after end date %s", apperrors.ErrConfiguration,
			FormatDate(d.StartDate), FormatDate(*d.EndDate))
	}
	return nil
}

// OccurrenceLimitReached reports whether an after_occurrences definition has used up its runs.
func (d *RecurringJournalDefinition) OccurrenceLimitReached() bool {
	return d.EndType == EndAfterOccurrences && d.EndAfterOccurrences != nil &&
		d.TotalOccurrences >= *d.EndAfterOccurrences
}

// RemainingOccurrences returns how many more occurrences the end condition allows,
// or -1 when the count is unbounded.
func (d *RecurringJournalDefinition) RemainingOccurrences() int {
	if d.EndType != EndAfterOccurrences || d.EndAfterOccurrences == nil {
		return -1
	}
	remaining := *d.EndAfterOccurrences - d.TotalOccurrences
	if remaining < 0 {
		return 0
	}
	return remaining
}

// BeyondEndDate reports whether date falls after an on_date end condition.
func (d *RecurringJournalDefinition) BeyondEndDate(date time.Time) bool {
	return d.EndType == EndOnDate && d.EndDate != nil && DateOf(date).After(DateOf(*d.EndDate))
}

// ScheduleAnchor is the date the schedule continues from: the next run date when known,
// otherwise the start date.
func (d *RecurringJournalDefinition) ScheduleAnchor() time.Time {
	if d.NextRunDate != nil {
		return DateOf(*d.NextRunDate)
	}
	return DateOf(d.StartDate)
}

// ScheduleState is the subset of definition fields a run is allowed to change.
type ScheduleState struct {
	Status           DefinitionStatus
	LastRunDate      *time.Time
	NextRunDate      *time.Time
	TotalOccurrences int
	UpdatedAt        time.Time
	UpdatedBy        string
}

// ScheduleState extracts the run-mutable fields of the definition.
func (d *RecurringJournalDefinition) ScheduleState() ScheduleState {
	return ScheduleState{
		Status:           d.Status,
		LastRunDate:      d.LastRunDate,
		NextRunDate:      d.NextRunDate,
		TotalOccurrences: d.TotalOccurrences,
		UpdatedAt:        d.LastUpdatedAt,
		UpdatedBy:        d.LastUpdatedBy,
	}
}

// DefinitionFilter narrows definition listings.
type DefinitionFilter struct {
	WorkplaceID string
	Statuses    []DefinitionStatus
	Limit       int
	Offset      int
}

// DueCursor is the position after the last definition of a due listing page.
// Due listings are ordered by next run date, then definition id.
type DueCursor struct {
	NextRunDate  time.Time
	DefinitionID string
}

// After reports whether def sorts after the cursor in a due listing.
func (c DueCursor) After(def RecurringJournalDefinition) bool {
	if def.NextRunDate == nil {
		return false
	}
	if !def.NextRunDate.Equal(c.NextRunDate) {
		return def.NextRunDate.After(c.NextRunDate)
	}
	return def.DefinitionID > c.DefinitionID
}
