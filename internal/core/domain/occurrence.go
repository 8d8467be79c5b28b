package domain

import (
	"fmt"
	"time"

	"github.com/SscSPs/recurring_journal_engine/internal/apperrors"
)

// OccurrenceStatus is the processing outcome of one scheduled date.
type OccurrenceStatus string

const (
	OccurrencePending    OccurrenceStatus = "pending"
	OccurrenceProcessing OccurrenceStatus = "processing"
	OccurrenceCompleted  OccurrenceStatus = "completed"
	OccurrenceFailed     OccurrenceStatus = "failed"
	OccurrenceSkipped    OccurrenceStatus = "skipped"
)

// OccurrenceStatuses lists every occurrence status.
var OccurrenceStatuses = []OccurrenceStatus{
	OccurrencePending, OccurrenceProcessing, OccurrenceCompleted, OccurrenceFailed, OccurrenceSkipped,
}

// occurrenceTransitions only ever move forward.
var occurrenceTransitions = map[OccurrenceStatus][]OccurrenceStatus{
	OccurrencePending:    {OccurrenceProcessing, OccurrenceSkipped},
	OccurrenceProcessing: {OccurrenceCompleted, OccurrenceFailed, OccurrenceSkipped},
}

// IsValid reports whether s is a known occurrence status.
func (s OccurrenceStatus) IsValid() bool {
	for _, known := range OccurrenceStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the occurrence has finished processing.
func (s OccurrenceStatus) IsTerminal() bool {
	return s == OccurrenceCompleted || s == OccurrenceFailed || s == OccurrenceSkipped
}

// Occurrence is one scheduled materialization of a definition on a specific date.
type Occurrence struct {
	OccurrenceID     string           `json:"occurrenceID"`
	DefinitionID     string           `json:"definitionID"`
	ScheduledDate    time.Time        `json:"scheduledDate"`
	RunDate          *time.Time       `json:"runDate,omitempty"`
	Status           OccurrenceStatus `json:"status"`
	ErrorMessage     *string          `json:"errorMessage,omitempty"`
	JournalEntryIDs  []string         `json:"journalEntryIDs"`
	RunID            string           `json:"runID"`
	CreatedAt        time.Time        `json:"createdAt"`
	CreatedBy        string           `json:"createdBy"`
	LastTransitionAt time.Time        `json:"lastTransitionAt"`
}

// NewOccurrence creates a pending occurrence for a scheduled date.
func NewOccurrence(id, definitionID, runID string, scheduled time.Time, createdBy string, now time.Time) Occurrence {
	return Occurrence{
		OccurrenceID:     id,
		DefinitionID:     definitionID,
		ScheduledDate:    DateOf(scheduled),
		Status:           OccurrencePending,
		JournalEntryIDs:  []string{},
		RunID:            runID,
		CreatedAt:        now,
		CreatedBy:        createdBy,
		LastTransitionAt: now,
	}
}

func (o *Occurrence) transition(target OccurrenceStatus, now time.Time) error {
	for _, allowed := range occurrenceTransitions[o.Status] {
		if allowed == target {
			o.Status = target
			o.LastTransitionAt = now
			return nil
		}
	}
	return fmt.Errorf("%w: occurrence %s cannot move from %s to %s",
		apperrors.ErrInvalidTransition, o.OccurrenceID, o.Status, target)
}

// MarkProcessing starts processing at runAt.
func (o *Occurrence) MarkProcessing(runAt time.Time) error {
	if err := o.transition(OccurrenceProcessing, runAt); err != nil {
		return err
	}
	o.RunDate = &runAt
	return nil
}

// MarkCompleted records the journal entries created for this occurrence.
func (o *Occurrence) MarkCompleted(entryIDs []string, now time.Time) error {
	if err := o.transition(OccurrenceCompleted, now); err != nil {
		return err
	}
	o.JournalEntryIDs = append([]string{}, entryIDs...)
	return nil
}

// MarkFailed records why processing failed. The date stays due for the next run.
func (o *Occurrence) MarkFailed(message string, now time.Time) error {
	if err := o.transition(OccurrenceFailed, now); err != nil {
		return err
	}
	o.ErrorMessage = &message
	return nil
}

// MarkSkipped records an explicit user decision not to post this date.
func (o *Occurrence) MarkSkipped(reason string, now time.Time) error {
	if err := o.transition(OccurrenceSkipped, now); err != nil {
		return err
	}
	if reason != "" {
		o.ErrorMessage = &reason
	}
	return nil
}

// OccurrenceFilter narrows occurrence listings.
type OccurrenceFilter struct {
	Statuses  []OccurrenceStatus
	Limit     int
	NextToken *string
}

// OccurrenceStats aggregates occurrence outcomes for one definition.
type OccurrenceStats struct {
	DefinitionID     string                   `json:"definitionID"`
	CountsByStatus   map[OccurrenceStatus]int `json:"countsByStatus"`
	Total            int                      `json:"total"`
	LastRunDate      *time.Time               `json:"lastRunDate,omitempty"`
	NextRunDate      *time.Time               `json:"nextRunDate,omitempty"`
	TotalOccurrences int                      `json:"totalOccurrences"`
	Status           DefinitionStatus         `json:"status"`
}
