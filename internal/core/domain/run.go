package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// RunOptions controls one invocation of the run executor.
type RunOptions struct {
	// RunDate is the as-of date for deciding whether an occurrence is due. Defaults to the clock.
	RunDate *time.Time
	// RunID replays a previous invocation when set. A fresh id is generated otherwise.
	RunID              string
	DryRun             bool
	NotifyOnCompletion bool
	// ExchangeRate overrides the provider rate when the template currency differs from the posting currency.
	ExchangeRate *decimal.Decimal
	RequestedBy  string
}

// RunResult is what a caller gets back from one invocation.
type RunResult struct {
	Success               bool                `json:"success"`
	Message               string              `json:"message"`
	CreatedJournalEntries []string            `json:"createdJournalEntries"`
	Drafts                []JournalEntryDraft `json:"drafts,omitempty"`
	Errors                []string            `json:"errors"`
	DryRun                bool                `json:"dryRun"`
	RunID                 string              `json:"runID"`
	RunAt                 time.Time           `json:"runAt"`
	DefinitionID          string              `json:"definitionID"`
	ScheduledDate         *time.Time          `json:"scheduledDate,omitempty"`
	OccurrenceID          string              `json:"occurrenceID,omitempty"`
}

// ResultFromOccurrence rebuilds the result of a committed run from its occurrence record.
// Replays of a completed run return this instead of posting again.
func ResultFromOccurrence(o Occurrence) RunResult {
	scheduled := o.ScheduledDate
	result := RunResult{
		CreatedJournalEntries: append([]string{}, o.JournalEntryIDs...),
		Errors:                []string{},
		RunID:                 o.RunID,
		DefinitionID:          o.DefinitionID,
		ScheduledDate:         &scheduled,
		OccurrenceID:          o.OccurrenceID,
	}
	if o.RunDate != nil {
		result.RunAt = *o.RunDate
	}
	switch o.Status {
	case OccurrenceCompleted:
		result.Success = true
		result.Message = fmt.Sprintf("posted %d journal entries for %s", len(o.JournalEntryIDs), FormatDate(o.ScheduledDate))
	case OccurrenceFailed:
		result.Message = fmt.Sprintf("posting failed for %s", FormatDate(o.ScheduledDate))
		if o.ErrorMessage != nil {
			result.Errors = append(result.Errors, *o.ErrorMessage)
		}
	default:
		result.Message = fmt.Sprintf("occurrence for %s is %s", FormatDate(o.ScheduledDate), o.Status)
	}
	return result
}

// RunPhase is the progress of a single invocation.
type RunPhase string

const (
	PhaseNotStarted    RunPhase = "not_started"
	PhasePreviewing    RunPhase = "previewing"
	PhaseMaterializing RunPhase = "materializing"
	PhasePosting       RunPhase = "posting"
	PhaseCompleted     RunPhase = "completed"
	PhaseFailed        RunPhase = "failed"
)

var runPhaseTransitions = map[RunPhase][]RunPhase{
	PhaseNotStarted:    {PhasePreviewing, PhaseFailed},
	PhasePreviewing:    {PhaseMaterializing, PhaseCompleted, PhaseFailed},
	PhaseMaterializing: {PhasePosting, PhaseCompleted, PhaseFailed},
	PhasePosting:       {PhaseCompleted, PhaseFailed},
}

// CanAdvanceTo reports whether a run may move from p to next.
func (p RunPhase) CanAdvanceTo(next RunPhase) bool {
	for _, allowed := range runPhaseTransitions[p] {
		if allowed == next {
			return true
		}
	}
	return false
}

// BatchRunResult summarises a pass over all due definitions.
type BatchRunResult struct {
	AsOf      time.Time   `json:"asOf"`
	Attempted int         `json:"attempted"`
	Succeeded int         `json:"succeeded"`
	Failed    int         `json:"failed"`
	Results   []RunResult `json:"results"`
}
