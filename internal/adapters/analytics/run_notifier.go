package analytics

import (
	"context"
	"fmt"

	"github.com/SscSPs/recurring_journal_engine/internal/core/domain"
	"github.com/SscSPs/recurring_journal_engine/internal/core/ports/gateways"
)

// RunCompletedEvent is the event name sent for every notified run.
const RunCompletedEvent = "recurring_journal_run_completed"

// EventSink accepts analytics events. PosthogClientWrapper is the production sink.
type EventSink interface {
	Enqueue(distinctID string, event string, properties map[string]any) error
}

// RunNotifier reports finished runs as analytics events keyed by workplace.
type RunNotifier struct {
	sink EventSink
}

// NewRunNotifier creates a RunNotifier.
func NewRunNotifier(sink EventSink) *RunNotifier {
	return &RunNotifier{sink: sink}
}

var _ gateways.RunNotifier = (*RunNotifier)(nil)

// NotifyRunCompleted implements gateways.RunNotifier.
func (n *RunNotifier) NotifyRunCompleted(_ context.Context, def domain.RecurringJournalDefinition, result domain.RunResult) error {
	props := map[string]any{
		"definition_id":     def.DefinitionID,
		"definition_name":   def.Name,
		"definition_status": string(def.Status),
		"run_id":            result.RunID,
		"success":           result.Success,
		"dry_run":           result.DryRun,
		"journal_entries":   len(result.CreatedJournalEntries),
		"total_occurrences": def.TotalOccurrences,
	}
	if result.ScheduledDate != nil {
		props["scheduled_date"] = domain.FormatDate(*result.ScheduledDate)
	}
	if len(result.Errors) > 0 {
		props["errors"] = result.Errors
	}
	if err := n.sink.Enqueue(def.WorkplaceID, RunCompletedEvent, props); err != nil {
		return fmt.Errorf("failed to enqueue %s event: %w", RunCompletedEvent, err)
	}
	return nil
}
