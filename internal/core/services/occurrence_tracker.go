package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/SscSPs/recurring_journal_engine/internal/apperrors"
	"github.com/SscSPs/recurring_journal_engine/internal/core/domain"
	"github.com/SscSPs/recurring_journal_engine/internal/core/ports/gateways"
	portsrepo "github.com/SscSPs/recurring_journal_engine/internal/core/ports/repositories"
	portssvc "github.com/SscSPs/recurring_journal_engine/internal/core/ports/services"
	"github.com/google/uuid"
)

// OccurrenceTracker records the processing outcome of each scheduled date.
// The log is append-only: occurrences move forward through their statuses and are never removed.
type OccurrenceTracker struct {
	BaseService
	occurrences portsrepo.OccurrenceRepositoryFacade
	definitions portsrepo.DefinitionReader
	staleAfter  time.Duration
}

// staleMargin is added to the posting timeout before an in-flight occurrence counts as abandoned.
const staleMargin = time.Minute

// NewOccurrenceTracker creates an OccurrenceTracker.
func NewOccurrenceTracker(occurrences portsrepo.OccurrenceRepositoryFacade, definitions portsrepo.DefinitionReader, options ...TrackerOption) *OccurrenceTracker {
	t := &OccurrenceTracker{
		occurrences: occurrences,
		definitions: definitions,
		staleAfter:  defaultPostingTimeout + staleMargin,
	}
	for _, option := range options {
		option(t)
	}
	return t
}

// TrackerOption configures an OccurrenceTracker.
type TrackerOption func(*OccurrenceTracker)

// WithTrackerClock sets the clock used to stamp transitions.
func WithTrackerClock(clock gateways.Clock) TrackerOption {
	return func(t *OccurrenceTracker) {
		t.Clock = clock
	}
}

// WithStaleAfter sets how long an occurrence may stay in flight before a new run takes its date over.
func WithStaleAfter(d time.Duration) TrackerOption {
	return func(t *OccurrenceTracker) {
		if d > 0 {
			t.staleAfter = d
		}
	}
}

var _ portssvc.OccurrenceSvc = (*OccurrenceTracker)(nil)

// Begin appends a processing occurrence for scheduled. It refuses dates earlier than the last
// completed occurrence and fails with apperrors.ErrDuplicate when the date is already in flight.
// An in-flight occurrence older than the stale period is marked failed and its date taken over.
func (t *OccurrenceTracker) Begin(ctx context.Context, definitionID string, scheduled time.Time, runID, createdBy string) (*domain.Occurrence, error) {
	scheduled = domain.DateOf(scheduled)
	if err := t.ensureNotBeforeLastCompleted(ctx, definitionID, scheduled); err != nil {
		return nil, err
	}

	now := t.Now()
	occ := domain.NewOccurrence(uuid.NewString(), definitionID, runID, scheduled, createdBy, now)
	if err := occ.MarkProcessing(now); err != nil {
		return nil, err
	}
	err := t.occurrences.CreateOccurrence(ctx, occ)
	if errors.Is(err, apperrors.ErrDuplicate) {
		abandoned, abandonErr := t.abandonStale(ctx, definitionID, scheduled, now)
		if abandonErr != nil {
			return nil, abandonErr
		}
		if abandoned {
			err = t.occurrences.CreateOccurrence(ctx, occ)
		}
	}
	if err != nil {
		t.LogError(ctx, err, "Failed to create occurrence",
			slog.String("definition_id", definitionID),
			slog.String("scheduled_date", domain.FormatDate(scheduled)))
		return nil, err
	}
	t.LogDebug(ctx, "Occurrence started",
		slog.String("occurrence_id", occ.OccurrenceID),
		slog.String("definition_id", definitionID),
		slog.String("scheduled_date", domain.FormatDate(scheduled)))
	return &occ, nil
}

// abandonStale fails the open occurrence of scheduled when it has been in flight longer than the
// stale period. It reports whether the date is free again.
func (t *OccurrenceTracker) abandonStale(ctx context.Context, definitionID string, scheduled, now time.Time) (bool, error) {
	open, err := t.occurrences.FindOpenOccurrence(ctx, definitionID, scheduled)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if now.Sub(open.LastTransitionAt) < t.staleAfter {
		return false, nil
	}
	message := fmt.Sprintf("abandoned: still %s after %s", open.Status, t.staleAfter)
	if err := open.MarkFailed(message, now); err != nil {
		return false, err
	}
	if err := t.occurrences.UpdateOccurrence(ctx, *open); err != nil {
		t.LogError(ctx, err, "Failed to abandon stale occurrence", slog.String("occurrence_id", open.OccurrenceID))
		return false, err
	}
	t.LogWarn(ctx, "Stale occurrence abandoned",
		slog.String("occurrence_id", open.OccurrenceID),
		slog.String("definition_id", definitionID),
		slog.String("scheduled_date", domain.FormatDate(scheduled)))
	return true, nil
}

// Complete marks the occurrence completed and writes the advanced schedule in one step.
// occ is only changed once the write succeeded, so a failed call can be retried.
func (t *OccurrenceTracker) Complete(ctx context.Context, occ *domain.Occurrence, journalEntryIDs []string, state domain.ScheduleState) error {
	updated := *occ
	if err := updated.MarkCompleted(journalEntryIDs, t.Now()); err != nil {
		return err
	}
	if err := t.occurrences.RecordOutcome(ctx, updated, state); err != nil {
		t.LogError(ctx, err, "Failed to record completed occurrence", slog.String("occurrence_id", occ.OccurrenceID))
		return err
	}
	*occ = updated
	return nil
}

// Fail marks the occurrence failed. The definition's schedule is left untouched so the
// same date is retried on the next invocation. occ is only changed once the write succeeded.
func (t *OccurrenceTracker) Fail(ctx context.Context, occ *domain.Occurrence, message string) error {
	updated := *occ
	if err := updated.MarkFailed(message, t.Now()); err != nil {
		return err
	}
	if err := t.occurrences.UpdateOccurrence(ctx, updated); err != nil {
		t.LogError(ctx, err, "Failed to record failed occurrence", slog.String("occurrence_id", occ.OccurrenceID))
		return err
	}
	*occ = updated
	return nil
}

// Skip appends a skipped occurrence for scheduled and writes the advanced schedule.
func (t *OccurrenceTracker) Skip(ctx context.Context, definitionID string, scheduled time.Time, reason, userID string, state domain.ScheduleState) (*domain.Occurrence, error) {
	scheduled = domain.DateOf(scheduled)
	if err := t.ensureNotBeforeLastCompleted(ctx, definitionID, scheduled); err != nil {
		return nil, err
	}
	now := t.Now()
	occ := domain.NewOccurrence(uuid.NewString(), definitionID, "", scheduled, userID, now)
	if err := t.occurrences.CreateOccurrence(ctx, occ); err != nil {
		return nil, err
	}
	if err := occ.MarkSkipped(reason, now); err != nil {
		return nil, err
	}
	if err := t.occurrences.RecordOutcome(ctx, occ, state); err != nil {
		t.LogError(ctx, err, "Failed to record skipped occurrence", slog.String("occurrence_id", occ.OccurrenceID))
		return nil, err
	}
	return &occ, nil
}

// FindByRunID returns the occurrence a run created, or apperrors.ErrNotFound.
func (t *OccurrenceTracker) FindByRunID(ctx context.Context, definitionID, runID string) (*domain.Occurrence, error) {
	return t.occurrences.FindOccurrenceByRunID(ctx, definitionID, runID)
}

// ListOccurrences returns a page of a definition's occurrences, newest first.
func (t *OccurrenceTracker) ListOccurrences(ctx context.Context, workplaceID, definitionID string, filter domain.OccurrenceFilter) ([]domain.Occurrence, *string, error) {
	if _, err := findOwnedDefinition(ctx, t.definitions, workplaceID, definitionID); err != nil {
		return nil, nil, err
	}
	for _, status := range filter.Statuses {
		if !status.IsValid() {
			return nil, nil, fmt.Errorf("%w: unknown occurrence status '%s'", apperrors.ErrValidation, status)
		}
	}
	if filter.Limit <= 0 {
		filter.Limit = 20
	}
	occs, next, err := t.occurrences.ListOccurrencesByDefinition(ctx, definitionID, filter)
	if err != nil {
		t.LogError(ctx, err, "Failed to list occurrences", slog.String("definition_id", definitionID))
		return nil, nil, err
	}
	return occs, next, nil
}

// GetStatistics aggregates the occurrence log with the definition's dashboard fields.
func (t *OccurrenceTracker) GetStatistics(ctx context.Context, workplaceID, definitionID string) (*domain.OccurrenceStats, error) {
	def, err := findOwnedDefinition(ctx, t.definitions, workplaceID, definitionID)
	if err != nil {
		return nil, err
	}
	counts, err := t.occurrences.CountOccurrencesByStatus(ctx, definitionID)
	if err != nil {
		t.LogError(ctx, err, "Failed to count occurrences", slog.String("definition_id", definitionID))
		return nil, err
	}
	stats := &domain.OccurrenceStats{
		DefinitionID:     definitionID,
		CountsByStatus:   make(map[domain.OccurrenceStatus]int, len(domain.OccurrenceStatuses)),
		LastRunDate:      def.LastRunDate,
		NextRunDate:      def.NextRunDate,
		TotalOccurrences: def.TotalOccurrences,
		Status:           def.Status,
	}
	for _, status := range domain.OccurrenceStatuses {
		stats.CountsByStatus[status] = counts[status]
		stats.Total += counts[status]
	}
	return stats, nil
}

func (t *OccurrenceTracker) ensureNotBeforeLastCompleted(ctx context.Context, definitionID string, scheduled time.Time) error {
	last, err := t.occurrences.FindLastCompletedOccurrence(ctx, definitionID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil
		}
		return err
	}
	if scheduled.Before(last.ScheduledDate) {
		return fmt.Errorf("%w: %s is before the last completed occurrence on %s", apperrors.ErrConflict,
			domain.FormatDate(scheduled), domain.FormatDate(last.ScheduledDate))
	}
	return nil
}
