package repositories

import (
	"context"
	"time"

	"github.com/SscSPs/recurring_journal_engine/internal/core/domain"
)

// OccurrenceReader defines read operations for the occurrence log.
type OccurrenceReader interface {
	// FindOccurrenceByID retrieves an occurrence. Returns apperrors.ErrNotFound when missing.
	FindOccurrenceByID(ctx context.Context, occurrenceID string) (*domain.Occurrence, error)

	// FindOccurrenceByRunID retrieves the occurrence created by a run of a definition.
	// Returns apperrors.ErrNotFound when the run never created one.
	FindOccurrenceByRunID(ctx context.Context, definitionID, runID string) (*domain.Occurrence, error)

	// FindLastCompletedOccurrence retrieves the completed occurrence with the latest scheduled date.
	// Returns apperrors.ErrNotFound when the definition has never posted.
	FindLastCompletedOccurrence(ctx context.Context, definitionID string) (*domain.Occurrence, error)

	// ListOccurrencesByDefinition retrieves a page of occurrences, newest scheduled date first.
	// It returns the occurrences, a token for the next page, and an error.
	ListOccurrencesByDefinition(ctx context.Context, definitionID string, filter domain.OccurrenceFilter) ([]domain.Occurrence, *string, error)

	// FindOpenOccurrence retrieves the pending or processing occurrence of a scheduled date.
	// Returns apperrors.ErrNotFound when the date is not in flight.
	FindOpenOccurrence(ctx context.Context, definitionID string, scheduled time.Time) (*domain.Occurrence, error)

	// CountOccurrencesByStatus aggregates the occurrence log of a definition.
	CountOccurrencesByStatus(ctx context.Context, definitionID string) (map[domain.OccurrenceStatus]int, error)
}

// OccurrenceWriter defines write operations for the occurrence log. Rows are never deleted.
type OccurrenceWriter interface {
	// CreateOccurrence appends an occurrence. Returns apperrors.ErrDuplicate when a pending or
	// processing occurrence already exists for the same definition and scheduled date.
	CreateOccurrence(ctx context.Context, occurrence domain.Occurrence) error

	// UpdateOccurrence writes the mutable fields (status, run date, error, journal entry refs).
	UpdateOccurrence(ctx context.Context, occurrence domain.Occurrence) error

	// RecordOutcome updates an occurrence and the schedule state of its definition atomically.
	// The schedule state is only written while the definition is still active, so a pause or
	// cancel that landed during the run is kept.
	RecordOutcome(ctx context.Context, occurrence domain.Occurrence, state domain.ScheduleState) error
}

// OccurrenceRepositoryFacade combines all occurrence repository interfaces.
type OccurrenceRepositoryFacade interface {
	OccurrenceReader
	OccurrenceWriter
}
