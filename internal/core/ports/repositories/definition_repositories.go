package repositories

import (
	"context"
	"time"

	"github.com/SscSPs/recurring_journal_engine/internal/core/domain"
)

// DefinitionReader defines read operations for recurring journal definitions.
type DefinitionReader interface {
	// FindDefinitionByID retrieves a definition together with its template.
	// Returns apperrors.ErrNotFound when it does not exist.
	FindDefinitionByID(ctx context.Context, definitionID string) (*domain.RecurringJournalDefinition, error)

	// ListDefinitions retrieves definitions matching the filter, ordered by creation time.
	ListDefinitions(ctx context.Context, filter domain.DefinitionFilter) ([]domain.RecurringJournalDefinition, error)

	// ListDueDefinitions retrieves active definitions whose next run date is on or before asOf,
	// oldest due first. A non-nil after continues the listing past that position.
	ListDueDefinitions(ctx context.Context, asOf time.Time, after *domain.DueCursor, limit int) ([]domain.RecurringJournalDefinition, error)
}

// DefinitionWriter defines write operations for recurring journal definitions.
type DefinitionWriter interface {
	// SaveDefinition persists a new definition and its template lines atomically.
	SaveDefinition(ctx context.Context, definition domain.RecurringJournalDefinition) error

	// UpdateDefinition replaces the editable fields and the template of a definition.
	UpdateDefinition(ctx context.Context, definition domain.RecurringJournalDefinition) error

	// UpdateScheduleState writes only the fields a run or lifecycle action may change.
	UpdateScheduleState(ctx context.Context, definitionID string, state domain.ScheduleState) error
}

// DefinitionRepositoryFacade combines all definition repository interfaces.
type DefinitionRepositoryFacade interface {
	DefinitionReader
	DefinitionWriter
}
