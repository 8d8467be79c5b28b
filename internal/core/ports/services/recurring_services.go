package services

import (
	"context"
	"time"

	"github.com/SscSPs/recurring_journal_engine/internal/core/domain"
	"github.com/SscSPs/recurring_journal_engine/internal/core/schedule"
	"github.com/SscSPs/recurring_journal_engine/internal/dto"
)

// DefinitionReaderSvc defines read operations for recurring journal definitions.
type DefinitionReaderSvc interface {
	// GetDefinition retrieves a definition owned by the workplace.
	GetDefinition(ctx context.Context, workplaceID, definitionID string) (*domain.RecurringJournalDefinition, error)

	// ListDefinitions retrieves a page of definitions in a workplace.
	ListDefinitions(ctx context.Context, workplaceID string, params dto.ListRecurringJournalsParams) ([]domain.RecurringJournalDefinition, error)

	// ListDue retrieves active definitions due on or before asOf across all workplaces.
	ListDue(ctx context.Context, asOf time.Time, limit int) ([]domain.RecurringJournalDefinition, error)
}

// DefinitionWriterSvc defines write operations for recurring journal definitions.
type DefinitionWriterSvc interface {
	// CreateDefinition validates and persists a new active definition.
	CreateDefinition(ctx context.Context, workplaceID string, req dto.CreateRecurringJournalRequest, creatorUserID string) (*domain.RecurringJournalDefinition, error)

	// UpdateDefinition applies a partial update. Schedule and template changes are rejected
	// with apperrors.ErrDefinitionLocked once the definition is terminal.
	UpdateDefinition(ctx context.Context, workplaceID, definitionID string, req dto.UpdateRecurringJournalRequest, userID string) (*domain.RecurringJournalDefinition, error)
}

// ResumeOptions controls how a paused definition resumes.
type ResumeOptions struct {
	Reanchor bool
}

// DefinitionLifecycleSvc defines the user-driven status transitions.
type DefinitionLifecycleSvc interface {
	PauseDefinition(ctx context.Context, workplaceID, definitionID, userID string) (*domain.RecurringJournalDefinition, error)
	ResumeDefinition(ctx context.Context, workplaceID, definitionID string, opts ResumeOptions, userID string) (*domain.RecurringJournalDefinition, error)
	CancelDefinition(ctx context.Context, workplaceID, definitionID, userID string) (*domain.RecurringJournalDefinition, error)
}

// DefinitionSvcFacade combines all definition service interfaces.
type DefinitionSvcFacade interface {
	DefinitionReaderSvc
	DefinitionWriterSvc
	DefinitionLifecycleSvc
}

// PreviewSvc projects future run dates.
type PreviewSvc interface {
	PreviewOccurrences(ctx context.Context, workplaceID, definitionID string, limit int, from *time.Time) ([]schedule.PreviewItem, error)
}

// OccurrenceSvc exposes the occurrence log of a definition.
type OccurrenceSvc interface {
	ListOccurrences(ctx context.Context, workplaceID, definitionID string, filter domain.OccurrenceFilter) ([]domain.Occurrence, *string, error)
	GetStatistics(ctx context.Context, workplaceID, definitionID string) (*domain.OccurrenceStats, error)
}

// RunSvc executes definitions.
type RunSvc interface {
	// Run executes the currently due date of a definition, or previews it when opts.DryRun is set.
	Run(ctx context.Context, definitionID string, opts domain.RunOptions) (*domain.RunResult, error)

	// RunDue runs every definition due on or before asOf. A failing definition does not stop the others.
	RunDue(ctx context.Context, asOf time.Time) (*domain.BatchRunResult, error)

	// SkipOccurrence records the current due date as skipped and advances the schedule.
	SkipOccurrence(ctx context.Context, definitionID, reason, userID string) (*domain.Occurrence, error)
}
