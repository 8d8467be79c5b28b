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
	"github.com/SscSPs/recurring_journal_engine/internal/core/schedule"
	"github.com/SscSPs/recurring_journal_engine/internal/dto"
	"github.com/SscSPs/recurring_journal_engine/internal/utils/accounting"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// definitionService implements the DefinitionSvcFacade interface
type definitionService struct {
	BaseService
	definitions portsrepo.DefinitionRepositoryFacade
	accounts    gateways.AccountLookup
	calc        *schedule.Calculator
	tolerance   decimal.Decimal
	locker      gateways.RunLocker
}

// DefinitionServiceOption is a functional option for configuring the definition service
type DefinitionServiceOption func(*definitionService)

// WithAccountLookup adds chart-of-accounts validation of template lines
func WithAccountLookup(lookup gateways.AccountLookup) DefinitionServiceOption {
	return func(s *definitionService) {
		s.accounts = lookup
	}
}

// WithDefinitionClock sets the clock used for audit fields and re-anchoring
func WithDefinitionClock(clock gateways.Clock) DefinitionServiceOption {
	return func(s *definitionService) {
		s.Clock = clock
	}
}

// WithBalanceTolerance sets the accepted difference between template debits and credits
func WithBalanceTolerance(tolerance decimal.Decimal) DefinitionServiceOption {
	return func(s *definitionService) {
		s.tolerance = tolerance
	}
}

// WithDefinitionLocker sets the per-definition lock shared with the run executor
func WithDefinitionLocker(locker gateways.RunLocker) DefinitionServiceOption {
	return func(s *definitionService) {
		s.locker = locker
	}
}

// NewDefinitionService creates a new definition service with the provided options
func NewDefinitionService(repo portsrepo.DefinitionRepositoryFacade, calc *schedule.Calculator, options ...DefinitionServiceOption) portssvc.DefinitionSvcFacade {
	svc := &definitionService{
		definitions: repo,
		calc:        calc,
		tolerance:   decimal.RequireFromString("0.01"),
		locker:      NewMemoryRunLocker(),
	}
	for _, option := range options {
		option(svc)
	}
	return svc
}

var _ portssvc.DefinitionSvcFacade = (*definitionService)(nil)

// findOwnedDefinition loads a definition and hides definitions of other workplaces behind ErrNotFound.
func findOwnedDefinition(ctx context.Context, repo portsrepo.DefinitionReader, workplaceID, definitionID string) (*domain.RecurringJournalDefinition, error) {
	def, err := repo.FindDefinitionByID(ctx, definitionID)
	if err != nil {
		return nil, err
	}
	if workplaceID != "" && def.WorkplaceID != workplaceID {
		return nil, fmt.Errorf("%w: recurring journal %s", apperrors.ErrNotFound, definitionID)
	}
	return def, nil
}

// lockOwnedDefinition takes the run lock of a definition and loads it under the lock.
// It fails with apperrors.ErrRunInProgress while a run holds the definition.
func (s *definitionService) lockOwnedDefinition(ctx context.Context, workplaceID, definitionID string) (*domain.RecurringJournalDefinition, func(), error) {
	if _, err := findOwnedDefinition(ctx, s.definitions, workplaceID, definitionID); err != nil {
		return nil, nil, err
	}
	release, err := s.locker.TryAcquire(ctx, definitionID)
	if err != nil {
		s.LogWarn(ctx, "Recurring journal change rejected", slog.String("definition_id", definitionID), slog.String("error", err.Error()))
		return nil, nil, err
	}
	def, err := findOwnedDefinition(ctx, s.definitions, workplaceID, definitionID)
	if err != nil {
		release()
		return nil, nil, err
	}
	return def, release, nil
}

func (s *definitionService) CreateDefinition(ctx context.Context, workplaceID string, req dto.CreateRecurringJournalRequest, creatorUserID string) (*domain.RecurringJournalDefinition, error) {
	startDate, err := domain.ParseDate(req.StartDate)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid start date '%s'", apperrors.ErrValidation, req.StartDate)
	}
	endDate, err := parseOptionalDate(req.EndDate)
	if err != nil {
		return nil, err
	}

	now := s.Now()
	def := domain.RecurringJournalDefinition{
		DefinitionID:        uuid.NewString(),
		WorkplaceID:         workplaceID,
		Name:                req.Name,
		Description:         req.Description,
		Frequency:           req.Frequency,
		Interval:            req.Interval,
		CustomSchedule:      req.CustomSchedule,
		StartDate:           startDate,
		EndType:             req.EndType,
		EndAfterOccurrences: req.EndAfterOccurrences,
		EndDate:             endDate,
		Status:              domain.StatusActive,
		Template:            req.Template.ToTemplate(),
		AuditFields: domain.AuditFields{
			CreatedAt:     now,
			CreatedBy:     creatorUserID,
			LastUpdatedAt: now,
			LastUpdatedBy: creatorUserID,
		},
	}

	if err := s.validate(ctx, &def); err != nil {
		s.LogError(ctx, err, "Recurring journal validation failed", slog.String("workplace_id", workplaceID))
		return nil, err
	}

	first, err := s.calc.FirstRunDate(&def)
	if err != nil {
		return nil, err
	}
	if first == nil {
		return nil, fmt.Errorf("%w: no run date falls on or before the end date", apperrors.ErrConfiguration)
	}
	def.NextRunDate = first

	if err := s.definitions.SaveDefinition(ctx, def); err != nil {
		s.LogError(ctx, err, "Failed to save recurring journal", slog.String("workplace_id", workplaceID))
		return nil, fmt.Errorf("failed to save recurring journal: %w", err)
	}

	s.LogInfo(ctx, "Recurring journal created",
		slog.String("definition_id", def.DefinitionID),
		slog.String("workplace_id", workplaceID),
		slog.String("frequency", string(def.Frequency)),
		slog.String("next_run_date", domain.FormatDate(*def.NextRunDate)))
	return &def, nil
}

func (s *definitionService) GetDefinition(ctx context.Context, workplaceID, definitionID string) (*domain.RecurringJournalDefinition, error) {
	def, err := findOwnedDefinition(ctx, s.definitions, workplaceID, definitionID)
	if err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) {
			s.LogError(ctx, err, "Failed to fetch recurring journal", slog.String("definition_id", definitionID))
		}
		return nil, err
	}
	return def, nil
}

func (s *definitionService) ListDefinitions(ctx context.Context, workplaceID string, params dto.ListRecurringJournalsParams) ([]domain.RecurringJournalDefinition, error) {
	for _, status := range params.Status {
		if !status.IsValid() {
			return nil, fmt.Errorf("%w: unknown status '%s'", apperrors.ErrValidation, status)
		}
	}
	limit := params.Limit
	if limit <= 0 {
		limit = 20
	}
	defs, err := s.definitions.ListDefinitions(ctx, domain.DefinitionFilter{
		WorkplaceID: workplaceID,
		Statuses:    params.Status,
		Limit:       limit,
		Offset:      params.Offset,
	})
	if err != nil {
		s.LogError(ctx, err, "Failed to list recurring journals", slog.String("workplace_id", workplaceID))
		return nil, err
	}
	return defs, nil
}

func (s *definitionService) ListDue(ctx context.Context, asOf time.Time, limit int) ([]domain.RecurringJournalDefinition, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.definitions.ListDueDefinitions(ctx, domain.DateOf(asOf), nil, limit)
}

func (s *definitionService) UpdateDefinition(ctx context.Context, workplaceID, definitionID string, req dto.UpdateRecurringJournalRequest, userID string) (*domain.RecurringJournalDefinition, error) {
	def, release, err := s.lockOwnedDefinition(ctx, workplaceID, definitionID)
	if err != nil {
		return nil, err
	}
	defer release()

	if req.TouchesSchedule() || req.Template != nil {
		if err := def.EnsureMutable(); err != nil {
			return nil, err
		}
	}

	if req.Name != nil {
		def.Name = *req.Name
	}
	if req.Description != nil {
		def.Description = *req.Description
	}
	if req.Frequency != nil {
		def.Frequency = *req.Frequency
	}
	if req.Interval != nil {
		def.Interval = *req.Interval
	}
	if req.CustomSchedule != nil {
		def.CustomSchedule = *req.CustomSchedule
	}
	if req.EndType != nil {
		def.EndType = *req.EndType
	}
	if req.EndAfterOccurrences != nil {
		def.EndAfterOccurrences = req.EndAfterOccurrences
	}
	if req.EndDate != nil {
		endDate, err := parseOptionalDate(req.EndDate)
		if err != nil {
			return nil, err
		}
		def.EndDate = endDate
	}
	if req.Template != nil {
		def.Template = req.Template.ToTemplate()
	}

	if req.TouchesSchedule() || req.Template != nil {
		if err := s.validate(ctx, def); err != nil {
			return nil, err
		}
	}
	if req.TouchesSchedule() {
		if err := s.reschedule(def); err != nil {
			return nil, err
		}
	}

	def.LastUpdatedAt = s.Now()
	def.LastUpdatedBy = userID
	if err := s.definitions.UpdateDefinition(ctx, *def); err != nil {
		s.LogError(ctx, err, "Failed to update recurring journal", slog.String("definition_id", definitionID))
		return nil, err
	}
	s.LogInfo(ctx, "Recurring journal updated", slog.String("definition_id", definitionID))
	return def, nil
}

// reschedule recomputes the next run date after a recurrence change. The schedule continues
// from the last run when there was one, otherwise from the start date.
func (s *definitionService) reschedule(def *domain.RecurringJournalDefinition) error {
	var next *time.Time
	var err error
	if def.LastRunDate != nil {
		next, err = s.calc.NextRunDate(def, *def.LastRunDate)
	} else {
		next, err = s.calc.FirstRunDate(def)
	}
	if err != nil {
		return err
	}
	def.NextRunDate = next
	if def.Status == domain.StatusActive && (next == nil || def.OccurrenceLimitReached()) {
		return def.Complete()
	}
	if def.Status == domain.StatusPaused && def.OccurrenceLimitReached() {
		def.NextRunDate = nil
	}
	return nil
}

func (s *definitionService) validate(ctx context.Context, def *domain.RecurringJournalDefinition) error {
	if err := s.calc.Validate(def); err != nil {
		return err
	}
	if err := def.Template.ValidateLines(); err != nil {
		return err
	}
	if err := accounting.ValidateTemplateBalance(def.Template, s.tolerance); err != nil {
		return err
	}
	if _, err := validateTemplateAccounts(ctx, s.accounts, def.WorkplaceID, def.Template); err != nil {
		return err
	}
	return nil
}

func (s *definitionService) PauseDefinition(ctx context.Context, workplaceID, definitionID, userID string) (*domain.RecurringJournalDefinition, error) {
	return s.applyTransition(ctx, workplaceID, definitionID, userID, "paused", func(def *domain.RecurringJournalDefinition) error {
		return def.Pause()
	})
}

// ResumeDefinition reactivates a paused definition. Dates missed while paused stay due and are
// caught up one per run unless opts.Reanchor moves the schedule to the first date on or after today.
func (s *definitionService) ResumeDefinition(ctx context.Context, workplaceID, definitionID string, opts portssvc.ResumeOptions, userID string) (*domain.RecurringJournalDefinition, error) {
	return s.applyTransition(ctx, workplaceID, definitionID, userID, "resumed", func(def *domain.RecurringJournalDefinition) error {
		if err := def.Resume(); err != nil {
			return err
		}
		if def.OccurrenceLimitReached() {
			return def.Complete()
		}
		if def.NextRunDate == nil {
			if err := s.reschedule(def); err != nil {
				return err
			}
			if def.Status != domain.StatusActive {
				return nil
			}
		}
		if opts.Reanchor {
			next, err := s.calc.FirstOnOrAfter(def, s.Now())
			if err != nil {
				return err
			}
			def.NextRunDate = next
		}
		if def.NextRunDate == nil {
			return def.Complete()
		}
		return nil
	})
}

func (s *definitionService) CancelDefinition(ctx context.Context, workplaceID, definitionID, userID string) (*domain.RecurringJournalDefinition, error) {
	return s.applyTransition(ctx, workplaceID, definitionID, userID, "cancelled", func(def *domain.RecurringJournalDefinition) error {
		return def.Cancel()
	})
}

func (s *definitionService) applyTransition(ctx context.Context, workplaceID, definitionID, userID, action string, apply func(*domain.RecurringJournalDefinition) error) (*domain.RecurringJournalDefinition, error) {
	def, release, err := s.lockOwnedDefinition(ctx, workplaceID, definitionID)
	if err != nil {
		return nil, err
	}
	defer release()
	from := def.Status
	if err := apply(def); err != nil {
		s.LogWarn(ctx, "Recurring journal transition rejected",
			slog.String("definition_id", definitionID),
			slog.String("action", action),
			slog.String("error", err.Error()))
		return nil, err
	}
	def.LastUpdatedAt = s.Now()
	def.LastUpdatedBy = userID
	if err := s.definitions.UpdateScheduleState(ctx, definitionID, def.ScheduleState()); err != nil {
		s.LogError(ctx, err, "Failed to persist recurring journal transition", slog.String("definition_id", definitionID))
		return nil, err
	}
	s.LogInfo(ctx, "Recurring journal "+action,
		slog.String("definition_id", definitionID),
		slog.String("from", string(from)),
		slog.String("to", string(def.Status)))
	return def, nil
}

func parseOptionalDate(s *string) (*time.Time, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	d, err := domain.ParseDate(*s)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid date '%s'", apperrors.ErrValidation, *s)
	}
	return &d, nil
}
