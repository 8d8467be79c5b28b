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
	"github.com/SscSPs/recurring_journal_engine/internal/middleware"
	"github.com/google/uuid"
)

const (
	defaultPostingTimeout = 30 * time.Second
	defaultDueBatchSize   = 100
	systemUser            = "system"

	recordAttempts = 3
	recordBackoff  = 100 * time.Millisecond
)

// runExecutor implements the RunSvc interface
type runExecutor struct {
	BaseService
	definitions    portsrepo.DefinitionRepositoryFacade
	tracker        *OccurrenceTracker
	calc           *schedule.Calculator
	previewer      *schedule.Previewer
	materializer   *Materializer
	accounts       gateways.AccountLookup
	ledger         gateways.PostingService
	locker         gateways.RunLocker
	notifier       gateways.RunNotifier
	postingTimeout time.Duration
	dueBatchSize   int
}

// RunExecutorOption is a functional option for configuring the run executor
type RunExecutorOption func(*runExecutor)

// WithRunLocker replaces the in-process lock, e.g. with a distributed one
func WithRunLocker(locker gateways.RunLocker) RunExecutorOption {
	return func(e *runExecutor) {
		e.locker = locker
	}
}

// WithRunNotifier adds the collaborator told about runs that asked for a notification
func WithRunNotifier(notifier gateways.RunNotifier) RunExecutorOption {
	return func(e *runExecutor) {
		e.notifier = notifier
	}
}

// WithRunAccountLookup validates template accounts before each run
func WithRunAccountLookup(lookup gateways.AccountLookup) RunExecutorOption {
	return func(e *runExecutor) {
		e.accounts = lookup
	}
}

// WithPostingTimeout bounds how long a single post may take
func WithPostingTimeout(timeout time.Duration) RunExecutorOption {
	return func(e *runExecutor) {
		if timeout > 0 {
			e.postingTimeout = timeout
		}
	}
}

// WithRunClock sets the clock that decides run_at and the default as-of date
func WithRunClock(clock gateways.Clock) RunExecutorOption {
	return func(e *runExecutor) {
		e.Clock = clock
	}
}

// WithDueBatchSize sets how many due definitions RunDue loads per page
func WithDueBatchSize(n int) RunExecutorOption {
	return func(e *runExecutor) {
		if n > 0 {
			e.dueBatchSize = n
		}
	}
}

// NewRunExecutor creates the service that executes recurring journal definitions.
func NewRunExecutor(
	definitions portsrepo.DefinitionRepositoryFacade,
	tracker *OccurrenceTracker,
	calc *schedule.Calculator,
	materializer *Materializer,
	ledger gateways.PostingService,
	options ...RunExecutorOption,
) portssvc.RunSvc {
	e := &runExecutor{
		definitions:    definitions,
		tracker:        tracker,
		calc:           calc,
		previewer:      schedule.NewPreviewer(calc, nil),
		materializer:   materializer,
		ledger:         ledger,
		locker:         NewMemoryRunLocker(),
		postingTimeout: defaultPostingTimeout,
		dueBatchSize:   defaultDueBatchSize,
	}
	for _, option := range options {
		option(e)
	}
	return e
}

var _ portssvc.RunSvc = (*runExecutor)(nil)

// runProgress tracks the phase of one invocation.
type runProgress struct {
	phase  domain.RunPhase
	logger *slog.Logger
}

func (p *runProgress) advance(next domain.RunPhase) {
	if !p.phase.CanAdvanceTo(next) {
		p.logger.Error("Unexpected run phase change", slog.String("from", string(p.phase)), slog.String("to", string(next)))
	}
	p.logger.Debug("Run phase changed", slog.String("from", string(p.phase)), slog.String("to", string(next)))
	p.phase = next
}

// Run executes the due date of a definition. Configuration, locking and validation problems
// are returned as errors. Posting failures are captured in the result and the occurrence.
func (e *runExecutor) Run(ctx context.Context, definitionID string, opts domain.RunOptions) (*domain.RunResult, error) {
	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	runAt := e.Now()
	requestedBy := opts.RequestedBy
	if requestedBy == "" {
		requestedBy = systemUser
	}

	logger := e.GetLogger(ctx).With(
		slog.String("definition_id", definitionID),
		slog.String("run_id", runID),
		slog.Bool("dry_run", opts.DryRun))
	ctx = middleware.WithLogger(ctx, logger)
	progress := &runProgress{phase: domain.PhaseNotStarted, logger: logger}

	release, err := e.locker.TryAcquire(ctx, definitionID)
	if err != nil {
		logger.Warn("Run rejected", slog.String("error", err.Error()))
		return nil, err
	}
	defer release()

	def, err := e.definitions.FindDefinitionByID(ctx, definitionID)
	if err != nil {
		return nil, err
	}

	if opts.RunID != "" && !opts.DryRun {
		replayed, err := e.replay(ctx, definitionID, opts.RunID)
		if err != nil {
			return nil, err
		}
		if replayed != nil {
			logger.Info("Returning stored result for completed run")
			return replayed, nil
		}
	}

	result := &domain.RunResult{
		CreatedJournalEntries: []string{},
		Errors:                []string{},
		DryRun:                opts.DryRun,
		RunID:                 runID,
		RunAt:                 runAt,
		DefinitionID:          definitionID,
	}

	// Previewing: decide which date is due
	progress.advance(domain.PhasePreviewing)
	if def.Status.IsTerminal() || (!opts.DryRun && def.Status != domain.StatusActive) {
		progress.advance(domain.PhaseFailed)
		return nil, fmt.Errorf("%w: definition %s is %s", apperrors.ErrDefinitionInactive, definitionID, def.Status)
	}
	due, err := e.nextScheduledDate(*def)
	if err != nil {
		progress.advance(domain.PhaseFailed)
		return nil, err
	}
	asOf := domain.DateOf(runAt)
	if opts.RunDate != nil {
		asOf = domain.DateOf(*opts.RunDate)
	}
	if due == nil {
		progress.advance(domain.PhaseCompleted)
		result.Success = true
		result.Message = "no further occurrences are scheduled"
		return result, nil
	}
	result.ScheduledDate = due
	if !opts.DryRun && due.After(asOf) {
		progress.advance(domain.PhaseCompleted)
		result.Success = true
		result.Message = fmt.Sprintf("nothing due on %s, next run on %s", domain.FormatDate(asOf), domain.FormatDate(*due))
		logger.Debug("Nothing due", slog.String("next_run_date", domain.FormatDate(*due)))
		return result, nil
	}
	// computed before posting so a broken recurrence never leaves a posted entry unrecorded
	next, err := e.calc.NextRunDate(def, *due)
	if err != nil {
		progress.advance(domain.PhaseFailed)
		return nil, err
	}

	// Materializing
	progress.advance(domain.PhaseMaterializing)
	if _, err := validateTemplateAccounts(ctx, e.accounts, def.WorkplaceID, def.Template); err != nil {
		progress.advance(domain.PhaseFailed)
		return nil, err
	}
	draft, err := e.materializer.Materialize(ctx, *def, *due, opts.ExchangeRate)
	if err != nil {
		progress.advance(domain.PhaseFailed)
		logger.Warn("Materialization failed", slog.String("error", err.Error()))
		return nil, err
	}

	if opts.DryRun {
		progress.advance(domain.PhaseCompleted)
		result.Success = true
		result.Drafts = []domain.JournalEntryDraft{*draft}
		result.Message = fmt.Sprintf("dry run: entry for %s balances at %s", domain.FormatDate(*due), draft.TotalDebit.String())
		return result, nil
	}

	// Posting
	progress.advance(domain.PhasePosting)
	occ, err := e.tracker.Begin(ctx, definitionID, *due, runID, requestedBy)
	if err != nil {
		progress.advance(domain.PhaseFailed)
		return nil, err
	}
	result.OccurrenceID = occ.OccurrenceID
	logger = logger.With(slog.String("occurrence_id", occ.OccurrenceID))

	receipt, postErr := e.post(ctx, *draft)

	// a committed run finishes recording its outcome even if the caller goes away
	persistCtx := context.WithoutCancel(ctx)

	if postErr != nil {
		progress.advance(domain.PhaseFailed)
		message := postErr.Error()
		if err := e.record(persistCtx, "posting failure", func() error {
			return e.tracker.Fail(persistCtx, occ, message)
		}); err != nil {
			return nil, fmt.Errorf("failed to record posting failure: %w", err)
		}
		logger.Error("Posting failed", slog.String("scheduled_date", domain.FormatDate(*due)), slog.String("error", message))
		failed := domain.ResultFromOccurrence(*occ)
		e.notify(persistCtx, opts, *def, failed)
		return &failed, nil
	}

	def.TotalOccurrences++
	def.LastRunDate = due
	def.NextRunDate = next
	if next == nil || def.OccurrenceLimitReached() {
		if err := def.Complete(); err != nil {
			return nil, err
		}
	}
	def.LastUpdatedAt = runAt
	def.LastUpdatedBy = requestedBy
	if err := e.record(persistCtx, "completed occurrence", func() error {
		return e.tracker.Complete(persistCtx, occ, []string{receipt.JournalEntryID}, def.ScheduleState())
	}); err != nil {
		progress.advance(domain.PhaseFailed)
		logger.Error("Journal entry posted but run outcome could not be recorded",
			slog.String("journal_entry_id", receipt.JournalEntryID),
			slog.String("error", err.Error()))
		// releases the date; the ledger dedupes the retried post on its draft reference
		message := fmt.Sprintf("journal entry %s was posted but its outcome could not be recorded: %v", receipt.JournalEntryID, err)
		if failErr := e.tracker.Fail(persistCtx, occ, message); failErr != nil {
			logger.Error("Failed to release occurrence", slog.String("error", failErr.Error()))
		}
		return nil, fmt.Errorf("%w: posted %s but failed to record the occurrence: %v", apperrors.ErrInternal, receipt.JournalEntryID, err)
	}
	progress.advance(domain.PhaseCompleted)

	completed := domain.ResultFromOccurrence(*occ)
	logger.Info("Run completed",
		slog.String("scheduled_date", domain.FormatDate(*due)),
		slog.String("journal_entry_id", receipt.JournalEntryID),
		slog.String("status", string(def.Status)))
	e.notify(persistCtx, opts, *def, completed)
	return &completed, nil
}

// replay returns the stored result when runID already completed, nil when it did not.
func (e *runExecutor) replay(ctx context.Context, definitionID, runID string) (*domain.RunResult, error) {
	occ, err := e.tracker.FindByRunID(ctx, definitionID, runID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if occ.Status != domain.OccurrenceCompleted {
		return nil, nil
	}
	result := domain.ResultFromOccurrence(*occ)
	return &result, nil
}

func (e *runExecutor) nextScheduledDate(def domain.RecurringJournalDefinition) (*time.Time, error) {
	for date, err := range e.previewer.Dates(def, nil) {
		if err != nil {
			return nil, err
		}
		return &date, nil
	}
	return nil, nil
}

// record retries an outcome write a few times before giving up.
func (e *runExecutor) record(ctx context.Context, what string, write func() error) error {
	var err error
	for attempt := 0; attempt < recordAttempts; attempt++ {
		if attempt > 0 {
			e.LogWarn(ctx, "Retrying outcome write",
				slog.String("outcome", what),
				slog.Int("attempt", attempt+1),
				slog.String("error", err.Error()))
			select {
			case <-ctx.Done():
				return errors.Join(err, ctx.Err())
			case <-time.After(time.Duration(attempt) * recordBackoff):
			}
		}
		if err = write(); err == nil {
			return nil
		}
	}
	return err
}

type postOutcome struct {
	receipt gateways.PostingReceipt
	err     error
}

// post gives up after the posting timeout even when the ledger ignores its context.
func (e *runExecutor) post(ctx context.Context, draft domain.JournalEntryDraft) (gateways.PostingReceipt, error) {
	postCtx, cancel := context.WithTimeout(ctx, e.postingTimeout)
	defer cancel()

	done := make(chan postOutcome, 1)
	go func() {
		receipt, err := e.ledger.Post(postCtx, draft)
		done <- postOutcome{receipt: receipt, err: err}
	}()

	var outcome postOutcome
	select {
	case outcome = <-done:
	case <-postCtx.Done():
		outcome.err = postCtx.Err()
	}
	receipt, err := outcome.receipt, outcome.err
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return gateways.PostingReceipt{}, fmt.Errorf("%w: ledger did not answer within %s", apperrors.ErrPosting, e.postingTimeout)
		}
		return gateways.PostingReceipt{}, fmt.Errorf("%w: %v", apperrors.ErrPosting, err)
	}
	if receipt.JournalEntryID == "" {
		return gateways.PostingReceipt{}, fmt.Errorf("%w: ledger returned no journal entry id", apperrors.ErrPosting)
	}
	return receipt, nil
}

func (e *runExecutor) notify(ctx context.Context, opts domain.RunOptions, def domain.RecurringJournalDefinition, result domain.RunResult) {
	if !opts.NotifyOnCompletion || e.notifier == nil {
		return
	}
	if err := e.notifier.NotifyRunCompleted(ctx, def, result); err != nil {
		e.LogError(ctx, err, "Failed to send run notification", slog.String("definition_id", def.DefinitionID))
	}
}

// RunDue runs every definition due on or before asOf, one due date each.
// Due definitions are loaded page by page so failing ones never hide the rest.
func (e *runExecutor) RunDue(ctx context.Context, asOf time.Time) (*domain.BatchRunResult, error) {
	asOf = domain.DateOf(asOf)
	batch := &domain.BatchRunResult{AsOf: asOf, Results: []domain.RunResult{}}
	seen := make(map[string]struct{})
	var cursor *domain.DueCursor
	for ctx.Err() == nil {
		page, err := e.definitions.ListDueDefinitions(ctx, asOf, cursor, e.dueBatchSize)
		if err != nil {
			e.LogError(ctx, err, "Failed to list due recurring journals")
			return nil, err
		}
		for _, def := range page {
			if _, ok := seen[def.DefinitionID]; ok {
				continue
			}
			seen[def.DefinitionID] = struct{}{}
			e.runDueDefinition(ctx, def.DefinitionID, asOf, batch)
		}
		if len(page) < e.dueBatchSize {
			break
		}
		last := page[len(page)-1]
		if last.NextRunDate == nil {
			break
		}
		cursor = &domain.DueCursor{NextRunDate: *last.NextRunDate, DefinitionID: last.DefinitionID}
	}
	e.LogInfo(ctx, "Due recurring journals processed",
		slog.String("as_of", domain.FormatDate(asOf)),
		slog.Int("attempted", batch.Attempted),
		slog.Int("succeeded", batch.Succeeded),
		slog.Int("failed", batch.Failed))
	return batch, ctx.Err()
}

func (e *runExecutor) runDueDefinition(ctx context.Context, definitionID string, asOf time.Time, batch *domain.BatchRunResult) {
	if ctx.Err() != nil {
		return
	}
	batch.Attempted++
	result, err := e.Run(ctx, definitionID, domain.RunOptions{RunDate: &asOf, RequestedBy: systemUser})
	if err != nil {
		batch.Failed++
		batch.Results = append(batch.Results, domain.RunResult{
			DefinitionID:          definitionID,
			Message:               "run rejected",
			CreatedJournalEntries: []string{},
			Errors:                []string{err.Error()},
			RunAt:                 e.Now(),
		})
		return
	}
	if result.Success {
		batch.Succeeded++
	} else {
		batch.Failed++
	}
	batch.Results = append(batch.Results, *result)
}

// SkipOccurrence records the current due date as skipped by the user and advances the schedule.
func (e *runExecutor) SkipOccurrence(ctx context.Context, definitionID, reason, userID string) (*domain.Occurrence, error) {
	release, err := e.locker.TryAcquire(ctx, definitionID)
	if err != nil {
		return nil, err
	}
	defer release()

	def, err := e.definitions.FindDefinitionByID(ctx, definitionID)
	if err != nil {
		return nil, err
	}
	if def.Status != domain.StatusActive {
		return nil, fmt.Errorf("%w: definition %s is %s", apperrors.ErrDefinitionInactive, definitionID, def.Status)
	}
	due, err := e.nextScheduledDate(*def)
	if err != nil {
		return nil, err
	}
	if due == nil {
		return nil, fmt.Errorf("%w: definition %s has no scheduled date to skip", apperrors.ErrConflict, definitionID)
	}
	next, err := e.calc.NextRunDate(def, *due)
	if err != nil {
		return nil, err
	}

	// a skipped date does not count towards after_occurrences
	def.NextRunDate = next
	if next == nil {
		if err := def.Complete(); err != nil {
			return nil, err
		}
	}
	def.LastUpdatedAt = e.Now()
	def.LastUpdatedBy = userID
	occ, err := e.tracker.Skip(ctx, definitionID, *due, reason, userID, def.ScheduleState())
	if err != nil {
		return nil, err
	}
	e.LogInfo(ctx, "Occurrence skipped",
		slog.String("definition_id", definitionID),
		slog.String("scheduled_date", domain.FormatDate(*due)))
	return occ, nil
}
