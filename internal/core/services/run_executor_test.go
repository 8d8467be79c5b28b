package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/SscSPs/recurring_journal_engine/internal/adapters/memory"
	"github.com/SscSPs/recurring_journal_engine/internal/apperrors"
	"github.com/SscSPs/recurring_journal_engine/internal/core/domain"
	"github.com/SscSPs/recurring_journal_engine/internal/core/ports/gateways"
	portssvc "github.com/SscSPs/recurring_journal_engine/internal/core/ports/services"
	"github.com/SscSPs/recurring_journal_engine/internal/core/schedule"
	"github.com/SscSPs/recurring_journal_engine/internal/core/services"
	"github.com/SscSPs/recurring_journal_engine/internal/dto"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/goleak"
)

type RunExecutorTestSuite struct {
	suite.Suite
	ctx      context.Context
	store    *memory.Store
	ledger   *MockPostingService
	notifier *MockRunNotifier
	now      time.Time
	tracker  *services.OccurrenceTracker
	executor portssvc.RunSvc
}

func (s *RunExecutorTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = memory.NewStore()
	s.ledger = new(MockPostingService)
	s.notifier = new(MockRunNotifier)
	s.now = time.Date(2024, time.January, 31, 10, 0, 0, 0, time.UTC)

	clock := fixedClock(s.now)
	calc := schedule.NewCalculator()
	s.tracker = services.NewOccurrenceTracker(s.store, s.store, services.WithTrackerClock(clock))
	s.executor = services.NewRunExecutor(s.store, s.tracker, calc,
		services.NewMaterializer(decimal.RequireFromString("0.01")),
		s.ledger,
		services.WithRunClock(clock),
		services.WithRunNotifier(s.notifier),
		services.WithPostingTimeout(50*time.Millisecond),
	)
}

func TestRunExecutorTestSuite(t *testing.T) {
	suite.Run(t, new(RunExecutorTestSuite))
}

func (s *RunExecutorTestSuite) seed(def domain.RecurringJournalDefinition) {
	s.Require().NoError(s.store.SaveDefinition(s.ctx, def))
}

func (s *RunExecutorTestSuite) stored(id string) *domain.RecurringJournalDefinition {
	def, err := s.store.FindDefinitionByID(s.ctx, id)
	s.Require().NoError(err)
	return def
}

func (s *RunExecutorTestSuite) counts(id string) map[domain.OccurrenceStatus]int {
	counts, err := s.store.CountOccurrencesByStatus(s.ctx, id)
	s.Require().NoError(err)
	return counts
}

func referenceFor(id, date string) interface{} {
	return mock.MatchedBy(func(d domain.JournalEntryDraft) bool {
		return d.Reference == domain.DraftReference(id, day(date))
	})
}

func (s *RunExecutorTestSuite) TestRun_PostsBalancedEntryAndAdvancesSchedule() {
	s.seed(monthlyDefinition("def-1", "2024-01-31"))
	s.ledger.On("Post", mock.Anything, referenceFor("def-1", "2024-01-31")).
		Return(gateways.PostingReceipt{JournalEntryID: "je-1"}, nil).Once()

	result, err := s.executor.Run(s.ctx, "def-1", domain.RunOptions{RequestedBy: "user-1"})

	s.Require().NoError(err)
	s.True(result.Success)
	s.Equal([]string{"je-1"}, result.CreatedJournalEntries)
	s.Empty(result.Errors)
	s.NotEmpty(result.OccurrenceID)
	s.Equal(day("2024-01-31"), *result.ScheduledDate)
	s.Contains(result.Message, "2024-01-31")

	def := s.stored("def-1")
	s.Equal(1, def.TotalOccurrences)
	s.Equal(day("2024-01-31"), *def.LastRunDate)
	// month steps keep the start day and clamp to the end of February
	s.Equal(day("2024-02-29"), *def.NextRunDate)
	s.Equal(domain.StatusActive, def.Status)
	s.Equal(1, s.counts("def-1")[domain.OccurrenceCompleted])
	s.ledger.AssertExpectations(s.T())
}

func (s *RunExecutorTestSuite) TestRun_UnbalancedTemplateCreatesNoOccurrence() {
	def := monthlyDefinition("def-1", "2024-01-31")
	def.Template = balancedTemplate("100.00", "90.00")
	s.seed(def)

	result, err := s.executor.Run(s.ctx, "def-1", domain.RunOptions{})

	s.Nil(result)
	s.Require().Error(err)
	s.ErrorIs(err, apperrors.ErrUnbalancedTemplate)
	var unbalanced *apperrors.UnbalancedError
	s.Require().True(errors.As(err, &unbalanced))
	s.Equal("100", unbalanced.Debits)
	s.Equal("90", unbalanced.Credits)

	s.Empty(s.counts("def-1"))
	s.Equal(0, s.stored("def-1").TotalOccurrences)
	s.ledger.AssertNotCalled(s.T(), "Post", mock.Anything, mock.Anything)
}

func (s *RunExecutorTestSuite) TestRun_CompletesAfterConfiguredOccurrences() {
	def := monthlyDefinition("def-1", "2024-01-01")
	def.Frequency = domain.Daily
	def.EndType = domain.EndAfterOccurrences
	def.EndAfterOccurrences = intPtr(3)
	s.seed(def)
	s.ledger.On("Post", mock.Anything, mock.Anything).Return(gateways.PostingReceipt{JournalEntryID: "je"}, nil)

	for i, expected := range []string{"2024-01-01", "2024-01-02", "2024-01-03"} {
		result, err := s.executor.Run(s.ctx, "def-1", domain.RunOptions{})
		s.Require().NoError(err, "run %d", i+1)
		s.True(result.Success)
		s.Equal(day(expected), *result.ScheduledDate)
	}

	stored := s.stored("def-1")
	s.Equal(domain.StatusCompleted, stored.Status)
	s.Equal(3, stored.TotalOccurrences)
	s.Nil(stored.NextRunDate)
	s.Equal(day("2024-01-03"), *stored.LastRunDate)

	_, err := s.executor.Run(s.ctx, "def-1", domain.RunOptions{})
	s.ErrorIs(err, apperrors.ErrDefinitionInactive)
	s.ledger.AssertNumberOfCalls(s.T(), "Post", 3)
}

func (s *RunExecutorTestSuite) TestRun_ReplayReturnsStoredResultWithoutPosting() {
	s.seed(monthlyDefinition("def-1", "2024-01-31"))
	s.ledger.On("Post", mock.Anything, mock.Anything).
		Return(gateways.PostingReceipt{JournalEntryID: "je-1"}, nil).Once()

	first, err := s.executor.Run(s.ctx, "def-1", domain.RunOptions{RunID: "run-1"})
	s.Require().NoError(err)
	second, err := s.executor.Run(s.ctx, "def-1", domain.RunOptions{RunID: "run-1"})
	s.Require().NoError(err)

	s.Equal(*first, *second)
	s.True(second.Success)
	s.Equal([]string{"je-1"}, second.CreatedJournalEntries)
	s.Equal("run-1", second.RunID)
	s.Equal(1, s.stored("def-1").TotalOccurrences)
	s.ledger.AssertNumberOfCalls(s.T(), "Post", 1)
}

func (s *RunExecutorTestSuite) TestRun_PostingFailureKeepsDateDueForRetry() {
	s.seed(monthlyDefinition("def-1", "2024-01-31"))
	s.ledger.On("Post", mock.Anything, mock.Anything).
		Return(gateways.PostingReceipt{}, errors.New("ledger unavailable")).Once()
	s.ledger.On("Post", mock.Anything, mock.Anything).
		Return(gateways.PostingReceipt{JournalEntryID: "je-2"}, nil).Once()

	failed, err := s.executor.Run(s.ctx, "def-1", domain.RunOptions{})
	s.Require().NoError(err)
	s.False(failed.Success)
	s.Empty(failed.CreatedJournalEntries)
	s.Require().Len(failed.Errors, 1)
	s.Contains(failed.Errors[0], "posting failed")
	s.Contains(failed.Errors[0], "ledger unavailable")

	def := s.stored("def-1")
	s.Equal(0, def.TotalOccurrences)
	s.Equal(day("2024-01-31"), *def.NextRunDate)
	s.Nil(def.LastRunDate)

	retried, err := s.executor.Run(s.ctx, "def-1", domain.RunOptions{})
	s.Require().NoError(err)
	s.True(retried.Success)
	s.Equal(day("2024-01-31"), *retried.ScheduledDate)
	s.NotEqual(failed.OccurrenceID, retried.OccurrenceID)

	counts := s.counts("def-1")
	s.Equal(1, counts[domain.OccurrenceFailed])
	s.Equal(1, counts[domain.OccurrenceCompleted])
	s.Equal(1, s.stored("def-1").TotalOccurrences)
}

func (s *RunExecutorTestSuite) TestRun_LedgerTimeoutIsRecordedAsFailure() {
	s.seed(monthlyDefinition("def-1", "2024-01-31"))
	s.ledger.On("Post", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		}).
		Return(gateways.PostingReceipt{}, context.DeadlineExceeded).Once()

	result, err := s.executor.Run(s.ctx, "def-1", domain.RunOptions{})

	s.Require().NoError(err)
	s.False(result.Success)
	s.Require().Len(result.Errors, 1)
	s.Contains(result.Errors[0], "did not answer within 50ms")
	s.Equal(1, s.counts("def-1")[domain.OccurrenceFailed])
	s.Equal(day("2024-01-31"), *s.stored("def-1").NextRunDate)
}

func (s *RunExecutorTestSuite) TestRun_DryRunReturnsDraftWithoutSideEffects() {
	def := monthlyDefinition("def-1", "2024-02-15")
	def.Status = domain.StatusPaused
	s.seed(def)

	result, err := s.executor.Run(s.ctx, "def-1", domain.RunOptions{DryRun: true})

	s.Require().NoError(err)
	s.True(result.Success)
	s.True(result.DryRun)
	s.Empty(result.OccurrenceID)
	s.Require().Len(result.Drafts, 1)
	draft := result.Drafts[0]
	s.Equal(day("2024-02-15"), draft.EntryDate)
	s.Equal(domain.DraftReference("def-1", day("2024-02-15")), draft.Reference)
	s.True(draft.TotalDebit.Equal(decimal.RequireFromString("100")))
	s.True(draft.TotalCredit.Equal(decimal.RequireFromString("100")))
	s.Len(draft.Lines, 2)

	s.Empty(s.counts("def-1"))
	s.Equal(day("2024-02-15"), *s.stored("def-1").NextRunDate)
	s.ledger.AssertNotCalled(s.T(), "Post", mock.Anything, mock.Anything)
}

func (s *RunExecutorTestSuite) TestRun_RejectsInactiveDefinitions() {
	paused := monthlyDefinition("def-paused", "2024-01-31")
	paused.Status = domain.StatusPaused
	s.seed(paused)
	cancelled := monthlyDefinition("def-cancelled", "2024-01-31")
	cancelled.Status = domain.StatusCancelled
	cancelled.NextRunDate = nil
	s.seed(cancelled)

	_, err := s.executor.Run(s.ctx, "def-paused", domain.RunOptions{})
	s.ErrorIs(err, apperrors.ErrDefinitionInactive)

	_, err = s.executor.Run(s.ctx, "def-cancelled", domain.RunOptions{DryRun: true})
	s.ErrorIs(err, apperrors.ErrDefinitionInactive)

	_, err = s.executor.Run(s.ctx, "missing", domain.RunOptions{})
	s.ErrorIs(err, apperrors.ErrNotFound)
	s.ledger.AssertNotCalled(s.T(), "Post", mock.Anything, mock.Anything)
}

func (s *RunExecutorTestSuite) TestRun_NothingDueBeforeNextRunDate() {
	s.seed(monthlyDefinition("def-1", "2024-02-15"))

	result, err := s.executor.Run(s.ctx, "def-1", domain.RunOptions{})

	s.Require().NoError(err)
	s.True(result.Success)
	s.Equal("nothing due on 2024-01-31, next run on 2024-02-15", result.Message)
	s.Empty(result.CreatedJournalEntries)
	s.Empty(s.counts("def-1"))
	s.ledger.AssertNotCalled(s.T(), "Post", mock.Anything, mock.Anything)
}

func (s *RunExecutorTestSuite) TestRun_ExplicitRunDateDecidesWhatIsDue() {
	s.seed(monthlyDefinition("def-1", "2024-02-15"))
	s.ledger.On("Post", mock.Anything, referenceFor("def-1", "2024-02-15")).
		Return(gateways.PostingReceipt{JournalEntryID: "je-1"}, nil).Once()

	result, err := s.executor.Run(s.ctx, "def-1", domain.RunOptions{RunDate: datePtr("2024-02-20")})

	s.Require().NoError(err)
	s.True(result.Success)
	s.Equal(day("2024-03-15"), *s.stored("def-1").NextRunDate)
}

func (s *RunExecutorTestSuite) TestRun_NotifiesWhenAsked() {
	s.seed(monthlyDefinition("def-1", "2024-01-31"))
	s.ledger.On("Post", mock.Anything, mock.Anything).
		Return(gateways.PostingReceipt{JournalEntryID: "je-1"}, nil).Once()
	s.notifier.On("NotifyRunCompleted", mock.Anything,
		mock.MatchedBy(func(d domain.RecurringJournalDefinition) bool { return d.DefinitionID == "def-1" }),
		mock.MatchedBy(func(r domain.RunResult) bool { return r.Success && len(r.CreatedJournalEntries) == 1 }),
	).Return(errors.New("sink offline")).Once()

	result, err := s.executor.Run(s.ctx, "def-1", domain.RunOptions{NotifyOnCompletion: true})

	// a failed notification never fails the run
	s.Require().NoError(err)
	s.True(result.Success)
	s.notifier.AssertExpectations(s.T())
}

func (s *RunExecutorTestSuite) TestRun_DoesNotNotifyUnlessAsked() {
	s.seed(monthlyDefinition("def-1", "2024-01-31"))
	s.ledger.On("Post", mock.Anything, mock.Anything).
		Return(gateways.PostingReceipt{JournalEntryID: "je-1"}, nil).Once()

	_, err := s.executor.Run(s.ctx, "def-1", domain.RunOptions{})

	s.Require().NoError(err)
	s.notifier.AssertNotCalled(s.T(), "NotifyRunCompleted", mock.Anything, mock.Anything, mock.Anything)
}

func (s *RunExecutorTestSuite) TestRun_RejectsAccountsOfAnotherWorkplace() {
	accounts := new(MockAccountLookup)
	accounts.On("FindAccountsByIDs", mock.Anything, []string{"acc-rent", "acc-cash"}).
		Return(workplaceAccounts("wp-other"), nil)
	clock := fixedClock(s.now)
	executor := services.NewRunExecutor(s.store, s.tracker, schedule.NewCalculator(),
		services.NewMaterializer(decimal.RequireFromString("0.01")), s.ledger,
		services.WithRunClock(clock),
		services.WithRunAccountLookup(accounts),
	)
	s.seed(monthlyDefinition("def-1", "2024-01-31"))

	_, err := executor.Run(s.ctx, "def-1", domain.RunOptions{})

	s.ErrorIs(err, apperrors.ErrValidation)
	s.Empty(s.counts("def-1"))
	s.ledger.AssertNotCalled(s.T(), "Post", mock.Anything, mock.Anything)
}

func (s *RunExecutorTestSuite) TestSkipOccurrence_AdvancesWithoutCounting() {
	s.seed(monthlyDefinition("def-1", "2024-01-31"))

	occ, err := s.executor.SkipOccurrence(s.ctx, "def-1", "office closed", "user-1")

	s.Require().NoError(err)
	s.Equal(domain.OccurrenceSkipped, occ.Status)
	s.Equal(day("2024-01-31"), occ.ScheduledDate)
	s.Require().NotNil(occ.ErrorMessage)
	s.Equal("office closed", *occ.ErrorMessage)

	def := s.stored("def-1")
	s.Equal(0, def.TotalOccurrences)
	s.Equal(day("2024-02-29"), *def.NextRunDate)
	s.Equal(1, s.counts("def-1")[domain.OccurrenceSkipped])
}

func (s *RunExecutorTestSuite) TestSkipOccurrence_RejectsPausedDefinition() {
	def := monthlyDefinition("def-1", "2024-01-31")
	def.Status = domain.StatusPaused
	s.seed(def)

	_, err := s.executor.SkipOccurrence(s.ctx, "def-1", "", "user-1")

	s.ErrorIs(err, apperrors.ErrDefinitionInactive)
	s.Empty(s.counts("def-1"))
}

func (s *RunExecutorTestSuite) TestRunDue_ProcessesEveryDueDefinition() {
	s.seed(monthlyDefinition("def-a", "2024-01-15"))
	s.seed(monthlyDefinition("def-b", "2024-01-20"))
	s.seed(monthlyDefinition("def-c", "2024-02-15"))
	s.ledger.On("Post", mock.Anything, mock.MatchedBy(func(d domain.JournalEntryDraft) bool { return d.DefinitionID == "def-a" })).
		Return(gateways.PostingReceipt{JournalEntryID: "je-a"}, nil).Once()
	s.ledger.On("Post", mock.Anything, mock.MatchedBy(func(d domain.JournalEntryDraft) bool { return d.DefinitionID == "def-b" })).
		Return(gateways.PostingReceipt{}, errors.New("period closed")).Once()

	batch, err := s.executor.RunDue(s.ctx, s.now)

	s.Require().NoError(err)
	s.Equal(day("2024-01-31"), batch.AsOf)
	s.Equal(2, batch.Attempted)
	s.Equal(1, batch.Succeeded)
	s.Equal(1, batch.Failed)
	s.Require().Len(batch.Results, 2)
	s.Equal("def-a", batch.Results[0].DefinitionID)
	s.True(batch.Results[0].Success)
	s.Equal("def-b", batch.Results[1].DefinitionID)
	s.False(batch.Results[1].Success)

	s.Equal(day("2024-02-15"), *s.stored("def-a").NextRunDate)
	s.Equal(day("2024-01-20"), *s.stored("def-b").NextRunDate)
	s.Empty(s.counts("def-c"))
	s.ledger.AssertExpectations(s.T())
}

func (s *RunExecutorTestSuite) TestRunDue_PagesPastFailingDefinitions() {
	executor := services.NewRunExecutor(s.store, s.tracker, schedule.NewCalculator(),
		services.NewMaterializer(decimal.RequireFromString("0.01")),
		s.ledger,
		services.WithRunClock(fixedClock(s.now)),
		services.WithDueBatchSize(2),
	)
	for _, id := range []string{"def-a", "def-b", "def-c", "def-d"} {
		s.seed(monthlyDefinition(id, "2024-01-10"))
	}
	s.seed(monthlyDefinition("def-e", "2024-01-20"))
	s.ledger.On("Post", mock.Anything, mock.MatchedBy(func(d domain.JournalEntryDraft) bool { return d.DefinitionID == "def-e" })).
		Return(gateways.PostingReceipt{JournalEntryID: "je-e"}, nil).Once()
	s.ledger.On("Post", mock.Anything, mock.Anything).
		Return(gateways.PostingReceipt{}, errors.New("period closed"))

	batch, err := executor.RunDue(s.ctx, s.now)

	s.Require().NoError(err)
	s.Equal(5, batch.Attempted)
	s.Equal(1, batch.Succeeded)
	s.Equal(4, batch.Failed)
	ids := make([]string, 0, len(batch.Results))
	for _, r := range batch.Results {
		ids = append(ids, r.DefinitionID)
	}
	s.Equal([]string{"def-a", "def-b", "def-c", "def-d", "def-e"}, ids)
	s.Equal(day("2024-02-20"), *s.stored("def-e").NextRunDate)
	s.ledger.AssertNumberOfCalls(s.T(), "Post", 5)
}

func (s *RunExecutorTestSuite) TestRun_RetriesOutcomeWrite() {
	store := &flakyOutcomeStore{Store: s.store, failures: 1}
	tracker := services.NewOccurrenceTracker(store, store, services.WithTrackerClock(fixedClock(s.now)))
	executor := services.NewRunExecutor(store, tracker, schedule.NewCalculator(),
		services.NewMaterializer(decimal.RequireFromString("0.01")),
		s.ledger,
		services.WithRunClock(fixedClock(s.now)),
	)
	s.seed(monthlyDefinition("def-1", "2024-01-31"))
	s.ledger.On("Post", mock.Anything, mock.Anything).
		Return(gateways.PostingReceipt{JournalEntryID: "je-1"}, nil).Once()

	result, err := executor.Run(s.ctx, "def-1", domain.RunOptions{})

	s.Require().NoError(err)
	s.True(result.Success)
	s.Equal(2, store.calls)
	s.Equal(map[domain.OccurrenceStatus]int{domain.OccurrenceCompleted: 1}, s.counts("def-1"))
	s.Equal(1, s.stored("def-1").TotalOccurrences)
}

func (s *RunExecutorTestSuite) TestRun_UnrecordedOutcomeReleasesTheDate() {
	store := &flakyOutcomeStore{Store: s.store, failures: 3}
	tracker := services.NewOccurrenceTracker(store, store, services.WithTrackerClock(fixedClock(s.now)))
	executor := services.NewRunExecutor(store, tracker, schedule.NewCalculator(),
		services.NewMaterializer(decimal.RequireFromString("0.01")),
		s.ledger,
		services.WithRunClock(fixedClock(s.now)),
	)
	s.seed(monthlyDefinition("def-1", "2024-01-31"))
	s.ledger.On("Post", mock.Anything, referenceFor("def-1", "2024-01-31")).
		Return(gateways.PostingReceipt{JournalEntryID: "je-1"}, nil).Twice()

	_, err := executor.Run(s.ctx, "def-1", domain.RunOptions{})
	s.Require().ErrorIs(err, apperrors.ErrInternal)
	s.Contains(err.Error(), "je-1")
	s.Equal(map[domain.OccurrenceStatus]int{domain.OccurrenceFailed: 1}, s.counts("def-1"))
	s.Equal(0, s.stored("def-1").TotalOccurrences)

	retried, err := executor.Run(s.ctx, "def-1", domain.RunOptions{})
	s.Require().NoError(err)
	s.True(retried.Success)
	s.Equal(day("2024-01-31"), *retried.ScheduledDate)
	s.Equal(map[domain.OccurrenceStatus]int{domain.OccurrenceFailed: 1, domain.OccurrenceCompleted: 1}, s.counts("def-1"))
	s.ledger.AssertExpectations(s.T())
}

func TestRunExecutor_PostingTimeoutHoldsWhenLedgerIgnoresContext(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx := context.Background()
	store := memory.NewStore()
	clock := fixedClock(time.Date(2024, time.January, 31, 10, 0, 0, 0, time.UTC))
	ledger := new(MockPostingService)
	tracker := services.NewOccurrenceTracker(store, store, services.WithTrackerClock(clock))
	executor := services.NewRunExecutor(store, tracker, schedule.NewCalculator(),
		services.NewMaterializer(decimal.RequireFromString("0.01")), ledger,
		services.WithRunClock(clock),
		services.WithPostingTimeout(50*time.Millisecond),
	)
	require.NoError(t, store.SaveDefinition(ctx, monthlyDefinition("def-1", "2024-01-31")))

	unblock := make(chan struct{})
	ledger.On("Post", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { <-unblock }).
		Return(gateways.PostingReceipt{JournalEntryID: "je-late"}, nil).Once()

	started := time.Now()
	result, err := executor.Run(ctx, "def-1", domain.RunOptions{})
	elapsed := time.Since(started)
	close(unblock)

	require.NoError(t, err)
	assert.Less(t, elapsed, 2*time.Second)
	assert.False(t, result.Success)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "did not answer within 50ms")

	counts, err := store.CountOccurrencesByStatus(ctx, "def-1")
	require.NoError(t, err)
	assert.Equal(t, map[domain.OccurrenceStatus]int{domain.OccurrenceFailed: 1}, counts)
	def, err := store.FindDefinitionByID(ctx, "def-1")
	require.NoError(t, err)
	assert.Equal(t, day("2024-01-31"), *def.NextRunDate)
}

func TestRunExecutor_LifecycleChangesWaitForRunningPost(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx := context.Background()
	store := memory.NewStore()
	clock := fixedClock(time.Date(2024, time.January, 31, 10, 0, 0, 0, time.UTC))
	calc := schedule.NewCalculator()
	locker := services.NewMemoryRunLocker()
	ledger := new(MockPostingService)
	tracker := services.NewOccurrenceTracker(store, store, services.WithTrackerClock(clock))
	executor := services.NewRunExecutor(store, tracker, calc,
		services.NewMaterializer(decimal.RequireFromString("0.01")), ledger,
		services.WithRunClock(clock),
		services.WithRunLocker(locker),
	)
	definitions := services.NewDefinitionService(store, calc,
		services.WithDefinitionClock(clock),
		services.WithDefinitionLocker(locker),
	)
	require.NoError(t, store.SaveDefinition(ctx, monthlyDefinition("def-1", "2024-01-31")))

	started := make(chan struct{})
	release := make(chan struct{})
	ledger.On("Post", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) {
			close(started)
			<-release
		}).
		Return(gateways.PostingReceipt{JournalEntryID: "je-1"}, nil).Once()

	type outcome struct {
		result *domain.RunResult
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := executor.Run(ctx, "def-1", domain.RunOptions{})
		done <- outcome{result, err}
	}()

	<-started
	_, err := definitions.CancelDefinition(ctx, "wp-1", "def-1", "user-1")
	assert.ErrorIs(t, err, apperrors.ErrRunInProgress)
	_, err = definitions.PauseDefinition(ctx, "wp-1", "def-1", "user-1")
	assert.ErrorIs(t, err, apperrors.ErrRunInProgress)
	name := "Renamed"
	_, err = definitions.UpdateDefinition(ctx, "wp-1", "def-1", dto.UpdateRecurringJournalRequest{Name: &name}, "user-1")
	assert.ErrorIs(t, err, apperrors.ErrRunInProgress)

	close(release)
	first := <-done
	require.NoError(t, first.err)
	assert.True(t, first.result.Success)

	cancelled, err := definitions.CancelDefinition(ctx, "wp-1", "def-1", "user-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, cancelled.Status)

	stored, err := store.FindDefinitionByID(ctx, "def-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, stored.Status)
	assert.Nil(t, stored.NextRunDate)
	assert.Equal(t, 1, stored.TotalOccurrences)

	_, err = executor.Run(ctx, "def-1", domain.RunOptions{})
	assert.ErrorIs(t, err, apperrors.ErrDefinitionInactive)
	ledger.AssertNumberOfCalls(t, "Post", 1)
}

func TestRunExecutor_ConcurrentRunIsRejected(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx := context.Background()
	store := memory.NewStore()
	clock := fixedClock(time.Date(2024, time.January, 31, 10, 0, 0, 0, time.UTC))
	ledger := new(MockPostingService)
	tracker := services.NewOccurrenceTracker(store, store, services.WithTrackerClock(clock))
	executor := services.NewRunExecutor(store, tracker, schedule.NewCalculator(),
		services.NewMaterializer(decimal.RequireFromString("0.01")), ledger,
		services.WithRunClock(clock),
	)
	require.NoError(t, store.SaveDefinition(ctx, monthlyDefinition("def-1", "2024-01-31")))

	started := make(chan struct{})
	release := make(chan struct{})
	ledger.On("Post", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) {
			close(started)
			<-release
		}).
		Return(gateways.PostingReceipt{JournalEntryID: "je-1"}, nil).Once()

	type outcome struct {
		result *domain.RunResult
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := executor.Run(ctx, "def-1", domain.RunOptions{})
		done <- outcome{result, err}
	}()

	<-started
	_, err := executor.Run(ctx, "def-1", domain.RunOptions{})
	assert.ErrorIs(t, err, apperrors.ErrRunInProgress)
	assert.ErrorIs(t, err, apperrors.ErrConflict)

	_, err = executor.SkipOccurrence(ctx, "def-1", "", "user-1")
	assert.ErrorIs(t, err, apperrors.ErrRunInProgress)

	close(release)
	first := <-done
	require.NoError(t, first.err)
	assert.True(t, first.result.Success)

	counts, err := store.CountOccurrencesByStatus(ctx, "def-1")
	require.NoError(t, err)
	assert.Equal(t, map[domain.OccurrenceStatus]int{domain.OccurrenceCompleted: 1}, counts)
	ledger.AssertNumberOfCalls(t, "Post", 1)
}
