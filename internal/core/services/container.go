package services

import (
	"github.com/SscSPs/recurring_journal_engine/internal/core/ports/gateways"
	portsrepo "github.com/SscSPs/recurring_journal_engine/internal/core/ports/repositories"
	portssvc "github.com/SscSPs/recurring_journal_engine/internal/core/ports/services"
	"github.com/SscSPs/recurring_journal_engine/internal/core/schedule"
	"github.com/SscSPs/recurring_journal_engine/internal/platform/config"
)

// Collaborators are the optional outside systems the engine consults.
// Nil members fall back to in-process defaults or are skipped.
type Collaborators struct {
	Tax      gateways.TaxEngine
	Holidays gateways.HolidayCalendar
	Locker   gateways.RunLocker
	Notifier gateways.RunNotifier
	Clock    gateways.Clock
}

// NewServiceContainer creates a new service container with properly initialized dependencies
func NewServiceContainer(cfg *config.Config, repos portsrepo.RepositoryProvider, collab Collaborators) *portssvc.ServiceContainer {
	clock := collab.Clock
	if clock == nil {
		clock = gateways.SystemClock
	}
	calc := schedule.NewCalculator()

	materializer := NewMaterializer(cfg.BalanceTolerance,
		WithTaxEngine(collab.Tax),
		WithExchangeRates(repos.ExchangeRates),
		WithPostingCurrency(cfg.PostingCurrency),
	)
	postingTimeout := cfg.PostingTimeout
	if postingTimeout <= 0 {
		postingTimeout = defaultPostingTimeout
	}
	tracker := NewOccurrenceTracker(repos.OccurrenceRepo, repos.DefinitionRepo,
		WithTrackerClock(clock),
		WithStaleAfter(postingTimeout+staleMargin),
	)

	// runs and lifecycle changes of one definition exclude each other
	locker := collab.Locker
	if locker == nil {
		locker = NewMemoryRunLocker()
	}
	runOptions := []RunExecutorOption{
		WithRunAccountLookup(repos.AccountRepo),
		WithPostingTimeout(postingTimeout),
		WithRunClock(clock),
		WithRunLocker(locker),
	}
	if collab.Notifier != nil {
		runOptions = append(runOptions, WithRunNotifier(collab.Notifier))
	}

	return &portssvc.ServiceContainer{
		Definition: NewDefinitionService(repos.DefinitionRepo, calc,
			WithAccountLookup(repos.AccountRepo),
			WithDefinitionClock(clock),
			WithBalanceTolerance(cfg.BalanceTolerance),
			WithDefinitionLocker(locker),
		),
		Preview:    NewPreviewService(repos.DefinitionRepo, schedule.NewPreviewer(calc, collab.Holidays)),
		Occurrence: tracker,
		Run:        NewRunExecutor(repos.DefinitionRepo, tracker, calc, materializer, repos.Ledger, runOptions...),
	}
}
