package repositories

import "github.com/SscSPs/recurring_journal_engine/internal/core/ports/gateways"

// RepositoryProvider holds all repository interfaces needed by services.
// This makes passing dependencies to the service container constructor cleaner.
type RepositoryProvider struct {
	DefinitionRepo DefinitionRepositoryFacade
	OccurrenceRepo OccurrenceRepositoryFacade
	AccountRepo    gateways.AccountLookup
	ExchangeRates  gateways.ExchangeRateProvider
	Ledger         gateways.PostingService
}
