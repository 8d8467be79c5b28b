package pgsql

import (
	portsrepo "github.com/SscSPs/recurring_journal_engine/internal/core/ports/repositories"
	"github.com/jackc/pgx/v5/pgxpool"
)

// NewRepositoryProvider wires every Postgres-backed repository and ledger gateway.
func NewRepositoryProvider(dbPool *pgxpool.Pool) portsrepo.RepositoryProvider {
	accountRepo := newPgxAccountRepository(dbPool)
	definitionRepo := newPgxDefinitionRepository(dbPool)
	occurrenceRepo := newPgxOccurrenceRepository(dbPool)
	exchangeRateRepo := newPgxExchangeRateRepository(dbPool)
	journalRepo := newPgxJournalRepository(dbPool, accountRepo)

	return portsrepo.RepositoryProvider{
		DefinitionRepo: definitionRepo,
		OccurrenceRepo: occurrenceRepo,
		AccountRepo:    accountRepo,
		ExchangeRates:  exchangeRateRepo,
		Ledger:         journalRepo,
	}
}
