package pgsql

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/SscSPs/recurring_journal_engine/internal/apperrors"
	"github.com/SscSPs/recurring_journal_engine/internal/core/domain"
	"github.com/SscSPs/recurring_journal_engine/internal/core/ports/gateways"
	"github.com/SscSPs/recurring_journal_engine/internal/utils/accounting"
	"github.com/SscSPs/recurring_journal_engine/internal/utils/mapping"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const (
	journalReferenceConstraint = "journals_reference_key"
	recurringPoster            = "recurring-journal-engine"
)

// PgxJournalRepository is the general ledger the engine posts into.
type PgxJournalRepository struct {
	BaseRepository
	accountRepo *PgxAccountRepository
	now         func() time.Time
}

func newPgxJournalRepository(pool *pgxpool.Pool, accountRepo *PgxAccountRepository) *PgxJournalRepository {
	return &PgxJournalRepository{
		BaseRepository: BaseRepository{Pool: pool},
		accountRepo:    accountRepo,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

var _ gateways.PostingService = (*PgxJournalRepository)(nil)

// Post saves the draft as a journal with one transaction per line and applies the balance
// changes, all in one database transaction. A draft whose reference was already posted
// returns the existing journal instead of posting twice.
func (r *PgxJournalRepository) Post(ctx context.Context, draft domain.JournalEntryDraft) (gateways.PostingReceipt, error) {
	journalID := uuid.NewString()
	err := r.saveJournal(ctx, journalID, draft)
	if err == nil {
		return gateways.PostingReceipt{JournalEntryID: journalID}, nil
	}
	if draft.Reference != "" && isUniqueViolation(err, journalReferenceConstraint) {
		existing, findErr := r.findJournalIDByReference(ctx, draft.Reference)
		if findErr != nil {
			return gateways.PostingReceipt{}, findErr
		}
		slog.InfoContext(ctx, "Journal already posted for reference", "reference", draft.Reference, "journal_id", existing)
		return gateways.PostingReceipt{JournalEntryID: existing}, nil
	}
	return gateways.PostingReceipt{}, err
}

func (r *PgxJournalRepository) saveJournal(ctx context.Context, journalID string, draft domain.JournalEntryDraft) error {
	tx, err := r.Begin(ctx)
	if err != nil {
		return err
	}
	defer r.Rollback(ctx, tx)

	now := r.now()

	// 1. Insert the journal header
	modelJournal := mapping.ToModelJournal(draft, journalID, recurringPoster, now)
	journalQuery := `
		INSERT INTO journals (
			journal_id, workplace_id, journal_date, description, currency_code, status, amount, reference,
			created_at, created_by, last_updated_at, last_updated_by
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12);
	`
	_, err = tx.Exec(ctx, journalQuery,
		modelJournal.JournalID,
		modelJournal.WorkplaceID,
		modelJournal.JournalDate,
		modelJournal.Description,
		modelJournal.CurrencyCode,
		modelJournal.Status,
		modelJournal.Amount,
		modelJournal.Reference,
		modelJournal.CreatedAt,
		modelJournal.CreatedBy,
		modelJournal.LastUpdatedAt,
		modelJournal.LastUpdatedBy,
	)
	if err != nil {
		if isUniqueViolation(err, journalReferenceConstraint) {
			return err
		}
		return apperrors.NewAppError(500, "failed to insert journal "+journalID, err)
	}

	// 2. Lock accounts and get current balances
	accountIDs := make([]string, 0, len(draft.Lines))
	seen := make(map[string]struct{}, len(draft.Lines))
	for _, line := range draft.Lines {
		if _, ok := seen[line.AccountID]; !ok {
			seen[line.AccountID] = struct{}{}
			accountIDs = append(accountIDs, line.AccountID)
		}
	}
	lockedAccounts, err := r.accountRepo.FindAccountsByIDsForUpdate(ctx, tx, accountIDs)
	if err != nil {
		return apperrors.NewAppError(500, "failed to lock accounts for update", err)
	}

	accountTypes := make(map[string]domain.AccountType, len(lockedAccounts))
	for id, acc := range lockedAccounts {
		accountTypes[id] = acc.AccountType
	}
	balanceChanges, err := accounting.BalanceChanges(draft.Lines, accountTypes)
	if err != nil {
		return err
	}

	// 3. Update account balances
	if err := r.accountRepo.UpdateAccountBalancesInTx(ctx, tx, balanceChanges, recurringPoster, now); err != nil {
		return apperrors.NewAppError(500, "failed to update account balances", err)
	}

	// 4. Insert transaction lines with running balances in line order
	batch := &pgx.Batch{}
	txnQuery := `
		INSERT INTO transactions (
			transaction_id, journal_id, account_id, amount, transaction_type, currency_code, notes,
			tax_code, tax_amount, department, project,
			created_at, created_by, last_updated_at, last_updated_by, running_balance
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16);
	`
	runningBalances := make(map[string]decimal.Decimal, len(lockedAccounts))
	for accID, acc := range lockedAccounts {
		runningBalances[accID] = acc.Balance
	}
	audit := modelJournal.AuditFields
	for _, line := range draft.Lines {
		modelTxn := mapping.ToModelTransaction(line, uuid.NewString(), journalID, draft.CurrencyCode, audit)

		amount, isDebit := accounting.LineAmount(line)
		signed, err := accounting.SignedAmount(amount, isDebit, accountTypes[line.AccountID])
		if err != nil {
			return apperrors.NewAppError(500, "failed to calculate signed amount for account "+line.AccountID, err)
		}
		runningBalances[line.AccountID] = runningBalances[line.AccountID].Add(signed)
		modelTxn.RunningBalance = runningBalances[line.AccountID]

		batch.Queue(txnQuery,
			modelTxn.TransactionID,
			modelTxn.JournalID,
			modelTxn.AccountID,
			modelTxn.Amount,
			modelTxn.TransactionType,
			modelTxn.CurrencyCode,
			modelTxn.Notes,
			modelTxn.TaxCode,
			modelTxn.TaxAmount,
			modelTxn.Department,
			modelTxn.Project,
			modelTxn.CreatedAt,
			modelTxn.CreatedBy,
			modelTxn.LastUpdatedAt,
			modelTxn.LastUpdatedBy,
			modelTxn.RunningBalance,
		)
	}

	// 5. Send the batch of transaction inserts
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return apperrors.NewAppError(500, "failed to execute transaction batch for journal "+journalID, err)
	}

	return r.Commit(ctx, tx)
}

func (r *PgxJournalRepository) findJournalIDByReference(ctx context.Context, reference string) (string, error) {
	var journalID string
	err := r.Pool.QueryRow(ctx, `SELECT journal_id FROM journals WHERE reference = $1;`, reference).Scan(&journalID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("%w: journal with reference %s", apperrors.ErrNotFound, reference)
		}
		return "", apperrors.NewAppError(500, "failed to find journal by reference "+reference, err)
	}
	return journalID, nil
}
