package mapping

import (
	"time"

	"github.com/SscSPs/recurring_journal_engine/internal/core/domain"
	"github.com/SscSPs/recurring_journal_engine/internal/models"
)

// ToModelJournal converts a journal entry draft to the journal header row.
func ToModelJournal(draft domain.JournalEntryDraft, journalID, userID string, now time.Time) models.Journal {
	reference := draft.Reference
	m := models.Journal{
		JournalID:    journalID,
		WorkplaceID:  draft.WorkplaceID,
		JournalDate:  draft.EntryDate,
		Description:  draft.Description,
		CurrencyCode: draft.CurrencyCode,
		Status:       models.Posted,
		Amount:       draft.TotalDebit,
		AuditFields: models.AuditFields{
			CreatedAt:     now,
			CreatedBy:     userID,
			LastUpdatedAt: now,
			LastUpdatedBy: userID,
		},
	}
	if reference != "" {
		m.Reference = &reference
	}
	return m
}

// ToModelTransaction converts one draft line to a transaction row. The amount is always
// positive; the side is carried by the transaction type.
func ToModelTransaction(line domain.DraftLine, transactionID, journalID, currencyCode string, audit models.AuditFields) models.Transaction {
	m := models.Transaction{
		TransactionID:   transactionID,
		JournalID:       journalID,
		AccountID:       line.AccountID,
		Amount:          line.Debit,
		TransactionType: models.Debit,
		CurrencyCode:    currencyCode,
		Notes:           line.Description,
		TaxCode:         line.TaxCode,
		TaxAmount:       line.TaxAmount,
		Department:      line.Department,
		Project:         line.Project,
		AuditFields:     audit,
	}
	if !line.Debit.IsPositive() {
		m.Amount = line.Credit
		m.TransactionType = models.Credit
	}
	return m
}
