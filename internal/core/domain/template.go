package domain

import (
	"fmt"
	"time"

	"github.com/SscSPs/recurring_journal_engine/internal/apperrors"
	"github.com/shopspring/decimal"
)

// TemplateLine is one line spec of an entry template. Exactly one of Debit and Credit is positive.
type TemplateLine struct {
	LineNo       int               `json:"lineNo"`
	AccountID    string            `json:"accountID"`
	Debit        decimal.Decimal   `json:"debit"`
	Credit       decimal.Decimal   `json:"credit"`
	Description  string            `json:"description"`
	TaxCode      *string           `json:"taxCode,omitempty"`
	Department   *string           `json:"department,omitempty"`
	Project      *string           `json:"project,omitempty"`
	CustomFields map[string]string `json:"customFields,omitempty"`
}

// IsDebit reports whether the line posts to the debit side.
func (l TemplateLine) IsDebit() bool {
	return l.Debit.IsPositive()
}

// EntryTemplate is the reusable ledger-line blueprint copied into a journal entry at run time.
type EntryTemplate struct {
	Description  string         `json:"description"`
	CurrencyCode string         `json:"currencyCode"`
	Lines        []TemplateLine `json:"lines"`
}

// Totals returns the debit and credit sums of the template.
func (t EntryTemplate) Totals() (decimal.Decimal, decimal.Decimal) {
	debits, credits := decimal.Zero, decimal.Zero
	for _, line := range t.Lines {
		debits = debits.Add(line.Debit)
		credits = credits.Add(line.Credit)
	}
	return debits, credits
}

// AccountIDs returns the distinct account references in line order.
func (t EntryTemplate) AccountIDs() []string {
	seen := make(map[string]struct{}, len(t.Lines))
	ids := make([]string, 0, len(t.Lines))
	for _, line := range t.Lines {
		if _, ok := seen[line.AccountID]; ok {
			continue
		}
		seen[line.AccountID] = struct{}{}
		ids = append(ids, line.AccountID)
	}
	return ids
}

// ValidateLines checks line shape. Balance is checked separately against a tolerance.
func (t EntryTemplate) ValidateLines() error {
	if len(t.Lines) < 2 {
		return fmt.Errorf("%w: template must have at least two lines", apperrors.ErrValidation)
	}
	if t.CurrencyCode == "" {
		return fmt.Errorf("%w: template currency is required", apperrors.ErrValidation)
	}
	for i, line := range t.Lines {
		if line.AccountID == "" {
			return fmt.Errorf("%w: line %d has no account", apperrors.ErrValidation, i+1)
		}
		if line.Debit.IsNegative() || line.Credit.IsNegative() {
			return fmt.Errorf("%w: line %d has a negative amount", apperrors.ErrValidation, i+1)
		}
		if line.Debit.IsPositive() == line.Credit.IsPositive() {
			return fmt.Errorf("%w: line %d must have exactly one of debit or credit", apperrors.ErrValidation, i+1)
		}
	}
	return nil
}

// DraftLine is a dated, currency-converted template line.
type DraftLine struct {
	AccountID    string            `json:"accountID"`
	Debit        decimal.Decimal   `json:"debit"`
	Credit       decimal.Decimal   `json:"credit"`
	Description  string            `json:"description"`
	TaxCode      *string           `json:"taxCode,omitempty"`
	TaxAmount    decimal.Decimal   `json:"taxAmount"`
	Department   *string           `json:"department,omitempty"`
	Project      *string           `json:"project,omitempty"`
	CustomFields map[string]string `json:"customFields,omitempty"`
}

// JournalEntryDraft is the balanced entry handed to the posting collaborator.
type JournalEntryDraft struct {
	DefinitionID   string           `json:"definitionID"`
	WorkplaceID    string           `json:"workplaceID"`
	Reference      string           `json:"reference"`
	EntryDate      time.Time        `json:"entryDate"`
	Description    string           `json:"description"`
	CurrencyCode   string           `json:"currencyCode"`
	SourceCurrency string           `json:"sourceCurrency"`
	ExchangeRate   *decimal.Decimal `json:"exchangeRate,omitempty"`
	Lines          []DraftLine      `json:"lines"`
	TotalDebit     decimal.Decimal  `json:"totalDebit"`
	TotalCredit    decimal.Decimal  `json:"totalCredit"`
}

// DraftReference builds the stable reference of the entry a definition posts for a date.
// The ledger can use it to reject duplicates.
func DraftReference(definitionID string, date time.Time) string {
	return "REC-" + definitionID + "-" + FormatDate(date)
}
