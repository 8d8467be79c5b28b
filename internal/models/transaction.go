package models

import "github.com/shopspring/decimal"

// TransactionType indicates whether a transaction line is a Debit or a Credit.
type TransactionType string

const (
	Debit  TransactionType = "DEBIT"
	Credit TransactionType = "CREDIT"
)

// Transaction represents a single line item within a Journal, affecting one account.
type Transaction struct {
	TransactionID   string          `db:"transaction_id"`
	JournalID       string          `db:"journal_id"`
	AccountID       string          `db:"account_id"`
	Amount          decimal.Decimal `db:"amount"` // always positive
	TransactionType TransactionType `db:"transaction_type"`
	CurrencyCode    string          `db:"currency_code"`
	Notes           string          `db:"notes"`
	TaxCode         *string         `db:"tax_code"`
	TaxAmount       decimal.Decimal `db:"tax_amount"`
	Department      *string         `db:"department"`
	Project         *string         `db:"project"`
	RunningBalance  decimal.Decimal `db:"running_balance"`
	AuditFields
}
