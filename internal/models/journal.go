package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// JournalStatus indicates the state of a journal entry.
type JournalStatus string

const (
	Posted JournalStatus = "POSTED"
)

// Journal represents a single, balanced financial event composed of multiple transactions.
type Journal struct {
	JournalID    string          `db:"journal_id"`
	WorkplaceID  string          `db:"workplace_id"`
	JournalDate  time.Time       `db:"journal_date"`
	Description  string          `db:"description"`
	CurrencyCode string          `db:"currency_code"`
	Status       JournalStatus   `db:"status"`
	Amount       decimal.Decimal `db:"amount"`
	// Reference is unique; recurring postings use it to reject duplicates.
	Reference *string `db:"reference"`
	AuditFields
}
