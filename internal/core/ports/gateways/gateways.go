package gateways

import (
	"context"
	"time"

	"github.com/SscSPs/recurring_journal_engine/internal/core/domain"
	"github.com/shopspring/decimal"
)

// AccountLookup resolves account references against the chart of accounts.
type AccountLookup interface {
	// FindAccountsByIDs returns the accounts that exist, keyed by ID. Missing IDs are simply absent.
	FindAccountsByIDs(ctx context.Context, accountIDs []string) (map[string]domain.Account, error)
}

// TaxEngine computes the tax amount of a line.
type TaxEngine interface {
	// ComputeTax returns the tax owed on taxableBase for the given tax code.
	ComputeTax(ctx context.Context, taxCode string, taxableBase decimal.Decimal, on time.Time) (decimal.Decimal, error)
}

// ExchangeRateProvider supplies conversion rates between currencies.
type ExchangeRateProvider interface {
	// RateOn returns the rate effective on the given date for converting from -> to.
	RateOn(ctx context.Context, fromCurrencyCode, toCurrencyCode string, on time.Time) (decimal.Decimal, error)
}

// HolidayCalendar answers whether a date is a non-business day.
type HolidayCalendar interface {
	IsHoliday(ctx context.Context, date time.Time) (bool, error)
}

// PostingReceipt is returned by the ledger for an accepted entry.
type PostingReceipt struct {
	JournalEntryID string
}

// PostingService posts a balanced draft to the general ledger. A post is atomic per entry.
type PostingService interface {
	Post(ctx context.Context, draft domain.JournalEntryDraft) (PostingReceipt, error)
}

// Clock supplies the current time. Injected so tests are deterministic.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to the Clock interface.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

// SystemClock is the wall clock in UTC.
var SystemClock Clock = ClockFunc(func() time.Time { return time.Now().UTC() })

// RunLocker guards a definition against concurrent runs.
type RunLocker interface {
	// TryAcquire takes the lock for key without waiting. It returns apperrors.ErrRunInProgress
	// when the lock is already held. The returned release function is safe to call once.
	TryAcquire(ctx context.Context, key string) (release func(), err error)
}

// RunNotifier is told about finished runs when the caller asked for a notification.
type RunNotifier interface {
	NotifyRunCompleted(ctx context.Context, definition domain.RecurringJournalDefinition, result domain.RunResult) error
}
