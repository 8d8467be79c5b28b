package accounting

import (
	"fmt"

	"github.com/SscSPs/recurring_journal_engine/internal/apperrors"
	"github.com/SscSPs/recurring_journal_engine/internal/core/domain"
	"github.com/shopspring/decimal"
)

// AmountScale is the number of decimal places money amounts are rounded to after conversion.
const AmountScale = 2

// SignedAmount applies the correct sign to a line amount based on account type and side.
//
// DEBIT to ASSET/EXPENSE -> Positive (+)
// CREDIT to ASSET/EXPENSE -> Negative (-)
// DEBIT to LIABILITY/EQUITY/INCOME -> Negative (-)
// CREDIT to LIABILITY/EQUITY/INCOME -> Positive (+)
func SignedAmount(amount decimal.Decimal, isDebit bool, accountType domain.AccountType) (decimal.Decimal, error) {
	switch accountType {
	case domain.Asset, domain.Expense:
		if !isDebit {
			return amount.Neg(), nil
		}
	case domain.Liability, domain.Equity, domain.Income:
		if isDebit {
			return amount.Neg(), nil
		}
	default:
		return decimal.Zero, fmt.Errorf("unknown account type '%s'", accountType)
	}
	return amount, nil
}

// LineAmount returns the non-zero side of a draft line and whether it is a debit.
func LineAmount(line domain.DraftLine) (decimal.Decimal, bool) {
	if line.Debit.IsPositive() {
		return line.Debit, true
	}
	return line.Credit, false
}

// ValidateBalance checks that debits and credits differ by no more than tolerance.
// The returned error is an *apperrors.UnbalancedError.
func ValidateBalance(debits, credits, tolerance decimal.Decimal) error {
	if debits.Sub(credits).Abs().GreaterThan(tolerance.Abs()) {
		return &apperrors.UnbalancedError{Debits: debits.String(), Credits: credits.String()}
	}
	return nil
}

// ValidateTemplateBalance checks the totals of an entry template against tolerance.
func ValidateTemplateBalance(t domain.EntryTemplate, tolerance decimal.Decimal) error {
	debits, credits := t.Totals()
	return ValidateBalance(debits, credits, tolerance)
}

// BalanceChanges sums the signed effect of a draft on each account it touches.
func BalanceChanges(lines []domain.DraftLine, accountTypes map[string]domain.AccountType) (map[string]decimal.Decimal, error) {
	changes := make(map[string]decimal.Decimal, len(lines))
	for i, line := range lines {
		accountType, ok := accountTypes[line.AccountID]
		if !ok {
			return nil, fmt.Errorf("%w: account type not found for account ID %s", apperrors.ErrNotFound, line.AccountID)
		}
		amount, isDebit := LineAmount(line)
		signed, err := SignedAmount(amount, isDebit, accountType)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		changes[line.AccountID] = changes[line.AccountID].Add(signed)
	}
	return changes, nil
}
