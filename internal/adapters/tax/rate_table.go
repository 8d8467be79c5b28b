// Package tax computes line taxes from a flat table of percentage rates.
package tax

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/SscSPs/recurring_journal_engine/internal/apperrors"
	"github.com/SscSPs/recurring_journal_engine/internal/core/ports/gateways"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// RateTable is a gateways.TaxEngine keyed by tax code. Rates are percentages and do not
// vary by date.
type RateTable struct {
	rates map[string]decimal.Decimal
}

var _ gateways.TaxEngine = (*RateTable)(nil)

// NewRateTable creates a RateTable. Codes are matched case-insensitively.
func NewRateTable(percentages map[string]decimal.Decimal) *RateTable {
	rates := make(map[string]decimal.Decimal, len(percentages))
	for code, pct := range percentages {
		rates[strings.ToUpper(code)] = pct
	}
	return &RateTable{rates: rates}
}

// Len returns the number of configured tax codes.
func (t *RateTable) Len() int {
	return len(t.rates)
}

// ComputeTax implements gateways.TaxEngine.
func (t *RateTable) ComputeTax(_ context.Context, taxCode string, taxableBase decimal.Decimal, _ time.Time) (decimal.Decimal, error) {
	pct, ok := t.rates[strings.ToUpper(taxCode)]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: unknown tax code '%s'", apperrors.ErrValidation, taxCode)
	}
	return taxableBase.Mul(pct).Div(hundred), nil
}
