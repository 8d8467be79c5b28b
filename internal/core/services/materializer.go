package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/SscSPs/recurring_journal_engine/internal/apperrors"
	"github.com/SscSPs/recurring_journal_engine/internal/core/domain"
	"github.com/SscSPs/recurring_journal_engine/internal/core/ports/gateways"
	"github.com/SscSPs/recurring_journal_engine/internal/utils/accounting"
	"github.com/shopspring/decimal"
)

// Materializer expands an entry template into a dated, balanced journal entry draft.
// It reads from its collaborators but never writes anything.
type Materializer struct {
	tax             gateways.TaxEngine
	rates           gateways.ExchangeRateProvider
	postingCurrency string
	tolerance       decimal.Decimal
}

// MaterializerOption configures a Materializer.
type MaterializerOption func(*Materializer)

// WithTaxEngine sets the collaborator that computes tax for lines with a tax code.
func WithTaxEngine(tax gateways.TaxEngine) MaterializerOption {
	return func(m *Materializer) {
		m.tax = tax
	}
}

// WithExchangeRates sets the provider consulted when the caller supplies no rate.
func WithExchangeRates(rates gateways.ExchangeRateProvider) MaterializerOption {
	return func(m *Materializer) {
		m.rates = rates
	}
}

// WithPostingCurrency sets the ledger currency drafts are converted into.
// An empty currency posts every template in its own currency.
func WithPostingCurrency(code string) MaterializerOption {
	return func(m *Materializer) {
		m.postingCurrency = strings.ToUpper(code)
	}
}

// NewMaterializer creates a Materializer that accepts imbalances up to tolerance.
func NewMaterializer(tolerance decimal.Decimal, options ...MaterializerOption) *Materializer {
	m := &Materializer{tolerance: tolerance.Abs()}
	for _, option := range options {
		option(m)
	}
	return m
}

// Tolerance returns the balance tolerance the materializer enforces.
func (m *Materializer) Tolerance() decimal.Decimal {
	return m.tolerance
}

// Materialize builds the draft a definition posts on runDate. A non-nil rate overrides the
// exchange-rate provider. An unbalanced result yields an *apperrors.UnbalancedError and no draft.
func (m *Materializer) Materialize(ctx context.Context, def domain.RecurringJournalDefinition, runDate time.Time, rate *decimal.Decimal) (*domain.JournalEntryDraft, error) {
	tmpl := def.Template
	if err := tmpl.ValidateLines(); err != nil {
		return nil, err
	}
	if err := accounting.ValidateTemplateBalance(tmpl, m.tolerance); err != nil {
		return nil, err
	}

	runDate = domain.DateOf(runDate)
	sourceCurrency := strings.ToUpper(tmpl.CurrencyCode)
	targetCurrency := sourceCurrency
	var appliedRate *decimal.Decimal
	if m.postingCurrency != "" && m.postingCurrency != sourceCurrency {
		resolved, err := m.resolveRate(ctx, sourceCurrency, m.postingCurrency, runDate, rate)
		if err != nil {
			return nil, err
		}
		targetCurrency = m.postingCurrency
		appliedRate = &resolved
	}

	lines := make([]domain.DraftLine, 0, len(tmpl.Lines))
	totalDebit, totalCredit := decimal.Zero, decimal.Zero
	for _, tl := range tmpl.Lines {
		line := domain.DraftLine{
			AccountID:    tl.AccountID,
			Debit:        convert(tl.Debit, appliedRate),
			Credit:       convert(tl.Credit, appliedRate),
			Description:  tl.Description,
			TaxCode:      tl.TaxCode,
			TaxAmount:    decimal.Zero,
			Department:   tl.Department,
			Project:      tl.Project,
			CustomFields: tl.CustomFields,
		}
		if line.Description == "" {
			line.Description = tmpl.Description
		}
		if tl.TaxCode != nil && *tl.TaxCode != "" {
			taxAmount, err := m.computeTax(ctx, *tl.TaxCode, line, runDate)
			if err != nil {
				return nil, err
			}
			line.TaxAmount = taxAmount
		}
		totalDebit = totalDebit.Add(line.Debit)
		totalCredit = totalCredit.Add(line.Credit)
		lines = append(lines, line)
	}

	// rounding after conversion can move the sums apart
	if err := accounting.ValidateBalance(totalDebit, totalCredit, m.tolerance); err != nil {
		return nil, err
	}

	description := tmpl.Description
	if description == "" {
		description = def.Name
	}
	return &domain.JournalEntryDraft{
		DefinitionID:   def.DefinitionID,
		WorkplaceID:    def.WorkplaceID,
		Reference:      domain.DraftReference(def.DefinitionID, runDate),
		EntryDate:      runDate,
		Description:    description,
		CurrencyCode:   targetCurrency,
		SourceCurrency: sourceCurrency,
		ExchangeRate:   appliedRate,
		Lines:          lines,
		TotalDebit:     totalDebit,
		TotalCredit:    totalCredit,
	}, nil
}

func (m *Materializer) resolveRate(ctx context.Context, from, to string, on time.Time, override *decimal.Decimal) (decimal.Decimal, error) {
	if override != nil {
		if !override.IsPositive() {
			return decimal.Zero, fmt.Errorf("%w: exchange rate must be positive, got %s", apperrors.ErrValidation, override.String())
		}
		return *override, nil
	}
	if m.rates == nil {
		return decimal.Zero, fmt.Errorf("%w: no exchange rate available for %s to %s", apperrors.ErrValidation, from, to)
	}
	rate, err := m.rates.RateOn(ctx, from, to, on)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to resolve exchange rate %s to %s on %s: %w", from, to, domain.FormatDate(on), err)
	}
	if !rate.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: exchange rate %s to %s is not positive", apperrors.ErrValidation, from, to)
	}
	return rate, nil
}

func (m *Materializer) computeTax(ctx context.Context, code string, line domain.DraftLine, on time.Time) (decimal.Decimal, error) {
	if m.tax == nil {
		return decimal.Zero, fmt.Errorf("%w: line uses tax code %s but no tax engine is configured", apperrors.ErrConfiguration, code)
	}
	base, _ := accounting.LineAmount(line)
	amount, err := m.tax.ComputeTax(ctx, code, base, on)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to compute tax %s for account %s: %w", code, line.AccountID, err)
	}
	return amount.Round(accounting.AmountScale), nil
}

func convert(amount decimal.Decimal, rate *decimal.Decimal) decimal.Decimal {
	if rate == nil || amount.IsZero() {
		return amount
	}
	return amount.Mul(*rate).Round(accounting.AmountScale)
}
