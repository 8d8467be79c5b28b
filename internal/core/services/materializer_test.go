package services_test

import (
	"context"
	"errors"
	"testing"

	"github.com/SscSPs/recurring_journal_engine/internal/apperrors"
	"github.com/SscSPs/recurring_journal_engine/internal/core/domain"
	"github.com/SscSPs/recurring_journal_engine/internal/core/services"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var tolerance = decimal.RequireFromString("0.01")

func TestMaterializer_SameCurrencyCopiesTemplate(t *testing.T) {
	m := services.NewMaterializer(tolerance)
	def := monthlyDefinition("def-1", "2024-01-31")
	def.Template.Lines[0].Description = "January rent"

	draft, err := m.Materialize(context.Background(), def, day("2024-01-31"), nil)

	require.NoError(t, err)
	assert.Equal(t, "def-1", draft.DefinitionID)
	assert.Equal(t, "wp-1", draft.WorkplaceID)
	assert.Equal(t, "REC-def-1-2024-01-31", draft.Reference)
	assert.Equal(t, "USD", draft.CurrencyCode)
	assert.Equal(t, "USD", draft.SourceCurrency)
	assert.Nil(t, draft.ExchangeRate)
	require.Len(t, draft.Lines, 2)
	assert.Equal(t, "January rent", draft.Lines[0].Description)
	// lines without their own description take the template's
	assert.Equal(t, "Office rent", draft.Lines[1].Description)
	assert.True(t, draft.Lines[0].Debit.Equal(decimal.NewFromInt(100)))
	assert.True(t, draft.Lines[1].Credit.Equal(decimal.NewFromInt(100)))
	assert.True(t, draft.TotalDebit.Equal(draft.TotalCredit))
}

func TestMaterializer_FallsBackToDefinitionName(t *testing.T) {
	m := services.NewMaterializer(tolerance)
	def := monthlyDefinition("def-1", "2024-01-31")
	def.Template.Description = ""

	draft, err := m.Materialize(context.Background(), def, day("2024-01-31"), nil)

	require.NoError(t, err)
	assert.Equal(t, "Monthly rent", draft.Description)
}

func TestMaterializer_OverrideRateConvertsLines(t *testing.T) {
	rates := new(MockExchangeRateProvider)
	m := services.NewMaterializer(tolerance, services.WithPostingCurrency("eur"), services.WithExchangeRates(rates))
	rate := decimal.RequireFromString("0.9")

	draft, err := m.Materialize(context.Background(), monthlyDefinition("def-1", "2024-01-31"), day("2024-01-31"), &rate)

	require.NoError(t, err)
	assert.Equal(t, "EUR", draft.CurrencyCode)
	assert.Equal(t, "USD", draft.SourceCurrency)
	require.NotNil(t, draft.ExchangeRate)
	assert.True(t, draft.ExchangeRate.Equal(rate))
	assert.True(t, draft.TotalDebit.Equal(decimal.NewFromInt(90)))
	assert.True(t, draft.TotalCredit.Equal(decimal.NewFromInt(90)))
	rates.AssertNotCalled(t, "RateOn", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestMaterializer_UsesProviderRateForRunDate(t *testing.T) {
	rates := new(MockExchangeRateProvider)
	rates.On("RateOn", mock.Anything, "USD", "EUR", day("2024-01-31")).
		Return(decimal.RequireFromString("0.5"), nil).Once()
	m := services.NewMaterializer(tolerance, services.WithPostingCurrency("EUR"), services.WithExchangeRates(rates))

	draft, err := m.Materialize(context.Background(), monthlyDefinition("def-1", "2024-01-31"), day("2024-01-31"), nil)

	require.NoError(t, err)
	assert.True(t, draft.Lines[0].Debit.Equal(decimal.NewFromInt(50)))
	rates.AssertExpectations(t)
}

func TestMaterializer_RateErrors(t *testing.T) {
	def := monthlyDefinition("def-1", "2024-01-31")

	t.Run("no provider and no override", func(t *testing.T) {
		m := services.NewMaterializer(tolerance, services.WithPostingCurrency("EUR"))
		_, err := m.Materialize(context.Background(), def, day("2024-01-31"), nil)
		assert.ErrorIs(t, err, apperrors.ErrValidation)
	})

	t.Run("non-positive override", func(t *testing.T) {
		m := services.NewMaterializer(tolerance, services.WithPostingCurrency("EUR"))
		zero := decimal.Zero
		_, err := m.Materialize(context.Background(), def, day("2024-01-31"), &zero)
		assert.ErrorIs(t, err, apperrors.ErrValidation)
	})

	t.Run("provider failure", func(t *testing.T) {
		rates := new(MockExchangeRateProvider)
		rates.On("RateOn", mock.Anything, "USD", "EUR", mock.Anything).
			Return(decimal.Zero, apperrors.ErrNotFound)
		m := services.NewMaterializer(tolerance, services.WithPostingCurrency("EUR"), services.WithExchangeRates(rates))
		_, err := m.Materialize(context.Background(), def, day("2024-01-31"), nil)
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
	})
}

func TestMaterializer_RoundingAfterConversionCanUnbalance(t *testing.T) {
	m := services.NewMaterializer(decimal.Zero, services.WithPostingCurrency("EUR"))
	def := monthlyDefinition("def-1", "2024-01-31")
	def.Template.Lines = []domain.TemplateLine{
		{LineNo: 1, AccountID: "acc-rent", Debit: decimal.RequireFromString("0.05"), Credit: decimal.Zero},
		{LineNo: 2, AccountID: "acc-fees", Debit: decimal.RequireFromString("0.05"), Credit: decimal.Zero},
		{LineNo: 3, AccountID: "acc-cash", Debit: decimal.Zero, Credit: decimal.RequireFromString("0.10")},
	}
	rate := decimal.RequireFromString("0.5")

	draft, err := m.Materialize(context.Background(), def, day("2024-01-31"), &rate)

	assert.Nil(t, draft)
	var unbalanced *apperrors.UnbalancedError
	require.True(t, errors.As(err, &unbalanced))
	assert.Equal(t, "0.06", unbalanced.Debits)
	assert.Equal(t, "0.05", unbalanced.Credits)
}

func TestMaterializer_ComputesTaxPerLine(t *testing.T) {
	tax := new(MockTaxEngine)
	tax.On("ComputeTax", mock.Anything, "VAT20",
		mock.MatchedBy(func(base decimal.Decimal) bool { return base.Equal(decimal.NewFromInt(100)) }),
		day("2024-01-31")).
		Return(decimal.RequireFromString("20.004"), nil).Once()
	m := services.NewMaterializer(tolerance, services.WithTaxEngine(tax))
	def := monthlyDefinition("def-1", "2024-01-31")
	code := "VAT20"
	def.Template.Lines[0].TaxCode = &code

	draft, err := m.Materialize(context.Background(), def, day("2024-01-31"), nil)

	require.NoError(t, err)
	assert.True(t, draft.Lines[0].TaxAmount.Equal(decimal.RequireFromString("20.00")))
	assert.True(t, draft.Lines[1].TaxAmount.IsZero())
	tax.AssertExpectations(t)
}

func TestMaterializer_TaxCodeWithoutEngine(t *testing.T) {
	m := services.NewMaterializer(tolerance)
	def := monthlyDefinition("def-1", "2024-01-31")
	code := "VAT20"
	def.Template.Lines[0].TaxCode = &code

	_, err := m.Materialize(context.Background(), def, day("2024-01-31"), nil)

	assert.ErrorIs(t, err, apperrors.ErrConfiguration)
}

func TestMaterializer_RejectsMalformedTemplate(t *testing.T) {
	m := services.NewMaterializer(tolerance)
	def := monthlyDefinition("def-1", "2024-01-31")
	def.Template.Lines = def.Template.Lines[:1]

	_, err := m.Materialize(context.Background(), def, day("2024-01-31"), nil)

	assert.ErrorIs(t, err, apperrors.ErrValidation)
}
