package pgsql

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/SscSPs/recurring_journal_engine/internal/apperrors"
	"github.com/SscSPs/recurring_journal_engine/internal/core/domain"
	"github.com/SscSPs/recurring_journal_engine/internal/core/ports/gateways"
	"github.com/SscSPs/recurring_journal_engine/internal/models"
	"github.com/SscSPs/recurring_journal_engine/internal/utils/mapping"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// PgxExchangeRateRepository answers rate lookups from the exchange_rates table.
type PgxExchangeRateRepository struct {
	BaseRepository
}

func newPgxExchangeRateRepository(pool *pgxpool.Pool) *PgxExchangeRateRepository {
	return &PgxExchangeRateRepository{BaseRepository: BaseRepository{Pool: pool}}
}

var _ gateways.ExchangeRateProvider = (*PgxExchangeRateRepository)(nil)

// RateOn returns the latest rate effective on or before the given date. When only the inverse
// pair is stored, its reciprocal is used.
func (r *PgxExchangeRateRepository) RateOn(ctx context.Context, fromCurrency, toCurrency string, on time.Time) (decimal.Decimal, error) {
	fromCurrency = strings.ToUpper(fromCurrency)
	toCurrency = strings.ToUpper(toCurrency)
	if fromCurrency == toCurrency {
		return decimal.NewFromInt(1), nil
	}

	rate, err := r.findRate(ctx, fromCurrency, toCurrency, on)
	if err == nil {
		return rate.Rate, nil
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		return decimal.Zero, err
	}

	inverse, inverseErr := r.findRate(ctx, toCurrency, fromCurrency, on)
	if inverseErr != nil {
		if errors.Is(inverseErr, apperrors.ErrNotFound) {
			return decimal.Zero, fmt.Errorf("%w: no exchange rate found for %s to %s on %s",
				apperrors.ErrNotFound, fromCurrency, toCurrency, domain.FormatDate(on))
		}
		return decimal.Zero, inverseErr
	}
	if inverse.Rate.IsZero() {
		return decimal.Zero, fmt.Errorf("%w: stored rate %s to %s is zero", apperrors.ErrValidation, toCurrency, fromCurrency)
	}
	return decimal.NewFromInt(1).Div(inverse.Rate), nil
}

func (r *PgxExchangeRateRepository) findRate(ctx context.Context, fromCurrency, toCurrency string, on time.Time) (*domain.ExchangeRate, error) {
	query := `
		SELECT
			exchange_rate_id, from_currency_code, to_currency_code, rate, date_effective,
			created_at, created_by, last_updated_at, last_updated_by
		FROM exchange_rates
		WHERE from_currency_code = $1 AND to_currency_code = $2 AND date_effective <= $3
		ORDER BY date_effective DESC
		LIMIT 1;
	`

	var modelRate models.ExchangeRate
	err := r.Pool.QueryRow(ctx, query, fromCurrency, toCurrency, domain.DateOf(on)).Scan(
		&modelRate.ExchangeRateID, &modelRate.FromCurrencyCode, &modelRate.ToCurrencyCode,
		&modelRate.Rate, &modelRate.DateEffective, &modelRate.CreatedAt,
		&modelRate.CreatedBy, &modelRate.LastUpdatedAt, &modelRate.LastUpdatedBy,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, apperrors.NewAppError(500, "failed to find exchange rate", err)
	}

	domainRate := mapping.ToDomainExchangeRate(modelRate)
	return &domainRate, nil
}
