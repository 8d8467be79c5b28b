package adapters_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/SscSPs/recurring_journal_engine/internal/adapters"
	"github.com/SscSPs/recurring_journal_engine/internal/platform/config"
	"github.com/alicebob/miniredis/v2"
	"github.com/shopspring/decimal"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	events []string
}

func (s *recordingSink) Enqueue(_ string, event string, _ map[string]any) error {
	s.events = append(s.events, event)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBuildCollaborators_NothingConfigured(t *testing.T) {
	collab, closeFn, err := adapters.BuildCollaborators(&config.Config{}, afero.NewMemMapFs(), nil, discardLogger())

	require.NoError(t, err)
	require.NotNil(t, closeFn)
	closeFn()
	assert.Nil(t, collab.Tax)
	assert.Nil(t, collab.Holidays)
	assert.Nil(t, collab.Locker)
	assert.Nil(t, collab.Notifier)
}

func TestBuildCollaborators_AllConfigured(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/etc/rje/holidays.yaml", []byte(`
holidays:
  - date: "2024-12-25"
    name: Christmas
`), 0o644))
	mr := miniredis.RunT(t)

	cfg := &config.Config{
		TaxRates:            map[string]decimal.Decimal{"VAT20": decimal.NewFromInt(20)},
		HolidayCalendarFile: "/etc/rje/holidays.yaml",
		RedisAddress:        mr.Addr(),
		RunLockTTL:          time.Minute,
	}

	collab, closeFn, err := adapters.BuildCollaborators(cfg, fs, &recordingSink{}, discardLogger())
	require.NoError(t, err)
	defer closeFn()

	require.NotNil(t, collab.Tax)
	tax, err := collab.Tax.ComputeTax(context.Background(), "VAT20", decimal.NewFromInt(100), time.Now())
	require.NoError(t, err)
	assert.True(t, tax.Equal(decimal.NewFromInt(20)))

	require.NotNil(t, collab.Holidays)
	holiday, err := collab.Holidays.IsHoliday(context.Background(), time.Date(2024, time.December, 25, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, holiday)

	require.NotNil(t, collab.Locker)
	release, err := collab.Locker.TryAcquire(context.Background(), "def-1")
	require.NoError(t, err)
	release()

	assert.NotNil(t, collab.Notifier)
}

func TestBuildCollaborators_MissingHolidayFile(t *testing.T) {
	cfg := &config.Config{HolidayCalendarFile: "/missing.yaml"}

	_, closeFn, err := adapters.BuildCollaborators(cfg, afero.NewMemMapFs(), nil, discardLogger())

	assert.Error(t, err)
	assert.NotNil(t, closeFn)
}
