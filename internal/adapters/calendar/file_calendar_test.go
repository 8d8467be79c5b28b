package calendar

import (
	"context"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCalendar = `
holidays:
  - date: 2025-04-18
    name: Good Friday
annual:
  - date: 12-25
    name: Christmas Day
  - date: 01-01
    name: New Year's Day
`

func writeCalendar(t *testing.T, content string) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/etc/rje/holidays.yaml", []byte(content), 0o644))
	return fs
}

func TestLoadFileCalendar(t *testing.T) {
	fs := writeCalendar(t, sampleCalendar)
	cal, err := LoadFileCalendar(fs, "/etc/rje/holidays.yaml")
	require.NoError(t, err)
	assert.Equal(t, 3, cal.Len())

	ctx := context.Background()
	tests := []struct {
		name string
		date time.Time
		want bool
	}{
		{"dated holiday", time.Date(2025, 4, 18, 0, 0, 0, 0, time.UTC), true},
		{"dated holiday other year", time.Date(2026, 4, 18, 0, 0, 0, 0, time.UTC), false},
		{"annual holiday", time.Date(2031, 12, 25, 0, 0, 0, 0, time.UTC), true},
		{"time of day ignored", time.Date(2025, 1, 1, 15, 30, 0, 0, time.UTC), true},
		{"ordinary day", time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := cal.IsHoliday(ctx, tt.date)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	name, ok := cal.Name(time.Date(2025, 12, 25, 0, 0, 0, 0, time.UTC))
	assert.True(t, ok)
	assert.Equal(t, "Christmas Day", name)
}

func TestLoadFileCalendar_Errors(t *testing.T) {
	_, err := LoadFileCalendar(afero.NewMemMapFs(), "/missing.yaml")
	assert.Error(t, err)

	fs := writeCalendar(t, "holidays:\n  - date: 25/12/2025\n")
	_, err = LoadFileCalendar(fs, "/etc/rje/holidays.yaml")
	assert.ErrorContains(t, err, "invalid date")

	fs = writeCalendar(t, "annual:\n  - date: 13-01\n")
	_, err = LoadFileCalendar(fs, "/etc/rje/holidays.yaml")
	assert.ErrorContains(t, err, "invalid annual date")

	fs = writeCalendar(t, "holidays: [")
	_, err = LoadFileCalendar(fs, "/etc/rje/holidays.yaml")
	assert.ErrorContains(t, err, "failed to parse")
}
