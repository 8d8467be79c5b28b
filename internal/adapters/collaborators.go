// Package adapters wires the optional outside systems the engine consults.
package adapters

import (
	"log/slog"

	"github.com/SscSPs/recurring_journal_engine/internal/adapters/analytics"
	"github.com/SscSPs/recurring_journal_engine/internal/adapters/calendar"
	"github.com/SscSPs/recurring_journal_engine/internal/adapters/redislock"
	"github.com/SscSPs/recurring_journal_engine/internal/adapters/tax"
	"github.com/SscSPs/recurring_journal_engine/internal/core/services"
	"github.com/SscSPs/recurring_journal_engine/internal/platform/config"
	"github.com/spf13/afero"
)

// BuildCollaborators creates the collaborators enabled by cfg. Holiday files are read from fs.
// The returned func releases whatever was opened and is never nil.
func BuildCollaborators(cfg *config.Config, fs afero.Fs, sink analytics.EventSink, logger *slog.Logger) (services.Collaborators, func(), error) {
	collab := services.Collaborators{}
	closeFn := func() {}

	if sink != nil {
		collab.Notifier = analytics.NewRunNotifier(sink)
	}

	if len(cfg.TaxRates) > 0 {
		table := tax.NewRateTable(cfg.TaxRates)
		collab.Tax = table
		logger.Info("Tax rate table loaded", slog.Int("codes", table.Len()))
	}

	if cfg.HolidayCalendarFile != "" {
		cal, err := calendar.LoadFileCalendar(fs, cfg.HolidayCalendarFile)
		if err != nil {
			return services.Collaborators{}, closeFn, err
		}
		collab.Holidays = cal
		logger.Info("Holiday calendar loaded", slog.String("file", cfg.HolidayCalendarFile), slog.Int("holidays", cal.Len()))
	}

	if cfg.RedisAddress != "" {
		client, err := redislock.NewClient(redislock.Config{
			Address:  cfg.RedisAddress,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return services.Collaborators{}, closeFn, err
		}
		collab.Locker = redislock.NewLocker(client, cfg.RunLockTTL)
		closeFn = func() {
			if err := client.Close(); err != nil {
				logger.Warn("Error closing redis client", slog.String("error", err.Error()))
			}
		}
		logger.Info("Using redis run locks", slog.String("address", cfg.RedisAddress))
	}

	return collab, closeFn, nil
}
