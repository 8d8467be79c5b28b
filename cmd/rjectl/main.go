// Command rjectl operates the recurring journal engine from a shell: it previews schedules,
// runs definitions and prints occurrence statistics against the configured database.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/SscSPs/recurring_journal_engine/internal/adapters"
	"github.com/SscSPs/recurring_journal_engine/internal/adapters/database/pgsql"
	portssvc "github.com/SscSPs/recurring_journal_engine/internal/core/ports/services"
	"github.com/SscSPs/recurring_journal_engine/internal/core/services"
	"github.com/SscSPs/recurring_journal_engine/internal/platform/config"
	"github.com/SscSPs/recurring_journal_engine/pkg/database"
	"github.com/spf13/afero"
)

func main() {
	if err := newRootCmd(loadServices).Execute(); err != nil {
		os.Exit(1)
	}
}

// loadServices builds the same service container the HTTP server uses.
func loadServices(ctx context.Context, logger *slog.Logger) (*portssvc.ServiceContainer, func(), error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, err
	}

	pool, err := database.NewPgxPool(ctx, cfg.DatabaseURL, true)
	if err != nil {
		return nil, nil, err
	}

	// no analytics sink: notifications belong to the server
	collab, closeCollab, err := adapters.BuildCollaborators(cfg, afero.NewOsFs(), nil, logger)
	if err != nil {
		database.ClosePgxPool(pool)
		return nil, nil, err
	}

	container := services.NewServiceContainer(cfg, pgsql.NewRepositoryProvider(pool), collab)
	return container, func() {
		closeCollab()
		database.ClosePgxPool(pool)
	}, nil
}
